// Package annotate draws detection boxes onto images and writes them back
// to disk in the format implied by the file extension.
package annotate

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"

	"detectserver/internal/dto"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const thickness = 2

var palette = []color.RGBA{
	{R: 255, G: 56, B: 56, A: 255},
	{R: 255, G: 157, B: 151, A: 255},
	{R: 255, G: 112, B: 31, A: 255},
	{R: 255, G: 178, B: 29, A: 255},
	{R: 207, G: 210, B: 49, A: 255},
	{R: 72, G: 249, B: 10, A: 255},
	{R: 146, G: 204, B: 23, A: 255},
	{R: 61, G: 219, B: 134, A: 255},
	{R: 26, G: 147, B: 52, A: 255},
	{R: 0, G: 212, B: 187, A: 255},
	{R: 44, G: 153, B: 168, A: 255},
	{R: 0, G: 194, B: 255, A: 255},
	{R: 52, G: 69, B: 147, A: 255},
	{R: 100, G: 115, B: 255, A: 255},
	{R: 0, G: 24, B: 236, A: 255},
	{R: 132, G: 56, B: 255, A: 255},
	{R: 82, G: 0, B: 133, A: 255},
	{R: 203, G: 56, B: 255, A: 255},
	{R: 255, G: 149, B: 200, A: 255},
	{R: 255, G: 55, B: 199, A: 255},
}

// Color returns the box color used for classID.
func Color(classID int) color.RGBA {
	if classID < 0 {
		classID = -classID
	}
	return palette[classID%len(palette)]
}

// Caption returns the text drawn above a box.
func Caption(d dto.DetectionResult) string {
	return fmt.Sprintf("%s %.2f", d.Label, d.Confidence)
}

// Draw returns a copy of img with every detection outlined and captioned.
func Draw(img image.Image, detections []dto.DetectionResult) *image.NRGBA {
	canvas := imaging.Clone(img)

	for _, d := range detections {
		c := Color(d.ClassID)
		rect := image.Rect(d.X, d.Y, d.X+d.Width, d.Y+d.Height).Intersect(canvas.Bounds())
		if rect.Empty() {
			continue
		}
		outline(canvas, rect, c)
		caption(canvas, rect, Caption(d), c)
	}

	return canvas
}

func outline(dst draw.Image, r image.Rectangle, c color.RGBA) {
	src := image.NewUniform(c)
	t := thickness
	if r.Dx() < 2*t || r.Dy() < 2*t {
		draw.Draw(dst, r, src, image.Point{}, draw.Src)
		return
	}
	draw.Draw(dst, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t), src, image.Point{}, draw.Src)
	draw.Draw(dst, image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y), src, image.Point{}, draw.Src)
	draw.Draw(dst, image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y), src, image.Point{}, draw.Src)
	draw.Draw(dst, image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y), src, image.Point{}, draw.Src)
}

// caption draws text on a filled band above the box, or inside it when the
// box touches the top edge.
func caption(dst *image.NRGBA, r image.Rectangle, text string, c color.RGBA) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil() + 4
	height := face.Metrics().Height.Ceil() + 2

	top := r.Min.Y - height
	if top < dst.Bounds().Min.Y {
		top = r.Min.Y
	}
	band := image.Rect(r.Min.X, top, r.Min.X+width, top+height).Intersect(dst.Bounds())
	draw.Draw(dst, band, image.NewUniform(c), image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  dst,
		Src:  image.White,
		Face: face,
		Dot:  fixed.P(band.Min.X+2, band.Min.Y+face.Metrics().Ascent.Ceil()+1),
	}
	drawer.DrawString(text)
}

// Save writes img to path, choosing the encoder from the extension. Formats
// imaging cannot encode (webp) are written as PNG data.
func Save(img image.Image, path string) error {
	err := imaging.Save(img, path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, imaging.ErrUnsupportedFormat) {
		return fmt.Errorf("save annotated image: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create annotated image: %w", err)
	}
	if err := imaging.Encode(file, img, imaging.PNG); err != nil {
		file.Close()
		return fmt.Errorf("encode annotated image: %w", err)
	}
	return file.Close()
}
