package annotate

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"detectserver/internal/dto"

	"github.com/disintegration/imaging"
)

func blank(w, h int) *image.NRGBA {
	return imaging.New(w, h, color.NRGBA{R: 0, G: 0, B: 0, A: 255})
}

func TestDraw_OutlinesBoxWithoutTouchingSource(t *testing.T) {
	src := blank(100, 100)
	det := dto.DetectionResult{Label: "cat", ClassID: 15, Confidence: 0.87, X: 20, Y: 40, Width: 50, Height: 30}

	out := Draw(src, []dto.DetectionResult{det})

	want := Color(15)
	got := out.NRGBAAt(20, 55)
	if got.R != want.R || got.G != want.G || got.B != want.B {
		t.Errorf("Expected left edge in class color %v, got %v", want, got)
	}

	inside := out.NRGBAAt(45, 60)
	if inside.R != 0 || inside.G != 0 || inside.B != 0 {
		t.Errorf("Box interior should be untouched, got %v", inside)
	}

	if src.NRGBAAt(20, 55).R != 0 {
		t.Error("Draw must not modify the source image")
	}
}

func TestDraw_ClipsBoxesOutsideImage(t *testing.T) {
	src := blank(10, 10)

	out := Draw(src, []dto.DetectionResult{
		{Label: "far", X: 50, Y: 50, Width: 5, Height: 5},
		{Label: "edge", X: 8, Y: 0, Width: 10, Height: 10},
	})

	if out.Bounds() != src.Bounds() {
		t.Errorf("Bounds changed: %v", out.Bounds())
	}
}

func TestColor_Wraps(t *testing.T) {
	if Color(0) != Color(len(palette)) {
		t.Error("Palette should wrap around")
	}
	if Color(-3) != Color(3) {
		t.Error("Negative class ids should map like positive ones")
	}
}

func TestCaption(t *testing.T) {
	got := Caption(dto.DetectionResult{Label: "person", Confidence: 0.916})
	if got != "person 0.92" {
		t.Errorf("Unexpected caption %q", got)
	}
}

func TestSave_FormatsByExtension(t *testing.T) {
	dir := t.TempDir()
	img := blank(8, 8)

	tests := []struct {
		name   string
		format string
	}{
		{"out.jpg", "jpeg"},
		{"out.png", "png"},
		{"out.bmp", "bmp"},
		{"out.tiff", "tiff"},
		{"out.gif", "gif"},
		{"out.webp", "png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			if err := Save(img, path); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			file, err := os.Open(path)
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			defer file.Close()

			_, format, err := image.DecodeConfig(file)
			if err != nil {
				t.Fatalf("DecodeConfig failed: %v", err)
			}
			if format != tt.format {
				t.Errorf("Expected %s data, got %s", tt.format, format)
			}
		})
	}
}
