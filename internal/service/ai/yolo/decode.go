// Package yolo turns raw YOLO output tensors into bounding boxes.
//
// Two output layouts are understood:
//
//	[1, 4+C, N]  one column per candidate: cx, cy, w, h, then C class scores
//	             (v8, v9 and v11 heads; needs NMS)
//	[1, N, 6]    one row per final box: x1, y1, x2, y2, score, class
//	             (v10 end-to-end head; already suppressed)
//
// A transposed [1, N, 4+C] layout is accepted as well. The class count C is
// taken from the label list; a dimension equal to 4+C wins over the [1, N, 6]
// reading, so a two-class model is never mistaken for an end-to-end head.
// Without a matching dimension the layout is guessed from the shape alone.
// Coordinates are in network input pixels and are scaled back to the
// original image.
package yolo

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"detectserver/internal/dto"
)

const (
	DefaultInputSize  = 640
	DefaultConfidence = 0.25
	DefaultIoU        = 0.45
)

var ErrBadShape = errors.New("unsupported output shape")

// Options controls decoding.
type Options struct {
	InputWidth  int
	InputHeight int
	Confidence  float64
	IoU         float64
}

// DefaultOptions returns the thresholds the stock YOLO predictors use.
func DefaultOptions() Options {
	return Options{
		InputWidth:  DefaultInputSize,
		InputHeight: DefaultInputSize,
		Confidence:  DefaultConfidence,
		IoU:         DefaultIoU,
	}
}

func (o Options) normalized() Options {
	if o.InputWidth <= 0 {
		o.InputWidth = DefaultInputSize
	}
	if o.InputHeight <= 0 {
		o.InputHeight = DefaultInputSize
	}
	if o.Confidence <= 0 {
		o.Confidence = DefaultConfidence
	}
	if o.IoU <= 0 {
		o.IoU = DefaultIoU
	}
	return o
}

// Decode converts the flat output tensor data of the given shape into
// detections in original image coordinates, highest confidence first.
func Decode(data []float32, shape []int, imageWidth, imageHeight int, labels []string, opts Options) ([]dto.DetectionResult, error) {
	opts = opts.normalized()

	if len(shape) != 3 || shape[0] != 1 {
		return nil, fmt.Errorf("%w: %v", ErrBadShape, shape)
	}
	rows, cols := shape[1], shape[2]
	if rows*cols != len(data) {
		return nil, fmt.Errorf("%w: shape %v does not match %d values", ErrBadShape, shape, len(data))
	}

	sx := float64(imageWidth) / float64(opts.InputWidth)
	sy := float64(imageHeight) / float64(opts.InputHeight)

	channelsFirst := func(c, i int) float32 { return data[c*cols+i] }
	transposed := func(c, i int) float32 { return data[i*cols+c] }

	var candidates []box
	switch layout(rows, cols, len(labels)) {
	case layoutChannelsFirst:
		candidates = decodeCandidates(data, rows-4, cols, channelsFirst, opts.Confidence)
		candidates = nonMaxSuppression(candidates, opts.IoU)
	case layoutTransposed:
		candidates = decodeCandidates(data, cols-4, rows, transposed, opts.Confidence)
		candidates = nonMaxSuppression(candidates, opts.IoU)
	case layoutEndToEnd:
		candidates = decodeEndToEnd(data, rows, opts.Confidence)
	default:
		return nil, fmt.Errorf("%w: %v", ErrBadShape, shape)
	}

	results := make([]dto.DetectionResult, 0, len(candidates))
	for _, b := range candidates {
		x1 := clamp(b.x1*sx, 0, float64(imageWidth))
		y1 := clamp(b.y1*sy, 0, float64(imageHeight))
		x2 := clamp(b.x2*sx, 0, float64(imageWidth))
		y2 := clamp(b.y2*sy, 0, float64(imageHeight))
		if x2 <= x1 || y2 <= y1 {
			continue
		}

		results = append(results, dto.DetectionResult{
			Label:      Label(labels, b.class),
			ClassID:    b.class,
			Confidence: math.Round(float64(b.score)*1e4) / 1e4,
			X:          int(math.Round(x1)),
			Y:          int(math.Round(y1)),
			Width:      int(math.Round(x2 - x1)),
			Height:     int(math.Round(y2 - y1)),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Confidence > results[j].Confidence
	})
	return results, nil
}

type outputLayout int

const (
	layoutUnknown outputLayout = iota
	layoutChannelsFirst
	layoutTransposed
	layoutEndToEnd
)

// layout picks how a [1, rows, cols] tensor is read. numClasses is the
// length of the label list and may be 0.
func layout(rows, cols, numClasses int) outputLayout {
	if numClasses > 0 {
		switch 4 + numClasses {
		case rows:
			return layoutChannelsFirst
		case cols:
			return layoutTransposed
		}
	}

	switch {
	case cols == 6:
		return layoutEndToEnd
	case rows >= 5 && rows < cols:
		return layoutChannelsFirst
	case cols >= 5:
		return layoutTransposed
	}
	return layoutUnknown
}

// decodeCandidates reads N candidates of 4 box values plus numClasses scores,
// keeping the best class of each candidate above the threshold.
func decodeCandidates(data []float32, numClasses, n int, at func(c, i int) float32, threshold float64) []box {
	var out []box
	for i := 0; i < n; i++ {
		best, bestScore := -1, float32(0)
		for c := 0; c < numClasses; c++ {
			if s := at(4+c, i); s > bestScore {
				best, bestScore = c, s
			}
		}
		if best < 0 || float64(bestScore) < threshold {
			continue
		}

		cx, cy, w, h := float64(at(0, i)), float64(at(1, i)), float64(at(2, i)), float64(at(3, i))
		out = append(out, box{
			x1:    cx - w/2,
			y1:    cy - h/2,
			x2:    cx + w/2,
			y2:    cy + h/2,
			score: bestScore,
			class: best,
		})
	}
	return out
}

func decodeEndToEnd(data []float32, n int, threshold float64) []box {
	var out []box
	for i := 0; i < n; i++ {
		row := data[i*6 : i*6+6]
		if float64(row[4]) < threshold {
			continue
		}
		out = append(out, box{
			x1:    float64(row[0]),
			y1:    float64(row[1]),
			x2:    float64(row[2]),
			y2:    float64(row[3]),
			score: row[4],
			class: int(row[5]),
		})
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
