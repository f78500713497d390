package yolo

import "sort"

type box struct {
	x1, y1, x2, y2 float64
	score          float32
	class          int
}

func (b box) area() float64 {
	w, h := b.x2-b.x1, b.y2-b.y1
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// iou returns the intersection over union of two boxes.
func iou(a, b box) float64 {
	ix1, iy1 := max(a.x1, b.x1), max(a.y1, b.y1)
	ix2, iy2 := min(a.x2, b.x2), min(a.y2, b.y2)
	if ix2 <= ix1 || iy2 <= iy1 {
		return 0
	}
	inter := (ix2 - ix1) * (iy2 - iy1)
	union := a.area() + b.area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// nonMaxSuppression keeps, per class, the highest scoring boxes that do not
// overlap an already kept box by more than threshold.
func nonMaxSuppression(boxes []box, threshold float64) []box {
	sort.SliceStable(boxes, func(i, j int) bool {
		return boxes[i].score > boxes[j].score
	})

	kept := make([]box, 0, len(boxes))
	for _, candidate := range boxes {
		suppressed := false
		for _, k := range kept {
			if k.class == candidate.class && iou(k, candidate) > threshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, candidate)
		}
	}
	return kept
}
