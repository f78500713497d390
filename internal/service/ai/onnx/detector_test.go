package onnx

import (
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	ort "github.com/yalue/onnxruntime_go"
)

func TestResolveShape_DynamicInput(t *testing.T) {
	got, err := resolveShape(ort.NewShape(-1, 3, -1, -1), 640, 480)
	if err != nil {
		t.Fatalf("resolveShape failed: %v", err)
	}

	want := []int64{1, 3, 640, 480}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Dim %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestResolveShape_StaticInputKept(t *testing.T) {
	got, err := resolveShape(ort.NewShape(1, 3, 320, 320), 640, 640)
	if err != nil {
		t.Fatalf("resolveShape failed: %v", err)
	}
	if got[2] != 320 || got[3] != 320 {
		t.Errorf("Static dims should be kept, got %v", got)
	}
}

func TestResolveShape_Errors(t *testing.T) {
	tests := []struct {
		name          string
		dims          ort.Shape
		height, width int64
	}{
		{"dynamic output anchors", ort.NewShape(-1, 84, -1), 0, 0},
		{"grayscale input", ort.NewShape(1, 1, 640, 640), 640, 640},
		{"flat input", ort.NewShape(1, 1228800), 640, 640},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := resolveShape(tt.dims, tt.height, tt.width); err == nil {
				t.Errorf("Expected error for %v", tt.dims)
			}
		})
	}
}

func TestResolveShape_OutputBatch(t *testing.T) {
	got, err := resolveShape(ort.NewShape(-1, 300, 6), 0, 0)
	if err != nil {
		t.Fatalf("resolveShape failed: %v", err)
	}
	if got[0] != 1 || got[1] != 300 || got[2] != 6 {
		t.Errorf("Unexpected shape %v", got)
	}
}

func TestFillInput_PlanarNormalized(t *testing.T) {
	pic := imaging.New(2, 1, color.NRGBA{R: 255, G: 0, B: 51, A: 255})
	pic.SetNRGBA(1, 0, color.NRGBA{R: 0, G: 102, B: 255, A: 255})

	dst := make([]float32, 6)
	fillInput(pic, dst)

	want := []float32{1, 0, 0, 0.4, 0.2, 1}
	for i := range want {
		if diff := dst[i] - want[i]; diff > 1e-6 || diff < -1e-6 {
			t.Errorf("Value %d: expected %v, got %v", i, want[i], dst[i])
		}
	}
}
