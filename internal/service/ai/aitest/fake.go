// Package aitest provides in-memory detection capabilities for tests.
package aitest

import (
	"context"
	"os"
	"sync"

	"detectserver/internal/dto"
	"detectserver/internal/service/ai"
)

// AnnotatedMarker is prepended to a file by FakeResult.Save.
const AnnotatedMarker = "annotated:"

// FakeCapability returns fixed detections, or DetectErr when set.
type FakeCapability struct {
	Detections []dto.DetectionResult
	DetectErr  error
	SaveErr    error

	mu     sync.Mutex
	paths  []string
	closed bool
}

// Detect records path and returns a FakeResult.
func (f *FakeCapability) Detect(ctx context.Context, path string) (ai.Result, error) {
	f.mu.Lock()
	f.paths = append(f.paths, path)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.DetectErr != nil {
		return nil, f.DetectErr
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return &FakeResult{detections: f.Detections, saveErr: f.SaveErr}, nil
}

// Close marks the capability closed.
func (f *FakeCapability) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Paths returns the paths Detect was called with.
func (f *FakeCapability) Paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

// Closed reports whether Close was called.
func (f *FakeCapability) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// FakeResult rewrites the image with AnnotatedMarker in front of its bytes.
type FakeResult struct {
	detections []dto.DetectionResult
	saveErr    error
	closed     bool
}

func (r *FakeResult) Detections() []dto.DetectionResult {
	return r.detections
}

func (r *FakeResult) Save(path string) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return os.WriteFile(path, append([]byte(AnnotatedMarker), data...), 0644)
}

func (r *FakeResult) Close() error {
	r.closed = true
	return nil
}

// NewRegistry builds a registry holding the given fakes under the standard
// model names. Missing entries get an empty FakeCapability.
func NewRegistry(fakes map[string]*FakeCapability) *ai.Registry {
	names := []string{"YOLOv8", "YOLOv9", "YOLOv10", "YOLOv11"}
	models := make(map[string]ai.Capability, len(names))
	for _, name := range names {
		fake, ok := fakes[name]
		if !ok {
			fake = &FakeCapability{}
		}
		models[name] = fake
	}

	registry, err := ai.NewRegistry(names, models)
	if err != nil {
		panic(err)
	}
	return registry
}
