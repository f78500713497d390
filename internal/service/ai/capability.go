package ai

import (
	"context"

	"detectserver/internal/dto"
)

// Capability is a loaded detection model.
type Capability interface {
	// Detect runs inference on the image stored at path.
	Detect(ctx context.Context, path string) (Result, error)
	Close() error
}

// Result is the outcome of one Detect call.
type Result interface {
	Detections() []dto.DetectionResult
	// Save renders the annotated image to path, replacing any existing file.
	Save(path string) error
	// Close releases native resources held by the result.
	Close() error
}
