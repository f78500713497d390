package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"detectserver/internal/config"
	"detectserver/internal/dto"
	"detectserver/internal/logger"
	"detectserver/internal/metrics"
	"detectserver/internal/model"
	"detectserver/internal/repository"
	"detectserver/internal/service/ai"
	"detectserver/internal/service/storage"
)

// ErrUnknownModel is wrapped by a DetectionError when no capability is
// registered under the requested name.
var ErrUnknownModel = errors.New("unknown model")

// DetectionError reports a failed detection run for one model.
type DetectionError struct {
	Model string
	Err   error
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("detection with %s failed: %v", e.Model, e.Err)
}

func (e *DetectionError) Unwrap() error {
	return e.Err
}

// Broadcaster delivers a message to every live-feed viewer.
type Broadcaster interface {
	Broadcast(message []byte)
}

// Outcome is the result of a successful detection run.
type Outcome struct {
	ImagePath  string // public path of the annotated image
	Model      string
	Detections []dto.DetectionResult
	Duration   time.Duration
}

// Dispatcher runs the selected model on a stored upload and overwrites the
// upload with its annotated rendering.
type Dispatcher struct {
	registry     *ai.Registry
	publicPrefix string
	uploads      repository.UploadRepository
	detections   repository.DetectionRepository
	hub          Broadcaster
	metrics      *metrics.Metrics
	logger       *logger.Logger
}

// NewDispatcher creates a Dispatcher. The repositories, hub and metrics are
// optional and may be nil.
func NewDispatcher(registry *ai.Registry, cfg *config.Config, uploads repository.UploadRepository,
	detections repository.DetectionRepository, hub Broadcaster, m *metrics.Metrics, logger *logger.Logger) *Dispatcher {
	return &Dispatcher{
		registry:     registry,
		publicPrefix: cfg.PublicUploadPrefix,
		uploads:      uploads,
		detections:   detections,
		hub:          hub,
		metrics:      m,
		logger:       logger,
	}
}

// Detect runs modelName on the upload described by rec. On success the file
// at rec.Path holds the annotated image.
func (d *Dispatcher) Detect(ctx context.Context, rec *storage.Record, modelName string) (*Outcome, error) {
	capability, ok := d.registry.Lookup(modelName)
	if !ok {
		return nil, &DetectionError{Model: modelName, Err: ErrUnknownModel}
	}

	start := time.Now()

	result, err := capability.Detect(ctx, rec.Path)
	if err != nil {
		d.metrics.ObserveDetectionError(modelName)
		d.logger.Error("%s failed on %s: %v", modelName, rec.Name, err)
		return nil, &DetectionError{Model: modelName, Err: err}
	}
	defer result.Close()

	if err := result.Save(rec.Path); err != nil {
		d.metrics.ObserveDetectionError(modelName)
		d.logger.Error("Error saving annotated %s: %v", rec.Name, err)
		return nil, &DetectionError{Model: modelName, Err: err}
	}

	outcome := &Outcome{
		ImagePath:  d.publicPrefix + rec.Name,
		Model:      modelName,
		Detections: result.Detections(),
		Duration:   time.Since(start),
	}

	d.metrics.ObserveDetection(modelName, len(outcome.Detections), outcome.Duration)
	d.logger.Info("%s found %d object(s) on %s in %v", modelName, len(outcome.Detections), rec.Name, outcome.Duration)

	d.record(rec, outcome)
	d.broadcast(outcome)

	return outcome, nil
}

// record stores the run in the history repositories. Failures are logged only.
func (d *Dispatcher) record(rec *storage.Record, outcome *Outcome) {
	if d.uploads == nil {
		return
	}

	uploadID, err := d.uploads.Insert(&model.Upload{
		Filename:     rec.Name,
		OriginalName: rec.OriginalName,
		Model:        outcome.Model,
		FilePath:     rec.Path,
		FileSize:     rec.Size,
		CreatedAt:    rec.CreatedAt,
	})
	if err != nil {
		d.logger.Warning("Error saving history for %s: %v", rec.Name, err)
		return
	}

	if d.detections == nil || len(outcome.Detections) == 0 {
		return
	}

	rows := make([]model.Detection, 0, len(outcome.Detections))
	for _, det := range outcome.Detections {
		rows = append(rows, model.Detection{
			UploadID:   uploadID,
			Label:      det.Label,
			ClassID:    det.ClassID,
			X:          det.X,
			Y:          det.Y,
			Width:      det.Width,
			Height:     det.Height,
			Confidence: det.Confidence,
		})
	}
	if err := d.detections.InsertBatch(rows); err != nil {
		d.logger.Warning("Error saving detections for %s: %v", rec.Name, err)
	}
}

func (d *Dispatcher) broadcast(outcome *Outcome) {
	if d.hub == nil {
		return
	}

	detections := outcome.Detections
	if detections == nil {
		detections = []dto.DetectionResult{}
	}

	message, err := json.Marshal(dto.DetectionEvent{
		Model:      outcome.Model,
		ImagePath:  outcome.ImagePath,
		Detections: detections,
		DurationMs: outcome.Duration.Milliseconds(),
		Timestamp:  time.Now(),
	})
	if err != nil {
		d.logger.Error("Error encoding detection event: %v", err)
		return
	}
	d.hub.Broadcast(message)
}
