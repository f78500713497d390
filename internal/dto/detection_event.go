package dto

import "time"

// DetectionEvent is broadcast to live-feed viewers after every successful run.
type DetectionEvent struct {
	Model      string            `json:"model"`
	ImagePath  string            `json:"image_path"`
	Detections []DetectionResult `json:"detections"`
	DurationMs int64             `json:"duration_ms"`
	Timestamp  time.Time         `json:"timestamp"`
}
