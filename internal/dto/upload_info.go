package dto

import (
	"encoding/json"
	"time"
)

// UploadInfo describes one past detection run for the history API.
type UploadInfo struct {
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"createdAt"`
	Objects   []string  `json:"objects"`

	Detections []DetectionResult `json:"detections"`
}

// MarshalJSON formats CreatedAt as date and time of day.
func (u UploadInfo) MarshalJSON() ([]byte, error) {
	type Alias UploadInfo
	return json.Marshal(&struct {
		CreatedAt string `json:"createdAt"`
		Alias
	}{
		CreatedAt: u.CreatedAt.Format("02-01-2006 15:04:05"),
		Alias:     (Alias)(u),
	})
}

// UploadsData is the response payload of the history endpoint.
type UploadsData struct {
	Uploads []UploadInfo `json:"uploads"`
	Length  int          `json:"length"`
	Limit   int          `json:"limit"`
}
