package model

import "time"

// Upload represents a stored upload and the model that annotated it.
type Upload struct {
	ID           int64     `json:"id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"original_name"`
	Model        string    `json:"model"`
	FilePath     string    `json:"filepath"`
	FileSize     int64     `json:"filesize"`
	CreatedAt    time.Time `json:"created_at"`
}

// UploadFilter contains filtering options for querying uploads.
type UploadFilter struct {
	Model  string
	Since  time.Time
	Limit  int
	Offset int
}
