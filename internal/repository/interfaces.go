package repository

import (
	"detectserver/internal/model"
)

// UploadRepository defines the interface for upload history operations.
type UploadRepository interface {
	// Create operations
	Insert(upload *model.Upload) (int64, error)

	// Read operations
	GetByFilename(filename string) (*model.Upload, error)
	GetAll(filter *model.UploadFilter) ([]model.Upload, error)
	GetTotalCount(filter *model.UploadFilter) (int, error)

	// Delete operations
	DeleteByFilename(filename string) error
}

// DetectionRepository defines the interface for detection data operations.
type DetectionRepository interface {
	// Create operations
	InsertBatch(detections []model.Detection) error

	// Read operations
	GetByUploadID(uploadID int64) ([]model.Detection, error)
	GetLabelsByUploadID(uploadID int64) ([]string, error)
}
