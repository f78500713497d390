package storage

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"detectserver/internal/logger"

	"github.com/google/uuid"
)

// AllowedExtensions lists the accepted image extensions, lowercase, without dot.
var AllowedExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"gif":  true,
	"bmp":  true,
	"tiff": true,
	"webp": true,
}

// Reason identifies why an upload was rejected.
type Reason int

const (
	ReasonNoFile Reason = iota + 1
	ReasonInvalidModel
	ReasonDisallowedExtension
	ReasonTooLarge
)

// String returns the metric label of the reason.
func (r Reason) String() string {
	switch r {
	case ReasonNoFile:
		return "no_file"
	case ReasonInvalidModel:
		return "invalid_model"
	case ReasonDisallowedExtension:
		return "disallowed_extension"
	case ReasonTooLarge:
		return "too_large"
	default:
		return "unknown"
	}
}

// ValidationError is returned when an upload is rejected before or while
// it is stored. No file is left on disk.
type ValidationError struct {
	Reason Reason
}

func (e *ValidationError) Error() string {
	return "upload rejected: " + e.Reason.String()
}

// Message returns the text shown to the user.
func (e *ValidationError) Message() string {
	switch e.Reason {
	case ReasonNoFile:
		return "No file selected"
	case ReasonInvalidModel:
		return "Invalid model selected"
	case ReasonDisallowedExtension:
		return "File type not allowed (disallowed extension)"
	case ReasonTooLarge:
		return "File is too large (max 16 MB)"
	default:
		return "Upload rejected"
	}
}

// Record describes a stored upload.
type Record struct {
	Name         string // <token>.<ext>
	Ext          string
	Path         string
	OriginalName string
	Size         int64
	CreatedAt    time.Time
}

// ModelSet reports whether a model name can be dispatched.
type ModelSet interface {
	Has(name string) bool
}

// Uploader validates uploads and stores them under fresh names.
type Uploader struct {
	dir      string
	models   ModelSet
	logger   *logger.Logger
	newToken func() string
	now      func() time.Time
}

// NewUploader creates an Uploader storing files in dir.
func NewUploader(dir string, models ModelSet, logger *logger.Logger) *Uploader {
	return &Uploader{
		dir:      dir,
		models:   models,
		logger:   logger,
		newToken: uuid.NewString,
		now:      time.Now,
	}
}

// Extension returns the lowercase text after the last '.' of filename.
func Extension(filename string) (string, bool) {
	i := strings.LastIndex(filename, ".")
	if i < 0 || i == len(filename)-1 {
		return "", false
	}
	return strings.ToLower(filename[i+1:]), true
}

// Validate checks an upload without touching the filesystem and returns the
// normalized extension.
func (u *Uploader) Validate(filename, model string) (string, *ValidationError) {
	if filename == "" {
		return "", &ValidationError{Reason: ReasonNoFile}
	}
	if !u.models.Has(model) {
		return "", &ValidationError{Reason: ReasonInvalidModel}
	}
	ext, ok := Extension(filename)
	if !ok || !AllowedExtensions[ext] {
		return "", &ValidationError{Reason: ReasonDisallowedExtension}
	}
	return ext, nil
}

// Save validates the upload and copies src to <dir>/<token>.<ext>. On a
// validation failure the error is a *ValidationError.
func (u *Uploader) Save(src io.Reader, filename, model string) (*Record, error) {
	ext, verr := u.Validate(filename, model)
	if verr != nil {
		return nil, verr
	}
	if src == nil {
		return nil, &ValidationError{Reason: ReasonNoFile}
	}

	if err := os.MkdirAll(u.dir, 0755); err != nil {
		return nil, fmt.Errorf("error creating upload directory: %w", err)
	}

	name := u.newToken() + "." + ext
	path := filepath.Join(u.dir, name)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("error creating %s: %w", name, err)
	}

	size, err := io.Copy(file, src)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)

		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, &ValidationError{Reason: ReasonTooLarge}
		}
		return nil, fmt.Errorf("error saving %s: %w", name, err)
	}

	u.logger.Info("Stored upload %q as %s (%d bytes)", filename, name, size)

	return &Record{
		Name:         name,
		Ext:          ext,
		Path:         path,
		OriginalName: filepath.Base(filename),
		Size:         size,
		CreatedAt:    u.now(),
	}, nil
}
