package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"detectserver/internal/config"
	"detectserver/internal/dto"
	"detectserver/internal/logger"
	"detectserver/internal/model"
	"detectserver/internal/repository"

	"github.com/gorilla/mux"
)

const (
	defaultHistoryLimit = 24
	maxHistoryLimit     = 100
)

// HistoryHandler returns recent detection runs as JSON. Query parameters:
// limit, offset, model, since (RFC 3339). With no repository configured the
// list is always empty.
func HistoryHandler(cfg *config.Config, logger *logger.Logger,
	uploadRepo repository.UploadRepository, detectionRepo repository.DetectionRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit := atoiDefault(q.Get("limit"), defaultHistoryLimit)
		if limit > maxHistoryLimit {
			limit = maxHistoryLimit
		}

		filter := &model.UploadFilter{
			Model:  q.Get("model"),
			Since:  parseSince(q.Get("since")),
			Limit:  limit,
			Offset: atoiDefault(q.Get("offset"), 0),
		}

		data := dto.UploadsData{
			Uploads: []dto.UploadInfo{},
			Limit:   limit,
		}

		if uploadRepo != nil {
			uploads, err := uploadRepo.GetAll(filter)
			if err != nil {
				logger.Error("Error querying uploads from database: %v", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			totalCount, err := uploadRepo.GetTotalCount(filter)
			if err != nil {
				logger.Error("Error counting uploads: %v", err)
				totalCount = len(uploads)
			}
			data.Length = totalCount

			for _, upload := range uploads {
				data.Uploads = append(data.Uploads, uploadInfo(cfg, logger, detectionRepo, upload))
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(data); err != nil {
			logger.Error("Error encoding JSON response: %v", err)
		}
	}
}

// HistoryEntryHandler returns one detection run, looked up by its stored
// filename, with its boxes.
func HistoryEntryHandler(cfg *config.Config, logger *logger.Logger,
	uploadRepo repository.UploadRepository, detectionRepo repository.DetectionRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if uploadRepo == nil {
			http.NotFound(w, r)
			return
		}

		name := mux.Vars(r)["name"]
		upload, err := uploadRepo.GetByFilename(name)
		if err != nil {
			logger.Error("Error querying upload %s: %v", name, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if upload == nil {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(uploadInfo(cfg, logger, detectionRepo, *upload)); err != nil {
			logger.Error("Error encoding JSON response: %v", err)
		}
	}
}

// uploadInfo builds the API view of upload. Lookup failures leave the
// objects and boxes empty.
func uploadInfo(cfg *config.Config, logger *logger.Logger, detectionRepo repository.DetectionRepository, upload model.Upload) dto.UploadInfo {
	info := dto.UploadInfo{
		Name:       upload.Filename,
		URL:        cfg.PublicUploadPrefix + upload.Filename,
		Model:      upload.Model,
		CreatedAt:  upload.CreatedAt,
		Objects:    []string{},
		Detections: []dto.DetectionResult{},
	}
	if detectionRepo == nil {
		return info
	}

	labels, err := detectionRepo.GetLabelsByUploadID(upload.ID)
	if err != nil {
		logger.Error("Error getting objects for upload %d: %v", upload.ID, err)
	} else if labels != nil {
		info.Objects = labels
	}

	detections, err := detectionRepo.GetByUploadID(upload.ID)
	if err != nil {
		logger.Error("Error getting boxes for upload %d: %v", upload.ID, err)
		return info
	}
	for _, d := range detections {
		info.Detections = append(info.Detections, dto.DetectionResult{
			Label:      d.Label,
			ClassID:    d.ClassID,
			Confidence: d.Confidence,
			X:          d.X,
			Y:          d.Y,
			Width:      d.Width,
			Height:     d.Height,
		})
	}
	return info
}

// atoiDefault converts string to int or returns a default when conversion fails or value <= 0.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}

// parseSince parses an RFC 3339 timestamp; invalid input means no lower bound.
func parseSince(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
