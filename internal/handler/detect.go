package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"detectserver/internal/logger"
	"detectserver/internal/metrics"
	"detectserver/internal/service"
	"detectserver/internal/service/ai"
	"detectserver/internal/service/storage"
)

// multipartMemory is the part of a multipart body kept in memory; the rest
// spills to temporary files.
const multipartMemory = 8 << 20

// DetectPageHandler renders the empty upload form and any pending flash.
func DetectPageHandler(renderer *Renderer, models []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		renderer.Render(w, http.StatusOK, PageDetect, &PageData{
			Title:  "Detect",
			Flash:  PopFlash(w, r),
			Models: models,
		})
	}
}

// DetectHandler stores the uploaded image, runs the selected model on it and
// renders the annotated result.
func DetectHandler(renderer *Renderer, uploader *storage.Uploader, dispatcher *service.Dispatcher,
	models []string, m *metrics.Metrics, logger *logger.Logger) http.HandlerFunc {
	tooLarge := TooLargeHandler(renderer, models, m)

	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) || errors.Is(err, multipart.ErrMessageTooLarge) {
				tooLarge(w, r)
				return
			}
			if !errors.Is(err, http.ErrNotMultipart) && !errors.Is(err, http.ErrMissingBoundary) {
				logger.Warning("Error parsing upload form: %v", err)
			}
		}
		if r.MultipartForm != nil {
			defer r.MultipartForm.RemoveAll()
		}

		modelName := r.PostFormValue("model")

		var (
			src      io.Reader
			filename string
		)
		file, header, err := r.FormFile("image")
		switch {
		case err == nil:
			defer file.Close()
			src, filename = file, header.Filename
		case errors.Is(err, multipart.ErrMessageTooLarge):
			tooLarge(w, r)
			return
		case !errors.Is(err, http.ErrMissingFile):
			logger.Warning("Error reading uploaded file: %v", err)
		}

		record, err := uploader.Save(src, filename, modelName)
		if err != nil {
			var verr *storage.ValidationError
			if errors.As(err, &verr) {
				if verr.Reason == storage.ReasonTooLarge {
					tooLarge(w, r)
					return
				}
				m.ObserveRejection(verr.Reason.String())
				logger.Info("Upload rejected: %s", verr.Reason)
				redirectWithFlash(w, r, "/detect", Flash{Category: FlashDanger, Message: verr.Message()})
				return
			}

			logger.Error("Error storing upload: %v", err)
			redirectWithFlash(w, r, "/detect", Flash{Category: FlashDanger, Message: "Upload failed, please try again"})
			return
		}
		m.ObserveUpload(modelName)

		outcome, err := dispatcher.Detect(r.Context(), record, modelName)
		if err != nil {
			message := err.Error()
			var derr *service.DetectionError
			if errors.As(err, &derr) {
				message = derr.Err.Error()
			}
			redirectWithFlash(w, r, "/detect", Flash{
				Category: FlashDanger,
				Message:  "Detection error: " + message,
			})
			return
		}

		flash := &Flash{
			Category: FlashSuccess,
			Message:  fmt.Sprintf("Detection completed with %s: %d object(s) found", outcome.Model, len(outcome.Detections)),
		}
		if len(outcome.Detections) == 0 {
			flash.Category = FlashWarning
		}

		var figures *ai.ModelMetrics
		if mm, ok := ai.MetricsFor(outcome.Model); ok {
			figures = &mm
		}

		renderer.Render(w, http.StatusOK, PageDetect, &PageData{
			Title:        "Detect",
			Flash:        flash,
			Models:       models,
			Model:        outcome.Model,
			ModelMetrics: figures,
			ImagePath:    outcome.ImagePath,
			Detections:   outcome.Detections,
		})
	}
}
