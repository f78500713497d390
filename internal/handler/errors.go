package handler

import (
	"net/http"

	"detectserver/internal/metrics"
	"detectserver/internal/service/storage"
)

// TooLargeHandler answers oversized uploads with 413 and the upload form.
func TooLargeHandler(renderer *Renderer, models []string, m *metrics.Metrics) http.HandlerFunc {
	verr := &storage.ValidationError{Reason: storage.ReasonTooLarge}

	return func(w http.ResponseWriter, r *http.Request) {
		m.ObserveRejection(verr.Reason.String())
		// the unread body must not be reused for another request
		w.Header().Set("Connection", "close")
		renderer.Render(w, http.StatusRequestEntityTooLarge, PageDetect, &PageData{
			Title:  "Detect",
			Flash:  &Flash{Category: FlashDanger, Message: verr.Message()},
			Models: models,
		})
	}
}

// NotFoundHandler renders the 404 page.
func NotFoundHandler(renderer *Renderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		renderer.Render(w, http.StatusNotFound, PageNotFound, &PageData{Title: "Not found"})
	}
}

// InternalErrorHandler renders the 500 page.
func InternalErrorHandler(renderer *Renderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		renderer.Render(w, http.StatusInternalServerError, PageError, &PageData{Title: "Error"})
	}
}
