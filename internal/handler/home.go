package handler

import (
	"net/http"
	"time"

	"detectserver/internal/service/ai"
	"detectserver/internal/service/storage"
)

// HomeHandler sweeps expired uploads and renders the model comparison table.
func HomeHandler(renderer *Renderer, sweeper *storage.Sweeper) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sweeper.Sweep(time.Now())

		renderer.Render(w, http.StatusOK, PageIndex, &PageData{
			Title:   "Models",
			Flash:   PopFlash(w, r),
			Metrics: ai.MetricsTable(),
		})
	}
}
