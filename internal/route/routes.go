package route

import (
	"net/http"
	"strings"

	"detectserver/internal/config"
	"detectserver/internal/handler"
	"detectserver/internal/logger"
	"detectserver/internal/metrics"
	"detectserver/internal/middleware"
	"detectserver/internal/repository"
	"detectserver/internal/service"
	"detectserver/internal/service/storage"
	"detectserver/internal/service/websocket"

	"github.com/gorilla/mux"
)

// Services bundles what the handlers need. Metrics, Hub and the repositories
// may be nil.
type Services struct {
	Renderer      *handler.Renderer
	Uploader      *storage.Uploader
	Sweeper       *storage.Sweeper
	Dispatcher    *service.Dispatcher
	Models        []string
	Hub           *websocket.HubService
	Metrics       *metrics.Metrics
	UploadRepo    repository.UploadRepository
	DetectionRepo repository.DetectionRepository
}

// noDirListing hides directory indexes of a file server.
func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SetupRoutes registers pages, static files and API endpoints, and wraps
// the router with recovery and access logging.
func SetupRoutes(cfg *config.Config, logger *logger.Logger, s *Services) http.Handler {
	r := mux.NewRouter()

	// Uploads first so they resolve even when UPLOAD_DIR lives outside STATIC_DIR
	r.PathPrefix(cfg.PublicUploadPrefix).Handler(noDirListing(
		http.StripPrefix(cfg.PublicUploadPrefix, http.FileServer(http.Dir(cfg.UploadDirectory)))))
	r.PathPrefix("/static/").Handler(noDirListing(
		http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDirectory)))))

	// Pages
	r.HandleFunc("/", handler.HomeHandler(s.Renderer, s.Sweeper)).Methods(http.MethodGet)
	r.HandleFunc("/detect", handler.DetectPageHandler(s.Renderer, s.Models)).Methods(http.MethodGet)

	limit := middleware.BodyLimit(cfg.MaxUploadBytes, handler.TooLargeHandler(s.Renderer, s.Models, s.Metrics))
	r.Handle("/detect", limit(handler.DetectHandler(s.Renderer, s.Uploader, s.Dispatcher, s.Models, s.Metrics, logger))).
		Methods(http.MethodPost)

	// API endpoints
	r.HandleFunc("/api/detections", handler.HistoryHandler(cfg, logger, s.UploadRepo, s.DetectionRepo)).Methods(http.MethodGet)
	r.HandleFunc("/api/detections/{name}", handler.HistoryEntryHandler(cfg, logger, s.UploadRepo, s.DetectionRepo)).Methods(http.MethodGet)
	if s.Hub != nil {
		r.HandleFunc("/ws/detections", handler.LiveFeedHandler(s.Hub, logger))
	}
	if s.Metrics != nil {
		r.Handle("/metrics", s.Metrics.Handler()).Methods(http.MethodGet)
	}
	r.HandleFunc("/healthz", handler.HealthHandler(s.Models, s.Hub)).Methods(http.MethodGet)

	if cfg.ExposeLogs {
		r.HandleFunc("/logs/{level}", handler.ShowLogsHandler(cfg)).Methods(http.MethodGet)
	}

	r.NotFoundHandler = handler.NotFoundHandler(s.Renderer)

	// Apply middleware
	withLogging := middleware.AccessLog(logger)(r)
	return middleware.Recover(logger, handler.InternalErrorHandler(s.Renderer))(withLogging)
}
