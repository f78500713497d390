package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"detectserver/internal/config"
	"detectserver/internal/handler"
	"detectserver/internal/logger"
	"detectserver/internal/metrics"
	"detectserver/internal/repository"
	"detectserver/internal/repository/sqlite"
	"detectserver/internal/route"
	"detectserver/internal/service"
	"detectserver/internal/service/ai"
	"detectserver/internal/service/ai/onnx"
	"detectserver/internal/service/ai/opencv"
	"detectserver/internal/service/ai/yolo"
	"detectserver/internal/service/storage"
	"detectserver/internal/service/websocket"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config     *config.Config
	logger     *logger.Logger
	registry   *ai.Registry
	db         *sqlite.DB
	hubService *websocket.HubService
	handler    http.Handler
	onnx       bool
}

// NewApp loads every model and wires the HTTP handlers. Any model that cannot
// be loaded aborts startup.
func NewApp(cfg *config.Config, logger *logger.Logger) (*App, error) {
	a := &App{
		config: cfg,
		logger: logger,
	}

	options := yolo.DefaultOptions()
	options.Confidence = cfg.ConfidenceThreshold
	options.IoU = cfg.IoUThreshold

	var loader ai.Loader
	switch cfg.DetectorBackend {
	case "opencv":
		loader = opencv.Loader(options, logger)
	case "onnx":
		if err := onnx.Initialize(cfg.OnnxLibraryPath); err != nil {
			return nil, err
		}
		a.onnx = true
		loader = onnx.Loader(options, logger)
	default:
		return nil, fmt.Errorf("unknown detector backend %q", cfg.DetectorBackend)
	}

	registry, err := ai.LoadRegistry(cfg.Models, loader, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.registry = registry

	var (
		uploadRepo    repository.UploadRepository
		detectionRepo repository.DetectionRepository
	)
	if cfg.DatabasePath != "" {
		db, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		a.db = db
		uploadRepo = sqlite.NewUploadRepository(db)
		detectionRepo = sqlite.NewDetectionRepository(db)
		logger.Info("Detection history stored in %s", cfg.DatabasePath)
	}

	renderer, err := handler.NewRenderer(cfg.TemplateDirectory, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	m := metrics.New()
	a.hubService = websocket.NewHubService(logger)

	retention := time.Duration(cfg.RetentionSeconds) * time.Second

	a.handler = route.SetupRoutes(cfg, logger, &route.Services{
		Renderer:      renderer,
		Uploader:      storage.NewUploader(cfg.UploadDirectory, registry, logger),
		Sweeper:       storage.NewSweeper(cfg.UploadDirectory, retention, logger, uploadRepo, m),
		Dispatcher:    service.NewDispatcher(registry, cfg, uploadRepo, detectionRepo, a.hubService, m, logger),
		Models:        registry.Names(),
		Hub:           a.hubService,
		Metrics:       m,
		UploadRepo:    uploadRepo,
		DetectionRepo: detectionRepo,
	})

	return a, nil
}

// Run serves HTTP until SIGINT or SIGTERM, then shuts down gracefully.
func (a *App) Run() error {
	defer a.Close()

	go a.hubService.Run()
	defer a.hubService.Stop()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.Port),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Object detection server listening on http://localhost:%d", a.config.Port)
		a.logger.Info("Backend: %s, models: %v", a.config.DetectorBackend, a.registry.Names())
		a.logger.Info("Uploads: %s (kept %ds)", a.config.UploadDirectory, a.config.RetentionSeconds)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// Close releases the models, the database and the onnx runtime.
func (a *App) Close() {
	if a.registry != nil {
		if err := a.registry.Close(); err != nil {
			a.logger.Warning("Error closing models: %v", err)
		}
		a.registry = nil
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warning("Error closing database: %v", err)
		}
		a.db = nil
	}
	if a.onnx {
		if err := onnx.Shutdown(); err != nil {
			a.logger.Warning("Error shutting down onnxruntime: %v", err)
		}
		a.onnx = false
	}
}
