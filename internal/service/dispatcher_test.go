package service

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"detectserver/internal/config"
	"detectserver/internal/dto"
	"detectserver/internal/logger"
	"detectserver/internal/metrics"
	"detectserver/internal/model"
	"detectserver/internal/service/ai/aitest"
	"detectserver/internal/service/storage"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type recordingHub struct {
	mu       sync.Mutex
	messages [][]byte
}

func (h *recordingHub) Broadcast(message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, message)
}

type memoryUploads struct {
	uploads   []model.Upload
	insertErr error
}

func (m *memoryUploads) Insert(u *model.Upload) (int64, error) {
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	u.ID = int64(len(m.uploads) + 1)
	m.uploads = append(m.uploads, *u)
	return u.ID, nil
}

func (m *memoryUploads) GetByFilename(filename string) (*model.Upload, error) { return nil, nil }
func (m *memoryUploads) GetAll(filter *model.UploadFilter) ([]model.Upload, error) {
	return m.uploads, nil
}
func (m *memoryUploads) GetTotalCount(filter *model.UploadFilter) (int, error) {
	return len(m.uploads), nil
}
func (m *memoryUploads) DeleteByFilename(filename string) error { return nil }

type memoryDetections struct {
	rows []model.Detection
}

func (m *memoryDetections) InsertBatch(detections []model.Detection) error {
	m.rows = append(m.rows, detections...)
	return nil
}
func (m *memoryDetections) GetByUploadID(uploadID int64) ([]model.Detection, error) {
	return m.rows, nil
}
func (m *memoryDetections) GetLabelsByUploadID(uploadID int64) ([]string, error) { return nil, nil }

func storedRecord(t *testing.T, name string) *storage.Record {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("pixels"), 0644); err != nil {
		t.Fatal(err)
	}
	return &storage.Record{
		Name:         name,
		Ext:          strings.TrimPrefix(filepath.Ext(name), "."),
		Path:         path,
		OriginalName: "cat.JPG",
		Size:         6,
		CreatedAt:    time.Now(),
	}
}

func testConfig() *config.Config {
	return &config.Config{PublicUploadPrefix: "/static/uploads/"}
}

func TestDispatcherDetect(t *testing.T) {
	cat := dto.DetectionResult{Label: "cat", ClassID: 15, Confidence: 0.91, X: 10, Y: 20, Width: 100, Height: 80}
	v8 := &aitest.FakeCapability{Detections: []dto.DetectionResult{cat}}
	v9 := &aitest.FakeCapability{}
	registry := aitest.NewRegistry(map[string]*aitest.FakeCapability{"YOLOv8": v8, "YOLOv9": v9})

	hub := &recordingHub{}
	uploads := &memoryUploads{}
	detections := &memoryDetections{}
	m := metrics.New()

	d := NewDispatcher(registry, testConfig(), uploads, detections, hub, m, logger.New(t.TempDir()))
	rec := storedRecord(t, "abc.jpg")

	outcome, err := d.Detect(context.Background(), rec, "YOLOv8")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}

	if outcome.ImagePath != "/static/uploads/abc.jpg" {
		t.Errorf("ImagePath = %q", outcome.ImagePath)
	}
	if len(outcome.Detections) != 1 || outcome.Detections[0].Label != "cat" {
		t.Errorf("Detections = %+v", outcome.Detections)
	}

	if got := v8.Paths(); len(got) != 1 || got[0] != rec.Path {
		t.Errorf("YOLOv8 called with %v", got)
	}
	if got := v9.Paths(); len(got) != 0 {
		t.Errorf("YOLOv9 should not run, got %v", got)
	}

	data, _ := os.ReadFile(rec.Path)
	if !strings.HasPrefix(string(data), aitest.AnnotatedMarker) {
		t.Errorf("upload was not overwritten with the annotated image: %q", data)
	}

	if len(uploads.uploads) != 1 || uploads.uploads[0].Model != "YOLOv8" || uploads.uploads[0].Filename != "abc.jpg" {
		t.Errorf("history = %+v", uploads.uploads)
	}
	if len(detections.rows) != 1 || detections.rows[0].UploadID != 1 || detections.rows[0].Label != "cat" {
		t.Errorf("detections = %+v", detections.rows)
	}

	if len(hub.messages) != 1 {
		t.Fatalf("broadcasts = %d", len(hub.messages))
	}
	var event dto.DetectionEvent
	if err := json.Unmarshal(hub.messages[0], &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.Model != "YOLOv8" || event.ImagePath != outcome.ImagePath || len(event.Detections) != 1 {
		t.Errorf("event = %+v", event)
	}

	if got := testutil.ToFloat64(m.DetectionsTotal.WithLabelValues("YOLOv8")); got != 1 {
		t.Errorf("DetectionsTotal = %v", got)
	}
	if got := testutil.ToFloat64(m.ObjectsDetected.WithLabelValues("YOLOv8")); got != 1 {
		t.Errorf("ObjectsDetected = %v", got)
	}
}

func TestDispatcherDetectFailure(t *testing.T) {
	boom := errors.New("inference exploded")
	registry := aitest.NewRegistry(map[string]*aitest.FakeCapability{
		"YOLOv10": {DetectErr: boom},
	})
	hub := &recordingHub{}
	uploads := &memoryUploads{}
	m := metrics.New()

	d := NewDispatcher(registry, testConfig(), uploads, nil, hub, m, logger.New(t.TempDir()))
	rec := storedRecord(t, "x.png")

	_, err := d.Detect(context.Background(), rec, "YOLOv10")

	var derr *DetectionError
	if !errors.As(err, &derr) || derr.Model != "YOLOv10" {
		t.Fatalf("expected DetectionError for YOLOv10, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("error should wrap the inference error")
	}
	if len(hub.messages) != 0 || len(uploads.uploads) != 0 {
		t.Errorf("failed run must not be recorded or broadcast")
	}
	if got := testutil.ToFloat64(m.DetectionErrors.WithLabelValues("YOLOv10")); got != 1 {
		t.Errorf("DetectionErrors = %v", got)
	}
}

func TestDispatcherSaveFailure(t *testing.T) {
	registry := aitest.NewRegistry(map[string]*aitest.FakeCapability{
		"YOLOv11": {SaveErr: errors.New("disk full")},
	})
	d := NewDispatcher(registry, testConfig(), nil, nil, nil, nil, logger.New(t.TempDir()))

	_, err := d.Detect(context.Background(), storedRecord(t, "y.png"), "YOLOv11")
	var derr *DetectionError
	if !errors.As(err, &derr) {
		t.Fatalf("expected DetectionError, got %v", err)
	}
}

func TestDispatcherUnknownModel(t *testing.T) {
	registry := aitest.NewRegistry(nil)
	d := NewDispatcher(registry, testConfig(), nil, nil, nil, nil, logger.New(t.TempDir()))

	_, err := d.Detect(context.Background(), storedRecord(t, "z.png"), "YOLOv5")
	if !errors.Is(err, ErrUnknownModel) {
		t.Errorf("expected ErrUnknownModel, got %v", err)
	}
}

func TestDispatcherHistoryFailureIsNotFatal(t *testing.T) {
	registry := aitest.NewRegistry(nil)
	uploads := &memoryUploads{insertErr: errors.New("database is locked")}
	d := NewDispatcher(registry, testConfig(), uploads, &memoryDetections{}, nil, nil, logger.New(t.TempDir()))

	outcome, err := d.Detect(context.Background(), storedRecord(t, "h.gif"), "YOLOv9")
	if err != nil {
		t.Fatalf("history failure should not fail the run: %v", err)
	}
	if outcome.Detections != nil && len(outcome.Detections) != 0 {
		t.Errorf("Detections = %+v", outcome.Detections)
	}
}
