package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"detectserver/internal/config"
	"detectserver/internal/dto"
	"detectserver/internal/logger"
	"detectserver/internal/model"
	"detectserver/internal/service/websocket"

	"github.com/gorilla/mux"
)

func TestFlashRoundTrip(t *testing.T) {
	rec := httptest.NewRecorder()
	SetFlash(rec, Flash{Category: FlashDanger, Message: "File type not allowed"})

	req := httptest.NewRequest(http.MethodGet, "/detect", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}

	clear := httptest.NewRecorder()
	f := PopFlash(clear, req)
	if f == nil || f.Category != FlashDanger || f.Message != "File type not allowed" {
		t.Fatalf("flash = %+v", f)
	}

	cookies := clear.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Errorf("flash cookie should be cleared, got %+v", cookies)
	}
}

func TestPopFlashIgnoresGarbage(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: flashCookie, Value: "%%%"})

	if f := PopFlash(httptest.NewRecorder(), req); f != nil {
		t.Errorf("expected no flash, got %+v", f)
	}
	if f := PopFlash(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil)); f != nil {
		t.Errorf("expected no flash without cookie, got %+v", f)
	}
}

func TestRendererEmbedded(t *testing.T) {
	r, err := NewRenderer("", logger.New(t.TempDir()))
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}

	rec := httptest.NewRecorder()
	r.Render(rec, http.StatusOK, PageDetect, &PageData{
		Title:  "Detect",
		Models: []string{"YOLOv8", "YOLOv9"},
		Model:  "YOLOv9",
		Flash:  &Flash{Category: FlashSuccess, Message: "<done>"},
	})

	body := rec.Body.String()
	if !strings.Contains(body, `<option value="YOLOv9" selected>`) {
		t.Errorf("selected model not marked:\n%s", body)
	}
	if !strings.Contains(body, "&lt;done&gt;") {
		t.Error("flash message should be escaped")
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestRendererOverrideDirectory(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"layout.html": `{{define "layout"}}custom {{template "content" .}}{{end}}`,
		"index.html":  `{{define "content"}}index{{end}}`,
		"detect.html": `{{define "content"}}detect{{end}}`,
		"404.html":    `{{define "content"}}missing{{end}}`,
		"500.html":    `{{define "content"}}broken{{end}}`,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	r, err := NewRenderer(dir, logger.New(t.TempDir()))
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}

	rec := httptest.NewRecorder()
	r.Render(rec, http.StatusNotFound, PageNotFound, &PageData{})
	if rec.Code != http.StatusNotFound || rec.Body.String() != "custom missing" {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestRendererMissingTemplate(t *testing.T) {
	if _, err := NewRenderer(t.TempDir(), logger.New(t.TempDir())); err == nil {
		t.Error("expected an error for a directory without templates")
	}
}

type stubUploads struct {
	uploads []model.Upload
	filter  *model.UploadFilter
}

func (s *stubUploads) Insert(u *model.Upload) (int64, error) { return 0, nil }
func (s *stubUploads) GetByFilename(name string) (*model.Upload, error) {
	for i := range s.uploads {
		if s.uploads[i].Filename == name {
			return &s.uploads[i], nil
		}
	}
	return nil, nil
}
func (s *stubUploads) DeleteByFilename(string) error                    { return nil }
func (s *stubUploads) GetTotalCount(f *model.UploadFilter) (int, error) { return 42, nil }
func (s *stubUploads) GetAll(f *model.UploadFilter) ([]model.Upload, error) {
	s.filter = f
	return s.uploads, nil
}

type stubDetections struct{}

func (stubDetections) InsertBatch([]model.Detection) error { return nil }
func (stubDetections) GetByUploadID(id int64) ([]model.Detection, error) {
	return []model.Detection{
		{UploadID: id, Label: "cat", ClassID: 15, Confidence: 0.91, X: 1, Y: 2, Width: 30, Height: 40},
		{UploadID: id, Label: "dog", ClassID: 16, Confidence: 0.55, X: 50, Y: 60, Width: 20, Height: 10},
	}, nil
}
func (stubDetections) GetLabelsByUploadID(id int64) ([]string, error) {
	return []string{"cat", "dog"}, nil
}

func TestHistoryHandler(t *testing.T) {
	created := time.Date(2025, 3, 4, 15, 6, 7, 0, time.UTC)
	uploads := &stubUploads{uploads: []model.Upload{
		{ID: 1, Filename: "abc.jpg", Model: "YOLOv8", CreatedAt: created},
	}}
	cfg := &config.Config{PublicUploadPrefix: "/static/uploads/"}
	h := HistoryHandler(cfg, logger.New(t.TempDir()), uploads, stubDetections{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/detections?limit=500&model=YOLOv8&since=2025-01-01T00:00:00Z", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if uploads.filter.Limit != maxHistoryLimit || uploads.filter.Model != "YOLOv8" || uploads.filter.Since.IsZero() {
		t.Errorf("filter = %+v", uploads.filter)
	}

	var raw struct {
		Uploads []map[string]interface{} `json:"uploads"`
		Length  int                      `json:"length"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if raw.Length != 42 || len(raw.Uploads) != 1 {
		t.Fatalf("response = %+v", raw)
	}
	got := raw.Uploads[0]
	if got["url"] != "/static/uploads/abc.jpg" || got["createdAt"] != "04-03-2025 15:06:07" {
		t.Errorf("upload = %+v", got)
	}
	if objects, _ := got["objects"].([]interface{}); len(objects) != 2 {
		t.Errorf("objects = %v", got["objects"])
	}
	if boxes, _ := got["detections"].([]interface{}); len(boxes) != 2 {
		t.Errorf("detections = %v", got["detections"])
	}
}

func TestHistoryEntryHandler(t *testing.T) {
	uploads := &stubUploads{uploads: []model.Upload{
		{ID: 7, Filename: "abc.jpg", Model: "YOLOv11", CreatedAt: time.Now()},
	}}
	cfg := &config.Config{PublicUploadPrefix: "/static/uploads/"}
	h := HistoryEntryHandler(cfg, logger.New(t.TempDir()), uploads, stubDetections{})

	get := func(name string) *httptest.ResponseRecorder {
		req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/detections/"+name, nil), map[string]string{"name": name})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := get("abc.jpg")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var info struct {
		Model      string                `json:"model"`
		Detections []dto.DetectionResult `json:"detections"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Model != "YOLOv11" || len(info.Detections) != 2 {
		t.Fatalf("entry = %+v", info)
	}
	if d := info.Detections[0]; d.Label != "cat" || d.Width != 30 || d.Confidence != 0.91 {
		t.Errorf("box = %+v", d)
	}

	if rec := get("missing.jpg"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown upload status = %d", rec.Code)
	}
}

func TestHistoryEntryHandlerWithoutDatabase(t *testing.T) {
	h := HistoryEntryHandler(&config.Config{}, logger.New(t.TempDir()), nil, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/detections/abc.jpg", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestHealthHandlerCountsViewers(t *testing.T) {
	hub := websocket.NewHubService(logger.New(t.TempDir()))

	rec := httptest.NewRecorder()
	HealthHandler([]string{"YOLOv8"}, hub).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["viewers"] != float64(0) {
		t.Errorf("healthz = %v", body)
	}

	rec = httptest.NewRecorder()
	HealthHandler([]string{"YOLOv8"}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if strings.Contains(rec.Body.String(), "viewers") {
		t.Errorf("viewers reported without a live feed: %s", rec.Body.String())
	}
}

func TestAtoiDefault(t *testing.T) {
	tests := map[string]int{"": 24, "abc": 24, "-3": 24, "0": 24, "7": 7}
	for in, want := range tests {
		if got := atoiDefault(in, 24); got != want {
			t.Errorf("atoiDefault(%q) = %d, want %d", in, got, want)
		}
	}
}
