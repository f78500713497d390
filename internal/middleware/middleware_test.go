package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"detectserver/internal/logger"
)

var tooLarge = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "too large", http.StatusRequestEntityTooLarge)
})

func TestBodyLimitRejectsDeclaredLength(t *testing.T) {
	called := false
	h := BodyLimit(10, tooLarge)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/detect", strings.NewReader(strings.Repeat("x", 11)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d", rec.Code)
	}
	if called {
		t.Error("next handler should not run")
	}
}

func TestBodyLimitWrapsUnknownLength(t *testing.T) {
	var readErr error
	h := BodyLimit(10, tooLarge)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	req := httptest.NewRequest(http.MethodPost, "/detect", strings.NewReader(strings.Repeat("x", 20)))
	req.ContentLength = -1
	h.ServeHTTP(httptest.NewRecorder(), req)

	var maxErr *http.MaxBytesError
	if !errors.As(readErr, &maxErr) {
		t.Errorf("expected MaxBytesError, got %v", readErr)
	}
}

func TestBodyLimitPassesSmallBodies(t *testing.T) {
	var body []byte
	h := BodyLimit(10, tooLarge)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("hello")))
	if string(body) != "hello" {
		t.Errorf("body = %q", body)
	}
}

func TestRecover(t *testing.T) {
	logDir := t.TempDir()
	onPanic := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	h := Recover(logger.New(logDir), onPanic)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
	data, _ := os.ReadFile(filepath.Join(logDir, "error.log"))
	if !strings.Contains(string(data), "boom") {
		t.Errorf("panic not logged: %q", data)
	}
}

func TestAccessLog(t *testing.T) {
	logDir := t.TempDir()
	h := AccessLog(logger.New(logDir))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/pot", nil))

	data, _ := os.ReadFile(filepath.Join(logDir, "info.log"))
	if !strings.Contains(string(data), "GET /pot 418 15B") {
		t.Errorf("access line missing: %q", data)
	}
}
