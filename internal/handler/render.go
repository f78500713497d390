package handler

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"

	"detectserver/internal/dto"
	"detectserver/internal/logger"
	"detectserver/internal/service/ai"
	"detectserver/web"
)

// Page names understood by Renderer.
const (
	PageIndex    = "index"
	PageDetect   = "detect"
	PageNotFound = "404"
	PageError    = "500"
)

var pages = []string{PageIndex, PageDetect, PageNotFound, PageError}

// PageData is passed to every template.
type PageData struct {
	Title        string
	Flash        *Flash
	Metrics      []ai.MetricsRow
	Models       []string
	Model        string
	ModelMetrics *ai.ModelMetrics
	ImagePath    string
	Detections   []dto.DetectionResult
}

// Renderer executes the page templates inside the shared layout.
type Renderer struct {
	templates map[string]*template.Template
	logger    *logger.Logger
}

// NewRenderer parses the templates from dir, or from the embedded set when
// dir is empty.
func NewRenderer(dir string, logger *logger.Logger) (*Renderer, error) {
	var fsys fs.FS
	if dir != "" {
		fsys = os.DirFS(dir)
	} else {
		sub, err := fs.Sub(web.Templates, "templates")
		if err != nil {
			return nil, err
		}
		fsys = sub
	}

	r := &Renderer{
		templates: make(map[string]*template.Template, len(pages)),
		logger:    logger,
	}
	for _, page := range pages {
		tmpl, err := template.ParseFS(fsys, "layout.html", page+".html")
		if err != nil {
			return nil, fmt.Errorf("error parsing template %s: %w", page, err)
		}
		r.templates[page] = tmpl
	}
	return r, nil
}

// Render writes page with the given status code.
func (r *Renderer) Render(w http.ResponseWriter, status int, page string, data *PageData) {
	tmpl, ok := r.templates[page]
	if !ok {
		r.logger.Error("Unknown template %s", page)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		r.logger.Error("Error rendering %s: %v", page, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
