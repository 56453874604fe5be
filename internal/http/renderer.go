package httpx

import (
	"bytes"
	"errors"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/lci/lci-lookup/internal/domain/model"
)

// TemplateRenderer renders HTML templates for UI responses.
type TemplateRenderer struct {
	mu      sync.RWMutex
	t       *template.Template
	fsys    fs.FS
	devMode bool         // re-parse templates on each render
	logger  *slog.Logger // For logging template errors
}

// TemplateRendererConfig holds configuration for creating a TemplateRenderer.
type TemplateRendererConfig struct {
	TemplateFS fs.FS        // Filesystem containing templates (required)
	DevMode    bool         // Enable hot reloading of templates
	Logger     *slog.Logger // Logger for template errors (optional)
}

// NewTemplateRenderer constructs a renderer by parsing templates from the provided config.
func NewTemplateRenderer(cfg TemplateRendererConfig) (*TemplateRenderer, error) {
	if cfg.TemplateFS == nil {
		return nil, errors.New("TemplateFS is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	t, err := parseTemplates(cfg.TemplateFS)
	if err != nil {
		logger.Error("template parsing failed",
			slog.Any("error", err),
			slog.String("phase", "initialization"),
		)
		return nil, err
	}
	return &TemplateRenderer{t: t, fsys: cfg.TemplateFS, devMode: cfg.DevMode, logger: logger}, nil
}

func parseTemplates(fsys fs.FS) (*template.Template, error) {
	return template.New("root").Funcs(templateFuncs()).ParseFS(fsys, "*.tmpl", "partials/*.tmpl")
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"listLabel": func(l model.RecordList) string {
			if l == model.LongList {
				return "Long list"
			}
			return "Short list"
		},
		"upper": strings.ToUpper,
	}
}

func (r *TemplateRenderer) templates() *template.Template {
	if r.devMode {
		t, err := parseTemplates(r.fsys)
		if err == nil {
			r.mu.Lock()
			r.t = t
			r.mu.Unlock()
			return t
		}
		r.logger.Warn("template reload failed, using previous set", slog.Any("error", err))
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.t
}

// Render executes the "layout" template for data.CurrentPage and writes it with status.
// The page is rendered to a buffer first so a template error never leaves a half-written body.
func (r *TemplateRenderer) Render(w http.ResponseWriter, status int, data PageData) error {
	var buf bytes.Buffer
	if err := r.templates().ExecuteTemplate(&buf, "layout", data); err != nil {
		r.logger.Error("template execution failed",
			slog.String("page", data.CurrentPage),
			slog.Any("error", err),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return err
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		r.logger.Error("failed to write rendered template",
			slog.String("page", data.CurrentPage),
			slog.Any("error", err),
		)
		return err
	}
	return nil
}
