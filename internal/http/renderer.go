package httpx

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"
)

// TemplateRenderer renders the layout around one page template.
type TemplateRenderer struct {
	fsys    fs.FS
	devMode bool
	logger  *slog.Logger

	mu    sync.RWMutex
	pages map[string]*template.Template
}

// TemplateRendererConfig holds configuration for creating a TemplateRenderer.
type TemplateRendererConfig struct {
	TemplateFS fs.FS        // layout.tmpl plus pages/*.tmpl (required)
	DevMode    bool         // re-parse templates on every render
	Logger     *slog.Logger // optional
}

// NewTemplateRenderer parses layout.tmpl together with each pages/*.tmpl file.
// Pages are addressed by file name without extension.
func NewTemplateRenderer(cfg TemplateRendererConfig) (*TemplateRenderer, error) {
	if cfg.TemplateFS == nil {
		return nil, errors.New("TemplateFS is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "template_renderer")
	}
	r := &TemplateRenderer{fsys: cfg.TemplateFS, devMode: cfg.DevMode, logger: logger}
	pages, err := r.parse()
	if err != nil {
		logger.Error("template parsing failed", slog.Any("error", err), slog.String("phase", "initialization"))
		return nil, err
	}
	r.pages = pages
	return r, nil
}

func (r *TemplateRenderer) parse() (map[string]*template.Template, error) {
	base, err := template.New("root").Funcs(templateFuncs()).ParseFS(r.fsys, "layout.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	files, err := fs.Glob(r.fsys, "pages/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no page templates found")
	}

	pages := make(map[string]*template.Template, len(files))
	for _, f := range files {
		t, cloneErr := base.Clone()
		if cloneErr != nil {
			return nil, cloneErr
		}
		if _, err = t.ParseFS(r.fsys, f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", f, err)
		}
		pages[strings.TrimSuffix(path.Base(f), ".tmpl")] = t
	}
	return pages, nil
}

// Has reports whether a page template exists.
func (r *TemplateRenderer) Has(page string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.pages[page]
	return ok
}

// Render writes page inside the layout with the given status.
func (r *TemplateRenderer) Render(w http.ResponseWriter, status int, page string, data any) error {
	if r.devMode {
		if pages, err := r.parse(); err != nil {
			r.logger.Warn("template reload failed; keeping previous templates", slog.Any("error", err))
		} else {
			r.mu.Lock()
			r.pages = pages
			r.mu.Unlock()
		}
	}

	r.mu.RLock()
	t, ok := r.pages[page]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		r.logger.Error("template execution failed",
			slog.String("page", page),
			slog.Any("error", err),
		)
		return err
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		r.logger.Debug("failed to write rendered template", slog.String("page", page), slog.Any("error", err))
		return err
	}
	return nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.UTC().Format("2006-01-02 15:04 MST")
		},
		"lower": strings.ToLower,
	}
}
