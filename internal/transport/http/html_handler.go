package http

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"

	"cementqa/pkg/contracts"
	api "cementqa/pkg/contracts/api/v1"
)

// dashboardData is the template context of the dashboard page
type dashboardData struct {
	Title   string
	Version string
	Schema  api.SchemaResponse
}

// DashboardHandler renders the single-page dashboard
type DashboardHandler struct {
	tmpl *template.Template
}

// NewDashboardHandler parses page from fsys
func NewDashboardHandler(fsys fs.FS, page string) (*DashboardHandler, error) {
	tmpl, err := template.ParseFS(fsys, page)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dashboard template: %w", err)
	}
	return &DashboardHandler{tmpl: tmpl}, nil
}

func (h *DashboardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	err := h.tmpl.Execute(&buf, dashboardData{
		Title:   "Cement Quality Recorder",
		Version: contracts.Version,
		Schema:  api.NewSchemaResponse(),
	})
	if err != nil {
		http.Error(w, "Error rendering page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = buf.WriteTo(w)
}
