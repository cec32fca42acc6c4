package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "cementqa/internal/errors"
	"cementqa/internal/services"
	"cementqa/internal/session"
	ws "cementqa/internal/websocket"
	"cementqa/pkg/contracts"
	api "cementqa/pkg/contracts/api/v1"
)

type stubHub struct{ clients int }

func (s stubHub) Stats() ws.Stats { return ws.Stats{ActiveClients: s.clients} }

func healthRouter(hs *services.HealthService) http.Handler {
	h := NewHealthHandler(hs, nil)
	r := chi.NewRouter()
	r.Mount("/api/health", h.Routes())
	r.Get("/api/version", h.Version)
	r.Get("/api/schema", Schema)
	return r
}

func TestHealthHandler(t *testing.T) {
	sessions := session.NewManager(session.DefaultOptions(), nil)
	ready := healthRouter(services.NewHealthService(sessions, stubHub{clients: 3}, nil, nil))
	notReady := healthRouter(services.NewHealthService(sessions, nil, nil, nil))

	tests := []struct {
		name       string
		router     http.Handler
		target     string
		wantStatus int
		wantBody   string
	}{
		{"health", ready, "/api/health", http.StatusOK, `"status":"ok"`},
		{"ready", ready, "/api/health/ready", http.StatusOK, `"status":"ready"`},
		{"not ready", notReady, "/api/health/ready", http.StatusServiceUnavailable, `"status":"not_ready"`},
		{"live", ready, "/api/health/live", http.StatusOK, `"goroutines"`},
		{"stats", ready, "/api/health/stats", http.StatusOK, `"open_sessions":0`},
		{"version", ready, "/api/version", http.StatusOK, `"version":"` + contracts.Version + `"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.target, nil))
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}

func TestSchema(t *testing.T) {
	w := httptest.NewRecorder()
	healthRouter(services.NewHealthService(nil, nil, nil, nil)).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/schema", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var schema api.SchemaResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &schema))
	assert.Len(t, schema.Columns, 26)
	assert.Len(t, schema.NumericFields, 23)
	assert.Equal(t, "SiO2", schema.XVariables[0])
	assert.Equal(t, "Na2O", schema.XVariables[len(schema.XVariables)-1])
}

func TestMetricsHandler(t *testing.T) {
	errorHandler := apierrors.NewErrorHandler(nil, false)

	t.Run("disabled", func(t *testing.T) {
		w := httptest.NewRecorder()
		NewMetricsHandler(nil, errorHandler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("delegates", func(t *testing.T) {
		exporter := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("cementqa_sessions_open 1\n"))
		})
		w := httptest.NewRecorder()
		NewMetricsHandler(exporter, errorHandler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "cementqa_sessions_open")
	})
}

func TestDashboardHandler(t *testing.T) {
	fsys := fstest.MapFS{
		"index.html":  {Data: []byte(`<title>{{.Title}} {{.Version}}</title>{{range .Schema.XVariables}}<option>{{.}}</option>{{end}}`)},
		"broken.html": {Data: []byte(`{{.Missing`)},
	}

	h, err := NewDashboardHandler(fsys, "index.html")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/html"))
	assert.Contains(t, w.Body.String(), contracts.Version)
	assert.Contains(t, w.Body.String(), "<option>Al2O3</option>")

	_, err = NewDashboardHandler(fsys, "broken.html")
	assert.Error(t, err)
	_, err = NewDashboardHandler(fsys, "missing.html")
	assert.Error(t, err)
}
