package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cementqa/internal/config"
	"cementqa/internal/shared/testutil"
	api "cementqa/pkg/contracts/api/v1"
	"cementqa/pkg/contracts/events"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Security.RateLimit.Enabled = false
	cfg.Server.ShutdownTimeout = 2 * time.Second
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *Application {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	frontend := fstest.MapFS{
		DashboardPage: {Data: []byte(`<html><title>{{.Title}}</title><body data-version="{{.Version}}"></body></html>`)},
	}
	app, err := New(cfg, logger, frontend)
	require.NoError(t, err)
	return app
}

func TestNew(t *testing.T) {
	app := newTestApp(t, testConfig())

	assert.NotNil(t, app.Router)
	assert.NotNil(t, app.Server)
	assert.NotNil(t, app.Services.Measurement)
	assert.NotNil(t, app.Services.Health)
	assert.Nil(t, app.MQTT)
	assert.Equal(t, []string{"websocket"}, app.Events.Sinks())
	assert.Equal(t, ":8080", app.Server.Addr)
	assert.Equal(t, app.Config.Server.MaxHeaderBytes, app.Server.MaxHeaderBytes)
}

func TestNew_BadDashboardTemplate(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	_, err := New(testConfig(), logger, fstest.MapFS{DashboardPage: {Data: []byte(`{{.Title`)}})
	assert.Error(t, err)
}

func TestRouter(t *testing.T) {
	app := newTestApp(t, testConfig())

	tests := []struct {
		name        string
		method      string
		target      string
		wantStatus  int
		contentType string
	}{
		{"health", http.MethodGet, "/api/health", http.StatusOK, "application/json"},
		{"ready", http.MethodGet, "/api/health/ready", http.StatusOK, "application/json"},
		{"version", http.MethodGet, "/api/version", http.StatusOK, "application/json"},
		{"schema", http.MethodGet, "/api/schema", http.StatusOK, "application/json"},
		{"dashboard", http.MethodGet, "/", http.StatusOK, "text/html"},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK, "text/plain"},
		{"unknown route", http.MethodGet, "/api/nope", http.StatusNotFound, "application/problem+json"},
		{"wrong method", http.MethodPut, "/api/health", http.StatusMethodNotAllowed, "application/problem+json"},
		{"unknown session", http.MethodGet, "/api/sessions/missing/records", http.StatusNotFound, "application/problem+json"},
		{"ws unknown session", http.MethodGet, "/ws?session=missing", http.StatusNotFound, "application/problem+json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			app.Router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.target, nil))
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), tt.contentType),
				"content type %q", w.Header().Get("Content-Type"))
		})
	}
}

func TestRouter_SecurityAndCORSHeaders(t *testing.T) {
	app := newTestApp(t, testConfig())

	req := httptest.NewRequest(http.MethodOptions, "/api/sessions", nil)
	req.Header.Set("Origin", "http://localhost:8080")
	w := httptest.NewRecorder()
	app.Router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:8080", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition")
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRouter_MetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Telemetry.MetricsEnabled = false
	app := newTestApp(t, cfg)

	w := httptest.NewRecorder()
	app.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_RateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RateLimit = config.RateLimitConfig{Enabled: true, RPS: 1, Burst: 1}
	app := newTestApp(t, cfg)

	codes := make([]int, 3)
	for i := range codes {
		w := httptest.NewRecorder()
		app.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
		codes[i] = w.Code
	}
	assert.Equal(t, http.StatusOK, codes[0])
	assert.Contains(t, codes[1:], http.StatusTooManyRequests)
}

func readEvent(t *testing.T, conn *websocket.Conn, want events.Type) events.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var ev events.Event
		require.NoError(t, json.Unmarshal(data, &ev))
		if ev.Type == want {
			return ev
		}
	}
}

func TestServe_EndToEnd(t *testing.T) {
	app := newTestApp(t, testConfig())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	base := "http://" + ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx, ln) }()

	resp, err := http.Post(base+"/api/sessions", "application/json", nil)
	require.NoError(t, err)
	var sess api.SessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sess))
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/ws?session=%s", ln.Addr(), sess.ID), nil)
	require.NoError(t, err)
	defer conn.Close()
	readEvent(t, conn, events.TypeConnection)

	body := bytes.NewBufferString(`{"date":"2024-01-15","silo":"Silo 1","researcher":"Dewi","values":{"SiO2":"21,5"}}`)
	resp, err = http.Post(base+"/api/sessions/"+sess.ID+"/records", "application/json", body)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	ev := readEvent(t, conn, events.TypeRecordsAppended)
	assert.Equal(t, sess.ID, ev.SessionID)
	assert.Equal(t, 1, ev.Count)
	assert.Equal(t, events.SourceManual, ev.Source)

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	var metrics bytes.Buffer
	_, _ = metrics.ReadFrom(resp.Body)
	resp.Body.Close()
	assert.Contains(t, metrics.String(), "cementqa_records_appended_total")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}

	_, err = http.Get(base + "/api/health")
	assert.Error(t, err)
}
