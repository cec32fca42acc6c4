package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"cementqa/internal/charts"
	apierrors "cementqa/internal/errors"
	"cementqa/internal/measurement"
	"cementqa/internal/services"
	"cementqa/internal/session"
	"cementqa/internal/shared/testutil"
	api "cementqa/pkg/contracts/api/v1"
	"cementqa/pkg/contracts/domain"
)

// MockMeasurementService is a mock implementation of MeasurementServiceInterface
type MockMeasurementService struct {
	mock.Mock
}

func (m *MockMeasurementService) OpenSession(ctx context.Context) (api.SessionResponse, error) {
	args := m.Called()
	return args.Get(0).(api.SessionResponse), args.Error(1)
}

func (m *MockMeasurementService) CloseSession(ctx context.Context, sessionID string) error {
	return m.Called(sessionID).Error(0)
}

func (m *MockMeasurementService) AddManual(ctx context.Context, sessionID string, req api.ManualEntryRequest) (domain.Record, error) {
	args := m.Called(sessionID, req)
	return args.Get(0).(domain.Record), args.Error(1)
}

func (m *MockMeasurementService) AddBulk(ctx context.Context, sessionID string, columns []string, rows [][]any) (api.AppendedResponse, error) {
	args := m.Called(sessionID, columns, rows)
	return args.Get(0).(api.AppendedResponse), args.Error(1)
}

func (m *MockMeasurementService) Upload(ctx context.Context, sessionID, fileName string, size int64, r io.Reader) (api.AppendedResponse, error) {
	args := m.Called(sessionID, fileName, size)
	return args.Get(0).(api.AppendedResponse), args.Error(1)
}

func (m *MockMeasurementService) DeleteAt(ctx context.Context, sessionID string, index int) (domain.Record, error) {
	args := m.Called(sessionID, index)
	return args.Get(0).(domain.Record), args.Error(1)
}

func (m *MockMeasurementService) DeleteByID(ctx context.Context, sessionID, recordID string) (domain.Record, error) {
	args := m.Called(sessionID, recordID)
	return args.Get(0).(domain.Record), args.Error(1)
}

func (m *MockMeasurementService) Clear(ctx context.Context, sessionID string) (int, error) {
	args := m.Called(sessionID)
	return args.Int(0), args.Error(1)
}

func (m *MockMeasurementService) Table(ctx context.Context, sessionID string) (domain.Table, error) {
	args := m.Called(sessionID)
	return args.Get(0).(domain.Table), args.Error(1)
}

func (m *MockMeasurementService) Describe(ctx context.Context, sessionID string) (domain.Description, error) {
	args := m.Called(sessionID)
	return args.Get(0).(domain.Description), args.Error(1)
}

func (m *MockMeasurementService) Export(ctx context.Context, sessionID string, format services.ExportFormat, w io.Writer) error {
	return m.Called(sessionID, format).Error(0)
}

func (m *MockMeasurementService) MonthlyDistribution(ctx context.Context, sessionID, variable string) (charts.Distribution, error) {
	args := m.Called(sessionID, variable)
	return args.Get(0).(charts.Distribution), args.Error(1)
}

func (m *MockMeasurementService) SettingTimeOverlay(ctx context.Context, sessionID, overlay string) (charts.Trend, error) {
	args := m.Called(sessionID, overlay)
	return args.Get(0).(charts.Trend), args.Error(1)
}

func (m *MockMeasurementService) StrengthTrend(ctx context.Context, sessionID string) (charts.Trend, error) {
	args := m.Called(sessionID)
	return args.Get(0).(charts.Trend), args.Error(1)
}

func (m *MockMeasurementService) RenderChart(ctx context.Context, sessionID string, kind services.ChartKind, variable string, w io.Writer) error {
	return m.Called(sessionID, kind, variable).Error(0)
}

func newRouter(svc MeasurementServiceInterface, maxUpload int64) http.Handler {
	errorHandler := apierrors.NewErrorHandler(nil, false)
	r := chi.NewRouter()
	r.Mount("/api/sessions", NewMeasurementHandler(svc, maxUpload, errorHandler, nil).Routes())
	return r
}

func do(t *testing.T, h http.Handler, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func problemOf(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	assert.Equal(t, apierrors.ProblemContentType, w.Header().Get("Content-Type"))
	var p map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	return p
}

func multipartBody(t *testing.T, field, name string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestMeasurementHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(m *MockMeasurementService)
		method     string
		target     string
		wantStatus int
		wantType   string
	}{
		{
			name: "unknown session",
			setup: func(m *MockMeasurementService) {
				m.On("Table", "s1").Return(domain.Table{}, fmt.Errorf("session s1: %w", session.ErrSessionNotFound))
			},
			method: http.MethodGet, target: "/api/sessions/s1/records",
			wantStatus: http.StatusNotFound, wantType: apierrors.TypeSessionNotFound,
		},
		{
			name: "too many sessions",
			setup: func(m *MockMeasurementService) {
				m.On("OpenSession").Return(api.SessionResponse{}, session.ErrTooManySessions)
			},
			method: http.MethodPost, target: "/api/sessions",
			wantStatus: http.StatusServiceUnavailable, wantType: apierrors.TypeTooManySessions,
		},
		{
			name: "index out of range",
			setup: func(m *MockMeasurementService) {
				m.On("DeleteAt", "s1", -1).Return(domain.Record{}, &measurement.IndexError{Index: -1, Length: 0})
			},
			method: http.MethodDelete, target: "/api/sessions/s1/records/at/-1",
			wantStatus: http.StatusNotFound, wantType: apierrors.TypeIndexOutOfRange,
		},
		{
			name:   "index not a number",
			setup:  func(m *MockMeasurementService) {},
			method: http.MethodDelete, target: "/api/sessions/s1/records/at/first",
			wantStatus: http.StatusBadRequest, wantType: apierrors.TypeValidation,
		},
		{
			name: "record not found",
			setup: func(m *MockMeasurementService) {
				m.On("DeleteByID", "s1", "r9").Return(domain.Record{}, fmt.Errorf("%w: r9", measurement.ErrRecordNotFound))
			},
			method: http.MethodDelete, target: "/api/sessions/s1/records/r9",
			wantStatus: http.StatusNotFound, wantType: apierrors.TypeRecordNotFound,
		},
		{
			name:   "unknown chart variable",
			setup:  func(m *MockMeasurementService) {},
			method: http.MethodGet, target: "/api/sessions/s1/charts/monthly-distribution?variable=Blaine",
			wantStatus: http.StatusBadRequest, wantType: apierrors.TypeValidation,
		},
		{
			name: "no chart data",
			setup: func(m *MockMeasurementService) {
				m.On("StrengthTrend", "s1").Return(charts.Trend{}, charts.ErrNoChartData)
			},
			method: http.MethodGet, target: "/api/sessions/s1/charts/strength-trend",
			wantStatus: http.StatusNotFound, wantType: apierrors.TypeNoChartData,
		},
		{
			name: "chart png no data",
			setup: func(m *MockMeasurementService) {
				m.On("RenderChart", "s1", services.ChartSettingTime, "CaO").Return(charts.ErrNoChartData)
			},
			method: http.MethodGet, target: "/api/sessions/s1/charts/setting-time.png?overlay=CaO",
			wantStatus: http.StatusNotFound, wantType: apierrors.TypeNoChartData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockMeasurementService{}
			tt.setup(svc)

			w := do(t, newRouter(svc, 0), tt.method, tt.target, nil, "")
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantType, problemOf(t, w)["type"])
			svc.AssertExpectations(t)
		})
	}
}

func TestMeasurementHandler_AddRecord(t *testing.T) {
	svc := &MockMeasurementService{}
	rec := domain.Record{ID: "r1", Date: domain.NewDate(2024, 1, 15), Silo: "Silo 3", Researcher: "Dewi"}
	rec.Values[0] = domain.Float(21.5)
	svc.On("AddManual", "s1", mock.MatchedBy(func(req api.ManualEntryRequest) bool {
		return req.Silo == "Silo 3" && req.Values["SiO2"] == "21,5"
	})).Return(rec, nil)

	body := `{"date":"2024-01-15","silo":"Silo 3","researcher":"Dewi","values":{"SiO2":"21,5","Blaine":320}}`
	w := do(t, newRouter(svc, 0), http.MethodPost, "/api/sessions/s1/records", strings.NewReader(body), "application/json")
	require.Equal(t, http.StatusCreated, w.Code)

	var got api.RecordResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "r1", got.ID)
	assert.Equal(t, domain.Float(21.5), got.Values["SiO2"])
	assert.False(t, got.Values["Blaine"].Valid)
	svc.AssertExpectations(t)
}

func TestMeasurementHandler_AddRecord_Invalid(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		want        int
	}{
		{"unknown field", `{"values":{"Kekerasan":1}}`, "application/json", http.StatusBadRequest},
		{"bad date", `{"date":"15-01-2024"}`, "application/json", http.StatusBadRequest},
		{"malformed", `{"silo":`, "application/json", http.StatusBadRequest},
		{"wrong content type", `{}`, "text/plain", http.StatusUnsupportedMediaType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockMeasurementService{}
			w := do(t, newRouter(svc, 0), http.MethodPost, "/api/sessions/s1/records", strings.NewReader(tt.body), tt.contentType)
			assert.Equal(t, tt.want, w.Code)
			svc.AssertNotCalled(t, "AddManual", mock.Anything, mock.Anything)
		})
	}
}

func TestMeasurementHandler_Upload_Validation(t *testing.T) {
	t.Run("missing file field", func(t *testing.T) {
		body, ct := multipartBody(t, "attachment", "lab.xlsx", []byte("PK\x03\x04"))
		w := do(t, newRouter(&MockMeasurementService{}, 0), http.MethodPost, "/api/sessions/s1/upload", body, ct)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("body over limit", func(t *testing.T) {
		body, ct := multipartBody(t, "file", "lab.xlsx", bytes.Repeat([]byte("x"), 3<<20))
		w := do(t, newRouter(&MockMeasurementService{}, 1024), http.MethodPost, "/api/sessions/s1/upload", body, ct)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Equal(t, apierrors.TypePayloadTooLarge, problemOf(t, w)["type"])
	})

	t.Run("json is not an upload", func(t *testing.T) {
		w := do(t, newRouter(&MockMeasurementService{}, 0), http.MethodPost, "/api/sessions/s1/upload", strings.NewReader("{}"), "application/json")
		assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	})
}

func TestMeasurementHandler_Downloads(t *testing.T) {
	tests := []struct {
		target   string
		format   services.ExportFormat
		filename string
	}{
		{"/api/sessions/s1/export.xlsx", services.ExportXLSX, "cement_quality.xlsx"},
		{"/api/sessions/s1/export.csv", services.ExportCSV, "cement_quality.csv"},
		{"/api/sessions/s1/statistics.csv", services.ExportSummaryCSV, "cement_quality_statistics.csv"},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			svc := &MockMeasurementService{}
			svc.On("Export", "s1", tt.format).Return(nil)

			w := do(t, newRouter(svc, 0), http.MethodGet, tt.target, nil, "")
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.format.ContentType(), w.Header().Get("Content-Type"))
			assert.Contains(t, w.Header().Get("Content-Disposition"), tt.filename)
		})
	}
}

func TestMeasurementHandler_ChartDefaults(t *testing.T) {
	svc := &MockMeasurementService{}
	svc.On("MonthlyDistribution", "s1", "SiO2").Return(charts.Distribution{Variable: "SiO2"}, nil)
	svc.On("RenderChart", "s1", services.ChartMonthlyDistribution, "SiO2").Return(nil)
	svc.On("RenderChart", "s1", services.ChartStrengthTrend, "").Return(nil)

	router := newRouter(svc, 0)
	w := do(t, router, http.MethodGet, "/api/sessions/s1/charts/monthly-distribution", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodGet, "/api/sessions/s1/charts/monthly-distribution.png", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	w = do(t, router, http.MethodGet, "/api/sessions/s1/charts/strength-trend.png", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

// End to end against the real service

func newServiceRouter(t *testing.T) (http.Handler, string) {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	svc := services.NewMeasurementService(session.NewManager(session.DefaultOptions(), logger), nil, charts.NewRenderer(320, 200), nil, nil, logger)
	router := newRouter(svc, 0)

	w := do(t, router, http.MethodPost, "/api/sessions", nil, "")
	require.Equal(t, http.StatusCreated, w.Code)
	var resp api.SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "/api/sessions/"+resp.ID, w.Header().Get("Location"))
	return router, resp.ID
}

func rowsOf(t *testing.T, router http.Handler, id string) []domain.Row {
	t.Helper()
	w := do(t, router, http.MethodGet, "/api/sessions/"+id+"/records", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var table struct {
		Columns []string     `json:"columns"`
		Rows    []domain.Row `json:"rows"`
		Count   int          `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &table))
	assert.Equal(t, domain.Schema(), table.Columns)
	assert.Equal(t, len(table.Rows), table.Count)
	return table.Rows
}

func TestEndToEnd_UploadSchemaMismatch(t *testing.T) {
	router, id := newServiceRouter(t)

	body := `{"silo":"Silo 1","values":{"SiO2":"21,5"}}`
	w := do(t, router, http.MethodPost, "/api/sessions/"+id+"/records", strings.NewReader(body), "application/json")
	require.Equal(t, http.StatusCreated, w.Code)

	header := testutil.SchemaHeader()
	header[1], header[2] = header[2], header[1]
	content := testutil.WorkbookBytes(t, header, testutil.MeasurementRow("2024-01-01", "R", "S", 1.0))
	mbody, ct := multipartBody(t, "file", "lab.xlsx", content)

	w = do(t, router, http.MethodPost, "/api/sessions/"+id+"/upload", mbody, ct)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	p := problemOf(t, w)
	assert.Equal(t, apierrors.TypeSchemaMismatch, p["type"])
	assert.Contains(t, p, "schema")

	assert.Len(t, rowsOf(t, router, id), 1)
}

func TestEndToEnd_UploadDeleteStatistics(t *testing.T) {
	router, id := newServiceRouter(t)

	content := testutil.SchemaWorkbook(t,
		testutil.MeasurementRow("2024-01-15", "Silo 1", "Dewi", "21,5"),
		testutil.MeasurementRow("2024-01-20", "Silo 2", "Dewi", 22.5),
		testutil.MeasurementRow("2024-02-03", "Silo 3", "Budi", "bad"),
	)
	mbody, ct := multipartBody(t, "file", "lab.xlsx", content)
	w := do(t, router, http.MethodPost, "/api/sessions/"+id+"/upload", mbody, ct)
	require.Equal(t, http.StatusCreated, w.Code)

	var appended api.AppendedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &appended))
	assert.Equal(t, 3, appended.Appended)

	w = do(t, router, http.MethodGet, "/api/sessions/"+id+"/statistics", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var desc domain.Description
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &desc))
	sio2, ok := desc.Get("SiO2")
	require.True(t, ok)
	assert.Equal(t, 2, sio2.Count)
	assert.Equal(t, domain.Float(22), sio2.Mean)

	w = do(t, router, http.MethodDelete, "/api/sessions/"+id+"/records/at/0", nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, router, http.MethodDelete, "/api/sessions/"+id+"/records/at/5", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	rows := rowsOf(t, router, id)
	require.Len(t, rows, 2)
	w = do(t, router, http.MethodDelete, "/api/sessions/"+id+"/records/"+rows[1].ID, nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Len(t, rowsOf(t, router, id), 1)

	w = do(t, router, http.MethodGet, "/api/sessions/"+id+"/charts/monthly-distribution.png?variable=SiO2", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))

	w = do(t, router, http.MethodGet, "/api/sessions/"+id+"/export.xlsx", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))

	w = do(t, router, http.MethodDelete, "/api/sessions/"+id+"/records", nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, rowsOf(t, router, id))

	w = do(t, router, http.MethodDelete, "/api/sessions/"+id, nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, router, http.MethodGet, "/api/sessions/"+id+"/records", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEndToEnd_BulkAppend(t *testing.T) {
	router, id := newServiceRouter(t)

	columns, err := json.Marshal(domain.Schema())
	require.NoError(t, err)
	body := fmt.Sprintf(`{"columns":%s,"rows":[["2024-03-01","Silo 1","Sari","21,5",5.2],["2024-03-02","Silo 2","Sari",null,"5,0"]]}`, columns)

	w := do(t, router, http.MethodPost, "/api/sessions/"+id+"/records/bulk", strings.NewReader(body), "application/json")
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, router, http.MethodPost, "/api/sessions/"+id+"/records/bulk",
		strings.NewReader(`{"columns":["Tanggal"],"rows":[]}`), "application/json")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Len(t, rowsOf(t, router, id), 2)
}
