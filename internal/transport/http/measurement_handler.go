package http

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "cementqa/internal/errors"
	"cementqa/internal/infrastructure"
	"cementqa/internal/middleware"
	"cementqa/internal/services"
	"cementqa/internal/validation"
	api "cementqa/pkg/contracts/api/v1"
	"cementqa/pkg/contracts/domain"
)

// multipartOverhead is allowed on top of the upload limit for form framing
const multipartOverhead = 1 << 20

const uploadMemory = 8 << 20

// MeasurementHandler serves the session, record, export and chart routes
type MeasurementHandler struct {
	service        MeasurementServiceInterface
	validation     *middleware.ValidationMiddleware
	params         *middleware.QueryParamValidator
	errorHandler   *apierrors.ErrorHandler
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewMeasurementHandler creates the handler. A non-positive maxUploadBytes
// uses validation.DefaultMaxUploadBytes.
func NewMeasurementHandler(service MeasurementServiceInterface, maxUploadBytes int64, errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *MeasurementHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = validation.DefaultMaxUploadBytes
	}
	return &MeasurementHandler{
		service:        service,
		validation:     middleware.NewValidationMiddleware(logger, errorHandler),
		params:         middleware.NewQueryParamValidator(errorHandler),
		errorHandler:   errorHandler,
		maxUploadBytes: maxUploadBytes,
		logger:         infrastructure.WithComponent(logger, "measurement_handler"),
	}
}

// Routes returns the /api/sessions router
func (h *MeasurementHandler) Routes() chi.Router {
	r := chi.NewRouter()
	jsonBody := middleware.ContentTypeValidator(h.errorHandler, "application/json")

	r.Post("/", h.OpenSession)

	r.Route("/{sessionID}", func(r chi.Router) {
		r.Use(middleware.SessionContext)

		r.Delete("/", h.CloseSession)

		r.Route("/records", func(r chi.Router) {
			r.Get("/", h.ListRecords)
			r.With(jsonBody).Post("/", h.AddRecord)
			r.With(jsonBody).Post("/bulk", h.AddBulk)
			r.Delete("/", h.ClearRecords)
			r.Delete("/at/{index}", h.DeleteAt)
			r.Delete("/{recordID}", h.DeleteByID)
		})
		r.With(middleware.ContentTypeValidator(h.errorHandler, "multipart/form-data")).
			Post("/upload", h.Upload)

		r.Get("/statistics", h.Statistics)
		r.Get("/statistics.csv", h.download(services.ExportSummaryCSV))
		r.Get("/export.xlsx", h.download(services.ExportXLSX))
		r.Get("/export.csv", h.download(services.ExportCSV))

		r.Route("/charts", func(r chi.Router) {
			r.Get("/monthly-distribution", h.MonthlyDistribution)
			r.Get("/monthly-distribution.png", h.chartPNG(services.ChartMonthlyDistribution, "variable"))
			r.Get("/setting-time", h.SettingTime)
			r.Get("/setting-time.png", h.chartPNG(services.ChartSettingTime, "overlay"))
			r.Get("/strength-trend", h.StrengthTrend)
			r.Get("/strength-trend.png", h.chartPNG(services.ChartStrengthTrend, ""))
		})
	})
	return r
}

func sessionID(r *http.Request) string {
	return chi.URLParam(r, "sessionID")
}

// OpenSession handles POST /api/sessions
func (h *MeasurementHandler) OpenSession(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.OpenSession(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	w.Header().Set("Location", strings.TrimSuffix(r.URL.Path, "/")+"/"+resp.ID)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, resp)
}

// CloseSession handles DELETE /api/sessions/{sessionID}
func (h *MeasurementHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.service.CloseSession(r.Context(), sessionID(r)); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListRecords handles GET /api/sessions/{sessionID}/records
func (h *MeasurementHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	table, err := h.service.Table(r.Context(), sessionID(r))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, table)
}

// AddRecord handles POST /api/sessions/{sessionID}/records
func (h *MeasurementHandler) AddRecord(w http.ResponseWriter, r *http.Request) {
	var req api.ManualEntryRequest
	if err := h.validation.DecodeJSON(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	rec, err := h.service.AddManual(r.Context(), sessionID(r), req)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, api.NewRecordResponse(rec))
}

// AddBulk handles POST /api/sessions/{sessionID}/records/bulk
func (h *MeasurementHandler) AddBulk(w http.ResponseWriter, r *http.Request) {
	var req api.BulkAppendRequest
	if err := h.validation.DecodeJSON(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	resp, err := h.service.AddBulk(r.Context(), sessionID(r), req.Columns, req.Rows)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, resp)
}

// Upload handles POST /api/sessions/{sessionID}/upload with a multipart
// "file" field holding an xlsx workbook.
func (h *MeasurementHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(uploadMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.errorHandler.HandleError(w, r, fmt.Errorf("%w: limit %d bytes", validation.ErrFileTooLarge, h.maxUploadBytes))
			return
		}
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("file", "a multipart field named file is required"))
		return
	}
	defer file.Close()

	h.logger.DebugContext(r.Context(), "upload received",
		slog.String("file", header.Filename),
		slog.Int64("size", header.Size))

	resp, err := h.service.Upload(r.Context(), sessionID(r), header.Filename, header.Size, file)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, resp)
}

// ClearRecords handles DELETE /api/sessions/{sessionID}/records
func (h *MeasurementHandler) ClearRecords(w http.ResponseWriter, r *http.Request) {
	if _, err := h.service.Clear(r.Context(), sessionID(r)); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAt handles DELETE /api/sessions/{sessionID}/records/at/{index}
func (h *MeasurementHandler) DeleteAt(w http.ResponseWriter, r *http.Request) {
	index, ok := h.params.ParseInt(w, r, "index", chi.URLParam(r, "index"), math.MinInt32, math.MaxInt32)
	if !ok {
		return
	}
	if _, err := h.service.DeleteAt(r.Context(), sessionID(r), index); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteByID handles DELETE /api/sessions/{sessionID}/records/{recordID}
func (h *MeasurementHandler) DeleteByID(w http.ResponseWriter, r *http.Request) {
	if _, err := h.service.DeleteByID(r.Context(), sessionID(r), chi.URLParam(r, "recordID")); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Statistics handles GET /api/sessions/{sessionID}/statistics
func (h *MeasurementHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	desc, err := h.service.Describe(r.Context(), sessionID(r))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, desc)
}

// download serves an export as an attachment. The export is buffered so a
// failure can still be reported as a problem.
func (h *MeasurementHandler) download(format services.ExportFormat) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := h.service.Export(r.Context(), sessionID(r), format, &buf); err != nil {
			h.errorHandler.HandleError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", format.ContentType())
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.FileName()))
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		w.Header().Set("Cache-Control", "no-store")
		_, _ = buf.WriteTo(w)
	}
}

// chartQuery reads and validates the variable query parameter of a chart
func (h *MeasurementHandler) chartQuery(r *http.Request, param string) (string, error) {
	if param == "" {
		return "", nil
	}
	q := api.ChartQuery{Variable: r.URL.Query().Get(param)}
	if err := h.validation.ValidateStruct(&q); err != nil {
		return "", err
	}
	return q.Variable, nil
}

// MonthlyDistribution handles GET .../charts/monthly-distribution?variable=
// The variable defaults to the first X variable.
func (h *MeasurementHandler) MonthlyDistribution(w http.ResponseWriter, r *http.Request) {
	variable, err := h.chartQuery(r, "variable")
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	if variable == "" {
		variable = domain.XVariables()[0]
	}
	dist, err := h.service.MonthlyDistribution(r.Context(), sessionID(r), variable)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, dist)
}

// SettingTime handles GET .../charts/setting-time?overlay=
func (h *MeasurementHandler) SettingTime(w http.ResponseWriter, r *http.Request) {
	overlay, err := h.chartQuery(r, "overlay")
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	trend, err := h.service.SettingTimeOverlay(r.Context(), sessionID(r), overlay)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, trend)
}

// StrengthTrend handles GET .../charts/strength-trend
func (h *MeasurementHandler) StrengthTrend(w http.ResponseWriter, r *http.Request) {
	trend, err := h.service.StrengthTrend(r.Context(), sessionID(r))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, trend)
}

func (h *MeasurementHandler) chartPNG(kind services.ChartKind, param string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		variable, err := h.chartQuery(r, param)
		if err != nil {
			h.errorHandler.HandleError(w, r, err)
			return
		}
		if variable == "" && kind == services.ChartMonthlyDistribution {
			variable = domain.XVariables()[0]
		}

		var buf bytes.Buffer
		if err := h.service.RenderChart(r.Context(), sessionID(r), kind, variable, &buf); err != nil {
			h.errorHandler.HandleError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		w.Header().Set("Cache-Control", "no-store")
		_, _ = buf.WriteTo(w)
	}
}
