package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"cementqa/internal/charts"
	"cementqa/internal/dataprocessing"
	"cementqa/internal/infrastructure"
	"cementqa/internal/measurement"
	"cementqa/internal/session"
	"cementqa/internal/validation"
)

// Problem types following RFC 7807
const (
	TypeValidation       = "/errors/validation"
	TypeNotFound         = "/errors/not-found"
	TypeRateLimit        = "/errors/rate-limit"
	TypeInternal         = "/errors/internal"
	TypeTimeout          = "/errors/timeout"
	TypePayloadTooLarge  = "/errors/payload-too-large"
	TypeUnsupportedMedia = "/errors/unsupported-media-type"
	TypeMethod           = "/errors/method-not-allowed"
)

// Domain problem types
const (
	TypeSchemaMismatch   = "/errors/records/schema-mismatch"
	TypeIndexOutOfRange  = "/errors/records/index-out-of-range"
	TypeRecordNotFound   = "/errors/records/not-found"
	TypeSessionNotFound  = "/errors/sessions/not-found"
	TypeTooManySessions  = "/errors/sessions/limit-reached"
	TypeUnknownVariable  = "/errors/charts/unknown-variable"
	TypeNoChartData      = "/errors/charts/no-data"
	TypeInvalidUpload    = "/errors/upload/invalid"
	TypeWebSocketUpgrade = "/errors/websocket/upgrade-failed"
)

// domainProblem maps a sentinel error to its HTTP status, type and title
type domainProblem struct {
	target error
	status int
	typ    string
	title  string
}

var domainProblems = []domainProblem{
	{measurement.ErrSchemaMismatch, http.StatusUnprocessableEntity, TypeSchemaMismatch, "Schema Mismatch"},
	{measurement.ErrIndexOutOfRange, http.StatusNotFound, TypeIndexOutOfRange, "Index Out Of Range"},
	{measurement.ErrRecordNotFound, http.StatusNotFound, TypeRecordNotFound, "Record Not Found"},
	{session.ErrSessionNotFound, http.StatusNotFound, TypeSessionNotFound, "Session Not Found"},
	{session.ErrTooManySessions, http.StatusServiceUnavailable, TypeTooManySessions, "Too Many Sessions"},
	{charts.ErrUnknownVariable, http.StatusBadRequest, TypeUnknownVariable, "Unknown Variable"},
	{charts.ErrNoChartData, http.StatusNotFound, TypeNoChartData, "No Chart Data"},
	{validation.ErrFileTooLarge, http.StatusRequestEntityTooLarge, TypePayloadTooLarge, "Payload Too Large"},
	{validation.ErrNotExcel, http.StatusBadRequest, TypeInvalidUpload, "Invalid Upload"},
	{validation.ErrTemporaryFile, http.StatusBadRequest, TypeInvalidUpload, "Invalid Upload"},
	{validation.ErrEmptyFile, http.StatusBadRequest, TypeInvalidUpload, "Invalid Upload"},
	{validation.ErrCorruptFile, http.StatusBadRequest, TypeInvalidUpload, "Invalid Upload"},
	{dataprocessing.ErrUnreadableWorkbook, http.StatusBadRequest, TypeInvalidUpload, "Invalid Upload"},
}

// ErrorHandler provides centralized error handling
type ErrorHandler struct {
	logger       *slog.Logger
	includeStack bool
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *slog.Logger, includeStack bool) *ErrorHandler {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &ErrorHandler{
		logger:       logger.With(slog.String("component", "error_handler")),
		includeStack: includeStack,
	}
}

// HandleError converts any error to RFC 7807 format and responds
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	problem := h.ErrorToProblem(err, r)
	h.withIDs(problem, r)

	level := slog.LevelWarn
	if problem.Status >= http.StatusInternalServerError {
		level = slog.LevelError
		if h.includeStack {
			problem.WithExtension("stack", getStackTrace())
		}
	}
	h.logger.Log(r.Context(), level, "request failed",
		slog.String("error", err.Error()),
		slog.Int("status", problem.Status),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	WriteProblem(w, problem)
}

// ErrorToProblem converts an error to RFC 7807 Problem Details
func (h *ErrorHandler) ErrorToProblem(err error, r *http.Request) *ProblemDetails {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewProblemDetails(
			http.StatusGatewayTimeout,
			TypeTimeout,
			"Request Timeout",
			"The request took too long to process and was cancelled",
			r.URL.Path,
		)
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return h.apiErrorToProblem(apiErr, r)
	}

	for _, dp := range domainProblems {
		if !errors.Is(err, dp.target) {
			continue
		}
		problem := NewProblemDetails(dp.status, dp.typ, dp.title, err.Error(), r.URL.Path)

		var mismatch *measurement.SchemaMismatchError
		if errors.As(err, &mismatch) {
			problem.WithExtension("schema", mismatch)
		}
		var index *measurement.IndexError
		if errors.As(err, &index) {
			problem.WithExtension("index", index.Index).WithExtension("length", index.Length)
		}
		return problem
	}

	return NewProblemDetails(
		http.StatusInternalServerError,
		TypeInternal,
		"Internal Server Error",
		"An unexpected error occurred while processing your request",
		r.URL.Path,
	)
}

// StatusOf returns the HTTP status err maps to
func StatusOf(err error) int {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return http.StatusGatewayTimeout
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	for _, dp := range domainProblems {
		if errors.Is(err, dp.target) {
			return dp.status
		}
	}
	return http.StatusInternalServerError
}

// codeProblems maps APIError codes to problem types; unlisted codes are
// internal errors.
var codeProblems = map[string]string{
	CodeInvalidRequest:       TypeValidation,
	CodeInvalidJSON:          TypeValidation,
	CodeValidationFailed:     TypeValidation,
	CodeNotFound:             TypeNotFound,
	CodeRateLimitExceeded:    TypeRateLimit,
	CodePayloadTooLarge:      TypePayloadTooLarge,
	CodeMissingContentType:   TypeUnsupportedMedia,
	CodeUnsupportedMediaType: TypeUnsupportedMedia,
	CodeWebSocketUpgrade:     TypeWebSocketUpgrade,
}

func (h *ErrorHandler) apiErrorToProblem(apiErr *APIError, r *http.Request) *ProblemDetails {
	problemType, ok := codeProblems[apiErr.ErrorCode]
	if !ok {
		problemType = TypeInternal
	}

	problem := NewProblemDetails(
		apiErr.StatusCode,
		problemType,
		http.StatusText(apiErr.StatusCode),
		apiErr.Message,
		r.URL.Path,
	).WithExtension("error_code", apiErr.ErrorCode)

	if apiErr.Details != nil {
		problem.WithExtension("details", apiErr.Details)
	}
	return problem
}

// HandlePanic responds with a 500 problem after a recovered panic
func (h *ErrorHandler) HandlePanic(w http.ResponseWriter, r *http.Request, recovered interface{}) {
	h.logger.ErrorContext(r.Context(), "panic recovered",
		slog.Any("panic", recovered),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("stack", string(debug.Stack())),
	)

	problem := NewProblemDetails(
		http.StatusInternalServerError,
		TypeInternal,
		"Internal Server Error",
		"An unexpected error occurred",
		r.URL.Path,
	)
	h.withIDs(problem, r)

	if h.includeStack {
		problem.WithExtension("panic", fmt.Sprintf("%v", recovered))
		problem.WithExtension("stack", getStackTrace())
	}

	WriteProblem(w, problem)
}

// NotFound returns a standard 404 error
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	problem := NewProblemDetails(
		http.StatusNotFound,
		TypeNotFound,
		"Not Found",
		"The requested resource was not found",
		r.URL.Path,
	)
	WriteProblem(w, h.withIDs(problem, r))
}

// MethodNotAllowed returns a standard 405 error
func (h *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	problem := NewProblemDetails(
		http.StatusMethodNotAllowed,
		TypeMethod,
		"Method Not Allowed",
		fmt.Sprintf("Method %s is not allowed for this endpoint", r.Method),
		r.URL.Path,
	)
	WriteProblem(w, h.withIDs(problem, r))
}

// JSON renders v with status through chi/render
func (h *ErrorHandler) JSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

func (h *ErrorHandler) withIDs(problem *ProblemDetails, r *http.Request) *ProblemDetails {
	if reqID := middleware.GetReqID(r.Context()); reqID != "" {
		problem.WithExtension("request_id", reqID)
	}
	if traceID := infrastructure.GetTraceID(r.Context()); traceID != "" {
		problem.WithExtension("trace_id", traceID)
	}
	return problem
}

func getStackTrace() string {
	buf := make([]byte, 1024*8)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
