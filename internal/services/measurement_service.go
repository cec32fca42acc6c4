package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"cementqa/internal/charts"
	"cementqa/internal/dataprocessing"
	ievents "cementqa/internal/events"
	"cementqa/internal/exporter"
	"cementqa/internal/infrastructure"
	"cementqa/internal/measurement"
	"cementqa/internal/session"
	"cementqa/internal/validation"
	api "cementqa/pkg/contracts/api/v1"
	"cementqa/pkg/contracts/domain"
	"cementqa/pkg/contracts/events"
)

// ExportFormat selects a download
type ExportFormat string

const (
	ExportXLSX       ExportFormat = "xlsx"
	ExportCSV        ExportFormat = "csv"
	ExportSummaryCSV ExportFormat = "summary.csv"
)

// FileName returns the download file name of the format
func (f ExportFormat) FileName() string {
	switch f {
	case ExportXLSX:
		return exporter.WorkbookFileName
	case ExportCSV:
		return exporter.CSVFileName
	case ExportSummaryCSV:
		return exporter.SummaryFileName
	}
	return ""
}

// ContentType returns the media type of the format
func (f ExportFormat) ContentType() string {
	if f == ExportXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// ChartKind names one of the predefined charts
type ChartKind string

const (
	ChartMonthlyDistribution ChartKind = "monthly-distribution"
	ChartSettingTime         ChartKind = "setting-time"
	ChartStrengthTrend       ChartKind = "strength-trend"
)

// MeasurementService coordinates the session stores with the workbook codec,
// charts, metrics and change events.
type MeasurementService struct {
	sessions  *session.Manager
	validator *validation.FileValidator
	renderer  *charts.Renderer
	publisher ievents.Publisher
	metrics   *infrastructure.BusinessMetrics
	logger    *slog.Logger
}

// NewMeasurementService wires the service and registers the session expiry
// hook. publisher and metrics may be nil.
func NewMeasurementService(
	sessions *session.Manager,
	validator *validation.FileValidator,
	renderer *charts.Renderer,
	publisher ievents.Publisher,
	metrics *infrastructure.BusinessMetrics,
	logger *slog.Logger,
) *MeasurementService {
	if validator == nil {
		validator = validation.NewFileValidator(logger, 0)
	}
	if renderer == nil {
		renderer = charts.NewRenderer(0, 0)
	}
	if publisher == nil {
		publisher = ievents.Nop{}
	}
	s := &MeasurementService{
		sessions:  sessions,
		validator: validator,
		renderer:  renderer,
		publisher: publisher,
		metrics:   metrics,
		logger:    infrastructure.WithComponent(logger, "measurement_service"),
	}
	sessions.OnExpire(s.sessionExpired)
	return s
}

func (s *MeasurementService) sessionExpired(id string, records int) {
	ctx := context.Background()
	s.metrics.RecordSessionExpired(ctx)
	ev := events.New(events.TypeSessionExpired, id)
	ev.Count = records
	s.publish(ctx, ev)
}

// publish never fails the calling operation
func (s *MeasurementService) publish(ctx context.Context, ev events.Event) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.DebugContext(ctx, "change event not fully delivered",
			slog.String("event_type", string(ev.Type)),
			slog.String("error", err.Error()))
	}
}

func (s *MeasurementService) store(ctx context.Context, sessionID string) (*measurement.Store, error) {
	st, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	return st, nil
}

func recordIDs(records []domain.Record) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}

// OpenSession starts a session with an empty store
func (s *MeasurementService) OpenSession(ctx context.Context) (api.SessionResponse, error) {
	id, _, err := s.sessions.Open()
	if err != nil {
		s.logger.WarnContext(ctx, "session rejected",
			slog.String("error", err.Error()),
			slog.Int("open_sessions", s.sessions.Len()))
		return api.SessionResponse{}, err
	}
	s.metrics.RecordSessionChange(ctx, 1)
	s.logger.InfoContext(ctx, "session opened", slog.String("session_id", id))

	ev := events.New(events.TypeSessionOpened, id)
	s.publish(ctx, ev)
	return api.SessionResponse{ID: id, CreatedAt: ev.Timestamp}, nil
}

// CloseSession discards a session and its records
func (s *MeasurementService) CloseSession(ctx context.Context, sessionID string) error {
	if err := s.sessions.Close(sessionID); err != nil {
		return fmt.Errorf("session %s: %w", sessionID, err)
	}
	s.metrics.RecordSessionChange(ctx, -1)
	s.logger.InfoContext(ctx, "session closed", slog.String("session_id", sessionID))
	s.publish(ctx, events.New(events.TypeSessionClosed, sessionID))
	return nil
}

// AddManual appends one manually entered record
func (s *MeasurementService) AddManual(ctx context.Context, sessionID string, req api.ManualEntryRequest) (domain.Record, error) {
	st, err := s.store(ctx, sessionID)
	if err != nil {
		return domain.Record{}, err
	}

	var date domain.Date
	if req.Date != "" {
		date = measurement.ParseDate(req.Date)
	}
	rec := st.AppendManual(date, req.Silo, req.Researcher, req.Values)

	s.metrics.RecordAppended(ctx, events.SourceManual, 1)
	s.logger.InfoContext(ctx, "record added",
		slog.String("session_id", sessionID),
		slog.String("record_id", rec.ID),
		slog.String("source", events.SourceManual))

	ev := events.New(events.TypeRecordsAppended, sessionID)
	ev.Count = 1
	ev.RecordIDs = []string{rec.ID}
	ev.Source = events.SourceManual
	s.publish(ctx, ev)
	return rec, nil
}

// AddBulk appends a table of rows whose columns must equal the schema
func (s *MeasurementService) AddBulk(ctx context.Context, sessionID string, columns []string, rows [][]any) (api.AppendedResponse, error) {
	st, err := s.store(ctx, sessionID)
	if err != nil {
		return api.AppendedResponse{}, err
	}
	added, err := st.AppendBulk(columns, rows)
	if err != nil {
		s.logger.WarnContext(ctx, "bulk append rejected",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
		return api.AppendedResponse{}, err
	}
	return s.appended(ctx, sessionID, st, added, events.TypeRecordsAppended, events.SourceBulk, ""), nil
}

// Upload validates an xlsx workbook, parses its first sheet and appends the
// rows. A rejected upload leaves the store unchanged.
func (s *MeasurementService) Upload(ctx context.Context, sessionID, fileName string, size int64, r io.Reader) (api.AppendedResponse, error) {
	st, err := s.store(ctx, sessionID)
	if err != nil {
		return api.AppendedResponse{}, err
	}

	reject := func(err error) (api.AppendedResponse, error) {
		reason := rejectReason(err)
		s.metrics.RecordUploadRejected(ctx, reason)
		infrastructure.RecordError(ctx, err)
		s.logger.WarnContext(ctx, "upload rejected",
			slog.String("session_id", sessionID),
			slog.String("file", fileName),
			slog.String("reason", reason),
			slog.String("error", err.Error()))
		return api.AppendedResponse{}, err
	}

	content, err := s.validator.ValidateUpload(fileName, size, r)
	if err != nil {
		return reject(err)
	}
	wb, err := dataprocessing.ReadWorkbook(content)
	if err != nil {
		return reject(err)
	}
	infrastructure.AddSpanEvent(ctx, "workbook parsed",
		attribute.String("sheet", wb.Sheet),
		attribute.Int("rows", len(wb.Rows)),
		attribute.Int("blank_rows", wb.BlankRows))

	added, err := st.AppendBulk(wb.Columns, wb.Rows)
	if err != nil {
		return reject(err)
	}
	return s.appended(ctx, sessionID, st, added, events.TypeUploadAccepted, events.SourceUpload, fileName), nil
}

func (s *MeasurementService) appended(ctx context.Context, sessionID string, st *measurement.Store, added []domain.Record, typ events.Type, source, fileName string) api.AppendedResponse {
	ids := recordIDs(added)
	total := st.Len()

	s.metrics.RecordAppended(ctx, source, len(added))
	s.logger.InfoContext(ctx, "records appended",
		slog.String("session_id", sessionID),
		slog.String("source", source),
		slog.Int("appended", len(added)),
		slog.Int("total", total))

	ev := events.New(typ, sessionID)
	ev.Count = len(added)
	ev.RecordIDs = ids
	ev.Source = source
	ev.FileName = fileName
	s.publish(ctx, ev)

	return api.AppendedResponse{Appended: len(added), IDs: ids, Total: total}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, validation.ErrFileTooLarge):
		return "too_large"
	case errors.Is(err, validation.ErrNotExcel), errors.Is(err, validation.ErrTemporaryFile):
		return "not_xlsx"
	case errors.Is(err, validation.ErrEmptyFile):
		return "empty"
	case errors.Is(err, validation.ErrCorruptFile), errors.Is(err, dataprocessing.ErrUnreadableWorkbook):
		return "unreadable"
	case errors.Is(err, measurement.ErrSchemaMismatch):
		return "schema_mismatch"
	default:
		return "error"
	}
}

// DeleteAt removes the record at a zero-based position
func (s *MeasurementService) DeleteAt(ctx context.Context, sessionID string, index int) (domain.Record, error) {
	st, err := s.store(ctx, sessionID)
	if err != nil {
		return domain.Record{}, err
	}
	rec, err := st.DeleteAt(index)
	if err != nil {
		return domain.Record{}, err
	}
	s.deleted(ctx, sessionID, rec)
	return rec, nil
}

// DeleteByID removes the record with recordID
func (s *MeasurementService) DeleteByID(ctx context.Context, sessionID, recordID string) (domain.Record, error) {
	st, err := s.store(ctx, sessionID)
	if err != nil {
		return domain.Record{}, err
	}
	rec, err := st.Delete(recordID)
	if err != nil {
		return domain.Record{}, err
	}
	s.deleted(ctx, sessionID, rec)
	return rec, nil
}

func (s *MeasurementService) deleted(ctx context.Context, sessionID string, rec domain.Record) {
	s.metrics.RecordDeleted(ctx, 1)
	s.logger.InfoContext(ctx, "record deleted",
		slog.String("session_id", sessionID),
		slog.String("record_id", rec.ID))

	ev := events.New(events.TypeRecordsDeleted, sessionID)
	ev.Count = 1
	ev.RecordIDs = []string{rec.ID}
	s.publish(ctx, ev)
}

// Clear removes every record of the session and returns how many were dropped
func (s *MeasurementService) Clear(ctx context.Context, sessionID string) (int, error) {
	st, err := s.store(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	n := st.Reset()
	s.metrics.RecordDeleted(ctx, n)
	s.logger.InfoContext(ctx, "records cleared",
		slog.String("session_id", sessionID),
		slog.Int("removed", n))

	ev := events.New(events.TypeRecordsCleared, sessionID)
	ev.Count = n
	s.publish(ctx, ev)
	return n, nil
}

// Table returns the current records in store order
func (s *MeasurementService) Table(ctx context.Context, sessionID string) (domain.Table, error) {
	st, err := s.store(ctx, sessionID)
	if err != nil {
		return domain.Table{}, err
	}
	return st.Table(), nil
}

// Describe returns the descriptive statistics of every numeric field
func (s *MeasurementService) Describe(ctx context.Context, sessionID string) (domain.Description, error) {
	st, err := s.store(ctx, sessionID)
	if err != nil {
		return domain.Description{}, err
	}
	return st.Describe(), nil
}

// Export writes the session in format to w
func (s *MeasurementService) Export(ctx context.Context, sessionID string, format ExportFormat, w io.Writer) error {
	st, err := s.store(ctx, sessionID)
	if err != nil {
		return err
	}

	switch format {
	case ExportXLSX:
		err = exporter.WriteWorkbook(w, st.Table())
	case ExportCSV:
		err = exporter.WriteCSV(w, st.Table())
	case ExportSummaryCSV:
		err = exporter.WriteSummaryCSV(w, st.Describe())
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedExport, format)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "export failed",
			slog.String("session_id", sessionID),
			slog.String("format", string(format)),
			slog.String("error", err.Error()))
		return fmt.Errorf("export %s: %w", format, err)
	}
	s.metrics.RecordExport(ctx, string(format))
	return nil
}

// MonthlyDistribution returns the per-month distribution of variable
func (s *MeasurementService) MonthlyDistribution(ctx context.Context, sessionID, variable string) (charts.Distribution, error) {
	table, err := s.Table(ctx, sessionID)
	if err != nil {
		return charts.Distribution{}, err
	}
	d, err := charts.MonthlyDistribution(table, variable)
	if err == nil {
		s.metrics.RecordChart(ctx, string(ChartMonthlyDistribution), "json")
	}
	return d, err
}

// SettingTimeOverlay returns the setting time series with overlay on the
// secondary axis
func (s *MeasurementService) SettingTimeOverlay(ctx context.Context, sessionID, overlay string) (charts.Trend, error) {
	table, err := s.Table(ctx, sessionID)
	if err != nil {
		return charts.Trend{}, err
	}
	t, err := charts.SettingTimeOverlay(table, overlay)
	if err == nil {
		s.metrics.RecordChart(ctx, string(ChartSettingTime), "json")
	}
	return t, err
}

// StrengthTrend returns the compressive strength series
func (s *MeasurementService) StrengthTrend(ctx context.Context, sessionID string) (charts.Trend, error) {
	table, err := s.Table(ctx, sessionID)
	if err != nil {
		return charts.Trend{}, err
	}
	t, err := charts.StrengthTrend(table)
	if err == nil {
		s.metrics.RecordChart(ctx, string(ChartStrengthTrend), "json")
	}
	return t, err
}

// RenderChart draws chart kind as PNG to w. variable selects the X variable
// of the distribution and the overlay of the setting time chart.
func (s *MeasurementService) RenderChart(ctx context.Context, sessionID string, kind ChartKind, variable string, w io.Writer) error {
	table, err := s.Table(ctx, sessionID)
	if err != nil {
		return err
	}

	switch kind {
	case ChartMonthlyDistribution:
		var d charts.Distribution
		if d, err = charts.MonthlyDistribution(table, variable); err == nil {
			err = s.renderer.Distribution(w, d)
		}
	case ChartSettingTime:
		var t charts.Trend
		if t, err = charts.SettingTimeOverlay(table, variable); err == nil {
			err = s.renderer.Trend(w, t)
		}
	case ChartStrengthTrend:
		var t charts.Trend
		if t, err = charts.StrengthTrend(table); err == nil {
			err = s.renderer.Trend(w, t)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownChart, kind)
	}
	if err != nil {
		return err
	}
	s.metrics.RecordChart(ctx, string(kind), "png")
	return nil
}
