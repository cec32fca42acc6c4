package http

import (
	"context"
	"io"

	"cementqa/internal/charts"
	"cementqa/internal/services"
	api "cementqa/pkg/contracts/api/v1"
	"cementqa/pkg/contracts/domain"
)

// MeasurementServiceInterface defines the operations the measurement
// handlers need
type MeasurementServiceInterface interface {
	OpenSession(ctx context.Context) (api.SessionResponse, error)
	CloseSession(ctx context.Context, sessionID string) error

	AddManual(ctx context.Context, sessionID string, req api.ManualEntryRequest) (domain.Record, error)
	AddBulk(ctx context.Context, sessionID string, columns []string, rows [][]any) (api.AppendedResponse, error)
	Upload(ctx context.Context, sessionID, fileName string, size int64, r io.Reader) (api.AppendedResponse, error)
	DeleteAt(ctx context.Context, sessionID string, index int) (domain.Record, error)
	DeleteByID(ctx context.Context, sessionID, recordID string) (domain.Record, error)
	Clear(ctx context.Context, sessionID string) (int, error)

	Table(ctx context.Context, sessionID string) (domain.Table, error)
	Describe(ctx context.Context, sessionID string) (domain.Description, error)
	Export(ctx context.Context, sessionID string, format services.ExportFormat, w io.Writer) error

	MonthlyDistribution(ctx context.Context, sessionID, variable string) (charts.Distribution, error)
	SettingTimeOverlay(ctx context.Context, sessionID, overlay string) (charts.Trend, error)
	StrengthTrend(ctx context.Context, sessionID string) (charts.Trend, error)
	RenderChart(ctx context.Context, sessionID string, kind services.ChartKind, variable string, w io.Writer) error
}

var _ MeasurementServiceInterface = (*services.MeasurementService)(nil)
