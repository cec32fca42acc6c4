package infrastructure

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// RuntimeStats is a snapshot of the Go runtime
type RuntimeStats struct {
	Goroutines    int       `json:"goroutines"`
	HeapAlloc     uint64    `json:"heap_alloc_bytes"`
	HeapSys       uint64    `json:"heap_sys_bytes"`
	NumGC         uint32    `json:"num_gc"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	Timestamp     time.Time `json:"timestamp"`
}

// ReadRuntimeStats samples the runtime. since is the process start time.
func ReadRuntimeStats(since time.Time) RuntimeStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	now := time.Now()
	return RuntimeStats{
		Goroutines:    runtime.NumGoroutine(),
		HeapAlloc:     m.HeapAlloc,
		HeapSys:       m.HeapSys,
		NumGC:         m.NumGC,
		UptimeSeconds: now.Sub(since).Seconds(),
		Timestamp:     now,
	}
}

// SystemMetrics records runtime gauges on a fixed interval
type SystemMetrics struct {
	goroutines metric.Int64Gauge
	heapAlloc  metric.Int64Gauge
	gcCount    metric.Int64Gauge
	uptime     metric.Float64Gauge

	startTime time.Time
	interval  time.Duration
}

// NewSystemMetrics creates the runtime gauges on meter
func NewSystemMetrics(meter metric.Meter, interval time.Duration) (*SystemMetrics, error) {
	if interval <= 0 {
		interval = 15 * time.Second
	}

	goroutines, err := meter.Int64Gauge(
		"system_goroutines",
		metric.WithDescription("Number of active goroutines"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create goroutines gauge: %w", err)
	}

	heapAlloc, err := meter.Int64Gauge(
		"system_memory_heap_alloc_bytes",
		metric.WithDescription("Heap bytes allocated by the Go runtime"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create heap gauge: %w", err)
	}

	gcCount, err := meter.Int64Gauge(
		"system_gc_count",
		metric.WithDescription("Completed garbage collection cycles"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gc gauge: %w", err)
	}

	uptime, err := meter.Float64Gauge(
		"system_process_uptime_seconds",
		metric.WithDescription("Process uptime in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create uptime gauge: %w", err)
	}

	return &SystemMetrics{
		goroutines: goroutines,
		heapAlloc:  heapAlloc,
		gcCount:    gcCount,
		uptime:     uptime,
		startTime:  time.Now(),
		interval:   interval,
	}, nil
}

// Collect samples the runtime once and records it
func (sm *SystemMetrics) Collect(ctx context.Context) RuntimeStats {
	stats := ReadRuntimeStats(sm.startTime)
	sm.goroutines.Record(ctx, int64(stats.Goroutines))
	sm.heapAlloc.Record(ctx, int64(stats.HeapAlloc))
	sm.gcCount.Record(ctx, int64(stats.NumGC))
	sm.uptime.Record(ctx, stats.UptimeSeconds)
	return stats
}

// Run collects until ctx is cancelled
func (sm *SystemMetrics) Run(ctx context.Context) error {
	ticker := time.NewTicker(sm.interval)
	defer ticker.Stop()

	sm.Collect(ctx)
	for {
		select {
		case <-ticker.C:
			sm.Collect(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}
