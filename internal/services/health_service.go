package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"cementqa/internal/infrastructure"
	"cementqa/internal/session"
	ws "cementqa/internal/websocket"
	"cementqa/pkg/contracts"
)

// Health states
const (
	StatusOK       = "ok"
	StatusReady    = "ready"
	StatusNotReady = "not_ready"
	StatusAlive    = "alive"
	StatusDisabled = "disabled"
)

// HubStatus is the part of the WebSocket hub health reads
type HubStatus interface {
	Stats() ws.Stats
}

// BreakerStatus reports the circuit state of the MQTT publisher
type BreakerStatus interface {
	State() gobreaker.State
}

// HealthService provides health check functionality
type HealthService struct {
	sessions  *session.Manager
	hub       HubStatus
	broker    BreakerStatus
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                       `json:"status"`
	Timestamp time.Time                    `json:"timestamp"`
	Version   string                       `json:"version"`
	Runtime   *infrastructure.RuntimeStats `json:"runtime,omitempty"`
	Services  map[string]ServiceHealth     `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// SystemStats represents system statistics
type SystemStats struct {
	Runtime      infrastructure.RuntimeStats `json:"runtime"`
	OpenSessions int                         `json:"open_sessions"`
	Sessions     []session.Info              `json:"sessions"`
	WebSocket    ws.Stats                    `json:"websocket"`
}

// VersionInfo is the build information plus process uptime
type VersionInfo struct {
	contracts.VersionInfo
	UptimeSeconds float64   `json:"uptime_seconds"`
	StartTime     time.Time `json:"start_time"`
}

// NewHealthService creates a health service. hub and broker may be nil;
// a nil broker reports MQTT as disabled.
func NewHealthService(sessions *session.Manager, hub HubStatus, broker BreakerStatus, logger *slog.Logger) *HealthService {
	logger = infrastructure.WithComponent(logger, "health_service")
	logger.Debug("health service initialized",
		slog.String("version", contracts.Version),
		slog.Bool("mqtt", broker != nil))

	return &HealthService{
		sessions:  sessions,
		hub:       hub,
		broker:    broker,
		startTime: time.Now(),
		logger:    logger,
	}
}

// HealthCheck returns overall health status
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    StatusOK,
		Timestamp: time.Now(),
		Version:   contracts.Version,
	}
}

// ReadinessCheck reports each dependency and is ready only when all of them
// are. A disabled MQTT publisher does not block readiness.
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    StatusReady,
		Timestamp: time.Now(),
		Version:   contracts.Version,
		Services: map[string]ServiceHealth{
			"sessions":  hs.checkSessions(),
			"websocket": hs.checkWebSocket(),
			"mqtt":      hs.checkMQTT(),
		},
	}

	for name, sh := range status.Services {
		if sh.Status == StatusNotReady {
			status.Status = StatusNotReady
			hs.logger.WarnContext(ctx, "dependency not ready",
				slog.String("service", name),
				slog.String("message", sh.Message))
		}
	}
	return status
}

// LivenessCheck returns liveness status with a runtime sample
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	stats := infrastructure.ReadRuntimeStats(hs.startTime)
	return HealthStatus{
		Status:    StatusAlive,
		Timestamp: stats.Timestamp,
		Version:   contracts.Version,
		Runtime:   &stats,
	}
}

// Version returns version information
func (hs *HealthService) Version() VersionInfo {
	return VersionInfo{
		VersionInfo:   contracts.GetVersionInfo(),
		UptimeSeconds: time.Since(hs.startTime).Seconds(),
		StartTime:     hs.startTime,
	}
}

// SystemStats returns runtime, session and WebSocket statistics
func (hs *HealthService) SystemStats(ctx context.Context) SystemStats {
	stats := SystemStats{
		Runtime:  infrastructure.ReadRuntimeStats(hs.startTime),
		Sessions: []session.Info{},
	}
	if hs.sessions != nil {
		stats.Sessions = hs.sessions.List()
		stats.OpenSessions = len(stats.Sessions)
	}
	if hs.hub != nil {
		stats.WebSocket = hs.hub.Stats()
	}
	return stats
}

func (hs *HealthService) checkSessions() ServiceHealth {
	if hs.sessions == nil {
		return ServiceHealth{Status: StatusNotReady, Message: "session manager not initialized"}
	}
	return ServiceHealth{
		Status:  StatusReady,
		Message: fmt.Sprintf("%d open sessions", hs.sessions.Len()),
	}
}

func (hs *HealthService) checkWebSocket() ServiceHealth {
	if hs.hub == nil {
		return ServiceHealth{Status: StatusNotReady, Message: "websocket hub not initialized"}
	}
	return ServiceHealth{
		Status:  StatusReady,
		Message: fmt.Sprintf("%d clients connected", hs.hub.Stats().ActiveClients),
	}
}

func (hs *HealthService) checkMQTT() ServiceHealth {
	if hs.broker == nil {
		return ServiceHealth{Status: StatusDisabled, Message: "no MQTT broker configured"}
	}
	state := hs.broker.State()
	if state == gobreaker.StateOpen {
		return ServiceHealth{Status: StatusNotReady, Message: "MQTT circuit " + state.String()}
	}
	return ServiceHealth{Status: StatusReady, Message: "MQTT circuit " + state.String()}
}
