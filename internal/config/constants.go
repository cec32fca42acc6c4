package config

import "time"

// Application constants for the cement quality recorder
const (
	// Application Info
	AppName    = "cementqa"
	AppTitle   = "Cement Quality Recorder"
	AppVersion = "1.0.0"

	// Store limits
	DefaultSessionIdleTimeout       = 2 * time.Hour
	DefaultSweepInterval            = time.Minute
	DefaultMaxSessions              = 100
	DefaultMaxUploadBytes     int64 = 10 << 20

	// Rate Limiting
	DefaultRateLimit = 100 // requests per second
	DefaultBurstSize = 50

	// Network Timeouts
	DefaultRequestTimeout = 30 * time.Second
	WebSocketPingPeriod   = 54 * time.Second
	WebSocketPongWait     = 60 * time.Second

	// Events
	DefaultTopicPrefix = "cement/quality"

	// Charts
	DefaultChartWidth  = 1024
	DefaultChartHeight = 480
	MinChartSize       = 200

	// Log Settings
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
	DefaultLogFile   = "logs/app.log"

	// File names (relative to executable)
	DefaultLogsDir    = "logs"
	DefaultExportsDir = "exports"
	ConfigFileName    = "config.yaml"
)

// API paths
const (
	APIBasePath       = "/api"
	HealthEndpoint    = "/api/health"
	MetricsEndpoint   = "/metrics"
	WebSocketEndpoint = "/ws"
)
