package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable read by Load
const EnvPrefix = "CQR"

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Store     StoreConfig     `yaml:"store" envconfig:"STORE"`
	Events    EventsConfig    `yaml:"events" envconfig:"EVENTS"`
	Charts    ChartsConfig    `yaml:"charts" envconfig:"CHARTS"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
	WebSocket WebSocketConfig `yaml:"websocket" envconfig:"WEBSOCKET"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"60s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES" default:"1048576"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" default:"30s"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8080"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS" default:"true"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"100"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"50"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format      string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output      string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/app.log"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT" default:"false"`
}

// StoreConfig bounds the in-memory measurement sessions
type StoreConfig struct {
	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout" envconfig:"SESSION_IDLE_TIMEOUT" default:"2h"`
	SweepInterval      time.Duration `yaml:"sweep_interval" envconfig:"SWEEP_INTERVAL" default:"1m"`
	MaxSessions        int           `yaml:"max_sessions" envconfig:"MAX_SESSIONS" default:"100"`
	MaxUploadBytes     int64         `yaml:"max_upload_bytes" envconfig:"MAX_UPLOAD_BYTES" default:"10485760"`
}

// EventsConfig configures the MQTT change-event publisher. An empty broker
// disables it.
type EventsConfig struct {
	MQTTBroker     string        `yaml:"mqtt_broker" envconfig:"MQTT_BROKER"`
	MQTTClientID   string        `yaml:"mqtt_client_id" envconfig:"MQTT_CLIENT_ID" default:"cementqa"`
	MQTTUsername   string        `yaml:"mqtt_username" envconfig:"MQTT_USERNAME"`
	MQTTPassword   string        `yaml:"mqtt_password" envconfig:"MQTT_PASSWORD"`
	TopicPrefix    string        `yaml:"topic_prefix" envconfig:"TOPIC_PREFIX" default:"cement/quality"`
	QoS            byte          `yaml:"qos" envconfig:"QOS" default:"1"`
	PublishTimeout time.Duration `yaml:"publish_timeout" envconfig:"PUBLISH_TIMEOUT" default:"5s"`
}

// Enabled reports whether an MQTT broker is configured
func (e EventsConfig) Enabled() bool {
	return e.MQTTBroker != ""
}

// ChartsConfig sets the rendered PNG size
type ChartsConfig struct {
	Width  int `yaml:"width" envconfig:"WIDTH" default:"1024"`
	Height int `yaml:"height" envconfig:"HEIGHT" default:"480"`
}

// TelemetryConfig toggles metrics and tracing
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name" envconfig:"SERVICE_NAME" default:"cementqa"`
	MetricsEnabled bool   `yaml:"metrics_enabled" envconfig:"METRICS_ENABLED" default:"true"`
	TracingEnabled bool   `yaml:"tracing_enabled" envconfig:"TRACING_ENABLED" default:"false"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE" default:"1024"`
	WriteBufferSize int `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE" default:"1024"`
}

// Load loads configuration from environment variables and config file
func Load() (*Config, error) {
	return LoadFrom(getConfigFilePath())
}

// LoadFrom loads configuration from environment variables, overlaid on the
// YAML file at path when it exists.
func LoadFrom(path string) (*Config, error) {
	var cfg Config

	// Load from environment variables first
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			fileConfig, err := loadFromFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to load config from file: %w", err)
			}
			cfg = mergeConfigs(*fileConfig, cfg, setEnv())
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setEnv returns the set of CQR_ variables present in the environment
func setEnv() map[string]bool {
	set := make(map[string]bool)
	for _, kv := range os.Environ() {
		if name, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(name, EnvPrefix+"_") {
			set[name] = true
		}
	}
	return set
}

// mergeConfigs merges file config with env config. A value from the file is
// used unless the matching variable is set in the environment.
func mergeConfigs(file, env Config, set map[string]bool) Config {
	pick := func(name string) bool { return !set[EnvPrefix+"_"+name] }

	if pick("SERVER_PORT") && file.Server.Port != 0 {
		env.Server.Port = file.Server.Port
	}
	if pick("SERVER_READ_TIMEOUT") && file.Server.ReadTimeout != 0 {
		env.Server.ReadTimeout = file.Server.ReadTimeout
	}
	if pick("SERVER_WRITE_TIMEOUT") && file.Server.WriteTimeout != 0 {
		env.Server.WriteTimeout = file.Server.WriteTimeout
	}
	if pick("SERVER_SHUTDOWN_TIMEOUT") && file.Server.ShutdownTimeout != 0 {
		env.Server.ShutdownTimeout = file.Server.ShutdownTimeout
	}
	if pick("SERVER_REQUEST_TIMEOUT") && file.Server.RequestTimeout != 0 {
		env.Server.RequestTimeout = file.Server.RequestTimeout
	}
	if pick("SECURITY_ALLOWED_ORIGINS") && len(file.Security.AllowedOrigins) > 0 {
		env.Security.AllowedOrigins = file.Security.AllowedOrigins
	}
	if pick("LOGGING_LEVEL") && file.Logging.Level != "" {
		env.Logging.Level = file.Logging.Level
	}
	if pick("LOGGING_OUTPUT") && file.Logging.Output != "" {
		env.Logging.Output = file.Logging.Output
	}
	if pick("LOGGING_FILE_PATH") && file.Logging.FilePath != "" {
		env.Logging.FilePath = file.Logging.FilePath
	}
	if pick("STORE_SESSION_IDLE_TIMEOUT") && file.Store.SessionIdleTimeout != 0 {
		env.Store.SessionIdleTimeout = file.Store.SessionIdleTimeout
	}
	if pick("STORE_SWEEP_INTERVAL") && file.Store.SweepInterval != 0 {
		env.Store.SweepInterval = file.Store.SweepInterval
	}
	if pick("STORE_MAX_SESSIONS") && file.Store.MaxSessions != 0 {
		env.Store.MaxSessions = file.Store.MaxSessions
	}
	if pick("STORE_MAX_UPLOAD_BYTES") && file.Store.MaxUploadBytes != 0 {
		env.Store.MaxUploadBytes = file.Store.MaxUploadBytes
	}
	if pick("EVENTS_MQTT_BROKER") && file.Events.MQTTBroker != "" {
		env.Events.MQTTBroker = file.Events.MQTTBroker
	}
	if pick("EVENTS_TOPIC_PREFIX") && file.Events.TopicPrefix != "" {
		env.Events.TopicPrefix = file.Events.TopicPrefix
	}
	if pick("CHARTS_WIDTH") && file.Charts.Width != 0 {
		env.Charts.Width = file.Charts.Width
	}
	if pick("CHARTS_HEIGHT") && file.Charts.Height != 0 {
		env.Charts.Height = file.Charts.Height
	}

	return env
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if c.Security.EnableCORS && len(c.Security.AllowedOrigins) == 0 {
		return fmt.Errorf("at least one allowed origin must be specified")
	}

	switch c.Logging.Output {
	case "console", "file", "both":
	default:
		return fmt.Errorf("invalid logging output %q", c.Logging.Output)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
		c.Logging.Format = strings.ToLower(c.Logging.Format)
	default:
		c.Logging.Format = DefaultLogFormat
	}

	if c.Logging.Output != "console" && c.Logging.FilePath == "" {
		c.Logging.FilePath = DefaultLogFile
	}

	if c.Store.SessionIdleTimeout <= 0 || c.Store.SweepInterval <= 0 {
		return fmt.Errorf("store session timeouts must be positive")
	}

	if c.Store.MaxSessions <= 0 {
		return fmt.Errorf("store max sessions must be positive: %d", c.Store.MaxSessions)
	}

	if c.Store.MaxUploadBytes <= 0 {
		return fmt.Errorf("store max upload bytes must be positive: %d", c.Store.MaxUploadBytes)
	}

	if c.Events.QoS > 2 {
		return fmt.Errorf("invalid mqtt qos: %d", c.Events.QoS)
	}

	if c.Charts.Width < MinChartSize || c.Charts.Height < MinChartSize {
		return fmt.Errorf("chart size %dx%d is below %d", c.Charts.Width, c.Charts.Height, MinChartSize)
	}

	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	if path := os.Getenv(EnvPrefix + "_CONFIG_FILE"); path != "" {
		return path
	}

	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}
	if paths, err := GetPaths(); err == nil {
		locations = append(locations, paths.ConfigFile)
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20, // 1MB
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  DefaultRequestTimeout,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     DefaultRateLimit,
				Burst:   DefaultBurstSize,
			},
		},
		Logging: LoggingConfig{
			Level:    DefaultLogLevel,
			Format:   DefaultLogFormat,
			Output:   "console",
			FilePath: DefaultLogFile,
		},
		Store: StoreConfig{
			SessionIdleTimeout: DefaultSessionIdleTimeout,
			SweepInterval:      DefaultSweepInterval,
			MaxSessions:        DefaultMaxSessions,
			MaxUploadBytes:     DefaultMaxUploadBytes,
		},
		Events: EventsConfig{
			MQTTClientID:   AppName,
			TopicPrefix:    DefaultTopicPrefix,
			QoS:            1,
			PublishTimeout: 5 * time.Second,
		},
		Charts: ChartsConfig{
			Width:  DefaultChartWidth,
			Height: DefaultChartHeight,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    AppName,
			MetricsEnabled: true,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}
