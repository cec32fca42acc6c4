package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"golang.org/x/sync/errgroup"

	"cementqa/internal/charts"
	"cementqa/internal/config"
	apierrors "cementqa/internal/errors"
	ievents "cementqa/internal/events"
	"cementqa/internal/infrastructure"
	customMiddleware "cementqa/internal/middleware"
	"cementqa/internal/services"
	"cementqa/internal/session"
	handlers "cementqa/internal/transport/http"
	"cementqa/internal/validation"
	ws "cementqa/internal/websocket"
	"cementqa/pkg/contracts"
)

// DashboardPage is the template the dashboard route renders
const DashboardPage = "index.html"

const (
	heartbeatInterval     = 30 * time.Second
	systemMetricsInterval = 15 * time.Second
)

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Metrics       *infrastructure.BusinessMetrics
	SystemMetrics *infrastructure.SystemMetrics
	Sessions      *session.Manager
	WebSocketHub  *ws.Hub
	Events        *ievents.Fanout
	MQTT          *ievents.MQTTPublisher
	ErrorHandler  *apierrors.ErrorHandler
	Services      *ServiceContainer
	FrontendFS    fs.FS
}

// ServiceContainer holds all application services
type ServiceContainer struct {
	Measurement *services.MeasurementService
	Health      *services.HealthService
}

// NewApplication loads configuration and the logger, then builds the
// application around frontendFS.
func NewApplication(frontendFS fs.FS) (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return New(cfg, logger, frontendFS)
}

// New wires every component from cfg. frontendFS may be nil, in which case
// the dashboard route is not registered.
func New(cfg *config.Config, logger *slog.Logger, frontendFS fs.FS) (*Application, error) {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	logger.Info("Application starting",
		slog.String("name", config.AppName),
		slog.String("build", contracts.GetVersionInfo().String()))

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Telemetry), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
		ErrorHandler:  apierrors.NewErrorHandler(logger, cfg.Logging.Development),
		FrontendFS:    frontendFS,
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	if err := app.setupRouter(); err != nil {
		return nil, fmt.Errorf("failed to set up router: %w", err)
	}
	app.createServer()

	return app, nil
}

// initializeServices initializes all application services
func (a *Application) initializeServices() error {
	metrics, err := infrastructure.CreateBusinessMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create business metrics: %w", err)
	}
	a.Metrics = metrics

	systemMetrics, err := infrastructure.NewSystemMetrics(a.OTelProviders.Meter, systemMetricsInterval)
	if err != nil {
		return fmt.Errorf("failed to create system metrics: %w", err)
	}
	a.SystemMetrics = systemMetrics

	wsMetrics, err := ws.NewMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create websocket metrics: %w", err)
	}
	a.WebSocketHub = ws.NewHub(a.Logger, wsMetrics, heartbeatInterval)

	a.Events = ievents.NewFanout(a.Logger, metrics)
	a.Events.Add("websocket", a.WebSocketHub)
	if a.Config.Events.Enabled() {
		a.connectMQTT()
	}

	a.Sessions = session.NewManager(session.Options{
		IdleTimeout:   a.Config.Store.SessionIdleTimeout,
		SweepInterval: a.Config.Store.SweepInterval,
		MaxSessions:   a.Config.Store.MaxSessions,
	}, a.Logger)

	measurement := services.NewMeasurementService(
		a.Sessions,
		validation.NewFileValidator(a.Logger, a.Config.Store.MaxUploadBytes),
		charts.NewRenderer(a.Config.Charts.Width, a.Config.Charts.Height),
		a.Events,
		metrics,
		a.Logger,
	)

	// an interface holding a nil *MQTTPublisher is not nil
	var broker services.BreakerStatus
	if a.MQTT != nil {
		broker = a.MQTT
	}
	health := services.NewHealthService(a.Sessions, a.WebSocketHub, broker, a.Logger)

	a.Services = &ServiceContainer{
		Measurement: measurement,
		Health:      health,
	}
	return nil
}

// connectMQTT adds the MQTT sink. A broker that cannot be reached leaves
// events on the WebSocket sink only.
func (a *Application) connectMQTT() {
	opts := ievents.MQTTOptionsFrom(a.Config.Events)
	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectMaxElapsed+opts.PublishTimeout)
	defer cancel()

	publisher, err := ievents.DialMQTT(ctx, opts, a.Logger)
	if err != nil {
		a.Logger.Warn("MQTT events disabled",
			slog.String("broker", opts.Broker),
			slog.String("error", err.Error()))
		return
	}
	a.MQTT = publisher
	a.Events.Add("mqtt", publisher)
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() error {
	r := chi.NewRouter()
	r.NotFound(a.ErrorHandler.NotFound)
	r.MethodNotAllowed(a.ErrorHandler.MethodNotAllowed)

	// Only middleware that leaves the ResponseWriter unwrapped runs before /ws
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)

	wsHandler := ws.NewHandler(a.WebSocketHub, a.Config.WebSocket, a.Config.Security.AllowedOrigins, a.ErrorHandler, a.Logger)
	wsHandler.SessionExists = func(id string) error {
		_, err := a.Sessions.Get(id)
		return err
	}
	r.With(customMiddleware.WebSocketTraceMiddleware(a.Logger)).Handle(config.WebSocketEndpoint, wsHandler)

	var exporter http.Handler
	if a.Config.Telemetry.MetricsEnabled {
		exporter = a.OTelProviders.PrometheusHTTP
	}
	r.Handle(config.MetricsEndpoint, handlers.NewMetricsHandler(exporter, a.ErrorHandler))

	var dashboard http.Handler
	if a.FrontendFS != nil {
		d, err := handlers.NewDashboardHandler(a.FrontendFS, DashboardPage)
		if err != nil {
			return err
		}
		dashboard = d
	}

	r.Group(func(r chi.Router) {
		// RequestID → RealIP → OTel → Logger → Recoverer → headers → limits
		r.Use(customMiddleware.NewOTelMiddleware(a.OTelProviders.Tracer, a.Metrics, a.Logger).Handler)
		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(apierrors.RecoveryMiddleware(a.ErrorHandler))
		r.Use(customMiddleware.DefaultSecureHeaders().Handler)
		if a.Config.Security.EnableCORS {
			r.Use(customMiddleware.CORS(a.corsConfig()))
		}
		if a.Config.Security.RateLimit.Enabled {
			r.Use(customMiddleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.ErrorHandler,
			).Handler)
		}

		a.setupAPIRoutes(r)
		if dashboard != nil {
			r.Method(http.MethodGet, "/", dashboard)
		}
	})

	a.Router = r
	return nil
}

// setupAPIRoutes configures API endpoints
func (a *Application) setupAPIRoutes(r chi.Router) {
	r.Route(config.APIBasePath, func(r chi.Router) {
		// mounted routers inherit these, so set them before any Mount
		r.NotFound(a.ErrorHandler.NotFound)
		r.MethodNotAllowed(a.ErrorHandler.MethodNotAllowed)
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(customMiddleware.Timeout(a.Config.Server.RequestTimeout))
		r.Use(customMiddleware.AuditLog(a.Logger))

		healthHandler := handlers.NewHealthHandler(a.Services.Health, a.Logger)
		r.Mount("/health", healthHandler.Routes())
		r.Get("/version", healthHandler.Version)
		r.Get("/schema", handlers.Schema)

		measurementHandler := handlers.NewMeasurementHandler(
			a.Services.Measurement,
			a.Config.Store.MaxUploadBytes,
			a.ErrorHandler,
			a.Logger,
		)
		r.Mount("/sessions", measurementHandler.Routes())
	})
}

// corsConfig returns the CORS settings for the configured origins
func (a *Application) corsConfig() customMiddleware.CORSConfig {
	return customMiddleware.CORSConfig{
		AllowedOrigins: a.Config.Security.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept",
			"Content-Type",
			customMiddleware.RequestIDHeader,
			"X-Requested-With",
		},
		ExposedHeaders: []string{
			customMiddleware.RequestIDHeader,
			"Content-Disposition",
			"Location",
		},
		MaxAge: 300,
		Logger: a.Logger,
	}
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:           a.Router,
		ReadTimeout:       a.Config.Server.ReadTimeout,
		ReadHeaderTimeout: a.Config.Server.ReadTimeout,
		WriteTimeout:      a.Config.Server.WriteTimeout,
		IdleTimeout:       a.Config.Server.IdleTimeout,
		MaxHeaderBytes:    a.Config.Server.MaxHeaderBytes,
	}
}

// Run listens on the configured port and serves until ctx is done or the
// process receives SIGINT or SIGTERM.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.Server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve runs the HTTP server on ln together with the WebSocket hub, the
// session sweeper and the runtime metrics collector. It returns after a
// graceful shutdown once ctx is done, or when any of them fails.
func (a *Application) Serve(ctx context.Context, ln net.Listener) error {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("address", ln.Addr().String()),
		slog.String("version", contracts.Version),
		slog.Bool("mqtt", a.MQTT != nil),
		slog.String("level", a.Config.Logging.Level))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.WebSocketHub.Run(gctx) })
	g.Go(func() error { return a.Sessions.Run(gctx) })
	g.Go(func() error { return a.SystemMetrics.Run(gctx) })

	g.Go(func() error {
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return a.Stop(context.Background())
	})

	return g.Wait()
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
	}

	if err := a.Events.Close(); err != nil {
		a.Logger.ErrorContext(ctx, "Error closing event sinks", slog.String("error", err.Error()))
	}

	if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
		a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete",
		slog.Int("open_sessions", a.Sessions.Len()))
	return errors.Join(errs...)
}
