// Package app wires the cement quality recorder together and owns its
// lifecycle.
//
// New builds every component from a config.Config: telemetry providers, the
// session manager, the WebSocket hub, the event fanout (WebSocket and, when a
// broker is configured, MQTT), the services and the chi router. Serve runs
// the HTTP server next to the hub loop, the idle-session sweeper and the
// runtime metrics collector in one errgroup; the first failure or the end of
// the context shuts all of them down.
//
// Routes:
//
//	GET  /                   dashboard page
//	GET  /ws?session=<id>    change events for one session
//	GET  /metrics            Prometheus scrape endpoint
//	     /api/health/...     health, readiness, liveness, stats
//	GET  /api/version
//	GET  /api/schema
//	     /api/sessions/...   records, uploads, statistics, exports, charts
//
// The package never calls os.Exit; errors are returned to main.
package app
