// Package services implements the business logic between the HTTP handlers
// and the measurement stores.
//
// # Services
//
//	- MeasurementService: session lifecycle, record entry, workbook upload,
//	  exports, statistics and charts. Every mutation records business
//	  metrics and publishes a change event.
//	- HealthService: liveness, readiness, version and runtime statistics.
//
// # Error Handling
//
// Services return the sentinel errors of the domain packages wrapped with
// context, for example:
//
//	session.ErrSessionNotFound
//	measurement.ErrSchemaMismatch
//	measurement.ErrIndexOutOfRange
//	charts.ErrNoChartData
//
// The transport layer maps them to RFC 7807 problems with errors.Is.
//
// # Events
//
// Change events are published through an events.Publisher. Delivery
// failures are logged and never fail the operation that caused them.
package services
