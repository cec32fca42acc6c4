// Package http implements the HTTP handlers of the measurement service.
// Handlers stay thin: they parse and validate the request, call the service
// layer and render the result.
//
// # Request Flow
//
//	HTTP Request → Chi Router → Middleware → Handler → Service → Store
//	                                              ↓
//	HTTP Response ← Handler ← Service Response ←─┘
//
// # Error Handling
//
// Every error goes through errors.ErrorHandler and is written as an
// RFC 7807 problem:
//
//	{
//	    "type": "/errors/records/schema-mismatch",
//	    "title": "Schema Mismatch",
//	    "status": 422,
//	    "detail": "schema mismatch: missing [Tanggal]",
//	    "instance": "/api/sessions/4f1c.../upload"
//	}
//
// # Testing
//
// Handlers are tested with httptest against a mocked service interface, and
// end to end against the real service with in-memory workbooks.
package http
