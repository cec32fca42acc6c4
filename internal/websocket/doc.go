// Package websocket streams session change events to dashboard clients.
//
// A client connects to /ws, optionally with ?session=<id>. Clients bound to
// a session only receive that session's events; unbound clients receive
// everything. The Hub implements events.Publisher so it can be registered
// as a sink on the event fanout.
package websocket
