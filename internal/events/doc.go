// Package events delivers session change events to their sinks: the
// dashboard WebSocket hub and, when a broker is configured, an MQTT topic.
// Delivery is best effort. A failing sink is logged and counted but never
// fails the store operation that produced the event.
package events
