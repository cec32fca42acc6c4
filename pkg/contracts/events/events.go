// Package events defines the change events emitted when a measurement
// session changes. The same JSON shape is sent to WebSocket clients and
// published to MQTT.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Type names a change event
type Type string

const (
	TypeRecordsAppended Type = "records.appended"
	TypeRecordsDeleted  Type = "records.deleted"
	TypeRecordsCleared  Type = "records.cleared"
	TypeUploadAccepted  Type = "upload.accepted"
	TypeSessionOpened   Type = "session.opened"
	TypeSessionClosed   Type = "session.closed"
	TypeSessionExpired  Type = "session.expired"

	// TypeConnection is sent once to a WebSocket client after it connects
	TypeConnection Type = "connection"
	// TypeHeartbeat keeps idle WebSocket clients informed the server is alive
	TypeHeartbeat Type = "heartbeat"
)

// Source of appended records
const (
	SourceManual = "manual"
	SourceBulk   = "bulk"
	SourceUpload = "upload"
)

// Event describes one change to a session
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Count     int       `json:"count,omitempty"`
	RecordIDs []string  `json:"record_ids,omitempty"`
	Source    string    `json:"source,omitempty"`
	FileName  string    `json:"file_name,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	TraceID   string    `json:"trace_id,omitempty"`
}

// New returns an event of type t for session with a fresh id and timestamp
func New(t Type, sessionID string) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
	}
}

// IsSessionScoped reports whether the event belongs to one session and
// should only reach subscribers of that session.
func (e Event) IsSessionScoped() bool {
	return e.SessionID != "" && e.Type != TypeConnection && e.Type != TypeHeartbeat
}
