package websocket

import (
	"errors"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	conn := newMockConnection()
	c := NewClient(nil, conn, "s-1", "trace-1", nil)

	assert.NotEmpty(t, c.ID())
	assert.Equal(t, "127.0.0.1:50000", c.remoteAddr)
	assert.Equal(t, sendBufferSize, cap(c.send))
}

func TestClient_Accepts(t *testing.T) {
	tests := []struct {
		name    string
		client  string
		msg     outbound
		accepts bool
	}{
		{"same session", "s-1", outbound{sessionID: "s-1", scoped: true}, true},
		{"other session", "s-1", outbound{sessionID: "s-2", scoped: true}, false},
		{"unbound client", "", outbound{sessionID: "s-2", scoped: true}, true},
		{"unscoped event", "s-1", outbound{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Client{sessionID: tt.client}
			assert.Equal(t, tt.accepts, c.accepts(tt.msg))
		})
	}
}

func TestClient_WritePump(t *testing.T) {
	conn := newMockConnection()
	c := NewClient(nil, conn, "", "", nil)

	done := make(chan struct{})
	go func() {
		c.WritePump()
		close(done)
	}()

	c.send <- []byte(`{"type":"records.appended"}`)
	c.send <- []byte(`{"type":"records.deleted"}`)
	close(c.send)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("write pump did not stop")
	}

	msgs := conn.messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, websocket.TextMessage, msgs[0].Type)
	assert.JSONEq(t, `{"type":"records.appended"}`, string(msgs[0].Data))
	assert.Equal(t, websocket.TextMessage, msgs[1].Type)
	assert.Equal(t, websocket.CloseMessage, msgs[2].Type)
	assert.True(t, conn.isClosed())
}

func TestClient_WritePumpStopsOnError(t *testing.T) {
	conn := newMockConnection()
	conn.writeErr = errors.New("broken pipe")
	c := NewClient(nil, conn, "", "", nil)

	done := make(chan struct{})
	go func() {
		c.WritePump()
		close(done)
	}()
	c.send <- []byte(`{}`)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("write pump did not stop")
	}
	assert.True(t, conn.isClosed())
}

func TestClient_ReadPumpUnregisters(t *testing.T) {
	hub := startHub(t, 0)
	conn := newMockConnection()
	c := NewClient(hub, conn, "s-1", "", nil)
	require.NoError(t, hub.Register(c))

	done := make(chan struct{})
	go func() {
		c.ReadPump()
		close(done)
	}()

	conn.incoming <- mockMessage{Type: websocket.TextMessage, Data: []byte(`{"type":"heartbeat"}`)}

	require.NoError(t, conn.Close())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("read pump did not stop")
	}
	assert.Equal(t, int64(maxMessageSize), conn.readLimit)
	assert.NotNil(t, conn.pongHandler)
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}
