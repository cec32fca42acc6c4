package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cementqa/internal/config"
	"cementqa/pkg/contracts/events"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool { <-t.done; return true }
func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}
func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	mu           sync.Mutex
	connected    bool
	publishErr   error
	hang         bool
	published    []published
	disconnected bool
}

func (c *fakeClient) IsConnected() bool { return c.connected }

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{topic: topic, qos: qos, payload: payload.([]byte)})
	if c.hang {
		return &fakeToken{done: make(chan struct{})}
	}
	return completedToken(c.publishErr)
}

func (c *fakeClient) Disconnect(uint) { c.disconnected = true }

func testOptions() MQTTOptions {
	return MQTTOptions{
		TopicPrefix:     "cement/quality/",
		QoS:             1,
		PublishTimeout:  50 * time.Millisecond,
		BreakerFailures: 2,
		BreakerOpenFor:  time.Minute,
	}
}

func TestMQTTPublisher_Publish(t *testing.T) {
	client := &fakeClient{connected: true}
	p := NewMQTTPublisher(client, testOptions(), nil)

	ev := events.New(events.TypeUploadAccepted, "s-1")
	ev.Count = 12
	ev.FileName = "januari.xlsx"
	require.NoError(t, p.Publish(context.Background(), ev))

	require.Len(t, client.published, 1)
	msg := client.published[0]
	assert.Equal(t, "cement/quality/upload.accepted", msg.topic)
	assert.Equal(t, byte(1), msg.qos)

	var got events.Event
	require.NoError(t, json.Unmarshal(msg.payload, &got))
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, 12, got.Count)
}

func TestMQTTPublisher_Topic(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"cement/quality", "cement/quality/records.deleted"},
		{"plant-2/", "plant-2/records.deleted"},
		{"", config.DefaultTopicPrefix + "/records.deleted"},
	}
	for _, tt := range tests {
		p := NewMQTTPublisher(&fakeClient{}, MQTTOptions{TopicPrefix: tt.prefix}, nil)
		assert.Equal(t, tt.want, p.Topic(events.TypeRecordsDeleted))
	}
}

func TestMQTTPublisher_Timeout(t *testing.T) {
	p := NewMQTTPublisher(&fakeClient{connected: true, hang: true}, testOptions(), nil)
	err := p.Publish(context.Background(), events.New(events.TypeRecordsCleared, "s-1"))
	assert.ErrorIs(t, err, ErrPublishTimeout)
}

func TestMQTTPublisher_CanceledContext(t *testing.T) {
	client := &fakeClient{connected: true}
	p := NewMQTTPublisher(client, testOptions(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, events.New(events.TypeRecordsCleared, "s-1")), context.Canceled)
	assert.Empty(t, client.published)
}

func TestMQTTPublisher_BreakerOpens(t *testing.T) {
	client := &fakeClient{connected: true, publishErr: errors.New("not connected")}
	p := NewMQTTPublisher(client, testOptions(), nil)
	ev := events.New(events.TypeRecordsAppended, "s-1")

	for i := 0; i < 2; i++ {
		require.Error(t, p.Publish(context.Background(), ev))
	}
	assert.Equal(t, gobreaker.StateOpen, p.State())

	err := p.Publish(context.Background(), ev)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Len(t, client.published, 2, "open breaker does not reach the client")
}

func TestMQTTPublisher_Close(t *testing.T) {
	client := &fakeClient{connected: true}
	require.NoError(t, NewMQTTPublisher(client, testOptions(), nil).Close())
	assert.True(t, client.disconnected)

	idle := &fakeClient{}
	require.NoError(t, NewMQTTPublisher(idle, testOptions(), nil).Close())
	assert.False(t, idle.disconnected)
}

func TestMQTTOptionsFrom(t *testing.T) {
	cfg := config.EventsConfig{
		MQTTBroker:     "tcp://broker:1883",
		MQTTClientID:   "cementqa-1",
		TopicPrefix:    "plant/qc",
		QoS:            2,
		PublishTimeout: 3 * time.Second,
	}
	opts := MQTTOptionsFrom(cfg)
	assert.Equal(t, "tcp://broker:1883", opts.Broker)
	assert.Equal(t, "cementqa-1", opts.ClientID)
	assert.Equal(t, byte(2), opts.QoS)
	assert.Equal(t, 3*time.Second, opts.PublishTimeout)
	assert.NotZero(t, opts.BreakerFailures)
}

func TestDialMQTT_Unreachable(t *testing.T) {
	opts := testOptions()
	opts.Broker = "tcp://127.0.0.1:1"
	opts.ClientID = "test"
	opts.ConnectRetries = 1
	opts.ConnectMaxElapsed = time.Second

	_, err := DialMQTT(context.Background(), opts, nil)
	assert.Error(t, err)
}
