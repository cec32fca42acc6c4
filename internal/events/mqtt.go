package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sony/gobreaker"

	"cementqa/internal/config"
	"cementqa/internal/infrastructure"
	"cementqa/pkg/contracts/events"
)

// ErrPublishTimeout is returned when the broker does not acknowledge a
// publish within the configured timeout.
var ErrPublishTimeout = errors.New("mqtt publish timed out")

const disconnectQuiesceMs = 250

// MQTTClient is the part of mqtt.Client the publisher uses
type MQTTClient interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTOptions configures the MQTT sink
type MQTTOptions struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	QoS            byte
	PublishTimeout time.Duration

	ConnectRetries    uint64
	ConnectMaxElapsed time.Duration

	// Breaker opens after this many consecutive publish failures and stays
	// open for BreakerOpenFor.
	BreakerFailures uint32
	BreakerOpenFor  time.Duration
}

// MQTTOptionsFrom maps the events configuration onto publisher options
func MQTTOptionsFrom(cfg config.EventsConfig) MQTTOptions {
	return MQTTOptions{
		Broker:            cfg.MQTTBroker,
		ClientID:          cfg.MQTTClientID,
		Username:          cfg.MQTTUsername,
		Password:          cfg.MQTTPassword,
		TopicPrefix:       cfg.TopicPrefix,
		QoS:               cfg.QoS,
		PublishTimeout:    cfg.PublishTimeout,
		ConnectRetries:    4,
		ConnectMaxElapsed: 10 * time.Second,
		BreakerFailures:   5,
		BreakerOpenFor:    30 * time.Second,
	}
}

// MQTTPublisher publishes events as JSON to <prefix>/<event type>.
type MQTTPublisher struct {
	client  MQTTClient
	opts    MQTTOptions
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewMQTTPublisher wraps an already connected client
func NewMQTTPublisher(client MQTTClient, opts MQTTOptions, logger *slog.Logger) *MQTTPublisher {
	logger = infrastructure.WithComponent(logger, "mqtt_publisher")
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 5 * time.Second
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}

	p := &MQTTPublisher{client: client, opts: opts, logger: logger}
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "mqtt-publish",
		Timeout: opts.BreakerOpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= opts.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})
	return p
}

// DialMQTT connects to the broker, retrying with exponential backoff.
func DialMQTT(ctx context.Context, opts MQTTOptions, logger *slog.Logger) (*MQTTPublisher, error) {
	logger = infrastructure.WithComponent(logger, "mqtt_publisher")

	co := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt connection lost", slog.String("error", err.Error()))
		})

	connectTimeout := opts.PublishTimeout
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	co.SetConnectTimeout(connectTimeout)

	bo := backoff.NewExponentialBackOff()
	if opts.ConnectMaxElapsed > 0 {
		bo.MaxElapsedTime = opts.ConnectMaxElapsed
	}

	var client mqtt.Client
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		client = mqtt.NewClient(co)
		token := client.Connect()
		if !token.WaitTimeout(connectTimeout) {
			return fmt.Errorf("connect to %s timed out", opts.Broker)
		}
		if err := token.Error(); err != nil {
			logger.Warn("mqtt connect failed",
				slog.Int("attempt", attempt),
				slog.String("broker", opts.Broker),
				slog.String("error", err.Error()))
			return err
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, opts.ConnectRetries), ctx))
	if err != nil {
		return nil, fmt.Errorf("could not connect to mqtt broker %s: %w", opts.Broker, err)
	}

	logger.Info("connected to mqtt broker", slog.String("broker", opts.Broker), slog.Int("attempts", attempt))
	return NewMQTTPublisher(client, opts, logger), nil
}

// Topic returns the topic events of type t are published to
func (p *MQTTPublisher) Topic(t events.Type) string {
	prefix := strings.TrimSuffix(p.opts.TopicPrefix, "/")
	if prefix == "" {
		prefix = config.DefaultTopicPrefix
	}
	return prefix + "/" + string(t)
}

// Publish sends ev through the circuit breaker. An open breaker fails fast
// with gobreaker.ErrOpenState.
func (p *MQTTPublisher) Publish(ctx context.Context, ev events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	topic := p.Topic(ev.Type)

	_, err = p.breaker.Execute(func() (interface{}, error) {
		token := p.client.Publish(topic, p.opts.QoS, false, payload)
		timer := time.NewTimer(p.opts.PublishTimeout)
		defer timer.Stop()

		select {
		case <-token.Done():
			return nil, token.Error()
		case <-timer.C:
			return nil, ErrPublishTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// State reports the circuit breaker state
func (p *MQTTPublisher) State() gobreaker.State {
	return p.breaker.State()
}

// Close disconnects from the broker
func (p *MQTTPublisher) Close() error {
	if p.client.IsConnected() {
		p.client.Disconnect(disconnectQuiesceMs)
		p.logger.Info("mqtt client disconnected")
	}
	return nil
}
