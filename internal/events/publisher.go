package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"cementqa/internal/infrastructure"
	"cementqa/pkg/contracts/events"
)

// Publisher delivers change events to one sink
type Publisher interface {
	Publish(ctx context.Context, ev events.Event) error
	Close() error
}

// Nop discards every event
type Nop struct{}

func (Nop) Publish(context.Context, events.Event) error { return nil }
func (Nop) Close() error                                 { return nil }

type namedPublisher struct {
	name string
	Publisher
}

// Fanout publishes every event to all registered sinks.
type Fanout struct {
	mu      sync.RWMutex
	sinks   []namedPublisher
	logger  *slog.Logger
	metrics *infrastructure.BusinessMetrics
}

// NewFanout creates an empty fanout. metrics may be nil.
func NewFanout(logger *slog.Logger, metrics *infrastructure.BusinessMetrics) *Fanout {
	return &Fanout{
		logger:  infrastructure.WithComponent(logger, "events"),
		metrics: metrics,
	}
}

// Add registers a sink under name
func (f *Fanout) Add(name string, p Publisher) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, namedPublisher{name: name, Publisher: p})
}

// Sinks returns the registered sink names in order
func (f *Fanout) Sinks() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, len(f.sinks))
	for i, s := range f.sinks {
		names[i] = s.name
	}
	return names
}

// Publish delivers ev to every sink. Every sink is attempted; the returned
// error joins the individual failures.
func (f *Fanout) Publish(ctx context.Context, ev events.Event) error {
	if ev.TraceID == "" {
		ev.TraceID = infrastructure.GetTraceID(ctx)
	}

	f.mu.RLock()
	sinks := make([]namedPublisher, len(f.sinks))
	copy(sinks, f.sinks)
	f.mu.RUnlock()

	var errs []error
	for _, s := range sinks {
		err := s.Publish(ctx, ev)
		f.metrics.RecordEvent(ctx, s.name, err)
		if err != nil {
			f.logger.WarnContext(ctx, "event delivery failed",
				slog.String("sink", s.name),
				slog.String("event_type", string(ev.Type)),
				slog.String("session_id", ev.SessionID),
				slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
			continue
		}
		f.logger.DebugContext(ctx, "event delivered",
			slog.String("sink", s.name),
			slog.String("event_type", string(ev.Type)))
	}
	return errors.Join(errs...)
}

// Close closes every sink
func (f *Fanout) Close() error {
	f.mu.Lock()
	sinks := f.sinks
	f.sinks = nil
	f.mu.Unlock()

	var errs []error
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}
