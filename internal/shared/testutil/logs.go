package testutil

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Entry is one captured log line. Integer attributes arrive as int64 and
// grouped keys are joined with dots, e.g. "http.status".
type Entry struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// Component returns the component attribute set by infrastructure.WithComponent.
func (e Entry) Component() string {
	c, _ := e.Attrs["component"].(string)
	return c
}

type entries struct {
	mu  sync.Mutex
	all []Entry
}

// LogCapture is a slog.Handler that keeps every record in memory. Loggers
// derived with With or WithGroup write to the same capture.
type LogCapture struct {
	sink   *entries
	attrs  []slog.Attr
	prefix string
	t      *testing.T
}

// NewTestLogger returns a logger whose output is captured and echoed to t.
func NewTestLogger(t *testing.T) (*slog.Logger, *LogCapture) {
	capture := &LogCapture{sink: &entries{}, t: t}
	return slog.New(capture), capture
}

func (c *LogCapture) Enabled(context.Context, slog.Level) bool { return true }

func (c *LogCapture) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any, len(c.attrs)+r.NumAttrs())
	for _, a := range c.attrs {
		flatten(attrs, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		flatten(attrs, c.prefix, a)
		return true
	})

	c.sink.mu.Lock()
	c.sink.all = append(c.sink.all, Entry{Level: r.Level, Message: r.Message, Attrs: attrs})
	c.sink.mu.Unlock()

	if c.t != nil {
		c.t.Logf("%-5s %s %v", r.Level, r.Message, attrs)
	}
	return nil
}

func (c *LogCapture) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *c
	next.attrs = append([]slog.Attr(nil), c.attrs...)
	for _, a := range attrs {
		next.attrs = append(next.attrs, slog.Attr{Key: c.prefix + a.Key, Value: a.Value})
	}
	return &next
}

func (c *LogCapture) WithGroup(name string) slog.Handler {
	if name == "" {
		return c
	}
	next := *c
	next.prefix = c.prefix + name + "."
	return &next
}

func flatten(into map[string]any, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, g := range v.Group() {
			flatten(into, p, g)
		}
		return
	}
	into[prefix+a.Key] = v.Any()
}

// Entries returns a copy of everything captured so far
func (c *LogCapture) Entries() []Entry {
	c.sink.mu.Lock()
	defer c.sink.mu.Unlock()
	return append([]Entry(nil), c.sink.all...)
}

// ByLevel returns the entries logged at exactly level
func (c *LogCapture) ByLevel(level slog.Level) []Entry {
	return c.filter(func(e Entry) bool { return e.Level == level })
}

// ByComponent returns the entries of one component logger
func (c *LogCapture) ByComponent(component string) []Entry {
	return c.filter(func(e Entry) bool { return e.Component() == component })
}

// Count returns the number of captured entries
func (c *LogCapture) Count() int {
	c.sink.mu.Lock()
	defer c.sink.mu.Unlock()
	return len(c.sink.all)
}

// Reset drops everything captured so far
func (c *LogCapture) Reset() {
	c.sink.mu.Lock()
	defer c.sink.mu.Unlock()
	c.sink.all = nil
}

func (c *LogCapture) filter(keep func(Entry) bool) []Entry {
	var out []Entry
	for _, e := range c.Entries() {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// AssertLogContains fails unless an entry at level contains message
func AssertLogContains(t *testing.T, logs *LogCapture, level slog.Level, message string) bool {
	t.Helper()
	for _, e := range logs.ByLevel(level) {
		if strings.Contains(e.Message, message) {
			return true
		}
	}
	return assert.Fail(t, "log message not found",
		"no %s entry contains %q; captured: %v", level, message, messages(logs.Entries()))
}

// AssertLogAttr fails unless some entry has key set to want
func AssertLogAttr(t *testing.T, logs *LogCapture, key string, want any) bool {
	t.Helper()
	for _, e := range logs.Entries() {
		if v, ok := e.Attrs[key]; ok && v == want {
			return true
		}
	}
	return assert.Fail(t, "log attribute not found",
		"no entry has %s=%v (%T); captured: %v", key, want, want, logs.Entries())
}

// AssertNoErrors fails if anything was logged at error level
func AssertNoErrors(t *testing.T, logs *LogCapture) bool {
	t.Helper()
	errs := logs.ByLevel(slog.LevelError)
	return assert.Empty(t, errs, "unexpected error logs: %v", messages(errs))
}

func messages(es []Entry) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.Message
	}
	return out
}
