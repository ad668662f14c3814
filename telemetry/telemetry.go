// Package telemetry collects structured query-execution events.
package telemetry

import (
	"sync"
	"time"

	"github.com/partiqlabs/partiq/internal/debug"
)

// EventType distinguishes the recorded events.
type EventType string

const (
	// EventFetch is one page request against the store.
	EventFetch EventType = "fetch"
	// EventEnumeration is the completion of one full enumeration.
	EventEnumeration EventType = "enumeration"
)

// Event is one recorded observation.
type Event struct {
	Type          EventType
	StatementText string
	EnumerationID string
	FetchCount    int
	Limit         int32 // effective per-request evaluation limit, 0 when unset
	TokenBefore   bool  // continuation token sent with the request
	TokenAfter    bool  // continuation token present on the response
	Duration      time.Duration
	Error         string
	Timestamp     time.Time
}

// Sink receives recorded events.
type Sink func(Event)

// Collector buffers nothing; it forwards each event to its sink. A nil
// collector is safe to call and records nothing.
type Collector struct {
	mu   sync.RWMutex
	sink Sink
}

// New returns a collector forwarding to sink. A nil sink logs events
// through the diagnostic logger.
func New(sink Sink) *Collector {
	if sink == nil {
		sink = logSink
	}
	return &Collector{sink: sink}
}

// SetSink replaces the collector's sink.
func (c *Collector) SetSink(sink Sink) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink = sink
}

// Record forwards one event.
func (c *Collector) Record(e Event) {
	if c == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	c.mu.RLock()
	sink := c.sink
	c.mu.RUnlock()
	if sink != nil {
		sink(e)
	}
}

func logSink(e Event) {
	debug.Debug("telemetry event",
		"type", string(e.Type),
		"enumeration", e.EnumerationID,
		"statement", e.StatementText,
		"fetches", e.FetchCount,
		"limit", e.Limit,
		"token_before", e.TokenBefore,
		"token_after", e.TokenAfter,
		"duration", e.Duration,
		"error", e.Error,
	)
}
