package stats

import (
	"sync"
	"time"
)

type Stage string

const (
	StageMail  Stage = "mail"
	StageBatch Stage = "batch"
)

type EventType string

const (
	EventTypeSearchPass   EventType = "search_pass"
	EventTypeFolderSkip   EventType = "folder_skipped"
	EventTypeFound        EventType = "found"
	EventTypeTimeout      EventType = "timeout"
	EventTypeSubmitted    EventType = "submitted"
	EventTypeUnauthorized EventType = "unauthorized"
	EventTypeRefreshed    EventType = "refreshed"
	EventTypeError        EventType = "error"
)

type Event struct {
	Stage  Stage
	Type   EventType
	Detail string
	Err    error
}

// Recorder receives events from pollers and batch orchestrators.
type Recorder interface {
	Record(evt Event)
}

type Summary struct {
	SearchPasses   int
	FoldersSkipped int
	Found          int
	Timeouts       int
	Submitted      int
	Unauthorized   int
	Refreshed      int
	Errors         int
	LastError      error
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"searchPasses", s.SearchPasses,
		"foldersSkipped", s.FoldersSkipped,
		"found", s.Found,
		"timeouts", s.Timeouts,
		"submitted", s.Submitted,
		"unauthorized", s.Unauthorized,
		"refreshed", s.Refreshed,
		"errors", s.Errors,
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

// Collector tallies events. It is safe for concurrent use.
type Collector struct {
	mu      sync.Mutex
	summary Summary
	started time.Time
}

func NewCollector() *Collector {
	return &Collector{started: time.Now()}
}

func (c *Collector) Record(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch evt.Type {
	case EventTypeSearchPass:
		c.summary.SearchPasses++
	case EventTypeFolderSkip:
		c.summary.FoldersSkipped++
	case EventTypeFound:
		c.summary.Found++
	case EventTypeTimeout:
		c.summary.Timeouts++
	case EventTypeSubmitted:
		c.summary.Submitted++
	case EventTypeUnauthorized:
		c.summary.Unauthorized++
	case EventTypeRefreshed:
		c.summary.Refreshed++
	case EventTypeError:
		c.summary.Errors++
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	}
}

func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	summary := c.summary
	c.mu.Unlock()
	return summary
}

// Elapsed reports the time since the collector was created.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.started)
}

// Discard is a Recorder that drops every event.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(Event) {}

// Multi forwards every event to each non-nil recorder in order.
func Multi(recorders ...Recorder) Recorder {
	var out multi
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

type multi []Recorder

func (m multi) Record(evt Event) {
	for _, r := range m {
		r.Record(evt)
	}
}
