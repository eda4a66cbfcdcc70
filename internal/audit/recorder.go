package audit

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nerrad567/module-manager/internal/module"
)

const (
	defaultBufferSize = 256

	// drainTimeout bounds writing buffered events during shutdown.
	drainTimeout = 5 * time.Second
)

// Logger defines the logging interface used by the recorder.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Recorder writes module events to a Repository from a single goroutine.
//
// ModuleEvent never blocks: when the buffer is full the event is dropped
// and a warning is logged. Writing is best effort and never fails the
// change being recorded.
type Recorder struct {
	repo    Repository
	events  chan Event
	logger  Logger
	dropped atomic.Int64
}

// NewRecorder creates a Recorder. Call Run to start writing.
func NewRecorder(repo Repository, bufferSize int, logger Logger) *Recorder {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Recorder{
		repo:   repo,
		events: make(chan Event, bufferSize),
		logger: logger,
	}
}

// ModuleEvent implements module.Observer.
func (r *Recorder) ModuleEvent(_ context.Context, e module.Event) {
	r.Record(FromModuleEvent(e))
}

// Record queues e for writing.
func (r *Recorder) Record(e Event) {
	select {
	case r.events <- e:
	default:
		r.dropped.Add(1)
		if r.logger != nil {
			r.logger.Warn("Event Log Full",
				"description", "module event dropped, event log writer is behind",
				"action", e.Action, "mac", e.MAC)
		}
	}
}

// Dropped returns the number of events discarded because the buffer was full.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Run writes queued events until ctx is cancelled, then flushes what is
// already buffered.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case e := <-r.events:
			r.write(ctx, e)
		case <-ctx.Done():
			r.drain()
			return
		}
	}
}

func (r *Recorder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case e := <-r.events:
			r.write(ctx, e)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, e Event) {
	if err := r.repo.Create(ctx, &e); err != nil && r.logger != nil {
		r.logger.Error("Event Log Write Failed",
			"description", "could not store module event",
			"action", e.Action, "mac", e.MAC, "error", err)
	}
}

// FromModuleEvent converts a committed module change into a log row.
func FromModuleEvent(e module.Event) Event {
	ev := Event{
		Action:    string(e.Action),
		Actor:     e.Actor,
		Source:    e.Source,
		CreatedAt: e.At,
	}

	// Copied: the same Details map is handed to every observer.
	details := make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	if e.Module != nil {
		ev.ModuleID = e.Module.ID
		ev.MAC = e.Module.MAC
		if _, ok := details["place"]; !ok && e.Module.Place != "" {
			details["place"] = e.Module.Place
		}
	}
	if len(details) > 0 {
		ev.Details = details
	}
	return ev
}
