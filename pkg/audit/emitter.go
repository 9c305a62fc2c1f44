package audit

import (
	"log/slog"
	"sync"
)

// EventEmitter accepts structured protocol events for recording.
type EventEmitter interface {
	Emit(Event) error
}

// NopEmitter discards all events. Use when no audit backend is configured.
type NopEmitter struct{}

// Emit discards the event.
func (NopEmitter) Emit(Event) error { return nil }

// SlogEmitter writes events to a structured logger.
type SlogEmitter struct {
	logger *slog.Logger
}

// NewSlogEmitter creates an emitter backed by the given logger.
// If logger is nil, slog.Default() is used.
func NewSlogEmitter(logger *slog.Logger) *SlogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogEmitter{logger: logger}
}

// Emit writes the event as a structured log record.
func (e *SlogEmitter) Emit(ev Event) error {
	attrs := []any{
		"severity", ev.Severity.String(),
		"device_id", ev.DeviceID,
		"actor_id", ev.ActorID,
	}
	for k, v := range ev.Details {
		attrs = append(attrs, k, v)
	}
	e.logger.Info(string(ev.Type), attrs...)
	return nil
}

// MultiEmitter fans events out to several backends. Backend failures are
// logged and do not stop delivery to the remaining backends.
type MultiEmitter struct {
	backends []EventEmitter
	logger   *slog.Logger
}

// NewMultiEmitter creates an emitter that forwards events to all backends.
// If logger is nil, slog.Default() is used for error reporting.
func NewMultiEmitter(logger *slog.Logger, backends ...EventEmitter) *MultiEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiEmitter{backends: backends, logger: logger}
}

// Emit forwards the event to every backend.
func (e *MultiEmitter) Emit(ev Event) error {
	for _, b := range e.backends {
		if err := b.Emit(ev); err != nil {
			e.logger.Error("audit emit failed", "event", string(ev.Type), "error", err)
		}
	}
	return nil
}

// Recorder captures emitted events in memory for test verification.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit records the event.
func (r *Recorder) Emit(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a snapshot of everything emitted so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Count returns the number of events emitted so far.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Last returns the most recently emitted event. Panics if none were emitted.
func (r *Recorder) Last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}
