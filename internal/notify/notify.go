// Package notify delivers user-facing failure messages produced by the
// transport. Every notifier implements Notify(message, kind) and must not
// block the caller.
package notify

import (
	"log/slog"
	"sync"
)

// KindError is the only kind the transport emits today.
const KindError = "error"

// Notifier receives a short human-readable message and a kind.
type Notifier interface {
	Notify(message, kind string)
}

// Log writes notifications to a structured logger.
type Log struct {
	logger *slog.Logger
}

// NewLog returns a notifier that logs at warn level.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}

	return &Log{logger: logger}
}

// Notify logs the message.
func (l *Log) Notify(message, kind string) {
	l.logger.Warn("notification", slog.String("kind", kind), slog.String("message", message))
}

// Multi fans a notification out to several notifiers in order.
type Multi []Notifier

// Notify forwards to every notifier.
func (m Multi) Notify(message, kind string) {
	for _, n := range m {
		if n != nil {
			n.Notify(message, kind)
		}
	}
}

// Notification is one recorded delivery.
type Notification struct {
	Message string
	Kind    string
}

// Recorder keeps every notification in memory. Used by tests and by the CLI
// to report what a batch of calls surfaced.
type Recorder struct {
	mu  sync.Mutex
	got []Notification
}

// Notify records the message.
func (r *Recorder) Notify(message, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.got = append(r.got, Notification{Message: message, Kind: kind})
}

// All returns a copy of everything recorded so far.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Notification, len(r.got))
	copy(out, r.got)

	return out
}
