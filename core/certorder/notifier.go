package certorder

import (
	"context"
	"log/slog"
)

// Notifier is the logging/notification collaborator. The core treats it as a
// plain message sink; delivery (log file, dashboard feed, webhook) is the
// implementation's concern.
type Notifier interface {
	Info(message string)
	Error(message string)
	Debug(message string)

	// Update signals a user-visible progress change, e.g. for a live
	// dashboard feed. Implementations may treat it like Info.
	Update(message string)
}

// SlogNotifier adapts a *slog.Logger to the Notifier interface.
type SlogNotifier struct {
	log *slog.Logger
}

// NewSlogNotifier wraps the given logger. A nil logger yields a notifier
// backed by slog.Default().
func NewSlogNotifier(log *slog.Logger) *SlogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &SlogNotifier{log: log}
}

func (n *SlogNotifier) Info(message string)  { n.log.InfoContext(context.Background(), message) }
func (n *SlogNotifier) Error(message string) { n.log.ErrorContext(context.Background(), message) }
func (n *SlogNotifier) Debug(message string) { n.log.DebugContext(context.Background(), message) }
func (n *SlogNotifier) Update(message string) {
	n.log.InfoContext(context.Background(), message, slog.String("kind", "update"))
}

// NopNotifier discards all messages.
type NopNotifier struct{}

func (NopNotifier) Info(string)   {}
func (NopNotifier) Error(string)  {}
func (NopNotifier) Debug(string)  {}
func (NopNotifier) Update(string) {}
