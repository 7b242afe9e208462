package scheduler

import (
	"log/slog"
	"time"
)

type options struct {
	checkInterval   time.Duration
	noticeWindow    time.Duration
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// Option configures the expiry scheduler.
type Option func(*options)

// WithCheckInterval sets how often the store is scanned for expiring
// orders. Zero or negative values are ignored.
func WithCheckInterval(interval time.Duration) Option {
	return func(o *options) {
		if interval > 0 {
			o.checkInterval = interval
		}
	}
}

// WithNoticeWindow sets how far ahead of expiry renewal starts. Zero or
// negative values are ignored.
func WithNoticeWindow(window time.Duration) Option {
	return func(o *options) {
		if window > 0 {
			o.noticeWindow = window
		}
	}
}

// WithShutdownTimeout bounds how long Stop waits for an in-flight check.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout > 0 {
			o.shutdownTimeout = timeout
		}
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.logger = log
		}
	}
}
