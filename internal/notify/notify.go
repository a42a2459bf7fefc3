// Package notify delivers desktop notifications for lock-state changes.
//
// Linux uses the org.freedesktop.Notifications D-Bus service, macOS uses
// osascript. When no desktop channel is available the notifier degrades
// to structured log lines, so a headless daemon still records the events
// a notification would have announced.
package notify

import (
	"context"
	"log/slog"
)

// Notifier delivers a user-visible notification.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// New returns the platform notifier, falling back to log-only delivery
// when the desktop channel cannot be reached.
func New(logger *slog.Logger) Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	n, err := newPlatformNotifier()
	if err != nil {
		logger.Warn("desktop notifications unavailable, using log fallback", "error", err)
		return &LogNotifier{logger: logger}
	}
	return n
}

// LogNotifier writes notifications to the log instead of the desktop.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that only logs.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, title, body string) error {
	n.logger.Info("notification", "title", title, "body", body)
	return nil
}

// Nop discards all notifications. Used when notifications are disabled
// in the configuration.
type Nop struct{}

func (Nop) Notify(ctx context.Context, title, body string) error { return nil }
