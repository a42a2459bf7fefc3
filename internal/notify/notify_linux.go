//go:build linux

package notify

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	notifyService   = "org.freedesktop.Notifications"
	notifyPath      = "/org/freedesktop/Notifications"
	notifyMethod    = "org.freedesktop.Notifications.Notify"
	notifyTimeoutMs = 5000
)

// dbusNotifier talks to the desktop notification daemon on the session bus.
type dbusNotifier struct {
	conn *dbus.Conn
}

func newPlatformNotifier() (Notifier, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return &dbusNotifier{conn: conn}, nil
}

func (n *dbusNotifier) Notify(ctx context.Context, title, body string) error {
	obj := n.conn.Object(notifyService, notifyPath)
	call := obj.CallWithContext(ctx, notifyMethod, 0,
		"handsoffd",          // app name
		uint32(0),            // replaces id
		"",                   // icon
		title,                // summary
		body,                 // body
		[]string{},           // actions
		map[string]dbus.Variant{
			"urgency": dbus.MakeVariant(byte(2)), // critical; lock alerts must not be missed
		},
		int32(notifyTimeoutMs),
	)
	if call.Err != nil {
		return fmt.Errorf("dbus notify: %w", call.Err)
	}
	return nil
}
