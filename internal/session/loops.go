package session

import (
	"context"
	"errors"
	"time"

	"handsoffd/internal/hotkeys"
	"handsoffd/internal/store"
)

// enqueue hands a transition to the poll loop. Called from the tap
// callback thread and supervisor goroutines; never blocks.
func (c *Controller) enqueue(event, reason string) {
	select {
	case c.transitions <- transition{event: event, reason: reason}:
	default:
		c.logger.Warn("transition queue full, dropping", "event", event)
	}
}

// pollLoop drains queued transitions and the one-shot tap requests.
func (c *Controller) pollLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case tr := <-c.transitions:
			c.handleTransition(ctx, tr)
		case <-ticker.C:
			c.drainRequests(ctx)
		}
	}
}

// drainRequests consumes the one-shot flags set by the engine and the
// permission monitor.
func (c *Controller) drainRequests(ctx context.Context) {
	if c.st.ConsumeStopTap() {
		c.logger.Info("tap stop requested")
		c.stopTap()
	}

	if c.st.ConsumeReenableTap() {
		c.mu.Lock()
		t := c.tap
		c.mu.Unlock()
		if t != nil {
			if err := t.Reenable(); err != nil {
				c.logger.Warn("tap re-enable failed, recreating", "error", err)
				c.stopTap()
				c.st.RequestStartTap()
			} else {
				c.logger.Info("tap re-enabled after timeout revocation")
			}
		}
	}

	if c.st.ConsumeStartTap() {
		if !c.st.IsDisabled() && c.st.HasPermission() {
			if err := c.startTap(ctx); err != nil {
				c.logger.Error("tap start failed", "error", err)
			}
		}
	}

	if c.st.ConsumeExit() {
		c.logger.Warn("tap disabled by user input, shutting down")
		if c.opts.OnExit != nil {
			c.opts.OnExit()
		}
	}
}

// handleTransition logs, records and announces one state change.
func (c *Controller) handleTransition(ctx context.Context, tr transition) {
	c.logger.Info("state transition", "event", tr.event, "reason", tr.reason)
	c.record(tr.event, tr.reason)

	title, body := notificationText(tr)
	if title == "" {
		return
	}
	nctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.opts.Notifier.Notify(nctx, title, body); err != nil {
		c.logger.Debug("notification failed", "error", err)
	}
}

// notificationText maps a transition to user-facing notification text.
// Empty title means no notification for this event.
func notificationText(tr transition) (title, body string) {
	switch tr.event {
	case store.EventLocked, store.EventAutoLocked:
		return "Input Locked", "Type your passphrase to unlock."
	case store.EventUnlocked:
		return "Input Unlocked", "Keyboard and mouse are live again."
	case store.EventAutoUnlocked:
		return "Input Unlocked", "Safety timeout released the lock."
	case store.EventPermissionLost:
		return "Input Lock Suspended", "Input monitoring permission was revoked."
	case store.EventPermissionRestored:
		return "Input Lock Restored", "Input monitoring permission is back."
	default:
		return "", ""
	}
}

// record persists a transition to the audit trail, if one is configured.
func (c *Controller) record(event, reason string) {
	if c.opts.Recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := c.opts.Recorder.Record(ctx, event, reason); err != nil {
		c.logger.Warn("audit record failed", "event", event, "error", err)
	}
}

// hotkeyLoop handles global shortcut events. The hotkey path duplicates
// what the engine already does for lock and talk chords, so both work
// whether or not events are currently flowing through the tap.
func (c *Controller) hotkeyLoop(ctx context.Context, listener hotkeys.Listener) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-listener.Events():
			if !ok {
				return
			}
			switch ev {
			case hotkeys.EventLock:
				if err := c.Lock("hotkey"); err != nil {
					c.logger.Debug("hotkey lock refused", "error", err)
				}
			case hotkeys.EventTalkDown:
				c.st.SetTalkKeyPressed(true)
			case hotkeys.EventTalkUp:
				c.st.SetTalkKeyPressed(false)
			}
		}
	}
}

// startTap creates and starts a fresh interception handle.
func (c *Controller) startTap(ctx context.Context) error {
	c.mu.Lock()
	if c.tap != nil && c.tap.Running() {
		c.mu.Unlock()
		return nil
	}
	t := c.opts.TapFactory(c.engine)
	c.tap = t
	c.mu.Unlock()

	if err := t.Start(ctx); err != nil {
		c.mu.Lock()
		c.tap = nil
		c.mu.Unlock()
		return err
	}
	c.logger.Info("tap started")
	return nil
}

// stopHotkeys unregisters the global shortcuts with the OS. The listener
// and its event channel are kept, so the hotkey loop survives a
// disable/enable cycle.
func (c *Controller) stopHotkeys() {
	c.mu.Lock()
	listener := c.listener
	c.mu.Unlock()

	if listener != nil {
		if err := listener.Stop(); err != nil {
			c.logger.Warn("hotkey unregister failed", "error", err)
		}
	}
}

// startHotkeys re-registers the shortcuts after stopHotkeys.
func (c *Controller) startHotkeys() {
	c.mu.Lock()
	listener := c.listener
	c.mu.Unlock()

	ctx := c.runContext()
	if listener == nil || ctx == nil {
		return
	}
	if err := listener.Start(ctx); err != nil && !errors.Is(err, hotkeys.ErrAlreadyRunning) {
		c.logger.Warn("hotkey re-registration failed", "error", err)
	}
}

// stopTap stops and releases the current handle, if any.
func (c *Controller) stopTap() {
	c.mu.Lock()
	t := c.tap
	c.tap = nil
	c.mu.Unlock()

	if t != nil {
		if err := t.Stop(); err != nil {
			c.logger.Warn("tap stop failed", "error", err)
		} else {
			c.logger.Info("tap released")
		}
	}
}
