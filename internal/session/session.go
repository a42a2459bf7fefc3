// Package session owns the lifetime of one interception session: the tap
// handle, the hotkey listener, and the timer supervisors. It is the façade
// the daemon, the IPC handler, and the tray all talk to.
//
// The tap callback thread never performs slow work. State transitions that
// originate inside the event callback are queued on a channel and drained
// by the controller's poll loop, which is also the only place the one-shot
// stop/start/reenable/exit requests are consumed.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"handsoffd/internal/auth"
	"handsoffd/internal/hotkeys"
	"handsoffd/internal/keycode"
	"handsoffd/internal/notify"
	"handsoffd/internal/permissions"
	"handsoffd/internal/state"
	"handsoffd/internal/store"
	"handsoffd/internal/supervisor"
	"handsoffd/internal/tap"
)

// Sentinel errors returned by controller operations.
var (
	ErrLocked         = errors.New("session is locked")
	ErrNotLocked      = errors.New("session is not locked")
	ErrDisabled       = errors.New("interception is disabled")
	ErrBadPassphrase  = errors.New("passphrase rejected")
	ErrNoPermission   = errors.New("input monitoring permission not granted")
	ErrAlreadyRunning = errors.New("session already running")
	ErrNotRunning     = errors.New("session not running")
)

// DefaultPollInterval is how often the controller drains queued
// transitions and one-shot tap requests.
const DefaultPollInterval = 500 * time.Millisecond

// Recorder persists state transitions. *store.Store satisfies it.
type Recorder interface {
	Record(ctx context.Context, event, reason string) (int64, error)
}

// Options configures a Controller. State and Oracle are required; the
// rest defaults to the real platform implementations.
type Options struct {
	State    *state.State
	Bindings keycode.Bindings
	Oracle   permissions.Oracle

	Intervals supervisor.Intervals
	Notifier  notify.Notifier
	Recorder  Recorder
	Logger    *slog.Logger

	// TapFactory builds the interception handle; defaults to tap.New.
	TapFactory func(*tap.Engine) tap.Tap

	// HotkeyFactory builds the global shortcut listener; defaults to
	// hotkeys.New. A nil listener from the factory disables the
	// secondary hotkey path.
	HotkeyFactory func(keycode.Bindings) hotkeys.Listener

	// Reloader re-reads the configuration file on demand.
	Reloader func() error

	// OnExit is invoked when the OS tears the tap down for user input,
	// which the daemon treats as a shutdown request.
	OnExit func()

	PollInterval time.Duration
	Version      string
}

// StatusReport is a point-in-time view of the session for status surfaces.
type StatusReport struct {
	Version       string
	StartedAt     time.Time
	Locked        bool
	Disabled      bool
	HasPermission bool
	TapRunning    bool
	TalkKeyHeld   bool
	BufferLen     int

	LockElapsed         time.Duration
	AutoUnlockRemaining time.Duration
	AutoLockRemaining   time.Duration

	TapsCreated  int64
	TapsReleased int64
}

// transition is a queued state change awaiting notification and recording.
type transition struct {
	event  string
	reason string
}

// Controller wires the engine, tap, hotkeys and supervisors together.
type Controller struct {
	opts   Options
	st     *state.State
	engine *tap.Engine
	sup    *supervisor.Supervisor
	logger *slog.Logger

	mu         sync.Mutex
	tap        tap.Tap
	listener   hotkeys.Listener
	running    bool
	startedAt  time.Time
	sessionCtx context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	transitions chan transition
}

// New creates a Controller. It does not start anything.
func New(opts Options) (*Controller, error) {
	if opts.State == nil {
		return nil, errors.New("session: state is required")
	}
	if opts.Oracle == nil {
		return nil, errors.New("session: permission oracle is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.TapFactory == nil {
		opts.TapFactory = tap.New
	}
	if opts.HotkeyFactory == nil {
		opts.HotkeyFactory = hotkeys.New
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Intervals == (supervisor.Intervals{}) {
		opts.Intervals = supervisor.DefaultIntervals()
	}

	c := &Controller{
		opts:        opts,
		st:          opts.State,
		logger:      opts.Logger.With("component", "session"),
		transitions: make(chan transition, 16),
	}

	c.engine = tap.NewEngine(opts.State, opts.Bindings,
		func(reason string) { c.enqueue(store.EventLocked, reason) },
		func(reason string) { c.enqueue(store.EventUnlocked, reason) },
	)

	c.sup = supervisor.New(opts.State, opts.Oracle, opts.Intervals, supervisor.Hooks{
		AutoLocked:         func() { c.enqueue(store.EventAutoLocked, "inactivity") },
		AutoUnlocked:       func() { c.enqueue(store.EventAutoUnlocked, "safety timeout") },
		PermissionLost:     func() { c.enqueue(store.EventPermissionLost, "") },
		PermissionRestored: func() { c.enqueue(store.EventPermissionRestored, "") },
	}, opts.Logger)

	return c, nil
}

// Engine exposes the decision engine, used by tests to inject events.
func (c *Controller) Engine() *tap.Engine {
	return c.engine
}

// Start brings the session up: permission probe, tap, hotkeys,
// supervisors, poll loop.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.sessionCtx = runCtx
	c.cancel = cancel
	c.running = true
	c.startedAt = time.Now()
	c.mu.Unlock()

	granted := c.opts.Oracle.Granted()
	c.st.SetPermission(granted)
	if !granted {
		c.logger.Warn("starting without input monitoring permission",
			"instructions", c.opts.Oracle.Instructions())
	}

	if granted && !c.st.IsDisabled() {
		if err := c.startTap(runCtx); err != nil {
			c.logger.Error("tap start failed", "error", err)
		}
	}

	if listener := c.opts.HotkeyFactory(c.opts.Bindings); listener != nil {
		if err := listener.Start(runCtx); err != nil {
			if !errors.Is(err, hotkeys.ErrNotAvailable) {
				c.logger.Warn("hotkey listener unavailable", "error", err)
			}
		} else {
			c.mu.Lock()
			c.listener = listener
			c.mu.Unlock()

			c.wg.Add(1)
			go c.hotkeyLoop(runCtx, listener)
		}
	}

	c.sup.Start(runCtx)

	c.wg.Add(1)
	go c.pollLoop(runCtx)

	c.record(store.EventDaemonStarted, "")
	c.logger.Info("session started", "permission", granted, "disabled", c.st.IsDisabled())
	return nil
}

// Stop tears the session down in reverse order of Start.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return ErrNotRunning
	}
	c.running = false
	cancel := c.cancel
	listener := c.listener
	c.listener = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.sup.Stop()
	if listener != nil {
		listener.Stop()
	}
	c.stopTap()
	c.wg.Wait()

	c.record(store.EventDaemonStopped, "")
	c.logger.Info("session stopped")
	return nil
}

// Running reports whether Start has been called without a matching Stop.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Lock engages the input lock. Idempotent while already locked.
func (c *Controller) Lock(reason string) error {
	if c.st.IsDisabled() {
		return ErrDisabled
	}
	if !c.st.HasPermission() {
		// A lock without interception would be unenforceable and, worse,
		// un-unlockable by typing.
		return ErrNoPermission
	}
	if c.st.IsLocked() {
		return nil
	}
	if reason == "" {
		reason = "request"
	}

	c.st.SetLocked(true)
	c.enqueue(store.EventLocked, reason)
	return nil
}

// Unlock verifies the passphrase and releases the lock.
func (c *Controller) Unlock(passphrase string) error {
	if !c.st.IsLocked() {
		return ErrNotLocked
	}
	if !auth.VerifyPassphrase(passphrase, c.st.PassphraseDigest()) {
		return ErrBadPassphrase
	}

	// Refresh the idle clock before the lock flag clears, same ordering
	// as the forced safety release.
	c.st.TouchInput()
	c.st.SetLocked(false)
	c.enqueue(store.EventUnlocked, "request")
	return nil
}

// Disable suspends interception. Refused while locked: disabling would
// silently release the lock without a passphrase.
func (c *Controller) Disable() error {
	if c.st.IsLocked() {
		return ErrLocked
	}
	if c.st.IsDisabled() {
		return nil
	}

	c.st.SetDisabled(true)
	c.stopTap()
	c.stopHotkeys()
	c.enqueue(store.EventDisabled, "request")
	return nil
}

// Enable resumes interception after Disable.
func (c *Controller) Enable() error {
	if !c.st.IsDisabled() {
		return nil
	}

	// The disabled period must not count as idle time: refresh the
	// inactivity clock before the supervisor can see the enabled state,
	// or it locks the user out on its next tick.
	c.st.TouchInput()
	c.st.SetDisabled(false)
	c.startHotkeys()
	if c.st.HasPermission() {
		c.st.RequestStartTap()
	}
	c.enqueue(store.EventEnabled, "request")
	return nil
}

// RestartTap releases the current handle and creates a fresh one.
func (c *Controller) RestartTap() error {
	if c.st.IsDisabled() {
		return ErrDisabled
	}
	if !c.st.HasPermission() {
		return ErrNoPermission
	}

	c.stopTap()

	c.mu.Lock()
	runCtx := c.runContext()
	c.mu.Unlock()
	if runCtx == nil {
		return ErrNotRunning
	}

	if err := c.startTap(runCtx); err != nil {
		return fmt.Errorf("restart tap: %w", err)
	}
	c.enqueue(store.EventTapRestarted, "request")
	return nil
}

// ReloadConfig re-reads the configuration file if a reloader was wired.
func (c *Controller) ReloadConfig() error {
	if c.opts.Reloader == nil {
		return errors.New("configuration reload not supported")
	}
	return c.opts.Reloader()
}

// Status returns a point-in-time report for status surfaces.
func (c *Controller) Status() StatusReport {
	snap := c.st.Snapshot()
	created, released := tap.Stats()

	c.mu.Lock()
	tapRunning := c.tap != nil && c.tap.Running()
	startedAt := c.startedAt
	c.mu.Unlock()

	return StatusReport{
		Version:             c.opts.Version,
		StartedAt:           startedAt,
		Locked:              snap.Locked,
		Disabled:            snap.Disabled,
		HasPermission:       snap.HasPermission,
		TapRunning:          tapRunning,
		TalkKeyHeld:         snap.TalkKeyPressed,
		BufferLen:           snap.BufferLen,
		LockElapsed:         snap.LockElapsed,
		AutoUnlockRemaining: snap.AutoUnlockRemaining,
		AutoLockRemaining:   snap.AutoLockRemaining,
		TapsCreated:         created,
		TapsReleased:        released,
	}
}

// ApplyTimeouts installs new timeout settings, typically after a config
// hot reload.
func (c *Controller) ApplyTimeouts(autoLock, bufferReset, autoUnlock time.Duration) {
	c.st.SetAutoLockTimeout(autoLock)
	c.st.SetBufferResetTimeout(bufferReset)
	c.st.SetAutoUnlockTimeout(autoUnlock)
	c.logger.Info("timeouts updated",
		"auto_lock", autoLock, "buffer_reset", bufferReset, "auto_unlock", autoUnlock)
}

// runContext returns a context tied to the session lifetime, or nil when
// stopped. Caller holds c.mu.
func (c *Controller) runContext() context.Context {
	if !c.running {
		return nil
	}
	return c.sessionCtx
}
