// Package tap provides system-wide input interception.
//
// A Tap observes every keyboard and mouse event in the user session and
// decides, per event, whether the event reaches the foreground application
// or is swallowed. The decision logic lives in Engine and is shared by every
// platform implementation; the platform code only translates OS events into
// InputEvent values and verdicts back into OS terms.
//
// Platform support:
// - macOS: CGEventTap at the session level (requires Accessibility permission)
// - other platforms: no interception backend; SimulatedTap covers tests
package tap

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"handsoffd/internal/keycode"
)

// Kind identifies the class of an intercepted event.
type Kind int

const (
	KindKeyDown Kind = iota
	KindKeyUp
	KindFlagsChanged
	KindMouseMove
	KindMouseDown
	KindMouseUp
	KindScroll
	KindDrag

	// Sentinel kinds synthesized by the OS rather than the user. The system
	// delivers these through the same callback as real events.
	KindDisabledByTimeout
	KindDisabledByUserInput
)

// String returns a short name for logging.
func (k Kind) String() string {
	switch k {
	case KindKeyDown:
		return "key_down"
	case KindKeyUp:
		return "key_up"
	case KindFlagsChanged:
		return "flags_changed"
	case KindMouseMove:
		return "mouse_move"
	case KindMouseDown:
		return "mouse_down"
	case KindMouseUp:
		return "mouse_up"
	case KindScroll:
		return "scroll"
	case KindDrag:
		return "drag"
	case KindDisabledByTimeout:
		return "disabled_by_timeout"
	case KindDisabledByUserInput:
		return "disabled_by_user_input"
	}
	return "unknown"
}

// InputEvent is one intercepted event, already translated out of OS terms.
type InputEvent struct {
	Kind    Kind
	KeyCode int64
	// Modifiers is zero for mouse events.
	Modifiers keycode.Modifiers
}

// Verdict is the engine's ruling on a single event.
type Verdict int

const (
	// VerdictPass delivers the event to the foreground application.
	VerdictPass Verdict = iota
	// VerdictSuppress swallows the event.
	VerdictSuppress
)

// Tap is a system input interception handle.
type Tap interface {
	// Start creates the OS hook and begins routing events through the
	// engine. Returns ErrPermissionDenied when the OS refuses the hook.
	Start(ctx context.Context) error

	// Stop tears the hook down and releases OS resources. Idempotent.
	Stop() error

	// Reenable re-arms an existing hook the OS disabled by timeout. The
	// handle is reused; no new OS resource is allocated.
	Reenable() error

	// Running reports whether the hook is currently installed.
	Running() bool

	// Available reports whether interception can work on this platform
	// with current permissions, with a human-readable explanation.
	Available() (bool, string)
}

var (
	// ErrPermissionDenied is returned when the OS refuses to install the
	// hook, typically a missing Accessibility grant.
	ErrPermissionDenied = errors.New("insufficient permissions for input interception")

	// ErrAlreadyRunning is returned by Start on a running tap.
	ErrAlreadyRunning = errors.New("tap already running")

	// ErrNotRunning is returned by Reenable on a stopped tap.
	ErrNotRunning = errors.New("tap not running")

	// ErrNotAvailable is returned on platforms without a backend.
	ErrNotAvailable = errors.New("input interception not available on this platform")
)

// Lifetime counters across all taps in the process. A create count that
// outruns the release count at shutdown indicates a leaked OS handle.
var (
	tapsCreated  atomic.Int64
	tapsReleased atomic.Int64
)

// Stats reports lifetime tap creations and releases.
func Stats() (created, released int64) {
	return tapsCreated.Load(), tapsReleased.Load()
}

// BaseTap carries the running flag shared by platform implementations.
type BaseTap struct {
	mu      sync.Mutex
	running bool
}

// Running reports whether the tap is installed.
func (b *BaseTap) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// SetRunning records the installed state.
func (b *BaseTap) SetRunning(running bool) {
	b.mu.Lock()
	b.running = running
	b.mu.Unlock()
}

// New creates a Tap for the current platform driving the given engine.
func New(engine *Engine) Tap {
	return newPlatformTap(engine)
}
