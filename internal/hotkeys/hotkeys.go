// Package hotkeys registers system-global shortcuts.
//
// This is the detection path that works while the daemon is unlocked and in
// the background; once the lock engages, the interception engine sees every
// chord itself. Both paths share one binding table (internal/keycode), so a
// configured key can never lock via one path and fail to unlock via the
// other.
package hotkeys

import (
	"context"
	"errors"
	"sync"

	"handsoffd/internal/keycode"
)

// Event is a fired shortcut.
type Event int

const (
	// EventLock fires when the lock chord is pressed.
	EventLock Event = iota
	// EventTalkDown and EventTalkUp track the talk chord's hold state.
	EventTalkDown
	EventTalkUp
)

// String returns a short name for logging.
func (e Event) String() string {
	switch e {
	case EventLock:
		return "lock"
	case EventTalkDown:
		return "talk_down"
	case EventTalkUp:
		return "talk_up"
	}
	return "unknown"
}

// Listener delivers global shortcut events.
type Listener interface {
	// Start registers the shortcuts with the OS.
	Start(ctx context.Context) error

	// Stop unregisters them. Idempotent.
	Stop() error

	// Events returns the delivery channel. Events are dropped, not
	// queued, when the consumer falls behind.
	Events() <-chan Event
}

var (
	// ErrAlreadyRunning is returned by Start on a running listener.
	ErrAlreadyRunning = errors.New("hotkey listener already running")

	// ErrNotAvailable is returned on platforms without global shortcuts.
	ErrNotAvailable = errors.New("global hotkeys not available on this platform")

	// ErrRegisterFailed is returned when the OS rejects a registration,
	// typically because another application owns the chord.
	ErrRegisterFailed = errors.New("hotkey registration failed")
)

// New creates a Listener for the current platform with the given bindings.
func New(bindings keycode.Bindings) Listener {
	return newPlatformListener(bindings)
}

// baseListener carries the event channel and running flag shared by
// implementations.
type baseListener struct {
	mu      sync.Mutex
	running bool
	events  chan Event
}

func (b *baseListener) Events() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.events == nil {
		b.events = make(chan Event, 16)
	}
	return b.events
}

func (b *baseListener) emit(e Event) {
	b.mu.Lock()
	ch := b.events
	b.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- e:
	default:
	}
}

func (b *baseListener) isRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

func (b *baseListener) setRunning(running bool) {
	b.mu.Lock()
	if running && b.events == nil {
		b.events = make(chan Event, 16)
	}
	b.running = running
	b.mu.Unlock()
}

// Simulated is a Listener for tests, fired by hand.
type Simulated struct {
	baseListener
}

// NewSimulated creates a listener for testing.
func NewSimulated() *Simulated {
	return &Simulated{}
}

// Start marks the listener running.
func (s *Simulated) Start(ctx context.Context) error {
	if s.isRunning() {
		return ErrAlreadyRunning
	}
	s.setRunning(true)
	return nil
}

// Stop marks the listener stopped. Idempotent.
func (s *Simulated) Stop() error {
	s.setRunning(false)
	return nil
}

// Running reports whether the shortcuts are currently registered.
func (s *Simulated) Running() bool {
	return s.isRunning()
}

// Fire delivers an event as the OS would.
func (s *Simulated) Fire(e Event) {
	if s.isRunning() {
		s.emit(e)
	}
}

var _ Listener = (*Simulated)(nil)
