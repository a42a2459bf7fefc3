// Package state holds the shared session state for the input-lock daemon.
//
// A single State value is the only mutable structure shared across the
// event-callback goroutine, the timer supervisors, the hotkey listener, and
// the front-end surfaces. Every field access goes through one mutex with
// short critical sections; no method blocks while holding it.
package state

import (
	"sync"
	"time"
)

// Timeout bounds, in seconds. Values outside these ranges are rejected by
// configuration validation before they reach a State.
const (
	AutoLockMinSeconds     = 20
	AutoLockMaxSeconds     = 600
	AutoLockDefaultSeconds = 120

	AutoUnlockMinSeconds = 60
	AutoUnlockMaxSeconds = 900

	BufferResetDefaultSeconds = 3
)

// State is the session record shared across goroutines. The zero value is
// not usable; construct with New.
type State struct {
	mu sync.Mutex

	locked      bool
	inputBuffer []rune

	lastKeyTime   time.Time // zero until first keystroke while locked
	lastInputTime time.Time

	passphraseDigest string

	autoLockTimeout    time.Duration
	bufferResetTimeout time.Duration
	autoUnlockTimeout  time.Duration // 0 = disabled

	talkKeyPressed bool
	lockStartTime  time.Time // zero while unlocked

	hasPermission bool

	// One-shot request flags, each a single-slot mailbox: repeated requests
	// before consumption coalesce, and exactly one consumer observes each.
	stopTapRequested     bool
	startTapRequested    bool
	reenableTapRequested bool
	exitRequested        bool

	disabled bool

	// now is replaceable for tests.
	now func() time.Time
}

// New returns a State with default timeouts, unlocked, enabled, and the
// inactivity clock starting now.
func New() *State {
	s := &State{
		autoLockTimeout:    AutoLockDefaultSeconds * time.Second,
		bufferResetTimeout: BufferResetDefaultSeconds * time.Second,
		now:                time.Now,
	}
	s.lastInputTime = s.now()
	return s
}

// SetClock replaces the time source. Test hook only.
func (s *State) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// IsLocked reports the current lock flag.
func (s *State) IsLocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// SetLocked sets the lock flag. Only the unlocked→locked transition records
// the lock start time; repeated locks leave it untouched so the auto-unlock
// deadline is not silently extended. Any transition to unlocked clears the
// start time and the input buffer.
func (s *State) SetLocked(locked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if locked {
		if !s.locked {
			s.lockStartTime = s.now()
		}
		s.locked = true
		return
	}

	s.locked = false
	s.lockStartTime = time.Time{}
	s.inputBuffer = s.inputBuffer[:0]
}

// TouchInput refreshes the inactivity clock. Called for every observed input
// event, including mouse movement.
func (s *State) TouchInput() {
	s.mu.Lock()
	s.lastInputTime = s.now()
	s.mu.Unlock()
}

// TouchKey refreshes the keystroke clock driving buffer expiry.
func (s *State) TouchKey() {
	s.mu.Lock()
	s.lastKeyTime = s.now()
	s.mu.Unlock()
}

// AppendBuffer appends a typed character to the passphrase buffer.
// Appends are ignored while unlocked; the buffer only accumulates during a
// lock session.
func (s *State) AppendBuffer(ch rune) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.locked {
		return
	}
	s.inputBuffer = append(s.inputBuffer, ch)
}

// PopBuffer removes the last buffered character. No-op on an empty buffer.
func (s *State) PopBuffer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.inputBuffer); n > 0 {
		s.inputBuffer = s.inputBuffer[:n-1]
	}
}

// Buffer returns a copy of the typed-passphrase buffer as a string.
func (s *State) Buffer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.inputBuffer)
}

// ClearBuffer empties the passphrase buffer.
func (s *State) ClearBuffer() {
	s.mu.Lock()
	s.inputBuffer = s.inputBuffer[:0]
	s.mu.Unlock()
}

// SetPassphraseDigest stores the digest candidates are verified against.
// Set once at startup.
func (s *State) SetPassphraseDigest(digest string) {
	s.mu.Lock()
	s.passphraseDigest = digest
	s.mu.Unlock()
}

// PassphraseDigest returns the stored digest, empty if none was set.
func (s *State) PassphraseDigest() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.passphraseDigest
}

// SetAutoLockTimeout sets the inactivity auto-lock timeout.
func (s *State) SetAutoLockTimeout(d time.Duration) {
	s.mu.Lock()
	s.autoLockTimeout = d
	s.mu.Unlock()
}

// SetBufferResetTimeout sets the idle buffer-expiry timeout.
func (s *State) SetBufferResetTimeout(d time.Duration) {
	s.mu.Lock()
	s.bufferResetTimeout = d
	s.mu.Unlock()
}

// SetAutoUnlockTimeout sets the safety auto-unlock timeout. Zero disables
// the mechanism entirely.
func (s *State) SetAutoUnlockTimeout(d time.Duration) {
	s.mu.Lock()
	s.autoUnlockTimeout = d
	s.mu.Unlock()
}

// AutoUnlockTimeout returns the configured safety timeout, 0 if disabled.
func (s *State) AutoUnlockTimeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoUnlockTimeout
}

// SetTalkKeyPressed tracks the physical hold state of the talk hotkey.
func (s *State) SetTalkKeyPressed(pressed bool) {
	s.mu.Lock()
	s.talkKeyPressed = pressed
	s.mu.Unlock()
}

// IsTalkKeyPressed reports whether the talk hotkey is currently held.
func (s *State) IsTalkKeyPressed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.talkKeyPressed
}

// ShouldResetBuffer reports whether the buffer has been idle past the reset
// timeout. False if no key has been typed yet.
func (s *State) ShouldResetBuffer() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastKeyTime.IsZero() {
		return false
	}
	return s.now().Sub(s.lastKeyTime) >= s.bufferResetTimeout
}

// ShouldAutoLock reports whether the inactivity auto-lock condition holds.
// Permission gating is the caller's concern; this is a pure time check.
func (s *State) ShouldAutoLock() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.locked && s.now().Sub(s.lastInputTime) >= s.autoLockTimeout
}

// AutoLockRemaining returns seconds until auto-lock would engage, or false
// while locked.
func (s *State) AutoLockRemaining() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
		return 0, false
	}
	remaining := s.autoLockTimeout - s.now().Sub(s.lastInputTime)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// ShouldAutoUnlock reports whether the safety auto-unlock deadline has
// passed. Always false when unlocked, when the timeout is disabled, or when
// no lock start time was recorded.
func (s *State) ShouldAutoUnlock() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.locked || s.autoUnlockTimeout == 0 || s.lockStartTime.IsZero() {
		return false
	}
	return s.now().Sub(s.lockStartTime) >= s.autoUnlockTimeout
}

// TriggerAutoUnlock force-unlocks after the safety deadline. The inactivity
// clock is refreshed before the lock flag clears; reversing that order lets
// the auto-lock supervisor observe "unlocked and long idle" on its next tick
// and immediately re-lock, defeating the safety release.
func (s *State) TriggerAutoUnlock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.locked {
		return
	}
	s.lastInputTime = s.now()
	s.locked = false
	s.lockStartTime = time.Time{}
	s.inputBuffer = s.inputBuffer[:0]
}

// LockElapsed returns time since the lock engaged, or false while unlocked.
func (s *State) LockElapsed() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lockStartTime.IsZero() {
		return 0, false
	}
	return s.now().Sub(s.lockStartTime), true
}

// AutoUnlockRemaining returns time until the safety unlock, or false when
// unlocked or when the mechanism is disabled.
func (s *State) AutoUnlockRemaining() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.locked || s.autoUnlockTimeout == 0 || s.lockStartTime.IsZero() {
		return 0, false
	}
	remaining := s.autoUnlockTimeout - s.now().Sub(s.lockStartTime)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// SetPermission caches the OS permission grant. Written only by the
// permission monitor, never from the event hot path.
func (s *State) SetPermission(granted bool) {
	s.mu.Lock()
	s.hasPermission = granted
	s.mu.Unlock()
}

// HasPermission returns the cached permission grant.
func (s *State) HasPermission() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasPermission
}

// RequestStopTap asks the controller to tear the interception hook down.
func (s *State) RequestStopTap() {
	s.mu.Lock()
	s.stopTapRequested = true
	s.mu.Unlock()
}

// ConsumeStopTap returns and clears the stop request.
func (s *State) ConsumeStopTap() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.stopTapRequested
	s.stopTapRequested = false
	return v
}

// RequestStartTap asks the controller to recreate the interception hook,
// typically after a permission restoration.
func (s *State) RequestStartTap() {
	s.mu.Lock()
	s.startTapRequested = true
	s.mu.Unlock()
}

// ConsumeStartTap returns and clears the start request.
func (s *State) ConsumeStartTap() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.startTapRequested
	s.startTapRequested = false
	return v
}

// RequestReenableTap asks the controller to re-enable the existing hook
// after a timeout revocation. The handle is reused, not recreated, so no
// kernel resource is leaked across sleep/wake cycles.
func (s *State) RequestReenableTap() {
	s.mu.Lock()
	s.reenableTapRequested = true
	s.mu.Unlock()
}

// ConsumeReenableTap returns and clears the re-enable request.
func (s *State) ConsumeReenableTap() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.reenableTapRequested
	s.reenableTapRequested = false
	return v
}

// RequestExit asks a non-interactive front-end to terminate the process.
func (s *State) RequestExit() {
	s.mu.Lock()
	s.exitRequested = true
	s.mu.Unlock()
}

// ConsumeExit returns and clears the exit request.
func (s *State) ConsumeExit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.exitRequested
	s.exitRequested = false
	return v
}

// SetDisabled flips the paused mode in which interception and hotkeys are
// torn down and supervisors skip work.
func (s *State) SetDisabled(disabled bool) {
	s.mu.Lock()
	s.disabled = disabled
	s.mu.Unlock()
}

// IsDisabled reports whether the daemon is in paused mode.
func (s *State) IsDisabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disabled
}
