package state

import "time"

// Snapshot is a point-in-time copy of the externally visible session state,
// taken under one lock acquisition so the fields are mutually consistent.
type Snapshot struct {
	Locked         bool
	Disabled       bool
	HasPermission  bool
	BufferLen      int
	TalkKeyPressed bool

	// LockElapsed is time since the lock engaged, zero while unlocked.
	LockElapsed time.Duration

	// AutoUnlockRemaining is time until the safety release, zero when
	// unlocked or when auto-unlock is disabled.
	AutoUnlockRemaining time.Duration

	// AutoLockRemaining is time until inactivity locking, zero while locked.
	AutoLockRemaining time.Duration
}

// Snapshot returns a consistent copy of the observable state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	snap := Snapshot{
		Locked:         s.locked,
		Disabled:       s.disabled,
		HasPermission:  s.hasPermission,
		BufferLen:      len(s.inputBuffer),
		TalkKeyPressed: s.talkKeyPressed,
	}
	if s.locked && !s.lockStartTime.IsZero() {
		snap.LockElapsed = now.Sub(s.lockStartTime)
		if s.autoUnlockTimeout > 0 {
			if r := s.autoUnlockTimeout - snap.LockElapsed; r > 0 {
				snap.AutoUnlockRemaining = r
			}
		}
	}
	if !s.locked {
		if r := s.autoLockTimeout - now.Sub(s.lastInputTime); r > 0 {
			snap.AutoLockRemaining = r
		}
	}
	return snap
}
