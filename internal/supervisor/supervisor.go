// Package supervisor runs the periodic maintenance loops of the lock
// daemon.
//
// Four loops run on independent tickers:
//   - buffer reset: expires a partially typed passphrase after idle time
//   - auto-lock: engages the lock after user inactivity
//   - auto-unlock: safety release of a long-forgotten lock
//   - permission monitor: refreshes the cached interception grant
//
// Each loop skips its work while the daemon is disabled; the permission
// monitor keeps the cache fresh regardless but takes no action.
package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"handsoffd/internal/permissions"
	"handsoffd/internal/state"
)

// Default check intervals. Coarser than the timeouts they police on
// purpose: a few seconds of slack on a minutes-scale timeout is invisible,
// and the loops stay off profiler radar.
const (
	BufferResetInterval = 1 * time.Second
	AutoLockInterval    = 5 * time.Second
	AutoUnlockInterval  = 10 * time.Second
	PermissionInterval  = 15 * time.Second
)

// Intervals configures the loop periods. Tests shrink them.
type Intervals struct {
	BufferReset time.Duration
	AutoLock    time.Duration
	AutoUnlock  time.Duration
	Permission  time.Duration
}

// DefaultIntervals returns the production loop periods.
func DefaultIntervals() Intervals {
	return Intervals{
		BufferReset: BufferResetInterval,
		AutoLock:    AutoLockInterval,
		AutoUnlock:  AutoUnlockInterval,
		Permission:  PermissionInterval,
	}
}

// Hooks receive supervisor-driven transitions after the state change has
// been applied. Any field may be nil. Hooks run on the loop goroutine, so
// they must not block for long.
type Hooks struct {
	AutoLocked         func()
	AutoUnlocked       func()
	PermissionLost     func()
	PermissionRestored func()
}

// Supervisor owns the maintenance goroutines.
type Supervisor struct {
	state     *state.State
	oracle    permissions.Oracle
	intervals Intervals
	hooks     Hooks
	logger    *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New creates a Supervisor. A nil logger falls back to slog.Default.
func New(st *state.State, oracle permissions.Oracle, intervals Intervals, hooks Hooks, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		state:     st,
		oracle:    oracle,
		intervals: intervals,
		hooks:     hooks,
		logger:    logger,
	}
}

// Start launches the loops. Returns immediately.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(4)
	go s.bufferResetLoop(ctx)
	go s.autoLockLoop(ctx)
	go s.autoUnlockLoop(ctx)
	go s.permissionLoop(ctx)
}

// Stop cancels the loops and waits for them to exit.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

func (s *Supervisor) bufferResetLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.intervals.BufferReset)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.state.IsDisabled() || !s.state.IsLocked() {
				continue
			}
			if s.state.Snapshot().BufferLen > 0 && s.state.ShouldResetBuffer() {
				s.state.ClearBuffer()
				s.logger.Debug("passphrase buffer expired")
			}
		}
	}
}

func (s *Supervisor) autoLockLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.intervals.AutoLock)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.state.IsDisabled() {
				continue
			}
			// Never lock without the ability to intercept the unlock
			// passphrase: a lock the user cannot type through is a trap.
			if !s.state.HasPermission() {
				continue
			}
			if s.state.ShouldAutoLock() {
				s.state.SetLocked(true)
				s.logger.Info("locked after inactivity")
				if s.hooks.AutoLocked != nil {
					s.hooks.AutoLocked()
				}
			}
		}
	}
}

func (s *Supervisor) autoUnlockLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.intervals.AutoUnlock)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.state.IsDisabled() {
				continue
			}
			if s.state.ShouldAutoUnlock() {
				s.state.TriggerAutoUnlock()
				s.logger.Warn("safety timeout released the lock")
				if s.hooks.AutoUnlocked != nil {
					s.hooks.AutoUnlocked()
				}
			}
		}
	}
}

func (s *Supervisor) permissionLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.intervals.Permission)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkPermission()
		}
	}
}

// checkPermission refreshes the cached grant and reacts to edges.
func (s *Supervisor) checkPermission() {
	granted := s.oracle.Granted()
	had := s.state.HasPermission()
	s.state.SetPermission(granted)

	if granted == had {
		return
	}

	if !granted {
		s.logger.Warn("input interception permission revoked")
		if !s.state.IsDisabled() {
			// The hook is dead or dying; a lock that can no longer see
			// keystrokes would hold the session hostage.
			if s.state.IsLocked() {
				s.state.TriggerAutoUnlock()
			}
			s.state.RequestStopTap()
		}
		if s.hooks.PermissionLost != nil {
			s.hooks.PermissionLost()
		}
		return
	}

	s.logger.Info("input interception permission restored")
	if !s.state.IsDisabled() {
		s.state.RequestStartTap()
	}
	if s.hooks.PermissionRestored != nil {
		s.hooks.PermissionRestored()
	}
}
