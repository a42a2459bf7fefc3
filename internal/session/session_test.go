package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"handsoffd/internal/auth"
	"handsoffd/internal/hotkeys"
	"handsoffd/internal/keycode"
	"handsoffd/internal/permissions"
	"handsoffd/internal/state"
	"handsoffd/internal/tap"
)

const testPassphrase = "sec"

type recordedEvent struct {
	event  string
	reason string
}

// memRecorder captures audit records in memory.
type memRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *memRecorder) Record(ctx context.Context, event, reason string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{event: event, reason: reason})
	return int64(len(r.events)), nil
}

func (r *memRecorder) has(event, reason string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.event == event && (reason == "" || e.reason == reason) {
			return true
		}
	}
	return false
}

type testHarness struct {
	ctrl     *Controller
	st       *state.State
	oracle   *permissions.Static
	recorder *memRecorder
	listener *hotkeys.Simulated

	mu      sync.Mutex
	lastTap *tap.SimulatedTap
	exited  bool
}

func (h *testHarness) currentTap() *tap.SimulatedTap {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastTap
}

func (h *testHarness) hasExited() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exited
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	st := state.New()
	st.SetPassphraseDigest(auth.HashPassphrase(testPassphrase))

	h := &testHarness{
		st:       st,
		oracle:   permissions.NewStatic(true),
		recorder: &memRecorder{},
		listener: hotkeys.NewSimulated(),
	}

	ctrl, err := New(Options{
		State:    st,
		Bindings: keycode.DefaultBindings(),
		Oracle:   h.oracle,
		Recorder: h.recorder,
		TapFactory: func(e *tap.Engine) tap.Tap {
			sim := tap.NewSimulated(e)
			h.mu.Lock()
			h.lastTap = sim
			h.mu.Unlock()
			return sim
		},
		HotkeyFactory: func(keycode.Bindings) hotkeys.Listener { return h.listener },
		OnExit: func() {
			h.mu.Lock()
			h.exited = true
			h.mu.Unlock()
		},
		PollInterval: 10 * time.Millisecond,
		Version:      "test",
	})
	require.NoError(t, err)
	h.ctrl = ctrl
	return h
}

func startHarness(t *testing.T) *testHarness {
	t.Helper()
	h := newTestHarness(t)
	require.NoError(t, h.ctrl.Start(context.Background()))
	t.Cleanup(func() { h.ctrl.Stop() })
	return h
}

func TestStartStop(t *testing.T) {
	h := newTestHarness(t)

	require.NoError(t, h.ctrl.Start(context.Background()))
	assert.True(t, h.ctrl.Running())
	assert.ErrorIs(t, h.ctrl.Start(context.Background()), ErrAlreadyRunning)

	require.NotNil(t, h.currentTap())
	assert.True(t, h.currentTap().Running())

	require.NoError(t, h.ctrl.Stop())
	assert.False(t, h.ctrl.Running())
	assert.False(t, h.currentTap().Running())
	assert.ErrorIs(t, h.ctrl.Stop(), ErrNotRunning)

	assert.True(t, h.recorder.has("daemon_started", ""))
	assert.True(t, h.recorder.has("daemon_stopped", ""))
}

func TestLockAndUnlock(t *testing.T) {
	h := startHarness(t)

	require.NoError(t, h.ctrl.Lock("request"))
	assert.True(t, h.st.IsLocked())

	// Locking again is a no-op, not an error.
	require.NoError(t, h.ctrl.Lock("request"))

	assert.ErrorIs(t, h.ctrl.Unlock("wrong"), ErrBadPassphrase)
	assert.True(t, h.st.IsLocked())

	require.NoError(t, h.ctrl.Unlock(testPassphrase))
	assert.False(t, h.st.IsLocked())

	assert.ErrorIs(t, h.ctrl.Unlock(testPassphrase), ErrNotLocked)

	require.Eventually(t, func() bool {
		return h.recorder.has("locked", "request") && h.recorder.has("unlocked", "request")
	}, time.Second, 10*time.Millisecond)
}

func TestDisableEnable(t *testing.T) {
	h := startHarness(t)

	require.NoError(t, h.ctrl.Disable())
	assert.True(t, h.st.IsDisabled())
	assert.False(t, h.currentTap().Running())

	// Locking while disabled is refused.
	assert.ErrorIs(t, h.ctrl.Lock("request"), ErrDisabled)

	// Disabling twice is a no-op.
	require.NoError(t, h.ctrl.Disable())

	require.NoError(t, h.ctrl.Enable())
	assert.False(t, h.st.IsDisabled())

	// The poll loop picks up the start request and rebuilds the tap.
	require.Eventually(t, func() bool {
		tp := h.currentTap()
		return tp != nil && tp.Running()
	}, time.Second, 10*time.Millisecond)
}

func TestDisableRefusedWhileLocked(t *testing.T) {
	h := startHarness(t)

	require.NoError(t, h.ctrl.Lock("request"))
	assert.ErrorIs(t, h.ctrl.Disable(), ErrLocked)
	assert.False(t, h.st.IsDisabled())
}

func TestLockRefusedWithoutPermission(t *testing.T) {
	h := startHarness(t)

	h.oracle.Set(false)
	h.st.SetPermission(false)

	assert.ErrorIs(t, h.ctrl.Lock("request"), ErrNoPermission)
}

func TestHotkeyLock(t *testing.T) {
	h := startHarness(t)

	h.listener.Fire(hotkeys.EventLock)
	require.Eventually(t, func() bool {
		return h.st.IsLocked()
	}, time.Second, 10*time.Millisecond)

	h.listener.Fire(hotkeys.EventTalkDown)
	require.Eventually(t, func() bool {
		return h.st.IsTalkKeyPressed()
	}, time.Second, 10*time.Millisecond)

	h.listener.Fire(hotkeys.EventTalkUp)
	require.Eventually(t, func() bool {
		return !h.st.IsTalkKeyPressed()
	}, time.Second, 10*time.Millisecond)
}

func TestTypedUnlockThroughEngine(t *testing.T) {
	h := startHarness(t)

	require.NoError(t, h.ctrl.Lock("request"))
	sim := h.currentTap()
	require.NotNil(t, sim)

	for _, ch := range testPassphrase {
		code, ok := keycode.LetterCode(ch)
		require.True(t, ok, "no keycode for %q", ch)
		verdict := sim.Inject(tap.InputEvent{Kind: tap.KindKeyDown, KeyCode: code})
		assert.Equal(t, tap.VerdictSuppress, verdict)
		sim.Inject(tap.InputEvent{Kind: tap.KindKeyUp, KeyCode: code})
	}

	assert.False(t, h.st.IsLocked())
	require.Eventually(t, func() bool {
		return h.recorder.has("unlocked", "passphrase")
	}, time.Second, 10*time.Millisecond)
}

func TestRestartTap(t *testing.T) {
	h := startHarness(t)

	first := h.currentTap()
	require.NoError(t, h.ctrl.RestartTap())

	second := h.currentTap()
	assert.NotSame(t, first, second)
	assert.False(t, first.Running())
	assert.True(t, second.Running())

	require.Eventually(t, func() bool {
		return h.recorder.has("tap_restarted", "")
	}, time.Second, 10*time.Millisecond)
}

func TestUserInputRevocationRequestsExit(t *testing.T) {
	h := startHarness(t)

	sim := h.currentTap()
	sim.Inject(tap.InputEvent{Kind: tap.KindDisabledByUserInput})

	require.Eventually(t, func() bool {
		return h.hasExited() && !sim.Running()
	}, time.Second, 10*time.Millisecond)
}

func TestTimeoutRevocationReenables(t *testing.T) {
	h := startHarness(t)

	sim := h.currentTap()
	sim.Inject(tap.InputEvent{Kind: tap.KindDisabledByTimeout})

	require.Eventually(t, func() bool {
		return sim.Reenables() > 0
	}, time.Second, 10*time.Millisecond)
	assert.True(t, sim.Running())
}

func TestStatusReport(t *testing.T) {
	h := startHarness(t)

	require.NoError(t, h.ctrl.Lock("request"))
	report := h.ctrl.Status()

	assert.Equal(t, "test", report.Version)
	assert.True(t, report.Locked)
	assert.True(t, report.TapRunning)
	assert.True(t, report.HasPermission)
	assert.False(t, report.Disabled)
	assert.False(t, report.StartedAt.IsZero())
}

func TestApplyTimeouts(t *testing.T) {
	h := startHarness(t)

	h.ctrl.ApplyTimeouts(240*time.Second, 5*time.Second, 300*time.Second)
	assert.Equal(t, 300*time.Second, h.st.AutoUnlockTimeout())
}

// movableClock drives state time in tests that cross timer horizons.
type movableClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *movableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *movableClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestEnableResetsInactivityClock(t *testing.T) {
	h := newTestHarness(t)
	clk := &movableClock{now: time.Now()}
	h.st.SetClock(clk.Now)
	h.st.TouchInput()
	h.st.SetAutoLockTimeout(120 * time.Second)

	require.NoError(t, h.ctrl.Start(context.Background()))
	t.Cleanup(func() { h.ctrl.Stop() })

	require.NoError(t, h.ctrl.Disable())
	clk.Advance(time.Hour)
	require.NoError(t, h.ctrl.Enable())

	// A long disabled period must not count as idle time, or the
	// inactivity supervisor locks the user out the moment they re-enable.
	assert.False(t, h.st.ShouldAutoLock(),
		"auto-lock condition true immediately after enable")
	assert.False(t, h.st.IsLocked())
}

func TestUnlockRefreshesIdleClock(t *testing.T) {
	h := newTestHarness(t)
	clk := &movableClock{now: time.Now()}
	h.st.SetClock(clk.Now)
	h.st.TouchInput()
	h.st.SetAutoLockTimeout(120 * time.Second)

	require.NoError(t, h.ctrl.Start(context.Background()))
	t.Cleanup(func() { h.ctrl.Stop() })

	require.NoError(t, h.ctrl.Lock("request"))
	clk.Advance(time.Hour)
	require.NoError(t, h.ctrl.Unlock(testPassphrase))

	assert.False(t, h.st.ShouldAutoLock(),
		"auto-lock condition true immediately after unlock")
}

func TestDisableUnregistersHotkeys(t *testing.T) {
	h := startHarness(t)

	require.True(t, h.listener.Running())

	require.NoError(t, h.ctrl.Disable())
	assert.False(t, h.listener.Running())

	require.NoError(t, h.ctrl.Enable())
	assert.True(t, h.listener.Running())

	// The hotkey loop survives the cycle: a fired chord still locks.
	h.listener.Fire(hotkeys.EventLock)
	require.Eventually(t, func() bool {
		return h.st.IsLocked()
	}, time.Second, 10*time.Millisecond)
}
