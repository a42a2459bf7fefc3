package tap

import (
	"context"
	"testing"
	"time"

	"handsoffd/internal/auth"
	"handsoffd/internal/keycode"
	"handsoffd/internal/state"
)

func key(kind Kind, code int64, mods keycode.Modifiers) InputEvent {
	return InputEvent{Kind: kind, KeyCode: code, Modifiers: mods}
}

func letterDown(t *testing.T, letter rune, shift bool) InputEvent {
	t.Helper()
	code, ok := keycode.LetterCode(letter)
	if !ok {
		t.Fatalf("no keycode for %q", letter)
	}
	var mods keycode.Modifiers
	if shift {
		mods = keycode.ModShift
	}
	return key(KindKeyDown, code, mods)
}

type transitions struct {
	locked, unlocked []string
}

func newTestEngine(t *testing.T) (*Engine, *state.State, *transitions) {
	t.Helper()
	st := state.New()
	st.SetPassphraseDigest(auth.HashPassphrase("sec"))
	tr := &transitions{}
	e := NewEngine(st, keycode.DefaultBindings(),
		func(reason string) { tr.locked = append(tr.locked, reason) },
		func(reason string) { tr.unlocked = append(tr.unlocked, reason) },
	)
	return e, st, tr
}

func TestLockHotkeyEngagesLock(t *testing.T) {
	e, st, tr := newTestEngine(t)

	v := e.Handle(key(KindKeyDown, keycode.DefaultLockKey, keycode.HotkeyChord))
	if v != VerdictSuppress {
		t.Fatal("lock chord leaked to the application")
	}
	if !st.IsLocked() {
		t.Fatal("lock did not engage")
	}
	if len(tr.locked) != 1 || tr.locked[0] != "hotkey" {
		t.Fatalf("lock transitions = %v", tr.locked)
	}
}

func TestLockHotkeyWhileLockedDoesNotRefreshStart(t *testing.T) {
	e, st, tr := newTestEngine(t)

	clk := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	st.SetClock(func() time.Time { return clk })

	e.Handle(key(KindKeyDown, keycode.DefaultLockKey, keycode.HotkeyChord))
	clk = clk.Add(30 * time.Second)

	v := e.Handle(key(KindKeyDown, keycode.DefaultLockKey, keycode.HotkeyChord))
	if v != VerdictSuppress {
		t.Fatal("repeated lock chord leaked")
	}
	if len(tr.locked) != 1 {
		t.Fatalf("repeated chord re-fired the transition: %v", tr.locked)
	}
	elapsed, ok := st.LockElapsed()
	if !ok || elapsed != 30*time.Second {
		t.Fatalf("lock elapsed = %v, %v; repeated chord must not reset it", elapsed, ok)
	}
}

func TestUnlockedEventsPass(t *testing.T) {
	e, _, _ := newTestEngine(t)

	events := []InputEvent{
		letterDown(t, 'a', false),
		key(KindKeyUp, 0, 0),
		key(KindMouseDown, 0, 0),
		key(KindMouseUp, 0, 0),
		key(KindScroll, 0, 0),
		key(KindDrag, 0, 0),
		key(KindMouseMove, 0, 0),
		key(KindFlagsChanged, 56, keycode.ModShift),
	}
	for _, ev := range events {
		if e.Handle(ev) != VerdictPass {
			t.Fatalf("%v suppressed while unlocked", ev.Kind)
		}
	}
}

func TestLockedSuppression(t *testing.T) {
	e, st, _ := newTestEngine(t)
	st.SetLocked(true)

	suppressed := []InputEvent{
		letterDown(t, 'x', false),
		key(KindKeyUp, 7, 0),
		key(KindMouseDown, 0, 0),
		key(KindMouseUp, 0, 0),
		key(KindScroll, 0, 0),
		key(KindDrag, 0, 0),
	}
	for _, ev := range suppressed {
		if e.Handle(ev) != VerdictSuppress {
			t.Fatalf("%v leaked while locked", ev.Kind)
		}
	}

	// Mouse movement and modifier transitions still pass.
	if e.Handle(key(KindMouseMove, 0, 0)) != VerdictPass {
		t.Fatal("mouse move suppressed")
	}
	if e.Handle(key(KindFlagsChanged, 56, keycode.ModShift)) != VerdictPass {
		t.Fatal("flags change suppressed")
	}
}

func TestPassphraseUnlocksOnFinalKey(t *testing.T) {
	e, st, tr := newTestEngine(t)
	st.SetLocked(true)

	for _, ch := range "se" {
		if e.Handle(letterDown(t, ch, false)) != VerdictSuppress {
			t.Fatal("passphrase keystroke leaked")
		}
		if !st.IsLocked() {
			t.Fatal("unlocked on a prefix")
		}
	}
	if e.Handle(letterDown(t, 'c', false)) != VerdictSuppress {
		t.Fatal("final keystroke leaked")
	}
	if st.IsLocked() {
		t.Fatal("correct passphrase did not unlock")
	}
	if len(tr.unlocked) != 1 || tr.unlocked[0] != "passphrase" {
		t.Fatalf("unlock transitions = %v", tr.unlocked)
	}
	if st.Buffer() != "" {
		t.Fatalf("buffer retained after unlock: %q", st.Buffer())
	}
}

func TestBackspaceRecoversFromTypo(t *testing.T) {
	e, st, _ := newTestEngine(t)
	st.SetLocked(true)

	for _, ch := range "sex" {
		e.Handle(letterDown(t, ch, false))
	}
	if v := e.Handle(key(KindKeyDown, keycode.Backspace, 0)); v != VerdictSuppress {
		t.Fatal("backspace leaked")
	}
	if st.Buffer() != "se" {
		t.Fatalf("buffer after backspace = %q", st.Buffer())
	}
	e.Handle(letterDown(t, 'c', false))
	if st.IsLocked() {
		t.Fatal("did not unlock after correcting the typo")
	}
}

func TestTalkKeyPassthrough(t *testing.T) {
	e, st, _ := newTestEngine(t)
	st.SetLocked(true)

	if v := e.Handle(key(KindKeyDown, keycode.DefaultTalkKey, keycode.HotkeyChord)); v != VerdictSuppress {
		t.Fatal("talk chord leaked")
	}
	if !st.IsTalkKeyPressed() {
		t.Fatal("talk hold not tracked")
	}

	if e.Handle(key(KindKeyDown, keycode.Space, 0)) != VerdictPass {
		t.Fatal("space suppressed while talk key held")
	}
	if e.Handle(key(KindKeyUp, keycode.Space, 0)) != VerdictPass {
		t.Fatal("space release suppressed while talk key held")
	}
	// Space must not have entered the passphrase buffer.
	if st.Buffer() != "" {
		t.Fatalf("buffer = %q", st.Buffer())
	}

	// Modifiers released first: the bare key-up still clears the hold.
	if v := e.Handle(key(KindKeyUp, keycode.DefaultTalkKey, 0)); v != VerdictSuppress {
		t.Fatal("bare talk key-up leaked while locked")
	}
	if st.IsTalkKeyPressed() {
		t.Fatal("talk hold not cleared on bare key-up")
	}
	if e.Handle(key(KindKeyDown, keycode.Space, 0)) != VerdictSuppress {
		t.Fatal("space leaked after talk key release")
	}
}

func TestUnclassifiableKeySuppressedWhileLocked(t *testing.T) {
	e, st, _ := newTestEngine(t)
	st.SetLocked(true)

	if e.Handle(key(KindKeyDown, 9999, 0)) != VerdictSuppress {
		t.Fatal("unclassifiable key leaked")
	}
	if st.Buffer() != "" {
		t.Fatalf("unclassifiable key entered the buffer: %q", st.Buffer())
	}
}

func TestSentinelUserInputRequestsStopAndExit(t *testing.T) {
	e, st, _ := newTestEngine(t)

	if e.Handle(key(KindDisabledByUserInput, 0, 0)) != VerdictPass {
		t.Fatal("sentinel event suppressed")
	}
	if !st.ConsumeStopTap() {
		t.Fatal("stop not requested")
	}
	if !st.ConsumeExit() {
		t.Fatal("exit not requested")
	}
	if st.ConsumeReenableTap() {
		t.Fatal("reenable wrongly requested")
	}
}

func TestSentinelTimeoutRequestsReenable(t *testing.T) {
	e, st, _ := newTestEngine(t)

	if e.Handle(key(KindDisabledByTimeout, 0, 0)) != VerdictPass {
		t.Fatal("sentinel event suppressed")
	}
	if !st.ConsumeReenableTap() {
		t.Fatal("reenable not requested")
	}
	if st.ConsumeStopTap() || st.ConsumeExit() {
		t.Fatal("timeout revocation must not stop the daemon")
	}
}

func TestInputEventsTouchIdleClock(t *testing.T) {
	e, st, _ := newTestEngine(t)
	st.SetAutoLockTimeout(120 * time.Second)

	clk := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	st.SetClock(func() time.Time { return clk })
	st.TouchInput()

	clk = clk.Add(200 * time.Second)
	if !st.ShouldAutoLock() {
		t.Fatal("precondition: idle past the timeout")
	}
	e.Handle(key(KindMouseMove, 0, 0))
	if st.ShouldAutoLock() {
		t.Fatal("mouse move did not refresh the idle clock")
	}
}

func TestSimulatedTapLifecycle(t *testing.T) {
	e, st, _ := newTestEngine(t)
	sim := NewSimulated(e)

	// Events before Start never reach the engine.
	if sim.Inject(key(KindKeyDown, keycode.DefaultLockKey, keycode.HotkeyChord)) != VerdictPass {
		t.Fatal("stopped tap ruled on an event")
	}
	if st.IsLocked() {
		t.Fatal("stopped tap mutated state")
	}

	if err := sim.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := sim.Start(context.Background()); err != ErrAlreadyRunning {
		t.Fatalf("second Start = %v, want ErrAlreadyRunning", err)
	}

	if sim.Inject(key(KindKeyDown, keycode.DefaultLockKey, keycode.HotkeyChord)) != VerdictSuppress {
		t.Fatal("running tap passed the lock chord")
	}
	if !st.IsLocked() {
		t.Fatal("lock did not engage through the tap")
	}

	if err := sim.Reenable(); err != nil {
		t.Fatalf("Reenable: %v", err)
	}
	if sim.Reenables() != 1 {
		t.Fatalf("Reenables = %d", sim.Reenables())
	}

	if err := sim.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := sim.Stop(); err != nil {
		t.Fatalf("Stop twice: %v", err)
	}
	if err := sim.Reenable(); err != ErrNotRunning {
		t.Fatalf("Reenable after Stop = %v, want ErrNotRunning", err)
	}
}

func TestStatsTrackCreateAndRelease(t *testing.T) {
	e, _, _ := newTestEngine(t)
	sim := NewSimulated(e)

	c0, r0 := Stats()
	sim.Start(context.Background())
	sim.Stop()
	c1, r1 := Stats()

	if c1-c0 != 1 || r1-r0 != 1 {
		t.Fatalf("stats delta = created %d, released %d", c1-c0, r1-r0)
	}
}
