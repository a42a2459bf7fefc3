package tap

import (
	"handsoffd/internal/auth"
	"handsoffd/internal/keycode"
	"handsoffd/internal/state"
)

// Engine turns intercepted events into pass/suppress verdicts and drives
// the session state. It runs on the OS callback thread: no blocking calls,
// no logging, no allocation beyond buffer growth. Observable transitions
// are reported through the callbacks so slow work happens elsewhere.
type Engine struct {
	state    *state.State
	bindings keycode.Bindings

	// onLocked and onUnlocked fire on lock-state transitions caused by
	// events. reason is "hotkey" or "passphrase". May be nil.
	onLocked   func(reason string)
	onUnlocked func(reason string)
}

// NewEngine builds an engine over shared state with the given hotkey
// bindings. Either callback may be nil.
func NewEngine(st *state.State, bindings keycode.Bindings, onLocked, onUnlocked func(reason string)) *Engine {
	return &Engine{
		state:      st,
		bindings:   bindings,
		onLocked:   onLocked,
		onUnlocked: onUnlocked,
	}
}

// Handle rules on one event. A panic anywhere in the decision chain is
// recovered: while locked the event is suppressed, otherwise passed, so a
// bug can never leave keystrokes leaking through an engaged lock.
func (e *Engine) Handle(ev InputEvent) (verdict Verdict) {
	defer func() {
		if r := recover(); r != nil {
			if e.state.IsLocked() {
				verdict = VerdictSuppress
			} else {
				verdict = VerdictPass
			}
		}
	}()
	return e.decide(ev)
}

func (e *Engine) decide(ev InputEvent) Verdict {
	switch ev.Kind {
	case KindDisabledByUserInput:
		// The OS revoked the hook on the user's behalf (permission change).
		// The handle is dead; ask the controller to tear down and exit.
		e.state.RequestStopTap()
		e.state.RequestExit()
		return VerdictPass

	case KindDisabledByTimeout:
		// Callback ran too slowly for the OS; the same handle can be
		// re-armed without recreating it.
		e.state.RequestReenableTap()
		return VerdictPass

	case KindMouseMove:
		e.state.TouchInput()
		return VerdictPass

	case KindMouseDown, KindMouseUp, KindScroll, KindDrag:
		e.state.TouchInput()
		if e.state.IsLocked() {
			return VerdictSuppress
		}
		return VerdictPass

	case KindFlagsChanged:
		// Modifier transitions always pass: suppressing them would wedge
		// the modifier state the hotkey chords depend on.
		e.state.TouchInput()
		return VerdictPass

	case KindKeyDown, KindKeyUp:
		return e.decideKey(ev)
	}

	return VerdictPass
}

func (e *Engine) decideKey(ev InputEvent) Verdict {
	e.state.TouchInput()

	if e.bindings.IsLock(ev.KeyCode, ev.Modifiers) {
		if ev.Kind == KindKeyDown && !e.state.IsLocked() {
			e.state.SetLocked(true)
			if e.onLocked != nil {
				e.onLocked("hotkey")
			}
		}
		// Down or up, locked or not: the chord itself never reaches the
		// foreground application.
		return VerdictSuppress
	}

	if e.bindings.IsTalk(ev.KeyCode, ev.Modifiers) {
		e.state.SetTalkKeyPressed(ev.Kind == KindKeyDown)
		return VerdictSuppress
	}

	// Releasing the modifiers before the talk key itself produces a bare
	// key-up that no longer matches the chord. Clear the held flag anyway.
	if ev.Kind == KindKeyUp && ev.KeyCode == e.bindings.TalkKey && e.state.IsTalkKeyPressed() {
		e.state.SetTalkKeyPressed(false)
	}

	locked := e.state.IsLocked()

	// Push-to-talk: while the talk chord is held, space passes through so a
	// voice application can keep its press-to-speak binding.
	if locked && ev.KeyCode == keycode.Space && e.state.IsTalkKeyPressed() {
		return VerdictPass
	}

	if !locked {
		return VerdictPass
	}

	if ev.Kind == KindKeyUp {
		return VerdictSuppress
	}

	// Locked key-down: the keystroke feeds the passphrase buffer.
	e.state.TouchKey()

	if ev.KeyCode == keycode.Backspace {
		e.state.PopBuffer()
		return VerdictSuppress
	}

	if ch, ok := keycode.ToChar(ev.KeyCode, ev.Modifiers.Has(keycode.ModShift)); ok {
		e.state.AppendBuffer(ch)
		// Verify on every keystroke so no terminator key is needed.
		if auth.VerifyPassphrase(e.state.Buffer(), e.state.PassphraseDigest()) {
			e.state.SetLocked(false)
			if e.onUnlocked != nil {
				e.onUnlocked("passphrase")
			}
		}
	}

	return VerdictSuppress
}
