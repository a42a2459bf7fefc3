package keycode

import "fmt"

// Modifiers is a bitmask of modifier keys held during a key event.
type Modifiers uint8

const (
	ModShift Modifiers = 1 << iota
	ModControl
	ModCommand
	ModOption
)

// HotkeyChord is the fixed modifier combination required by both the lock
// and talk hotkeys: Ctrl+Cmd+Shift.
const HotkeyChord = ModControl | ModCommand | ModShift

// Has reports whether all modifiers in want are present in m.
func (m Modifiers) Has(want Modifiers) bool {
	return m&want == want
}

// Bindings is the single source of truth for hotkey key assignments.
// Both the raw-event engine and the global shortcut listener consult the
// same Bindings value, so the two detection paths cannot drift.
type Bindings struct {
	// LockKey triggers the lock transition when pressed with HotkeyChord.
	LockKey int64

	// TalkKey enables spacebar passthrough while held with HotkeyChord.
	TalkKey int64
}

// DefaultBindings returns the stock Ctrl+Cmd+Shift+L / Ctrl+Cmd+Shift+T
// assignment.
func DefaultBindings() Bindings {
	return Bindings{LockKey: DefaultLockKey, TalkKey: DefaultTalkKey}
}

// NewBindings builds a Bindings from single-letter identifiers. The two
// letters must be distinct letters a-z.
func NewBindings(lockLetter, talkLetter rune) (Bindings, error) {
	lock, ok := LetterCode(lockLetter)
	if !ok {
		return Bindings{}, fmt.Errorf("lock hotkey %q is not a letter", lockLetter)
	}
	talk, ok := LetterCode(talkLetter)
	if !ok {
		return Bindings{}, fmt.Errorf("talk hotkey %q is not a letter", talkLetter)
	}
	if lock == talk {
		return Bindings{}, fmt.Errorf("lock and talk hotkeys must differ, both are %q", lockLetter)
	}
	return Bindings{LockKey: lock, TalkKey: talk}, nil
}

// IsLock reports whether the keycode+modifier pair is the lock hotkey.
func (b Bindings) IsLock(code int64, mods Modifiers) bool {
	return code == b.LockKey && mods.Has(HotkeyChord)
}

// IsTalk reports whether the keycode+modifier pair is the talk hotkey.
func (b Bindings) IsTalk(code int64, mods Modifiers) bool {
	return code == b.TalkKey && mods.Has(HotkeyChord)
}
