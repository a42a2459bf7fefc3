//go:build darwin

package tap

import "C"

import "handsoffd/internal/keycode"

// CGEventFlags bits for the modifiers the hotkey chords care about.
const (
	cgFlagShift   = 0x00020000
	cgFlagControl = 0x00040000
	cgFlagOption  = 0x00080000
	cgFlagCommand = 0x00100000
)

func modifiersFromFlags(flags uint64) keycode.Modifiers {
	var m keycode.Modifiers
	if flags&cgFlagShift != 0 {
		m |= keycode.ModShift
	}
	if flags&cgFlagControl != 0 {
		m |= keycode.ModControl
	}
	if flags&cgFlagOption != 0 {
		m |= keycode.ModOption
	}
	if flags&cgFlagCommand != 0 {
		m |= keycode.ModCommand
	}
	return m
}

// goTapVerdict is invoked from the C event callback for every intercepted
// event. It must never block and must never panic into C.
//
//export goTapVerdict
func goTapVerdict(id C.ulonglong, kind C.int, code C.longlong, flags C.ulonglong) C.int {
	engine := lookupEngine(uint64(id))
	if engine == nil {
		// Stale or unknown handle: never hold the user's input hostage.
		return 0
	}

	ev := InputEvent{
		Kind:      Kind(kind),
		KeyCode:   int64(code),
		Modifiers: modifiersFromFlags(uint64(flags)),
	}
	if engine.Handle(ev) == VerdictSuppress {
		return 1
	}
	return 0
}
