//go:build darwin

package hotkeys

import "C"

import "sync"

// The Carbon callback carries no useful user data, so the active listener
// is looked up through a package global rather than a pointer into C.
var current struct {
	mu sync.Mutex
	l  *DarwinListener
}

func setCurrentListener(l *DarwinListener) {
	current.mu.Lock()
	current.l = l
	current.mu.Unlock()
}

//export goHotkeyEvent
func goHotkeyEvent(id C.int, pressed C.int) {
	current.mu.Lock()
	l := current.l
	current.mu.Unlock()
	if l == nil {
		return
	}

	switch int(id) {
	case 1: // lock
		if pressed == 1 {
			l.emit(EventLock)
		}
	case 2: // talk
		if pressed == 1 {
			l.emit(EventTalkDown)
		} else {
			l.emit(EventTalkUp)
		}
	}
}
