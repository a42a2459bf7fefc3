//go:build darwin

package hotkeys

/*
#cgo LDFLAGS: -framework Carbon

#include <Carbon/Carbon.h>
#include <pthread.h>
#include <unistd.h>

// Implemented in Go (export_darwin.go).
extern void goHotkeyEvent(int id, int pressed);

enum {
    hotkeyIDLock = 1,
    hotkeyIDTalk = 2,
};

static EventHotKeyRef lockHotkey = NULL;
static EventHotKeyRef talkHotkey = NULL;
static EventHandlerRef hotkeyHandler = NULL;
static CFRunLoopRef hotkeyRunLoop = NULL;
static volatile int hotkeysArmed = 0;

static OSStatus handleHotkeyEvent(EventHandlerCallRef next, EventRef event, void *userData) {
    (void)next;
    (void)userData;

    EventHotKeyID hkID;
    if (GetEventParameter(event, kEventParamDirectObject, typeEventHotKeyID,
                          NULL, sizeof(hkID), NULL, &hkID) != noErr) {
        return eventNotHandledErr;
    }
    int pressed = (GetEventKind(event) == kEventHotKeyPressed) ? 1 : 0;
    goHotkeyEvent((int)hkID.id, pressed);
    return noErr;
}

static int hotkeyLockCode = 0;
static int hotkeyTalkCode = 0;
static volatile int registerResult = 0;

static void* hotkeyThread(void* arg) {
    (void)arg;

    hotkeyRunLoop = CFRunLoopGetCurrent();

    EventTypeSpec specs[2] = {
        { kEventClassKeyboard, kEventHotKeyPressed },
        { kEventClassKeyboard, kEventHotKeyReleased },
    };
    if (InstallApplicationEventHandler(&handleHotkeyEvent, 2, specs, NULL, &hotkeyHandler) != noErr) {
        registerResult = -1;
        hotkeysArmed = -1;
        return NULL;
    }

    UInt32 chord = controlKey | cmdKey | shiftKey;
    EventHotKeyID lockID = { 'hsof', hotkeyIDLock };
    EventHotKeyID talkID = { 'hsof', hotkeyIDTalk };

    if (RegisterEventHotKey((UInt32)hotkeyLockCode, chord, lockID,
                            GetApplicationEventTarget(), 0, &lockHotkey) != noErr) {
        registerResult = -2;
        hotkeysArmed = -1;
        return NULL;
    }
    if (RegisterEventHotKey((UInt32)hotkeyTalkCode, chord, talkID,
                            GetApplicationEventTarget(), 0, &talkHotkey) != noErr) {
        UnregisterEventHotKey(lockHotkey);
        lockHotkey = NULL;
        registerResult = -2;
        hotkeysArmed = -1;
        return NULL;
    }

    registerResult = 0;
    hotkeysArmed = 1;

    CFRunLoopRun();

    hotkeysArmed = 0;
    hotkeyRunLoop = NULL;
    return NULL;
}

static pthread_t hotkeyThreadHandle;
static volatile int hotkeyThreadRunning = 0;

static int startHotkeys(int lockCode, int talkCode) {
    if (hotkeyThreadRunning) {
        return 1;
    }
    hotkeyLockCode = lockCode;
    hotkeyTalkCode = talkCode;
    hotkeysArmed = 0;

    hotkeyThreadRunning = 1;
    if (pthread_create(&hotkeyThreadHandle, NULL, hotkeyThread, NULL) != 0) {
        hotkeyThreadRunning = 0;
        return -3;
    }

    for (int i = 0; i < 100 && hotkeysArmed == 0; i++) {
        usleep(10000); // 10ms
    }
    if (hotkeysArmed != 1) {
        pthread_join(hotkeyThreadHandle, NULL);
        hotkeyThreadRunning = 0;
        return registerResult != 0 ? registerResult : -4;
    }
    return 0;
}

static void stopHotkeys(void) {
    if (!hotkeyThreadRunning) {
        return;
    }

    if (lockHotkey != NULL) {
        UnregisterEventHotKey(lockHotkey);
        lockHotkey = NULL;
    }
    if (talkHotkey != NULL) {
        UnregisterEventHotKey(talkHotkey);
        talkHotkey = NULL;
    }
    if (hotkeyHandler != NULL) {
        RemoveEventHandler(hotkeyHandler);
        hotkeyHandler = NULL;
    }
    if (hotkeyRunLoop != NULL) {
        CFRunLoopStop(hotkeyRunLoop);
    }

    pthread_join(hotkeyThreadHandle, NULL);
    hotkeyThreadRunning = 0;
}
*/
import "C"

import (
	"context"
	"errors"

	"handsoffd/internal/keycode"
)

// DarwinListener registers Carbon global hotkeys on a dedicated run-loop
// thread. Only one instance can be registered at a time.
type DarwinListener struct {
	baseListener
	bindings keycode.Bindings
	cancel   context.CancelFunc
}

func newPlatformListener(bindings keycode.Bindings) Listener {
	return &DarwinListener{bindings: bindings}
}

// Start registers the lock and talk chords.
func (d *DarwinListener) Start(ctx context.Context) error {
	if d.isRunning() {
		return ErrAlreadyRunning
	}

	setCurrentListener(d)

	switch C.startHotkeys(C.int(d.bindings.LockKey), C.int(d.bindings.TalkKey)) {
	case 1:
		setCurrentListener(nil)
		return ErrAlreadyRunning
	case -1, -3:
		setCurrentListener(nil)
		return errors.New("failed to install hotkey event handler")
	case -2:
		setCurrentListener(nil)
		return ErrRegisterFailed
	case -4:
		setCurrentListener(nil)
		return errors.New("timeout waiting for hotkey registration")
	}

	ctx, d.cancel = context.WithCancel(ctx)
	d.setRunning(true)

	go func() {
		<-ctx.Done()
		d.Stop()
	}()

	return nil
}

// Stop unregisters the chords. Idempotent.
func (d *DarwinListener) Stop() error {
	if !d.isRunning() {
		return nil
	}
	d.setRunning(false)

	if d.cancel != nil {
		d.cancel()
	}
	C.stopHotkeys()
	setCurrentListener(nil)
	return nil
}

var _ Listener = (*DarwinListener)(nil)
