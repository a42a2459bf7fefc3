//go:build darwin

package tap

/*
#cgo LDFLAGS: -framework ApplicationServices

#include <ApplicationServices/ApplicationServices.h>
#include <pthread.h>
#include <unistd.h>

// Verdict bridge implemented in Go (export_darwin.go).
extern int goTapVerdict(unsigned long long id, int kind, long long keycode, unsigned long long flags);

static CFMachPortRef eventTap = NULL;
static CFRunLoopSourceRef runLoopSource = NULL;
static CFRunLoopRef tapRunLoop = NULL;
static volatile int tapEnabled = 0;
static unsigned long long engineID = 0;

static void stopTap(void);

// Kind codes match the Go Kind constants in tap.go.
static int kindForType(CGEventType type) {
    switch (type) {
    case kCGEventKeyDown: return 0;
    case kCGEventKeyUp: return 1;
    case kCGEventFlagsChanged: return 2;
    case kCGEventMouseMoved: return 3;
    case kCGEventLeftMouseDown:
    case kCGEventRightMouseDown:
    case kCGEventOtherMouseDown: return 4;
    case kCGEventLeftMouseUp:
    case kCGEventRightMouseUp:
    case kCGEventOtherMouseUp: return 5;
    case kCGEventScrollWheel: return 6;
    case kCGEventLeftMouseDragged:
    case kCGEventRightMouseDragged:
    case kCGEventOtherMouseDragged: return 7;
    case kCGEventTapDisabledByTimeout: return 8;
    case kCGEventTapDisabledByUserInput: return 9;
    default: return -1;
    }
}

static CGEventRef tapCallback(CGEventTapProxy proxy, CGEventType type, CGEventRef event, void *refcon) {
    (void)proxy;
    (void)refcon;

    int kind = kindForType(type);
    if (kind < 0) {
        return event;
    }

    long long keycode = 0;
    if (type == kCGEventKeyDown || type == kCGEventKeyUp || type == kCGEventFlagsChanged) {
        keycode = CGEventGetIntegerValueField(event, kCGKeyboardEventKeycode);
    }
    unsigned long long flags = (unsigned long long)CGEventGetFlags(event);

    int verdict = goTapVerdict(engineID, kind, keycode, flags);
    if (verdict == 1) {
        return NULL; // swallowed
    }
    return event;
}

static void* runLoopThread(void* arg) {
    (void)arg;

    tapRunLoop = CFRunLoopGetCurrent();
    CFRunLoopAddSource(tapRunLoop, runLoopSource, kCFRunLoopCommonModes);
    CGEventTapEnable(eventTap, true);
    tapEnabled = 1;

    CFRunLoopRun();

    tapEnabled = 0;
    tapRunLoop = NULL;
    return NULL;
}

static pthread_t runLoopThreadHandle;
static volatile int threadRunning = 0;

static int startTap(unsigned long long id) {
    if (eventTap != NULL) {
        return 1; // already running
    }

    engineID = id;

    CGEventMask eventMask =
        CGEventMaskBit(kCGEventKeyDown) |
        CGEventMaskBit(kCGEventKeyUp) |
        CGEventMaskBit(kCGEventFlagsChanged) |
        CGEventMaskBit(kCGEventMouseMoved) |
        CGEventMaskBit(kCGEventLeftMouseDown) |
        CGEventMaskBit(kCGEventLeftMouseUp) |
        CGEventMaskBit(kCGEventRightMouseDown) |
        CGEventMaskBit(kCGEventRightMouseUp) |
        CGEventMaskBit(kCGEventOtherMouseDown) |
        CGEventMaskBit(kCGEventOtherMouseUp) |
        CGEventMaskBit(kCGEventScrollWheel) |
        CGEventMaskBit(kCGEventLeftMouseDragged) |
        CGEventMaskBit(kCGEventRightMouseDragged) |
        CGEventMaskBit(kCGEventOtherMouseDragged);

    eventTap = CGEventTapCreate(
        kCGSessionEventTap,
        kCGHeadInsertEventTap,
        kCGEventTapOptionDefault,
        eventMask,
        tapCallback,
        NULL
    );

    if (eventTap == NULL) {
        return -1; // permission denied or unavailable
    }

    runLoopSource = CFMachPortCreateRunLoopSource(kCFAllocatorDefault, eventTap, 0);
    if (runLoopSource == NULL) {
        CFRelease(eventTap);
        eventTap = NULL;
        return -2;
    }

    threadRunning = 1;
    if (pthread_create(&runLoopThreadHandle, NULL, runLoopThread, NULL) != 0) {
        CFRelease(runLoopSource);
        CFRelease(eventTap);
        runLoopSource = NULL;
        eventTap = NULL;
        threadRunning = 0;
        return -3;
    }

    // Wait for the run loop thread to arm the tap.
    for (int i = 0; i < 100 && !tapEnabled; i++) {
        usleep(10000); // 10ms
    }
    if (!tapEnabled) {
        stopTap();
        return -4;
    }

    return 0;
}

static void stopTap(void) {
    if (eventTap == NULL) {
        return;
    }

    CGEventTapEnable(eventTap, false);
    tapEnabled = 0;

    if (tapRunLoop != NULL) {
        CFRunLoopStop(tapRunLoop);
    }
    if (threadRunning) {
        pthread_join(runLoopThreadHandle, NULL);
        threadRunning = 0;
    }

    if (runLoopSource != NULL) {
        CFRelease(runLoopSource);
        runLoopSource = NULL;
    }
    if (eventTap != NULL) {
        CFRelease(eventTap);
        eventTap = NULL;
    }

    tapRunLoop = NULL;
    engineID = 0;
}

static int reenableTap(void) {
    if (eventTap == NULL) {
        return -1;
    }
    CGEventTapEnable(eventTap, true);
    tapEnabled = 1;
    return 0;
}

static int isTapEnabled(void) {
    return tapEnabled;
}

static int checkAccessibility(void) {
    return AXIsProcessTrusted() ? 1 : 0;
}
*/
import "C"

import (
	"context"
	"errors"
)

// DarwinTap installs a session-level CGEventTap. Only one instance can be
// installed at a time; the hook itself lives in process-global C state.
type DarwinTap struct {
	BaseTap
	engine *Engine
	id     uint64
	cancel context.CancelFunc
}

func newPlatformTap(engine *Engine) Tap {
	return &DarwinTap{engine: engine}
}

// Available checks the Accessibility grant without prompting.
func (d *DarwinTap) Available() (bool, string) {
	if C.checkAccessibility() == 1 {
		return true, "CGEventTap available"
	}
	return false, "Accessibility permission required: System Settings > Privacy & Security > Accessibility"
}

// Start installs the event tap and begins routing events.
func (d *DarwinTap) Start(ctx context.Context) error {
	if d.Running() {
		return ErrAlreadyRunning
	}
	if C.checkAccessibility() != 1 {
		return ErrPermissionDenied
	}

	d.id = registerEngine(d.engine)

	switch C.startTap(C.ulonglong(d.id)) {
	case 1:
		unregisterEngine(d.id)
		return ErrAlreadyRunning
	case -1:
		unregisterEngine(d.id)
		return ErrPermissionDenied
	case -2:
		unregisterEngine(d.id)
		return errors.New("failed to create run loop source")
	case -3:
		unregisterEngine(d.id)
		return errors.New("failed to create run loop thread")
	case -4:
		unregisterEngine(d.id)
		return errors.New("timeout waiting for event tap to arm")
	}

	ctx, d.cancel = context.WithCancel(ctx)
	d.SetRunning(true)
	tapsCreated.Add(1)

	go func() {
		<-ctx.Done()
		d.Stop()
	}()

	return nil
}

// Stop releases the event tap. Idempotent.
func (d *DarwinTap) Stop() error {
	if !d.Running() {
		return nil
	}
	d.SetRunning(false)

	if d.cancel != nil {
		d.cancel()
	}
	C.stopTap()
	unregisterEngine(d.id)
	tapsReleased.Add(1)
	return nil
}

// Reenable re-arms the existing hook after a timeout revocation.
func (d *DarwinTap) Reenable() error {
	if !d.Running() {
		return ErrNotRunning
	}
	if C.reenableTap() != 0 {
		return ErrNotRunning
	}
	return nil
}

var _ Tap = (*DarwinTap)(nil)
