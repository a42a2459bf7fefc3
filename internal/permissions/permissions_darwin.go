//go:build darwin

package permissions

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework ApplicationServices -framework Foundation

#include <ApplicationServices/ApplicationServices.h>

static int checkAccessibility(void) {
    NSDictionary *options = @{(__bridge id)kAXTrustedCheckOptionPrompt: @NO};
    return AXIsProcessTrustedWithOptions((__bridge CFDictionaryRef)options) ? 1 : 0;
}

static int promptAccessibility(void) {
    NSDictionary *options = @{(__bridge id)kAXTrustedCheckOptionPrompt: @YES};
    return AXIsProcessTrustedWithOptions((__bridge CFDictionaryRef)options) ? 1 : 0;
}
*/
import "C"

type systemOracle struct{}

func (systemOracle) Granted() bool {
	return C.checkAccessibility() == 1
}

func (systemOracle) Request() bool {
	return C.promptAccessibility() == 1
}

func (systemOracle) Instructions() string {
	return "Grant Accessibility access: System Settings > Privacy & Security > Accessibility, then add this application."
}
