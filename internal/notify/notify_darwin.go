//go:build darwin

package notify

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// osascriptNotifier posts notifications through the macOS scripting bridge.
type osascriptNotifier struct{}

func newPlatformNotifier() (Notifier, error) {
	if _, err := exec.LookPath("osascript"); err != nil {
		return nil, fmt.Errorf("osascript not found: %w", err)
	}
	return &osascriptNotifier{}, nil
}

func (n *osascriptNotifier) Notify(ctx context.Context, title, body string) error {
	script := fmt.Sprintf("display notification %q with title %q",
		escapeScript(body), escapeScript(title))
	cmd := exec.CommandContext(ctx, "osascript", "-e", script)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("osascript: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// escapeScript strips characters that would break out of the AppleScript
// string literal. Notification text is daemon-generated, but the reasons
// can carry config-sourced strings.
func escapeScript(s string) string {
	s = strings.ReplaceAll(s, `\`, ``)
	s = strings.ReplaceAll(s, `"`, `'`)
	return s
}
