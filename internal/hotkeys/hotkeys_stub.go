//go:build !darwin

package hotkeys

import (
	"context"

	"handsoffd/internal/keycode"
)

// stubListener stands in on platforms without global shortcut support. The
// interception engine's own chord detection remains the only trigger path.
type stubListener struct {
	baseListener
	bindings keycode.Bindings
}

func newPlatformListener(bindings keycode.Bindings) Listener {
	return &stubListener{bindings: bindings}
}

func (s *stubListener) Start(ctx context.Context) error {
	return ErrNotAvailable
}

func (s *stubListener) Stop() error {
	return nil
}

var _ Listener = (*stubListener)(nil)
