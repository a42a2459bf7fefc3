//go:build !darwin

package tap

import "context"

// stubTap stands in on platforms without an interception backend. Every
// operation that would need a real hook fails with ErrNotAvailable.
type stubTap struct {
	BaseTap
	engine *Engine
}

func newPlatformTap(engine *Engine) Tap {
	return &stubTap{engine: engine}
}

func (s *stubTap) Start(ctx context.Context) error {
	return ErrNotAvailable
}

func (s *stubTap) Stop() error {
	return nil
}

func (s *stubTap) Reenable() error {
	return ErrNotRunning
}

func (s *stubTap) Available() (bool, string) {
	return false, "input interception not available on this platform"
}

var _ Tap = (*stubTap)(nil)
