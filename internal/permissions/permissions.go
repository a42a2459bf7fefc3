// Package permissions answers whether the process may intercept input on
// this platform.
//
// Queries can be slow (they cross into OS services), so callers cache the
// result in session state and refresh it from a single monitor goroutine;
// nothing on the event hot path calls into this package.
package permissions

import "sync"

// Oracle reports the OS input-interception grant.
type Oracle interface {
	// Granted returns the current grant without any user interaction.
	Granted() bool

	// Request returns the current grant, asking the OS to surface its
	// permission prompt if the grant is missing.
	Request() bool

	// Instructions returns a human-readable hint for obtaining the grant.
	Instructions() string
}

// System returns the Oracle for the current platform.
func System() Oracle {
	return systemOracle{}
}

// Static is a fixed-answer Oracle for tests.
type Static struct {
	mu      sync.Mutex
	granted bool
}

// NewStatic creates a test oracle with the given initial grant.
func NewStatic(granted bool) *Static {
	return &Static{granted: granted}
}

// Set changes the grant the oracle reports.
func (s *Static) Set(granted bool) {
	s.mu.Lock()
	s.granted = granted
	s.mu.Unlock()
}

// Granted returns the configured grant.
func (s *Static) Granted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.granted
}

// Request returns the configured grant without prompting.
func (s *Static) Request() bool {
	return s.Granted()
}

// Instructions returns a placeholder hint.
func (s *Static) Instructions() string {
	return "static oracle (for testing)"
}

var _ Oracle = (*Static)(nil)
