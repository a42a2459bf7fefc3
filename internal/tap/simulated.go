package tap

import "context"

// SimulatedTap drives an Engine without any OS hook. Tests inject events
// and assert on the returned verdicts.
type SimulatedTap struct {
	BaseTap
	engine *Engine
	id     uint64

	reenables int
}

// NewSimulated creates a tap for testing.
func NewSimulated(engine *Engine) *SimulatedTap {
	return &SimulatedTap{engine: engine}
}

// Start registers the engine and marks the tap running.
func (s *SimulatedTap) Start(ctx context.Context) error {
	if s.Running() {
		return ErrAlreadyRunning
	}
	s.id = registerEngine(s.engine)
	s.SetRunning(true)
	tapsCreated.Add(1)
	return nil
}

// Stop unregisters the engine. Idempotent.
func (s *SimulatedTap) Stop() error {
	if !s.Running() {
		return nil
	}
	s.SetRunning(false)
	unregisterEngine(s.id)
	tapsReleased.Add(1)
	return nil
}

// Reenable records the re-arm request.
func (s *SimulatedTap) Reenable() error {
	if !s.Running() {
		return ErrNotRunning
	}
	s.reenables++
	return nil
}

// Reenables returns how many times Reenable succeeded.
func (s *SimulatedTap) Reenables() int {
	return s.reenables
}

// Available always reports true.
func (s *SimulatedTap) Available() (bool, string) {
	return true, "simulated tap (for testing)"
}

// Inject routes one event through the engine as the OS callback would.
// Returns VerdictPass when the tap is not running, mirroring a released
// hook that no longer sees events.
func (s *SimulatedTap) Inject(ev InputEvent) Verdict {
	if !s.Running() {
		return VerdictPass
	}
	return s.engine.Handle(ev)
}

var _ Tap = (*SimulatedTap)(nil)
