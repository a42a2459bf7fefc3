package tap

import "sync"

// The OS callback receives an opaque integer, never a Go pointer: handing C
// a pointer into the Go heap would break when the GC moves it. Engines are
// parked here under a stable id and looked up per event.
var registry = struct {
	mu      sync.Mutex
	nextID  uint64
	engines map[uint64]*Engine
}{
	nextID:  1,
	engines: make(map[uint64]*Engine),
}

func registerEngine(e *Engine) uint64 {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	id := registry.nextID
	registry.nextID++
	registry.engines[id] = e
	return id
}

func lookupEngine(id uint64) *Engine {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	return registry.engines[id]
}

func unregisterEngine(id uint64) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	delete(registry.engines, id)
}
