package equipment

import "sync"

// Driver abstracts the digital output lines the controller writes to.
// Implementations must map true to "output energized" regardless of the
// electrical polarity of the line.
type Driver interface {
	// Write drives the line for the given kind.
	Write(kind Kind, active bool) error
	// Read returns the current line state for the given kind.
	Read(kind Kind) (bool, error)
	// Close releases the underlying lines.
	Close() error
}

// Memory is an in-process Driver used for development and tests.
type Memory struct {
	mu     sync.Mutex
	lines  map[Kind]bool
	forced map[Kind]bool // read-back overrides, simulating stuck hardware
}

// NewMemory creates a Memory driver with all outputs off.
func NewMemory() *Memory {
	return &Memory{
		lines:  make(map[Kind]bool),
		forced: make(map[Kind]bool),
	}
}

// Write records the requested line state.
func (m *Memory) Write(kind Kind, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines[kind] = active
	return nil
}

// Read returns the recorded line state, or the forced value if one is set.
func (m *Memory) Read(kind Kind) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.forced[kind]; ok {
		return v, nil
	}
	return m.lines[kind], nil
}

// Force pins the read-back value for a kind, regardless of writes.
func (m *Memory) Force(kind Kind, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forced[kind] = active
}

// Unforce removes a forced read-back value.
func (m *Memory) Unforce(kind Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.forced, kind)
}

// Close is a no-op for the memory driver.
func (m *Memory) Close() error {
	return nil
}
