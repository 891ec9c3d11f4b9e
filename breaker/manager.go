package breaker

import "sync"

// Manager is a registry of named breakers sharing default options.
//
// Resource managers ask for a breaker by operation name; the breaker is
// created on first use and reused afterwards.
type Manager struct {
	optFns []func(*Options)

	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewManager creates a Manager. The given options apply to every breaker it
// creates; GetOrCreate may add per-breaker overrides on top.
func NewManager(optFns ...func(*Options)) *Manager {
	return &Manager{
		optFns:   optFns,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker registered under name, or nil.
func (m *Manager) Get(name string) *Breaker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.breakers[name]
}

// GetOrCreate returns the breaker registered under name, creating it with
// the manager defaults plus optFns on first use.
func (m *Manager) GetOrCreate(name string, optFns ...func(*Options)) *Breaker {
	m.mu.RLock()
	b, ok := m.breakers[name]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.breakers[name]; ok {
		return b
	}
	combined := make([]func(*Options), 0, len(m.optFns)+len(optFns))
	combined = append(combined, m.optFns...)
	combined = append(combined, optFns...)
	b = New(name, combined...)
	m.breakers[name] = b
	return b
}

// States returns a snapshot of every registered breaker's state.
func (m *Manager) States() map[string]State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]State, len(m.breakers))
	for name, b := range m.breakers {
		out[name] = b.State()
	}
	return out
}

// Reset resets every registered breaker to Closed.
func (m *Manager) Reset() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.breakers {
		b.Reset()
	}
}
