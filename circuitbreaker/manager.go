package circuitbreaker

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// StateChangeListener is notified synchronously on every transition, from
// inside the breaker's critical section. Implementations must be quick and
// must not call back into the breaker.
type StateChangeListener interface {
	OnStateChange(service string, from, to State)
}

// Manager owns one Breaker per logical service name. Breakers are created
// lazily and live as long as the Manager.
type Manager struct {
	settings Settings
	logger   *zap.Logger

	mu       sync.RWMutex
	breakers map[string]*Breaker

	listenersMu sync.RWMutex
	listeners   []StateChangeListener
}

func NewManager(settings Settings, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		settings: settings.withDefaults(),
		logger:   logger,
		breakers: make(map[string]*Breaker),
	}
}

func (m *Manager) Settings() Settings {
	return m.settings
}

// GetOrCreate returns the breaker of name, creating it on first use.
// Concurrent first calls for the same name all get the same Breaker.
func (m *Manager) GetOrCreate(name string) *Breaker {
	m.mu.RLock()
	b, ok := m.breakers[name]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if b, ok = m.breakers[name]; ok {
		return b
	}

	b = newBreaker(name, m.settings, m.handleStateChange)
	m.breakers[name] = b
	m.logger.Debug("circuit breaker created", zap.String("service", name))
	return b
}

// Get returns the breaker of name without creating it.
func (m *Manager) Get(name string) (*Breaker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.breakers[name]
	return b, ok
}

// States maps every known service name to its breaker state.
func (m *Manager) States() map[string]State {
	states := make(map[string]State)
	for _, b := range m.list() {
		states[b.name] = b.State()
	}
	return states
}

// Snapshots returns every breaker's snapshot, sorted by name.
func (m *Manager) Snapshots() []Snapshot {
	breakers := m.list()
	snapshots := make([]Snapshot, 0, len(breakers))
	for _, b := range breakers {
		snapshots = append(snapshots, b.Snapshot())
	}
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].Name < snapshots[j].Name })
	return snapshots
}

// list copies the breakers so that their own locks are never taken while mu is held.
func (m *Manager) list() []*Breaker {
	m.mu.RLock()
	defer m.mu.RUnlock()

	breakers := make([]*Breaker, 0, len(m.breakers))
	for _, b := range m.breakers {
		breakers = append(breakers, b)
	}
	return breakers
}

func (m *Manager) AddListener(l StateChangeListener) {
	if l == nil {
		return
	}
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, l)
}

func (m *Manager) handleStateChange(service string, from, to State) {
	fields := []zap.Field{
		zap.String("service", service),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	}
	switch to {
	case StateOpen:
		m.logger.Error("circuit opened, calls will short-circuit", fields...)
	case StateHalfOpen:
		m.logger.Warn("circuit half-open, allowing one trial call", fields...)
	case StateClosed:
		m.logger.Info("circuit closed, service recovered", fields...)
	}

	m.listenersMu.RLock()
	listeners := make([]StateChangeListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.listenersMu.RUnlock()

	for _, l := range listeners {
		l.OnStateChange(service, from, to)
	}
}
