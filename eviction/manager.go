package eviction

import "github.com/jonwraymond/hiercache/store"

// Manager owns exactly one configured strategy and delegates to it. It holds
// no eviction state of its own; the enabled flag and policy name exist for
// diagnostics and for callers that disable eviction entirely.
type Manager struct {
	strategy Strategy
	enabled  bool
}

// NewManager wraps a strategy built by New.
func NewManager(strategy Strategy) *Manager {
	return &Manager{strategy: strategy, enabled: strategy != nil}
}

// NewDisabledManager returns a manager that never selects victims.
func NewDisabledManager() *Manager {
	return &Manager{}
}

// Enabled reports whether a strategy is configured.
func (m *Manager) Enabled() bool { return m.enabled }

// Policy returns the active policy name, or "" when disabled.
func (m *Manager) Policy() string {
	if !m.enabled {
		return ""
	}
	return m.strategy.Policy()
}

// SelectForEviction delegates to the strategy; a disabled manager returns
// nothing.
func (m *Manager) SelectForEviction(p store.MetadataProvider, ctx Context) []string {
	if !m.enabled {
		return nil
	}
	return m.strategy.SelectForEviction(p, ctx)
}

// OnItemAdded delegates to the strategy.
func (m *Manager) OnItemAdded(key string) {
	if m.enabled {
		m.strategy.OnItemAdded(key)
	}
}

// OnItemAccessed delegates to the strategy.
func (m *Manager) OnItemAccessed(key string) {
	if m.enabled {
		m.strategy.OnItemAccessed(key)
	}
}

// OnItemRemoved delegates to the strategy.
func (m *Manager) OnItemRemoved(key string) {
	if m.enabled {
		m.strategy.OnItemRemoved(key)
	}
}
