package settings

import (
	"fmt"
	"log/slog"
	"sync"
)

// Manager owns the closure timers and the closed-tab counter, keeping an
// in-memory copy authoritative and mirroring every change to the KV store.
type Manager struct {
	kv KV

	mu     sync.RWMutex
	config TimerConfig
	closed int
}

// NewManager returns a Manager with default timers and a zero counter.
// Call Load to pick up persisted state.
func NewManager(kv KV) *Manager {
	return &Manager{kv: kv, config: DefaultTimerConfig()}
}

// Load reads the persisted counter and timers. Missing or negative fields
// fall back to their defaults.
func (m *Manager) Load() error {
	var count int
	if _, err := m.kv.Get(KeyClosedTabsCount, &count); err != nil {
		return fmt.Errorf("settings: load %s: %w", KeyClosedTabsCount, err)
	}
	if count < 0 {
		slog.Warn("persisted closed count is negative, resetting", "count", count)
		count = 0
	}

	var partial PartialTimerConfig
	if _, err := m.kv.Get(KeyTimerConfig, &partial); err != nil {
		return fmt.Errorf("settings: load %s: %w", KeyTimerConfig, err)
	}
	cfg, replaced := normalize(partial)
	if len(replaced) > 0 {
		slog.Warn("persisted timers out of range, using defaults", "fields", replaced)
	}

	m.mu.Lock()
	m.closed = count
	m.config = cfg
	m.mu.Unlock()

	slog.Info("settings loaded",
		"closed_count", count,
		"zoom_timer", cfg.ZoomTimer,
		"teams_timer", cfg.TeamsTimer,
		"meet_timer", cfg.MeetTimer,
		"fallback_zoom_timer", cfg.FallbackZoomTimer,
	)
	return nil
}

func (m *Manager) Config() TimerConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SaveConfig merges the provided fields into the current timers, leaving the
// rest unchanged, and persists the result.
func (m *Manager) SaveConfig(partial PartialTimerConfig) (TimerConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := partial.Merge(m.config)
	if err := next.Validate(); err != nil {
		return m.config, err
	}
	if err := m.kv.Set(KeyTimerConfig, next); err != nil {
		return m.config, fmt.Errorf("settings: save timers: %w", err)
	}
	m.config = next
	slog.Info("timer configuration saved",
		"zoom_timer", next.ZoomTimer,
		"teams_timer", next.TeamsTimer,
		"meet_timer", next.MeetTimer,
		"fallback_zoom_timer", next.FallbackZoomTimer,
	)
	return next, nil
}

func (m *Manager) ClosedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// IncrementClosed bumps the counter by one and persists it. The in-memory
// value is kept even when the write fails.
func (m *Manager) IncrementClosed() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	if err := m.kv.Set(KeyClosedTabsCount, m.closed); err != nil {
		return m.closed, fmt.Errorf("settings: save closed count: %w", err)
	}
	return m.closed, nil
}

// ResetClosed sets the counter back to zero.
func (m *Manager) ResetClosed() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = 0
	if err := m.kv.Set(KeyClosedTabsCount, 0); err != nil {
		return fmt.Errorf("settings: reset closed count: %w", err)
	}
	slog.Info("closed count reset")
	return nil
}
