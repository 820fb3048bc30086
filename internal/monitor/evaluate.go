package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgnsrekt/meetcloser/internal/meeting"
	"github.com/dgnsrekt/meetcloser/internal/settings"
	"github.com/dgnsrekt/meetcloser/internal/tabstate"
	"github.com/dgnsrekt/meetcloser/internal/types"
)

// ShouldClose reports whether rec has outlived its timer at now.
func ShouldClose(rec tabstate.MonitoredTab, cfg settings.TimerConfig, now time.Time) bool {
	if rec.Category == meeting.CategoryMeet {
		if rec.HomePageReturnTime == nil {
			return false
		}
		limit := cfg.MeetTimeout()
		if rec.GracePeriod != nil {
			limit = *rec.GracePeriod
		} else if limit == 0 {
			// zero timer closes at the landing transition, not here
			return false
		}
		return now.Sub(*rec.HomePageReturnTime) >= limit
	}

	limit, ok := cfg.TimeoutFor(rec.Category)
	if !ok {
		return false
	}
	return now.Sub(rec.StartTime) >= limit
}

// OnTick closes every tab whose timer has expired.
func (m *Monitor) OnTick(ctx context.Context) {
	now := m.now()
	cfg := m.settings.Config()
	for _, rec := range m.store.Snapshot() {
		if !ShouldClose(rec, cfg, now) {
			continue
		}
		if !m.store.Has(rec.TabID) {
			continue
		}
		m.closeTab(ctx, rec.TabID, timeoutReason(rec.Category))
	}
}

func (m *Monitor) beginClose(id types.TabID) bool {
	m.closingMu.Lock()
	defer m.closingMu.Unlock()
	if _, busy := m.closing[id]; busy {
		return false
	}
	m.closing[id] = struct{}{}
	return true
}

func (m *Monitor) endClose(id types.TabID) {
	m.closingMu.Lock()
	delete(m.closing, id)
	m.closingMu.Unlock()
}

// closeTab asks the browser to close id and drops its record either way.
// Only successful closures are counted.
func (m *Monitor) closeTab(ctx context.Context, id types.TabID, reason string) {
	if !m.beginClose(id) {
		return
	}
	defer m.endClose(id)

	rec, _ := m.store.Get(id)
	ev := ClosureEvent{
		TabID:    id,
		URL:      rec.URL,
		Category: rec.Category,
		Reason:   reason,
	}

	err := m.closer.CloseTab(ctx, id)
	m.store.Delete(id)
	ev.At = m.now()

	if err != nil {
		ev.Error = err.Error()
		slog.Warn("monitor tab close failed, record dropped", "tab_id", id, "reason", reason, "error", err)
		m.publish(ev)
		return
	}

	count, perr := m.settings.IncrementClosed()
	if perr != nil {
		slog.Error("monitor closed count not persisted", "tab_id", id, "error", perr)
	}
	ev.Counted = true
	ev.ClosedCount = count
	slog.Info("monitor tab closed", "tab_id", id, "category", rec.Category, "reason", reason, "closed_count", count)
	m.publish(ev)
}

func (m *Monitor) publish(ev ClosureEvent) {
	for _, sink := range m.sinks {
		sink.TabClosed(ev)
	}
}
