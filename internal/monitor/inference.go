package monitor

import (
	"context"
	"log/slog"

	"github.com/dgnsrekt/meetcloser/internal/history"
	"github.com/dgnsrekt/meetcloser/internal/meeting"
	"github.com/dgnsrekt/meetcloser/internal/tabstate"
	"github.com/dgnsrekt/meetcloser/internal/types"
)

// Scan registers meeting tabs that were already open when monitoring began.
// Tabs that already have a record are left alone. A Meet tab found on the
// landing page has no observed meeting, so recent history decides whether it
// is treated as post-meeting.
func (m *Monitor) Scan(ctx context.Context, tabs []types.Tab) {
	added := 0
	for _, tab := range tabs {
		if tab.URL == "" {
			continue
		}
		cat := meeting.Classify(tab.URL)
		if cat == meeting.CategoryNone || m.store.Has(tab.ID) {
			continue
		}

		rec := m.newRecord(tab.ID, tab.URL, cat)
		m.store.Put(rec)
		added++
		slog.Info("monitor existing tab added", "tab_id", tab.ID, "category", cat, "url", truncateURL(tab.URL))

		if cat == meeting.CategoryMeet && meeting.IsLandingPage(tab.URL) {
			m.inferFromHistory(ctx, tab.ID)
		}
	}
	slog.Info("monitor startup scan complete", "tabs_seen", len(tabs), "tabs_added", added)
}

func (m *Monitor) inferFromHistory(ctx context.Context, id types.TabID) {
	entries, err := m.history.Search(ctx, history.Query{
		Text:       historyQueryText,
		StartTime:  m.now().Add(-historyLookback),
		MaxResults: historyMaxResults,
	})
	if err != nil {
		slog.Warn("monitor history lookup failed, treating as no recent meetings", "tab_id", id, "error", err)
		entries = nil
	}

	recent := 0
	for _, e := range entries {
		if meeting.IsMeetingRoom(e.URL) {
			recent++
		}
	}

	cfg := m.settings.Config()
	switch {
	case recent > 0 && cfg.MeetTimer == 0:
		if !m.store.Update(id, func(rec *tabstate.MonitoredTab) { rec.WasInMeeting = true }) {
			slog.Debug("monitor tab gone before history result applied", "tab_id", id)
			return
		}
		slog.Info("monitor recent meeting found in history", "tab_id", id, "recent_meetings", recent)
		m.closeTab(ctx, id, ReasonRecentHistoryImmediate)

	case recent > 0:
		if !m.store.Update(id, func(rec *tabstate.MonitoredTab) {
			rec.WasInMeeting = true
			m.armAt(rec)
		}) {
			slog.Debug("monitor tab gone before history result applied", "tab_id", id)
			return
		}
		slog.Info("monitor recent meeting found in history, timer armed", "tab_id", id, "recent_meetings", recent)

	case cfg.MeetTimer == 0:
		grace := inferredGracePeriod
		if !m.store.Update(id, func(rec *tabstate.MonitoredTab) {
			rec.WasInMeeting = true
			m.armAt(rec)
			rec.GracePeriod = &grace
		}) {
			slog.Debug("monitor tab gone before history result applied", "tab_id", id)
			return
		}
		slog.Info("monitor no recent meeting in history, closing after grace period", "tab_id", id, "grace_period", grace.String())

	default:
		slog.Info("monitor no recent meeting in history, leaving landing tab open", "tab_id", id)
	}
}

func (m *Monitor) armAt(rec *tabstate.MonitoredTab) {
	if rec.HomePageReturnTime != nil {
		return
	}
	now := m.now()
	rec.HomePageReturnTime = &now
}
