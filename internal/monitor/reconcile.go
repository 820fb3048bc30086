package monitor

import (
	"context"
	"log/slog"

	"github.com/dgnsrekt/meetcloser/internal/meeting"
	"github.com/dgnsrekt/meetcloser/internal/tabstate"
	"github.com/dgnsrekt/meetcloser/internal/types"
)

// admitted reports whether a navigation event carries a URL worth
// classifying. Zoom pages are taken while still loading because they often
// hand off to the desktop client before the load completes.
func admitted(ev types.TabEvent) bool {
	if ev.URL == "" {
		return false
	}
	switch ev.Status {
	case types.StatusComplete:
		return true
	case types.StatusLoading:
		return meeting.IsZoomDomain(ev.URL)
	}
	return false
}

func (m *Monitor) newRecord(id types.TabID, url string, cat meeting.Category) tabstate.MonitoredTab {
	return tabstate.MonitoredTab{
		TabID:        id,
		URL:          url,
		Category:     cat,
		StartTime:    m.now(),
		WasInMeeting: cat == meeting.CategoryMeet && meeting.IsMeetingRoom(url),
	}
}

// OnNavigationEvent applies a tab-updated notification to the store.
func (m *Monitor) OnNavigationEvent(ctx context.Context, ev types.TabEvent) {
	if !admitted(ev) {
		slog.Debug("monitor update ignored", "tab_id", ev.TabID, "status", ev.Status, "url", truncateURL(ev.URL))
		return
	}

	cat := meeting.Classify(ev.URL)
	if cat == meeting.CategoryNone {
		if m.store.Delete(ev.TabID) {
			slog.Info("monitor tab left meeting site", "tab_id", ev.TabID, "url", truncateURL(ev.URL))
		}
		return
	}

	if !m.store.Has(ev.TabID) {
		rec := m.newRecord(ev.TabID, ev.URL, cat)
		m.store.Put(rec)
		slog.Info("monitor tab added",
			"tab_id", ev.TabID,
			"category", cat,
			"was_in_meeting", rec.WasInMeeting,
			"url", truncateURL(ev.URL),
		)
		return
	}

	var closeReason string
	m.store.Update(ev.TabID, func(rec *tabstate.MonitoredTab) {
		// The watcher replays every open target when it (re)subscribes.
		if rec.Category == cat && rec.URL == ev.URL {
			return
		}
		if rec.Category != cat {
			slog.Info("monitor tab category changed", "tab_id", ev.TabID, "from", rec.Category, "to", cat)
			rec.Category = cat
		}
		rec.URL = ev.URL
		if cat == meeting.CategoryMeet {
			closeReason = m.advanceMeet(rec)
		}
	})

	if closeReason != "" {
		m.closeTab(ctx, ev.TabID, closeReason)
	}
}

// advanceMeet runs the meeting-room/landing-page transitions for an existing
// Meet record and returns a close reason when the tab must close now.
func (m *Monitor) advanceMeet(rec *tabstate.MonitoredTab) string {
	inRoom := meeting.IsMeetingRoom(rec.URL)
	onLanding := meeting.IsLandingPage(rec.URL)

	if inRoom && !rec.WasInMeeting {
		rec.WasInMeeting = true
		slog.Info("monitor meet tab entered meeting room", "tab_id", rec.TabID)
	}

	if !onLanding {
		return ""
	}
	if !rec.WasInMeeting {
		slog.Debug("monitor meet tab on landing page without meeting, leaving open", "tab_id", rec.TabID)
		return ""
	}

	if rec.GracePeriod != nil {
		slog.Debug("monitor meet tab within inferred grace period, leaving to sweep", "tab_id", rec.TabID)
		return ""
	}
	if m.settings.Config().MeetTimer == 0 {
		return ReasonPostMeetingImmediate
	}
	if rec.HomePageReturnTime == nil {
		now := m.now()
		rec.HomePageReturnTime = &now
		slog.Info("monitor meet timer armed", "tab_id", rec.TabID, "armed_at", now)
	}
	return ""
}

func truncateURL(url string) string {
	if len(url) > 120 {
		return url[:120] + "..."
	}
	return url
}
