// Package monitor decides when meeting tabs get closed. It reconciles browser
// navigation events into per-tab records, infers post-meeting state from
// history for tabs it finds at startup, and sweeps the records on a fixed
// interval to close tabs whose timers have run out.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dgnsrekt/meetcloser/internal/history"
	"github.com/dgnsrekt/meetcloser/internal/meeting"
	"github.com/dgnsrekt/meetcloser/internal/settings"
	"github.com/dgnsrekt/meetcloser/internal/tabstate"
	"github.com/dgnsrekt/meetcloser/internal/types"
)

const (
	// DefaultSweepInterval is how often OnTick runs under Run.
	DefaultSweepInterval = 5 * time.Second

	historyLookback   = 15 * time.Minute
	historyMaxResults = 100
	historyQueryText  = "meet.google.com/"

	// inferredGracePeriod delays closing a landing-page tab whose meeting
	// was assumed rather than observed.
	inferredGracePeriod = 30 * time.Second
)

// Close reasons reported in logs, events and the journal.
const (
	ReasonPostMeetingImmediate   = "meet-post-meeting-immediate-close"
	ReasonRecentHistoryImmediate = "meet-recent-history-immediate-close"
)

func timeoutReason(cat meeting.Category) string {
	return string(cat) + "-timeout"
}

// TabSource enumerates the tabs open at startup.
type TabSource interface {
	ListTabs(ctx context.Context) ([]types.Tab, error)
}

// TabCloser asks the browser to close a tab. An error means the tab could
// not be closed, usually because it is already gone.
type TabCloser interface {
	CloseTab(ctx context.Context, id types.TabID) error
}

// Settings supplies the closure timers and records closures.
type Settings interface {
	Config() settings.TimerConfig
	IncrementClosed() (int, error)
}

// ClosureEvent describes one close attempt.
type ClosureEvent struct {
	TabID       types.TabID      `json:"tab_id"`
	URL         string           `json:"url"`
	Category    meeting.Category `json:"category"`
	Reason      string           `json:"reason"`
	Counted     bool             `json:"counted"`
	ClosedCount int              `json:"closed_count"`
	At          time.Time        `json:"at"`
	Error       string           `json:"error,omitempty"`
}

// ClosureSink receives every close attempt after the store is updated.
type ClosureSink interface {
	TabClosed(ev ClosureEvent)
}

// Deps wires a Monitor to its collaborators. Store, Settings and Closer are
// required.
type Deps struct {
	Store         *tabstate.Store
	Settings      Settings
	Closer        TabCloser
	History       history.Searcher
	Sinks         []ClosureSink
	Now           func() time.Time
	SweepInterval time.Duration
}

// Monitor owns the tab state for one browser.
type Monitor struct {
	store    *tabstate.Store
	settings Settings
	closer   TabCloser
	history  history.Searcher
	sinks    []ClosureSink
	now      func() time.Time
	interval time.Duration

	closingMu sync.Mutex
	closing   map[types.TabID]struct{}
}

func New(d Deps) *Monitor {
	m := &Monitor{
		store:    d.Store,
		settings: d.Settings,
		closer:   d.Closer,
		history:  d.History,
		sinks:    d.Sinks,
		now:      d.Now,
		interval: d.SweepInterval,
		closing:  make(map[types.TabID]struct{}),
	}
	if m.store == nil {
		m.store = tabstate.NewStore()
	}
	if m.history == nil {
		m.history = history.Unavailable{}
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.interval <= 0 {
		m.interval = DefaultSweepInterval
	}
	return m
}

// Tabs returns the current monitoring records.
func (m *Monitor) Tabs() []tabstate.MonitoredTab {
	return m.store.Snapshot()
}

// Run scans the open tabs, then serializes navigation events and sweeps on
// the calling goroutine until ctx is done.
func (m *Monitor) Run(ctx context.Context, src TabSource, events <-chan types.TabEvent) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	slog.Info("monitor started", "sweep_interval", m.interval.String())
	if src != nil {
		tabs, err := src.ListTabs(ctx)
		if err != nil {
			slog.Error("monitor startup scan failed", "error", err)
		} else {
			m.Scan(ctx, tabs)
		}
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("monitor stopped", "tabs", m.store.Len())
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				slog.Warn("monitor event stream closed, continuing with sweeps only")
				continue
			}
			m.dispatch(ctx, ev)
		case <-ticker.C:
			m.OnTick(ctx)
		}
	}
}

func (m *Monitor) dispatch(ctx context.Context, ev types.TabEvent) {
	switch ev.Kind {
	case types.EventRemoved:
		m.OnTabRemoved(ev.TabID)
	default:
		m.OnNavigationEvent(ctx, ev)
	}
}

// OnTabRemoved forgets a tab the browser no longer has.
func (m *Monitor) OnTabRemoved(id types.TabID) {
	if m.store.Delete(id) {
		slog.Info("monitor tab removed", "tab_id", id)
	}
}
