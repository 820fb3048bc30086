package admit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dgnsrekt/meetcloser/internal/meeting"
	"github.com/dgnsrekt/meetcloser/internal/tabstate"
	"github.com/dgnsrekt/meetcloser/internal/types"
)

const (
	DefaultInterval = 2 * time.Second

	// maxAdmissions bounds the admission history kept for the API.
	maxAdmissions = 100
)

// Evaluator runs a script body in a tab and decodes its result envelope.
type Evaluator interface {
	Evaluate(ctx context.Context, id types.TabID, body string, out any) error
}

// TabLister returns the tabs the monitor is tracking.
type TabLister interface {
	Tabs() []tabstate.MonitoredTab
}

// Admission records one participant let in.
type Admission struct {
	TabID types.TabID `json:"tab_id"`
	Name  string      `json:"name"`
	At    time.Time   `json:"at"`
}

// Watcher polls Meet meeting rooms and admits waiting participants whose
// names match the current rules, one per tab per pass.
type Watcher struct {
	eval     Evaluator
	tabs     TabLister
	rules    *RuleStore
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	admitted []Admission
}

func NewWatcher(eval Evaluator, tabs TabLister, rules *RuleStore, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watcher{eval: eval, tabs: tabs, rules: rules, interval: interval, now: time.Now}
}

// Run polls until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	slog.Info("admit watcher started", "interval", w.interval.String())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

// Poll checks every Meet meeting room once. It does nothing while there
// are no rules.
func (w *Watcher) Poll(ctx context.Context) {
	rules := w.rules.Get()
	if len(rules) == 0 {
		return
	}
	for _, tab := range w.tabs.Tabs() {
		if tab.Category != meeting.CategoryMeet || !meeting.IsMeetingRoom(tab.URL) {
			continue
		}
		w.checkTab(ctx, tab.TabID, rules)
	}
}

func (w *Watcher) checkTab(ctx context.Context, id types.TabID, rules Rules) {
	var scan pageScan
	if err := w.eval.Evaluate(ctx, id, scanScript, &scan); err != nil {
		slog.Debug("admit scan failed", "tab_id", id, "error", err)
		return
	}
	for _, name := range scan.Present {
		if rules.Match(name) {
			return
		}
	}
	if scan.Revealed {
		// the waiting list renders after the banner click
		return
	}
	for _, entry := range scan.Waiting {
		if !rules.Match(entry.Name) {
			continue
		}
		var res clickResult
		if err := w.eval.Evaluate(ctx, id, admitScript(entry.Index), &res); err != nil {
			slog.Warn("admit click failed", "tab_id", id, "name", entry.Name, "error", err)
			return
		}
		if !res.Clicked {
			slog.Debug("admit button vanished", "tab_id", id, "name", entry.Name)
			return
		}
		w.record(Admission{TabID: id, Name: entry.Name, At: w.now()})
		slog.Info("admit participant admitted", "tab_id", id, "name", entry.Name)
		return
	}
}

func (w *Watcher) record(a Admission) {
	w.mu.Lock()
	w.admitted = append(w.admitted, a)
	if n := len(w.admitted) - maxAdmissions; n > 0 {
		w.admitted = append(w.admitted[:0], w.admitted[n:]...)
	}
	w.mu.Unlock()
}

// Admitted returns the most recent admissions, oldest first.
func (w *Watcher) Admitted() []Admission {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Admission(nil), w.admitted...)
}
