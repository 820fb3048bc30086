package tabstate

import (
	"sort"
	"sync"
	"time"

	"github.com/dgnsrekt/meetcloser/internal/meeting"
	"github.com/dgnsrekt/meetcloser/internal/types"
)

// MonitoredTab is the monitoring record for one classified tab.
type MonitoredTab struct {
	TabID        types.TabID      `json:"tab_id"`
	URL          string           `json:"url"`
	Category     meeting.Category `json:"category"`
	StartTime    time.Time        `json:"start_time"`
	WasInMeeting bool             `json:"was_in_meeting"`
	// HomePageReturnTime arms the meet timer. Set at most once per record.
	HomePageReturnTime *time.Time `json:"home_page_return_time,omitempty"`
	// GracePeriod overrides the configured meet timer for this record only.
	GracePeriod *time.Duration `json:"grace_period,omitempty"`
}

func (t MonitoredTab) clone() MonitoredTab {
	out := t
	if t.HomePageReturnTime != nil {
		ts := *t.HomePageReturnTime
		out.HomePageReturnTime = &ts
	}
	if t.GracePeriod != nil {
		d := *t.GracePeriod
		out.GracePeriod = &d
	}
	return out
}

// Store maps tab IDs to monitoring records.
type Store struct {
	tabs map[types.TabID]*MonitoredTab
	mu   sync.RWMutex
}

func NewStore() *Store {
	return &Store{tabs: make(map[types.TabID]*MonitoredTab)}
}

// Get returns a copy of the record for id.
func (s *Store) Get(id types.TabID) (MonitoredTab, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.tabs[id]
	if !ok {
		return MonitoredTab{}, false
	}
	return rec.clone(), true
}

func (s *Store) Has(id types.TabID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tabs[id]
	return ok
}

// Put stores rec, replacing any existing record for the same tab.
func (s *Store) Put(rec MonitoredTab) {
	c := rec.clone()
	s.mu.Lock()
	s.tabs[rec.TabID] = &c
	s.mu.Unlock()
}

// Update applies fn to the live record and reports whether it existed.
// fn runs under the store lock and must not call back into the store.
func (s *Store) Update(id types.TabID, fn func(*MonitoredTab)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tabs[id]
	if !ok {
		return false
	}
	fn(rec)
	return true
}

// Delete removes the record and reports whether one was present.
func (s *Store) Delete(id types.TabID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tabs[id]; !ok {
		return false
	}
	delete(s.tabs, id)
	return true
}

// Snapshot returns copies of all records ordered by tab ID.
func (s *Store) Snapshot() []MonitoredTab {
	s.mu.RLock()
	out := make([]MonitoredTab, 0, len(s.tabs))
	for _, rec := range s.tabs {
		out = append(out, rec.clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].TabID < out[j].TabID
	})
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tabs)
}
