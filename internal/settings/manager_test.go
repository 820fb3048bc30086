package settings

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newFileManager(t *testing.T) (*Manager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "state.json")
	kv, err := NewFileKV(path)
	if err != nil {
		t.Fatalf("NewFileKV() = %v", err)
	}
	m := NewManager(kv)
	if err := m.Load(); err != nil {
		t.Fatalf("Load() = %v", err)
	}
	return m, path
}

func intPtr(v int) *int { return &v }

func TestLoadDefaultsWhenStateMissing(t *testing.T) {
	m, _ := newFileManager(t)
	if diff := cmp.Diff(DefaultTimerConfig(), m.Config()); diff != "" {
		t.Fatalf("Config() mismatch (-want +got):\n%s", diff)
	}
	if m.ClosedCount() != 0 {
		t.Fatalf("ClosedCount() = %d; want 0", m.ClosedCount())
	}
}

func TestSaveConfigMergesAndRoundTrips(t *testing.T) {
	m, path := newFileManager(t)

	if _, err := m.SaveConfig(PartialTimerConfig{ZoomTimer: intPtr(900), TeamsTimer: intPtr(30)}); err != nil {
		t.Fatalf("SaveConfig() = %v", err)
	}
	if _, err := m.SaveConfig(PartialTimerConfig{MeetTimer: intPtr(120)}); err != nil {
		t.Fatalf("SaveConfig() = %v", err)
	}

	want := TimerConfig{ZoomTimer: 900, TeamsTimer: 30, MeetTimer: 120, FallbackZoomTimer: 10800}
	if diff := cmp.Diff(want, m.Config()); diff != "" {
		t.Fatalf("Config() mismatch (-want +got):\n%s", diff)
	}

	kv, err := NewFileKV(path)
	if err != nil {
		t.Fatalf("NewFileKV() = %v", err)
	}
	reloaded := NewManager(kv)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if diff := cmp.Diff(want, reloaded.Config()); diff != "" {
		t.Fatalf("reloaded Config() mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveConfigRejectsNegative(t *testing.T) {
	m, _ := newFileManager(t)
	_, err := m.SaveConfig(PartialTimerConfig{MeetTimer: intPtr(-5)})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("SaveConfig() = %v; want ErrInvalidConfig", err)
	}
	if m.Config().MeetTimer != 0 {
		t.Fatalf("MeetTimer = %d; want unchanged 0", m.Config().MeetTimer)
	}
}

func TestLoadFillsMissingAndNegativeFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	doc := `{"closedTabsCount": 7, "timerConfig": {"zoomTimer": 60, "teamsTimer": -1}}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("WriteFile() = %v", err)
	}
	kv, err := NewFileKV(path)
	if err != nil {
		t.Fatalf("NewFileKV() = %v", err)
	}
	m := NewManager(kv)
	if err := m.Load(); err != nil {
		t.Fatalf("Load() = %v", err)
	}

	want := TimerConfig{ZoomTimer: 60, TeamsTimer: 600, MeetTimer: 0, FallbackZoomTimer: 10800}
	if diff := cmp.Diff(want, m.Config()); diff != "" {
		t.Fatalf("Config() mismatch (-want +got):\n%s", diff)
	}
	if m.ClosedCount() != 7 {
		t.Fatalf("ClosedCount() = %d; want 7", m.ClosedCount())
	}
}

func TestCounterPersistsAndResets(t *testing.T) {
	m, path := newFileManager(t)
	for i := 0; i < 3; i++ {
		if _, err := m.IncrementClosed(); err != nil {
			t.Fatalf("IncrementClosed() = %v", err)
		}
	}

	kv, _ := NewFileKV(path)
	var stored int
	if ok, err := kv.Get(KeyClosedTabsCount, &stored); err != nil || !ok {
		t.Fatalf("Get() = %v, %v", ok, err)
	}
	if stored != 3 {
		t.Fatalf("stored count = %d; want 3", stored)
	}

	if err := m.ResetClosed(); err != nil {
		t.Fatalf("ResetClosed() = %v", err)
	}
	if m.ClosedCount() != 0 {
		t.Fatalf("ClosedCount() = %d; want 0", m.ClosedCount())
	}
	if _, err := kv.Get(KeyClosedTabsCount, &stored); err != nil || stored != 0 {
		t.Fatalf("stored count after reset = %d, %v", stored, err)
	}
}

type failingKV struct{ MemKV }

func (f *failingKV) Set(string, any) error { return errors.New("disk full") }

func TestIncrementKeepsMemoryCountOnWriteFailure(t *testing.T) {
	m := NewManager(&failingKV{})
	n, err := m.IncrementClosed()
	if err == nil {
		t.Fatal("IncrementClosed() error = nil; want write failure")
	}
	if n != 1 || m.ClosedCount() != 1 {
		t.Fatalf("count = %d/%d; want 1", n, m.ClosedCount())
	}
}
