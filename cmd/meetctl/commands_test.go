package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/meetcloser/internal/admit"
	"github.com/dgnsrekt/meetcloser/internal/api"
	"github.com/dgnsrekt/meetcloser/internal/controller"
	"github.com/dgnsrekt/meetcloser/internal/meeting"
	"github.com/dgnsrekt/meetcloser/internal/settings"
	"github.com/dgnsrekt/meetcloser/internal/tabstate"
	"github.com/dgnsrekt/meetcloser/internal/types"
)

type fakeTabs []tabstate.MonitoredTab

func (f fakeTabs) Tabs() []tabstate.MonitoredTab { return f }

type noBrowser struct{}

func (noBrowser) ListTabs(context.Context) ([]types.Tab, error) { return nil, nil }

func (noBrowser) DroppedEvents() int64 { return 0 }

type fakeAdmissions []admit.Admission

func (f fakeAdmissions) Admitted() []admit.Admission { return f }

func newDaemon(t *testing.T, tabs ...tabstate.MonitoredTab) (*settings.Manager, string) {
	t.Helper()
	return newDaemonWith(t, controller.Deps{Tabs: fakeTabs(tabs)})
}

func newDaemonWith(t *testing.T, d controller.Deps) (*settings.Manager, string) {
	t.Helper()
	mgr := settings.NewManager(&settings.MemKV{})
	d.Settings = mgr
	d.Browser = noBrowser{}
	if d.Tabs == nil {
		d.Tabs = fakeTabs(nil)
	}
	srv := httptest.NewServer(api.NewServer(controller.NewService(d), nil))
	t.Cleanup(srv.Close)
	return mgr, srv.URL
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(args)
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCountAndReset(t *testing.T) {
	mgr, addr := newDaemon(t)
	_, _ = mgr.IncrementClosed()
	_, _ = mgr.IncrementClosed()

	out, err := execute(t, "--addr", addr, "count")
	if err != nil || strings.TrimSpace(out) != "2" {
		t.Fatalf("count = %q, %v; want 2", out, err)
	}
	if _, err := execute(t, "--addr", addr, "reset"); err != nil {
		t.Fatalf("reset = %v", err)
	}
	if mgr.ClosedCount() != 0 {
		t.Fatalf("ClosedCount() = %d after reset", mgr.ClosedCount())
	}
}

func TestCountUnknownWhenDaemonDown(t *testing.T) {
	srv := httptest.NewServer(nil)
	addr := srv.URL
	srv.Close()

	out, err := execute(t, "--addr", addr, "--timeout", "500ms", "count")
	if err != nil || strings.TrimSpace(out) != "unknown" {
		t.Fatalf("count = %q, %v; want unknown", out, err)
	}
}

func TestConfigSetMergesOnlyGivenFlags(t *testing.T) {
	mgr, addr := newDaemon(t)

	out, err := execute(t, "--addr", addr, "config", "set", "--meet", "120")
	if err != nil {
		t.Fatalf("config set = %v", err)
	}
	if !strings.Contains(out, "meetTimer=120") || !strings.Contains(out, "zoomTimer=600") {
		t.Fatalf("config set output = %q", out)
	}
	if got := mgr.Config(); got.MeetTimer != 120 || got.TeamsTimer != 600 {
		t.Fatalf("Config() = %+v", got)
	}

	if _, err := execute(t, "--addr", addr, "config", "set", "--zoom", "-1"); err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("config set negative = %v; want a 400 error", err)
	}
	if _, err := execute(t, "--addr", addr, "config", "set"); err == nil {
		t.Fatal("config set without flags = nil; want error")
	}

	out, err = execute(t, "--addr", addr, "config", "get")
	if err != nil || !strings.Contains(out, "fallbackZoomTimer=10800") {
		t.Fatalf("config get = %q, %v", out, err)
	}
}

func TestTabsListing(t *testing.T) {
	_, addr := newDaemon(t, tabstate.MonitoredTab{TabID: "t1", URL: "https://meet.google.com/", Category: meeting.CategoryMeet, WasInMeeting: true})

	out, err := execute(t, "--addr", addr, "tabs")
	if err != nil {
		t.Fatalf("tabs = %v", err)
	}
	if !strings.Contains(out, "t1") || !strings.Contains(out, "meet") || !strings.Contains(out, "true") {
		t.Fatalf("tabs output = %q", out)
	}

	out, err = execute(t, "--addr", addr, "closures", "--limit", "3")
	if err != nil || !strings.Contains(out, "REASON") {
		t.Fatalf("closures = %q, %v", out, err)
	}
}

func TestAdmissionsListsNames(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	_, addr := newDaemonWith(t, controller.Deps{Admissions: fakeAdmissions{{TabID: "room-1", Name: "Fathom Notetaker", At: at}}})

	out, err := execute(t, "--addr", addr, "admissions")
	if err != nil {
		t.Fatalf("admissions = %v", err)
	}
	if !strings.Contains(out, "room-1") || !strings.Contains(out, "Fathom Notetaker") {
		t.Fatalf("admissions output = %q", out)
	}
}
