package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if got, want := cfg.CDPURL(), "http://127.0.0.1:9220"; got != want {
		t.Fatalf("CDPURL() = %q; want %q", got, want)
	}
	if cfg.SweepInterval != 5*time.Second || cfg.AdmitInterval != 2*time.Second {
		t.Fatalf("intervals = %v, %v", cfg.SweepInterval, cfg.AdmitInterval)
	}
	if cfg.ProfileDir != "" {
		t.Fatalf("ProfileDir = %q; want empty without a browser launch", cfg.ProfileDir)
	}
	if diff := cmp.Diff([]string{"127.0.0.1:8191", "127.0.0.1:8192"}, cfg.PortCandidates); diff != "" {
		t.Fatalf("PortCandidates mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CHROMIUM_CDP_PORT", "9333")
	t.Setenv("MEETCLOSER_SWEEP_INTERVAL_MS", "250")
	t.Setenv("MEETCLOSER_PORT_CANDIDATES", " 127.0.0.1:9000 ,,127.0.0.1:9001")
	t.Setenv("MEETCLOSER_LAUNCH_BROWSER", "true")
	t.Setenv("MEETCLOSER_EVAL_TIMEOUT_MS", "10")
	t.Setenv("MEETCLOSER_LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.CDPPort != 9333 || cfg.SweepInterval != 250*time.Millisecond {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.EvalTimeout != time.Second {
		t.Fatalf("EvalTimeout = %v; want clamp to 1s", cfg.EvalTimeout)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.ProfileDir != "./data/profile" {
		t.Fatalf("ProfileDir = %q; want the launch default", cfg.ProfileDir)
	}
	if diff := cmp.Diff([]string{"127.0.0.1:9000", "127.0.0.1:9001"}, cfg.PortCandidates); diff != "" {
		t.Fatalf("PortCandidates mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRejectsTinySweepInterval(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MEETCLOSER_SWEEP_INTERVAL_MS", "5")
	if _, err := Load(); err == nil {
		t.Fatal("Load() = nil; want error for 5ms sweep interval")
	}
}
