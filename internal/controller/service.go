// Package controller adapts the monitor, settings and journal to the HTTP
// API's Service interface.
package controller

import (
	"context"

	"github.com/dgnsrekt/meetcloser/internal/admit"
	"github.com/dgnsrekt/meetcloser/internal/api"
	"github.com/dgnsrekt/meetcloser/internal/journal"
	"github.com/dgnsrekt/meetcloser/internal/settings"
	"github.com/dgnsrekt/meetcloser/internal/tabstate"
	"github.com/dgnsrekt/meetcloser/internal/types"
)

// Settings is the part of settings.Manager the API needs.
type Settings interface {
	Config() settings.TimerConfig
	SaveConfig(partial settings.PartialTimerConfig) (settings.TimerConfig, error)
	ClosedCount() int
	ResetClosed() error
}

type TabLister interface {
	Tabs() []tabstate.MonitoredTab
}

type BrowserLister interface {
	ListTabs(ctx context.Context) ([]types.Tab, error)
	DroppedEvents() int64
}

type ClosureReader interface {
	Recent(limit int) ([]journal.Record, error)
}

type AdmissionReader interface {
	Admitted() []admit.Admission
}

// Deps wires a Service. Journal and Admissions may be nil when those
// features are off.
type Deps struct {
	Settings   Settings
	Tabs       TabLister
	Browser    BrowserLister
	Journal    ClosureReader
	Admissions AdmissionReader
	CDPURL     string
}

// Service implements api.Service.
type Service struct {
	settings   Settings
	tabs       TabLister
	browser    BrowserLister
	journal    ClosureReader
	admissions AdmissionReader
	cdpURL     string
}

var _ api.Service = (*Service)(nil)

func NewService(d Deps) *Service {
	return &Service{
		settings:   d.Settings,
		tabs:       d.Tabs,
		browser:    d.Browser,
		journal:    d.Journal,
		admissions: d.Admissions,
		cdpURL:     d.CDPURL,
	}
}

func (s *Service) ClosedCount(ctx context.Context) (int, error) {
	return s.settings.ClosedCount(), nil
}

func (s *Service) ResetClosedCount(ctx context.Context) error {
	return s.settings.ResetClosed()
}

func (s *Service) Configuration(ctx context.Context) (settings.TimerConfig, error) {
	return s.settings.Config(), nil
}

// SaveConfiguration merges partial into the stored timers. Running timers
// pick up the new values on the next sweep.
func (s *Service) SaveConfiguration(ctx context.Context, partial settings.PartialTimerConfig) (settings.TimerConfig, error) {
	return s.settings.SaveConfig(partial)
}

func (s *Service) MonitoredTabs(ctx context.Context) ([]tabstate.MonitoredTab, error) {
	return s.tabs.Tabs(), nil
}

func (s *Service) RecentClosures(ctx context.Context, limit int) ([]journal.Record, error) {
	if s.journal == nil {
		return nil, nil
	}
	return s.journal.Recent(limit)
}

func (s *Service) RecentAdmissions(ctx context.Context) ([]admit.Admission, error) {
	if s.admissions == nil {
		return nil, nil
	}
	return s.admissions.Admitted(), nil
}

// BrowserStatus lists tabs to check the CDP endpoint. An unreachable browser
// is reported in the status rather than as an error.
func (s *Service) BrowserStatus(ctx context.Context) (api.BrowserStatus, error) {
	status := api.BrowserStatus{CDPURL: s.cdpURL, DroppedEvents: s.browser.DroppedEvents()}
	tabs, err := s.browser.ListTabs(ctx)
	if err != nil {
		status.Error = err.Error()
		return status, nil
	}
	status.Connected = true
	status.Tabs = len(tabs)
	return status, nil
}
