package settings

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgnsrekt/meetcloser/internal/meeting"
)

// ErrInvalidConfig is returned when a timer value is out of range.
var ErrInvalidConfig = errors.New("invalid timer configuration")

// TimerConfig holds the closure timers in seconds. A zero MeetTimer closes a
// Meet tab as soon as it returns to the landing page after a meeting.
type TimerConfig struct {
	ZoomTimer         int `json:"zoomTimer" doc:"Seconds before a Zoom meeting tab is closed"`
	TeamsTimer        int `json:"teamsTimer" doc:"Seconds before a Teams launcher tab is closed"`
	MeetTimer         int `json:"meetTimer" doc:"Seconds after leaving a Meet meeting before the tab is closed; 0 closes immediately"`
	FallbackZoomTimer int `json:"fallbackZoomTimer" doc:"Seconds before any other zoom.us page is closed"`
}

// DefaultTimerConfig returns the built-in timers: ten minutes for Zoom and
// Teams, immediate for Meet, three hours for unrecognized Zoom pages.
func DefaultTimerConfig() TimerConfig {
	return TimerConfig{
		ZoomTimer:         600,
		TeamsTimer:        600,
		MeetTimer:         0,
		FallbackZoomTimer: 10800,
	}
}

// Validate rejects negative timers.
func (c TimerConfig) Validate() error {
	fields := []struct {
		name  string
		value int
	}{
		{"zoomTimer", c.ZoomTimer},
		{"teamsTimer", c.TeamsTimer},
		{"meetTimer", c.MeetTimer},
		{"fallbackZoomTimer", c.FallbackZoomTimer},
	}
	for _, f := range fields {
		if f.value < 0 {
			return fmt.Errorf("%w: %s must be >= 0, got %d", ErrInvalidConfig, f.name, f.value)
		}
	}
	return nil
}

// TimeoutFor returns the elapsed-time limit for categories that close purely
// on age. Meet is armed separately and reports ok=false.
func (c TimerConfig) TimeoutFor(cat meeting.Category) (time.Duration, bool) {
	switch cat {
	case meeting.CategoryZoom:
		return seconds(c.ZoomTimer), true
	case meeting.CategoryZoomFallback:
		return seconds(c.FallbackZoomTimer), true
	case meeting.CategoryTeams:
		return seconds(c.TeamsTimer), true
	}
	return 0, false
}

// MeetTimeout returns the configured meet timer as a duration.
func (c TimerConfig) MeetTimeout() time.Duration {
	return seconds(c.MeetTimer)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// PartialTimerConfig carries the subset of timers a caller wants to change.
type PartialTimerConfig struct {
	ZoomTimer         *int `json:"zoomTimer,omitempty" doc:"Seconds before a Zoom meeting tab is closed"`
	TeamsTimer        *int `json:"teamsTimer,omitempty" doc:"Seconds before a Teams launcher tab is closed"`
	MeetTimer         *int `json:"meetTimer,omitempty" doc:"Seconds after leaving a Meet meeting before the tab is closed; 0 closes immediately"`
	FallbackZoomTimer *int `json:"fallbackZoomTimer,omitempty" doc:"Seconds before any other zoom.us page is closed"`
}

// Merge returns base with every non-nil field of p applied.
func (p PartialTimerConfig) Merge(base TimerConfig) TimerConfig {
	out := base
	if p.ZoomTimer != nil {
		out.ZoomTimer = *p.ZoomTimer
	}
	if p.TeamsTimer != nil {
		out.TeamsTimer = *p.TeamsTimer
	}
	if p.MeetTimer != nil {
		out.MeetTimer = *p.MeetTimer
	}
	if p.FallbackZoomTimer != nil {
		out.FallbackZoomTimer = *p.FallbackZoomTimer
	}
	return out
}

// normalize fills a persisted partial document with defaults. Negative values
// are replaced by the default and reported back so the caller can log them.
func normalize(p PartialTimerConfig) (TimerConfig, []string) {
	def := DefaultTimerConfig()
	out := p.Merge(def)
	var replaced []string
	if out.ZoomTimer < 0 {
		out.ZoomTimer = def.ZoomTimer
		replaced = append(replaced, "zoomTimer")
	}
	if out.TeamsTimer < 0 {
		out.TeamsTimer = def.TeamsTimer
		replaced = append(replaced, "teamsTimer")
	}
	if out.MeetTimer < 0 {
		out.MeetTimer = def.MeetTimer
		replaced = append(replaced, "meetTimer")
	}
	if out.FallbackZoomTimer < 0 {
		out.FallbackZoomTimer = def.FallbackZoomTimer
		replaced = append(replaced, "fallbackZoomTimer")
	}
	return out, replaced
}
