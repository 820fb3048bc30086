package relay

import (
	"encoding/json"
	"log/slog"

	"github.com/dgnsrekt/meetcloser/internal/monitor"
)

// Sink publishes monitor closure events to a Broker.
type Sink struct {
	Broker *Broker
}

func (s Sink) TabClosed(ev monitor.ClosureEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("relay encode failed", "tab_id", ev.TabID, "error", err)
		return
	}
	feed := FeedClosed
	if ev.Error != "" {
		feed = FeedCloseFailed
	}
	s.Broker.Publish(Event{Feed: feed, Payload: string(payload)})
}
