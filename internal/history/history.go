// Package history answers "which pages were visited recently" for the
// monitor's post-meeting inference.
package history

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned when no history source is configured.
var ErrUnavailable = errors.New("browser history unavailable")

// Entry is one visited URL.
type Entry struct {
	URL           string    `json:"url"`
	LastVisitTime time.Time `json:"last_visit_time"`
}

// Query filters history by substring, earliest visit time and result cap.
type Query struct {
	Text       string
	StartTime  time.Time
	MaxResults int
}

// Searcher looks up recent browsing history.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Entry, error)
}

// Unavailable is a Searcher that always fails with ErrUnavailable.
type Unavailable struct{}

func (Unavailable) Search(context.Context, Query) ([]Entry, error) {
	return nil, ErrUnavailable
}
