package types

// TabID is the browser's opaque identifier for a page target.
type TabID string

// LoadStatus mirrors the browser's tab loading state.
type LoadStatus string

const (
	StatusLoading  LoadStatus = "loading"
	StatusComplete LoadStatus = "complete"
)

// Tab is an open browser page as reported by tab enumeration.
type Tab struct {
	ID    TabID  `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// EventKind distinguishes navigation updates from tab removal.
type EventKind int

const (
	EventUpdated EventKind = iota
	EventRemoved
)

// TabEvent is a tab-updated or tab-removed notification from the browser.
// Status and URL are only meaningful for EventUpdated.
type TabEvent struct {
	Kind   EventKind
	TabID  TabID
	Status LoadStatus
	URL    string
}
