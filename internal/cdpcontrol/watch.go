package cdpcontrol

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/target"

	"github.com/dgnsrekt/meetcloser/internal/meeting"
	"github.com/dgnsrekt/meetcloser/internal/types"
)

const (
	// watchBuffer bounds events queued between the read loop and the watcher.
	watchBuffer = 256

	watchBackoffMin = time.Second
	watchBackoffMax = 30 * time.Second
)

var watchedEvents = []string{
	"Target.targetCreated",
	"Target.targetInfoChanged",
	"Target.targetDestroyed",
	"Target.detachedFromTarget",
	"Page.loadEventFired",
	"Page.navigatedWithinDocument",
}

type cdpEvent struct {
	method    string
	sessionID string
	params    json.RawMessage
}

// Watch streams tab navigation and removal events into out until ctx is
// done. A dropped browser connection is retried with exponential backoff.
func (c *Client) Watch(ctx context.Context, out chan<- types.TabEvent) error {
	backoff := watchBackoffMin
	for {
		subscribed, err := c.watchOnce(ctx, out)
		if ctx.Err() != nil {
			return nil
		}
		if subscribed {
			backoff = watchBackoffMin
		}
		slog.Warn("cdpcontrol watch interrupted, retrying", "error", err, "backoff", backoff.String())

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		backoff *= 2
		if backoff > watchBackoffMax {
			backoff = watchBackoffMax
		}
	}
}

func (c *Client) watchOnce(ctx context.Context, out chan<- types.TabEvent) (bool, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return false, err
	}
	c.mu.Lock()
	cdp := c.cdp
	c.mu.Unlock()
	if cdp == nil {
		return false, newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}
	done := cdp.disconnected()

	raw := make(chan cdpEvent, watchBuffer)
	resync := make(chan struct{}, 1)
	for _, method := range watchedEvents {
		method := method
		unregister := cdp.registerEventHandler(method, func(sessionID string, params json.RawMessage) {
			c.enqueue(raw, resync, cdpEvent{method: method, sessionID: sessionID, params: params})
		})
		defer unregister()
	}

	if err := cdp.setDiscoverTargets(ctx, true); err != nil {
		return false, newError(CodeCDPUnavailable, "enable target discovery failed", err)
	}
	slog.Info("cdpcontrol watch started", "cdp_url", c.cdpURL)

	w := newTabWatcher(c, cdp, out)
	for {
		select {
		case <-ctx.Done():
			return true, nil
		case <-done:
			return true, newError(CodeCDPUnavailable, "browser connection lost", nil)
		case ev := <-raw:
			w.handle(ctx, ev)
		case <-resync:
			w.resync(ctx)
		}
	}
}

// enqueue hands ev to the watch loop without blocking the read loop. A full
// buffer drops the event and asks the loop to resync from the target list.
func (c *Client) enqueue(raw chan<- cdpEvent, resync chan<- struct{}, ev cdpEvent) {
	select {
	case raw <- ev:
		return
	default:
	}
	n := c.droppedEvents.Add(1)
	slog.Warn("cdpcontrol watch event dropped, buffer full", "method", ev.method, "dropped_total", n)
	select {
	case resync <- struct{}{}:
	default:
	}
}

// DroppedEvents reports how many browser events the watcher could not queue.
func (c *Client) DroppedEvents() int64 {
	return c.droppedEvents.Load()
}

// tabWatcher turns raw CDP events into TabEvents. Pages on meeting hosts get
// an attached session with the Page domain enabled so their load completion
// is observed; every other page only reports URL changes as loading.
type tabWatcher struct {
	c   *Client
	cdp *rawCDP
	out chan<- types.TabEvent

	// attach, list and loaded are replaced in tests.
	attach func(ctx context.Context, id target.ID) (string, bool)
	list   func(ctx context.Context) ([]*target.Info, error)
	loaded func(ctx context.Context, sessionID string) bool

	urls     map[target.ID]string
	sessions map[string]target.ID
	attached map[target.ID]string
}

func newTabWatcher(c *Client, cdp *rawCDP, out chan<- types.TabEvent) *tabWatcher {
	w := &tabWatcher{
		c:        c,
		cdp:      cdp,
		out:      out,
		urls:     make(map[target.ID]string),
		sessions: make(map[string]target.ID),
		attached: make(map[target.ID]string),
	}
	w.attach = w.attachPage
	if cdp != nil {
		w.list = cdp.listTargets
	}
	w.loaded = w.readyStateComplete
	return w
}

func (w *tabWatcher) handle(ctx context.Context, ev cdpEvent) {
	switch ev.method {
	case "Target.targetCreated", "Target.targetInfoChanged":
		var p struct {
			TargetInfo target.Info `json:"targetInfo"`
		}
		if err := json.Unmarshal(ev.params, &p); err != nil {
			slog.Debug("cdpcontrol watch bad target info", "method", ev.method, "error", err)
			return
		}
		w.targetChanged(ctx, p.TargetInfo)

	case "Target.targetDestroyed":
		var p struct {
			TargetID target.ID `json:"targetId"`
		}
		if err := json.Unmarshal(ev.params, &p); err != nil {
			return
		}
		w.removed(ctx, p.TargetID)

	case "Target.detachedFromTarget":
		var p struct {
			SessionID string `json:"sessionId"`
		}
		if err := json.Unmarshal(ev.params, &p); err != nil {
			return
		}
		if id, ok := w.sessions[p.SessionID]; ok {
			delete(w.sessions, p.SessionID)
			delete(w.attached, id)
		}

	case "Page.loadEventFired":
		id, ok := w.sessions[ev.sessionID]
		if !ok {
			return
		}
		w.complete(ctx, id, w.urls[id])

	case "Page.navigatedWithinDocument":
		id, ok := w.sessions[ev.sessionID]
		if !ok {
			return
		}
		var p struct {
			FrameID string `json:"frameId"`
			URL     string `json:"url"`
		}
		if err := json.Unmarshal(ev.params, &p); err != nil {
			return
		}
		// The main frame shares the target's ID.
		if p.FrameID != "" && p.FrameID != string(id) {
			return
		}
		w.urls[id] = p.URL
		w.complete(ctx, id, p.URL)
	}
}

func (w *tabWatcher) removed(ctx context.Context, id target.ID) {
	if _, known := w.urls[id]; !known {
		return
	}
	delete(w.urls, id)
	if sid, ok := w.attached[id]; ok {
		delete(w.sessions, sid)
		delete(w.attached, id)
	}
	w.c.forget(id)
	w.emit(ctx, types.TabEvent{Kind: types.EventRemoved, TabID: types.TabID(id)})
}

// resync recovers from dropped events: URL changes and removals are derived
// from the target list, and attached pages that finished loading report
// complete again.
func (w *tabWatcher) resync(ctx context.Context) {
	if w.list == nil {
		return
	}
	infos, err := w.list(ctx)
	if err != nil {
		slog.Warn("cdpcontrol watch resync failed", "error", err)
		return
	}
	live := make(map[target.ID]bool, len(infos))
	for _, info := range infos {
		if info == nil || info.Type != "page" {
			continue
		}
		live[info.TargetID] = true
		w.targetChanged(ctx, *info)
	}
	for id := range w.urls {
		if !live[id] {
			w.removed(ctx, id)
		}
	}
	for id, sid := range w.attached {
		if w.loaded(ctx, sid) {
			w.complete(ctx, id, w.urls[id])
		}
	}
	slog.Info("cdpcontrol watch resynced", "pages", len(live))
}

func (w *tabWatcher) targetChanged(ctx context.Context, info target.Info) {
	if info.Type != "page" {
		return
	}
	prev, known := w.urls[info.TargetID]
	w.urls[info.TargetID] = info.URL
	if known && prev == info.URL {
		return
	}

	w.emit(ctx, types.TabEvent{
		Kind:   types.EventUpdated,
		TabID:  types.TabID(info.TargetID),
		Status: types.StatusLoading,
		URL:    info.URL,
	})

	if _, ok := w.attached[info.TargetID]; ok || !meeting.IsMeetingHost(info.URL) {
		return
	}
	sid, loaded := w.attach(ctx, info.TargetID)
	if sid == "" {
		return
	}
	w.sessions[sid] = info.TargetID
	w.attached[info.TargetID] = sid
	// A page that finished loading before Page.enable will not fire a load event.
	if loaded {
		w.complete(ctx, info.TargetID, w.urls[info.TargetID])
	}
}

// attachPage attaches a session to the page, enables the Page domain and
// reports whether the document had already finished loading.
func (w *tabWatcher) attachPage(ctx context.Context, id target.ID) (string, bool) {
	session := w.c.sessionFor(id, types.Tab{ID: types.TabID(id), URL: w.urls[id]})
	sid, err := w.c.ensureSession(ctx, w.cdp, session, string(id))
	if err != nil {
		slog.Warn("cdpcontrol watch attach failed", "target_id", id, "error", err)
		return "", false
	}
	if err := w.cdp.enablePageDomain(ctx, sid); err != nil {
		slog.Warn("cdpcontrol watch page enable failed", "target_id", id, "error", err)
		return "", false
	}
	loaded := w.loaded(ctx, sid)
	slog.Debug("cdpcontrol watch attached", "target_id", id, "session_id", sid, "loaded", loaded)
	return sid, loaded
}

func (w *tabWatcher) readyStateComplete(ctx context.Context, sessionID string) bool {
	state, err := w.cdp.evaluate(ctx, sessionID, "document.readyState")
	if err != nil {
		slog.Debug("cdpcontrol watch ready state unknown", "session_id", sessionID, "error", err)
		return false
	}
	return state == "complete"
}

func (w *tabWatcher) complete(ctx context.Context, id target.ID, url string) {
	if url == "" {
		return
	}
	w.emit(ctx, types.TabEvent{
		Kind:   types.EventUpdated,
		TabID:  types.TabID(id),
		Status: types.StatusComplete,
		URL:    url,
	})
}

func (w *tabWatcher) emit(ctx context.Context, ev types.TabEvent) {
	select {
	case w.out <- ev:
	case <-ctx.Done():
	}
}
