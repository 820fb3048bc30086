package cdpcontrol

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/target"

	"github.com/dgnsrekt/meetcloser/internal/types"
)

// transientHints are substrings in error causes that indicate a transient
// failure worth retrying (e.g. broken connection, closed session).
var transientHints = []string{
	"context canceled",
	"target closed",
	"session closed",
	"websocket",
	"connection reset",
	"broken pipe",
	"eof",
	"connection refused",
	"connection closed",
	"not connected",
}

type tabSession struct {
	tab       types.Tab
	mu        sync.Mutex
	sessionID string // CDP session ID from Target.attachToTarget
}

// Client controls page targets of one Chromium instance.
type Client struct {
	cdpURL      string
	evalTimeout time.Duration

	mu   sync.Mutex
	cdp  *rawCDP
	tabs map[target.ID]*tabSession

	droppedEvents atomic.Int64
}

func NewClient(cdpURL string, evalTimeout time.Duration) *Client {
	if evalTimeout <= 0 {
		evalTimeout = 5 * time.Second
	}
	return &Client{
		cdpURL:      cdpURL,
		evalTimeout: evalTimeout,
		tabs:        make(map[target.ID]*tabSession),
	}
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.cdpURL == "" {
		return newError(CodeCDPUnavailable, "missing CDP URL", nil)
	}

	slog.Info("cdpcontrol connect start", "cdp_url", c.cdpURL)
	c.cleanupLocked()

	c.cdp = newRawCDP(c.cdpURL)
	if err := c.cdp.connect(ctx); err != nil {
		c.cdp = nil
		return newError(CodeCDPUnavailable, "connect to CDP failed", err)
	}

	if err := c.syncTabsLocked(ctx); err != nil {
		slog.Error("cdpcontrol initial tab sync failed", "error", err)
		c.cleanupLocked()
		return newError(CodeCDPUnavailable, "connect to CDP failed", err)
	}

	slog.Info("cdpcontrol connect ok", "cdp_url", c.cdpURL, "tabs", len(c.tabs))
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupLocked()
	return nil
}

func (c *Client) cleanupLocked() {
	// Detach from any active sessions without closing targets.
	if c.cdp != nil {
		for targetID, session := range c.tabs {
			if session == nil {
				continue
			}
			session.mu.Lock()
			if session.sessionID != "" {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				if err := c.cdp.detachFromTarget(ctx, session.sessionID); err != nil {
					slog.Debug("cdpcontrol detach cleanup failed", "target_id", targetID, "error", err)
				}
				cancel()
				session.sessionID = ""
			}
			session.mu.Unlock()
		}
		c.cdp.close()
		c.cdp = nil
	}
	c.tabs = make(map[target.ID]*tabSession)
}

// ListTabs returns the open page targets ordered by ID.
func (c *Client) ListTabs(ctx context.Context) ([]types.Tab, error) {
	if err := c.refreshTabs(ctx); err != nil {
		slog.Warn("cdpcontrol list tabs failed", "error", err)
		return nil, err
	}

	c.mu.Lock()
	tabs := make([]types.Tab, 0, len(c.tabs))
	for _, s := range c.tabs {
		if s != nil {
			tabs = append(tabs, s.tab)
		}
	}
	c.mu.Unlock()

	sort.Slice(tabs, func(i, j int) bool {
		return tabs[i].ID < tabs[j].ID
	})
	slog.Debug("cdpcontrol list tabs", "count", len(tabs))
	return tabs, nil
}

// CloseTab closes the page target id. A target the browser no longer knows
// yields TAB_NOT_FOUND.
func (c *Client) CloseTab(ctx context.Context, id types.TabID) error {
	if strings.TrimSpace(string(id)) == "" {
		return newError(CodeValidation, "tab id is required", nil)
	}
	if err := c.ensureConnected(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	cdp := c.cdp
	c.mu.Unlock()
	if cdp == nil {
		return newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}

	ok, err := cdp.closeTarget(ctx, string(id))
	if err != nil {
		if isNoTarget(err) {
			c.forget(target.ID(id))
			return newError(CodeTabNotFound, "tab not found: "+string(id), err)
		}
		return newError(CodeCDPUnavailable, "close target failed", err)
	}
	c.forget(target.ID(id))
	if !ok {
		return newError(CodeTabNotFound, "tab not found: "+string(id), nil)
	}
	slog.Debug("cdpcontrol tab closed", "tab_id", id)
	return nil
}

func isNoTarget(err error) bool {
	var cerr *cdpError
	if !errors.As(err, &cerr) {
		return false
	}
	return strings.Contains(strings.ToLower(cerr.Message), "no target with given id")
}

func (c *Client) forget(targetID target.ID) {
	c.mu.Lock()
	delete(c.tabs, targetID)
	c.mu.Unlock()
}

// Evaluate runs body inside an async IIFE on the tab and decodes the
// {ok,data,error_code,error_message} envelope it returns into out.
func (c *Client) Evaluate(ctx context.Context, id types.TabID, body string, out any) error {
	js := wrapJSEvalAsync(body)

	session, err := c.resolveSession(ctx, id)
	if err != nil {
		slog.Warn("cdpcontrol tab resolve failed", "tab_id", id, "error", err)
	} else {
		err = c.evalOnSession(ctx, session, id, js, out)
	}
	if err == nil {
		return nil
	}
	if !c.shouldRetry(err) {
		return err
	}

	slog.Warn("cdpcontrol eval retry after transient failure", "tab_id", id, "error", err)
	// Watch and CloseTab share the connection; refreshTabs only redials a dead one.
	if syncErr := c.refreshTabs(ctx); syncErr != nil {
		slog.Error("cdpcontrol tab refresh failed during retry", "tab_id", id, "error", syncErr)
		return syncErr
	}

	session, err = c.resolveSession(ctx, id)
	if err != nil {
		return err
	}
	return c.evalOnSession(ctx, session, id, js, out)
}

func (c *Client) evalOnSession(ctx context.Context, session *tabSession, id types.TabID, js string, out any) error {
	c.mu.Lock()
	cdp := c.cdp
	c.mu.Unlock()
	if cdp == nil {
		return newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}

	sessionID, err := c.ensureSession(ctx, cdp, session, string(id))
	if err != nil {
		return err
	}

	evalCtx, evalCancel := context.WithTimeout(ctx, c.evalTimeout)
	defer evalCancel()

	raw, err := cdp.evaluate(evalCtx, sessionID, js)
	if err != nil {
		slog.Warn("cdpcontrol eval failed", "tab_id", id, "error", err)
		// Reset session so a fresh attach happens on retry.
		session.mu.Lock()
		session.sessionID = ""
		session.mu.Unlock()

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(evalCtx.Err(), context.DeadlineExceeded) {
			return newError(CodeEvalTimeout, "evaluation timed out", err)
		}
		return newError(CodeEvalFailure, "evaluation failed", err)
	}
	return decodeEnvelope(raw, out)
}

// ensureSession returns a CDP session ID for the target, attaching if needed.
func (c *Client) ensureSession(ctx context.Context, cdp *rawCDP, session *tabSession, targetID string) (string, error) {
	session.mu.Lock()
	defer session.mu.Unlock()

	if session.sessionID != "" {
		return session.sessionID, nil
	}

	sid, err := cdp.attachToTarget(ctx, targetID)
	if err != nil {
		if isNoTarget(err) {
			return "", newError(CodeTabNotFound, "tab not found: "+targetID, err)
		}
		return "", newError(CodeCDPUnavailable, "attach to target failed", err)
	}
	session.sessionID = sid
	slog.Debug("cdpcontrol session attached", "target_id", targetID, "session_id", sid)
	return sid, nil
}

// sessionFor returns the tracked session for targetID, creating an entry for
// targets seen through events before the next list sync.
func (c *Client) sessionFor(targetID target.ID, tab types.Tab) *tabSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.tabs[targetID]
	if s == nil {
		s = &tabSession{tab: tab}
		c.tabs[targetID] = s
	}
	return s
}

func (c *Client) resolveSession(ctx context.Context, id types.TabID) (*tabSession, error) {
	if session := c.lookupSession(id); session != nil {
		return session, nil
	}
	if err := c.refreshTabs(ctx); err != nil {
		return nil, err
	}
	if session := c.lookupSession(id); session != nil {
		return session, nil
	}
	return nil, newError(CodeTabNotFound, "tab not found: "+string(id), nil)
}

func (c *Client) lookupSession(id types.TabID) *tabSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tabs[target.ID(id)]
}

func (c *Client) refreshTabs(ctx context.Context) error {
	if err := c.ensureConnected(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	err := c.syncTabsLocked(ctx)
	c.mu.Unlock()
	if err == nil {
		return nil
	}

	return newError(CodeCDPUnavailable, "failed to list targets", err)
}

func (c *Client) reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) syncTabsLocked(ctx context.Context) error {
	if c.cdp == nil {
		return newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}

	targets, err := c.cdp.listTargets(ctx)
	if err != nil {
		return err
	}

	expected := make(map[target.ID]types.Tab)
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		expected[t.TargetID] = types.Tab{
			ID:    types.TabID(t.TargetID),
			URL:   t.URL,
			Title: t.Title,
		}
	}

	for targetID := range c.tabs {
		if _, ok := expected[targetID]; !ok {
			delete(c.tabs, targetID)
		}
	}
	for targetID, tab := range expected {
		if session := c.tabs[targetID]; session != nil {
			session.tab = tab
			continue
		}
		c.tabs[targetID] = &tabSession{tab: tab}
	}

	slog.Debug("cdpcontrol tab sync", "targets", len(targets), "pages", len(c.tabs))
	return nil
}

func (c *Client) ensureConnected(ctx context.Context) error {
	c.mu.Lock()
	connected := c.cdp != nil && c.cdp.alive()
	c.mu.Unlock()
	if connected {
		return nil
	}
	return c.reconnect(ctx)
}

func (c *Client) shouldRetry(err error) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}

	switch coded.Code {
	case CodeCDPUnavailable:
		return true
	case CodeTabNotFound:
		return false
	case CodeEvalFailure:
		if coded.Cause == nil {
			return false
		}
		cause := strings.ToLower(coded.Cause.Error())
		for _, hint := range transientHints {
			if strings.Contains(cause, hint) {
				return true
			}
		}
	}
	return false
}
