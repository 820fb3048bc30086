// Package notify posts a short ntfy message for every tab the monitor closes.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/meetcloser/internal/monitor"
)

const defaultSendTimeout = 10 * time.Second

// Notifier is a monitor.ClosureSink. Failed closes are not announced.
type Notifier struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration

	wg sync.WaitGroup
}

// New returns a Notifier posting to endpoint. client may be nil.
func New(endpoint string, client *http.Client) *Notifier {
	return &Notifier{endpoint: endpoint, client: client, timeout: defaultSendTimeout}
}

// TabClosed sends in the background so the monitor is never held up.
func (n *Notifier) TabClosed(ev monitor.ClosureEvent) {
	if ev.Error != "" {
		return
	}
	msg := Message(ev)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := Send(ctx, n.client, n.endpoint, msg); err != nil {
			slog.Warn("ntfy notification failed", "tab_id", ev.TabID, "error", err)
		}
	}()
}

// Wait blocks until in-flight notifications finish.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// Message renders the notification body for ev.
func Message(ev monitor.ClosureEvent) string {
	return fmt.Sprintf("Closed %s tab (%s), %d closed so far: %s", ev.Category, ev.Reason, ev.ClosedCount, ev.URL)
}

// Send posts message to endpoint as text/plain.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	if strings.TrimSpace(endpoint) == "" {
		return fmt.Errorf("ntfy endpoint is required")
	}
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Title", "meetcloser")
	req.Header.Set("Tags", "door")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
