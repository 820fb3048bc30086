package cdpcontrol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/dgnsrekt/meetcloser/internal/types"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func withDefaultHTTPClient(t *testing.T, transport http.RoundTripper) {
	t.Helper()
	origClient := http.DefaultClient
	t.Cleanup(func() {
		http.DefaultClient = origClient
	})
	http.DefaultClient = &http.Client{
		Transport: transport,
	}
}

type fakeTarget struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// fakeBrowser serves the DevTools HTTP endpoints and a browser WebSocket
// that answers the commands the client sends.
type fakeBrowser struct {
	srv *httptest.Server

	mu      sync.Mutex
	targets []fakeTarget
	closed  []string
	methods []string
	evalOut string
	// attachFailures makes that many Target.attachToTarget calls fail.
	attachFailures int
	conns          int
}

func newFakeBrowser(t *testing.T, targets ...fakeTarget) *fakeBrowser {
	t.Helper()
	fb := &fakeBrowser{targets: targets}
	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"webSocketDebuggerUrl": "ws://" + r.Host + "/devtools/browser/fake",
		})
	})
	mux.HandleFunc("/json/list", func(w http.ResponseWriter, _ *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		_ = json.NewEncoder(w).Encode(fb.targets)
	})
	mux.HandleFunc("/devtools/browser/fake", fb.serveWS)
	fb.srv = httptest.NewServer(mux)
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBrowser) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		return
	}
	defer conn.Close()
	fb.mu.Lock()
	fb.conns++
	fb.mu.Unlock()
	for {
		data, err := wsutil.ReadClientText(conn)
		if err != nil {
			return
		}
		var req struct {
			ID     int64           `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if json.Unmarshal(data, &req) != nil {
			continue
		}
		result, cerr := fb.respond(req.Method, req.Params)
		resp := map[string]any{"id": req.ID}
		if cerr != nil {
			resp["error"] = cerr
		} else {
			resp["result"] = result
		}
		out, _ := json.Marshal(resp)
		if err := wsutil.WriteServerText(conn, out); err != nil {
			return
		}
	}
}

func (fb *fakeBrowser) respond(method string, params json.RawMessage) (any, *cdpError) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.methods = append(fb.methods, method)

	var p struct {
		TargetID string `json:"targetId"`
	}
	_ = json.Unmarshal(params, &p)

	switch method {
	case "Target.closeTarget":
		for i, tgt := range fb.targets {
			if tgt.ID == p.TargetID {
				fb.targets = append(fb.targets[:i], fb.targets[i+1:]...)
				fb.closed = append(fb.closed, p.TargetID)
				return map[string]any{"success": true}, nil
			}
		}
		return nil, &cdpError{Code: -32602, Message: "No target with given id found"}
	case "Target.attachToTarget":
		if fb.attachFailures > 0 {
			fb.attachFailures--
			return nil, &cdpError{Code: -32000, Message: "Failed to attach"}
		}
		return map[string]any{"sessionId": "session-" + p.TargetID}, nil
	case "Runtime.evaluate":
		return map[string]any{"result": map[string]any{"type": "string", "value": fb.evalOut}}, nil
	}
	return map[string]any{}, nil
}

func newTestClient(t *testing.T, fb *fakeBrowser) *Client {
	t.Helper()
	c := NewClient(fb.srv.URL, time.Second)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func codeOf(t *testing.T, err error) string {
	t.Helper()
	var coded *CodedError
	if !errors.As(err, &coded) {
		t.Fatalf("error %v (%T) is not a *CodedError", err, err)
	}
	return coded.Code
}

func TestListTabsReturnsPagesOnly(t *testing.T) {
	fb := newFakeBrowser(t,
		fakeTarget{ID: "b", Type: "page", URL: "https://meet.google.com/"},
		fakeTarget{ID: "sw", Type: "service_worker", URL: "https://meet.google.com/sw.js"},
		fakeTarget{ID: "a", Type: "page", URL: "https://zoom.us/j/1", Title: "Zoom"},
	)
	c := newTestClient(t, fb)

	tabs, err := c.ListTabs(context.Background())
	if err != nil {
		t.Fatalf("ListTabs() = %v", err)
	}
	if len(tabs) != 2 {
		t.Fatalf("ListTabs() returned %d tabs; want 2", len(tabs))
	}
	if tabs[0].ID != "a" || tabs[0].Title != "Zoom" || tabs[1].ID != "b" {
		t.Fatalf("ListTabs() = %+v; want pages a, b in order", tabs)
	}
}

func TestListTabsUnreachableBrowser(t *testing.T) {
	withDefaultHTTPClient(t, roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusInternalServerError,
			Body:       io.NopCloser(strings.NewReader(`oops`)),
		}, nil
	}))

	c := NewClient("http://example.com", time.Second)
	_, err := c.ListTabs(context.Background())
	if err == nil {
		t.Fatal("expected ListTabs() to fail")
	}
	if code := codeOf(t, err); code != CodeCDPUnavailable {
		t.Fatalf("error code = %s; want %s", code, CodeCDPUnavailable)
	}
}

func TestSyncTabsLockedReportsListFailure(t *testing.T) {
	withDefaultHTTPClient(t, roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/json/list" {
			return &http.Response{
				StatusCode: http.StatusInternalServerError,
				Body:       io.NopCloser(strings.NewReader(`oops`)),
			}, nil
		}
		return &http.Response{StatusCode: http.StatusNotFound, Body: io.NopCloser(strings.NewReader(``))}, nil
	}))

	c := &Client{cdp: newRawCDP("http://example.com")}
	err := c.syncTabsLocked(context.Background())
	if err == nil || !strings.Contains(err.Error(), "HTTP 500") {
		t.Fatalf("syncTabsLocked() = %v; want HTTP 500 error", err)
	}
}

func TestCloseTab(t *testing.T) {
	fb := newFakeBrowser(t, fakeTarget{ID: "page-1", Type: "page", URL: "https://zoom.us/j/1"})
	c := newTestClient(t, fb)
	ctx := context.Background()

	if err := c.CloseTab(ctx, "page-1"); err != nil {
		t.Fatalf("CloseTab() = %v", err)
	}
	fb.mu.Lock()
	closed := fmt.Sprint(fb.closed)
	fb.mu.Unlock()
	if closed != "[page-1]" {
		t.Fatalf("closed targets = %s; want [page-1]", closed)
	}

	err := c.CloseTab(ctx, "page-1")
	if code := codeOf(t, err); code != CodeTabNotFound {
		t.Fatalf("second CloseTab() code = %s; want %s", code, CodeTabNotFound)
	}

	if code := codeOf(t, c.CloseTab(ctx, " ")); code != CodeValidation {
		t.Fatalf("CloseTab(blank) code = %s; want %s", code, CodeValidation)
	}
}

func TestEvaluateDecodesEnvelope(t *testing.T) {
	fb := newFakeBrowser(t, fakeTarget{ID: "page-1", Type: "page", URL: "https://meet.google.com/abc-defg-hij"})
	fb.evalOut = `{"ok":true,"data":{"admitted":1}}`
	c := newTestClient(t, fb)

	var out struct {
		Admitted int `json:"admitted"`
	}
	if err := c.Evaluate(context.Background(), "page-1", `return JSON.stringify({ok:true});`, &out); err != nil {
		t.Fatalf("Evaluate() = %v", err)
	}
	if out.Admitted != 1 {
		t.Fatalf("Admitted = %d; want 1", out.Admitted)
	}

	err := c.Evaluate(context.Background(), types.TabID("missing"), `return "{}";`, nil)
	if code := codeOf(t, err); code != CodeTabNotFound {
		t.Fatalf("Evaluate(missing) code = %s; want %s", code, CodeTabNotFound)
	}
}

func TestEvaluateRetryKeepsLiveConnection(t *testing.T) {
	fb := newFakeBrowser(t, fakeTarget{ID: "page-1", Type: "page", URL: "https://meet.google.com/abc-defg-hij"})
	fb.evalOut = `{"ok":true,"data":{}}`
	c := newTestClient(t, fb)
	ctx := context.Background()

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() = %v", err)
	}
	fb.mu.Lock()
	fb.attachFailures = 1
	fb.mu.Unlock()

	if err := c.Evaluate(ctx, "page-1", `return "{}";`, nil); err != nil {
		t.Fatalf("Evaluate() = %v; want success on retry", err)
	}
	fb.mu.Lock()
	conns := fb.conns
	fb.mu.Unlock()
	if conns != 1 {
		t.Fatalf("websocket connections = %d; want 1", conns)
	}
}

func TestShouldRetry(t *testing.T) {
	c := &Client{}
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "plain error", err: errors.New("x"), want: false},
		{name: "cdp unavailable", err: newError(CodeCDPUnavailable, "down", nil), want: true},
		{name: "tab not found", err: newError(CodeTabNotFound, "gone", nil), want: false},
		{name: "eval without cause", err: newError(CodeEvalFailure, "bad", nil), want: false},
		{name: "eval broken pipe", err: newError(CodeEvalFailure, "bad", errors.New("write: broken pipe")), want: true},
		{name: "eval script error", err: newError(CodeEvalFailure, "bad", errors.New("ReferenceError")), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.shouldRetry(tt.err); got != tt.want {
				t.Fatalf("shouldRetry() = %v; want %v", got, tt.want)
			}
		})
	}
}
