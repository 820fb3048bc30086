package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgnsrekt/meetcloser/internal/admit"
	"github.com/dgnsrekt/meetcloser/internal/journal"
	"github.com/dgnsrekt/meetcloser/internal/settings"
	"github.com/dgnsrekt/meetcloser/internal/tabstate"
)

// apiClient talks to a running meetcloser daemon.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string, timeout time.Duration) *apiClient {
	return &apiClient{base: strings.TrimRight(base, "/"), http: &http.Client{Timeout: timeout}}
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var problem struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(raw, &problem) == nil && problem.Detail != "" {
			return fmt.Errorf("%s %s: %d: %s", method, path, resp.StatusCode, problem.Detail)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (c *apiClient) closedCount(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/closed-count", nil, &out)
	return out.Count, err
}

func (c *apiClient) resetCount(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/closed-count/reset", nil, nil)
}

func (c *apiClient) configuration(ctx context.Context) (settings.TimerConfig, error) {
	var out struct {
		Config settings.TimerConfig `json:"config"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/configuration", nil, &out)
	return out.Config, err
}

func (c *apiClient) saveConfiguration(ctx context.Context, partial settings.PartialTimerConfig) error {
	body := struct {
		Config settings.PartialTimerConfig `json:"config"`
	}{Config: partial}
	return c.do(ctx, http.MethodPatch, "/api/v1/configuration", body, nil)
}

func (c *apiClient) tabs(ctx context.Context) ([]tabstate.MonitoredTab, error) {
	var out struct {
		Tabs []tabstate.MonitoredTab `json:"tabs"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/tabs", nil, &out)
	return out.Tabs, err
}

func (c *apiClient) closures(ctx context.Context, limit int) ([]journal.Record, error) {
	var out struct {
		Closures []journal.Record `json:"closures"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/closures?limit="+strconv.Itoa(limit), nil, &out)
	return out.Closures, err
}

func (c *apiClient) admissions(ctx context.Context) ([]admit.Admission, error) {
	var out struct {
		Admissions []admit.Admission `json:"admissions"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/admissions", nil, &out)
	return out.Admissions, err
}
