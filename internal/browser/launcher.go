// Package browser starts a Chromium with remote debugging on a fixed port
// and a persistent profile, so the monitor can attach and read its history.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/chromedp/chromedp"
)

const cdpReadyTimeout = 15 * time.Second

// Config holds browser launch configuration.
type Config struct {
	CDPAddress string
	CDPPort    int
	StartURL   string
	ProfileDir string
	ExecPath   string
	WindowSize [2]int
}

// Launcher owns a browser process started through a chromedp exec allocator.
type Launcher struct {
	cfg Config

	cancelAlloc   context.CancelFunc
	cancelBrowser context.CancelFunc
	running       bool
}

func NewLauncher(cfg Config) *Launcher {
	if cfg.WindowSize == [2]int{} {
		cfg.WindowSize = [2]int{1280, 900}
	}
	if cfg.StartURL == "" {
		cfg.StartURL = "about:blank"
	}
	return &Launcher{cfg: cfg}
}

func (l *Launcher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("headless", false),
		chromedp.Flag("remote-debugging-port", strconv.Itoa(l.cfg.CDPPort)),
		chromedp.Flag("remote-debugging-address", l.cfg.CDPAddress),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-breakpad", true),
		chromedp.UserDataDir(l.cfg.ProfileDir),
		chromedp.WindowSize(l.cfg.WindowSize[0], l.cfg.WindowSize[1]),
	}
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	return opts
}

func isPortInUse(address string, port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(address, strconv.Itoa(port)), time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Launch starts the browser unless something already listens on the CDP
// port, in which case that browser is used as-is.
func (l *Launcher) Launch(ctx context.Context) error {
	if isPortInUse(l.cfg.CDPAddress, l.cfg.CDPPort) {
		slog.Info("browser already running, skipping launch",
			"address", l.cfg.CDPAddress, "port", l.cfg.CDPPort)
		return nil
	}
	if l.cfg.ProfileDir == "" {
		return fmt.Errorf("browser: profile dir is required")
	}
	if err := os.MkdirAll(l.cfg.ProfileDir, 0o755); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}

	// The allocator outlives ctx; Stop tears it down.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), l.allocatorOptions()...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	l.cancelAlloc, l.cancelBrowser = cancelAlloc, cancelBrowser

	if err := chromedp.Run(browserCtx, chromedp.Navigate(l.cfg.StartURL)); err != nil {
		l.Stop()
		return fmt.Errorf("start browser: %w", err)
	}
	l.running = true
	slog.Info("browser process started", "profile", l.cfg.ProfileDir, "port", l.cfg.CDPPort)

	if err := waitForCDP(ctx, l.cfg.CDPAddress, l.cfg.CDPPort); err != nil {
		l.Stop()
		return fmt.Errorf("waiting for CDP: %w", err)
	}
	slog.Info("CDP endpoint ready", "address", l.cfg.CDPAddress, "port", l.cfg.CDPPort)
	return nil
}

// waitForCDP polls /json/version until it answers.
func waitForCDP(ctx context.Context, address string, port int) error {
	url := fmt.Sprintf("http://%s/json/version", net.JoinHostPort(address, strconv.Itoa(port)))
	deadline := time.After(cdpReadyTimeout)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	client := &http.Client{Timeout: time.Second}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("CDP did not become ready within %s at %s", cdpReadyTimeout, url)
		case <-ticker.C:
			resp, err := client.Get(url)
			if err != nil {
				continue
			}
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
	}
}

// Running reports whether this launcher started a browser.
func (l *Launcher) Running() bool {
	return l.running
}

// Stop closes the browser this launcher started. It is a no-op otherwise.
func (l *Launcher) Stop() {
	if l.cancelBrowser != nil {
		l.cancelBrowser()
		l.cancelBrowser = nil
	}
	if l.cancelAlloc != nil {
		l.cancelAlloc()
		l.cancelAlloc = nil
		slog.Info("browser stopped")
	}
	l.running = false
}
