package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/meetcloser/internal/admit"
	"github.com/dgnsrekt/meetcloser/internal/api"
	"github.com/dgnsrekt/meetcloser/internal/browser"
	"github.com/dgnsrekt/meetcloser/internal/cdpcontrol"
	"github.com/dgnsrekt/meetcloser/internal/config"
	"github.com/dgnsrekt/meetcloser/internal/controller"
	"github.com/dgnsrekt/meetcloser/internal/history"
	"github.com/dgnsrekt/meetcloser/internal/journal"
	"github.com/dgnsrekt/meetcloser/internal/monitor"
	"github.com/dgnsrekt/meetcloser/internal/netutil"
	"github.com/dgnsrekt/meetcloser/internal/notify"
	"github.com/dgnsrekt/meetcloser/internal/relay"
	"github.com/dgnsrekt/meetcloser/internal/settings"
	"github.com/dgnsrekt/meetcloser/internal/tabstate"
	"github.com/dgnsrekt/meetcloser/internal/types"
)

const eventBuffer = 256

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("meetcloser config loaded",
		"cdp_url", cfg.CDPURL(),
		"bind_addr", cfg.BindAddr,
		"port_candidates", cfg.PortCandidates,
		"state_file", cfg.StateFile,
		"journal_dir", cfg.JournalDir,
		"sweep_interval", cfg.SweepInterval.String(),
		"profile_dir", cfg.ProfileDir,
		"launch_browser", cfg.LaunchBrowser,
		"admit_rules", cfg.AdmitRulesPath,
		"log_level", cfg.LogLevel,
	)

	if err := run(cfg); err != nil {
		slog.Error("meetcloser exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.LaunchBrowser {
		launcher := browser.NewLauncher(browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			StartURL:   cfg.StartURL,
			ProfileDir: cfg.ProfileDir,
		})
		if err := launcher.Launch(ctx); err != nil {
			return err
		}
		defer launcher.Stop()
	}

	kv, err := settings.NewFileKV(cfg.StateFile)
	if err != nil {
		return err
	}
	mgr := settings.NewManager(kv)
	if err := mgr.Load(); err != nil {
		return err
	}

	journalWriter, err := journal.Open(cfg.JournalDir, cfg.JournalMaxSizeMB)
	if err != nil {
		return err
	}
	defer func() {
		if err := journalWriter.Close(); err != nil {
			slog.Debug("journal close failed", "error", err)
		}
	}()

	broker := relay.NewBroker()
	sinks := []monitor.ClosureSink{journalWriter, relay.Sink{Broker: broker}}
	if cfg.NtfyURL != "" {
		notifier := notify.New(cfg.NtfyURL, nil)
		defer notifier.Wait()
		sinks = append(sinks, notifier)
	}

	cdpClient := cdpcontrol.NewClient(cfg.CDPURL(), cfg.EvalTimeout)
	if err := cdpClient.Connect(ctx); err != nil {
		slog.Warn("CDP connect failed, will keep retrying", "cdp_url", cfg.CDPURL(), "error", err)
	}
	defer func() {
		if err := cdpClient.Close(); err != nil {
			slog.Debug("CDP client close failed", "error", err)
		}
	}()

	var hist history.Searcher = history.Unavailable{}
	if cfg.ProfileDir != "" {
		hist = history.NewChromiumHistory(cfg.ProfileDir)
	}

	mon := monitor.New(monitor.Deps{
		Store:         tabstate.NewStore(),
		Settings:      mgr,
		Closer:        cdpClient,
		History:       hist,
		Sinks:         sinks,
		SweepInterval: cfg.SweepInterval,
	})

	rules, err := admit.LoadRules(cfg.AdmitRulesPath)
	if err != nil {
		slog.Warn("admit rules unreadable, auto-admit off until fixed", "file", cfg.AdmitRulesPath, "error", err)
	}
	ruleStore := admit.NewRuleStore(rules)
	admitWatcher := admit.NewWatcher(cdpClient, mon, ruleStore, cfg.AdmitInterval)

	ln, err := netutil.Listen(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		return err
	}
	bindAddr := ln.Addr().String()
	svc := controller.NewService(controller.Deps{
		Settings:   mgr,
		Tabs:       mon,
		Browser:    cdpClient,
		Journal:    journalWriter,
		Admissions: admitWatcher,
		CDPURL:     cfg.CDPURL(),
	})
	srv := &http.Server{
		Handler:           api.NewServer(svc, broker),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	events := make(chan types.TabEvent, eventBuffer)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("meetcloser listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("meetcloser shutdown failed", "error", err)
		}
		return nil
	})
	g.Go(func() error { return mon.Run(gctx, cdpClient, events) })
	g.Go(func() error { return cdpClient.Watch(gctx, events) })
	g.Go(func() error { return admitWatcher.Run(gctx) })
	g.Go(func() error {
		if err := admit.WatchRules(gctx, cfg.AdmitRulesPath, ruleStore, 0); err != nil {
			slog.Warn("admit rules hot reload disabled", "error", err)
		}
		return nil
	})

	err = g.Wait()
	slog.Info("meetcloser stopped", "closed_count", mgr.ClosedCount())
	return err
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
