package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgnsrekt/meetcloser/internal/admit"
	"github.com/dgnsrekt/meetcloser/internal/cdpcontrol"
	"github.com/dgnsrekt/meetcloser/internal/journal"
	"github.com/dgnsrekt/meetcloser/internal/relay"
	"github.com/dgnsrekt/meetcloser/internal/settings"
	"github.com/dgnsrekt/meetcloser/internal/tabstate"
)

// Service is the stats and settings surface the HTTP API exposes.
type Service interface {
	ClosedCount(ctx context.Context) (int, error)
	ResetClosedCount(ctx context.Context) error
	Configuration(ctx context.Context) (settings.TimerConfig, error)
	SaveConfiguration(ctx context.Context, partial settings.PartialTimerConfig) (settings.TimerConfig, error)
	MonitoredTabs(ctx context.Context) ([]tabstate.MonitoredTab, error)
	RecentClosures(ctx context.Context, limit int) ([]journal.Record, error)
	RecentAdmissions(ctx context.Context) ([]admit.Admission, error)
	BrowserStatus(ctx context.Context) (BrowserStatus, error)
}

// BrowserStatus reports whether the CDP endpoint answers.
type BrowserStatus struct {
	Connected     bool   `json:"connected"`
	CDPURL        string `json:"cdp_url"`
	Tabs          int    `json:"tabs"`
	DroppedEvents int64  `json:"dropped_events" doc:"Browser events the tab watcher could not queue"`
	Error         string `json:"error,omitempty"`
}

// NewServer builds the router. broker may be nil, in which case the event
// stream is not mounted.
func NewServer(svc Service, broker *relay.Broker) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("meetcloser API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	if broker != nil {
		router.Get("/api/v1/events", relay.SSEHandler(broker))
	}

	registerStatsHandlers(api, svc)
	registerConfigHandlers(api, svc)
	registerMiscHandlers(api, svc, broker)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, settings.ErrInvalidConfig) {
		return huma.Error400BadRequest(err.Error())
	}
	var coded *cdpcontrol.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case cdpcontrol.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case cdpcontrol.CodeTabNotFound:
			return huma.Error404NotFound(coded.Message)
		case cdpcontrol.CodeEvalTimeout:
			return huma.Error504GatewayTimeout(coded.Message)
		case cdpcontrol.CodeCDPUnavailable:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
