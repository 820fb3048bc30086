package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/meetcloser/internal/admit"
	"github.com/dgnsrekt/meetcloser/internal/journal"
	"github.com/dgnsrekt/meetcloser/internal/relay"
	"github.com/dgnsrekt/meetcloser/internal/tabstate"
)

func registerMiscHandlers(api huma.API, svc Service, broker *relay.Broker) {
	type healthOutput struct {
		Body struct {
			Status        string `json:"status"`
			EventClients  int    `json:"event_clients"`
			EventsDropped int64  `json:"events_dropped" doc:"Closure events not delivered to slow stream clients"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			if broker != nil {
				out.Body.EventClients = broker.ClientCount()
				out.Body.EventsDropped = broker.Dropped()
			}
			return out, nil
		})

	type browserOutput struct {
		Body BrowserStatus
	}
	huma.Register(api, huma.Operation{OperationID: "browser-status", Method: http.MethodGet, Path: "/api/v1/browser", Summary: "Check the CDP connection", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*browserOutput, error) {
			status, err := svc.BrowserStatus(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &browserOutput{Body: status}, nil
		})

	type tabsOutput struct {
		Body struct {
			Tabs []tabstate.MonitoredTab `json:"tabs"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-monitored-tabs", Method: http.MethodGet, Path: "/api/v1/tabs", Summary: "List monitored meeting tabs", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct{}) (*tabsOutput, error) {
			tabs, err := svc.MonitoredTabs(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &tabsOutput{}
			out.Body.Tabs = tabs
			if out.Body.Tabs == nil {
				out.Body.Tabs = []tabstate.MonitoredTab{}
			}
			return out, nil
		})

	type closuresInput struct {
		Limit int `query:"limit" default:"50" minimum:"1" maximum:"1000" doc:"Most recent closures to return"`
	}
	type closuresOutput struct {
		Body struct {
			Closures []journal.Record `json:"closures"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-closures", Method: http.MethodGet, Path: "/api/v1/closures", Summary: "List recent tab closures from the journal", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *closuresInput) (*closuresOutput, error) {
			records, err := svc.RecentClosures(ctx, input.Limit)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &closuresOutput{}
			out.Body.Closures = records
			if out.Body.Closures == nil {
				out.Body.Closures = []journal.Record{}
			}
			return out, nil
		})

	type admissionsOutput struct {
		Body struct {
			Admissions []admit.Admission `json:"admissions"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-admissions", Method: http.MethodGet, Path: "/api/v1/admissions", Summary: "List participants the admit watcher let in", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct{}) (*admissionsOutput, error) {
			admitted, err := svc.RecentAdmissions(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &admissionsOutput{}
			out.Body.Admissions = admitted
			if out.Body.Admissions == nil {
				out.Body.Admissions = []admit.Admission{}
			}
			return out, nil
		})
}
