package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/meetcloser/internal/settings"
)

type successOutput struct {
	Body struct {
		Success bool `json:"success"`
	}
}

func registerStatsHandlers(api huma.API, svc Service) {
	type countOutput struct {
		Body struct {
			Count int `json:"count" doc:"Tabs closed since the last reset"`
		}
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-closed-count",
		Method:      http.MethodGet,
		Path:        "/api/v1/closed-count",
		Summary:     "Get the number of tabs closed",
		Tags:        []string{"Stats"},
	}, func(ctx context.Context, input *struct{}) (*countOutput, error) {
		count, err := svc.ClosedCount(ctx)
		if err != nil {
			return nil, mapErr(err)
		}
		out := &countOutput{}
		out.Body.Count = count
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reset-closed-count",
		Method:      http.MethodPost,
		Path:        "/api/v1/closed-count/reset",
		Summary:     "Reset the closed tab counter to zero",
		Tags:        []string{"Stats"},
	}, func(ctx context.Context, input *struct{}) (*successOutput, error) {
		if err := svc.ResetClosedCount(ctx); err != nil {
			return nil, mapErr(err)
		}
		out := &successOutput{}
		out.Body.Success = true
		return out, nil
	})
}

func registerConfigHandlers(api huma.API, svc Service) {
	type configOutput struct {
		Body struct {
			Config settings.TimerConfig `json:"config"`
		}
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-configuration",
		Method:      http.MethodGet,
		Path:        "/api/v1/configuration",
		Summary:     "Get the closure timers",
		Tags:        []string{"Configuration"},
	}, func(ctx context.Context, input *struct{}) (*configOutput, error) {
		cfg, err := svc.Configuration(ctx)
		if err != nil {
			return nil, mapErr(err)
		}
		out := &configOutput{}
		out.Body.Config = cfg
		return out, nil
	})

	type saveInput struct {
		Body struct {
			Config settings.PartialTimerConfig `json:"config" doc:"Timers to change; omitted fields keep their current value"`
		}
	}
	huma.Register(api, huma.Operation{
		OperationID: "save-configuration",
		Method:      http.MethodPatch,
		Path:        "/api/v1/configuration",
		Summary:     "Merge timer changes into the saved configuration",
		Tags:        []string{"Configuration"},
	}, func(ctx context.Context, input *saveInput) (*successOutput, error) {
		if _, err := svc.SaveConfiguration(ctx, input.Body.Config); err != nil {
			return nil, mapErr(err)
		}
		out := &successOutput{}
		out.Body.Success = true
		return out, nil
	})
}
