package sentinelone

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/hive-corporation/soarbridge/internal/adapter/transport"
	"github.com/hive-corporation/soarbridge/internal/config"
	"github.com/hive-corporation/soarbridge/internal/core/domain"
)

const (
	vendor  = "Sentinel One"
	apiBase = "/web/api/v2.1"
)

type SentinelOne struct {
	profile config.SentinelOneProfile
	client  *transport.Client
	login   *transport.Client
}

func New(profile config.SentinelOneProfile, shared transport.Shared) *SentinelOne {
	return &SentinelOne{
		profile: profile,
		client: shared.Client(transport.Config{
			Vendor:  vendor,
			BaseURL: profile.URL,
			Auth:    transport.Header("Authorization", "ApiToken "+profile.APIToken),
		}),
		login: shared.Client(transport.Config{
			Vendor:  vendor,
			BaseURL: profile.URL,
		}),
	}
}

func (s *SentinelOne) Name() string {
	return "SentinelOne"
}

func (s *SentinelOne) Description() string {
	return "Queries SentinelOne management and runs network and scan actions on agents."
}

// ValidateConnection logs in with the API token.
func (s *SentinelOne) ValidateConnection(ctx context.Context) error {
	if s.profile.URL == "" || s.profile.APIToken == "" {
		return fmt.Errorf("%s url and api_token must be defined", vendor)
	}
	_, err := s.login.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   apiBase + "/users/login/by-api-token",
		JSON: map[string]any{
			"data": map[string]string{
				"apiToken": s.profile.APIToken,
				"reason":   "API Token Validation",
			},
		},
	})
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	return nil
}

func (s *SentinelOne) Actions() []domain.Action {
	agents := []domain.Param{
		{Name: "agents_id", Description: "Comma separated agent IDs", Type: domain.Text},
	}

	return []domain.Action{
		{
			ID:          "list_agents",
			Name:        "List Agents",
			Description: "Lists the agents",
			Run: func(ctx context.Context, _ domain.Args) (any, error) {
				return s.read(ctx, "/agents")
			},
		},
		{
			ID:          "get_system_status",
			Name:        "Get System Status",
			Description: "Returns the system status",
			Run: func(ctx context.Context, _ domain.Args) (any, error) {
				return s.read(ctx, "/system/status")
			},
		},
		{
			ID:          "get_system_info",
			Name:        "Get System Info",
			Description: "Returns the system info",
			Run: func(ctx context.Context, _ domain.Args) (any, error) {
				return s.read(ctx, "/system/info")
			},
		},
		{
			ID:          "hash_reputation",
			Name:        "Hash Reputation",
			Description: "Returns the reputation of a hash",
			Params: []domain.Param{
				{Name: "hashcode", Description: "Hash value", Type: domain.Text},
			},
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				return s.read(ctx, "/hashes/"+url.PathEscape(args.String("hashcode"))+"/reputation")
			},
		},
		{
			ID:          "disconnect_from_network",
			Name:        "Disconnect Endpoint from Network",
			Description: "Disconnects the endpoints from the network",
			Params:      agents,
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				return s.agentAction(ctx, "disconnect", args)
			},
		},
		{
			ID:          "connect_to_network",
			Name:        "Connect Endpoint to Network",
			Description: "Reconnects the endpoints to the network",
			Params:      agents,
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				return s.agentAction(ctx, "connect", args)
			},
		},
		{
			ID:          "initiate_scan",
			Name:        "Initiate Scan",
			Description: "Starts a scan on the agents",
			Params:      agents,
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				return s.agentAction(ctx, "initiate-scan", args)
			},
		},
		{
			ID:          "fetch_logs",
			Name:        "Fetch Agent Logs",
			Description: "Fetches the agent logs",
			Params:      agents,
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				return s.agentAction(ctx, "fetch-logs", args)
			},
		},
	}
}

func (s *SentinelOne) read(ctx context.Context, path string) (any, error) {
	resp, err := s.client.Do(ctx, transport.Request{Method: http.MethodGet, Path: apiBase + path})
	if err != nil {
		return nil, err
	}
	body := resp.Object()
	if errs, ok := domain.ReportedErrors(body); ok {
		return domain.VendorErrors(errs), nil
	}
	if data, ok := body["data"]; ok {
		return data, nil
	}
	return domain.Result{}, nil
}

// agentAction raises vendor-reported errors instead of flagging them.
func (s *SentinelOne) agentAction(ctx context.Context, action string, args domain.Args) (any, error) {
	ids := args.List("agents_id")
	if len(ids) == 0 {
		return nil, domain.BadArgument("agents_id", "is required")
	}
	resp, err := s.client.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   apiBase + "/agents/actions/" + action,
		JSON: map[string]any{
			"filter": map[string]any{"ids": ids},
		},
	})
	if err != nil {
		return nil, err
	}
	body := resp.Object()
	if errs, ok := domain.ReportedErrors(body); ok {
		return nil, &domain.ReportedError{Vendor: vendor, Errors: errs}
	}
	if data, ok := body["data"]; ok && data != nil {
		return data, nil
	}
	return domain.Result{}, nil
}
