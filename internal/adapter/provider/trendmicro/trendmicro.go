package trendmicro

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/hive-corporation/soarbridge/internal/adapter/transport"
	"github.com/hive-corporation/soarbridge/internal/config"
	"github.com/hive-corporation/soarbridge/internal/core/domain"
)

const vendor = "TrendMicro Cloud App Security"

// Regions lists the documented service endpoints.
var Regions = []string{
	"https://api.tmcas.trendmicro.com",
	"https://api-eu.tmcas.trendmicro.com",
	"https://api.tmcas.trendmicro.co.jp",
	"https://api-au.tmcas.trendmicro.com",
	"https://api.tmcas.trendmicro.co.uk",
	"https://api-ca.tmcas.trendmicro.com",
	"https://api.tmcas.trendmicro.com.sg",
	"https://api-in.tmcas.trendmicro.com",
}

type TrendMicro struct {
	service         string
	serviceProvider string
	client          *transport.Client
}

func New(profile config.TrendMicroProfile, shared transport.Shared) *TrendMicro {
	t := &TrendMicro{
		service:         profile.Service,
		serviceProvider: profile.ServiceProvider,
		client: shared.Client(transport.Config{
			Vendor:  vendor,
			BaseURL: profile.URL,
			Auth:    transport.Bearer(profile.APIToken),
			Accept:  []int{http.StatusOK, http.StatusCreated},
		}),
	}
	if t.service == "" {
		t.service = "exchange"
	}
	if t.serviceProvider == "" {
		t.serviceProvider = "office365"
	}
	return t
}

func (t *TrendMicro) Name() string {
	return "TrendMicro Cloud Application Security"
}

func (t *TrendMicro) Description() string {
	return "Retrieves logs, sweeps mailboxes and mitigates threats through the Cloud App Security API."
}

func (t *TrendMicro) Actions() []domain.Action {
	queryString := domain.Param{
		Name:        "query_string",
		Description: "Query string, e.g. service=exchange&event=securityrisk&limit=10, or the next_link of a previous call",
		Type:        domain.Text,
	}

	return []domain.Action{
		{
			ID:          "get_logs",
			Name:        "Get Security Logs",
			Description: "Retrieves security event logs of the protected services",
			Params:      []domain.Param{queryString},
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				return t.query(ctx, "/v1/siem/security_events", args)
			},
		},
		{
			ID:          "sweep_emails",
			Name:        "Sweep for Email Messages",
			Description: "Searches protected mailboxes for messages matching the criteria",
			Params:      []domain.Param{queryString},
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				return t.query(ctx, "/v1/sweeping/mails", args)
			},
		},
		{
			ID:          "get_block_list",
			Name:        "Get Blocked Lists",
			Description: "Retrieves the blocked senders, URLs and file hashes",
			Run: func(ctx context.Context, _ domain.Args) (any, error) {
				return t.call(ctx, transport.Request{Method: http.MethodGet, Path: "/v1/remediation/mails"})
			},
		},
		{
			ID:          "update_block_list",
			Name:        "Update Blocked Lists",
			Description: "Adds entries to or removes them from the blocked lists",
			Params: []domain.Param{
				{Name: "rule_string", Description: `Rule, e.g. "urls": ["https://test.example.com"]; keys are senders, urls, filehashes, file256hashes`, Type: domain.Text},
				{Name: "action_type", Type: domain.Select, Options: []string{"create", "delete"}, Default: "create"},
			},
			Run: t.updateBlockList,
		},
		{
			ID:          "email_action",
			Name:        "Take Actions on Email Messages",
			Description: "Deletes or quarantines an email message",
			Params: []domain.Param{
				{Name: "mailbox", Description: "Mailbox of the message", Type: domain.Text},
				{Name: "mail_message_id", Description: "Internet message ID", Type: domain.Text},
				{Name: "mail_unique_id", Description: "Unique ID of the message", Type: domain.Text},
				{Name: "mail_message_delivery_time", Description: "Delivery time of the message", Type: domain.Text},
				{Name: "action_type", Type: domain.Select, Options: []string{"MAIL_DELETE", "MAIL_QUARANTINE"}, Default: "MAIL_DELETE"},
			},
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				return t.call(ctx, transport.Request{
					Method: http.MethodPost,
					Path:   "/v1/mitigation/mails",
					JSON: []map[string]string{{
						"action_type":                args.String("action_type"),
						"service":                    t.service,
						"account_provider":           t.serviceProvider,
						"mailbox":                    args.String("mailbox"),
						"mail_message_id":            args.String("mail_message_id"),
						"mail_unique_id":             args.String("mail_unique_id"),
						"mail_message_delivery_time": args.String("mail_message_delivery_time"),
					}},
				})
			},
		},
		{
			ID:          "user_action",
			Name:        "Take Actions on User Accounts",
			Description: "Disables, resets or otherwise mitigates a user account",
			Params: []domain.Param{
				{Name: "mailbox", Description: "Email address of the account", Type: domain.Text},
				{
					Name:    "action_type",
					Type:    domain.Select,
					Options: []string{"ACCOUNT_DISABLE", "ACCOUNT_ENABLE_MFA", "ACCOUNT_RESET_PASSWORD", "ACCOUNT_REVOKE_SIGNIN_SESSIONS"},
					Default: "ACCOUNT_RESET_PASSWORD",
				},
			},
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				return t.call(ctx, transport.Request{
					Method: http.MethodPost,
					Path:   "/v1/mitigation/accounts",
					JSON: []map[string]string{{
						"action_type":        args.String("action_type"),
						"service":            t.service,
						"account_provider":   t.serviceProvider,
						"account_user_email": args.String("mailbox"),
					}},
				})
			},
		},
		{
			ID:          "query_action",
			Name:        "Query Action Results",
			Description: "Queries the results of previous mitigation actions",
			Params: []domain.Param{
				{Name: "batch_id", Description: "Batch ID returned by the mitigation action", Type: domain.Text},
				{Name: "query_type", Type: domain.Select, Options: []string{"accounts", "mails"}, Default: "mails"},
			},
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				return t.call(ctx, transport.Request{
					Method: http.MethodGet,
					Path:   "/v1/mitigation/" + args.String("query_type"),
					Query:  url.Values{"batch_id": {args.String("batch_id")}},
				})
			},
		},
		{
			ID:          "test",
			Name:        "Test Connectivity",
			Description: "Retrieves a few SIEM events",
			Run: func(ctx context.Context, _ domain.Args) (any, error) {
				return t.call(ctx, transport.Request{
					Method: http.MethodGet,
					Path:   "/v1/siem/security_events",
					Query:  url.Values{"service": {"exchange"}, "event": {"securityrisk"}, "limit": {"5"}},
				})
			},
		},
	}
}

// query accepts either a bare query string or a full next_link URL.
func (t *TrendMicro) query(ctx context.Context, path string, args domain.Args) (any, error) {
	raw := args.String("query_string")
	if u, err := url.Parse(raw); err == nil && u.IsAbs() {
		raw = u.RawQuery
	}
	query, err := url.ParseQuery(raw)
	if err != nil {
		return nil, domain.BadArgument("query_string", "is not a valid query string: %v", err)
	}
	return t.call(ctx, transport.Request{Method: http.MethodGet, Path: path, Query: query})
}

func (t *TrendMicro) updateBlockList(ctx context.Context, args domain.Args) (any, error) {
	rule, err := parseRule(args.String("rule_string"))
	if err != nil {
		return nil, err
	}
	return t.call(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   "/v1/remediation/mails",
		JSON: map[string]any{
			"action_type": args.String("action_type"),
			"rule":        rule,
		},
	})
}

// parseRule accepts a JSON object or just its members, as in
// "urls": ["https://test.example.com"].
func parseRule(s string) (map[string]any, error) {
	if !strings.HasPrefix(s, "{") {
		s = "{" + s + "}"
	}
	var rule map[string]any
	if err := json.Unmarshal([]byte(s), &rule); err != nil {
		return nil, domain.BadArgument("rule_string", "must be a JSON object or object members: %v", err)
	}
	if len(rule) == 0 {
		return nil, domain.BadArgument("rule_string", "is empty")
	}
	return rule, nil
}

func (t *TrendMicro) call(ctx context.Context, req transport.Request) (any, error) {
	resp, err := t.client.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	body := resp.Object()
	if errs, ok := domain.ReportedErrors(body); ok {
		return domain.VendorErrors(errs), nil
	}
	return domain.Result(body), nil
}
