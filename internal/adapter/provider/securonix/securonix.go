package securonix

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/itchyny/gojq"

	"github.com/hive-corporation/soarbridge/internal/adapter/credential"
	"github.com/hive-corporation/soarbridge/internal/adapter/transport"
	"github.com/hive-corporation/soarbridge/internal/config"
	"github.com/hive-corporation/soarbridge/internal/core/domain"
)

const vendor = "Securonix"

var (
	incidentItems = mustParse(".result.data.incidentItems")
	responseDocs  = mustParse(".Response.Docs")

	incidentActions = []string{
		"Mark as concern and create incident",
		"Non-Concern",
		"Mark in progress (still investigating)",
	}
)

type Securonix struct {
	profile config.SecuronixProfile
	tokens  *credential.TokenCache
	auth    *transport.Client
	api     *transport.Client
}

func New(profile config.SecuronixProfile, shared transport.Shared) *Securonix {
	s := &Securonix{
		profile: profile,
		auth: shared.Client(transport.Config{
			Vendor:         vendor,
			BaseURL:        profile.URL,
			DefaultHeaders: map[string]string{},
		}),
	}
	s.tokens = credential.NewTokenCache(vendor, profile.GetTokenTTL(), s.generateToken,
		credential.WithValidator(s.validateToken))
	s.api = shared.Client(transport.Config{
		Vendor:  vendor,
		BaseURL: profile.URL,
		Auth:    transport.TokenHeader("token", s.tokens),
	})
	return s
}

func (s *Securonix) Name() string {
	return "Securonix REST"
}

func (s *Securonix) Description() string {
	return "Works with Securonix SNYPR incidents, violations and threat widgets through the Securonix REST API."
}

func (s *Securonix) Actions() []domain.Action {
	incID := domain.Param{Name: "inc_id", Description: "Incident ID", Type: domain.Text}
	incAction := domain.Param{
		Name:        "action",
		Description: "Action to take",
		Type:        domain.Select,
		Options:     incidentActions,
		Default:     "Non-Concern",
	}
	topParams := []domain.Param{
		{Name: "days", Description: "Last X days", Type: domain.Int},
		{Name: "max", Description: "Max records to return", Type: domain.Int},
	}

	return []domain.Action{
		{
			ID:          "list_incidents",
			Name:        "List Incidents",
			Description: "Lists the incidents of the execution window based on the range type",
			Params: []domain.Param{
				{Name: "query", Description: "Additional query parameters, e.g. status=Open", Type: domain.Text, Optional: true},
				{Name: "range_type", Description: "Range type", Type: domain.Select, Options: []string{"updated", "opened", "closed"}, Default: "updated"},
			},
			Run: s.listIncidents,
		},
		{
			ID:          "add_inc_comment",
			Name:        "Add Comment to Incident",
			Description: "Adds a comment to the incident",
			Params: []domain.Param{
				incID,
				{Name: "comment", Description: "Comment appended to the incident", Type: domain.Text},
			},
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				return s.incidentAction(ctx, url.Values{
					"incidentId": {args.String("inc_id")},
					"actionName": {"comment"},
					"comment":    {args.Raw("comment")},
				})
			},
		},
		{
			ID:          "take_inc_action",
			Name:        "Take Action on an Incident",
			Description: "Applies a workflow action to the incident",
			Params:      []domain.Param{incID, incAction},
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				return s.incidentAction(ctx, url.Values{
					"incidentId": {args.String("inc_id")},
					"actionName": {args.String("action")},
				})
			},
		},
		{
			ID:          "take_violation_action",
			Name:        "Take Action on a Violation",
			Description: "Applies a workflow action to a violation",
			Params: []domain.Param{
				{Name: "policy_name", Description: "Policy or violation name", Type: domain.Text},
				{Name: "resource_group", Description: "Resource group or datasource name", Type: domain.Text},
				{Name: "account_name", Description: "Entity or account name", Type: domain.Text},
				{Name: "resource_name", Description: "Resource name", Type: domain.Text},
				{Name: "comment", Description: "Comment appended to the violation", Type: domain.Text, Optional: true},
				incAction,
				{
					Name:        "entity_type",
					Description: "Entity type",
					Type:        domain.Select,
					Options:     []string{"Users", "Activityaccount", "RGActivityaccount", "Resources", "Activityip"},
					Default:     "Activityaccount",
				},
			},
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				return s.incidentAction(ctx, url.Values{
					"tenantname":     {s.profile.Tenant},
					"violationName":  {args.String("policy_name")},
					"datasourceName": {args.String("resource_group")},
					"entityType":     {args.String("entity_type")},
					"entityName":     {args.String("account_name")},
					"actionName":     {args.String("action")},
					"resourceName":   {args.String("resource_name")},
					"comment":        {args.Raw("comment")},
				})
			},
		},
		{
			ID:          "top_violators",
			Name:        "Top Violators",
			Description: "Retrieves the top N violators",
			Params:      topParams,
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				return s.topWidget(ctx, "getTopViolators", args)
			},
		},
		{
			ID:          "top_violations",
			Name:        "Top Violations",
			Description: "Retrieves the top N violations",
			Params:      topParams,
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				return s.topWidget(ctx, "getTopViolations", args)
			},
		},
		{
			ID:          "top_threats",
			Name:        "Top Threats",
			Description: "Retrieves the top N threats",
			Params:      topParams,
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				return s.topWidget(ctx, "getTopThreats", args)
			},
		},
	}
}

func (s *Securonix) listIncidents(ctx context.Context, args domain.Args) (any, error) {
	window := domain.ExecutionWindowFrom(ctx)

	query := url.Values{}
	if extra := args.String("query"); extra != "" {
		parsed, err := url.ParseQuery(extra)
		if err != nil {
			return nil, domain.BadArgument("query", "is not a valid query string: %v", err)
		}
		query = parsed
	}
	query.Set("type", "list")
	query.Set("from", strconv.FormatInt(window.StartMs, 10))
	query.Set("to", strconv.FormatInt(window.EndMs, 10))
	query.Set("rangeType", args.String("range_type"))

	body, err := s.request(ctx, http.MethodGet, "/ws/incident/get", query)
	if err != nil {
		return nil, err
	}
	return extract(body, "result", incidentItems)
}

func (s *Securonix) incidentAction(ctx context.Context, query url.Values) (any, error) {
	body, err := s.request(ctx, http.MethodPost, "/ws/incident/actions", query)
	if err != nil {
		return nil, err
	}
	return domain.Envelope(body, "result"), nil
}

func (s *Securonix) topWidget(ctx context.Context, widget string, args domain.Args) (any, error) {
	body, err := s.request(ctx, http.MethodGet, "/ws/sccWidget/"+widget, url.Values{
		"dateunit":      {"days"},
		"dateunitvalue": {args.String("days")},
		"offset":        {"0"},
		"max":           {args.String("max")},
	})
	if err != nil {
		return nil, err
	}
	return extract(body, "Response", responseDocs)
}

// request drops the cached token when the vendor rejects it, so the next
// call generates a new one.
func (s *Securonix) request(ctx context.Context, method, path string, query url.Values) (map[string]any, error) {
	resp, err := s.api.Do(ctx, transport.Request{Method: method, Path: path, Query: query})
	if err != nil {
		if transport.IsStatus(err, http.StatusUnauthorized) {
			s.tokens.Invalidate()
		}
		return nil, err
	}
	return resp.Object(), nil
}

func (s *Securonix) generateToken(ctx context.Context) (string, error) {
	resp, err := s.auth.Do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   "/ws/token/generate",
		Header: http.Header{
			"username": {s.profile.Username},
			"password": {s.profile.Password},
			"tenant":   {s.profile.Tenant},
			"validity": {"1"},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate %s token: %w", vendor, err)
	}
	return resp.Text(), nil
}

func (s *Securonix) validateToken(ctx context.Context, token string) (bool, error) {
	resp, err := s.auth.Raw(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   "/ws/token/validate",
		Header: http.Header{"token": {token}},
	})
	if err != nil {
		return false, err
	}
	return resp.StatusCode == http.StatusOK, nil
}

// extract returns the first value of query over body once body carries
// key, an empty result when it does not.
func extract(body map[string]any, key string, query *gojq.Query) (any, error) {
	if errs, ok := domain.ReportedErrors(body); ok {
		return domain.VendorErrors(errs), nil
	}
	if _, ok := body[key]; !ok {
		return domain.Result{}, nil
	}
	iter := query.Run(body)
	v, ok := iter.Next()
	if !ok {
		return nil, nil
	}
	if err, isErr := v.(error); isErr {
		return nil, fmt.Errorf("unexpected %s response shape: %w", vendor, err)
	}
	return v, nil
}

func mustParse(src string) *gojq.Query {
	q, err := gojq.Parse(src)
	if err != nil {
		panic(err)
	}
	return q
}
