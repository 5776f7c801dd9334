package misp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hive-corporation/soarbridge/internal/adapter/transport"
	"github.com/hive-corporation/soarbridge/internal/config"
	"github.com/hive-corporation/soarbridge/internal/core/domain"
)

const vendor = "MISP"

var categories = []string{
	"Internal reference", "Targeting data", "Antivirus detection", "Payload delivery",
	"Artifacts dropped", "Payload installation", "Persistence mechanism", "Network activity",
	"Payload type", "Attribution", "External analysis", "Financial fraud", "Support Tool",
	"Social network", "Person", "Other",
}

type MISP struct {
	profile config.MISPProfile
	client  *transport.Client
	now     func() time.Time
}

func New(profile config.MISPProfile, shared transport.Shared) *MISP {
	return &MISP{
		profile: profile,
		client: shared.Client(transport.Config{
			Vendor:  vendor,
			BaseURL: profile.URL,
			Auth:    transport.Header("Authorization", profile.APIToken),
			Accept:  []int{http.StatusOK, http.StatusCreated},
		}),
		now: time.Now,
	}
}

func (m *MISP) Name() string {
	return "MISP"
}

func (m *MISP) Description() string {
	return "Searches, creates and publishes MISP events. Covers a subset of the MISP API."
}

// ValidateConnection runs a search that matches nothing, only to check the
// API key.
func (m *MISP) ValidateConnection(ctx context.Context) error {
	if m.profile.URL == "" || m.profile.APIToken == "" {
		return fmt.Errorf("%s url and api_token must be defined", vendor)
	}
	_, err := m.client.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   "/events/index",
		JSON:   map[string]any{"limit": 1, "minimal": true, "searchDatefrom": "2029-01-23"},
	})
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	return nil
}

func (m *MISP) Actions() []domain.Action {
	eventID := domain.Param{Name: "event_id", Description: "Event ID, e.g. 3223", Type: domain.Text}
	minimal := domain.Param{
		Name:        "minimal",
		Description: "Fetch minimal data",
		Type:        domain.Select,
		Options:     []string{"True", "False"},
		Default:     "True",
		Optional:    true,
	}
	threatLevel := domain.Param{
		Name:        "threat_level",
		Description: "1 high, 2 medium, 3 low, 4 undefined",
		Type:        domain.Select,
		Options:     []string{"1", "2", "3", "4"},
		Optional:    true,
	}

	return []domain.Action{
		{
			ID:          "recent_event",
			Name:        "Last X Events",
			Description: "Retrieves the X most recent events",
			Params: []domain.Param{
				{Name: "x", Description: "Number of events", Type: domain.Text},
				minimal,
			},
			Run: m.recentEvents,
		},
		{
			ID:          "event_search",
			Name:        "Search Events",
			Description: "Searches events with filters",
			Params: []domain.Param{
				{Name: "value", Description: "Value to search for, e.g. an IP or a hash", Type: domain.Text, Optional: true},
				{Name: "value_type", Description: "Attribute type, e.g. md5, url, ip-src", Type: domain.Text, Optional: true},
				{Name: "last", Description: "Published in the last period, e.g. 1d, 12h, 30m", Type: domain.Text, Default: "1d"},
				{Name: "org", Description: "Organisation name", Type: domain.Text, Optional: true},
				{Name: "event_id", Description: "Event ID", Type: domain.Text, Optional: true},
				{Name: "tags", Description: "Comma separated tags, e.g. tlp:amber,Type:OSINT", Type: domain.Text, Optional: true},
				{Name: "published", Type: domain.Select, Options: []string{"True", "False"}, Default: "True", Optional: true},
				{Name: "category", Type: domain.Select, Options: categories, Optional: true},
				threatLevel,
			},
			Run: m.searchEvents,
		},
		{
			ID:          "get_event",
			Name:        "Get Event Detail",
			Description: "Retrieves one event",
			Params:      []domain.Param{eventID},
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				return m.call(ctx, transport.Request{Method: http.MethodGet, Path: "/events/view/" + url.PathEscape(args.String("event_id"))})
			},
		},
		{
			ID:          "add_event",
			Name:        "Add Event",
			Description: "Creates an event",
			Params: []domain.Param{
				{Name: "org_id", Description: "Organisation ID, 10 characters or less", Type: domain.Text},
				{Name: "uuid", Description: "Event UUID, 36 characters or less", Type: domain.Text},
				{Name: "info", Description: "Event description", Type: domain.Text},
				{Name: "event_creator_email", Description: "Creator email", Type: domain.Text, Optional: true},
				{Name: "threat_level", Description: "1 high, 2 medium, 3 low, 4 undefined", Type: domain.Select, Options: []string{"1", "2", "3", "4"}, Default: "4"},
				{Name: "distribution", Description: "0 organisation, 1 community, 2 connected, 3 all, 4 sharing group, 5 inherit", Type: domain.Select, Options: []string{"0", "1", "2", "3", "4", "5"}, Default: "0"},
				{Name: "analysis", Description: "0 initial, 1 ongoing, 2 complete", Type: domain.Select, Options: []string{"0", "1", "2"}, Default: "0"},
			},
			Run: m.addEvent,
		},
		{
			ID:          "publish_event",
			Name:        "Publish Event",
			Description: "Publishes an event",
			Params:      []domain.Param{eventID},
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				return m.call(ctx, transport.Request{Method: http.MethodPost, Path: "/events/publish/" + url.PathEscape(args.String("event_id"))})
			},
		},
		{
			ID:          "unpublish_event",
			Name:        "Unpublish Event",
			Description: "Unpublishes an event",
			Params:      []domain.Param{eventID},
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				return m.call(ctx, transport.Request{Method: http.MethodPost, Path: "/events/unpublish/" + url.PathEscape(args.String("event_id"))})
			},
		},
		{
			ID:          "delete_event",
			Name:        "Delete Event",
			Description: "Deletes an event",
			Params:      []domain.Param{eventID},
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				return m.call(ctx, transport.Request{Method: http.MethodDelete, Path: "/events/delete/" + url.PathEscape(args.String("event_id"))})
			},
		},
		{
			ID:          "all_events",
			Name:        "All Events",
			Description: "Retrieves every event. The answer can be large.",
			Params:      []domain.Param{minimal},
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				return m.index(ctx, args)
			},
		},
	}
}

func (m *MISP) recentEvents(ctx context.Context, args domain.Args) (any, error) {
	x, err := strconv.Atoi(args.String("x"))
	if err != nil {
		return domain.Result{"has_error": true, "message": "X is not a number"}, nil
	}
	result, err := m.index(ctx, args)
	if err != nil {
		return nil, err
	}
	events, ok := result.([]any)
	if !ok {
		return result, nil
	}
	if x < 0 {
		x = 0
	}
	if x < len(events) {
		events = events[:x]
	}
	return events, nil
}

func (m *MISP) index(ctx context.Context, args domain.Args) (any, error) {
	minimal, err := args.Bool("minimal", true)
	if err != nil {
		return nil, err
	}
	return m.call(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   "/events/index",
		JSON: map[string]any{
			"sort":      "timestamp",
			"direction": "desc",
			"minimal":   minimal,
		},
	})
}

func (m *MISP) searchEvents(ctx context.Context, args domain.Args) (any, error) {
	req := map[string]any{
		"page":         0,
		"limit":        1,
		"returnFormat": "json",
		"last":         args.String("last"),
	}
	if req["last"] == "" {
		req["last"] = "1d"
	}
	optional := map[string]string{
		"value":        "value",
		"value_type":   "type",
		"org":          "org",
		"event_id":     "eventid",
		"published":    "published",
		"category":     "category",
		"threat_level": "threat_level_id",
	}
	for arg, field := range optional {
		if v := args.String(arg); v != "" {
			req[field] = v
		}
	}
	if tags := args.List("tags"); len(tags) > 0 {
		req["tags"] = tags
	}

	return m.call(ctx, transport.Request{Method: http.MethodPost, Path: "/events/restSearch", JSON: req})
}

func (m *MISP) addEvent(ctx context.Context, args domain.Args) (any, error) {
	orgID := args.String("org_id")
	if len(orgID) > 10 {
		return nil, domain.BadArgument("org_id", "must be 10 characters or less")
	}
	uuid := args.String("uuid")
	if len(uuid) > 36 {
		return nil, domain.BadArgument("uuid", "must be 36 characters or less")
	}

	req := map[string]any{
		"date":            m.now().Format("2006-01-02"),
		"org_id":          orgID,
		"orgc_id":         orgID,
		"uuid":            uuid,
		"info":            args.Raw("info"),
		"threat_level_id": defaultString(args.String("threat_level"), "4"),
		"distribution":    defaultString(args.String("distribution"), "0"),
		"analysis":        defaultString(args.String("analysis"), "0"),
	}
	if email := args.String("event_creator_email"); email != "" {
		req["event_creator_email"] = email
	}

	return m.call(ctx, transport.Request{Method: http.MethodPost, Path: "/events/add", JSON: req})
}

// call turns rejected statuses into soft errors so that a failed MISP call
// is never mistaken for an empty success.
func (m *MISP) call(ctx context.Context, req transport.Request) (any, error) {
	resp, err := m.client.Do(ctx, req)
	var se *transport.StatusError
	if errors.As(err, &se) {
		result := domain.ErrorResult(se.Error())
		result["status"] = se.StatusCode
		if body := strings.TrimSpace(resp.Text()); body != "" {
			result["response"] = body
		}
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	if v := resp.JSON(); v != nil {
		return v, nil
	}
	return domain.Result{}, nil
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
