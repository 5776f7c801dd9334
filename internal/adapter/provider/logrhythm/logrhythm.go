package logrhythm

import (
	"context"
	"net/http"
	"net/url"

	"github.com/hive-corporation/soarbridge/internal/adapter/transport"
	"github.com/hive-corporation/soarbridge/internal/config"
	"github.com/hive-corporation/soarbridge/internal/core/domain"
)

const vendor = "LogRhythm"

type LogRhythm struct {
	client *transport.Client
}

func New(profile config.LogRhythmProfile, shared transport.Shared) *LogRhythm {
	return &LogRhythm{
		client: shared.Client(transport.Config{
			Vendor:  vendor,
			BaseURL: profile.URL,
			Auth:    transport.Bearer(profile.APIToken),
		}),
	}
}

func (l *LogRhythm) Name() string {
	return "LogRhythm REST"
}

func (l *LogRhythm) Description() string {
	return "Interacts with LogRhythm alarms, hosts and threat intelligence through the LogRhythm REST API."
}

func (l *LogRhythm) Actions() []domain.Action {
	alarmID := domain.Param{Name: "alarm_id", Description: "Alarm ID", Type: domain.Text}

	return []domain.Action{
		{
			ID:          "query_alarms",
			Name:        "Query Alarms",
			Description: "Returns every alarm matching the query string",
			Params: []domain.Param{
				{Name: "query_string", Description: "Query string of the alarm search, e.g. alarmStatus=New&count=10", Type: domain.Text},
			},
			Run: l.queryAlarms,
		},
		{
			ID:          "get_alarm",
			Name:        "Get Alarm Detail",
			Description: "Returns the alarm detail",
			Params:      []domain.Param{alarmID},
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				return l.call(ctx, http.MethodGet, "/lr-alarm-api/alarms/"+url.PathEscape(args.String("alarm_id")), nil)
			},
		},
		{
			ID:          "update_status",
			Name:        "Update Alarm Status",
			Description: "Sets the alarm status",
			Params: []domain.Param{
				alarmID,
				{
					Name:        "alarm_status",
					Description: "New, Opened, Working, Escalated, Closed, Closed_FalseAlarm, Closed_Resolved, Closed_Unresolved, Closed_Reported, Closed_Monitor, or 0 to 9",
					Type:        domain.Text,
				},
			},
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				return l.call(ctx, http.MethodPatch, "/lr-alarm-api/alarms/"+url.PathEscape(args.String("alarm_id")),
					map[string]string{"AlarmStatus": args.String("alarm_status")})
			},
		},
		{
			ID:          "update_rbp",
			Name:        "Update Alarm RBP",
			Description: "Sets the risk based priority of the alarm",
			Params: []domain.Param{
				alarmID,
				{Name: "rbp", Description: "Risk based priority score", Type: domain.Text},
			},
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				return l.call(ctx, http.MethodPatch, "/lr-alarm-api/alarms/"+url.PathEscape(args.String("alarm_id")),
					map[string]string{"rBP": args.String("rbp")})
			},
		},
		{
			ID:          "add_comment",
			Name:        "Add Alarm Comment",
			Description: "Adds a comment to the alarm",
			Params: []domain.Param{
				alarmID,
				{Name: "comment", Description: "Comment text", Type: domain.Text},
			},
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				return l.call(ctx, http.MethodPost, "/lr-alarm-api/alarms/"+url.PathEscape(args.String("alarm_id"))+"/comment",
					map[string]string{"alarmComment": args.Raw("comment")})
			},
		},
		{
			ID:          "get_alarm_events",
			Name:        "Get Alarm Events",
			Description: "Returns the events of the alarm",
			Params:      []domain.Param{alarmID},
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				return l.call(ctx, http.MethodGet, "/lr-alarm-api/alarms/"+url.PathEscape(args.String("alarm_id"))+"/events", nil)
			},
		},
		{
			ID:          "get_intel",
			Name:        "Get Threat Intelligence",
			Description: "Returns the intelligence known about an IOC",
			Params: []domain.Param{
				{Name: "ioc", Description: "IOC value", Type: domain.Text},
			},
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				return l.call(ctx, http.MethodPost, "/Observables/actions/search", map[string]string{"value": args.String("ioc")})
			},
		},
		{
			ID:          "test",
			Name:        "Test Connectivity",
			Description: "Retrieves a host to check the connection",
			Params: []domain.Param{
				{Name: "host_id", Description: "Host ID, for example 1", Type: domain.Text},
			},
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				return l.call(ctx, http.MethodGet, "/lr-admin-api/hosts/"+url.PathEscape(args.String("host_id")), nil)
			},
		},
	}
}

func (l *LogRhythm) queryAlarms(ctx context.Context, args domain.Args) (any, error) {
	query, err := url.ParseQuery(args.String("query_string"))
	if err != nil {
		return nil, domain.BadArgument("query_string", "is not a valid query string: %v", err)
	}
	resp, err := l.client.Do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   "/lr-alarm-api/alarms",
		Query:  query,
	})
	if err != nil {
		return nil, err
	}
	return domain.Envelope(resp.Object(), "data"), nil
}

func (l *LogRhythm) call(ctx context.Context, method, path string, body any) (any, error) {
	req := transport.Request{Method: method, Path: path}
	if body != nil {
		req.JSON = body
	}
	resp, err := l.client.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	return domain.Envelope(resp.Object(), "data"), nil
}
