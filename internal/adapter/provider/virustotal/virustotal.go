package virustotal

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/hive-corporation/soarbridge/internal/adapter/transport"
	"github.com/hive-corporation/soarbridge/internal/config"
	"github.com/hive-corporation/soarbridge/internal/core/domain"
)

const vendor = "VirusTotal"

// VirusTotal submits URLs to the v2 URL scanner. The API key travels in the
// form or query, not in a header.
type VirusTotal struct {
	profile config.VirusTotalProfile
	client  *transport.Client
}

func New(profile config.VirusTotalProfile, shared transport.Shared) *VirusTotal {
	return &VirusTotal{
		profile: profile,
		client: shared.Client(transport.Config{
			Vendor:         vendor,
			BaseURL:        profile.GetURL(),
			DefaultHeaders: map[string]string{"Accept": "application/json"},
		}),
	}
}

func (v *VirusTotal) Name() string {
	return "VirusTotal"
}

func (v *VirusTotal) Description() string {
	return "Submits URLs to VirusTotal for scanning and reads back the scan report."
}

func (v *VirusTotal) Actions() []domain.Action {
	return []domain.Action{
		{
			ID:          "scan",
			Name:        "Scan",
			Description: "Submits the URL to VirusTotal for scanning",
			Params: []domain.Param{
				{Name: "url", Description: "URL to scan", Type: domain.Text},
			},
			Run: v.scan,
		},
		{
			ID:          "report",
			Name:        "Report",
			Description: "Retrieves the report of a scan by scan ID",
			Params: []domain.Param{
				{Name: "scan_id", Description: "Scan ID returned by Scan", Type: domain.Text},
			},
			Run: v.report,
		},
	}
}

func (v *VirusTotal) scan(ctx context.Context, args domain.Args) (any, error) {
	resp, err := v.client.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   "/url/scan",
		Form:   url.Values{"apikey": {v.profile.APIKey}, "url": {args.String("url")}},
	})
	if err != nil {
		return nil, err
	}
	body := resp.Object()
	scanID, ok := body["scan_id"]
	if !ok {
		return nil, missingField("scan_id", body)
	}
	return domain.Result{"scan_id": scanID}, nil
}

func (v *VirusTotal) report(ctx context.Context, args domain.Args) (any, error) {
	resp, err := v.client.Do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   "/url/report",
		Query:  url.Values{"apikey": {v.profile.APIKey}, "resource": {args.String("scan_id")}},
	})
	if err != nil {
		return nil, err
	}
	body := resp.Object()
	positives, hasPositives := body["positives"]
	total, hasTotal := body["total"]
	if !hasPositives || !hasTotal {
		return nil, missingField("positives", body)
	}
	return domain.Result{"positives": positives, "total": total}, nil
}

// missingField reports an answer without the expected field, typically a
// report that is still queued (response_code 0 or -2).
func missingField(field string, body map[string]any) error {
	if msg, ok := body["verbose_msg"].(string); ok && msg != "" {
		return fmt.Errorf("%s response has no %s: %s", vendor, field, msg)
	}
	return fmt.Errorf("%s response has no %s", vendor, field)
}
