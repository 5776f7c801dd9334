package twinwave

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hive-corporation/soarbridge/internal/adapter/transport"
	"github.com/hive-corporation/soarbridge/internal/config"
	"github.com/hive-corporation/soarbridge/internal/core/domain"
)

const (
	vendor       = "Twinwave"
	jobDone      = "done"
	apiKeyHeader = "X-API-KEY"
)

var errJobPending = errors.New("job is not done yet")

type Twinwave struct {
	profile      config.TwinwaveProfile
	filesDir     string
	pollInterval time.Duration
	client       *transport.Client
}

func New(profile config.TwinwaveProfile, filesDir string, shared transport.Shared) *Twinwave {
	return &Twinwave{
		profile:      profile,
		filesDir:     filesDir,
		pollInterval: profile.GetPollInterval(),
		client: shared.Client(transport.Config{
			Vendor:  vendor,
			BaseURL: profile.GetURL(),
			Auth:    transport.Header(apiKeyHeader, profile.APIToken),
			Accept:  []int{http.StatusOK, http.StatusCreated},
		}),
	}
}

func (t *Twinwave) Name() string {
	return "Twinwave"
}

func (t *Twinwave) Description() string {
	return "Submits URLs and files to Twinwave and retrieves job results and forensics."
}

func (t *Twinwave) ValidateConnection(ctx context.Context) error {
	if t.profile.APIToken == "" {
		return fmt.Errorf("%s api_token must be defined", vendor)
	}
	if _, err := t.client.Do(ctx, transport.Request{Method: http.MethodGet, Path: "/engines"}); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	return nil
}

func (t *Twinwave) Actions() []domain.Action {
	jobID := domain.Param{Name: "job_id", Description: "Job ID from a previous step", Type: domain.Text}
	priority := domain.Param{Name: "priority", Description: "Priority relative to other jobs, 0-255", Type: domain.Int, Default: "10"}
	profile := domain.Param{Name: "profile", Description: "Analysis profile, the default profile when empty", Type: domain.Text, Optional: true}

	return []domain.Action{
		{
			ID:          "recent_jobs",
			Name:        "Recent Jobs",
			Description: "Retrieves the most recent jobs",
			Params: []domain.Param{
				{Name: "count", Description: "Number of jobs", Type: domain.Int, Default: "10"},
				{Name: "username", Description: "Filter by username", Type: domain.Text, Optional: true},
				{Name: "source", Description: "Filter by source, e.g. ui or api", Type: domain.Text, Optional: true},
				{Name: "state", Description: "Filter by state, e.g. pending, done, error, inprogress", Type: domain.Text, Optional: true},
			},
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				return t.get(ctx, "/jobs/recent", queryOf(args, map[string]string{
					"count": "count", "username": "username", "source": "source", "state": "state",
				}))
			},
		},
		{
			ID:          "wait_for_job_completion",
			Name:        "Wait for Job Completion",
			Description: "Polls the job until it is done",
			Params:      []domain.Param{jobID},
			Run:         t.waitForJob,
		},
		{
			ID:          "job_summary",
			Name:        "Job Summary",
			Description: "Returns the job details",
			Params:      []domain.Param{jobID},
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				return t.get(ctx, "/jobs/"+url.PathEscape(args.String("job_id")), nil)
			},
		},
		{
			ID:          "get_job_normalized_forensics",
			Name:        "Get Job Normalized Forensics",
			Description: "Returns the forensics of the job",
			Params:      []domain.Param{jobID},
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				return t.get(ctx, "/jobs/"+url.PathEscape(args.String("job_id"))+"/forensics", nil)
			},
		},
		{
			ID:          "get_task_normalized_forensics",
			Name:        "Get Task Normalized Forensics",
			Description: "Returns the forensics of one task of the job",
			Params: []domain.Param{
				jobID,
				{Name: "task_id", Description: "Task ID from a previous step", Type: domain.Text},
			},
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				body, err := t.get(ctx, "/jobs/"+url.PathEscape(args.String("job_id"))+"/tasks/"+url.PathEscape(args.String("task_id"))+"/forensics", nil)
				if err != nil {
					return nil, err
				}
				if m, ok := body.(map[string]any); ok {
					if errs, reported := domain.ReportedErrors(m); reported {
						return domain.VendorErrors(errs), nil
					}
				}
				return body, nil
			},
		},
		{
			ID:          "submit_url",
			Name:        "Submit URL",
			Description: "Submits a URL for analysis",
			Params: []domain.Param{
				{Name: "scan_url", Description: "URL to analyse", Type: domain.Text},
				priority,
				profile,
			},
			Run: t.submitURL,
		},
		{
			ID:          "submit_file",
			Name:        "Submit File",
			Description: "Submits a file of the shared files directory for analysis",
			Params: []domain.Param{
				{Name: "file_id", Description: "File ID from a previous step", Type: domain.Text},
				{Name: "file_name", Description: "Name the file is submitted under", Type: domain.Text},
				priority,
				profile,
			},
			Run: t.submitFile,
		},
		{
			ID:          "search",
			Name:        "Search Jobs and Resources",
			Description: "Searches jobs and resources",
			Params: []domain.Param{
				{Name: "term", Description: "Term to search for, e.g. .exe", Type: domain.Text, Optional: true},
				{Name: "field", Type: domain.Select, Options: []string{"filename", "url", "tag", "sha256", "md5"}, Optional: true},
				{Name: "count", Description: "Maximum number of results, at most 100", Type: domain.Int, Optional: true},
				{Name: "shared_only", Description: "Only search shared jobs", Type: domain.Bool, Optional: true},
				{Name: "submitted_by", Description: "Username or part of it", Type: domain.Text, Optional: true},
				{Name: "timeframe", Description: "Days back to search, 0 for no limit", Type: domain.Int, Optional: true},
				{Name: "page", Description: "Result page, starting at 1", Type: domain.Int, Optional: true},
				{Name: "search_type", Type: domain.Select, Options: []string{"exact", "substring"}, Optional: true},
			},
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				return t.get(ctx, "/jobs/search", queryOf(args, map[string]string{
					"term":         "term",
					"field":        "field",
					"count":        "count",
					"shared_only":  "shared_only",
					"submitted_by": "submitted_by",
					"timeframe":    "timeframe",
					"page":         "page",
					"search_type":  "type",
				}))
			},
		},
	}
}

// waitForJob polls at a constant interval until the job state is done. It
// has no attempt limit; ctx is the only bound.
func (t *Twinwave) waitForJob(ctx context.Context, args domain.Args) (any, error) {
	path := "/jobs/" + url.PathEscape(args.String("job_id"))

	var job map[string]any
	poll := func() error {
		resp, err := t.client.Do(ctx, transport.Request{Method: http.MethodGet, Path: path})
		if err != nil {
			return backoff.Permanent(err)
		}
		body := resp.Object()
		if state, _ := body["State"].(string); state == jobDone {
			job = body
			return nil
		}
		return errJobPending
	}

	policy := backoff.WithContext(backoff.NewConstantBackOff(t.pollInterval), ctx)
	if err := backoff.Retry(poll, policy); err != nil {
		return nil, err
	}
	return job, nil
}

func (t *Twinwave) submitURL(ctx context.Context, args domain.Args) (any, error) {
	req := map[string]any{
		"url":     args.String("scan_url"),
		"engines": []string{},
	}
	if args.String("priority") != "" {
		priority, err := args.Int("priority")
		if err != nil {
			return nil, err
		}
		req["priority"] = priority
	}
	if v := args.String("profile"); v != "" {
		req["profile"] = v
	}
	resp, err := t.client.Do(ctx, transport.Request{Method: http.MethodPost, Path: "/jobs/urls", JSON: req})
	if err != nil {
		return nil, err
	}
	return decoded(resp), nil
}

func (t *Twinwave) submitFile(ctx context.Context, args domain.Args) (any, error) {
	fileID := filepath.Base(args.String("file_id"))
	f, err := os.Open(filepath.Join(t.filesDir, fileID))
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", fileID, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := map[string]string{
		"filename": args.String("file_name"),
		"priority": args.String("priority"),
		"profile":  args.String("profile"),
	}
	for name, value := range fields {
		if value == "" {
			continue
		}
		if err := mw.WriteField(name, value); err != nil {
			return nil, err
		}
	}
	part, err := mw.CreateFormFile("filedata", args.String("file_name"))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", fileID, err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	resp, err := t.client.Do(ctx, transport.Request{
		Method:      http.MethodPost,
		Path:        "/jobs/files",
		Body:        buf.Bytes(),
		ContentType: mw.FormDataContentType(),
	})
	if err != nil {
		return nil, err
	}
	return decoded(resp), nil
}

func (t *Twinwave) get(ctx context.Context, path string, query url.Values) (any, error) {
	resp, err := t.client.Do(ctx, transport.Request{Method: http.MethodGet, Path: path, Query: query})
	if err != nil {
		return nil, err
	}
	return decoded(resp), nil
}

func decoded(resp *transport.Response) any {
	if v := resp.JSON(); v != nil {
		return v
	}
	return domain.Result{}
}

// queryOf copies the non-empty args into query parameters.
func queryOf(args domain.Args, names map[string]string) url.Values {
	q := url.Values{}
	for arg, param := range names {
		if v := args.String(arg); v != "" {
			q.Set(param, v)
		}
	}
	return q
}
