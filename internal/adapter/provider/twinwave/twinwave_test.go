package twinwave

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hive-corporation/soarbridge/internal/adapter/transport"
	"github.com/hive-corporation/soarbridge/internal/config"
	"github.com/hive-corporation/soarbridge/internal/core/domain"
	"github.com/hive-corporation/soarbridge/internal/logs"
)

func newTestTwinwave(t *testing.T, filesDir string, handler http.HandlerFunc) *Twinwave {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(
		config.TwinwaveProfile{URL: server.URL, APIToken: "tw-key", PollInterval: "5ms"},
		filesDir,
		transport.Shared{Doer: server.Client(), Logger: logs.Discard()},
	)
}

func run(ctx context.Context, t *testing.T, tw *Twinwave, id string, args domain.Args) (any, error) {
	t.Helper()
	for _, a := range tw.Actions() {
		if a.ID == id {
			bound, err := a.Bind(args)
			require.NoError(t, err)
			return a.Run(ctx, bound)
		}
	}
	t.Fatalf("action %s not found", id)
	return nil, nil
}

func TestWaitForJobStopsExactlyWhenDone(t *testing.T) {
	states := []string{"pending", "inprogress", "inprogress", "done"}
	var polls int32
	tw := newTestTwinwave(t, "", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/jobs/job-1", r.URL.Path)
		assert.Equal(t, "tw-key", r.Header.Get("X-API-KEY"))
		n := atomic.AddInt32(&polls, 1)
		json.NewEncoder(w).Encode(map[string]any{"ID": "job-1", "State": states[n-1], "Poll": n})
	})

	result, err := run(context.Background(), t, tw, "wait_for_job_completion", domain.Args{"job_id": "job-1"})
	require.NoError(t, err)

	job := result.(map[string]any)
	assert.Equal(t, "done", job["State"])
	assert.Equal(t, float64(4), job["Poll"])
	assert.Equal(t, int32(4), atomic.LoadInt32(&polls))
}

func TestWaitForJobIsBoundByContext(t *testing.T) {
	tw := newTestTwinwave(t, "", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"State":"inprogress"}`))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := run(ctx, t, tw, "wait_for_job_completion", domain.Args{"job_id": "job-1"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForJobStopsOnTransportFailure(t *testing.T) {
	var polls int32
	tw := newTestTwinwave(t, "", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&polls, 1)
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := run(context.Background(), t, tw, "wait_for_job_completion", domain.Args{"job_id": "gone"})
	assert.True(t, transport.IsStatus(err, http.StatusNotFound))
	assert.Equal(t, int32(1), atomic.LoadInt32(&polls))
}

func TestSubmitURL(t *testing.T) {
	tw := newTestTwinwave(t, "", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/jobs/urls", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "https://evil.example", body["url"])
		assert.Equal(t, float64(10), body["priority"])
		assert.Equal(t, []any{}, body["engines"])
		assert.NotContains(t, body, "profile")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"JobID":"job-9"}`))
	})

	result, err := run(context.Background(), t, tw, "submit_url", domain.Args{"scan_url": "https://evil.example"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"JobID": "job-9"}, result)
}

func TestSubmitFileUploadsFromFilesDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc123"), []byte("MZ payload"), 0o600))

	tw := newTestTwinwave(t, dir, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/jobs/files", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "invoice.exe", r.FormValue("filename"))
		assert.Equal(t, "5", r.FormValue("priority"))

		f, header, err := r.FormFile("filedata")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "MZ payload", string(data))
		assert.Equal(t, "invoice.exe", header.Filename)
		w.Write([]byte(`{"JobID":"job-10"}`))
	})

	result, err := run(context.Background(), t, tw, "submit_file", domain.Args{
		"file_id":   "../" + "abc123",
		"file_name": "invoice.exe",
		"priority":  "5",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"JobID": "job-10"}, result)
}

func TestSearchMapsSearchType(t *testing.T) {
	tw := newTestTwinwave(t, "", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, ".exe", q.Get("term"))
		assert.Equal(t, "substring", q.Get("type"))
		assert.Empty(t, q.Get("page"))
		w.Write([]byte(`{"Jobs":[]}`))
	})

	_, err := run(context.Background(), t, tw, "search", domain.Args{"term": ".exe", "search_type": "substring"})
	require.NoError(t, err)
}

func TestValidateConnection(t *testing.T) {
	tw := newTestTwinwave(t, "", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/engines", r.URL.Path)
		w.Write([]byte(`[]`))
	})
	require.NoError(t, tw.ValidateConnection(context.Background()))

	denied := newTestTwinwave(t, "", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	assert.ErrorContains(t, denied.ValidateConnection(context.Background()), "authentication failed")
}
