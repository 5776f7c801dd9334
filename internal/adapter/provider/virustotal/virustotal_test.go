package virustotal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hive-corporation/soarbridge/internal/adapter/transport"
	"github.com/hive-corporation/soarbridge/internal/config"
	"github.com/hive-corporation/soarbridge/internal/core/domain"
	"github.com/hive-corporation/soarbridge/internal/logs"
)

func newTestVirusTotal(t *testing.T, handler http.HandlerFunc) *VirusTotal {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(
		config.VirusTotalProfile{URL: server.URL, APIKey: "vt-key"},
		transport.Shared{Doer: server.Client(), Logger: logs.Discard()},
	)
}

func run(t *testing.T, vt *VirusTotal, id string, args domain.Args) (any, error) {
	t.Helper()
	for _, a := range vt.Actions() {
		if a.ID == id {
			bound, err := a.Bind(args)
			require.NoError(t, err)
			return a.Run(context.Background(), bound)
		}
	}
	t.Fatalf("action %s not found", id)
	return nil, nil
}

func TestScanPostsForm(t *testing.T) {
	vt := newTestVirusTotal(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/url/scan", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "vt-key", r.PostForm.Get("apikey"))
		assert.Equal(t, "http://evil.example", r.PostForm.Get("url"))
		w.Write([]byte(`{"scan_id":"abc-123","response_code":1}`))
	})

	result, err := run(t, vt, "scan", domain.Args{"url": "http://evil.example"})
	require.NoError(t, err)
	assert.Equal(t, domain.Result{"scan_id": "abc-123"}, result)
}

func TestReportKeepsCounts(t *testing.T) {
	vt := newTestVirusTotal(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/url/report", r.URL.Path)
		assert.Equal(t, "vt-key", r.URL.Query().Get("apikey"))
		assert.Equal(t, "abc-123", r.URL.Query().Get("resource"))
		w.Write([]byte(`{"positives":3,"total":70,"scans":{}}`))
	})

	result, err := run(t, vt, "report", domain.Args{"scan_id": "abc-123"})
	require.NoError(t, err)
	assert.Equal(t, domain.Result{"positives": float64(3), "total": float64(70)}, result)
}

func TestReportStillQueued(t *testing.T) {
	vt := newTestVirusTotal(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response_code":-2,"verbose_msg":"Scan request successfully queued"}`))
	})

	_, err := run(t, vt, "report", domain.Args{"scan_id": "abc-123"})
	assert.ErrorContains(t, err, "successfully queued")
}

func TestForbiddenKey(t *testing.T) {
	vt := newTestVirusTotal(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := run(t, vt, "scan", domain.Args{"url": "http://evil.example"})
	assert.True(t, transport.IsStatus(err, http.StatusForbidden))
}
