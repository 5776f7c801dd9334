package sentinelone

import (
	"context"
	"encoding/json"
	"errors"
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

func newTestSentinelOne(t *testing.T, handler http.HandlerFunc) *SentinelOne {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(
		config.SentinelOneProfile{URL: server.URL, APIToken: "s1-token"},
		transport.Shared{Doer: server.Client(), Logger: logs.Discard()},
	)
}

func run(t *testing.T, s *SentinelOne, id string, args domain.Args) (any, error) {
	t.Helper()
	for _, a := range s.Actions() {
		if a.ID == id {
			return a.Run(context.Background(), args)
		}
	}
	t.Fatalf("action %s not found", id)
	return nil, nil
}

func TestReadActionsReturnData(t *testing.T) {
	s := newTestSentinelOne(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ApiToken s1-token", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/web/api/v2.1/agents":
			w.Write([]byte(`{"data":[{"id":"1"}],"pagination":{}}`))
		case "/web/api/v2.1/hashes/abc/reputation":
			w.Write([]byte(`{"data":{"rank":"7"}}`))
		default:
			w.Write([]byte(`{"errors":[{"code":4000010}]}`))
		}
	})

	result, err := run(t, s, "list_agents", nil)
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"id": "1"}}, result)

	result, err = run(t, s, "hash_reputation", domain.Args{"hashcode": "abc"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"rank": "7"}, result)

	result, err = run(t, s, "get_system_info", nil)
	require.NoError(t, err)
	assert.True(t, domain.IsSoftError(result))
}

func TestAgentActionSplitsIDs(t *testing.T) {
	s := newTestSentinelOne(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/web/api/v2.1/agents/actions/disconnect", r.URL.Path)
		var body struct {
			Filter struct {
				IDs []string `json:"ids"`
			} `json:"filter"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"11", "22"}, body.Filter.IDs)
		w.Write([]byte(`{"data":{"affected":2}}`))
	})

	result, err := run(t, s, "disconnect_from_network", domain.Args{"agents_id": "11, 22"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"affected": float64(2)}, result)
}

func TestAgentActionRaisesVendorErrors(t *testing.T) {
	s := newTestSentinelOne(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":[{"detail":"agent offline"}]}`))
	})

	_, err := run(t, s, "initiate_scan", domain.Args{"agents_id": "1"})
	var reported *domain.ReportedError
	require.True(t, errors.As(err, &reported))
	assert.Equal(t, vendor, reported.Vendor)
}

func TestValidateConnection(t *testing.T) {
	valid := newTestSentinelOne(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/web/api/v2.1/users/login/by-api-token", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		var body map[string]map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "s1-token", body["data"]["apiToken"])
		w.Write([]byte(`{"data":{"token":"x"}}`))
	})
	require.NoError(t, valid.ValidateConnection(context.Background()))

	invalid := newTestSentinelOne(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	err := invalid.ValidateConnection(context.Background())
	assert.ErrorContains(t, err, "authentication failed")

	empty := New(config.SentinelOneProfile{}, transport.Shared{Logger: logs.Discard()})
	assert.Error(t, empty.ValidateConnection(context.Background()))
}
