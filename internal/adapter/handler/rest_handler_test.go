package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hive-corporation/soarbridge/internal/adapter/transport"
	"github.com/hive-corporation/soarbridge/internal/core/catalog"
	"github.com/hive-corporation/soarbridge/internal/core/domain"
	"github.com/hive-corporation/soarbridge/internal/core/ports"
	"github.com/hive-corporation/soarbridge/internal/logs"
)

type stubIntegration struct {
	name    string
	actions []domain.Action
}

func (s *stubIntegration) Name() string             { return s.name }
func (s *stubIntegration) Description() string      { return "stub " + s.name }
func (s *stubIntegration) Actions() []domain.Action { return s.actions }

type validatingStub struct {
	*stubIntegration
	err error
}

func (v *validatingStub) ValidateConnection(context.Context) error { return v.err }

func newRouter(t *testing.T) (*mux.Router, *domain.ExecutionWindow) {
	t.Helper()
	seen := &domain.ExecutionWindow{}

	actions := []domain.Action{
		{
			ID:     "echo",
			Name:   "Echo",
			Params: []domain.Param{{Name: "value", Type: domain.Text}, {Name: "filter", Type: domain.JSON, Optional: true}},
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				*seen = domain.ExecutionWindowFrom(ctx)
				return domain.Result{"value": args.String("value"), "filter": args.Raw("filter")}, nil
			},
		},
		{
			ID: "soft",
			Run: func(context.Context, domain.Args) (any, error) {
				return domain.ErrorResult("not found"), nil
			},
		},
		{
			ID: "vendor",
			Run: func(context.Context, domain.Args) (any, error) {
				return nil, &transport.StatusError{Vendor: "Stub", StatusCode: 500, Reason: "Internal Server Error"}
			},
		},
		{
			ID: "open",
			Run: func(context.Context, domain.Args) (any, error) {
				return nil, transport.ErrCircuitOpen
			},
		},
		{
			ID: "slow",
			Run: func(ctx context.Context, _ domain.Args) (any, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
		},
	}

	c := catalog.New([]ports.Integration{
		&stubIntegration{name: "Stub", actions: actions},
		&validatingStub{stubIntegration: &stubIntegration{name: "Checked"}},
		&validatingStub{stubIntegration: &stubIntegration{name: "Broken"}, err: errors.New("authentication failed")},
	}, catalog.WithLogger(logs.Discard()), catalog.WithTimeout(50*time.Millisecond))

	router := mux.NewRouter()
	NewRestHandler(c, logs.Discard()).Register(router)
	return router, seen
}

func do(t *testing.T, router http.Handler, method, path, body string, header map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func TestHealth(t *testing.T) {
	router, _ := newRouter(t)
	rec, body := do(t, router, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "soarbridge-api", body["service"])
	assert.EqualValues(t, 3, body["integrations"])
}

func TestListAndDescribeIntegrations(t *testing.T) {
	router, _ := newRouter(t)

	rec, body := do(t, router, http.MethodGet, "/api/v1/integrations", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, body["count"])
	first := body["integrations"].([]any)[0].(map[string]any)
	assert.Equal(t, "Broken", first["name"])
	assert.Equal(t, true, first["validatable"])

	rec, body = do(t, router, http.MethodGet, "/api/v1/integrations/stub", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Stub", body["name"])
	assert.Equal(t, false, body["validatable"])
	assert.Len(t, body["actions"], 5)

	rec, _ = do(t, router, http.MethodGet, "/api/v1/integrations/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInvokeAction(t *testing.T) {
	router, seen := newRouter(t)

	rec, body := do(t, router, http.MethodPost, "/api/v1/integrations/stub/actions/echo",
		`{"value":" hi ","filter":{"src":"10.0.0.1"},"ignored":null}`,
		map[string]string{HeaderExecutionStart: "1000", HeaderExecutionEnd: "2000"})
	require.Equal(t, http.StatusOK, rec.Code, body)
	assert.Equal(t, false, body["has_error"])
	result := body["result"].(map[string]any)
	assert.Equal(t, "hi", result["value"])
	assert.JSONEq(t, `{"src":"10.0.0.1"}`, result["filter"].(string))
	assert.Equal(t, domain.ExecutionWindow{StartMs: 1000, EndMs: 2000}, *seen)
}

func TestInvokeActionSoftError(t *testing.T) {
	router, _ := newRouter(t)
	rec, body := do(t, router, http.MethodPost, "/api/v1/integrations/stub/actions/soft", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["has_error"])
	assert.Equal(t, "not found", body["result"].(map[string]any)["error_msg"])
}

func TestInvokeActionErrorStatus(t *testing.T) {
	router, _ := newRouter(t)

	tests := []struct {
		path string
		body string
		want int
	}{
		{"/api/v1/integrations/stub/actions/echo", `{}`, http.StatusBadRequest},
		{"/api/v1/integrations/stub/actions/echo", `not json`, http.StatusBadRequest},
		{"/api/v1/integrations/stub/actions/echo", `{"value":"x","filter":"{\"src\":"}`, http.StatusBadRequest},
		{"/api/v1/integrations/stub/actions/missing", `{}`, http.StatusNotFound},
		{"/api/v1/integrations/other/actions/echo", `{}`, http.StatusNotFound},
		{"/api/v1/integrations/stub/actions/vendor", `{}`, http.StatusBadGateway},
		{"/api/v1/integrations/stub/actions/open", `{}`, http.StatusBadGateway},
		{"/api/v1/integrations/stub/actions/slow", `{}`, http.StatusGatewayTimeout},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			rec, body := do(t, router, http.MethodPost, tc.path, tc.body, nil)
			assert.Equal(t, tc.want, rec.Code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestValidateIntegration(t *testing.T) {
	router, _ := newRouter(t)

	rec, body := do(t, router, http.MethodPost, "/api/v1/integrations/checked/validate", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["valid"])

	rec, _ = do(t, router, http.MethodPost, "/api/v1/integrations/stub/validate", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, body = do(t, router, http.MethodPost, "/api/v1/integrations/broken/validate", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Broken: authentication failed", body["error"])
}

func TestValidateAll(t *testing.T) {
	router, _ := newRouter(t)

	rec, body := do(t, router, http.MethodPost, "/api/v1/integrations/validate", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["failed"])
	results := body["results"].(map[string]any)
	assert.Equal(t, map[string]any{"valid": true}, results["Checked"])
	assert.Equal(t, map[string]any{"valid": false, "error": "Broken: authentication failed"}, results["Broken"])
}

func TestWriteJSONSurvivesEncodingFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]any{"bad": make(chan int)})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
}
