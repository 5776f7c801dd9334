package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/hive-corporation/soarbridge/internal/adapter/transport"
	"github.com/hive-corporation/soarbridge/internal/config"
	"github.com/hive-corporation/soarbridge/internal/core/catalog"
	"github.com/hive-corporation/soarbridge/internal/core/domain"
	"github.com/hive-corporation/soarbridge/internal/core/ports"
)

// Headers the host uses to pass the execution window of a run.
const (
	HeaderExecutionStart = "X-Execution-Start-Ms"
	HeaderExecutionEnd   = "X-Execution-End-Ms"
)

const maxBodyBytes = 10 << 20

type RestHandler struct {
	catalog *catalog.Catalog
	logger  *slog.Logger
}

func NewRestHandler(c *catalog.Catalog, logger *slog.Logger) *RestHandler {
	return &RestHandler{catalog: c, logger: logger}
}

// Register mounts every route on router.
func (h *RestHandler) Register(router *mux.Router) {
	router.HandleFunc("/api/v1/health", h.Health).Methods("GET")

	router.HandleFunc("/api/v1/integrations", h.ListIntegrations).Methods("GET")
	router.HandleFunc("/api/v1/integrations/validate", h.ValidateAll).Methods("POST")
	router.HandleFunc("/api/v1/integrations/{integration}", h.DescribeIntegration).Methods("GET")
	router.HandleFunc("/api/v1/integrations/{integration}/validate", h.ValidateIntegration).Methods("POST")
	router.HandleFunc("/api/v1/integrations/{integration}/actions/{action}", h.InvokeAction).Methods("POST")
}

type integrationView struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Validatable bool            `json:"validatable"`
	Actions     []domain.Action `json:"actions"`
}

func describe(in ports.Integration) integrationView {
	_, validatable := in.(ports.ConnectionValidator)
	return integrationView{
		Name:        in.Name(),
		Description: in.Description(),
		Validatable: validatable,
		Actions:     in.Actions(),
	}
}

// Health check endpoint
func (h *RestHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":       "healthy",
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"service":      "soarbridge-api",
		"integrations": len(h.catalog.Integrations()),
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *RestHandler) ListIntegrations(w http.ResponseWriter, r *http.Request) {
	integrations := h.catalog.Integrations()
	views := make([]integrationView, 0, len(integrations))
	for _, in := range integrations {
		views = append(views, describe(in))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"integrations": views,
		"count":        len(views),
	})
}

func (h *RestHandler) DescribeIntegration(w http.ResponseWriter, r *http.Request) {
	in, err := h.catalog.Integration(mux.Vars(r)["integration"])
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, describe(in))
}

func (h *RestHandler) ValidateIntegration(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["integration"]
	if err := h.catalog.Validate(r.Context(), name); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"integration": name,
		"valid":       true,
	})
}

// ValidateAll checks every validatable integration. The response is 200
// even when some vendors fail; each entry carries its own outcome.
func (h *RestHandler) ValidateAll(w http.ResponseWriter, r *http.Request) {
	results := h.catalog.ValidateAll(r.Context())

	type outcome struct {
		Valid bool   `json:"valid"`
		Error string `json:"error,omitempty"`
	}
	out := make(map[string]outcome, len(results))
	failed := 0
	for name, err := range results {
		if err != nil {
			failed++
			out[name] = outcome{Error: err.Error()}
			continue
		}
		out[name] = outcome{Valid: true}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": out,
		"failed":  failed,
	})
}

// InvokeAction runs one action. The body is a JSON object of arguments;
// non-string values are passed on as their JSON text.
func (h *RestHandler) InvokeAction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	args, err := decodeArgs(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	if window, ok := config.ParseExecutionWindow(r.Header.Get(HeaderExecutionStart), r.Header.Get(HeaderExecutionEnd)); ok {
		ctx = domain.WithExecutionWindow(ctx, window)
	}

	result, err := h.catalog.Invoke(ctx, vars["integration"], vars["action"], args)
	if err != nil {
		h.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"integration": vars["integration"],
		"action":      vars["action"],
		"has_error":   catalog.HasSoftError(result),
		"result":      result,
	})
}

func decodeArgs(body io.Reader) (domain.Args, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.Args{}, nil
		}
		return nil, fmt.Errorf("invalid request body: %v", err)
	}

	args := make(domain.Args, len(raw))
	for name, value := range raw {
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			args[name] = s
			continue
		}
		if string(value) == "null" {
			continue
		}
		args[name] = string(value)
	}
	return args, nil
}

// fail maps an invocation error onto an HTTP status.
func (h *RestHandler) fail(w http.ResponseWriter, err error) {
	var (
		argErr    *domain.ArgumentError
		statusErr *transport.StatusError
		reported  *domain.ReportedError
		status    int
	)
	switch {
	case errors.As(err, &argErr):
		status = http.StatusBadRequest
	case errors.Is(err, catalog.ErrUnknownIntegration), errors.Is(err, catalog.ErrUnknownAction):
		status = http.StatusNotFound
	case errors.Is(err, catalog.ErrNotValidatable):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.As(err, &statusErr), errors.As(err, &reported), errors.Is(err, transport.ErrCircuitOpen):
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("❌ request failed", "status", status, "error", err)
	}
	writeError(w, status, err.Error())
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Error encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
