package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hive-corporation/soarbridge/internal/core/domain"
	"github.com/hive-corporation/soarbridge/internal/core/ports"
	"github.com/hive-corporation/soarbridge/internal/metrics"
)

var (
	ErrUnknownIntegration = errors.New("unknown integration")
	ErrUnknownAction      = errors.New("unknown action")
	ErrNotValidatable     = errors.New("integration has no connection validator")
)

// Catalog is the registry the host talks to: it resolves integrations and
// their actions by name and runs them.
type Catalog struct {
	integrations map[string]ports.Integration
	timeout      time.Duration
	logger       *slog.Logger
}

type Option func(*Catalog)

// WithTimeout bounds every invocation. Zero leaves the caller's context as is.
func WithTimeout(d time.Duration) Option {
	return func(c *Catalog) { c.timeout = d }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Catalog) { c.logger = logger }
}

func New(integrations []ports.Integration, opts ...Option) *Catalog {
	c := &Catalog{
		integrations: make(map[string]ports.Integration, len(integrations)),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	for _, in := range integrations {
		c.integrations[key(in.Name())] = in
	}
	return c
}

// Integrations returns every registered integration sorted by name.
func (c *Catalog) Integrations() []ports.Integration {
	out := make([]ports.Integration, 0, len(c.integrations))
	for _, in := range c.integrations {
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

func (c *Catalog) Integration(name string) (ports.Integration, error) {
	in, ok := c.integrations[key(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIntegration, name)
	}
	return in, nil
}

// Action resolves an action by ID or display name, case-insensitively.
func (c *Catalog) Action(integration, action string) (ports.Integration, domain.Action, error) {
	in, err := c.Integration(integration)
	if err != nil {
		return nil, domain.Action{}, err
	}
	want := key(action)
	for _, a := range in.Actions() {
		if key(a.ID) == want || key(a.Name) == want {
			return in, a, nil
		}
	}
	return nil, domain.Action{}, fmt.Errorf("%w: %s/%s", ErrUnknownAction, in.Name(), action)
}

// Invoke binds args against the action's declared params and runs it.
func (c *Catalog) Invoke(ctx context.Context, integration, action string, args domain.Args) (any, error) {
	in, act, err := c.Action(integration, action)
	if err != nil {
		return nil, err
	}

	bound, err := act.Bind(args)
	if err != nil {
		metrics.RecordAction(in.Name(), act.ID, "error", 0)
		return nil, err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	timer := metrics.StartTimer()
	result, err := act.Run(ctx, bound)
	elapsed := timer.Elapsed()

	outcome := "success"
	switch {
	case err != nil:
		outcome = "error"
	case HasSoftError(result):
		outcome = "soft_error"
	}
	metrics.RecordAction(in.Name(), act.ID, outcome, elapsed)

	attrs := []any{
		"integration", in.Name(),
		"action", act.ID,
		"outcome", outcome,
		"duration", elapsed,
	}
	if err != nil {
		c.logger.Error("action failed", append(attrs, "error", err)...)
		return nil, fmt.Errorf("%s/%s: %w", in.Name(), act.ID, err)
	}
	c.logger.Info("action completed", attrs...)
	return result, nil
}

// Validate runs the integration's connection validator.
func (c *Catalog) Validate(ctx context.Context, integration string) error {
	in, err := c.Integration(integration)
	if err != nil {
		return err
	}
	v, ok := in.(ports.ConnectionValidator)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotValidatable, in.Name())
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if err := v.ValidateConnection(ctx); err != nil {
		c.logger.Warn("connection validation failed", "integration", in.Name(), "error", err)
		return fmt.Errorf("%s: %w", in.Name(), err)
	}
	return nil
}

// ValidateAll checks every integration that has a connection validator
// concurrently and returns the outcome keyed by integration name. A nil
// value means the vendor accepted the configured credentials.
func (c *Catalog) ValidateAll(ctx context.Context) map[string]error {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]error)
	)
	for _, in := range c.integrations {
		if _, ok := in.(ports.ConnectionValidator); !ok {
			continue
		}
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			err := c.Validate(ctx, name)
			mu.Lock()
			results[name] = err
			mu.Unlock()
		}(in.Name())
	}
	wg.Wait()
	return results
}

// HasSoftError reports a has_error result. It also looks at sequences,
// where a single flagged item marks the whole invocation.
func HasSoftError(v any) bool {
	if items, ok := v.([]any); ok {
		for _, item := range items {
			if domain.IsSoftError(item) {
				return true
			}
		}
		return false
	}
	return domain.IsSoftError(v)
}

func key(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
