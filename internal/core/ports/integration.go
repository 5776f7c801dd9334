package ports

import (
	"context"

	"github.com/hive-corporation/soarbridge/internal/core/domain"
)

// Integration wraps one external vendor API (or a local utility) and exposes
// its actions to the host platform.
type Integration interface {
	Name() string
	Description() string
	Actions() []domain.Action
}

// ConnectionValidator is implemented by integrations able to check their
// connection profile against the vendor before any action runs.
type ConnectionValidator interface {
	ValidateConnection(ctx context.Context) error
}
