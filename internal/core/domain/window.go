package domain

import (
	"context"
	"time"
)

// ExecutionWindow is the [start, end] range the host assigns to one
// execution, in epoch milliseconds.
type ExecutionWindow struct {
	StartMs int64 `json:"start_ms"`
	EndMs   int64 `json:"end_ms"`
}

type windowKey struct{}

func WithExecutionWindow(ctx context.Context, w ExecutionWindow) context.Context {
	return context.WithValue(ctx, windowKey{}, w)
}

// ExecutionWindowFrom returns the window carried by ctx. When the host did not
// supply one, the last 24 hours are used.
func ExecutionWindowFrom(ctx context.Context) ExecutionWindow {
	if w, ok := ctx.Value(windowKey{}).(ExecutionWindow); ok && w.EndMs > 0 {
		return w
	}
	now := time.Now()
	return ExecutionWindow{
		StartMs: now.Add(-24 * time.Hour).UnixMilli(),
		EndMs:   now.UnixMilli(),
	}
}
