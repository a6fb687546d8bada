// Package saga drives a fixed, ordered sequence of forward/compensating
// step pairs against a per-run state. A forward failure at any point rolls
// the store back by invoking the compensating actions of every completed
// step in reverse order, so a failed run leaves the store as if the run
// never happened.
package saga

import (
	"context"

	"github.com/draftline-labs/draftline-go/internal/domain"
)

// ForwardFunc performs a step's persisted side effect and records the
// produced entity identifier in the run state. It is invoked at most once
// per run and is never retried by the coordinator.
type ForwardFunc func(ctx context.Context, state *domain.RunState) error

// CompensateFunc reverses exactly the persisted effect of the matching
// forward action, keyed off the identifiers recorded in the run state.
// It must tolerate repeated calls: absent rows are a successful no-op.
type CompensateFunc func(ctx context.Context, state *domain.RunState) error

// Step pairs a forward action with its compensating action. Steps are
// immutable configuration, defined once per workflow type and shared
// read-only across all runs.
type Step struct {
	Name       string
	Forward    ForwardFunc
	Compensate CompensateFunc
}
