// Package reasoning turns an observation into a single merged Decision by
// consulting a primary and a fallback backend.
package reasoning

import (
	"context"
	"fmt"

	"github.com/Mindburn-Labs/sentinel/pkg/contracts"
)

// Backend produces a judgment about one observation. Implementations must
// honour ctx cancellation; the coordinator abandons calls that outlive their
// timeout either way.
//
// The Source field of the returned judgment is overwritten by the
// coordinator with the role the backend was configured for.
type Backend interface {
	Name() string
	Evaluate(ctx context.Context, obs contracts.Observation, net contracts.NetworkState) (contracts.Judgment, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc struct {
	ID string
	Fn func(ctx context.Context, obs contracts.Observation, net contracts.NetworkState) (contracts.Judgment, error)
}

func (b BackendFunc) Name() string { return b.ID }

func (b BackendFunc) Evaluate(ctx context.Context, obs contracts.Observation, net contracts.NetworkState) (contracts.Judgment, error) {
	return b.Fn(ctx, obs, net)
}

// BackendError reports a failed backend call.
type BackendError struct {
	Backend string
	Op      string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("reasoning: backend %s: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }
