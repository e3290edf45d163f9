// Package detection provides the observation feeds patrolled by the scheduler.
package detection

import (
	"context"
	"errors"

	"github.com/Mindburn-Labs/sentinel/pkg/contracts"
)

// ErrUnknownZone is returned when a source does not cover the polled zone.
var ErrUnknownZone = errors.New("detection: unknown zone")

// Source yields at most one observation per poll. A nil observation with a
// nil error means the zone is clear.
type Source interface {
	Poll(ctx context.Context, zoneID string) (*contracts.Observation, error)
}

// StatusReporter describes the patrol fleet.
type StatusReporter interface {
	NetworkState(ctx context.Context) (contracts.NetworkState, error)
}

// StaticStatus always reports the same fleet state.
type StaticStatus contracts.NetworkState

func (s StaticStatus) NetworkState(context.Context) (contracts.NetworkState, error) {
	return contracts.NetworkState(s), nil
}
