// Package ledger commits escalated observations to an external append-only
// ledger and hands back receipts.
//
// The Reporter is the only component that talks to a Service. It derives the
// content-addressed fingerprint of an observation, submits the canonical
// payload once, and converts every failure into a *CommitError. It never
// retries: retry policy belongs to the caller.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrDuplicate is returned by a Service when an entry with the same
	// fingerprint was already appended.
	ErrDuplicate = errors.New("duplicate fingerprint")
	// ErrUnavailable is returned when the ledger service cannot be reached.
	ErrUnavailable = errors.New("ledger unavailable")
	// ErrRejected is returned when the ledger service refuses the payload.
	ErrRejected = errors.New("ledger rejected payload")
	// ErrNotFound is returned when a ledger entry is not found.
	ErrNotFound = errors.New("not found")
)

// Entry is one append-only record submitted to the ledger.
type Entry struct {
	Fingerprint string          `json:"fingerprint"`
	Payload     json.RawMessage `json:"payload"` // canonical observation (RFC 8785)
	Reporter    string          `json:"reporter"`
	Network     string          `json:"network"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// Record is an entry as stored by a Service, with its external reference.
type Record struct {
	Entry
	Reference   string    `json:"reference"`
	CommittedAt time.Time `json:"committed_at"`
}

// Service is the external append-only store.
type Service interface {
	// Submit appends the entry and returns its external reference.
	Submit(ctx context.Context, e Entry) (string, error)
}

// Reader is implemented by services that can look entries back up.
type Reader interface {
	Get(ctx context.Context, fingerprint string) (Record, error)
	List(ctx context.Context) ([]Record, error)
}
