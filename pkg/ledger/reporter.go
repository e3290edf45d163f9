package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/sentinel/pkg/canonicalize"
	"github.com/Mindburn-Labs/sentinel/pkg/contracts"
)

// Reporter turns observations into ledger commits.
type Reporter struct {
	service  Service
	reporter string
	network  string
	clock    func() time.Time
	logger   *slog.Logger
}

// NewReporter creates a reporter submitting to service. reporter and network
// are recorded on every entry.
func NewReporter(service Service, reporter, network string) *Reporter {
	return &Reporter{
		service:  service,
		reporter: reporter,
		network:  network,
		clock:    time.Now,
		logger:   slog.Default().With("component", "ledger"),
	}
}

// WithClock overrides the clock for deterministic testing.
func (r *Reporter) WithClock(clock func() time.Time) *Reporter {
	r.clock = clock
	return r
}

// WithLogger sets the logger.
func (r *Reporter) WithLogger(l *slog.Logger) *Reporter {
	r.logger = l.With("component", "ledger")
	return r
}

// Fingerprint returns the content address the reporter would commit obs under.
func (r *Reporter) Fingerprint(obs contracts.Observation) (string, error) {
	return canonicalize.Fingerprint(obs)
}

// Commit submits obs to the ledger exactly once. It does not retry; any
// failure is returned as a *CommitError.
func (r *Reporter) Commit(ctx context.Context, obs contracts.Observation) (contracts.Receipt, error) {
	payload, err := canonicalize.CanonicalObservation(obs)
	if err != nil {
		return contracts.Receipt{}, &CommitError{Err: err}
	}
	fp := canonicalize.HashBytes(payload)

	if r.service == nil {
		return contracts.Receipt{}, &CommitError{Fingerprint: fp, Err: errors.Join(ErrUnavailable, errors.New("no ledger service configured"))}
	}

	entry := Entry{
		Fingerprint: fp,
		Payload:     payload,
		Reporter:    r.reporter,
		Network:     r.network,
		SubmittedAt: r.clock(),
	}

	ref, err := r.service.Submit(ctx, entry)
	if err != nil {
		r.logger.WarnContext(ctx, "ledger submit failed",
			"fingerprint", shortFingerprint(fp),
			"zone", obs.ZoneID,
			"error", err,
		)
		return contracts.Receipt{}, &CommitError{Fingerprint: fp, Err: err}
	}

	receipt := contracts.Receipt{
		ReceiptID:         uuid.NewString(),
		Fingerprint:       fp,
		ExternalReference: ref,
		CommittedAt:       r.clock(),
	}
	r.logger.InfoContext(ctx, "incident committed",
		"fingerprint", shortFingerprint(fp),
		"reference", ref,
		"zone", obs.ZoneID,
		"network", r.network,
	)
	return receipt, nil
}
