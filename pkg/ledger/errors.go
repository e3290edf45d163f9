package ledger

import (
	"errors"
	"fmt"
)

// CommitError reports a failed commit of one observation. It wraps the
// service error, so errors.Is(err, ErrDuplicate) and friends keep working.
type CommitError struct {
	Fingerprint string
	Err         error
}

func (e *CommitError) Error() string {
	if e.Fingerprint == "" {
		return fmt.Sprintf("ledger: commit failed: %v", e.Err)
	}
	return fmt.Sprintf("ledger: commit %s failed: %v", shortFingerprint(e.Fingerprint), e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

// IsDuplicate reports whether err is a commit rejected for an already
// committed fingerprint.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
