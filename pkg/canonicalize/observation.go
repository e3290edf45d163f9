package canonicalize

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/Mindburn-Labs/sentinel/pkg/contracts"
)

// NormalizeObservation returns the form of obs that is hashed for its
// fingerprint. Strings are NFC-normalized and trimmed, the category is
// lower-cased, and the detection time is expressed in UTC.
func NormalizeObservation(obs contracts.Observation) contracts.Observation {
	return contracts.Observation{
		ZoneID:      normString(obs.ZoneID),
		Category:    strings.ToLower(normString(obs.Category)),
		Name:        normString(obs.Name),
		Confidence:  obs.Confidence,
		Description: normString(obs.Description),
		Coordinates: obs.Coordinates,
		EvidenceRef: normString(obs.EvidenceRef),
		DetectedAt:  obs.DetectedAt.UTC().Round(time.Microsecond),
	}
}

// CanonicalObservation returns the RFC 8785 encoding of the normalized observation.
func CanonicalObservation(obs contracts.Observation) ([]byte, error) {
	return JCS(NormalizeObservation(obs))
}

// Fingerprint is the content address of an observation: the SHA-256 of its
// canonical encoding. Identical observations always share a fingerprint,
// independent of field order or Unicode composition.
func Fingerprint(obs contracts.Observation) (string, error) {
	b, err := CanonicalObservation(obs)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

func normString(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
