package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Mindburn-Labs/sentinel/pkg/transport"
)

// HTTPService submits entries to a remote ledger gateway:
//
//	POST {baseURL}/v1/entries  (Authorization: Bearer <HS256 JWT>)
//
// 200/201 carry {"reference": "..."}; 409 means the fingerprint already exists.
type HTTPService struct {
	baseURL string
	issuer  string
	secret  []byte
	client  *http.Client
	clock   func() time.Time
}

// NewHTTPService creates a client for the ledger gateway at baseURL. Requests
// are signed with secret when it is non-empty.
func NewHTTPService(baseURL, issuer string, secret []byte, timeout time.Duration) *HTTPService {
	return &HTTPService{
		baseURL: strings.TrimRight(baseURL, "/"),
		issuer:  issuer,
		secret:  secret,
		client:  transport.NewHTTPClient(timeout),
		clock:   time.Now,
	}
}

// WithHTTPClient replaces the underlying HTTP client (tests).
func (s *HTTPService) WithHTTPClient(c *http.Client) *HTTPService {
	s.client = c
	return s
}

type submitResponse struct {
	Reference string `json:"reference"`
	Error     string `json:"error,omitempty"`
}

func (s *HTTPService) Submit(ctx context.Context, e Entry) (string, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("ledger: marshal entry: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/entries", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ledger: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if len(s.secret) > 0 {
		token, err := s.sign(e.Fingerprint)
		if err != nil {
			return "", fmt.Errorf("ledger: sign request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", errors.Join(ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var out submitResponse
	_ = json.Unmarshal(raw, &out)

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		if out.Reference == "" {
			return "", fmt.Errorf("%w: empty reference in response", ErrRejected)
		}
		return out.Reference, nil
	case resp.StatusCode == http.StatusConflict:
		return "", ErrDuplicate
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	default:
		return "", fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, out.Error)
	}
}

// sign issues a short-lived token bound to the submitted fingerprint.
func (s *HTTPService) sign(fingerprint string) (string, error) {
	now := s.clock()
	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   fingerprint,
		Audience:  jwt.ClaimStrings{"ledger"},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		ID:        uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}
