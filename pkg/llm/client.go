// Package llm is a minimal chat client for OpenAI-compatible endpoints.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmptyResponse is returned when the endpoint answers without any choice.
var ErrEmptyResponse = errors.New("llm: empty choices in response")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client sends a conversation and returns the assistant reply.
type Client interface {
	Chat(ctx context.Context, messages []Message, options *SamplingOptions) (*Response, error)
}

type SamplingOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	Seed        int64   `json:"seed"`
	// JSONMode asks the endpoint for a JSON object reply when it supports it.
	JSONMode bool `json:"-"`
}

type Response struct {
	Content string `json:"content"`
	Model   string `json:"model,omitempty"`
}

// StatusError carries a non-200 status from the endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("llm: endpoint returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("llm: endpoint returned status %d: %s", e.StatusCode, e.Body)
}
