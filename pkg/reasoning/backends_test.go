package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/sentinel/pkg/contracts"
	"github.com/Mindburn-Labs/sentinel/pkg/llm"
)

func TestParseJudgment(t *testing.T) {
	obs := testObservation(0.92)

	tests := []struct {
		name       string
		raw        string
		kind       contracts.JudgmentKind
		report     bool
		confidence float64
		rationale  string
	}{
		{"structured", `{"should_report": true, "confidence": 87, "reasoning": "large burn area"}`, contracts.JudgmentStructured, true, 87, "large burn area"},
		{"fraction confidence", `{"should_report": false, "confidence": 0.4}`, contracts.JudgmentStructured, false, 40, ""},
		{"one is a percentage", `{"should_report": false, "confidence": 1}`, contracts.JudgmentStructured, false, 1, ""},
		{"zero confidence", `{"should_report": false, "confidence": 0}`, contracts.JudgmentStructured, false, 0, ""},
		{"yes string", `{"should_report": "yes", "rationale": "clear evidence"}`, contracts.JudgmentStructured, true, 92, "clear evidence"},
		{"no string", `{"should_report": "No", "confidence": 55}`, contracts.JudgmentStructured, false, 55, ""},
		{"fenced", "```json\n{\"should_report\": true, \"confidence\": 70}\n```", contracts.JudgmentStructured, true, 70, ""},
		{"free text", "Yes, this should definitely be reported.", contracts.JudgmentUnstructured, true, contracts.UnstructuredConfidence, "Yes, this should definitely be reported."},
		{"missing field", `{"confidence": 80}`, contracts.JudgmentUnstructured, true, contracts.UnstructuredConfidence, `{"confidence": 80}`},
		{"out of range", `{"should_report": true, "confidence": 250}`, contracts.JudgmentUnstructured, true, contracts.UnstructuredConfidence, `{"should_report": true, "confidence": 250}`},
		{"array", `[true]`, contracts.JudgmentUnstructured, true, contracts.UnstructuredConfidence, `[true]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := ParseJudgment(tt.raw, obs, testNow)
			assert.Equal(t, tt.kind, j.Kind)
			assert.Equal(t, tt.report, j.ShouldReport)
			assert.InDelta(t, tt.confidence, j.Confidence, 1e-9)
			assert.Equal(t, tt.rationale, j.Rationale)
			assert.Equal(t, testNow, j.ProducedAt)
		})
	}
}

func chatServer(t *testing.T, content string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []llm.Message `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if assert.Len(t, req.Messages, 2) {
			assert.Contains(t, req.Messages[0].Content, "emergency response")
			assert.Contains(t, req.Messages[1].Content, `"zone_id": "Sector-1"`)
			assert.Contains(t, req.Messages[1].Content, `"network_status": "operational"`)
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		body, _ := json.Marshal(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
		})
		_, _ = w.Write(body)
	}))
}

func TestLLMBackend_Structured(t *testing.T) {
	srv := chatServer(t, `{"should_report": true, "confidence": 91, "reasoning": "active fire"}`, http.StatusOK)
	defer srv.Close()

	b := NewLLMBackend("gemini", "", llm.NewOpenAIClient(srv.URL, "k", "m", time.Second), 0).
		WithClock(func() time.Time { return testNow })
	j, err := b.Evaluate(context.Background(), testObservation(0.98), contracts.DefaultNetworkState())
	require.NoError(t, err)
	assert.Equal(t, contracts.JudgmentStructured, j.Kind)
	assert.True(t, j.ShouldReport)
	assert.Equal(t, 91.0, j.Confidence)
	assert.Equal(t, "active fire", j.Rationale)
	assert.Equal(t, "gemini", b.Name())
}

func TestLLMBackend_UnstructuredReply(t *testing.T) {
	srv := chatServer(t, "The situation looks serious.", http.StatusOK)
	defer srv.Close()

	b := NewLLMBackend("gemini", "", llm.NewOpenAIClient(srv.URL, "", "m", time.Second), 0)
	j, err := b.Evaluate(context.Background(), testObservation(0.98), contracts.DefaultNetworkState())
	require.NoError(t, err)
	assert.Equal(t, contracts.JudgmentUnstructured, j.Kind)
	assert.Equal(t, "The situation looks serious.", j.Rationale)
}

func TestLLMBackend_ChatFailure(t *testing.T) {
	srv := chatServer(t, "", http.StatusServiceUnavailable)
	defer srv.Close()

	b := NewLLMBackend("spoon", "", llm.NewOpenAIClient(srv.URL, "", "m", time.Second), 0)
	_, err := b.Evaluate(context.Background(), testObservation(0.98), contracts.DefaultNetworkState())

	var be *BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "spoon", be.Backend)
	assert.Equal(t, "chat", be.Op)

	var se *llm.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
}

func TestLLMBackend_RateLimitRespectsContext(t *testing.T) {
	calls := 0
	client := llmClientFunc(func(context.Context, []llm.Message, *llm.SamplingOptions) (*llm.Response, error) {
		calls++
		return &llm.Response{Content: `{"should_report": true}`}, nil
	})
	b := NewLLMBackend("spoon", "", client, 1)

	_, err := b.Evaluate(context.Background(), testObservation(0.9), contracts.DefaultNetworkState())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = b.Evaluate(ctx, testObservation(0.9), contracts.DefaultNetworkState())

	var be *BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "rate_limit", be.Op)
	assert.Equal(t, 1, calls)
}

func TestLLMBackend_ThroughCoordinator(t *testing.T) {
	srv := chatServer(t, `{"should_report": false, "confidence": 35}`, http.StatusOK)
	defer srv.Close()

	fallback := NewLLMBackend("gemini", "", llm.NewOpenAIClient(srv.URL, "", "m", time.Second), 0)
	c := NewCoordinator(Role{Backend: failing("spoon")}, Role{Backend: fallback, Timeout: time.Second})

	d := c.Evaluate(context.Background(), testObservation(0.98), contracts.DefaultNetworkState())
	assert.Equal(t, contracts.ModeFallbackOnly, d.Mode)
	assert.False(t, d.ShouldReport)
	assert.Equal(t, 35.0, d.Confidence)
}

type llmClientFunc func(ctx context.Context, msgs []llm.Message, opts *llm.SamplingOptions) (*llm.Response, error)

func (f llmClientFunc) Chat(ctx context.Context, msgs []llm.Message, opts *llm.SamplingOptions) (*llm.Response, error) {
	return f(ctx, msgs, opts)
}

func TestHeuristicBackend(t *testing.T) {
	b := NewHeuristicBackend("").WithClock(func() time.Time { return testNow })
	net := contracts.DefaultNetworkState()

	tests := []struct {
		category   string
		confidence float64
		report     bool
		score      float64
	}{
		{"wildfire", 0.98, true, 96},
		{"flood", 0.92, true, 85},
		{"accident", 0.88, true, 75},
		{"mass_casualty", 0.85, true, 83},
		{"wildfire", 0.40, false, 39},
		{"graffiti", 0.99, false, 74},
	}
	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			obs := testObservation(tt.confidence)
			obs.Category = tt.category
			obs.Name = ""

			j, err := b.Evaluate(context.Background(), obs, net)
			require.NoError(t, err)
			assert.Equal(t, tt.report, j.ShouldReport)
			assert.Equal(t, tt.score, j.Confidence)
			assert.True(t, strings.HasPrefix(j.Rationale, tt.category))
			assert.Contains(t, j.Rationale, "2/3 units active")
		})
	}
	assert.Equal(t, "heuristic", b.Name())
}

func TestHeuristicBackend_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHeuristicBackend("h").Evaluate(ctx, testObservation(0.9), contracts.DefaultNetworkState())
	var be *BackendError
	assert.True(t, errors.As(err, &be))
}
