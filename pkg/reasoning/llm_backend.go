package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/time/rate"

	"github.com/Mindburn-Labs/sentinel/pkg/contracts"
	"github.com/Mindburn-Labs/sentinel/pkg/llm"
)

const systemPrompt = `You are %s, part of a collaborative emergency response system.
Decide whether the incident below must be reported to the public incident ledger.
Answer with a single JSON object:
{"should_report": true|false, "confidence": 0-100, "reasoning": "..."}`

const userPrompt = `Incident:
%s

Network state:
%s`

// judgmentSchema accepts the reply shapes seen from chat models: a boolean or
// yes/no answer, and a confidence either as a percentage or a fraction.
const judgmentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["should_report"],
  "properties": {
    "should_report": {
      "anyOf": [
        {"type": "boolean"},
        {"type": "string", "enum": ["yes", "no", "true", "false", "YES", "NO", "Yes", "No"]}
      ]
    },
    "confidence": {"type": "number", "minimum": 0, "maximum": 100},
    "reasoning": {"type": "string"},
    "rationale": {"type": "string"}
  }
}`

var compiledJudgmentSchema = mustCompileSchema(judgmentSchema)

func mustCompileSchema(src string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const url = "https://sentinel.schemas.local/reasoning/judgment.schema.json"
	if err := c.AddResource(url, strings.NewReader(src)); err != nil {
		panic(fmt.Sprintf("judgment schema load failed: %v", err))
	}
	return c.MustCompile(url)
}

// LLMBackend asks a chat model for a judgment.
type LLMBackend struct {
	name    string
	role    string
	client  llm.Client
	limiter *rate.Limiter
	clock   func() time.Time
}

// NewLLMBackend creates a backend over client. requestsPerMinute <= 0
// disables rate limiting. role is the agent description used in the prompt.
func NewLLMBackend(name, role string, client llm.Client, requestsPerMinute int) *LLMBackend {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
	}
	if role == "" {
		role = "an autonomous patrol analyst"
	}
	return &LLMBackend{
		name:    name,
		role:    role,
		client:  client,
		limiter: limiter,
		clock:   time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (b *LLMBackend) WithClock(clock func() time.Time) *LLMBackend {
	b.clock = clock
	return b
}

func (b *LLMBackend) Name() string { return b.name }

func (b *LLMBackend) Evaluate(ctx context.Context, obs contracts.Observation, net contracts.NetworkState) (contracts.Judgment, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return contracts.Judgment{}, &BackendError{Backend: b.name, Op: "rate_limit", Err: err}
	}

	incident, err := json.MarshalIndent(obs, "", "  ")
	if err != nil {
		return contracts.Judgment{}, &BackendError{Backend: b.name, Op: "prompt", Err: err}
	}
	network, err := json.MarshalIndent(net, "", "  ")
	if err != nil {
		return contracts.Judgment{}, &BackendError{Backend: b.name, Op: "prompt", Err: err}
	}

	msgs := []llm.Message{
		{Role: "system", Content: fmt.Sprintf(systemPrompt, b.role)},
		{Role: "user", Content: fmt.Sprintf(userPrompt, incident, network)},
	}
	resp, err := b.client.Chat(ctx, msgs, &llm.SamplingOptions{Temperature: 0, JSONMode: true})
	if err != nil {
		return contracts.Judgment{}, &BackendError{Backend: b.name, Op: "chat", Err: err}
	}

	return ParseJudgment(resp.Content, obs, b.clock()), nil
}

// ParseJudgment interprets a backend reply. Replies that are not a JSON
// object matching the judgment schema become an unstructured judgment
// carrying the raw text. A missing confidence defaults to the observation's
// own confidence. Values strictly below 1 are read as fractions, so 1 means
// one percent.
func ParseJudgment(raw string, obs contracts.Observation, at time.Time) contracts.Judgment {
	body := stripCodeFence(raw)

	var doc any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return contracts.UnstructuredJudgment("", raw, at)
	}
	if err := compiledJudgmentSchema.Validate(doc); err != nil {
		return contracts.UnstructuredJudgment("", raw, at)
	}

	fields := doc.(map[string]any)
	shouldReport := false
	switch v := fields["should_report"].(type) {
	case bool:
		shouldReport = v
	case string:
		s := strings.ToLower(v)
		shouldReport = s == "yes" || s == "true"
	}

	confidence := obs.Confidence * 100
	if v, ok := fields["confidence"].(float64); ok {
		confidence = v
		if v < 1 {
			confidence = v * 100
		}
	}

	rationale, _ := fields["reasoning"].(string)
	if rationale == "" {
		rationale, _ = fields["rationale"].(string)
	}

	return contracts.StructuredJudgment("", shouldReport, confidence, rationale, at)
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
