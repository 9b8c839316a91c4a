package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kaptinlin/jsonschema"
	"golang.org/x/time/rate"

	"webpilot/internal/domain"
	"webpilot/internal/infra/config"
)

const systemPrompt = `You are a web automation planner. Given a snapshot of the
current page and a goal, respond with a JSON array of actions in preference
order. Each action: {"kind": "click"|"type"|"navigate"|"submit"|"wait",
"selector_hint": "<css selector>", "parameters": {"text": "...", "url": "..."},
"destructive": bool, "confidence": 0..1, "reason": "<short>"}.
Mark any action that sends a message, places an order, deletes data, or
otherwise cannot be undone as destructive. Respond with the JSON array only.`

// OpenAIModel implements domain.DecisionModel against any OpenAI-compatible
// chat completions endpoint.
type OpenAIModel struct {
	model    string
	apiKey   string
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewOpenAIModel creates a decision model client from config. The API key is
// read from the environment variable the config names.
func NewOpenAIModel(cfg config.DecisionConfig, apiKey string, logger *slog.Logger) *OpenAIModel {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1"
	}
	rpm := cfg.RequestsPerMin
	if rpm <= 0 {
		rpm = 30
	}
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = 5
	}
	return &OpenAIModel{
		model:    cfg.Model,
		apiKey:   apiKey,
		endpoint: endpoint,
		client:   newHTTPClient(cfg.Timeout),
		limiter:  rate.NewLimiter(rate.Limit(rpm)/60.0, burst),
		logger:   logger,
	}
}

// Decide implements domain.DecisionModel.
func (m *OpenAIModel) Decide(ctx context.Context, snapshot domain.PageSnapshot, goal string) ([]domain.ProposedAction, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	snapJSON, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}

	req := chatRequest{
		Model: m.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("Goal: %s\n\nPage snapshot:\n%s", goal, snapJSON)},
		},
		Temperature: 0,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := m.post(ctx, m.endpoint+"/chat/completions", body)
	if err != nil {
		return nil, err
	}

	var resp chatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty completion")
	}

	actions, err := parseActions(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	m.logger.Debug("model proposed actions",
		"model", m.model,
		"count", len(actions),
		"tokens", resp.Usage.TotalTokens)
	return actions, nil
}

// Name implements domain.DecisionModel.
func (m *OpenAIModel) Name() string { return "openai:" + m.model }

func (m *OpenAIModel) post(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("decision request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("decision endpoint: status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}
	return respBody, nil
}

// actionsSchema constrains what a completion may propose. Extra object keys
// are tolerated; a wrong kind or an out-of-range confidence is not.
const actionsSchemaJSON = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["kind"],
    "properties": {
      "kind": {"type": "string", "enum": ["click", "type", "navigate", "submit", "wait"]},
      "selector_hint": {"type": "string"},
      "parameters": {"type": "object", "additionalProperties": {"type": "string"}},
      "destructive": {"type": "boolean"},
      "confidence": {"type": "number", "minimum": 0, "maximum": 1},
      "reason": {"type": "string"}
    }
  }
}`

var actionsSchema = mustCompileSchema(actionsSchemaJSON)

func mustCompileSchema(raw string) *jsonschema.Schema {
	schema, err := jsonschema.NewCompiler().Compile([]byte(raw))
	if err != nil {
		panic(fmt.Sprintf("compile actions schema: %v", err))
	}
	return schema
}

// parseActions extracts the proposed-action array from the completion text,
// tolerating a markdown code fence around the JSON, and validates it against
// actionsSchema before handing it to the engine.
func parseActions(content string) ([]domain.ProposedAction, error) {
	content = strings.TrimSpace(content)
	if idx := strings.Index(content, "["); idx >= 0 {
		if end := strings.LastIndex(content, "]"); end > idx {
			content = content[idx : end+1]
		}
	}

	var payload any
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("parse actions: %w", err)
	}
	if result := actionsSchema.Validate(payload); !result.IsValid() {
		return nil, fmt.Errorf("malformed actions: %s", result.Error())
	}

	var actions []domain.ProposedAction
	if err := json.Unmarshal([]byte(content), &actions); err != nil {
		return nil, fmt.Errorf("parse actions: %w", err)
	}
	return actions, nil
}

// --- OpenAI API wire types ---

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	TotalTokens int `json:"total_tokens"`
}

// newHTTPClient builds a client with pooling sized for a single API host.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     120 * time.Second,
			ForceAttemptHTTP2:   true,
		},
		Timeout: timeout,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
