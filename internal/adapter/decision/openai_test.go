package decision

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webpilot/internal/domain"
	"webpilot/internal/infra/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func completionServer(t *testing.T, content string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(t, req.Messages)
		assert.Equal(t, "system", req.Messages[0].Role)

		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error": "nope"}`))
			return
		}
		resp := chatResponse{
			Choices: []chatChoice{{Message: chatMessage{Role: "assistant", Content: content}}},
			Usage:   chatUsage{TotalTokens: 42},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func testModel(endpoint string) *OpenAIModel {
	return NewOpenAIModel(config.DecisionConfig{
		Model:    "gpt-4o-mini",
		Endpoint: endpoint,
		Timeout:  5 * time.Second,
	}, "test-key", testLogger())
}

func TestOpenAIModel_DecideParsesActions(t *testing.T) {
	content := `[{"kind": "click", "selector_hint": "#result-1", "destructive": false, "confidence": 0.9, "reason": "best match"}]`
	srv := completionServer(t, content, http.StatusOK)
	defer srv.Close()

	m := testModel(srv.URL)
	actions, err := m.Decide(context.Background(), domain.PageSnapshot{URL: "https://shop.example"}, "pick the best result")

	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, domain.ActionClick, actions[0].Kind)
	assert.Equal(t, "#result-1", actions[0].SelectorHint)
	assert.InDelta(t, 0.9, actions[0].Confidence, 0.001)
}

func TestOpenAIModel_DecideToleratesCodeFence(t *testing.T) {
	content := "```json\n[{\"kind\": \"type\", \"selector_hint\": \"#q\", \"parameters\": {\"text\": \"hi\"}}]\n```"
	srv := completionServer(t, content, http.StatusOK)
	defer srv.Close()

	m := testModel(srv.URL)
	actions, err := m.Decide(context.Background(), domain.PageSnapshot{}, "type the query")

	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, domain.ActionTypeText, actions[0].Kind)
	assert.Equal(t, "hi", actions[0].Parameters["text"])
}

func TestOpenAIModel_DecideErrorStatus(t *testing.T) {
	srv := completionServer(t, "", http.StatusTooManyRequests)
	defer srv.Close()

	m := testModel(srv.URL)
	_, err := m.Decide(context.Background(), domain.PageSnapshot{}, "anything")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

func TestOpenAIModel_DecideGarbageCompletion(t *testing.T) {
	srv := completionServer(t, "I cannot help with that.", http.StatusOK)
	defer srv.Close()

	m := testModel(srv.URL)
	_, err := m.Decide(context.Background(), domain.PageSnapshot{}, "anything")

	assert.Error(t, err)
}

func TestOpenAIModel_DecideRejectsUnknownActionKind(t *testing.T) {
	content := `[{"kind": "explode", "selector_hint": "#result-1"}]`
	srv := completionServer(t, content, http.StatusOK)
	defer srv.Close()

	m := testModel(srv.URL)
	_, err := m.Decide(context.Background(), domain.PageSnapshot{}, "anything")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed actions")
}

func TestOpenAIModel_DecideRejectsOutOfRangeConfidence(t *testing.T) {
	content := `[{"kind": "click", "selector_hint": "#a", "confidence": 3.5}]`
	srv := completionServer(t, content, http.StatusOK)
	defer srv.Close()

	m := testModel(srv.URL)
	_, err := m.Decide(context.Background(), domain.PageSnapshot{}, "anything")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed actions")
}

func TestOpenAIModel_DecideHonorsRateLimit(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		resp := chatResponse{Choices: []chatChoice{{Message: chatMessage{Content: `[{"kind": "wait"}]`}}}}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	// One request per minute with a burst of one: the second call has no
	// token and must wait, so a canceled context fails it before any HTTP.
	m := NewOpenAIModel(config.DecisionConfig{
		Model:          "gpt-4o-mini",
		Endpoint:       srv.URL,
		Timeout:        5 * time.Second,
		RequestsPerMin: 1,
		BurstSize:      1,
	}, "test-key", testLogger())

	_, err := m.Decide(context.Background(), domain.PageSnapshot{}, "first")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Decide(ctx, domain.PageSnapshot{}, "second")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
	assert.Equal(t, 1, hits, "the throttled call must not reach the endpoint")
}

func TestOpenAIModel_Name(t *testing.T) {
	m := testModel("http://unused")
	assert.Equal(t, "openai:gpt-4o-mini", m.Name())
}

func TestParseActions(t *testing.T) {
	actions, err := parseActions(`Here you go: [{"kind": "wait"}] hope that helps`)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, domain.ActionWait, actions[0].Kind)

	_, err = parseActions("no json here")
	assert.Error(t, err)
}
