package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quip-clash/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := config.Default()
	cfg.OpenAIAPIKey = "test-key"
	cfg.OpenAIBaseURL = srv.URL + "/"
	cfg.AIInputMicrosPer1K = 1000
	cfg.AIOutputMicrosPer1K = 2000
	return NewOpenAIClient(cfg, srv.Client())
}

func chatReply(w http.ResponseWriter, content string, input, output int64) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{{"message": map[string]any{"content": content}}},
		"usage":   map[string]any{"prompt_tokens": input, "completion_tokens": output},
	})
}

func TestGenerateAnswer(t *testing.T) {
	var got chatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		chatReply(w, "  \"A haunted toaster\"\nextra line", 40, 10)
	})

	answer, err := client.GenerateAnswer(context.Background(), AnswerRequest{
		ModelID:    "model-x",
		PromptText: "Worst kitchen appliance",
		History:    []string{"A spork"},
	})

	require.NoError(t, err)
	assert.Equal(t, "A haunted toaster", answer.Text)
	assert.Equal(t, Usage{InputTokens: 40, OutputTokens: 10, CostMicros: 60}, answer.Usage)
	assert.Equal(t, "model-x", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Contains(t, got.Messages[1].Content, "A spork")
	assert.Contains(t, got.Messages[1].Content, "Worst kitchen appliance")
}

func TestGenerateAnswerFallsBackToDefaultModel(t *testing.T) {
	var got chatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		chatReply(w, "ok", 1, 1)
	})

	_, err := client.GenerateAnswer(context.Background(), AnswerRequest{PromptText: "p"})
	require.NoError(t, err)
	assert.Equal(t, config.Default().OpenAIModel, got.Model)
}

func TestGenerateAnswerBlankIsAnError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		chatReply(w, "   ", 12, 0)
	})

	answer, err := client.GenerateAnswer(context.Background(), AnswerRequest{PromptText: "p"})
	assert.True(t, errors.Is(err, ErrEmptyOutput))
	assert.Equal(t, int64(12), answer.Usage.InputTokens)
}

func TestGenerateAnswerHTTPFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.GenerateAnswer(context.Background(), AnswerRequest{PromptText: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestGenerateAnswerRespectsContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GenerateAnswer(ctx, AnswerRequest{PromptText: "p"})
	assert.Error(t, err)
}

func TestMissingKeyIsNotConfigured(t *testing.T) {
	client := NewOpenAIClient(config.Default(), nil)

	_, err := client.GenerateVote(context.Background(), VoteRequest{PromptText: "p"})
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestGenerateVote(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		chatReply(w, "b.", 30, 1)
	})

	judgment, err := client.GenerateVote(context.Background(), VoteRequest{PromptText: "p", ResponseA: "x", ResponseB: "y"})
	require.NoError(t, err)
	assert.Equal(t, ChoiceB, judgment.Choice)
	assert.True(t, judgment.Choice.Valid())
}

func TestParseChoice(t *testing.T) {
	tests := []struct {
		raw  string
		want Choice
	}{
		{raw: "A", want: ChoiceA},
		{raw: " b", want: ChoiceB},
		{raw: "**A**", want: ChoiceA},
		{raw: "Answer A", want: ""},
		{raw: "Both", want: ""},
		{raw: "", want: ""},
		{raw: "C", want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			assert.Equal(t, tc.want, parseChoice(tc.raw))
		})
	}
}

func TestUsageAdd(t *testing.T) {
	sum := Usage{InputTokens: 1, OutputTokens: 2, CostMicros: 3}.Add(Usage{InputTokens: 10, OutputTokens: 20, CostMicros: 30})
	assert.Equal(t, Usage{InputTokens: 11, OutputTokens: 22, CostMicros: 33}, sum)
}
