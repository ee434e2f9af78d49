package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode"

	"quip-clash/internal/config"
)

const (
	answerSystemPrompt = "You are a contestant in a comedy party game. Answer the prompt with one short, funny line. No quotes, no preamble."
	voteSystemPrompt   = "You judge a comedy party game. Reply with the single letter A or B for the funnier answer."
	maxAnswerRunes     = 120
)

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// OpenAIClient talks to a chat-completions compatible endpoint. It serves as
// both the answer generator and the vote judge.
type OpenAIClient struct {
	apiKey            string
	defaultModel      string
	baseURL           string
	inputMicrosPer1K  int64
	outputMicrosPer1K int64
	http              *http.Client
}

func NewOpenAIClient(cfg config.Config, httpClient *http.Client) *OpenAIClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &OpenAIClient{
		apiKey:            strings.TrimSpace(cfg.OpenAIAPIKey),
		defaultModel:      strings.TrimSpace(cfg.OpenAIModel),
		baseURL:           strings.TrimRight(strings.TrimSpace(cfg.OpenAIBaseURL), "/"),
		inputMicrosPer1K:  cfg.AIInputMicrosPer1K,
		outputMicrosPer1K: cfg.AIOutputMicrosPer1K,
		http:              httpClient,
	}
}

func (c *OpenAIClient) GenerateAnswer(ctx context.Context, req AnswerRequest) (Answer, error) {
	var user strings.Builder
	if len(req.History) > 0 {
		user.WriteString("Your earlier answers this game (do not repeat them):\n")
		for _, previous := range req.History {
			user.WriteString("- ")
			user.WriteString(previous)
			user.WriteString("\n")
		}
		user.WriteString("\n")
	}
	user.WriteString("Prompt: ")
	user.WriteString(req.PromptText)

	content, usage, err := c.complete(ctx, req.ModelID, answerSystemPrompt, user.String(), 0.9, 60)
	if err != nil {
		return Answer{Usage: usage}, err
	}
	text := cleanAnswer(content)
	if text == "" {
		return Answer{Usage: usage}, ErrEmptyOutput
	}
	return Answer{Text: text, Usage: usage}, nil
}

func (c *OpenAIClient) GenerateVote(ctx context.Context, req VoteRequest) (Judgment, error) {
	user := fmt.Sprintf("Prompt: %s\nA: %s\nB: %s", req.PromptText, req.ResponseA, req.ResponseB)
	content, usage, err := c.complete(ctx, req.ModelID, voteSystemPrompt, user, 0.2, 2)
	if err != nil {
		return Judgment{Usage: usage}, err
	}
	return Judgment{Choice: parseChoice(content), Usage: usage}, nil
}

func (c *OpenAIClient) complete(ctx context.Context, model, system, user string, temperature float64, maxTokens int) (string, Usage, error) {
	if c.apiKey == "" {
		return "", Usage{}, ErrNotConfigured
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = c.defaultModel
	}
	payload, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", Usage{}, fmt.Errorf("build chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", Usage{}, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", Usage{}, fmt.Errorf("reach chat endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", Usage{}, fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", Usage{}, fmt.Errorf("chat request failed (%d)", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", Usage{}, fmt.Errorf("parse chat response: %w", err)
	}
	usage := c.usage(parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens)
	if parsed.Error != nil && parsed.Error.Message != "" {
		return "", usage, fmt.Errorf("chat error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", usage, ErrEmptyOutput
	}
	return parsed.Choices[0].Message.Content, usage, nil
}

func (c *OpenAIClient) usage(input, output int64) Usage {
	return Usage{
		InputTokens:  input,
		OutputTokens: output,
		CostMicros:   (input*c.inputMicrosPer1K + output*c.outputMicrosPer1K) / 1000,
	}
}

func cleanAnswer(raw string) string {
	line := strings.TrimSpace(raw)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = strings.TrimSpace(line[:idx])
	}
	line = strings.Trim(line, "\"'“”")
	line = strings.TrimSpace(line)
	runes := []rune(line)
	if len(runes) > maxAnswerRunes {
		line = strings.TrimSpace(string(runes[:maxAnswerRunes]))
	}
	return line
}

func parseChoice(raw string) Choice {
	trimmed := strings.TrimLeftFunc(raw, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	if trimmed == "" {
		return ""
	}
	first := unicode.ToUpper([]rune(trimmed)[0])
	rest := []rune(trimmed)[1:]
	if len(rest) > 0 && unicode.IsLetter(rest[0]) {
		return ""
	}
	switch first {
	case 'A':
		return ChoiceA
	case 'B':
		return ChoiceB
	default:
		return ""
	}
}
