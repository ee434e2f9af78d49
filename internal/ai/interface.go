// Package ai describes the external answer and vote generators used by AI
// players. Implementations are unreliable: callers bound every call with their
// own deadline and treat any error as a miss.
package ai

import (
	"context"
	"errors"
)

var (
	ErrNotConfigured = errors.New("ai provider is not configured")
	ErrEmptyOutput   = errors.New("ai provider returned no output")
)

// Usage is what one call cost. CostMicros is in millionths of a dollar.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	CostMicros   int64
}

func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		CostMicros:   u.CostMicros + other.CostMicros,
	}
}

type AnswerRequest struct {
	ModelID    string
	PromptText string
	// History holds the player's earlier answers in this game, oldest first.
	History []string
}

type Answer struct {
	Text  string
	Usage Usage
}

type Choice string

const (
	ChoiceA Choice = "A"
	ChoiceB Choice = "B"
)

func (c Choice) Valid() bool {
	return c == ChoiceA || c == ChoiceB
}

type VoteRequest struct {
	ModelID    string
	PromptText string
	ResponseA  string
	ResponseB  string
}

// Judgment carries the raw choice; callers must check Choice.Valid.
type Judgment struct {
	Choice Choice
	Usage  Usage
}

//go:generate mockgen -package=mocks -destination=mocks/mock_ai.go quip-clash/internal/ai AnswerGenerator,VoteJudge
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, req AnswerRequest) (Answer, error)
}

type VoteJudge interface {
	GenerateVote(ctx context.Context, req VoteRequest) (Judgment, error)
}
