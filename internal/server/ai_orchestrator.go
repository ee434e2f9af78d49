package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"quip-clash/internal/ai"
	"quip-clash/internal/config"
	"quip-clash/internal/scoring"
)

// AIOrchestrator drives AI players. Work is dispatched after the claiming
// request returns; every provider failure becomes a forfeit or an abstention.
type AIOrchestrator struct {
	store   Store
	answers ai.AnswerGenerator
	judge   ai.VoteJudge
	cfg     config.Config
	logger  *slog.Logger
	phases  *PhaseController

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewAIOrchestrator accepts nil providers; AI players then always forfeit and
// abstain.
func NewAIOrchestrator(store Store, answers ai.AnswerGenerator, judge ai.VoteJudge, cfg config.Config, logger *slog.Logger) *AIOrchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &AIOrchestrator{
		store:   store,
		answers: answers,
		judge:   judge,
		cfg:     cfg,
		logger:  logger,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

func (o *AIOrchestrator) dispatch(fn func(ctx context.Context)) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		fn(o.baseCtx)
	}()
}

// Wait blocks until all dispatched work has settled.
func (o *AIOrchestrator) Wait() {
	o.wg.Wait()
}

// Close cancels in-flight provider calls and waits for them to settle.
func (o *AIOrchestrator) Close() {
	o.cancel()
	o.wg.Wait()
}

func (o *AIOrchestrator) group(ctx context.Context) (*errgroup.Group, context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	if o.cfg.AIConcurrency > 0 {
		g.SetLimit(o.cfg.AIConcurrency)
	}
	return g, gctx
}

func (o *AIOrchestrator) modelFor(player Player) string {
	if player.ModelID != "" {
		return player.ModelID
	}
	return o.cfg.OpenAIModel
}

// GenerateResponses answers every unanswered AI slot of the current round,
// then re-checks the writing quorum.
func (o *AIOrchestrator) GenerateResponses(ctx context.Context, gameID uint) {
	game, err := o.store.GetGame(ctx, gameID)
	if err != nil || game.Status != StatusWriting {
		return
	}
	view, err := o.store.LoadRound(ctx, gameID, game.CurrentRound)
	if err != nil {
		o.logger.Error("ai answers: load round failed", "game_id", gameID, "error", err)
		return
	}
	players, err := o.store.ListPlayers(ctx, gameID)
	if err != nil {
		o.logger.Error("ai answers: load players failed", "game_id", gameID, "error", err)
		return
	}
	byID := playersByID(players)

	g, gctx := o.group(ctx)
	for _, slot := range missingResponses(view) {
		player, ok := byID[slot.PlayerID]
		if !ok || player.Type != PlayerAI {
			continue
		}
		prompt, ok := findPrompt(view, slot.PromptID)
		if !ok {
			continue
		}
		g.Go(func() error {
			o.answer(gctx, gameID, game.CurrentRound, player, prompt.Prompt)
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return
	}
	if _, err := o.phases.CheckQuorum(ctx, gameID); err != nil {
		o.logger.Error("ai answers: quorum check failed", "game_id", gameID, "error", err)
	}
}

func (o *AIOrchestrator) answer(ctx context.Context, gameID uint, round int, player Player, prompt Prompt) {
	history, err := o.store.PlayerAnswers(ctx, gameID, player.ID)
	if err != nil {
		o.logger.Warn("ai answers: history unavailable", "game_id", gameID, "player_id", player.ID, "error", err)
	}
	model := o.modelFor(player)

	text := scoring.ForfeitMarker
	var usage ai.Usage
	var callErr error
	if o.answers == nil {
		callErr = ai.ErrNotConfigured
	} else {
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.AITimeout())
		answer, err := o.answers.GenerateAnswer(callCtx, ai.AnswerRequest{
			ModelID:    model,
			PromptText: prompt.Text,
			History:    history,
		})
		cancel()
		usage = answer.Usage
		switch {
		case err != nil:
			callErr = err
		case strings.TrimSpace(answer.Text) == "":
			callErr = ai.ErrEmptyOutput
		default:
			text = strings.TrimSpace(answer.Text)
		}
	}
	if callErr != nil {
		o.logger.Warn("ai answer failed, forfeiting", "game_id", gameID, "player_id", player.ID, "prompt_id", prompt.ID, "reason", failReason(callErr), "error", callErr)
	}

	_, err = o.store.InsertResponse(ctx, gameID, Response{PromptID: prompt.ID, PlayerID: player.ID, Text: text}, writingGate(round))
	switch {
	case errors.Is(err, ErrPhaseClosed):
		o.logger.Info("ai answer arrived after writing closed", "game_id", gameID, "player_id", player.ID, "prompt_id", prompt.ID)
	case err != nil && !errors.Is(err, ErrConflict):
		o.logger.Error("ai answer write failed", "game_id", gameID, "player_id", player.ID, "prompt_id", prompt.ID, "error", err)
	}
	o.recordUsage(ctx, gameID, model, usage, callErr)
}

// GenerateVotes casts a ballot for every active AI voter on every contested
// matchup of the round, then re-checks the current tally.
func (o *AIOrchestrator) GenerateVotes(ctx context.Context, gameID uint) {
	game, err := o.store.GetGame(ctx, gameID)
	if err != nil || game.Status != StatusVoting {
		return
	}
	view, err := o.store.LoadRound(ctx, gameID, game.CurrentRound)
	if err != nil {
		o.logger.Error("ai votes: load round failed", "game_id", gameID, "error", err)
		return
	}
	players, err := o.store.ListPlayers(ctx, gameID)
	if err != nil {
		o.logger.Error("ai votes: load players failed", "game_id", gameID, "error", err)
		return
	}

	g, gctx := o.group(ctx)
	for index, prompt := range votablePrompts(view) {
		if forfeitMatchup(prompt) || len(prompt.Responses) < 2 {
			continue
		}
		for _, voter := range eligibleVoters(prompt, players) {
			if voter.Type != PlayerAI || !voter.Active() || hasVoted(prompt, voter.ID) {
				continue
			}
			g.Go(func() error {
				o.vote(gctx, gameID, votingGate(game.CurrentRound, index), voter, prompt)
				return nil
			})
		}
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return
	}
	if _, err := o.phases.CheckQuorum(ctx, gameID); err != nil {
		o.logger.Error("ai votes: tally check failed", "game_id", gameID, "error", err)
	}
}

func (o *AIOrchestrator) vote(ctx context.Context, gameID uint, gate *WriteGate, voter Player, prompt PromptView) {
	responseA, responseB := prompt.Responses[0], prompt.Responses[1]
	model := o.modelFor(voter)

	var choice *uint
	var usage ai.Usage
	var callErr error
	if o.judge == nil {
		callErr = ai.ErrNotConfigured
	} else {
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.AITimeout())
		judgment, err := o.judge.GenerateVote(callCtx, ai.VoteRequest{
			ModelID:    model,
			PromptText: prompt.Prompt.Text,
			ResponseA:  responseA.Text,
			ResponseB:  responseB.Text,
		})
		cancel()
		usage = judgment.Usage
		switch {
		case err != nil:
			callErr = err
		case judgment.Choice == ai.ChoiceA:
			choice = uintPtr(responseA.ID)
		case judgment.Choice == ai.ChoiceB:
			choice = uintPtr(responseB.ID)
		default:
			callErr = fmt.Errorf("%w: %q", errInvalidChoice, judgment.Choice)
		}
	}

	reason := ""
	if callErr != nil {
		reason = failReason(callErr)
		o.logger.Warn("ai vote failed, abstaining", "game_id", gameID, "player_id", voter.ID, "prompt_id", prompt.Prompt.ID, "reason", reason, "error", callErr)
	}
	_, err := o.store.InsertVote(ctx, gameID, Vote{PromptID: prompt.Prompt.ID, VoterID: voter.ID, ResponseID: choice, FailReason: reason}, gate)
	switch {
	case errors.Is(err, ErrPhaseClosed):
		o.logger.Info("ai vote arrived after the reveal", "game_id", gameID, "player_id", voter.ID, "prompt_id", prompt.Prompt.ID)
	case err != nil && !errors.Is(err, ErrConflict):
		o.logger.Error("ai vote write failed", "game_id", gameID, "player_id", voter.ID, "prompt_id", prompt.Prompt.ID, "error", err)
	}
	o.recordUsage(ctx, gameID, model, usage, callErr)
}

func (o *AIOrchestrator) recordUsage(ctx context.Context, gameID uint, model string, usage ai.Usage, callErr error) {
	if errors.Is(callErr, ai.ErrNotConfigured) {
		return
	}
	delta := ModelUsage{
		ModelID:      model,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		CostMicros:   usage.CostMicros,
		Calls:        1,
	}
	if callErr != nil {
		delta.Failures = 1
	}
	if err := o.store.AddUsage(ctx, gameID, delta); err != nil {
		o.logger.Warn("ai usage write failed", "game_id", gameID, "model", model, "error", err)
	}
}

var errInvalidChoice = errors.New("invalid choice")

func failReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return failReasonTimeout
	case errors.Is(err, errInvalidChoice):
		return failReasonInvalidChoice
	default:
		return failReasonProviderError
	}
}
