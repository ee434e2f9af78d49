package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const maxAnswerRunes = 120

// SubmitResponse validates and stores a human answer, then re-checks the
// writing quorum.
func (p *PhaseController) SubmitResponse(ctx context.Context, gameID, playerID, promptID uint, text string) (Response, error) {
	text = strings.TrimSpace(text)
	if runes := []rune(text); len(runes) > maxAnswerRunes {
		text = string(runes[:maxAnswerRunes])
	}
	game, err := p.store.GetGame(ctx, gameID)
	if err != nil {
		return Response{}, err
	}
	if game.Status != StatusWriting {
		return Response{}, ErrWrongPhase
	}
	player, err := p.findPlayer(ctx, gameID, playerID)
	if err != nil {
		return Response{}, err
	}
	if player.Type != PlayerHuman {
		return Response{}, ErrNotAssigned
	}
	view, err := p.store.LoadRound(ctx, gameID, game.CurrentRound)
	if err != nil {
		return Response{}, fmt.Errorf("submit response: %w", err)
	}
	prompt, ok := findPrompt(view, promptID)
	if !ok {
		return Response{}, ErrPromptNotFound
	}
	if !prompt.Prompt.AssignedTo(playerID) {
		return Response{}, ErrNotAssigned
	}

	response, err := p.store.InsertResponse(ctx, gameID, Response{PromptID: promptID, PlayerID: playerID, Text: text}, writingGate(game.CurrentRound))
	if errors.Is(err, ErrConflict) {
		return Response{}, ErrAlreadySubmitted
	}
	if errors.Is(err, ErrPhaseClosed) {
		return Response{}, ErrWrongPhase
	}
	if err != nil {
		return Response{}, fmt.Errorf("submit response: %w", err)
	}
	p.notifier.Publish(ctx, gameID)
	if _, err := p.CheckQuorum(ctx, gameID); err != nil {
		p.logger.Error("quorum check failed", "game_id", gameID, "error", err)
	}
	return response, nil
}

// SubmitVote validates and stores a human vote on the current matchup, then
// re-checks the tally.
func (p *PhaseController) SubmitVote(ctx context.Context, gameID, voterID, promptID, responseID uint) (Vote, error) {
	game, err := p.store.GetGame(ctx, gameID)
	if err != nil {
		return Vote{}, err
	}
	if game.Status != StatusVoting || game.VotingRevealing {
		return Vote{}, ErrWrongPhase
	}
	voter, err := p.findPlayer(ctx, gameID, voterID)
	if err != nil {
		return Vote{}, err
	}
	if voter.Type != PlayerHuman {
		return Vote{}, ErrNotEligible
	}
	view, err := p.store.LoadRound(ctx, gameID, game.CurrentRound)
	if err != nil {
		return Vote{}, fmt.Errorf("submit vote: %w", err)
	}
	matchup, ok := currentMatchup(game, view)
	if !ok || matchup.Prompt.ID != promptID {
		return Vote{}, ErrNotCurrentMatchup
	}
	if forfeitMatchup(matchup) {
		return Vote{}, ErrMatchupDecided
	}
	var choice *Response
	for i := range matchup.Responses {
		if matchup.Responses[i].ID == responseID {
			choice = &matchup.Responses[i]
		}
	}
	if choice == nil {
		return Vote{}, ErrInvalidChoice
	}
	if choice.PlayerID == voterID {
		return Vote{}, ErrSelfVote
	}
	if _, respondent := respondentsOf(matchup)[voterID]; respondent {
		return Vote{}, ErrNotEligible
	}

	// the matchup may have been revealed since the read above
	gate := votingGate(game.CurrentRound, game.VotingPromptIndex)
	vote, err := p.store.InsertVote(ctx, gameID, Vote{PromptID: promptID, VoterID: voterID, ResponseID: uintPtr(responseID)}, gate)
	if errors.Is(err, ErrConflict) {
		return Vote{}, ErrAlreadySubmitted
	}
	if errors.Is(err, ErrPhaseClosed) {
		return Vote{}, ErrWrongPhase
	}
	if err != nil {
		return Vote{}, fmt.Errorf("submit vote: %w", err)
	}
	p.notifier.Publish(ctx, gameID)
	if _, err := p.CheckQuorum(ctx, gameID); err != nil {
		p.logger.Error("quorum check failed", "game_id", gameID, "error", err)
	}
	return vote, nil
}

func (p *PhaseController) findPlayer(ctx context.Context, gameID, playerID uint) (Player, error) {
	players, err := p.store.ListPlayers(ctx, gameID)
	if err != nil {
		return Player{}, fmt.Errorf("load players: %w", err)
	}
	player, ok := playersByID(players)[playerID]
	if !ok {
		return Player{}, ErrPlayerNotFound
	}
	return player, nil
}

func findPrompt(view RoundView, promptID uint) (PromptView, bool) {
	for _, prompt := range view.Prompts {
		if prompt.Prompt.ID == promptID {
			return prompt, true
		}
	}
	return PromptView{}, false
}
