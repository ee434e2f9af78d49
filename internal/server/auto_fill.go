package server

import (
	"context"
	"errors"
	"fmt"

	"quip-clash/internal/scoring"
)

// fillMissingResponses writes a forfeit for every assigned slot of the
// current round that has no response. Slots filled concurrently by a real
// submission are skipped, and filling stops once gate closes.
func (p *PhaseController) fillMissingResponses(ctx context.Context, game Game, reason string, gate *WriteGate) (int, error) {
	view, err := p.store.LoadRound(ctx, game.ID, game.CurrentRound)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("fill responses: %w", err)
	}
	filled := 0
	for _, slot := range missingResponses(view) {
		_, err := p.store.InsertResponse(ctx, game.ID, Response{
			PromptID: slot.PromptID,
			PlayerID: slot.PlayerID,
			Text:     scoring.ForfeitMarker,
		}, gate)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if errors.Is(err, ErrPhaseClosed) {
			break
		}
		if err != nil {
			return filled, fmt.Errorf("fill response prompt_id=%d player_id=%d: %w", slot.PromptID, slot.PlayerID, err)
		}
		filled++
	}
	if filled > 0 {
		p.logger.Info("forfeits filled", "game_id", game.ID, "round", game.CurrentRound, "count", filled, "reason", reason)
		roundID := view.Round.ID
		recordEvent(ctx, p.store, p.logger, Event{
			GameID:  game.ID,
			RoundID: &roundID,
			Type:    eventPlaceholders,
			Payload: EventPayload{RoundNumber: game.CurrentRound, Reason: reason, Count: filled},
		})
	}
	return filled, nil
}

// fillAbstainVotes records an abstention for every eligible voter that has
// not voted. With currentOnly it covers the current matchup while it is still
// unrevealed, otherwise every contested matchup of the round.
func (p *PhaseController) fillAbstainVotes(ctx context.Context, game Game, reason string, currentOnly bool) (int, error) {
	view, err := p.store.LoadRound(ctx, game.ID, game.CurrentRound)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("fill votes: %w", err)
	}
	players, err := p.store.ListPlayers(ctx, game.ID)
	if err != nil {
		return 0, fmt.Errorf("fill votes: %w", err)
	}

	var prompts []PromptView
	var gate *WriteGate
	if currentOnly {
		gate = votingGate(game.CurrentRound, game.VotingPromptIndex)
		matchup, ok := currentMatchup(game, view)
		if !ok {
			return 0, nil
		}
		prompts = []PromptView{matchup}
	} else {
		prompts = votablePrompts(view)
	}

	filled := 0
	closed := false
	for _, prompt := range prompts {
		if closed {
			break
		}
		if forfeitMatchup(prompt) {
			continue
		}
		for _, voter := range eligibleVoters(prompt, players) {
			if hasVoted(prompt, voter.ID) {
				continue
			}
			_, err := p.store.InsertVote(ctx, game.ID, Vote{
				PromptID:   prompt.Prompt.ID,
				VoterID:    voter.ID,
				FailReason: reason,
			}, gate)
			if errors.Is(err, ErrConflict) {
				continue
			}
			if errors.Is(err, ErrPhaseClosed) {
				closed = true
				break
			}
			if err != nil {
				return filled, fmt.Errorf("fill vote prompt_id=%d voter_id=%d: %w", prompt.Prompt.ID, voter.ID, err)
			}
			filled++
		}
	}
	if filled > 0 {
		p.logger.Info("abstentions filled", "game_id", game.ID, "round", game.CurrentRound, "count", filled, "reason", reason)
		roundID := view.Round.ID
		recordEvent(ctx, p.store, p.logger, Event{
			GameID:  game.ID,
			RoundID: &roundID,
			Type:    eventPlaceholders,
			Payload: EventPayload{RoundNumber: game.CurrentRound, Reason: reason, Count: filled},
		})
	}
	return filled, nil
}
