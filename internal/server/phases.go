package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"quip-clash/internal/common/clock"
	"quip-clash/internal/config"
	"quip-clash/internal/scoring"
)

const minParticipants = 2

// PhaseController owns the game state machine. Every transition is a single
// conditional store write; the caller that matches the expected state gets
// Claimed and every other concurrent caller gets NotClaimed.
type PhaseController struct {
	store    Store
	notifier Notifier
	clock    clock.Clock
	cfg      config.Config
	logger   *slog.Logger
	ai       *AIOrchestrator

	timersMu sync.Mutex
	timers   map[uint]*time.Timer
	closed   bool
	nudges   sync.WaitGroup
}

func NewPhaseController(store Store, notifier Notifier, clk clock.Clock, cfg config.Config, logger *slog.Logger, orchestrator *AIOrchestrator) *PhaseController {
	p := &PhaseController{
		store:    store,
		notifier: notifier,
		clock:    clk,
		cfg:      cfg,
		logger:   logger,
		ai:       orchestrator,
		timers:   make(map[uint]*time.Timer),
	}
	orchestrator.phases = p
	return p
}

func (p *PhaseController) deadline(game Game, window time.Duration) *time.Time {
	if game.TimersDisabled || window <= 0 {
		return nil
	}
	at := p.clock.Now().Add(window)
	return &at
}

// loadGame maps a missing game to ok=false so transitions can no-op.
func (p *PhaseController) loadGame(ctx context.Context, gameID uint) (Game, bool, error) {
	game, err := p.store.GetGame(ctx, gameID)
	if errors.Is(err, ErrNotFound) {
		return Game{}, false, nil
	}
	if err != nil {
		return Game{}, false, fmt.Errorf("load game %d: %w", gameID, err)
	}
	return game, true, nil
}

func (p *PhaseController) claim(ctx context.Context, game Game, cond GameCondition, update GameUpdate) (Claim, error) {
	ok, err := p.store.TransitionGame(ctx, game.ID, cond, update)
	if errors.Is(err, ErrNotFound) {
		return NotClaimed, nil
	}
	if err != nil {
		return NotClaimed, fmt.Errorf("transition game %d from %s: %w", game.ID, cond.Status, err)
	}
	if !ok {
		return NotClaimed, nil
	}
	p.announce(ctx, game, cond.Status, update)
	return Claimed, nil
}

func (p *PhaseController) announce(ctx context.Context, game Game, from GameStatus, update GameUpdate) {
	to := update.Status
	if to == "" {
		to = from
	}
	payload := EventPayload{From: from, To: to, RoundNumber: game.CurrentRound}
	if update.CurrentRound != nil {
		payload.RoundNumber = *update.CurrentRound
	}
	if update.VotingPromptIndex != nil && to == StatusVoting {
		payload.PromptIndex = intPtr(*update.VotingPromptIndex)
	}
	p.logger.Info("phase transition", "game_id", game.ID, "round", payload.RoundNumber, "from", from, "to", to)
	recordEvent(ctx, p.store, p.logger, Event{GameID: game.ID, Type: eventPhaseChanged, Payload: payload})
	if update.SetDeadline {
		p.scheduleNudge(game.ID, update.PhaseDeadline)
	}
	p.notifier.Publish(ctx, game.ID)
}

// StartRound creates round number with its prompts and opens WRITING. Round 1
// starts from LOBBY, later rounds from ROUND_RESULTS. A duplicate round means
// another caller already won.
func (p *PhaseController) StartRound(ctx context.Context, gameID uint, number int) (Claim, error) {
	game, ok, err := p.loadGame(ctx, gameID)
	if err != nil || !ok {
		return NotClaimed, err
	}
	expected := StatusRoundResults
	if number == 1 {
		expected = StatusLobby
	}
	if game.Status != expected || game.CurrentRound != number-1 {
		return NotClaimed, nil
	}
	players, err := p.store.ListPlayers(ctx, gameID)
	if err != nil {
		return NotClaimed, fmt.Errorf("start round %d: %w", number, err)
	}
	participants := participantsOf(players)
	if len(participants) < minParticipants {
		return NotClaimed, ErrNotEnoughPlayers
	}
	texts, err := p.store.PickPromptTexts(ctx, gameID, len(participants))
	if err != nil {
		return NotClaimed, fmt.Errorf("start round %d: pick prompts: %w", number, err)
	}
	for len(texts) < len(participants) {
		texts = append(texts, fmt.Sprintf("Prompt %d", len(texts)+1))
	}

	cond := GameCondition{Status: expected, CurrentRound: intPtr(number - 1)}
	update := GameUpdate{
		Status:            StatusWriting,
		CurrentRound:      intPtr(number),
		VotingPromptIndex: intPtr(0),
		VotingRevealing:   boolPtr(false),
		SetDeadline:       true,
		PhaseDeadline:     p.deadline(game, p.cfg.WritingDuration()),
	}
	matched, err := p.store.StartRound(ctx, gameID, number, assignPrompts(participants, texts), cond, update)
	if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
		return NotClaimed, nil
	}
	if err != nil {
		return NotClaimed, fmt.Errorf("start round %d: %w", number, err)
	}
	if !matched {
		return NotClaimed, nil
	}
	p.announce(ctx, game, expected, update)
	p.ai.dispatch(func(ctx context.Context) {
		p.ai.GenerateResponses(ctx, gameID)
	})
	return Claimed, nil
}

// StartVoting closes WRITING. The winner kicks off AI votes, or scores the
// round at once when nothing is votable.
func (p *PhaseController) StartVoting(ctx context.Context, gameID uint) (Claim, error) {
	game, ok, err := p.loadGame(ctx, gameID)
	if err != nil || !ok || game.Status != StatusWriting {
		return NotClaimed, err
	}
	claim, err := p.claim(ctx, game,
		GameCondition{Status: StatusWriting, CurrentRound: intPtr(game.CurrentRound)},
		GameUpdate{
			Status:            StatusVoting,
			VotingPromptIndex: intPtr(0),
			VotingRevealing:   boolPtr(false),
			SetDeadline:       true,
			PhaseDeadline:     p.deadline(game, p.cfg.VotingDuration()),
		})
	if err != nil || claim == NotClaimed {
		return claim, err
	}

	view, err := p.store.LoadRound(ctx, gameID, game.CurrentRound)
	if err != nil {
		return Claimed, fmt.Errorf("start voting: load round: %w", err)
	}
	if len(votablePrompts(view)) == 0 {
		if _, err := p.CalculateRoundScores(ctx, gameID); err != nil {
			return Claimed, err
		}
		return Claimed, nil
	}
	p.ai.dispatch(func(ctx context.Context) {
		p.ai.GenerateVotes(ctx, gameID)
	})
	return Claimed, nil
}

func (p *PhaseController) RevealCurrentPrompt(ctx context.Context, gameID uint) (Claim, error) {
	game, ok, err := p.loadGame(ctx, gameID)
	if err != nil || !ok || game.Status != StatusVoting || game.VotingRevealing {
		return NotClaimed, err
	}
	return p.claim(ctx, game,
		GameCondition{
			Status:            StatusVoting,
			CurrentRound:      intPtr(game.CurrentRound),
			VotingPromptIndex: intPtr(game.VotingPromptIndex),
			VotingRevealing:   boolPtr(false),
		},
		GameUpdate{
			VotingRevealing: boolPtr(true),
			SetDeadline:     true,
			PhaseDeadline:   p.deadline(game, p.cfg.RevealDuration()),
		})
}

// AdvanceToNextPrompt moves past revealed matchup index. After the last
// matchup it scores the round instead of moving the index out of range.
func (p *PhaseController) AdvanceToNextPrompt(ctx context.Context, gameID uint, index int) (Claim, error) {
	game, ok, err := p.loadGame(ctx, gameID)
	if err != nil || !ok {
		return NotClaimed, err
	}
	if game.Status != StatusVoting || !game.VotingRevealing || game.VotingPromptIndex != index {
		return NotClaimed, nil
	}
	view, err := p.store.LoadRound(ctx, gameID, game.CurrentRound)
	if errors.Is(err, ErrNotFound) {
		return NotClaimed, nil
	}
	if err != nil {
		return NotClaimed, fmt.Errorf("advance prompt: load round: %w", err)
	}
	if index+1 >= len(votablePrompts(view)) {
		return p.CalculateRoundScores(ctx, gameID)
	}

	claim, err := p.claim(ctx, game,
		GameCondition{
			Status:            StatusVoting,
			CurrentRound:      intPtr(game.CurrentRound),
			VotingPromptIndex: intPtr(index),
			VotingRevealing:   boolPtr(true),
		},
		GameUpdate{
			VotingPromptIndex: intPtr(index + 1),
			VotingRevealing:   boolPtr(false),
			SetDeadline:       true,
			PhaseDeadline:     p.deadline(game, p.cfg.VotingDuration()),
		})
	if err != nil || claim == NotClaimed {
		return claim, err
	}
	if _, err := p.revealIfTallied(ctx, gameID); err != nil {
		return Claimed, err
	}
	return Claimed, nil
}

// CalculateRoundScores closes VOTING and applies the round's scores. The
// claim guarantees the scores are applied exactly once.
func (p *PhaseController) CalculateRoundScores(ctx context.Context, gameID uint) (Claim, error) {
	game, ok, err := p.loadGame(ctx, gameID)
	if err != nil || !ok || game.Status != StatusVoting {
		return NotClaimed, err
	}
	claim, err := p.claim(ctx, game,
		GameCondition{Status: StatusVoting, CurrentRound: intPtr(game.CurrentRound)},
		GameUpdate{
			Status:          StatusRoundResults,
			VotingRevealing: boolPtr(false),
			SetDeadline:     true,
			PhaseDeadline:   p.deadline(game, p.cfg.ResultsDuration()),
		})
	if err != nil || claim == NotClaimed {
		return claim, err
	}
	if err := p.scoreRound(ctx, gameID, game.CurrentRound); err != nil {
		return Claimed, err
	}
	return Claimed, nil
}

func (p *PhaseController) scoreRound(ctx context.Context, gameID uint, number int) error {
	view, err := p.store.LoadRound(ctx, gameID, number)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("score round %d: %w", number, err)
	}
	players, err := p.store.ListPlayers(ctx, gameID)
	if err != nil {
		return fmt.Errorf("score round %d: %w", number, err)
	}
	byID := playersByID(players)

	inputs := make([]scoring.Prompt, 0, len(view.Prompts))
	answered := make(map[uint]bool)
	for _, prompt := range view.Prompts {
		input := scoring.Prompt{
			ID:             prompt.Prompt.ID,
			EligibleVoters: len(eligibleVoters(prompt, players)),
		}
		for _, response := range prompt.Responses {
			input.Responses = append(input.Responses, scoring.Response{ID: response.ID, PlayerID: response.PlayerID, Text: response.Text})
			if !response.Forfeit() {
				answered[response.PlayerID] = true
			}
		}
		for _, vote := range prompt.Votes {
			input.Votes = append(input.Votes, scoring.Vote{
				VoterID:    vote.VoterID,
				Human:      byID[vote.VoterID].Type == PlayerHuman,
				ResponseID: vote.ResponseID,
			})
		}
		inputs = append(inputs, input)
	}

	state := make(map[uint]scoring.PlayerState, len(players))
	for _, player := range players {
		if player.Participant() {
			state[player.ID] = player.scoringState()
		}
	}
	result := scoring.ScoreRound(inputs, state, number)

	scores := make([]PlayerScore, 0, len(state))
	for _, player := range players {
		if !player.Participant() {
			continue
		}
		next, changed := result.Players[player.ID]
		if !changed {
			next = player.scoringState()
		}
		idle := player.IdleRounds
		if player.Type == PlayerHuman {
			if answered[player.ID] {
				idle = 0
			} else {
				idle++
			}
		}
		scores = append(scores, PlayerScore{
			PlayerID:    player.ID,
			Score:       next.Score,
			HumorRating: next.HumorRating,
			WinStreak:   next.WinStreak,
			IdleRounds:  idle,
		})
	}
	if err := p.store.ApplyRoundScores(ctx, gameID, result.Points, scores); err != nil {
		return fmt.Errorf("score round %d: apply: %w", number, err)
	}

	roundID := view.Round.ID
	recordEvent(ctx, p.store, p.logger, Event{
		GameID:  gameID,
		RoundID: &roundID,
		Type:    eventRoundScored,
		Payload: EventPayload{RoundNumber: number, Points: result.Points, UpsetResponseIDs: result.UpsetResponseIDs},
	})
	p.logger.Info("round scored", "game_id", gameID, "round", number, "prompts", len(inputs), "upsets", len(result.UpsetResponseIDs))
	p.notifier.Publish(ctx, gameID)
	return nil
}

// AdvanceGame leaves ROUND_RESULTS for the next round or the final results.
func (p *PhaseController) AdvanceGame(ctx context.Context, gameID uint) (Claim, error) {
	game, ok, err := p.loadGame(ctx, gameID)
	if err != nil || !ok || game.Status != StatusRoundResults {
		return NotClaimed, err
	}
	if game.CurrentRound < game.TotalRounds {
		return p.StartRound(ctx, gameID, game.CurrentRound+1)
	}
	return p.claim(ctx, game,
		GameCondition{Status: StatusRoundResults, CurrentRound: intPtr(game.CurrentRound)},
		GameUpdate{Status: StatusFinalResults, SetDeadline: true})
}

// EndEarly finalizes the game from any non-terminal state. Writing and voting
// rounds are completed with placeholders and scored on what was submitted.
func (p *PhaseController) EndEarly(ctx context.Context, gameID uint) (Claim, error) {
	game, ok, err := p.loadGame(ctx, gameID)
	if err != nil || !ok || game.Status.Terminal() {
		return NotClaimed, err
	}
	from := game.Status
	claim, err := p.claim(ctx, game,
		GameCondition{Status: from, CurrentRound: intPtr(game.CurrentRound)},
		GameUpdate{Status: StatusFinalResults, VotingRevealing: boolPtr(false), SetDeadline: true})
	if err != nil || claim == NotClaimed {
		return claim, err
	}

	switch from {
	case StatusWriting:
		if _, err := p.fillMissingResponses(ctx, game, failReasonEndedEarly, nil); err != nil {
			return Claimed, err
		}
		if err := p.scoreRound(ctx, gameID, game.CurrentRound); err != nil {
			return Claimed, err
		}
	case StatusVoting:
		if _, err := p.fillAbstainVotes(ctx, game, failReasonEndedEarly, false); err != nil {
			return Claimed, err
		}
		if err := p.scoreRound(ctx, gameID, game.CurrentRound); err != nil {
			return Claimed, err
		}
	}
	recordEvent(ctx, p.store, p.logger, Event{
		GameID:  gameID,
		Type:    eventGameEndedEarly,
		Payload: EventPayload{From: from, To: StatusFinalResults, RoundNumber: game.CurrentRound},
	})
	return Claimed, nil
}

// CheckAndEnforceDeadline is called on every inbound request. It does nothing
// until the phase deadline has passed, then dispatches the due transition.
func (p *PhaseController) CheckAndEnforceDeadline(ctx context.Context, gameID uint) (Claim, error) {
	game, ok, err := p.loadGame(ctx, gameID)
	if err != nil || !ok {
		return NotClaimed, err
	}
	if game.PhaseDeadline == nil || p.clock.Now().Before(*game.PhaseDeadline) {
		return NotClaimed, nil
	}
	return p.dispatch(ctx, game, failReasonDeadline)
}

// ForceAdvancePhase runs the same dispatch as an expired deadline.
func (p *PhaseController) ForceAdvancePhase(ctx context.Context, gameID uint) (Claim, error) {
	game, ok, err := p.loadGame(ctx, gameID)
	if err != nil || !ok {
		return NotClaimed, err
	}
	if game.Status == StatusLobby {
		return p.StartRound(ctx, gameID, 1)
	}
	return p.dispatch(ctx, game, failReasonDeadline)
}

func (p *PhaseController) dispatch(ctx context.Context, game Game, reason string) (Claim, error) {
	switch game.Status {
	case StatusWriting:
		if _, err := p.fillMissingResponses(ctx, game, reason, writingGate(game.CurrentRound)); err != nil {
			return NotClaimed, err
		}
		return p.StartVoting(ctx, game.ID)
	case StatusVoting:
		if game.VotingRevealing {
			return p.AdvanceToNextPrompt(ctx, game.ID, game.VotingPromptIndex)
		}
		if _, err := p.fillAbstainVotes(ctx, game, reason, true); err != nil {
			return NotClaimed, err
		}
		return p.RevealCurrentPrompt(ctx, game.ID)
	case StatusRoundResults:
		return p.AdvanceGame(ctx, game.ID)
	default:
		return NotClaimed, nil
	}
}

// CheckQuorum moves on early once nobody is left to wait for: every writing
// slot is filled (disconnected holdouts get placeholders), or every active
// eligible voter has voted on the current matchup.
func (p *PhaseController) CheckQuorum(ctx context.Context, gameID uint) (Claim, error) {
	game, ok, err := p.loadGame(ctx, gameID)
	if err != nil || !ok {
		return NotClaimed, err
	}
	switch game.Status {
	case StatusWriting:
		view, err := p.store.LoadRound(ctx, gameID, game.CurrentRound)
		if errors.Is(err, ErrNotFound) {
			return NotClaimed, nil
		}
		if err != nil {
			return NotClaimed, fmt.Errorf("check quorum: %w", err)
		}
		players, err := p.store.ListPlayers(ctx, gameID)
		if err != nil {
			return NotClaimed, fmt.Errorf("check quorum: %w", err)
		}
		byID := playersByID(players)
		for _, slot := range missingResponses(view) {
			author, ok := byID[slot.PlayerID]
			if !ok {
				continue
			}
			if author.Type != PlayerHuman || author.Active() {
				return NotClaimed, nil
			}
		}
		if _, err := p.fillMissingResponses(ctx, game, "disconnected", writingGate(game.CurrentRound)); err != nil {
			return NotClaimed, err
		}
		return p.StartVoting(ctx, gameID)
	case StatusVoting:
		return p.revealIfTallied(ctx, gameID)
	default:
		return NotClaimed, nil
	}
}

func (p *PhaseController) revealIfTallied(ctx context.Context, gameID uint) (Claim, error) {
	game, ok, err := p.loadGame(ctx, gameID)
	if err != nil || !ok || game.Status != StatusVoting || game.VotingRevealing {
		return NotClaimed, err
	}
	view, err := p.store.LoadRound(ctx, gameID, game.CurrentRound)
	if errors.Is(err, ErrNotFound) {
		return NotClaimed, nil
	}
	if err != nil {
		return NotClaimed, fmt.Errorf("check tally: %w", err)
	}
	matchup, ok := currentMatchup(game, view)
	if !ok {
		return NotClaimed, nil
	}
	players, err := p.store.ListPlayers(ctx, gameID)
	if err != nil {
		return NotClaimed, fmt.Errorf("check tally: %w", err)
	}
	if !tallyComplete(matchup, players) {
		return NotClaimed, nil
	}
	return p.RevealCurrentPrompt(ctx, gameID)
}

// Close stops pending deadline nudges and waits for running ones.
func (p *PhaseController) Close() {
	p.timersMu.Lock()
	p.closed = true
	for id := range p.timers {
		p.stopNudgeLocked(id)
	}
	p.timersMu.Unlock()
	p.nudges.Wait()
}
