package server

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an insert hits a uniqueness constraint.
	ErrConflict = errors.New("conflict")
	// ErrPhaseClosed is returned when a gated insert finds the game has moved on.
	ErrPhaseClosed = errors.New("phase closed")
)

// GameCondition is the expected state of a game row for a conditional update.
// Status is always checked; nil fields are not.
type GameCondition struct {
	Status            GameStatus
	CurrentRound      *int
	VotingPromptIndex *int
	VotingRevealing   *bool
}

// GameUpdate lists the columns a conditional update writes. Version is always
// incremented. PhaseDeadline is written only when SetDeadline is true.
type GameUpdate struct {
	Status            GameStatus
	CurrentRound      *int
	VotingPromptIndex *int
	VotingRevealing   *bool
	SetDeadline       bool
	PhaseDeadline     *time.Time
}

// WriteGate is the game state a response or vote insert requires. The check
// and the insert are one atomic step.
type WriteGate struct {
	Status GameStatus
	Round  int
	// PromptIndex admits a vote while the matchup at that votable index is
	// still ahead of the reveal, or current and unrevealed.
	PromptIndex *int
}

func writingGate(round int) *WriteGate {
	return &WriteGate{Status: StatusWriting, Round: round}
}

func votingGate(round, index int) *WriteGate {
	return &WriteGate{Status: StatusVoting, Round: round, PromptIndex: intPtr(index)}
}

func (g WriteGate) admits(game *Game) bool {
	if game.Status != g.Status || game.CurrentRound != g.Round {
		return false
	}
	if g.PromptIndex == nil {
		return true
	}
	index := *g.PromptIndex
	if game.VotingPromptIndex < index {
		return true
	}
	return game.VotingPromptIndex == index && !game.VotingRevealing
}

func (c GameCondition) matches(game *Game) bool {
	if game.Status != c.Status {
		return false
	}
	if c.CurrentRound != nil && game.CurrentRound != *c.CurrentRound {
		return false
	}
	if c.VotingPromptIndex != nil && game.VotingPromptIndex != *c.VotingPromptIndex {
		return false
	}
	if c.VotingRevealing != nil && game.VotingRevealing != *c.VotingRevealing {
		return false
	}
	return true
}

func (u GameUpdate) apply(game *Game) {
	if u.Status != "" {
		game.Status = u.Status
	}
	if u.CurrentRound != nil {
		game.CurrentRound = *u.CurrentRound
	}
	if u.VotingPromptIndex != nil {
		game.VotingPromptIndex = *u.VotingPromptIndex
	}
	if u.VotingRevealing != nil {
		game.VotingRevealing = *u.VotingRevealing
	}
	if u.SetDeadline {
		game.PhaseDeadline = copyTime(u.PhaseDeadline)
	}
	game.Version++
}

// Store is the persistence contract the game core relies on. Conditional
// methods report whether the expected state matched; they never read and
// write in separate steps.
type Store interface {
	CreateGame(ctx context.Context, game Game, players []Player) (Game, []Player, error)
	GetGame(ctx context.Context, gameID uint) (Game, error)
	AddPlayer(ctx context.Context, player Player) (Player, error)
	ListPlayers(ctx context.Context, gameID uint) ([]Player, error)

	TransitionGame(ctx context.Context, gameID uint, cond GameCondition, update GameUpdate) (bool, error)
	// StartRound inserts round number with its prompts and applies the
	// conditional update in one transaction. A duplicate round is ErrConflict.
	StartRound(ctx context.Context, gameID uint, number int, prompts []Prompt, cond GameCondition, update GameUpdate) (bool, error)
	LoadRound(ctx context.Context, gameID uint, number int) (RoundView, error)

	// InsertResponse and InsertVote return ErrPhaseClosed when gate is set
	// and no longer admits the write. A nil gate writes unconditionally.
	InsertResponse(ctx context.Context, gameID uint, response Response, gate *WriteGate) (Response, error)
	InsertVote(ctx context.Context, gameID uint, vote Vote, gate *WriteGate) (Vote, error)
	PlayerAnswers(ctx context.Context, gameID, playerID uint) ([]string, error)
	PickPromptTexts(ctx context.Context, gameID uint, count int) ([]string, error)

	// AddUsage adds delta to the per-model row and the game totals, bumping
	// the version since the totals are part of the snapshot.
	AddUsage(ctx context.Context, gameID uint, delta ModelUsage) error
	ListUsage(ctx context.Context, gameID uint) ([]ModelUsage, error)

	// TouchPlayer records a sighting and reports whether the player flipped
	// from DISCONNECTED back to ACTIVE.
	TouchPlayer(ctx context.Context, gameID, playerID uint, at time.Time) (bool, error)
	// MarkDisconnected flags ACTIVE humans last seen before cutoff.
	MarkDisconnected(ctx context.Context, gameID uint, cutoff time.Time) (int, error)
	// PromoteHost moves the host seat from `from` (nil: no host) to `to`.
	PromoteHost(ctx context.Context, gameID uint, from *uint, to uint) (bool, error)
	RotateHostToken(ctx context.Context, gameID uint, oldHash, newHash string) (bool, error)

	ApplyRoundScores(ctx context.Context, gameID uint, points map[uint]int, players []PlayerScore) error
	AppendEvent(ctx context.Context, event Event) error
	ListEvents(ctx context.Context, gameID uint) ([]Event, error)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	value := *t
	return &value
}

func copyUint(v *uint) *uint {
	if v == nil {
		return nil
	}
	value := *v
	return &value
}

func sameHost(current, expected *uint) bool {
	if current == nil || expected == nil {
		return current == nil && expected == nil
	}
	return *current == *expected
}

func intPtr(v int) *int { return &v }

func boolPtr(v bool) *bool { return &v }

func uintPtr(v uint) *uint { return &v }
