package server

import "errors"

// Submission errors are returned by the request-validation boundary before a
// write reaches the store.
var (
	ErrNotEnoughPlayers  = errors.New("at least two players are required")
	ErrWrongPhase        = errors.New("not accepting this submission right now")
	ErrPlayerNotFound    = errors.New("player not found")
	ErrPromptNotFound    = errors.New("prompt not found")
	ErrNotAssigned       = errors.New("prompt is not assigned to this player")
	ErrNotCurrentMatchup = errors.New("prompt is not the current matchup")
	ErrMatchupDecided    = errors.New("matchup was decided by forfeit")
	ErrNotEligible       = errors.New("player cannot vote on this matchup")
	ErrSelfVote          = errors.New("players cannot vote for their own answer")
	ErrInvalidChoice     = errors.New("response does not belong to this matchup")
	ErrAlreadySubmitted  = errors.New("already submitted")
	ErrControlDenied     = errors.New("only a human player of this game can take control")
)
