package server

import (
	"time"

	"quip-clash/internal/scoring"
)

type GameStatus string

const (
	StatusLobby        GameStatus = "LOBBY"
	StatusWriting      GameStatus = "WRITING"
	StatusVoting       GameStatus = "VOTING"
	StatusRoundResults GameStatus = "ROUND_RESULTS"
	StatusFinalResults GameStatus = "FINAL_RESULTS"
)

func (s GameStatus) Terminal() bool {
	return s == StatusFinalResults
}

type PlayerType string

const (
	PlayerHuman     PlayerType = "HUMAN"
	PlayerAI        PlayerType = "AI"
	PlayerSpectator PlayerType = "SPECTATOR"
)

type Participation string

const (
	ParticipationActive       Participation = "ACTIVE"
	ParticipationDisconnected Participation = "DISCONNECTED"
)

const (
	failReasonTimeout       = "timeout"
	failReasonProviderError = "provider_error"
	failReasonInvalidChoice = "invalid_choice"
	failReasonDeadline      = "deadline"
	failReasonEndedEarly    = "ended_early"
)

// Claim reports whether this call performed a conditional transition.
type Claim int

const (
	NotClaimed Claim = iota
	Claimed
)

func (c Claim) String() string {
	if c == Claimed {
		return "claimed"
	}
	return "not_claimed"
}

type UsageTotals struct {
	InputTokens  int64
	OutputTokens int64
	CostMicros   int64
	Calls        int64
	Failures     int64
}

type Game struct {
	ID                uint
	JoinCode          string
	Status            GameStatus
	Version           int64
	CurrentRound      int
	TotalRounds       int
	PhaseDeadline     *time.Time
	VotingPromptIndex int
	VotingRevealing   bool
	HostPlayerID      *uint
	HostTokenHash     string
	TimersDisabled    bool
	Usage             UsageTotals
	CreatedAt         time.Time
}

type Player struct {
	ID            uint
	GameID        uint
	Name          string
	Type          PlayerType
	Score         int
	HumorRating   float64
	WinStreak     int
	IdleRounds    int
	Participation Participation
	LastSeen      time.Time
	ModelID       string
}

// Participant reports whether the player writes answers and votes.
func (p Player) Participant() bool {
	return p.Type == PlayerHuman || p.Type == PlayerAI
}

func (p Player) Active() bool {
	return p.Participation != ParticipationDisconnected
}

func (p Player) scoringState() scoring.PlayerState {
	return scoring.PlayerState{Score: p.Score, HumorRating: p.HumorRating, WinStreak: p.WinStreak}
}

type Round struct {
	ID     uint
	GameID uint
	Number int
}

type Prompt struct {
	ID       uint
	RoundID  uint
	Text     string
	Assigned []uint
}

func (p Prompt) AssignedTo(playerID uint) bool {
	for _, id := range p.Assigned {
		if id == playerID {
			return true
		}
	}
	return false
}

type Response struct {
	ID           uint
	PromptID     uint
	PlayerID     uint
	Text         string
	PointsEarned int
}

func (r Response) Forfeit() bool {
	return r.Text == scoring.ForfeitMarker
}

// Vote with a nil ResponseID is an abstention.
type Vote struct {
	ID         uint
	PromptID   uint
	VoterID    uint
	ResponseID *uint
	FailReason string
}

type ModelUsage struct {
	GameID       uint   `json:"-"`
	ModelID      string `json:"model_id"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	CostMicros   int64  `json:"cost_micros"`
	Calls        int64  `json:"calls"`
	Failures     int64  `json:"failures"`
}

// PlayerScore is the post-round state written back for one player.
type PlayerScore struct {
	PlayerID    uint
	Score       int
	HumorRating float64
	WinStreak   int
	IdleRounds  int
}

type Event struct {
	ID        uint         `json:"id"`
	GameID    uint         `json:"game_id"`
	RoundID   *uint        `json:"round_id,omitempty"`
	PlayerID  *uint        `json:"player_id,omitempty"`
	Type      string       `json:"type"`
	Payload   EventPayload `json:"payload"`
	CreatedAt time.Time    `json:"created_at"`
}

// RoundView is one round with all of its prompts, responses and votes.
type RoundView struct {
	Round   Round
	Prompts []PromptView
}

type PromptView struct {
	Prompt    Prompt
	Responses []Response
	Votes     []Vote
}
