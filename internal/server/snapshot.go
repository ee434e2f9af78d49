package server

import (
	"time"
)

type Snapshot struct {
	GameID            uint              `json:"game_id"`
	JoinCode          string            `json:"join_code"`
	Status            GameStatus        `json:"status"`
	Version           int64             `json:"version"`
	PhaseDeadline     *time.Time        `json:"phase_deadline"`
	ServerTime        time.Time         `json:"server_time"`
	CurrentRound      int               `json:"current_round"`
	TotalRounds       int               `json:"total_rounds"`
	VotingPromptIndex int               `json:"voting_prompt_index"`
	VotingRevealing   bool              `json:"voting_revealing"`
	HostPlayerID      *uint             `json:"host_player_id"`
	Players           []PlayerSnapshot  `json:"players"`
	Prompts           []PromptSnapshot  `json:"prompts,omitempty"`
	Matchup           *MatchupSnapshot  `json:"matchup,omitempty"`
	MatchupCount      int               `json:"matchup_count"`
	Results           []MatchupSnapshot `json:"results,omitempty"`
	Usage             UsageSnapshot     `json:"usage"`
}

type PlayerSnapshot struct {
	ID            uint          `json:"id"`
	Name          string        `json:"name"`
	Type          PlayerType    `json:"type"`
	Score         int           `json:"score"`
	HumorRating   float64       `json:"humor_rating"`
	WinStreak     int           `json:"win_streak"`
	Participation Participation `json:"participation"`
	IsHost        bool          `json:"is_host"`
}

// PromptSnapshot is a writing-phase prompt. Submitted lists who answered,
// never what they wrote.
type PromptSnapshot struct {
	ID        uint   `json:"id"`
	Text      string `json:"text"`
	Assigned  []uint `json:"assigned"`
	Submitted []uint `json:"submitted"`
}

// MatchupSnapshot hides authors and tallies until the matchup is revealed.
type MatchupSnapshot struct {
	PromptID  uint               `json:"prompt_id"`
	Text      string             `json:"text"`
	Revealed  bool               `json:"revealed"`
	Forfeit   bool               `json:"forfeit"`
	VoteCount int                `json:"vote_count"`
	Responses []ResponseSnapshot `json:"responses"`
}

type ResponseSnapshot struct {
	ID       uint   `json:"id"`
	Text     string `json:"text"`
	PlayerID *uint  `json:"player_id,omitempty"`
	Votes    *int   `json:"votes,omitempty"`
	Points   *int   `json:"points,omitempty"`
}

type UsageSnapshot struct {
	InputTokens  int64        `json:"input_tokens"`
	OutputTokens int64        `json:"output_tokens"`
	CostMicros   int64        `json:"cost_micros"`
	Calls        int64        `json:"calls"`
	Failures     int64        `json:"failures"`
	Models       []ModelUsage `json:"models"`
}

// buildSnapshot renders the presentation view of a game. view is nil before
// the first round.
func buildSnapshot(game Game, players []Player, view *RoundView, usage []ModelUsage, now time.Time) Snapshot {
	snap := Snapshot{
		GameID:            game.ID,
		JoinCode:          game.JoinCode,
		Status:            game.Status,
		Version:           game.Version,
		PhaseDeadline:     copyTime(game.PhaseDeadline),
		ServerTime:        now,
		CurrentRound:      game.CurrentRound,
		TotalRounds:       game.TotalRounds,
		VotingPromptIndex: game.VotingPromptIndex,
		VotingRevealing:   game.VotingRevealing,
		HostPlayerID:      copyUint(game.HostPlayerID),
		Players:           make([]PlayerSnapshot, 0, len(players)),
		Usage: UsageSnapshot{
			InputTokens:  game.Usage.InputTokens,
			OutputTokens: game.Usage.OutputTokens,
			CostMicros:   game.Usage.CostMicros,
			Calls:        game.Usage.Calls,
			Failures:     game.Usage.Failures,
			Models:       usage,
		},
	}
	for _, player := range players {
		snap.Players = append(snap.Players, PlayerSnapshot{
			ID:            player.ID,
			Name:          player.Name,
			Type:          player.Type,
			Score:         player.Score,
			HumorRating:   player.HumorRating,
			WinStreak:     player.WinStreak,
			Participation: player.Participation,
			IsHost:        game.HostPlayerID != nil && *game.HostPlayerID == player.ID,
		})
	}
	if view == nil {
		return snap
	}

	votable := votablePrompts(*view)
	snap.MatchupCount = len(votable)
	switch game.Status {
	case StatusWriting:
		for _, prompt := range view.Prompts {
			entry := PromptSnapshot{
				ID:        prompt.Prompt.ID,
				Text:      prompt.Prompt.Text,
				Assigned:  append([]uint(nil), prompt.Prompt.Assigned...),
				Submitted: make([]uint, 0, len(prompt.Responses)),
			}
			for _, response := range prompt.Responses {
				entry.Submitted = append(entry.Submitted, response.PlayerID)
			}
			snap.Prompts = append(snap.Prompts, entry)
		}
	case StatusVoting:
		if matchup, ok := currentMatchup(game, *view); ok {
			entry := matchupSnapshot(matchup, game.VotingRevealing, false)
			snap.Matchup = &entry
		}
	case StatusRoundResults, StatusFinalResults:
		for _, prompt := range votable {
			snap.Results = append(snap.Results, matchupSnapshot(prompt, true, true))
		}
	}
	return snap
}

func matchupSnapshot(prompt PromptView, revealed, withPoints bool) MatchupSnapshot {
	entry := MatchupSnapshot{
		PromptID:  prompt.Prompt.ID,
		Text:      prompt.Prompt.Text,
		Revealed:  revealed,
		Forfeit:   forfeitMatchup(prompt),
		VoteCount: len(prompt.Votes),
		Responses: make([]ResponseSnapshot, 0, len(prompt.Responses)),
	}
	tally := make(map[uint]int, len(prompt.Responses))
	for _, vote := range prompt.Votes {
		if vote.ResponseID != nil {
			tally[*vote.ResponseID]++
		}
	}
	for _, response := range prompt.Responses {
		item := ResponseSnapshot{ID: response.ID, Text: response.Text}
		if revealed {
			author := response.PlayerID
			votes := tally[response.ID]
			item.PlayerID = &author
			item.Votes = &votes
		}
		if withPoints {
			points := response.PointsEarned
			item.Points = &points
		}
		entry.Responses = append(entry.Responses, item)
	}
	return entry
}
