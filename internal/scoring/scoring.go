// Package scoring turns one matchup's responses and votes into points,
// humor-rating changes and win streaks. It performs no I/O; identical inputs
// always produce identical outputs.
package scoring

import (
	"math"
	"sort"
)

// ForfeitMarker is stored as a response's text when its author never answered.
const ForfeitMarker = "[[FORFEIT]]"

const (
	DefaultHumorRating = 1.0
	MinHumorRating     = 0.5

	humanVoteWeight   = 1.5
	aiVoteWeight      = 1.0
	pointsPerPower    = 50
	winRatingDelta    = 0.2
	lossRatingDelta   = 0.1
	flawlessBonusRate = 0.25
	upsetDivisor      = 10
	upsetCapPerRound  = 500
)

type Response struct {
	ID       uint
	PlayerID uint
	Text     string
}

func (r Response) Forfeit() bool {
	return r.Text == ForfeitMarker
}

// Vote is one cast ballot. A nil ResponseID is an abstention.
type Vote struct {
	VoterID    uint
	Human      bool
	ResponseID *uint
}

type Prompt struct {
	ID        uint
	Responses []Response
	Votes     []Vote
	// EligibleVoters counts players who did not author a response to this prompt.
	EligibleVoters int
}

type PlayerState struct {
	Score       int
	HumorRating float64
	WinStreak   int
}

func DefaultPlayerState() PlayerState {
	return PlayerState{HumorRating: DefaultHumorRating}
}

type PromptResult struct {
	PromptID uint
	// Points holds an entry for every response of the prompt, zero for non-winners.
	Points           map[uint]int
	VotePower        map[uint]float64
	WinnerResponseID uint
	HasWinner        bool
	Forfeit          bool
	Flawless         bool
	UpsetBonus       int
}

type RoundResult struct {
	Prompts          []PromptResult
	Points           map[uint]int
	Players          map[uint]PlayerState
	UpsetResponseIDs []uint
}

// RoundMultiplier doubles the stakes every round: 1, 2, 4, ...
func RoundMultiplier(round int) float64 {
	if round <= 1 {
		return 1
	}
	return math.Exp2(float64(round - 1))
}

// StreakMultiplier is read from the winner's streak before the prompt is scored.
func StreakMultiplier(streak int) float64 {
	switch {
	case streak >= 4:
		return 2.0
	case streak == 3:
		return 1.7
	case streak == 2:
		return 1.3
	default:
		return 1.0
	}
}

func VoteWeight(humorRating float64, human bool) float64 {
	if human {
		return humorRating * humanVoteWeight
	}
	return humorRating * aiVoteWeight
}

// ScorePrompt scores a single prompt against the given player states. The
// input map is not modified; the returned map holds the new state of every
// player whose rating, streak or score changed.
func ScorePrompt(prompt Prompt, players map[uint]PlayerState, round int) (PromptResult, map[uint]PlayerState) {
	result := PromptResult{
		PromptID:  prompt.ID,
		Points:    make(map[uint]int, len(prompt.Responses)),
		VotePower: make(map[uint]float64, len(prompt.Responses)),
	}
	for _, response := range prompt.Responses {
		result.Points[response.ID] = 0
		result.VotePower[response.ID] = 0
	}
	updates := map[uint]PlayerState{}
	if len(prompt.Responses) == 0 {
		return result, updates
	}

	standing := make([]Response, 0, len(prompt.Responses))
	forfeited := make([]Response, 0)
	for _, response := range prompt.Responses {
		if response.Forfeit() {
			forfeited = append(forfeited, response)
			continue
		}
		standing = append(standing, response)
	}

	var winner Response
	var losers []Response
	castVotes := 0
	winnerVotes := 0

	switch {
	case len(standing) == 0:
		return result, updates
	case len(forfeited) > 0 && len(standing) == 1:
		winner = standing[0]
		losers = forfeited
		eligible := prompt.EligibleVoters
		if eligible < 1 {
			eligible = 1
		}
		result.Forfeit = true
		result.VotePower[winner.ID] = VoteWeight(DefaultHumorRating, true) * float64(eligible)
		castVotes = eligible
		winnerVotes = eligible
	default:
		ids := make(map[uint]struct{}, len(standing))
		for _, response := range standing {
			ids[response.ID] = struct{}{}
		}
		for _, vote := range prompt.Votes {
			if vote.ResponseID == nil {
				continue
			}
			if _, ok := ids[*vote.ResponseID]; !ok {
				continue
			}
			castVotes++
			result.VotePower[*vote.ResponseID] += VoteWeight(stateOf(players, vote.VoterID).HumorRating, vote.Human)
		}
		best := -1.0
		tied := false
		for _, response := range standing {
			power := result.VotePower[response.ID]
			switch {
			case power > best:
				best = power
				winner = response
				tied = false
			case power == best:
				tied = true
			}
		}
		if tied || best <= 0 {
			return result, updates
		}
		for _, response := range prompt.Responses {
			if response.ID != winner.ID {
				losers = append(losers, response)
			}
		}
		for _, vote := range prompt.Votes {
			if vote.ResponseID != nil && *vote.ResponseID == winner.ID {
				winnerVotes++
			}
		}
	}

	result.HasWinner = true
	result.WinnerResponseID = winner.ID

	winnerState := stateOf(players, winner.PlayerID)
	roundMultiplier := RoundMultiplier(round)
	power := result.VotePower[winner.ID]
	points := int(math.Floor(power * power * pointsPerPower * roundMultiplier * StreakMultiplier(winnerState.WinStreak)))
	if castVotes > 0 && winnerVotes == castVotes {
		result.Flawless = true
		points += int(math.Floor(float64(points) * flawlessBonusRate))
	}

	topLoserScore := math.MinInt
	for _, loser := range losers {
		if score := stateOf(players, loser.PlayerID).Score; score > topLoserScore {
			topLoserScore = score
		}
	}
	if topLoserScore != math.MinInt && winnerState.Score < topLoserScore {
		bonus := (topLoserScore - winnerState.Score) / upsetDivisor
		if limit := int(upsetCapPerRound * roundMultiplier); bonus > limit {
			bonus = limit
		}
		result.UpsetBonus = bonus
		points += bonus
	}
	result.Points[winner.ID] = points

	winnerState.Score += points
	winnerState.HumorRating = clampRating(winnerState.HumorRating + winRatingDelta)
	winnerState.WinStreak++
	updates[winner.PlayerID] = winnerState
	for _, loser := range losers {
		if loser.PlayerID == winner.PlayerID {
			continue
		}
		state, seen := updates[loser.PlayerID]
		if !seen {
			state = stateOf(players, loser.PlayerID)
		}
		state.HumorRating = clampRating(state.HumorRating - lossRatingDelta)
		state.WinStreak = 0
		updates[loser.PlayerID] = state
	}
	return result, updates
}

// ScoreRound scores prompts in ascending id order, folding each prompt's
// state changes into the snapshot before the next prompt reads it.
func ScoreRound(prompts []Prompt, players map[uint]PlayerState, round int) RoundResult {
	ordered := make([]Prompt, len(prompts))
	copy(ordered, prompts)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	state := make(map[uint]PlayerState, len(players))
	for id, player := range players {
		state[id] = player
	}
	result := RoundResult{
		Prompts: make([]PromptResult, 0, len(ordered)),
		Points:  map[uint]int{},
		Players: map[uint]PlayerState{},
	}
	for _, prompt := range ordered {
		promptResult, updates := ScorePrompt(prompt, state, round)
		result.Prompts = append(result.Prompts, promptResult)
		for responseID, points := range promptResult.Points {
			result.Points[responseID] = points
		}
		if promptResult.UpsetBonus > 0 {
			result.UpsetResponseIDs = append(result.UpsetResponseIDs, promptResult.WinnerResponseID)
		}
		for playerID, updated := range updates {
			state[playerID] = updated
			result.Players[playerID] = updated
		}
	}
	return result
}

func stateOf(players map[uint]PlayerState, playerID uint) PlayerState {
	if state, ok := players[playerID]; ok {
		return state
	}
	return DefaultPlayerState()
}

func clampRating(value float64) float64 {
	if value < MinHumorRating {
		return MinHumorRating
	}
	return value
}
