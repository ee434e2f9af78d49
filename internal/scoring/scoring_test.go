package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ref(id uint) *uint { return &id }

func twoResponses(textA, textB string) []Response {
	return []Response{
		{ID: 10, PlayerID: 1, Text: textA},
		{ID: 11, PlayerID: 2, Text: textB},
	}
}

func TestForfeitAwardsSyntheticPower(t *testing.T) {
	prompt := Prompt{ID: 1, Responses: twoResponses("ok", ForfeitMarker), EligibleVoters: 3}

	result, updates := ScorePrompt(prompt, map[uint]PlayerState{}, 1)

	require.True(t, result.HasWinner)
	assert.True(t, result.Forfeit)
	assert.True(t, result.Flawless)
	assert.Equal(t, uint(10), result.WinnerResponseID)
	assert.InDelta(t, 4.5, result.VotePower[10], 1e-9)
	assert.Equal(t, 1265, result.Points[10])
	assert.Equal(t, 0, result.Points[11])
	assert.Equal(t, 1265, updates[1].Score)
	assert.Equal(t, 1, updates[1].WinStreak)
	assert.InDelta(t, 1.2, updates[1].HumorRating, 1e-9)
	assert.InDelta(t, 0.9, updates[2].HumorRating, 1e-9)
}

func TestForfeitWithoutEligibleVotersStillPays(t *testing.T) {
	prompt := Prompt{ID: 1, Responses: twoResponses("banana", ForfeitMarker), EligibleVoters: 0}

	result, _ := ScorePrompt(prompt, nil, 1)

	require.True(t, result.HasWinner)
	assert.Equal(t, 140, result.Points[10])
}

func TestDoubleForfeitHasNoWinner(t *testing.T) {
	prompt := Prompt{ID: 1, Responses: twoResponses(ForfeitMarker, ForfeitMarker), EligibleVoters: 4}
	players := map[uint]PlayerState{1: {Score: 5, HumorRating: 1, WinStreak: 2}, 2: {Score: 7, HumorRating: 1}}

	result, updates := ScorePrompt(prompt, players, 2)

	assert.False(t, result.HasWinner)
	assert.Empty(t, updates)
	assert.Equal(t, map[uint]int{10: 0, 11: 0}, result.Points)
}

func TestUnanimousHumanVoteMatchesForfeit(t *testing.T) {
	prompt := Prompt{
		ID:        1,
		Responses: twoResponses("a", "b"),
		Votes: []Vote{
			{VoterID: 3, Human: true, ResponseID: ref(10)},
			{VoterID: 4, Human: true, ResponseID: ref(10)},
			{VoterID: 5, Human: true, ResponseID: ref(10)},
		},
		EligibleVoters: 3,
	}

	result, _ := ScorePrompt(prompt, map[uint]PlayerState{}, 1)

	assert.True(t, result.Flawless)
	assert.Equal(t, 1265, result.Points[10])
	assert.Equal(t, 0, result.Points[11])
}

func TestUpsetBonus(t *testing.T) {
	prompt := Prompt{
		ID:        1,
		Responses: twoResponses("a", "b"),
		Votes: []Vote{
			{VoterID: 3, Human: true, ResponseID: ref(10)},
			{VoterID: 4, Human: false, ResponseID: ref(11)},
		},
	}
	players := map[uint]PlayerState{
		1: {Score: 100, HumorRating: 1},
		2: {Score: 1000, HumorRating: 1},
	}

	result, updates := ScorePrompt(prompt, players, 1)

	// 1.5^2 * 50 = 112.5 -> 112, not flawless, plus floor(900 * 0.10)
	require.True(t, result.HasWinner)
	assert.False(t, result.Flawless)
	assert.Equal(t, 90, result.UpsetBonus)
	assert.Equal(t, 112+90, result.Points[10])
	assert.Equal(t, 100+112+90, updates[1].Score)
}

func TestUpsetBonusIsCapped(t *testing.T) {
	prompt := Prompt{
		ID:        1,
		Responses: twoResponses("a", "b"),
		Votes:     []Vote{{VoterID: 3, Human: true, ResponseID: ref(10)}},
	}
	players := map[uint]PlayerState{
		1: {Score: 0, HumorRating: 1},
		2: {Score: 100000, HumorRating: 1},
	}

	result, _ := ScorePrompt(prompt, players, 2)

	assert.Equal(t, 1000, result.UpsetBonus)
}

func TestExactTieChangesNothing(t *testing.T) {
	prompt := Prompt{
		ID:        1,
		Responses: twoResponses("a", "b"),
		Votes: []Vote{
			{VoterID: 3, Human: true, ResponseID: ref(10)},
			{VoterID: 4, Human: true, ResponseID: ref(11)},
			{VoterID: 5, Human: true, ResponseID: nil},
		},
	}
	players := map[uint]PlayerState{
		1: {Score: 10, HumorRating: 1.4, WinStreak: 3},
		2: {Score: 20, HumorRating: 0.8, WinStreak: 1},
	}

	result, updates := ScorePrompt(prompt, players, 3)

	assert.False(t, result.HasWinner)
	assert.Empty(t, updates)
	assert.Equal(t, 0, result.Points[10])
	assert.Equal(t, 0, result.Points[11])
}

func TestAbstentionsDoNotBreakFlawless(t *testing.T) {
	prompt := Prompt{
		ID:        1,
		Responses: twoResponses("a", "b"),
		Votes: []Vote{
			{VoterID: 3, Human: false, ResponseID: ref(11)},
			{VoterID: 4, Human: false, ResponseID: nil},
		},
	}

	result, _ := ScorePrompt(prompt, map[uint]PlayerState{}, 1)

	require.True(t, result.HasWinner)
	assert.Equal(t, uint(11), result.WinnerResponseID)
	assert.True(t, result.Flawless)
	// 1.0^2 * 50 = 50, +25%
	assert.Equal(t, 62, result.Points[11])
}

func TestStreakAndRoundMultipliers(t *testing.T) {
	assert.Equal(t, 1.0, StreakMultiplier(0))
	assert.Equal(t, 1.0, StreakMultiplier(1))
	assert.Equal(t, 1.3, StreakMultiplier(2))
	assert.Equal(t, 1.7, StreakMultiplier(3))
	assert.Equal(t, 2.0, StreakMultiplier(4))
	assert.Equal(t, 2.0, StreakMultiplier(9))
	assert.Equal(t, 1.0, RoundMultiplier(1))
	assert.Equal(t, 4.0, RoundMultiplier(3))

	prompt := Prompt{ID: 1, Responses: twoResponses("a", ForfeitMarker), EligibleVoters: 2}
	players := map[uint]PlayerState{1: {HumorRating: 1, WinStreak: 2}}

	result, updates := ScorePrompt(prompt, players, 2)

	// 3.0^2 * 50 * 2 * 1.3 = 1170, +25% = 1462
	assert.Equal(t, 1462, result.Points[10])
	assert.Equal(t, 3, updates[1].WinStreak)
}

func TestRatingFloor(t *testing.T) {
	prompt := Prompt{
		ID:        1,
		Responses: twoResponses("a", "b"),
		Votes:     []Vote{{VoterID: 3, Human: true, ResponseID: ref(10)}},
	}
	players := map[uint]PlayerState{2: {HumorRating: 0.55, WinStreak: 4}}

	_, updates := ScorePrompt(prompt, players, 1)

	assert.Equal(t, MinHumorRating, updates[2].HumorRating)
	assert.Equal(t, 0, updates[2].WinStreak)
}

func TestScoreRoundFoldsStateSequentially(t *testing.T) {
	// Player 1 wins prompt 1, so prompt 2 reads the raised streak.
	first := Prompt{ID: 1, Responses: []Response{{ID: 10, PlayerID: 1, Text: "a"}, {ID: 11, PlayerID: 2, Text: ForfeitMarker}}, EligibleVoters: 1}
	second := Prompt{ID: 2, Responses: []Response{{ID: 20, PlayerID: 2, Text: ForfeitMarker}, {ID: 21, PlayerID: 1, Text: "d"}}, EligibleVoters: 1}
	players := map[uint]PlayerState{
		1: {HumorRating: 1, WinStreak: 1},
		2: {HumorRating: 1},
	}

	result := ScoreRound([]Prompt{second, first}, players, 1)

	require.Len(t, result.Prompts, 2)
	assert.Equal(t, uint(1), result.Prompts[0].PromptID)
	// streak 1: 112 + 28
	assert.Equal(t, 140, result.Points[10])
	// streak 2: floor(112.5 * 1.3) = 146, + 36
	assert.Equal(t, 182, result.Points[21])
	assert.Equal(t, 3, result.Players[1].WinStreak)
	assert.Equal(t, 322, result.Players[1].Score)
	assert.InDelta(t, 0.8, result.Players[2].HumorRating, 1e-9)
	assert.Equal(t, 1, players[1].WinStreak, "input snapshot must not be mutated")
}

func TestScoreRoundReportsUpsets(t *testing.T) {
	prompt := Prompt{ID: 7, Responses: []Response{{ID: 70, PlayerID: 1, Text: "a"}, {ID: 71, PlayerID: 2, Text: ForfeitMarker}}, EligibleVoters: 1}
	players := map[uint]PlayerState{1: {Score: 0, HumorRating: 1}, 2: {Score: 50, HumorRating: 1}}

	result := ScoreRound([]Prompt{prompt}, players, 1)

	assert.Equal(t, []uint{70}, result.UpsetResponseIDs)
}

func TestScoringIsDeterministic(t *testing.T) {
	prompts := []Prompt{
		{
			ID:        3,
			Responses: []Response{{ID: 30, PlayerID: 1, Text: "a"}, {ID: 31, PlayerID: 2, Text: "b"}},
			Votes: []Vote{
				{VoterID: 3, Human: true, ResponseID: ref(30)},
				{VoterID: 4, Human: false, ResponseID: ref(31)},
				{VoterID: 5, Human: false, ResponseID: ref(30)},
			},
		},
		{ID: 4, Responses: []Response{{ID: 40, PlayerID: 3, Text: ForfeitMarker}, {ID: 41, PlayerID: 4, Text: "z"}}, EligibleVoters: 3},
	}
	players := map[uint]PlayerState{
		1: {Score: 300, HumorRating: 1.3, WinStreak: 2},
		2: {Score: 10, HumorRating: 0.7},
		3: {Score: 0, HumorRating: 1.1},
		4: {Score: 800, HumorRating: 1, WinStreak: 5},
	}

	first := ScoreRound(prompts, players, 2)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, ScoreRound(prompts, players, 2))
	}
}
