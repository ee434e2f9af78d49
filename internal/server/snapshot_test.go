package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quip-clash/internal/scoring"
)

func snapshotFixture() (Game, []Player, RoundView) {
	host := uint(1)
	game := Game{
		ID:           9,
		JoinCode:     "ABCD",
		Status:       StatusVoting,
		Version:      7,
		CurrentRound: 1,
		TotalRounds:  3,
		HostPlayerID: &host,
		Usage:        UsageTotals{Calls: 2, Failures: 1},
	}
	players := []Player{
		{ID: 1, Name: "Ada", Type: PlayerHuman, HumorRating: 1, Participation: ParticipationActive},
		{ID: 2, Name: "Ben", Type: PlayerHuman, HumorRating: 1, Participation: ParticipationActive},
		{ID: 3, Name: "Cy", Type: PlayerHuman, HumorRating: 1, Participation: ParticipationDisconnected},
	}
	view := RoundView{
		Round: Round{ID: 10, GameID: 9, Number: 1},
		Prompts: []PromptView{
			{
				Prompt:    Prompt{ID: 20, Text: "boat name", Assigned: []uint{1, 2}},
				Responses: []Response{{ID: 30, PromptID: 20, PlayerID: 1, Text: "Floaty", PointsEarned: 75}, {ID: 31, PromptID: 20, PlayerID: 2, Text: "Sinky"}},
				Votes:     []Vote{{ID: 40, PromptID: 20, VoterID: 3, ResponseID: uintPtr(30)}},
			},
			{
				Prompt:    Prompt{ID: 21, Text: "pilot line", Assigned: []uint{2, 3}},
				Responses: []Response{{ID: 32, PromptID: 21, PlayerID: 2, Text: "Oops"}, {ID: 33, PromptID: 21, PlayerID: 3, Text: scoring.ForfeitMarker}},
			},
			{
				Prompt:    Prompt{ID: 22, Text: "unanswered", Assigned: []uint{3, 1}},
				Responses: []Response{{ID: 34, PromptID: 22, PlayerID: 3, Text: scoring.ForfeitMarker}, {ID: 35, PromptID: 22, PlayerID: 1, Text: scoring.ForfeitMarker}},
			},
		},
	}
	return game, players, view
}

func TestSnapshotHidesAuthorsUntilReveal(t *testing.T) {
	game, players, view := snapshotFixture()

	snap := buildSnapshot(game, players, &view, nil, testEpoch)
	assert.Equal(t, 2, snap.MatchupCount, "the double forfeit is not a matchup")
	require.NotNil(t, snap.Matchup)
	assert.Equal(t, uint(20), snap.Matchup.PromptID)
	assert.False(t, snap.Matchup.Revealed)
	assert.Equal(t, 1, snap.Matchup.VoteCount)
	for _, response := range snap.Matchup.Responses {
		assert.Nil(t, response.PlayerID)
		assert.Nil(t, response.Votes)
		assert.Nil(t, response.Points)
	}

	game.VotingRevealing = true
	snap = buildSnapshot(game, players, &view, nil, testEpoch)
	require.NotNil(t, snap.Matchup)
	first := snap.Matchup.Responses[0]
	require.NotNil(t, first.PlayerID)
	assert.Equal(t, uint(1), *first.PlayerID)
	require.NotNil(t, first.Votes)
	assert.Equal(t, 1, *first.Votes)
	assert.Nil(t, first.Points)
}

func TestSnapshotWritingListsSubmittersOnly(t *testing.T) {
	game, players, view := snapshotFixture()
	game.Status = StatusWriting

	snap := buildSnapshot(game, players, &view, nil, testEpoch)
	require.Len(t, snap.Prompts, 3)
	assert.Equal(t, []uint{1, 2}, snap.Prompts[0].Submitted)
	assert.Nil(t, snap.Matchup)
	assert.Empty(t, snap.Results)
}

func TestSnapshotResultsCarryPoints(t *testing.T) {
	game, players, view := snapshotFixture()
	game.Status = StatusRoundResults

	snap := buildSnapshot(game, players, &view, []ModelUsage{{ModelID: "m", Calls: 2}}, testEpoch)
	require.Len(t, snap.Results, 2)
	assert.True(t, snap.Results[1].Forfeit)
	require.NotNil(t, snap.Results[0].Responses[0].Points)
	assert.Equal(t, 75, *snap.Results[0].Responses[0].Points)
	assert.Equal(t, int64(2), snap.Usage.Calls)
	assert.Equal(t, int64(1), snap.Usage.Failures)
	require.Len(t, snap.Usage.Models, 1)
}

func TestSnapshotMarksHostAndPresence(t *testing.T) {
	game, players, _ := snapshotFixture()
	game.Status = StatusLobby

	snap := buildSnapshot(game, players, nil, nil, testEpoch)
	require.Len(t, snap.Players, 3)
	assert.True(t, snap.Players[0].IsHost)
	assert.False(t, snap.Players[1].IsHost)
	assert.Equal(t, ParticipationDisconnected, snap.Players[2].Participation)
	assert.Zero(t, snap.MatchupCount)
	assert.Equal(t, testEpoch, snap.ServerTime)
}
