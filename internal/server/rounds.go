package server

// responseSlot is one (prompt, assigned player) pair.
type responseSlot struct {
	PromptID uint
	PlayerID uint
}

// votablePrompts lists prompts with at least two responses that are not all
// forfeits, in prompt id order. The voting index points into this slice.
func votablePrompts(view RoundView) []PromptView {
	out := make([]PromptView, 0, len(view.Prompts))
	for _, prompt := range view.Prompts {
		if len(prompt.Responses) < 2 {
			continue
		}
		standing := 0
		for _, response := range prompt.Responses {
			if !response.Forfeit() {
				standing++
			}
		}
		if standing == 0 {
			continue
		}
		out = append(out, prompt)
	}
	return out
}

func currentMatchup(game Game, view RoundView) (PromptView, bool) {
	votable := votablePrompts(view)
	if game.VotingPromptIndex < 0 || game.VotingPromptIndex >= len(votable) {
		return PromptView{}, false
	}
	return votable[game.VotingPromptIndex], true
}

func forfeitMatchup(prompt PromptView) bool {
	for _, response := range prompt.Responses {
		if response.Forfeit() {
			return true
		}
	}
	return false
}

func respondentsOf(prompt PromptView) map[uint]struct{} {
	out := make(map[uint]struct{}, len(prompt.Prompt.Assigned))
	for _, id := range prompt.Prompt.Assigned {
		out[id] = struct{}{}
	}
	for _, response := range prompt.Responses {
		out[response.PlayerID] = struct{}{}
	}
	return out
}

// eligibleVoters are participants who did not write for this prompt.
func eligibleVoters(prompt PromptView, players []Player) []Player {
	respondents := respondentsOf(prompt)
	out := make([]Player, 0, len(players))
	for _, player := range players {
		if !player.Participant() {
			continue
		}
		if _, ok := respondents[player.ID]; ok {
			continue
		}
		out = append(out, player)
	}
	return out
}

func hasVoted(prompt PromptView, voterID uint) bool {
	for _, vote := range prompt.Votes {
		if vote.VoterID == voterID {
			return true
		}
	}
	return false
}

// tallyComplete reports whether the matchup is waiting on nobody: it was
// forfeited, or every ACTIVE eligible voter has a vote row.
func tallyComplete(prompt PromptView, players []Player) bool {
	if forfeitMatchup(prompt) {
		return true
	}
	for _, voter := range eligibleVoters(prompt, players) {
		if !voter.Active() {
			continue
		}
		if !hasVoted(prompt, voter.ID) {
			return false
		}
	}
	return true
}

func missingResponses(view RoundView) []responseSlot {
	out := make([]responseSlot, 0)
	for _, prompt := range view.Prompts {
		answered := make(map[uint]struct{}, len(prompt.Responses))
		for _, response := range prompt.Responses {
			answered[response.PlayerID] = struct{}{}
		}
		for _, playerID := range prompt.Prompt.Assigned {
			if _, ok := answered[playerID]; !ok {
				out = append(out, responseSlot{PromptID: prompt.Prompt.ID, PlayerID: playerID})
			}
		}
	}
	return out
}

func playersByID(players []Player) map[uint]Player {
	out := make(map[uint]Player, len(players))
	for _, player := range players {
		out[player.ID] = player
	}
	return out
}
