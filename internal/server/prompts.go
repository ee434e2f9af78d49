package server

import (
	"math/rand"
)

func fallbackPrompts() []string {
	return []string{
		"The worst thing to hear from your pilot",
		"A terrible name for a boat",
		"The real reason dinosaurs went extinct",
		"A rejected flavor of toothpaste",
		"What your houseplants say about you when you leave",
		"The worst superpower to get at age 40",
		"A fortune cookie you would not want to open",
		"The least impressive thing to put on a resume",
		"The worst possible theme for a wedding",
		"What the ghost in your attic actually wants",
		"A bad slogan for a funeral home",
		"The secret ingredient in grandma's soup",
		"A sign you are in a low budget superhero movie",
		"The worst thing to say on a first date",
		"A new Olympic sport nobody asked for",
		"What cats are really plotting",
		"An app that should never exist",
		"The worst excuse for being late to work",
		"A rejected name for a new planet",
		"Something you should never shout in a library",
		"The worst thing to find in your pocket",
		"A terrible motto for a school",
		"What aliens think our pets are",
		"The worst gift to bring to a housewarming",
		"A bad name for a rock band",
		"The least relaxing spa treatment",
		"What the office printer dreams about",
		"A review of the moon, one star",
		"The worst thing to have written on your tombstone",
		"An unusual thing to collect",
		"A text you should not send your boss",
		"The worst question to ask a fortune teller",
	}
}

// selectPrompts takes up to limit texts from pool, skipping used ones first and
// recycling used ones only when the pool runs dry.
func selectPrompts(pool []string, limit int, used map[string]struct{}) []string {
	if limit <= 0 {
		return nil
	}
	selected := make([]string, 0, limit)
	taken := make(map[string]struct{}, limit)
	for _, text := range pool {
		if len(selected) >= limit {
			break
		}
		if _, ok := used[text]; ok {
			continue
		}
		if _, ok := taken[text]; ok {
			continue
		}
		taken[text] = struct{}{}
		selected = append(selected, text)
	}
	for _, text := range pool {
		if len(selected) >= limit {
			break
		}
		if _, ok := taken[text]; ok {
			continue
		}
		taken[text] = struct{}{}
		selected = append(selected, text)
	}
	return selected
}

func shuffledCopy(pool []string) []string {
	out := append([]string(nil), pool...)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// assignPrompts builds one prompt per participant. Prompt i goes to
// participants i and i+1 (wrapping), so everyone answers exactly two prompts
// and never faces themselves.
func assignPrompts(participants []Player, texts []string) []Prompt {
	order := append([]Player(nil), participants...)
	rand.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	count := len(order)
	prompts := make([]Prompt, 0, count)
	for i := 0; i < count && i < len(texts); i++ {
		prompts = append(prompts, Prompt{
			Text:     texts[i],
			Assigned: []uint{order[i].ID, order[(i+1)%count].ID},
		})
	}
	return prompts
}

func participantsOf(players []Player) []Player {
	out := make([]Player, 0, len(players))
	for _, player := range players {
		if player.Participant() {
			out = append(out, player)
		}
	}
	return out
}
