package server

import (
	"context"
	"sort"
	"sync"
	"time"
)

type roundKey struct {
	gameID uint
	number int
}

type pairKey struct {
	promptID uint
	playerID uint
}

type usageKey struct {
	gameID  uint
	modelID string
}

// MemoryStore keeps every table in process memory. Each method runs under one
// mutex, which makes every conditional update a single atomic step.
type MemoryStore struct {
	mu        sync.Mutex
	nextID    uint
	library   []string
	games     map[uint]*Game
	players   map[uint]*Player
	rounds    map[uint]*Round
	roundKeys map[roundKey]uint
	prompts   map[uint]*Prompt
	responses map[uint]*Response
	answered  map[pairKey]uint
	votes     map[uint]*Vote
	voted     map[pairKey]uint
	usage     map[usageKey]*ModelUsage
	events    []Event
	now       func() time.Time
}

// NewMemoryStore returns an empty store that draws prompt texts from library,
// or from the built-in list when library is empty.
func NewMemoryStore(library ...string) *MemoryStore {
	if len(library) == 0 {
		library = fallbackPrompts()
	}
	return &MemoryStore{
		nextID:    1,
		library:   library,
		games:     make(map[uint]*Game),
		players:   make(map[uint]*Player),
		rounds:    make(map[uint]*Round),
		roundKeys: make(map[roundKey]uint),
		prompts:   make(map[uint]*Prompt),
		responses: make(map[uint]*Response),
		answered:  make(map[pairKey]uint),
		votes:     make(map[uint]*Vote),
		voted:     make(map[pairKey]uint),
		usage:     make(map[usageKey]*ModelUsage),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) id() uint {
	id := s.nextID
	s.nextID++
	return id
}

func (s *MemoryStore) CreateGame(ctx context.Context, game Game, players []Player) (Game, []Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.games {
		if existing.JoinCode == game.JoinCode {
			return Game{}, nil, ErrConflict
		}
	}
	seen := make(map[string]struct{}, len(players))
	for _, player := range players {
		if _, dup := seen[player.Name]; dup {
			return Game{}, nil, ErrConflict
		}
		seen[player.Name] = struct{}{}
	}

	game.ID = s.id()
	if game.Version == 0 {
		game.Version = 1
	}
	if game.CreatedAt.IsZero() {
		game.CreatedAt = s.now()
	}
	stored := game
	stored.PhaseDeadline = copyTime(game.PhaseDeadline)
	stored.HostPlayerID = copyUint(game.HostPlayerID)
	s.games[game.ID] = &stored

	created := make([]Player, 0, len(players))
	for _, player := range players {
		player.ID = s.id()
		player.GameID = game.ID
		copied := player
		s.players[player.ID] = &copied
		created = append(created, player)
	}
	return stored, created, nil
}

func (s *MemoryStore) GetGame(ctx context.Context, gameID uint) (Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok {
		return Game{}, ErrNotFound
	}
	return cloneGame(game), nil
}

func (s *MemoryStore) AddPlayer(ctx context.Context, player Player) (Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[player.GameID]
	if !ok {
		return Player{}, ErrNotFound
	}
	for _, existing := range s.players {
		if existing.GameID == player.GameID && existing.Name == player.Name {
			return Player{}, ErrConflict
		}
	}
	player.ID = s.id()
	copied := player
	s.players[player.ID] = &copied
	game.Version++
	return player, nil
}

func (s *MemoryStore) ListPlayers(ctx context.Context, gameID uint) ([]Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]Player, 0)
	for _, player := range s.players {
		if player.GameID == gameID {
			list = append(list, *player)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (s *MemoryStore) TransitionGame(ctx context.Context, gameID uint, cond GameCondition, update GameUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok || !cond.matches(game) {
		return false, nil
	}
	update.apply(game)
	return true, nil
}

func (s *MemoryStore) StartRound(ctx context.Context, gameID uint, number int, prompts []Prompt, cond GameCondition, update GameUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok {
		return false, nil
	}
	if _, exists := s.roundKeys[roundKey{gameID: gameID, number: number}]; exists {
		return false, ErrConflict
	}
	if !cond.matches(game) {
		return false, nil
	}
	round := &Round{ID: s.id(), GameID: gameID, Number: number}
	s.rounds[round.ID] = round
	s.roundKeys[roundKey{gameID: gameID, number: number}] = round.ID
	for _, prompt := range prompts {
		prompt.ID = s.id()
		prompt.RoundID = round.ID
		prompt.Assigned = append([]uint(nil), prompt.Assigned...)
		copied := prompt
		s.prompts[prompt.ID] = &copied
	}
	update.apply(game)
	return true, nil
}

func (s *MemoryStore) LoadRound(ctx context.Context, gameID uint, number int) (RoundView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	roundID, ok := s.roundKeys[roundKey{gameID: gameID, number: number}]
	if !ok {
		return RoundView{}, ErrNotFound
	}
	view := RoundView{Round: *s.rounds[roundID]}
	for _, prompt := range s.prompts {
		if prompt.RoundID != roundID {
			continue
		}
		entry := PromptView{Prompt: *prompt}
		entry.Prompt.Assigned = append([]uint(nil), prompt.Assigned...)
		for _, response := range s.responses {
			if response.PromptID == prompt.ID {
				entry.Responses = append(entry.Responses, *response)
			}
		}
		for _, vote := range s.votes {
			if vote.PromptID == prompt.ID {
				copied := *vote
				copied.ResponseID = copyUint(vote.ResponseID)
				entry.Votes = append(entry.Votes, copied)
			}
		}
		sort.Slice(entry.Responses, func(i, j int) bool { return entry.Responses[i].ID < entry.Responses[j].ID })
		sort.Slice(entry.Votes, func(i, j int) bool { return entry.Votes[i].ID < entry.Votes[j].ID })
		view.Prompts = append(view.Prompts, entry)
	}
	sort.Slice(view.Prompts, func(i, j int) bool { return view.Prompts[i].Prompt.ID < view.Prompts[j].Prompt.ID })
	return view, nil
}

func (s *MemoryStore) InsertResponse(ctx context.Context, gameID uint, response Response, gate *WriteGate) (Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok {
		return Response{}, ErrNotFound
	}
	if _, ok := s.prompts[response.PromptID]; !ok {
		return Response{}, ErrNotFound
	}
	if gate != nil && !gate.admits(game) {
		return Response{}, ErrPhaseClosed
	}
	key := pairKey{promptID: response.PromptID, playerID: response.PlayerID}
	if _, exists := s.answered[key]; exists {
		return Response{}, ErrConflict
	}
	response.ID = s.id()
	copied := response
	s.responses[response.ID] = &copied
	s.answered[key] = response.ID
	game.Version++
	return response, nil
}

func (s *MemoryStore) InsertVote(ctx context.Context, gameID uint, vote Vote, gate *WriteGate) (Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok {
		return Vote{}, ErrNotFound
	}
	if _, ok := s.prompts[vote.PromptID]; !ok {
		return Vote{}, ErrNotFound
	}
	if gate != nil && !gate.admits(game) {
		return Vote{}, ErrPhaseClosed
	}
	key := pairKey{promptID: vote.PromptID, playerID: vote.VoterID}
	if _, exists := s.voted[key]; exists {
		return Vote{}, ErrConflict
	}
	vote.ID = s.id()
	copied := vote
	copied.ResponseID = copyUint(vote.ResponseID)
	s.votes[vote.ID] = &copied
	s.voted[key] = vote.ID
	game.Version++
	return vote, nil
}

func (s *MemoryStore) PlayerAnswers(ctx context.Context, gameID, playerID uint) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matches := make([]*Response, 0)
	for _, response := range s.responses {
		if response.PlayerID != playerID || response.Forfeit() {
			continue
		}
		if s.gameOfPrompt(response.PromptID) != gameID {
			continue
		}
		matches = append(matches, response)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
	answers := make([]string, 0, len(matches))
	for _, response := range matches {
		answers = append(answers, response.Text)
	}
	return answers, nil
}

func (s *MemoryStore) PickPromptTexts(ctx context.Context, gameID uint, count int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	used := make(map[string]struct{})
	for _, prompt := range s.prompts {
		if s.gameOfPrompt(prompt.ID) == gameID {
			used[prompt.Text] = struct{}{}
		}
	}
	return selectPrompts(shuffledCopy(s.library), count, used), nil
}

func (s *MemoryStore) gameOfPrompt(promptID uint) uint {
	prompt, ok := s.prompts[promptID]
	if !ok {
		return 0
	}
	round, ok := s.rounds[prompt.RoundID]
	if !ok {
		return 0
	}
	return round.GameID
}

func (s *MemoryStore) AddUsage(ctx context.Context, gameID uint, delta ModelUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok {
		return ErrNotFound
	}
	key := usageKey{gameID: gameID, modelID: delta.ModelID}
	row, ok := s.usage[key]
	if !ok {
		row = &ModelUsage{GameID: gameID, ModelID: delta.ModelID}
		s.usage[key] = row
	}
	row.InputTokens += delta.InputTokens
	row.OutputTokens += delta.OutputTokens
	row.CostMicros += delta.CostMicros
	row.Calls += delta.Calls
	row.Failures += delta.Failures

	game.Usage.InputTokens += delta.InputTokens
	game.Usage.OutputTokens += delta.OutputTokens
	game.Usage.CostMicros += delta.CostMicros
	game.Usage.Calls += delta.Calls
	game.Usage.Failures += delta.Failures
	game.Version++
	return nil
}

func (s *MemoryStore) ListUsage(ctx context.Context, gameID uint) ([]ModelUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]ModelUsage, 0)
	for key, row := range s.usage {
		if key.gameID == gameID {
			list = append(list, *row)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ModelID < list[j].ModelID })
	return list, nil
}

func (s *MemoryStore) TouchPlayer(ctx context.Context, gameID, playerID uint, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	player, ok := s.players[playerID]
	if !ok || player.GameID != gameID {
		return false, ErrNotFound
	}
	player.LastSeen = at
	if player.Participation != ParticipationDisconnected {
		return false, nil
	}
	player.Participation = ParticipationActive
	if game, ok := s.games[gameID]; ok {
		game.Version++
	}
	return true, nil
}

func (s *MemoryStore) MarkDisconnected(ctx context.Context, gameID uint, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok {
		return 0, ErrNotFound
	}
	flipped := 0
	for _, player := range s.players {
		if player.GameID != gameID || player.Type != PlayerHuman {
			continue
		}
		if player.Participation != ParticipationActive || !player.LastSeen.Before(cutoff) {
			continue
		}
		player.Participation = ParticipationDisconnected
		flipped++
	}
	if flipped > 0 {
		game.Version++
	}
	return flipped, nil
}

func (s *MemoryStore) PromoteHost(ctx context.Context, gameID uint, from *uint, to uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok || !sameHost(game.HostPlayerID, from) {
		return false, nil
	}
	game.HostPlayerID = uintPtr(to)
	game.Version++
	return true, nil
}

func (s *MemoryStore) RotateHostToken(ctx context.Context, gameID uint, oldHash, newHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok || game.HostTokenHash != oldHash {
		return false, nil
	}
	game.HostTokenHash = newHash
	game.Version++
	return true, nil
}

func (s *MemoryStore) ApplyRoundScores(ctx context.Context, gameID uint, points map[uint]int, players []PlayerScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok {
		return ErrNotFound
	}
	for responseID, earned := range points {
		if response, ok := s.responses[responseID]; ok {
			response.PointsEarned = earned
		}
	}
	for _, update := range players {
		player, ok := s.players[update.PlayerID]
		if !ok || player.GameID != gameID {
			continue
		}
		player.Score = update.Score
		player.HumorRating = update.HumorRating
		player.WinStreak = update.WinStreak
		player.IdleRounds = update.IdleRounds
	}
	game.Version++
	return nil
}

func (s *MemoryStore) AppendEvent(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event.ID = s.id()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now()
	}
	s.events = append(s.events, event)
	return nil
}

func (s *MemoryStore) ListEvents(ctx context.Context, gameID uint) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]Event, 0)
	for _, event := range s.events {
		if event.GameID == gameID {
			list = append(list, event)
		}
	}
	return list, nil
}

func cloneGame(game *Game) Game {
	copied := *game
	copied.PhaseDeadline = copyTime(game.PhaseDeadline)
	copied.HostPlayerID = copyUint(game.HostPlayerID)
	return copied
}
