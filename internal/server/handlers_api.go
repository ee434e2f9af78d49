package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"quip-clash/internal/scoring"
)

const joinCodeAttempts = 5

type aiPlayerRequest struct {
	Name    string `json:"name" binding:"required,name"`
	ModelID string `json:"model_id" binding:"omitempty,max=64"`
}

type createGameRequest struct {
	TotalRounds    int               `json:"total_rounds" binding:"omitempty,min=1,max=10"`
	TimersDisabled bool              `json:"timers_disabled"`
	AIPlayers      []aiPlayerRequest `json:"ai_players" binding:"omitempty,max=8,dive"`
}

type joinRequest struct {
	Name      string `json:"name" binding:"required,name"`
	Spectator bool   `json:"spectator"`
}

type responseRequest struct {
	PlayerID uint   `json:"player_id" binding:"required"`
	PromptID uint   `json:"prompt_id" binding:"required"`
	Text     string `json:"text" binding:"required,answer"`
}

type voteRequest struct {
	PlayerID   uint `json:"player_id" binding:"required"`
	PromptID   uint `json:"prompt_id" binding:"required"`
	ResponseID uint `json:"response_id" binding:"required"`
}

type takeControlRequest struct {
	PlayerID uint `json:"player_id" binding:"required"`
}

type pollQuery struct {
	Version  *int64 `form:"version"`
	PlayerID uint   `form:"player_id"`
}

var (
	nameMessages = bindMessages{
		"Name": {
			"required": "name is required",
			"name":     "name must be 1-20 letters, digits or simple punctuation",
		},
	}
	answerMessages = bindMessages{
		"Text": {
			"required": "answer is required",
			"answer":   "answer must be 1-120 printable characters",
		},
	}
)

func (s *Server) handleCreateGame(c *gin.Context) {
	var req createGameRequest
	if !bindJSON(c, &req, nameMessages, "invalid game settings") {
		return
	}
	ctx := c.Request.Context()
	rounds := req.TotalRounds
	if rounds == 0 {
		rounds = s.cfg.TotalRounds
	}
	if rounds > maxRoundsPerGame {
		rounds = maxRoundsPerGame
	}
	token, hash, err := newHostToken()
	if err != nil {
		s.writeStoreError(c, err, "create game")
		return
	}
	now := s.clock.Now()
	players := make([]Player, 0, len(req.AIPlayers))
	for _, entry := range req.AIPlayers {
		name, _ := validateName(entry.Name)
		players = append(players, Player{
			Name:          name,
			Type:          PlayerAI,
			HumorRating:   scoring.DefaultHumorRating,
			Participation: ParticipationActive,
			LastSeen:      now,
			ModelID:       entry.ModelID,
		})
	}

	var game Game
	for attempt := 0; attempt < joinCodeAttempts; attempt++ {
		game, _, err = s.store.CreateGame(ctx, Game{
			JoinCode:       newJoinCode(),
			Status:         StatusLobby,
			TotalRounds:    rounds,
			HostTokenHash:  hash,
			TimersDisabled: req.TimersDisabled,
		}, players)
		if !errors.Is(err, ErrConflict) {
			break
		}
	}
	if err != nil {
		if errors.Is(err, ErrConflict) {
			writeError(c, http.StatusConflict, "player names must be unique")
			return
		}
		s.writeStoreError(c, err, "create game")
		return
	}
	s.logger.Info("game created", "game_id", game.ID, "join_code", game.JoinCode, "ai_players", len(players))
	recordEvent(ctx, s.store, s.logger, Event{GameID: game.ID, Type: eventGameCreated, Payload: EventPayload{JoinCode: game.JoinCode}})
	c.JSON(http.StatusCreated, gin.H{
		"game_id":    game.ID,
		"join_code":  game.JoinCode,
		"host_token": token,
	})
}

func (s *Server) handleJoin(c *gin.Context) {
	gameID, ok := bindGameURI(c)
	if !ok {
		return
	}
	var req joinRequest
	if !bindJSON(c, &req, nameMessages, "invalid join request") {
		return
	}
	ctx := c.Request.Context()
	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		s.writeStoreError(c, err, "join game")
		return
	}
	playerType := PlayerHuman
	if req.Spectator {
		playerType = PlayerSpectator
	} else if game.Status != StatusLobby {
		writeError(c, http.StatusConflict, "game already started")
		return
	}
	if playerType == PlayerHuman {
		players, err := s.store.ListPlayers(ctx, gameID)
		if err != nil {
			s.writeStoreError(c, err, "join game")
			return
		}
		if len(participantsOf(players)) >= maxLobbyPlayers {
			writeError(c, http.StatusConflict, "game is full")
			return
		}
	}

	name, _ := validateName(req.Name)
	player, err := s.store.AddPlayer(ctx, Player{
		GameID:        gameID,
		Name:          name,
		Type:          playerType,
		HumorRating:   scoring.DefaultHumorRating,
		Participation: ParticipationActive,
		LastSeen:      s.clock.Now(),
	})
	if errors.Is(err, ErrConflict) {
		writeError(c, http.StatusConflict, "name already taken")
		return
	}
	if err != nil {
		s.writeStoreError(c, err, "join game")
		return
	}
	if playerType == PlayerHuman && game.HostPlayerID == nil {
		if _, err := s.store.PromoteHost(ctx, gameID, nil, player.ID); err != nil {
			s.logger.Warn("initial host promotion failed", "game_id", gameID, "player_id", player.ID, "error", err)
		}
	}
	s.logger.Info("player joined", "game_id", gameID, "player_id", player.ID, "type", playerType)
	playerID := player.ID
	recordEvent(ctx, s.store, s.logger, Event{GameID: gameID, PlayerID: &playerID, Type: eventPlayerJoined, Payload: EventPayload{PlayerName: player.Name}})
	s.notifier.Publish(ctx, gameID)
	c.JSON(http.StatusOK, gin.H{"player_id": player.ID})
}

func (s *Server) handleAddAIPlayer(c *gin.Context) {
	gameID, ok := bindGameURI(c)
	if !ok {
		return
	}
	game, ok := s.authenticateHostRequest(c, gameID)
	if !ok {
		return
	}
	var req aiPlayerRequest
	if !bindJSON(c, &req, nameMessages, "invalid ai player") {
		return
	}
	if game.Status != StatusLobby {
		writeError(c, http.StatusConflict, "game already started")
		return
	}
	ctx := c.Request.Context()
	players, err := s.store.ListPlayers(ctx, gameID)
	if err != nil {
		s.writeStoreError(c, err, "add ai player")
		return
	}
	aiCount := 0
	for _, player := range players {
		if player.Type == PlayerAI {
			aiCount++
		}
	}
	if aiCount >= maxAIPlayers || len(participantsOf(players)) >= maxLobbyPlayers {
		writeError(c, http.StatusConflict, "game is full")
		return
	}
	name, _ := validateName(req.Name)
	player, err := s.store.AddPlayer(ctx, Player{
		GameID:        gameID,
		Name:          name,
		Type:          PlayerAI,
		HumorRating:   scoring.DefaultHumorRating,
		Participation: ParticipationActive,
		LastSeen:      s.clock.Now(),
		ModelID:       req.ModelID,
	})
	if errors.Is(err, ErrConflict) {
		writeError(c, http.StatusConflict, "name already taken")
		return
	}
	if err != nil {
		s.writeStoreError(c, err, "add ai player")
		return
	}
	s.notifier.Publish(ctx, gameID)
	c.JSON(http.StatusOK, gin.H{"player_id": player.ID})
}

func (s *Server) handleStart(c *gin.Context) {
	gameID, ok := bindGameURI(c)
	if !ok {
		return
	}
	if _, ok := s.authenticateHostRequest(c, gameID); !ok {
		return
	}
	claim, err := s.phases.StartRound(c.Request.Context(), gameID, 1)
	if err != nil {
		s.writeStoreError(c, err, "start game")
		return
	}
	if claim == NotClaimed {
		writeError(c, http.StatusConflict, "game already started")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": StatusWriting})
}

func (s *Server) handleResponse(c *gin.Context) {
	gameID, ok := bindGameURI(c)
	if !ok {
		return
	}
	var req responseRequest
	if !bindJSON(c, &req, answerMessages, "invalid answer") {
		return
	}
	ctx := c.Request.Context()
	s.observe(ctx, gameID, req.PlayerID)
	text, _ := validateAnswer(req.Text)
	response, err := s.phases.SubmitResponse(ctx, gameID, req.PlayerID, req.PromptID, text)
	if err != nil {
		s.writeStoreError(c, err, "submit answer")
		return
	}
	c.JSON(http.StatusOK, gin.H{"response_id": response.ID})
}

func (s *Server) handleVote(c *gin.Context) {
	gameID, ok := bindGameURI(c)
	if !ok {
		return
	}
	var req voteRequest
	if !bindJSON(c, &req, nil, "player_id, prompt_id and response_id are required") {
		return
	}
	ctx := c.Request.Context()
	s.observe(ctx, gameID, req.PlayerID)
	vote, err := s.phases.SubmitVote(ctx, gameID, req.PlayerID, req.PromptID, req.ResponseID)
	if err != nil {
		s.writeStoreError(c, err, "submit vote")
		return
	}
	c.JSON(http.StatusOK, gin.H{"vote_id": vote.ID})
}

func (s *Server) handleGetGame(c *gin.Context) {
	gameID, ok := bindGameURI(c)
	if !ok {
		return
	}
	var query pollQuery
	if !bindQuery(c, &query) {
		return
	}
	ctx := c.Request.Context()
	s.observe(ctx, gameID, query.PlayerID)
	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		s.writeStoreError(c, err, "load game")
		return
	}
	if query.Version != nil && *query.Version == game.Version {
		c.JSON(http.StatusOK, gin.H{"changed": false, "version": game.Version})
		return
	}
	snap, err := s.loadSnapshot(ctx, gameID)
	if err != nil {
		s.writeStoreError(c, err, "load game")
		return
	}
	c.JSON(http.StatusOK, gin.H{"changed": true, "version": snap.Version, "game": snap})
}

func (s *Server) handleAdvance(c *gin.Context) {
	gameID, ok := bindGameURI(c)
	if !ok {
		return
	}
	if _, ok := s.authenticateHostRequest(c, gameID); !ok {
		return
	}
	claim, err := s.phases.ForceAdvancePhase(c.Request.Context(), gameID)
	if err != nil {
		s.writeStoreError(c, err, "advance game")
		return
	}
	c.JSON(http.StatusOK, gin.H{"claimed": claim == Claimed})
}

func (s *Server) handleEnd(c *gin.Context) {
	gameID, ok := bindGameURI(c)
	if !ok {
		return
	}
	if _, ok := s.authenticateHostRequest(c, gameID); !ok {
		return
	}
	claim, err := s.phases.EndEarly(c.Request.Context(), gameID)
	if err != nil {
		s.writeStoreError(c, err, "end game")
		return
	}
	if claim == NotClaimed {
		writeError(c, http.StatusConflict, "game changed, try again")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": StatusFinalResults})
}

func (s *Server) handleTakeControl(c *gin.Context) {
	gameID, ok := bindGameURI(c)
	if !ok {
		return
	}
	var req takeControlRequest
	if !bindJSON(c, &req, nil, "player_id is required") {
		return
	}
	token, claim, err := s.activity.TakeOverControl(c.Request.Context(), gameID, req.PlayerID)
	if err != nil {
		s.writeStoreError(c, err, "take control")
		return
	}
	if claim == NotClaimed {
		writeError(c, http.StatusConflict, "host is active")
		return
	}
	c.JSON(http.StatusOK, gin.H{"host_token": token})
}

func (s *Server) handleEvents(c *gin.Context) {
	gameID, ok := bindGameURI(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := s.store.GetGame(ctx, gameID); err != nil {
		s.writeStoreError(c, err, "list events")
		return
	}
	events, err := s.store.ListEvents(ctx, gameID)
	if err != nil {
		s.writeStoreError(c, err, "list events")
		return
	}
	page, perPage := parsePagination(c, defaultEventsPerPage, maxEventsPerPage)
	items, info := paginate(events, page, perPage)
	c.JSON(http.StatusOK, gin.H{"events": items, "pagination": info})
}

// observe runs the request-path duties: enforce an expired deadline, record
// the caller's heartbeat, keep a live host, and sweep idle players.
func (s *Server) observe(ctx context.Context, gameID, playerID uint) {
	if _, err := s.phases.CheckAndEnforceDeadline(ctx, gameID); err != nil {
		s.logger.Error("deadline check failed", "game_id", gameID, "error", err)
	}
	if playerID != 0 {
		if _, err := s.activity.Heartbeat(ctx, gameID, playerID); err != nil && !errors.Is(err, ErrPlayerNotFound) {
			s.logger.Warn("heartbeat failed", "game_id", gameID, "player_id", playerID, "error", err)
		}
	}
	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return
	}
	players, err := s.store.ListPlayers(ctx, gameID)
	if err != nil {
		return
	}
	if _, err := s.activity.EnsureHost(ctx, game, players); err != nil {
		s.logger.Warn("host check failed", "game_id", gameID, "error", err)
	}
	flipped, err := s.activity.SweepInactive(ctx, game)
	if err != nil {
		s.logger.Warn("inactivity sweep failed", "game_id", gameID, "error", err)
		return
	}
	if flipped > 0 {
		if _, err := s.phases.CheckQuorum(ctx, gameID); err != nil {
			s.logger.Error("quorum check failed", "game_id", gameID, "error", err)
		}
	}
}

func (s *Server) loadSnapshot(ctx context.Context, gameID uint) (Snapshot, error) {
	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return Snapshot{}, err
	}
	players, err := s.store.ListPlayers(ctx, gameID)
	if err != nil {
		return Snapshot{}, err
	}
	var view *RoundView
	if game.CurrentRound > 0 {
		loaded, err := s.store.LoadRound(ctx, gameID, game.CurrentRound)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return Snapshot{}, err
		}
		if err == nil {
			view = &loaded
		}
	}
	usage, err := s.store.ListUsage(ctx, gameID)
	if err != nil {
		return Snapshot{}, err
	}
	return buildSnapshot(game, players, view, usage, s.clock.Now()), nil
}
