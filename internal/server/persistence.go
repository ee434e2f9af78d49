package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"quip-clash/internal/db"
	"quip-clash/internal/scoring"
)

// errNoMatch rolls back a transaction whose conditional update matched nothing.
var errNoMatch = errors.New("condition not met")

// GormStore persists games in Postgres. Every conditional method is a single
// UPDATE ... WHERE checked through RowsAffected.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(conn *gorm.DB) *GormStore {
	return &GormStore{db: conn}
}

func (s *GormStore) CreateGame(ctx context.Context, game Game, players []Player) (Game, []Player, error) {
	record := db.Game{
		JoinCode:       game.JoinCode,
		Status:         string(game.Status),
		Version:        game.Version,
		CurrentRound:   game.CurrentRound,
		TotalRounds:    game.TotalRounds,
		PhaseDeadline:  copyTime(game.PhaseDeadline),
		HostPlayerID:   copyUint(game.HostPlayerID),
		HostTokenHash:  game.HostTokenHash,
		TimersDisabled: game.TimersDisabled,
	}
	if record.Version == 0 {
		record.Version = 1
	}
	created := make([]Player, 0, len(players))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return mapWriteError(err)
		}
		for _, player := range players {
			row := playerRecord(player)
			row.GameID = record.ID
			if err := tx.Create(&row).Error; err != nil {
				return mapWriteError(err)
			}
			created = append(created, toPlayer(row))
		}
		return nil
	})
	if err != nil {
		return Game{}, nil, err
	}
	return toGame(record), created, nil
}

func (s *GormStore) GetGame(ctx context.Context, gameID uint) (Game, error) {
	var record db.Game
	if err := s.db.WithContext(ctx).First(&record, gameID).Error; err != nil {
		return Game{}, mapReadError(err)
	}
	return toGame(record), nil
}

func (s *GormStore) AddPlayer(ctx context.Context, player Player) (Player, error) {
	row := playerRecord(player)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := bumpVersion(tx, player.GameID); err != nil {
			return err
		}
		return mapWriteError(tx.Create(&row).Error)
	})
	if err != nil {
		return Player{}, err
	}
	return toPlayer(row), nil
}

func (s *GormStore) ListPlayers(ctx context.Context, gameID uint) ([]Player, error) {
	var rows []db.Player
	if err := s.db.WithContext(ctx).Where("game_id = ?", gameID).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	players := make([]Player, 0, len(rows))
	for _, row := range rows {
		players = append(players, toPlayer(row))
	}
	return players, nil
}

func (s *GormStore) TransitionGame(ctx context.Context, gameID uint, cond GameCondition, update GameUpdate) (bool, error) {
	result := conditionQuery(s.db.WithContext(ctx), gameID, cond).Updates(updateColumns(update))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *GormStore) StartRound(ctx context.Context, gameID uint, number int, prompts []Prompt, cond GameCondition, update GameUpdate) (bool, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		round := db.Round{GameID: gameID, Number: number}
		if err := tx.Create(&round).Error; err != nil {
			return mapWriteError(err)
		}
		for _, prompt := range prompts {
			row := db.Prompt{
				RoundID:  round.ID,
				Text:     prompt.Text,
				Assigned: datatypes.JSONSlice[uint](append([]uint(nil), prompt.Assigned...)),
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		result := conditionQuery(tx, gameID, cond).Updates(updateColumns(update))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 1 {
			return errNoMatch
		}
		return nil
	})
	if errors.Is(err, errNoMatch) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *GormStore) LoadRound(ctx context.Context, gameID uint, number int) (RoundView, error) {
	conn := s.db.WithContext(ctx)
	var round db.Round
	if err := conn.Where("game_id = ? AND number = ?", gameID, number).First(&round).Error; err != nil {
		return RoundView{}, mapReadError(err)
	}
	var prompts []db.Prompt
	if err := conn.Where("round_id = ?", round.ID).Order("id").Find(&prompts).Error; err != nil {
		return RoundView{}, err
	}
	promptIDs := make([]uint, 0, len(prompts))
	for _, prompt := range prompts {
		promptIDs = append(promptIDs, prompt.ID)
	}
	var responses []db.Response
	var votes []db.Vote
	if len(promptIDs) > 0 {
		if err := conn.Where("prompt_id IN ?", promptIDs).Order("id").Find(&responses).Error; err != nil {
			return RoundView{}, err
		}
		if err := conn.Where("prompt_id IN ?", promptIDs).Order("id").Find(&votes).Error; err != nil {
			return RoundView{}, err
		}
	}

	view := RoundView{Round: Round{ID: round.ID, GameID: round.GameID, Number: round.Number}}
	index := make(map[uint]int, len(prompts))
	for i, prompt := range prompts {
		index[prompt.ID] = i
		view.Prompts = append(view.Prompts, PromptView{Prompt: Prompt{
			ID:       prompt.ID,
			RoundID:  prompt.RoundID,
			Text:     prompt.Text,
			Assigned: append([]uint(nil), prompt.Assigned...),
		}})
	}
	for _, row := range responses {
		entry := &view.Prompts[index[row.PromptID]]
		entry.Responses = append(entry.Responses, Response{
			ID:           row.ID,
			PromptID:     row.PromptID,
			PlayerID:     row.PlayerID,
			Text:         row.Text,
			PointsEarned: row.PointsEarned,
		})
	}
	for _, row := range votes {
		entry := &view.Prompts[index[row.PromptID]]
		entry.Votes = append(entry.Votes, Vote{
			ID:         row.ID,
			PromptID:   row.PromptID,
			VoterID:    row.VoterID,
			ResponseID: copyUint(row.ResponseID),
			FailReason: row.FailReason,
		})
	}
	return view, nil
}

func (s *GormStore) InsertResponse(ctx context.Context, gameID uint, response Response, gate *WriteGate) (Response, error) {
	row := db.Response{PromptID: response.PromptID, PlayerID: response.PlayerID, Text: response.Text}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := promptExists(tx, response.PromptID); err != nil {
			return err
		}
		if err := gatedBump(tx, gameID, gate); err != nil {
			return err
		}
		if err := tx.Create(&row).Error; err != nil {
			return mapWriteError(err)
		}
		return nil
	})
	if err != nil {
		return Response{}, err
	}
	response.ID = row.ID
	return response, nil
}

func (s *GormStore) InsertVote(ctx context.Context, gameID uint, vote Vote, gate *WriteGate) (Vote, error) {
	row := db.Vote{PromptID: vote.PromptID, VoterID: vote.VoterID, ResponseID: copyUint(vote.ResponseID), FailReason: vote.FailReason}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := promptExists(tx, vote.PromptID); err != nil {
			return err
		}
		if err := gatedBump(tx, gameID, gate); err != nil {
			return err
		}
		if err := tx.Create(&row).Error; err != nil {
			return mapWriteError(err)
		}
		return nil
	})
	if err != nil {
		return Vote{}, err
	}
	vote.ID = row.ID
	return vote, nil
}

func (s *GormStore) PlayerAnswers(ctx context.Context, gameID, playerID uint) ([]string, error) {
	var answers []string
	err := s.db.WithContext(ctx).
		Table("responses").
		Joins("JOIN prompts ON prompts.id = responses.prompt_id").
		Joins("JOIN rounds ON rounds.id = prompts.round_id").
		Where("rounds.game_id = ? AND responses.player_id = ? AND responses.text <> ?", gameID, playerID, scoring.ForfeitMarker).
		Order("responses.id").
		Pluck("responses.text", &answers).Error
	if err != nil {
		return nil, err
	}
	return answers, nil
}

func (s *GormStore) PickPromptTexts(ctx context.Context, gameID uint, count int) ([]string, error) {
	conn := s.db.WithContext(ctx)
	var usedTexts []string
	err := conn.Table("prompts").
		Joins("JOIN rounds ON rounds.id = prompts.round_id").
		Where("rounds.game_id = ?", gameID).
		Pluck("prompts.text", &usedTexts).Error
	if err != nil {
		return nil, err
	}
	used := make(map[string]struct{}, len(usedTexts))
	for _, text := range usedTexts {
		used[text] = struct{}{}
	}
	var pool []string
	if err := conn.Model(&db.PromptLibrary{}).Order("random()").Pluck("text", &pool).Error; err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		pool = shuffledCopy(fallbackPrompts())
	}
	return selectPrompts(pool, count, used), nil
}

func (s *GormStore) AddUsage(ctx context.Context, gameID uint, delta ModelUsage) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&db.Game{}).Where("id = ?", gameID).Updates(map[string]any{
			"version":          gorm.Expr("version + 1"),
			"ai_input_tokens":  gorm.Expr("ai_input_tokens + ?", delta.InputTokens),
			"ai_output_tokens": gorm.Expr("ai_output_tokens + ?", delta.OutputTokens),
			"ai_cost_micros":   gorm.Expr("ai_cost_micros + ?", delta.CostMicros),
			"ai_calls":         gorm.Expr("ai_calls + ?", delta.Calls),
			"ai_failures":      gorm.Expr("ai_failures + ?", delta.Failures),
		})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		row := db.AIUsage{
			GameID:       gameID,
			ModelID:      delta.ModelID,
			InputTokens:  delta.InputTokens,
			OutputTokens: delta.OutputTokens,
			CostMicros:   delta.CostMicros,
			Calls:        delta.Calls,
			Failures:     delta.Failures,
		}
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "game_id"}, {Name: "model_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"input_tokens":  gorm.Expr("ai_usage.input_tokens + EXCLUDED.input_tokens"),
				"output_tokens": gorm.Expr("ai_usage.output_tokens + EXCLUDED.output_tokens"),
				"cost_micros":   gorm.Expr("ai_usage.cost_micros + EXCLUDED.cost_micros"),
				"calls":         gorm.Expr("ai_usage.calls + EXCLUDED.calls"),
				"failures":      gorm.Expr("ai_usage.failures + EXCLUDED.failures"),
				"updated_at":    gorm.Expr("EXCLUDED.updated_at"),
			}),
		}).Create(&row).Error
	})
}

func (s *GormStore) ListUsage(ctx context.Context, gameID uint) ([]ModelUsage, error) {
	var rows []db.AIUsage
	if err := s.db.WithContext(ctx).Where("game_id = ?", gameID).Order("model_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	list := make([]ModelUsage, 0, len(rows))
	for _, row := range rows {
		list = append(list, ModelUsage{
			GameID:       row.GameID,
			ModelID:      row.ModelID,
			InputTokens:  row.InputTokens,
			OutputTokens: row.OutputTokens,
			CostMicros:   row.CostMicros,
			Calls:        row.Calls,
			Failures:     row.Failures,
		})
	}
	return list, nil
}

func (s *GormStore) TouchPlayer(ctx context.Context, gameID, playerID uint, at time.Time) (bool, error) {
	flipped := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&db.Player{}).
			Where("id = ? AND game_id = ? AND participation = ?", playerID, gameID, string(ParticipationDisconnected)).
			Updates(map[string]any{"participation": string(ParticipationActive), "last_seen": at})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 1 {
			flipped = true
			return bumpVersion(tx, gameID)
		}
		result = tx.Model(&db.Player{}).
			Where("id = ? AND game_id = ?", playerID, gameID).
			Update("last_seen", at)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return flipped, nil
}

func (s *GormStore) MarkDisconnected(ctx context.Context, gameID uint, cutoff time.Time) (int, error) {
	flipped := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&db.Player{}).
			Where("game_id = ? AND type = ? AND participation = ? AND last_seen < ?",
				gameID, string(PlayerHuman), string(ParticipationActive), cutoff).
			Update("participation", string(ParticipationDisconnected))
		if result.Error != nil {
			return result.Error
		}
		flipped = int(result.RowsAffected)
		if flipped == 0 {
			return gameExists(tx, gameID)
		}
		return bumpVersion(tx, gameID)
	})
	if err != nil {
		return 0, err
	}
	return flipped, nil
}

func (s *GormStore) PromoteHost(ctx context.Context, gameID uint, from *uint, to uint) (bool, error) {
	query := s.db.WithContext(ctx).Model(&db.Game{}).Where("id = ?", gameID)
	if from == nil {
		query = query.Where("host_player_id IS NULL")
	} else {
		query = query.Where("host_player_id = ?", *from)
	}
	result := query.Updates(map[string]any{
		"host_player_id": to,
		"version":        gorm.Expr("version + 1"),
	})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *GormStore) RotateHostToken(ctx context.Context, gameID uint, oldHash, newHash string) (bool, error) {
	result := s.db.WithContext(ctx).Model(&db.Game{}).
		Where("id = ? AND host_token_hash = ?", gameID, oldHash).
		Updates(map[string]any{
			"host_token_hash": newHash,
			"version":         gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *GormStore) ApplyRoundScores(ctx context.Context, gameID uint, points map[uint]int, players []PlayerScore) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := bumpVersion(tx, gameID); err != nil {
			return err
		}
		for responseID, earned := range points {
			if err := tx.Model(&db.Response{}).Where("id = ?", responseID).Update("points_earned", earned).Error; err != nil {
				return fmt.Errorf("response %d points: %w", responseID, err)
			}
		}
		for _, update := range players {
			err := tx.Model(&db.Player{}).
				Where("id = ? AND game_id = ?", update.PlayerID, gameID).
				Updates(map[string]any{
					"score":        update.Score,
					"humor_rating": update.HumorRating,
					"win_streak":   update.WinStreak,
					"idle_rounds":  update.IdleRounds,
				}).Error
			if err != nil {
				return fmt.Errorf("player %d score: %w", update.PlayerID, err)
			}
		}
		return nil
	})
}

func (s *GormStore) AppendEvent(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}
	row := db.Event{
		GameID:    event.GameID,
		RoundID:   copyUint(event.RoundID),
		PlayerID:  copyUint(event.PlayerID),
		Type:      event.Type,
		Payload:   datatypes.JSON(payload),
		CreatedAt: event.CreatedAt,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *GormStore) ListEvents(ctx context.Context, gameID uint) ([]Event, error) {
	var rows []db.Event
	if err := s.db.WithContext(ctx).Where("game_id = ?", gameID).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(rows))
	for _, row := range rows {
		event := Event{
			ID:        row.ID,
			GameID:    row.GameID,
			RoundID:   copyUint(row.RoundID),
			PlayerID:  copyUint(row.PlayerID),
			Type:      row.Type,
			CreatedAt: row.CreatedAt,
		}
		if err := json.Unmarshal(row.Payload, &event.Payload); err != nil {
			return nil, fmt.Errorf("decode event %d payload: %w", row.ID, err)
		}
		events = append(events, event)
	}
	return events, nil
}

func conditionQuery(tx *gorm.DB, gameID uint, cond GameCondition) *gorm.DB {
	query := tx.Model(&db.Game{}).Where("id = ? AND status = ?", gameID, string(cond.Status))
	if cond.CurrentRound != nil {
		query = query.Where("current_round = ?", *cond.CurrentRound)
	}
	if cond.VotingPromptIndex != nil {
		query = query.Where("voting_prompt_index = ?", *cond.VotingPromptIndex)
	}
	if cond.VotingRevealing != nil {
		query = query.Where("voting_revealing = ?", *cond.VotingRevealing)
	}
	return query
}

func updateColumns(update GameUpdate) map[string]any {
	columns := map[string]any{"version": gorm.Expr("version + 1")}
	if update.Status != "" {
		columns["status"] = string(update.Status)
	}
	if update.CurrentRound != nil {
		columns["current_round"] = *update.CurrentRound
	}
	if update.VotingPromptIndex != nil {
		columns["voting_prompt_index"] = *update.VotingPromptIndex
	}
	if update.VotingRevealing != nil {
		columns["voting_revealing"] = *update.VotingRevealing
	}
	if update.SetDeadline {
		columns["phase_deadline"] = copyTime(update.PhaseDeadline)
	}
	return columns
}

func bumpVersion(tx *gorm.DB, gameID uint) error {
	result := tx.Model(&db.Game{}).Where("id = ?", gameID).Update("version", gorm.Expr("version + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// gatedBump increments the version only while gate admits writes. The row
// lock it takes orders the insert against concurrent phase transitions.
func gatedBump(tx *gorm.DB, gameID uint, gate *WriteGate) error {
	if gate == nil {
		return bumpVersion(tx, gameID)
	}
	query := tx.Model(&db.Game{}).
		Where("id = ? AND status = ? AND current_round = ?", gameID, string(gate.Status), gate.Round)
	if gate.PromptIndex != nil {
		index := *gate.PromptIndex
		query = query.Where("(voting_prompt_index < ? OR (voting_prompt_index = ? AND voting_revealing = ?))", index, index, false)
	}
	result := query.Update("version", gorm.Expr("version + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 1 {
		return nil
	}
	if err := gameExists(tx, gameID); err != nil {
		return err
	}
	return ErrPhaseClosed
}

func gameExists(tx *gorm.DB, gameID uint) error {
	var count int64
	if err := tx.Model(&db.Game{}).Where("id = ?", gameID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}

func promptExists(tx *gorm.DB, promptID uint) error {
	var count int64
	if err := tx.Model(&db.Prompt{}).Where("id = ?", promptID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}

func mapReadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func mapWriteError(err error) error {
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func toGame(record db.Game) Game {
	return Game{
		ID:                record.ID,
		JoinCode:          record.JoinCode,
		Status:            GameStatus(record.Status),
		Version:           record.Version,
		CurrentRound:      record.CurrentRound,
		TotalRounds:       record.TotalRounds,
		PhaseDeadline:     copyTime(record.PhaseDeadline),
		VotingPromptIndex: record.VotingPromptIndex,
		VotingRevealing:   record.VotingRevealing,
		HostPlayerID:      copyUint(record.HostPlayerID),
		HostTokenHash:     record.HostTokenHash,
		TimersDisabled:    record.TimersDisabled,
		Usage: UsageTotals{
			InputTokens:  record.AIInputTokens,
			OutputTokens: record.AIOutputTokens,
			CostMicros:   record.AICostMicros,
			Calls:        record.AICalls,
			Failures:     record.AIFailures,
		},
		CreatedAt: record.CreatedAt,
	}
}

func playerRecord(player Player) db.Player {
	row := db.Player{
		GameID:        player.GameID,
		Name:          player.Name,
		Type:          string(player.Type),
		Score:         player.Score,
		HumorRating:   player.HumorRating,
		WinStreak:     player.WinStreak,
		IdleRounds:    player.IdleRounds,
		Participation: string(player.Participation),
		LastSeen:      player.LastSeen,
	}
	if row.Participation == "" {
		row.Participation = string(ParticipationActive)
	}
	if player.ModelID != "" {
		model := player.ModelID
		row.ModelID = &model
	}
	return row
}

func toPlayer(row db.Player) Player {
	player := Player{
		ID:            row.ID,
		GameID:        row.GameID,
		Name:          row.Name,
		Type:          PlayerType(row.Type),
		Score:         row.Score,
		HumorRating:   row.HumorRating,
		WinStreak:     row.WinStreak,
		IdleRounds:    row.IdleRounds,
		Participation: Participation(row.Participation),
		LastSeen:      row.LastSeen,
	}
	if row.ModelID != nil {
		player.ModelID = *row.ModelID
	}
	return player
}
