package server

import (
	"context"
	"log/slog"
)

const (
	eventGameCreated    = "game_created"
	eventPlayerJoined   = "player_joined"
	eventPhaseChanged   = "phase_changed"
	eventRoundScored    = "round_scored"
	eventPlaceholders   = "placeholders_filled"
	eventHostPromoted   = "host_promoted"
	eventControlTaken   = "control_taken"
	eventPlayersSwept   = "players_disconnected"
	eventGameEndedEarly = "game_ended_early"
)

type EventPayload struct {
	JoinCode         string       `json:"join_code,omitempty"`
	PlayerName       string       `json:"player,omitempty"`
	RoundNumber      int          `json:"round_number,omitempty"`
	From             GameStatus   `json:"from,omitempty"`
	To               GameStatus   `json:"to,omitempty"`
	PromptIndex      *int         `json:"prompt_index,omitempty"`
	Reason           string       `json:"reason,omitempty"`
	Count            int          `json:"count,omitempty"`
	Points           map[uint]int `json:"points,omitempty"`
	UpsetResponseIDs []uint       `json:"upset_response_ids,omitempty"`
}

// recordEvent is best effort: a failed event write never fails the caller.
func recordEvent(ctx context.Context, store Store, logger *slog.Logger, event Event) {
	if err := store.AppendEvent(ctx, event); err != nil {
		logger.Warn("event write failed", "game_id", event.GameID, "type", event.Type, "error", err)
	}
}
