package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"quip-clash/internal/common/clock"
	"quip-clash/internal/config"
)

// ActivityTracker keeps presence state fresh from inbound requests. The
// throttle and sweep caches are process-local; the store holds the truth.
type ActivityTracker struct {
	store    Store
	notifier Notifier
	clock    clock.Clock
	cfg      config.Config
	logger   *slog.Logger

	mu          sync.Mutex
	lastBeat    map[uint]time.Time
	lastSweep   map[uint]time.Time
	beatPruned  time.Time
	sweepPruned time.Time
}

func NewActivityTracker(store Store, notifier Notifier, clk clock.Clock, cfg config.Config, logger *slog.Logger) *ActivityTracker {
	return &ActivityTracker{
		store:     store,
		notifier:  notifier,
		clock:     clk,
		cfg:       cfg,
		logger:    logger,
		lastBeat:  make(map[uint]time.Time),
		lastSweep: make(map[uint]time.Time),
	}
}

// Heartbeat records that playerID was seen. Calls inside the throttle window
// are dropped. It reports whether the player came back from DISCONNECTED.
func (a *ActivityTracker) Heartbeat(ctx context.Context, gameID, playerID uint) (bool, error) {
	now := a.clock.Now()
	a.mu.Lock()
	last, seen := a.lastBeat[playerID]
	if seen && now.Sub(last) < a.cfg.HeartbeatThrottle() {
		a.mu.Unlock()
		return false, nil
	}
	a.lastBeat[playerID] = now
	if now.Sub(a.beatPruned) >= a.cfg.HeartbeatThrottle() {
		pruneBefore(a.lastBeat, now.Add(-a.cfg.HeartbeatThrottle()))
		a.beatPruned = now
	}
	a.mu.Unlock()

	flipped, err := a.store.TouchPlayer(ctx, gameID, playerID, now)
	if errors.Is(err, ErrNotFound) {
		a.forget(playerID)
		return false, ErrPlayerNotFound
	}
	if err != nil {
		a.forget(playerID)
		return false, fmt.Errorf("heartbeat: %w", err)
	}
	if flipped {
		a.logger.Info("player reconnected", "game_id", gameID, "player_id", playerID)
		a.notifier.Publish(ctx, gameID)
	}
	return flipped, nil
}

// pruneBefore drops entries stamped before cutoff; they no longer throttle
// anything.
func pruneBefore(cache map[uint]time.Time, cutoff time.Time) {
	for id, at := range cache {
		if at.Before(cutoff) {
			delete(cache, id)
		}
	}
}

func (a *ActivityTracker) forget(playerID uint) {
	a.mu.Lock()
	delete(a.lastBeat, playerID)
	a.mu.Unlock()
}

func (a *ActivityTracker) hostStale(game Game, players []Player, now time.Time) bool {
	if game.HostPlayerID == nil {
		return true
	}
	host, ok := playersByID(players)[*game.HostPlayerID]
	if !ok || !host.Active() {
		return true
	}
	return now.Sub(host.LastSeen) > a.cfg.HostStaleAfter()
}

// EnsureHost hands the host seat to the most recently seen active human when
// the current host is missing or stale. Concurrent callers race on the old
// host id; one wins.
func (a *ActivityTracker) EnsureHost(ctx context.Context, game Game, players []Player) (Claim, error) {
	now := a.clock.Now()
	if !a.hostStale(game, players, now) {
		return NotClaimed, nil
	}
	var candidate *Player
	for i := range players {
		player := &players[i]
		if player.Type != PlayerHuman || !player.Active() {
			continue
		}
		if game.HostPlayerID != nil && *game.HostPlayerID == player.ID {
			continue
		}
		if now.Sub(player.LastSeen) > a.cfg.HostStaleAfter() {
			continue
		}
		if candidate == nil || player.LastSeen.After(candidate.LastSeen) {
			candidate = player
		}
	}
	if candidate == nil {
		return NotClaimed, nil
	}
	ok, err := a.store.PromoteHost(ctx, game.ID, game.HostPlayerID, candidate.ID)
	if err != nil {
		return NotClaimed, fmt.Errorf("promote host: %w", err)
	}
	if !ok {
		return NotClaimed, nil
	}
	a.logger.Info("host promoted", "game_id", game.ID, "player_id", candidate.ID)
	playerID := candidate.ID
	recordEvent(ctx, a.store, a.logger, Event{
		GameID:   game.ID,
		PlayerID: &playerID,
		Type:     eventHostPromoted,
		Payload:  EventPayload{PlayerName: candidate.Name},
	})
	a.notifier.Publish(ctx, game.ID)
	return Claimed, nil
}

// TakeOverControl issues a fresh control token to a human player of the game
// when the host is absent or stale. The previous token stops working.
func (a *ActivityTracker) TakeOverControl(ctx context.Context, gameID, playerID uint) (string, Claim, error) {
	game, err := a.store.GetGame(ctx, gameID)
	if err != nil {
		return "", NotClaimed, err
	}
	players, err := a.store.ListPlayers(ctx, gameID)
	if err != nil {
		return "", NotClaimed, fmt.Errorf("take over control: %w", err)
	}
	caller, member := playersByID(players)[playerID]
	if !member || caller.Type != PlayerHuman {
		return "", NotClaimed, ErrControlDenied
	}
	if !a.hostStale(game, players, a.clock.Now()) {
		return "", NotClaimed, nil
	}
	token, hash, err := newHostToken()
	if err != nil {
		return "", NotClaimed, err
	}
	ok, err := a.store.RotateHostToken(ctx, gameID, game.HostTokenHash, hash)
	if err != nil {
		return "", NotClaimed, fmt.Errorf("rotate host token: %w", err)
	}
	if !ok {
		return "", NotClaimed, nil
	}
	a.logger.Info("control taken over", "game_id", gameID, "player_id", playerID)
	recordEvent(ctx, a.store, a.logger, Event{GameID: gameID, PlayerID: &playerID, Type: eventControlTaken, Payload: EventPayload{PlayerName: caller.Name}})
	a.notifier.Publish(ctx, gameID)
	return token, Claimed, nil
}

// SweepInactive flags humans unseen past the inactivity window as
// DISCONNECTED. It runs during WRITING and VOTING, at most once per sweep
// interval per game in this process.
func (a *ActivityTracker) SweepInactive(ctx context.Context, game Game) (int, error) {
	if game.Status != StatusWriting && game.Status != StatusVoting {
		return 0, nil
	}
	now := a.clock.Now()
	a.mu.Lock()
	last, swept := a.lastSweep[game.ID]
	if swept && now.Sub(last) < a.cfg.SweepInterval() {
		a.mu.Unlock()
		return 0, nil
	}
	a.lastSweep[game.ID] = now
	if now.Sub(a.sweepPruned) >= a.cfg.SweepInterval() {
		pruneBefore(a.lastSweep, now.Add(-a.cfg.SweepInterval()))
		a.sweepPruned = now
	}
	a.mu.Unlock()

	flipped, err := a.store.MarkDisconnected(ctx, game.ID, now.Add(-a.cfg.InactiveAfter()))
	if err != nil {
		return 0, fmt.Errorf("sweep inactive: %w", err)
	}
	if flipped > 0 {
		a.logger.Info("players disconnected", "game_id", game.ID, "count", flipped)
		recordEvent(ctx, a.store, a.logger, Event{
			GameID:  game.ID,
			Type:    eventPlayersSwept,
			Payload: EventPayload{Count: flipped},
		})
		a.notifier.Publish(ctx, game.ID)
	}
	return flipped, nil
}

func newHostToken() (string, string, error) {
	token := uuid.NewString()
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("hash host token: %w", err)
	}
	return token, string(hash), nil
}

func checkHostToken(hash, token string) bool {
	if hash == "" || token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}
