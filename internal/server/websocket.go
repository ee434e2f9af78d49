package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const streamWriteTimeout = 5 * time.Second

type streamQuery struct {
	PlayerID uint `form:"player_id"`
}

// handleStream pushes a snapshot whenever the game version moves. It wakes on
// the notifier or on the tick interval, whichever comes first, and runs the
// same request-path duties as polling.
func (s *Server) handleStream(c *gin.Context) {
	gameID, ok := bindGameURI(c)
	if !ok {
		return
	}
	var query streamQuery
	if !bindQuery(c, &query) {
		return
	}
	if _, err := s.store.GetGame(c.Request.Context(), gameID); err != nil {
		s.writeStoreError(c, err, "open stream")
		return
	}
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "game_id", gameID, "error", err)
		return
	}
	defer conn.Close()
	s.logger.Info("ws connected", "game_id", gameID, "player_id", query.PlayerID, "remote", c.Request.RemoteAddr)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	wakeups, release := s.notifier.Subscribe(ctx, gameID)
	defer release()
	ticker := time.NewTicker(s.cfg.StreamTick())
	defer ticker.Stop()

	sent := int64(-1)
	push := func() bool {
		s.observe(ctx, gameID, query.PlayerID)
		snap, err := s.loadSnapshot(ctx, gameID)
		if err != nil {
			s.logger.Warn("ws snapshot failed", "game_id", gameID, "error", err)
			return ctx.Err() == nil
		}
		if snap.Version == sent {
			return true
		}
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		if err := conn.WriteJSON(snap); err != nil {
			return false
		}
		sent = snap.Version
		return true
	}

	if !push() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("ws disconnected", "game_id", gameID, "player_id", query.PlayerID)
			return
		case <-ticker.C:
		case <-wakeups:
		}
		if !push() {
			s.logger.Info("ws write failed", "game_id", gameID, "player_id", query.PlayerID)
			return
		}
	}
}

func newUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}
