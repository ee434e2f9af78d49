package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const hostTokenHeader = "X-Host-Token"

// authenticateHostRequest loads the game and checks the control token. It
// writes the error response itself and reports false on failure.
func (s *Server) authenticateHostRequest(c *gin.Context, gameID uint) (Game, bool) {
	game, err := s.store.GetGame(c.Request.Context(), gameID)
	if err != nil {
		s.writeStoreError(c, err, "load game")
		return Game{}, false
	}
	token := strings.TrimSpace(c.GetHeader(hostTokenHeader))
	if token == "" {
		writeError(c, http.StatusUnauthorized, "host token required")
		return Game{}, false
	}
	if !checkHostToken(game.HostTokenHash, token) {
		writeError(c, http.StatusForbidden, "only the host can perform this action")
		return Game{}, false
	}
	return game, true
}
