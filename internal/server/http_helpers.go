package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

func writeError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// writeStoreError maps core errors onto HTTP statuses. Unknown errors are
// logged and reported as 500.
func (s *Server) writeStoreError(c *gin.Context, err error, action string) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(c, http.StatusNotFound, "game not found")
	case errors.Is(err, ErrPlayerNotFound), errors.Is(err, ErrPromptNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotEnoughPlayers), errors.Is(err, ErrInvalidChoice):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotAssigned), errors.Is(err, ErrNotEligible), errors.Is(err, ErrSelfVote),
		errors.Is(err, ErrControlDenied):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrWrongPhase), errors.Is(err, ErrNotCurrentMatchup),
		errors.Is(err, ErrMatchupDecided), errors.Is(err, ErrAlreadySubmitted), errors.Is(err, ErrConflict):
		writeError(c, http.StatusConflict, err.Error())
	default:
		s.logger.Error(action+" failed", "path", c.FullPath(), "error", err)
		writeError(c, http.StatusInternalServerError, action+" failed")
	}
}
