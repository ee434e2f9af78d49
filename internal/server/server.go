package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"quip-clash/internal/ai"
	"quip-clash/internal/common/clock"
	"quip-clash/internal/config"
)

// Options carries the collaborators of a Server. Nil fields fall back to the
// in-process defaults; nil AI providers make AI players forfeit.
type Options struct {
	Store    Store
	Notifier Notifier
	Answers  ai.AnswerGenerator
	Judge    ai.VoteJudge
	Clock    clock.Clock
	Logger   *slog.Logger
}

type Server struct {
	cfg      config.Config
	store    Store
	notifier Notifier
	clock    clock.Clock
	logger   *slog.Logger
	phases   *PhaseController
	activity *ActivityTracker
	ai       *AIOrchestrator
	upgrader websocket.Upgrader
}

func New(cfg config.Config, opts Options) *Server {
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.Notifier == nil {
		opts.Notifier = NewLocalNotifier()
	}
	if opts.Clock == nil {
		opts.Clock = &clock.DefaultClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	orchestrator := NewAIOrchestrator(opts.Store, opts.Answers, opts.Judge, cfg, opts.Logger)
	return &Server{
		cfg:      cfg,
		store:    opts.Store,
		notifier: opts.Notifier,
		clock:    opts.Clock,
		logger:   opts.Logger,
		phases:   NewPhaseController(opts.Store, opts.Notifier, opts.Clock, cfg, opts.Logger, orchestrator),
		activity: NewActivityTracker(opts.Store, opts.Notifier, opts.Clock, cfg, opts.Logger),
		ai:       orchestrator,
		upgrader: newUpgrader(),
	}
}

func (s *Server) Handler() http.Handler {
	registerValidators()
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(s.logger))

	api := router.Group("/api/games")
	api.POST("", s.handleCreateGame)
	api.GET("/:id", s.handleGetGame)
	api.GET("/:id/events", s.handleEvents)
	api.POST("/:id/join", s.handleJoin)
	api.POST("/:id/ai-players", s.handleAddAIPlayer)
	api.POST("/:id/start", s.handleStart)
	api.POST("/:id/responses", s.handleResponse)
	api.POST("/:id/votes", s.handleVote)
	api.POST("/:id/advance", s.handleAdvance)
	api.POST("/:id/end", s.handleEnd)
	api.POST("/:id/control", s.handleTakeControl)

	router.GET("/ws/games/:id", s.handleStream)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

// Shutdown stops deadline timers and waits for background AI work.
func (s *Server) Shutdown() {
	s.phases.Close()
	s.ai.Close()
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		level := slog.LevelDebug
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"duration", time.Since(start),
		)
	}
}
