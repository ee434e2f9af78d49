package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quip-clash/internal/ai"
	"quip-clash/internal/config"
	"quip-clash/internal/scoring"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// manualClock only moves when a test advances it.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: testEpoch}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	store  *MemoryStore
	clock  *manualClock
	phases *PhaseController
	ai     *AIOrchestrator
	cfg    config.Config
}

func newHarness(t *testing.T, answers ai.AnswerGenerator, judge ai.VoteJudge) *harness {
	t.Helper()
	cfg := config.Default()
	store := NewMemoryStore()
	clk := newManualClock()
	logger := discardLogger()
	orchestrator := NewAIOrchestrator(store, answers, judge, cfg, logger)
	phases := NewPhaseController(store, NewLocalNotifier(), clk, cfg, logger, orchestrator)
	t.Cleanup(func() {
		phases.Close()
		orchestrator.Close()
	})
	return &harness{store: store, clock: clk, phases: phases, ai: orchestrator, cfg: cfg}
}

// seedGame creates a LOBBY game with the named humans and AI players.
func (h *harness) seedGame(t *testing.T, humans []string, ais []string) (Game, []Player) {
	t.Helper()
	players := make([]Player, 0, len(humans)+len(ais))
	for _, name := range humans {
		players = append(players, Player{Name: name, Type: PlayerHuman, HumorRating: scoring.DefaultHumorRating, Participation: ParticipationActive, LastSeen: h.clock.Now()})
	}
	for _, name := range ais {
		players = append(players, Player{Name: name, Type: PlayerAI, HumorRating: scoring.DefaultHumorRating, Participation: ParticipationActive, LastSeen: h.clock.Now(), ModelID: "test-model"})
	}
	game, created, err := h.store.CreateGame(context.Background(), Game{
		JoinCode:    newJoinCode(),
		Status:      StatusLobby,
		TotalRounds: 3,
	}, players)
	require.NoError(t, err)
	return game, created
}

func (h *harness) game(t *testing.T, gameID uint) Game {
	t.Helper()
	game, err := h.store.GetGame(context.Background(), gameID)
	require.NoError(t, err)
	return game
}

func (h *harness) round(t *testing.T, gameID uint, number int) RoundView {
	t.Helper()
	view, err := h.store.LoadRound(context.Background(), gameID, number)
	require.NoError(t, err)
	return view
}

func (h *harness) player(t *testing.T, gameID, playerID uint) Player {
	t.Helper()
	players, err := h.store.ListPlayers(context.Background(), gameID)
	require.NoError(t, err)
	player, ok := playersByID(players)[playerID]
	require.True(t, ok, "player %d not found", playerID)
	return player
}

// answerAll submits text for every prompt assigned to playerID.
func (h *harness) answerAll(t *testing.T, gameID, playerID uint, text string) {
	t.Helper()
	game := h.game(t, gameID)
	for _, prompt := range h.round(t, gameID, game.CurrentRound).Prompts {
		if !prompt.Prompt.AssignedTo(playerID) {
			continue
		}
		_, err := h.phases.SubmitResponse(context.Background(), gameID, playerID, prompt.Prompt.ID, text)
		require.NoError(t, err)
	}
}

func eventsOfType(t *testing.T, store Store, gameID uint, eventType string) []Event {
	t.Helper()
	events, err := store.ListEvents(context.Background(), gameID)
	require.NoError(t, err)
	out := make([]Event, 0)
	for _, event := range events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

func newTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test; listen unavailable: %v", err)
	}
	ts := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: handler},
	}
	ts.Start()
	return ts
}

func doRequest(t *testing.T, ts *httptest.Server, method, path string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	payload := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &payload), "body: %s", raw)
	}
	return resp, payload
}
