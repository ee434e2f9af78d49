package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quip-clash/internal/config"
)

type apiFixture struct {
	srv   *Server
	ts    *httptest.Server
	clock *manualClock
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	clk := newManualClock()
	srv := New(config.Default(), Options{Clock: clk, Logger: discardLogger()})
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Shutdown()
	})
	return &apiFixture{srv: srv, ts: ts, clock: clk}
}

// createGame returns the game path prefix and the host token.
func (f *apiFixture) createGame(t *testing.T, body map[string]any) (string, string) {
	t.Helper()
	resp, payload := doRequest(t, f.ts, http.MethodPost, "/api/games", body, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "payload: %v", payload)
	token, _ := payload["host_token"].(string)
	require.NotEmpty(t, token)
	require.NotEmpty(t, payload["join_code"])
	return fmt.Sprintf("/api/games/%d", uint(payload["game_id"].(float64))), token
}

func (f *apiFixture) join(t *testing.T, path, name string) uint {
	t.Helper()
	resp, payload := doRequest(t, f.ts, http.MethodPost, path+"/join", map[string]any{"name": name}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "payload: %v", payload)
	return uint(payload["player_id"].(float64))
}

func (f *apiFixture) snapshot(t *testing.T, path string) map[string]any {
	t.Helper()
	f.srv.ai.Wait()
	resp, payload := doRequest(t, f.ts, http.MethodGet, path, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, payload["changed"])
	return payload["game"].(map[string]any)
}

func hostHeader(token string) map[string]string {
	return map[string]string{hostTokenHeader: token}
}

func TestCreateGameValidation(t *testing.T) {
	f := newAPIFixture(t)

	resp, payload := doRequest(t, f.ts, http.MethodPost, "/api/games", map[string]any{"total_rounds": 50}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid game settings", payload["error"])

	resp, payload = doRequest(t, f.ts, http.MethodPost, "/api/games", map[string]any{"ai_players": []map[string]any{{"name": ""}}}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "name is required", payload["error"])

	resp, payload = doRequest(t, f.ts, http.MethodPost, "/api/games", map[string]any{"ai_players": []map[string]any{{"name": "Botty"}, {"name": "Botty"}}}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "player names must be unique", payload["error"])
}

func TestJoinRules(t *testing.T) {
	f := newAPIFixture(t)
	path, token := f.createGame(t, map[string]any{})

	adaID := f.join(t, path, "Ada")
	game := f.snapshot(t, path)
	assert.Equal(t, float64(adaID), game["host_player_id"], "first human takes the host seat")

	resp, payload := doRequest(t, f.ts, http.MethodPost, path+"/join", map[string]any{"name": "Ada"}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "name already taken", payload["error"])

	resp, payload = doRequest(t, f.ts, http.MethodPost, path+"/join", map[string]any{"name": strings.Repeat("x", maxNameLength+1)}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "name must be 1-20 letters, digits or simple punctuation", payload["error"])

	resp, _ = doRequest(t, f.ts, http.MethodPost, "/api/games/99999/join", map[string]any{"name": "Ben"}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	f.join(t, path, "Ben")
	resp, _ = doRequest(t, f.ts, http.MethodPost, path+"/start", nil, hostHeader(token))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, payload = doRequest(t, f.ts, http.MethodPost, path+"/join", map[string]any{"name": "Late"}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "game already started", payload["error"])

	resp, _ = doRequest(t, f.ts, http.MethodPost, path+"/join", map[string]any{"name": "Watcher", "spectator": true}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "spectators may join mid-game")
}

func TestHostTokenIsRequired(t *testing.T) {
	f := newAPIFixture(t)
	path, token := f.createGame(t, map[string]any{"ai_players": []map[string]any{{"name": "Botty"}}})
	ada := f.join(t, path, "Ada")

	resp, payload := doRequest(t, f.ts, http.MethodPost, path+"/start", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "host token required", payload["error"])

	resp, _ = doRequest(t, f.ts, http.MethodPost, path+"/start", nil, hostHeader("not-the-token"))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = doRequest(t, f.ts, http.MethodPost, path+"/ai-players", map[string]any{"name": "Robo"}, hostHeader(token))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doRequest(t, f.ts, http.MethodPost, path+"/start", nil, hostHeader(token))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, payload = doRequest(t, f.ts, http.MethodPost, path+"/start", nil, hostHeader(token))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "game already started", payload["error"])

	resp, payload = doRequest(t, f.ts, http.MethodPost, path+"/control", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "player_id is required", payload["error"])
	resp, payload = doRequest(t, f.ts, http.MethodPost, path+"/control", map[string]any{"player_id": 9999}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, ErrControlDenied.Error(), payload["error"])
	resp, payload = doRequest(t, f.ts, http.MethodPost, path+"/control", map[string]any{"player_id": ada}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "host is active", payload["error"])
}

func TestStartNeedsTwoPlayers(t *testing.T) {
	f := newAPIFixture(t)
	path, token := f.createGame(t, map[string]any{})
	f.join(t, path, "Ada")

	resp, payload := doRequest(t, f.ts, http.MethodPost, path+"/start", nil, hostHeader(token))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, ErrNotEnoughPlayers.Error(), payload["error"])
}

func TestPlayAgainstForfeitingAIOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	path, token := f.createGame(t, map[string]any{"ai_players": []map[string]any{{"name": "Botty"}}})
	adaID := f.join(t, path, "Ada")

	resp, _ := doRequest(t, f.ts, http.MethodPost, path+"/start", nil, hostHeader(token))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	game := f.snapshot(t, path)
	assert.Equal(t, string(StatusWriting), game["status"])
	version := int64(game["version"].(float64))

	resp, payload := doRequest(t, f.ts, http.MethodGet, fmt.Sprintf("%s?version=%d", path, version), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, payload["changed"])

	prompts := game["prompts"].([]any)
	require.Len(t, prompts, 2)
	for _, raw := range prompts {
		prompt := raw.(map[string]any)
		resp, payload := doRequest(t, f.ts, http.MethodPost, path+"/responses", map[string]any{
			"player_id": adaID,
			"prompt_id": prompt["id"],
			"text":      "  banana  ",
		}, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, "payload: %v", payload)
	}

	resp, payload = doRequest(t, f.ts, http.MethodPost, path+"/responses", map[string]any{
		"player_id": adaID,
		"prompt_id": prompts[0].(map[string]any)["id"],
		"text":      "again",
	}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, ErrWrongPhase.Error(), payload["error"])

	game = f.snapshot(t, path)
	assert.Equal(t, string(StatusVoting), game["status"])
	matchup := game["matchup"].(map[string]any)
	assert.Equal(t, true, matchup["forfeit"])

	resp, payload = doRequest(t, f.ts, http.MethodPost, path+"/votes", map[string]any{
		"player_id":   adaID,
		"prompt_id":   matchup["prompt_id"],
		"response_id": matchup["responses"].([]any)[0].(map[string]any)["id"],
	}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "payload: %v", payload)

	resp, _ = doRequest(t, f.ts, http.MethodPost, path+"/end", nil, hostHeader(token))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	game = f.snapshot(t, path)
	assert.Equal(t, string(StatusFinalResults), game["status"])
	scores := map[string]float64{}
	for _, raw := range game["players"].([]any) {
		player := raw.(map[string]any)
		scores[player["name"].(string)] = player["score"].(float64)
	}
	assert.Equal(t, map[string]float64{"Ada": 280, "Botty": 0}, scores)
	assert.Len(t, game["results"].([]any), 2)

	resp, _ = doRequest(t, f.ts, http.MethodPost, path+"/end", nil, hostHeader(token))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, payload = doRequest(t, f.ts, http.MethodGet, path+"/events", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	types := map[string]int{}
	for _, raw := range payload["events"].([]any) {
		types[raw.(map[string]any)["type"].(string)]++
	}
	assert.Equal(t, 1, types[eventGameCreated])
	assert.Equal(t, 1, types[eventRoundScored])
	assert.Equal(t, 1, types[eventGameEndedEarly])
}

func TestUnknownGameIs404(t *testing.T) {
	f := newAPIFixture(t)
	resp, payload := doRequest(t, f.ts, http.MethodGet, "/api/games/424242", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "game not found", payload["error"])

	resp, _ = doRequest(t, f.ts, http.MethodGet, "/api/games/not-a-number", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStreamPushesOnChange(t *testing.T) {
	f := newAPIFixture(t)
	path, _ := f.createGame(t, map[string]any{})
	gameID := strings.TrimPrefix(path, "/api/games/")

	wsURL := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws/games/" + gameID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Skipf("skipping test; websocket dial unavailable: %v", err)
	}
	defer conn.Close()

	var snap Snapshot
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, StatusLobby, snap.Status)
	assert.Empty(t, snap.Players)

	f.join(t, path, "Ada")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&snap))
	require.Len(t, snap.Players, 1)
	assert.Equal(t, "Ada", snap.Players[0].Name)
	assert.True(t, snap.Players[0].IsHost)
}
