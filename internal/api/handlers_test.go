package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtrntr/tradinggame/internal/auth"
	"github.com/xtrntr/tradinggame/internal/events"
	"github.com/xtrntr/tradinggame/internal/game"
	"github.com/xtrntr/tradinggame/internal/market"
	"github.com/xtrntr/tradinggame/internal/metrics"
	"github.com/xtrntr/tradinggame/internal/models"
)

type memUsers struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func (m *memUsers) CreateUser(_ context.Context, username, hash string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[username]; ok {
		return nil, models.ErrUsernameTaken
	}
	u := &models.User{ID: len(m.users) + 1, Username: username, PasswordHash: hash}
	m.users[username] = u
	return u, nil
}

func (m *memUsers) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return u, nil
}

type fakeResults struct{}

func (fakeResults) GetUserResults(_ context.Context, participantID string) ([]models.GameResult, error) {
	return []models.GameResult{{ID: 1, ParticipantID: participantID, Scenario: "q", PnL: 15}}, nil
}

func (fakeResults) GetUserStats(context.Context, string) (models.Stats, error) {
	return models.Stats{GamesPlayed: 1, TotalPnL: 15, AverageAccuracy: 100, TotalTrades: 1}, nil
}

type testServer struct {
	*httptest.Server
	manager *game.Manager
	hub     *events.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	settings := game.DefaultSettings()
	settings.BotInterval = time.Hour
	settings.CountdownTick = time.Hour

	hub := events.NewHub(zerolog.Nop())
	markets := market.NewRegistryFrom(map[string]float64{"How many keys on a piano?": 100})
	manager := game.NewManager(settings, markets, game.NopStore{}, hub, metrics.NopMetrics(), zerolog.Nop())
	authService := auth.NewAuthService(&memUsers{users: make(map[string]*models.User)}, "test-secret")

	h := NewHandler(manager, authService, fakeResults{}, hub, zerolog.Nop())
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = manager.Close(ctx)
		srv.Close()
	})
	return &testServer{Server: srv, manager: manager, hub: hub}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var raw interface{}
	_ = json.NewDecoder(resp.Body).Decode(&raw)
	out, ok := raw.(map[string]interface{})
	if !ok {
		out = map[string]interface{}{"items": raw}
	}
	return resp.StatusCode, out
}

func (s *testServer) login(t *testing.T, username string) string {
	t.Helper()
	creds := map[string]string{"username": username, "password": "password123"}
	status, _ := s.do(t, http.MethodPost, "/register", "", creds)
	require.Equal(t, http.StatusCreated, status)
	status, body := s.do(t, http.MethodPost, "/login", "", creds)
	require.Equal(t, http.StatusOK, status)
	return body["token"].(string)
}

func TestHandler_Register(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name           string
		body           interface{}
		expectedStatus int
	}{
		{"Success", map[string]string{"username": "alice", "password": "pw"}, http.StatusCreated},
		{"Duplicate", map[string]string{"username": "alice", "password": "pw"}, http.StatusConflict},
		{"MissingPassword", map[string]string{"username": "bob"}, http.StatusBadRequest},
		{"BadBody", "not an object", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := s.do(t, http.MethodPost, "/register", "", tt.body)
			assert.Equal(t, tt.expectedStatus, status)
		})
	}
}

func TestHandler_Login(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "alice")

	status, body := s.do(t, http.MethodPost, "/login", "", map[string]string{"username": "alice", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, models.ErrInvalidCredentials.Error(), body["error"])

	status, _ = s.do(t, http.MethodPost, "/login", "", map[string]string{"username": "ghost", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestHandler_AuthRequired(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(t, http.MethodGet, "/lobbies", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _ = s.do(t, http.MethodGet, "/lobbies", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	token := s.login(t, "alice")
	status, body := s.do(t, http.MethodGet, "/lobbies", token, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["items"])
}

func TestHandler_RoundFlow(t *testing.T) {
	s := newTestServer(t)
	alice := s.login(t, "alice")
	bob := s.login(t, "bob")

	status, lobby := s.do(t, http.MethodPost, "/lobbies", alice, map[string]interface{}{"name": "friday", "game_length": 120})
	require.Equal(t, http.StatusCreated, status)
	id := lobby["id"].(string)
	assert.Equal(t, "waiting", lobby["status"])
	_, hidden := lobby["fair_value"]
	assert.False(t, hidden)

	status, _ = s.do(t, http.MethodPost, "/lobbies/"+id+"/start", bob, nil)
	assert.Equal(t, http.StatusNotFound, status, "non-members cannot start")

	status, _ = s.do(t, http.MethodPost, "/lobbies/"+id+"/start", alice, nil)
	assert.Equal(t, http.StatusConflict, status, "one participant is not enough")

	status, _ = s.do(t, http.MethodPost, "/lobbies/"+id+"/join", bob, nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = s.do(t, http.MethodPost, "/lobbies/"+id+"/join", bob, nil)
	assert.Equal(t, http.StatusConflict, status)

	status, _ = s.do(t, http.MethodPost, "/lobbies/"+id+"/bots", alice, map[string]string{"level": "godlike"})
	assert.Equal(t, http.StatusBadRequest, status)
	status, botP := s.do(t, http.MethodPost, "/lobbies/"+id+"/bots", alice, map[string]string{"level": "easy"})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, true, botP["is_bot"])

	status, _ = s.do(t, http.MethodPost, "/lobbies/"+id+"/start", alice, nil)
	assert.Equal(t, http.StatusConflict, status, "humans are not ready")

	for _, tok := range []string{alice, bob} {
		status, _ = s.do(t, http.MethodPost, "/lobbies/"+id+"/ready", tok, map[string]bool{"ready": true})
		require.Equal(t, http.StatusOK, status)
	}
	status, started := s.do(t, http.MethodPost, "/lobbies/"+id+"/start", alice, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "in_progress", started["status"])

	status, _ = s.do(t, http.MethodPost, "/lobbies/"+id+"/orders", alice, map[string]interface{}{"side": "hold", "price": 105, "quantity": 10})
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = s.do(t, http.MethodPost, "/lobbies/"+id+"/orders", alice, map[string]interface{}{"side": "ask", "price": 105, "quantity": 0})
	assert.Equal(t, http.StatusBadRequest, status)

	status, posted := s.do(t, http.MethodPost, "/lobbies/"+id+"/orders", alice, map[string]interface{}{"side": "ask", "price": 105, "quantity": 10})
	require.Equal(t, http.StatusCreated, status)
	require.NotNil(t, posted["order"])

	status, fill := s.do(t, http.MethodPost, "/lobbies/"+id+"/trades", bob, map[string]interface{}{"side": "bid", "price": 110, "quantity": 3})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, fill["filled"])
	trade := fill["trade"].(map[string]interface{})
	assert.Equal(t, 105.0, trade["price"])
	assert.Equal(t, 3.0, trade["quantity"])

	status, fill = s.do(t, http.MethodPost, "/lobbies/"+id+"/trades", bob, map[string]interface{}{"side": "ask", "price": 1, "quantity": 1})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, fill["filled"], "no counterparty is not an error")

	status, book := s.do(t, http.MethodGet, "/lobbies/"+id+"/book", bob, nil)
	require.Equal(t, http.StatusOK, status)
	bestAsk := book["best_ask"].(map[string]interface{})
	assert.Equal(t, 7.0, bestAsk["quantity"])

	status, mine := s.do(t, http.MethodGet, "/lobbies/"+id+"/orders", alice, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, mine["items"], 1)

	status, ended := s.do(t, http.MethodPost, "/lobbies/"+id+"/end", alice, nil)
	require.Equal(t, http.StatusOK, status)
	board := ended["leaderboard"].([]interface{})
	require.Len(t, board, 2)
	first := board[0].(map[string]interface{})
	assert.Equal(t, "alice", first["name"])
	assert.Equal(t, 15.0, first["pnl"])

	status, _ = s.do(t, http.MethodGet, "/lobbies/"+id, alice, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestHandler_CancelOrder(t *testing.T) {
	s := newTestServer(t)
	alice := s.login(t, "alice")
	bob := s.login(t, "bob")

	_, lobby := s.do(t, http.MethodPost, "/lobbies", alice, map[string]interface{}{"name": "x"})
	id := lobby["id"].(string)
	s.do(t, http.MethodPost, "/lobbies/"+id+"/join", bob, nil)
	s.do(t, http.MethodPost, "/lobbies/"+id+"/ready", alice, nil)
	s.do(t, http.MethodPost, "/lobbies/"+id+"/ready", bob, nil)
	status, _ := s.do(t, http.MethodPost, "/lobbies/"+id+"/start", alice, nil)
	require.Equal(t, http.StatusOK, status)

	_, posted := s.do(t, http.MethodPost, "/lobbies/"+id+"/orders", alice, map[string]interface{}{"side": "bid", "price": 90, "quantity": 2})
	orderID := posted["order"].(map[string]interface{})["id"].(string)

	status, _ = s.do(t, http.MethodDelete, "/lobbies/"+id+"/orders/"+orderID, bob, nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = s.do(t, http.MethodDelete, "/lobbies/"+id+"/orders/"+orderID, alice, nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = s.do(t, http.MethodDelete, "/lobbies/"+id+"/orders/"+orderID, alice, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestHandler_ResultsAndStats(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "alice")

	status, body := s.do(t, http.MethodGet, "/results", token, nil)
	require.Equal(t, http.StatusOK, status)
	results := body["items"].([]interface{})
	require.Len(t, results, 1)
	assert.Equal(t, "1", results[0].(map[string]interface{})["participant_id"])

	status, stats := s.do(t, http.MethodGet, "/stats", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1.0, stats["games_played"])
	assert.Equal(t, 100.0, stats["average_accuracy"])
}

func TestHandler_Stream(t *testing.T) {
	s := newTestServer(t)
	alice := s.login(t, "alice")
	bob := s.login(t, "bob")

	_, lobby := s.do(t, http.MethodPost, "/lobbies", alice, map[string]interface{}{"name": "live"})
	id := lobby["id"].(string)

	wsURL := "ws" + strings.TrimPrefix(s.URL, "http") + "/lobbies/" + id + "/ws?token=" + alice
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.hub.Viewers(id) == 1 }, time.Second, 5*time.Millisecond)

	status, _ := s.do(t, http.MethodPost, "/lobbies/"+id+"/join", bob, nil)
	require.Equal(t, http.StatusOK, status)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev struct {
		Type string            `json:"type"`
		Data []json.RawMessage `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, events.PlayerUpdate, ev.Type)
	assert.Len(t, ev.Data, 2)

	status, _ = s.do(t, http.MethodGet, "/lobbies/missing/ws", alice, nil)
	assert.Equal(t, http.StatusNotFound, status)
}
