package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/xtrntr/tradinggame/internal/auth"
	"github.com/xtrntr/tradinggame/internal/game"
	"github.com/xtrntr/tradinggame/internal/models"
)

type ctxKey struct{}

// ResultsReader serves a player's history.
type ResultsReader interface {
	GetUserResults(ctx context.Context, participantID string) ([]models.GameResult, error)
	GetUserStats(ctx context.Context, participantID string) (models.Stats, error)
}

// Viewers upgrades a request into a live event stream for a round.
type Viewers interface {
	Serve(w http.ResponseWriter, r *http.Request, roundID string)
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	Game        *game.Manager
	AuthService *auth.AuthService
	Results     ResultsReader
	Viewers     Viewers
	Logger      zerolog.Logger
}

// NewHandler creates a new handler
func NewHandler(g *game.Manager, authService *auth.AuthService, results ResultsReader, viewers Viewers, logger zerolog.Logger) *Handler {
	return &Handler{Game: g, AuthService: authService, Results: results, Viewers: viewers, Logger: logger}
}

// Routes mounts every endpoint on a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)

	r.Group(func(r chi.Router) {
		r.Use(h.JWTAuthMiddleware)
		r.Get("/lobbies", h.ListLobbies)
		r.Post("/lobbies", h.CreateLobby)
		r.Route("/lobbies/{id}", func(r chi.Router) {
			r.Get("/", h.GetLobby)
			r.Post("/join", h.JoinLobby)
			r.Post("/leave", h.LeaveLobby)
			r.Post("/ready", h.SetReady)
			r.Post("/bots", h.AddBot)
			r.Post("/start", h.StartRound)
			r.Post("/end", h.EndRound)
			r.Get("/book", h.GetOrderBook)
			r.Get("/orders", h.GetUserOrders)
			r.Post("/orders", h.PlaceOrder)
			r.Delete("/orders/{orderID}", h.CancelOrder)
			r.Post("/trades", h.Trade)
			r.Get("/ws", h.Stream)
		})
		r.Get("/results", h.GetUserResults)
		r.Get("/stats", h.GetUserStats)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to status codes. Anything unrecognized is a 500.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *models.ValidationError
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &verr), errors.Is(err, models.ErrUnknownLevel):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrInvalidCredentials), errors.Is(err, models.ErrInvalidToken):
		status = http.StatusUnauthorized
	case errors.Is(err, models.ErrRoundNotFound),
		errors.Is(err, models.ErrParticipantNotFound),
		errors.Is(err, models.ErrOrderNotFound),
		errors.Is(err, models.ErrUserNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrRoundFull),
		errors.Is(err, models.ErrRoundNotWaiting),
		errors.Is(err, models.ErrRoundNotInProgress),
		errors.Is(err, models.ErrNotEnoughParticipants),
		errors.Is(err, models.ErrParticipantsNotReady),
		errors.Is(err, models.ErrAlreadyJoined),
		errors.Is(err, models.ErrUsernameTaken):
		status = http.StatusConflict
	case errors.Is(err, models.ErrShuttingDown):
		status = http.StatusServiceUnavailable
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.Logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func decode(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return &models.ValidationError{Message: "Invalid request body"}
	}
	return nil
}

func identity(r *http.Request) auth.Identity {
	id, _ := r.Context().Value(ctxKey{}).(auth.Identity)
	return id
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	user, err := h.AuthService.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":       user.ID,
		"username": user.Username,
	})
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	token, err := h.AuthService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// JWTAuthMiddleware verifies JWT tokens. Browsers cannot set headers on a
// websocket upgrade, so a token query parameter is accepted too.
func (h *Handler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}
		if tokenString == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Authorization header required"})
			return
		}

		id, err := h.AuthService.Verify(tokenString)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid or expired token"})
			return
		}

		ctx := context.WithValue(r.Context(), ctxKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ListLobbies lists every active round
func (h *Handler) ListLobbies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Game.Rounds())
}

// CreateLobby opens a round and joins its creator
func (h *Handler) CreateLobby(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string `json:"name"`
		MaxPlayers int    `json:"max_players"`
		GameLength int    `json:"game_length"` // seconds
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.GameLength < 0 {
		h.writeError(w, r, &models.ValidationError{Message: "game_length must be positive"})
		return
	}

	view, err := h.Game.CreateRound(r.Context(), req.Name, req.MaxPlayers, time.Duration(req.GameLength)*time.Second)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id := identity(r)
	view, err = h.Game.Join(r.Context(), view.ID, models.Participant{ID: id.ParticipantID(), Name: id.Username})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// GetLobby returns one round
func (h *Handler) GetLobby(w http.ResponseWriter, r *http.Request) {
	view, err := h.Game.Round(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// JoinLobby adds the caller to a waiting round
func (h *Handler) JoinLobby(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	view, err := h.Game.Join(r.Context(), chi.URLParam(r, "id"), models.Participant{ID: id.ParticipantID(), Name: id.Username})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// LeaveLobby removes the caller from a round
func (h *Handler) LeaveLobby(w http.ResponseWriter, r *http.Request) {
	if err := h.Game.Leave(r.Context(), chi.URLParam(r, "id"), identity(r).ParticipantID()); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Left lobby"})
}

// SetReady toggles the caller's ready flag
func (h *Handler) SetReady(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Ready *bool `json:"ready"`
	}{}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ready := true
	if req.Ready != nil {
		ready = *req.Ready
	}
	view, err := h.Game.SetReady(r.Context(), chi.URLParam(r, "id"), identity(r).ParticipantID(), ready)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// AddBot adds a bot to a round the caller belongs to
func (h *Handler) AddBot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Level string `json:"level"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	level, err := models.ParseLevel(req.Level)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	roundID := chi.URLParam(r, "id")
	if err := h.member(roundID, identity(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.Game.AddBot(r.Context(), roundID, level)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// StartRound starts a round the caller belongs to
func (h *Handler) StartRound(w http.ResponseWriter, r *http.Request) {
	roundID := chi.URLParam(r, "id")
	if err := h.member(roundID, identity(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	view, err := h.Game.Start(r.Context(), roundID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// EndRound ends a round early and returns its leaderboard
func (h *Handler) EndRound(w http.ResponseWriter, r *http.Request) {
	roundID := chi.URLParam(r, "id")
	if err := h.member(roundID, identity(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	board, err := h.Game.End(r.Context(), roundID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if board == nil {
		board = []models.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"leaderboard": board})
}

func (h *Handler) member(roundID string, id auth.Identity) error {
	view, err := h.Game.Round(roundID)
	if err != nil {
		return err
	}
	for _, p := range view.Participants {
		if p.ID == id.ParticipantID() {
			return nil
		}
	}
	return models.ErrParticipantNotFound
}

type orderRequest struct {
	Side     models.Side `json:"side"`
	Price    float64     `json:"price"`
	Quantity int         `json:"quantity"`
}

// PlaceOrder posts a resting quote for the caller
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.Game.PostOrder(r.Context(), chi.URLParam(r, "id"), identity(r).ParticipantID(), req.Side, req.Price, req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Trade sends a marketable order for the caller. No counterparty is a 200
// with filled false.
func (h *Handler) Trade(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	fr, err := h.Game.Trade(r.Context(), chi.URLParam(r, "id"), identity(r).ParticipantID(), req.Side, req.Price, req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fr)
}

// GetUserOrders lists the caller's resting orders in a round
func (h *Handler) GetUserOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Game.Orders(chi.URLParam(r, "id"), identity(r).ParticipantID())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// CancelOrder withdraws one of the caller's resting orders
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Game.CancelOrder(r.Context(), chi.URLParam(r, "id"), identity(r).ParticipantID(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// GetOrderBook returns the book of a round
func (h *Handler) GetOrderBook(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Game.Snapshot(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Stream upgrades to a websocket carrying the round's events
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	roundID := chi.URLParam(r, "id")
	if _, err := h.Game.Round(roundID); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.Viewers.Serve(w, r, roundID)
}

// GetUserResults lists the caller's finished games
func (h *Handler) GetUserResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.Results.GetUserResults(r.Context(), identity(r).ParticipantID())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// GetUserStats returns the caller's aggregate stats
func (h *Handler) GetUserStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Results.GetUserStats(r.Context(), identity(r).ParticipantID())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
