package game

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/xtrntr/tradinggame/internal/bot"
	"github.com/xtrntr/tradinggame/internal/events"
	"github.com/xtrntr/tradinggame/internal/market"
	"github.com/xtrntr/tradinggame/internal/metrics"
	"github.com/xtrntr/tradinggame/internal/models"
	"github.com/xtrntr/tradinggame/internal/scoring"
)

// Settings tune round timing and capacity.
type Settings struct {
	RoundLength   time.Duration
	BotInterval   time.Duration
	CountdownTick time.Duration
	QuoteDwell    time.Duration
	MaxPlayers    int
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		RoundLength:   5 * time.Minute,
		BotInterval:   5 * time.Second,
		CountdownTick: time.Second,
		QuoteDwell:    bot.DefaultDwell,
		MaxPlayers:    8,
	}
}

// closer is implemented by publishers that hold per-round connections.
type closer interface {
	CloseRound(roundID string)
}

// Manager owns the set of active rounds and drives their lifecycle:
// lobby, start, the countdown and bot loops, and the end of play.
type Manager struct {
	rounds   *Registry
	markets  *market.Registry
	store    Store
	pub      events.Publisher
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	settings Settings

	rngMu sync.Mutex
	rng   *rand.Rand
	now   func() time.Time

	// wg tracks every running countdown and bot loop. closed is set by
	// Close; no loop is added to wg afterwards.
	wg     sync.WaitGroup
	lifeMu sync.Mutex
	closed bool
}

// NewManager creates a manager with no rounds.
func NewManager(settings Settings, markets *market.Registry, store Store, pub events.Publisher, m *metrics.Metrics, logger zerolog.Logger) *Manager {
	if store == nil {
		store = NopStore{}
	}
	if pub == nil {
		pub = events.Nop{}
	}
	if m == nil {
		m = metrics.NopMetrics()
	}
	return &Manager{
		rounds:   NewRegistry(),
		markets:  markets,
		store:    store,
		pub:      pub,
		metrics:  m,
		logger:   logger,
		settings: settings,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
	}
}

// SetRand replaces the randomness source used for markets and bots.
func (m *Manager) SetRand(rng *rand.Rand) {
	m.rngMu.Lock()
	defer m.rngMu.Unlock()
	m.rng = rng
}

// SetClock replaces the clock used for rounds, books and bots.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Settings returns the manager's settings.
func (m *Manager) Settings() Settings {
	return m.settings
}

func (m *Manager) seed() int64 {
	m.rngMu.Lock()
	defer m.rngMu.Unlock()
	return m.rng.Int63()
}

func (m *Manager) pickMarket() models.Market {
	m.rngMu.Lock()
	defer m.rngMu.Unlock()
	return m.markets.Random(m.rng)
}

func (m *Manager) get(roundID string) (*Round, error) {
	r, ok := m.rounds.Get(roundID)
	if !ok {
		return nil, models.ErrRoundNotFound
	}
	return r, nil
}

// CreateRound opens a lobby with a randomly drawn market. Zero capacity or
// length fall back to the configured defaults.
func (m *Manager) CreateRound(ctx context.Context, name string, capacity int, length time.Duration) (models.RoundView, error) {
	if m.isClosed() {
		return models.RoundView{}, models.ErrShuttingDown
	}
	if name == "" {
		return models.RoundView{}, &models.ValidationError{Message: "round name is required"}
	}
	if capacity == 0 {
		capacity = m.settings.MaxPlayers
	}
	if capacity < 2 || capacity > m.settings.MaxPlayers {
		return models.RoundView{}, &models.ValidationError{
			Message: fmt.Sprintf("capacity must be between 2 and %d", m.settings.MaxPlayers),
		}
	}
	if length == 0 {
		length = m.settings.RoundLength
	}
	if length < time.Second {
		return models.RoundView{}, &models.ValidationError{Message: "round length must be at least one second"}
	}

	r := newRound(uuid.New().String(), name, capacity, length, m.pickMarket(), m.now())
	r.book.SetClock(m.now)

	err := m.store.CreateGame(ctx, GameRecord{
		ID:         r.ID,
		Name:       r.Name,
		Scenario:   r.market.Question,
		Status:     models.StatusWaiting,
		GameLength: int(length / time.Second),
	})
	if err != nil {
		return models.RoundView{}, fmt.Errorf("failed to create game: %w", err)
	}

	m.rounds.add(r)
	m.metrics.RoundsActive.Inc()
	m.logger.Info().Str("round", r.ID).Str("name", name).Int("capacity", capacity).Msg("round created")

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view(), nil
}

// Rounds lists active rounds, oldest first.
func (m *Manager) Rounds() []models.RoundView {
	all := m.rounds.All()
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	out := make([]models.RoundView, 0, len(all))
	for _, r := range all {
		r.mu.Lock()
		out = append(out, r.view())
		r.mu.Unlock()
	}
	return out
}

// Round returns the current view of one round.
func (m *Manager) Round(roundID string) (models.RoundView, error) {
	r, err := m.get(roundID)
	if err != nil {
		return models.RoundView{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view(), nil
}

// canJoin must be called with mu held.
func (r *Round) canJoin(participantID string) error {
	if r.status != models.StatusWaiting {
		return models.ErrRoundNotWaiting
	}
	if r.indexOf(participantID) >= 0 {
		return models.ErrAlreadyJoined
	}
	if len(r.participants) >= r.Capacity {
		return models.ErrRoundFull
	}
	return nil
}

// Join adds a human participant to a waiting round.
func (m *Manager) Join(ctx context.Context, roundID string, p models.Participant) (models.RoundView, error) {
	if p.ID == "" {
		return models.RoundView{}, &models.ValidationError{Message: "participant id is required"}
	}
	r, err := m.get(roundID)
	if err != nil {
		return models.RoundView{}, err
	}

	r.mu.Lock()
	if err := r.canJoin(p.ID); err != nil {
		r.mu.Unlock()
		return models.RoundView{}, err
	}
	p.IsBot = false
	p.Ready = false
	p.LastActive = m.now()
	if err := m.store.AddParticipant(ctx, r.ID, p); err != nil {
		r.mu.Unlock()
		return models.RoundView{}, fmt.Errorf("failed to add participant: %w", err)
	}
	r.participants = append(r.participants, p)
	r.roster[p.ID] = p
	view := r.view()
	r.mu.Unlock()

	m.logger.Info().Str("round", r.ID).Str("participant", p.ID).Msg("participant joined")
	m.pub.Publish(r.ID, events.Event{Type: events.PlayerUpdate, Data: view.Participants})
	return view, nil
}

// AddBot adds a bot of the given level to a waiting round. Bots are always
// ready.
func (m *Manager) AddBot(ctx context.Context, roundID string, level models.Level) (models.Participant, error) {
	r, err := m.get(roundID)
	if err != nil {
		return models.Participant{}, err
	}

	r.mu.Lock()
	id := "bot-" + uuid.New().String()
	if err := r.canJoin(id); err != nil {
		r.mu.Unlock()
		return models.Participant{}, err
	}
	name := fmt.Sprintf("Bot %d (%s)", len(r.bots)+1, level)
	b, err := bot.New(id, name, level, r.market.FairValue,
		bot.WithRand(rand.New(rand.NewSource(m.seed()))),
		bot.WithClock(m.now),
		bot.WithDwell(m.settings.QuoteDwell),
	)
	if err != nil {
		r.mu.Unlock()
		return models.Participant{}, err
	}
	p := models.Participant{ID: id, Name: name, IsBot: true, Level: level, Ready: true, LastActive: m.now()}
	if err := m.store.AddParticipant(ctx, r.ID, p); err != nil {
		r.mu.Unlock()
		return models.Participant{}, fmt.Errorf("failed to add bot: %w", err)
	}
	r.participants = append(r.participants, p)
	r.roster[id] = p
	r.bots = append(r.bots, b)
	view := r.view()
	r.mu.Unlock()

	m.logger.Info().Str("round", r.ID).Str("bot", id).Str("level", string(level)).Msg("bot added")
	m.pub.Publish(r.ID, events.Event{Type: events.PlayerUpdate, Data: view.Participants})
	return p, nil
}

// SetReady marks a participant of a waiting round ready or not.
func (m *Manager) SetReady(ctx context.Context, roundID, participantID string, ready bool) (models.RoundView, error) {
	r, err := m.get(roundID)
	if err != nil {
		return models.RoundView{}, err
	}

	r.mu.Lock()
	if r.status != models.StatusWaiting {
		r.mu.Unlock()
		return models.RoundView{}, models.ErrRoundNotWaiting
	}
	i := r.indexOf(participantID)
	if i < 0 {
		r.mu.Unlock()
		return models.RoundView{}, models.ErrParticipantNotFound
	}
	r.participants[i].Ready = ready
	r.participants[i].LastActive = m.now()
	view := r.view()
	r.mu.Unlock()

	m.pub.Publish(r.ID, events.Event{Type: events.PlayerUpdate, Data: view.Participants})
	return view, nil
}

// Leave removes a participant. A round left without humans is ended.
func (m *Manager) Leave(ctx context.Context, roundID, participantID string) error {
	r, err := m.get(roundID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	i := r.indexOf(participantID)
	if i < 0 {
		r.mu.Unlock()
		return models.ErrParticipantNotFound
	}
	r.participants = append(r.participants[:i], r.participants[i+1:]...)
	for j, b := range r.bots {
		if b.ID == participantID {
			r.bots = append(r.bots[:j], r.bots[j+1:]...)
			break
		}
	}
	if err := m.store.RemoveParticipant(ctx, r.ID, participantID); err != nil {
		m.logger.Error().Err(err).Str("round", r.ID).Str("participant", participantID).Msg("failed to remove participant")
	}
	empty := r.humans() == 0
	view := r.view()
	r.mu.Unlock()

	m.logger.Info().Str("round", r.ID).Str("participant", participantID).Msg("participant left")
	if empty {
		_, err := m.End(ctx, r.ID)
		return err
	}
	m.pub.Publish(r.ID, events.Event{Type: events.PlayerUpdate, Data: view.Participants})
	return nil
}

// Start begins play. The round must be waiting with at least two
// participants, all of them ready.
func (m *Manager) Start(ctx context.Context, roundID string) (models.RoundView, error) {
	r, err := m.get(roundID)
	if err != nil {
		return models.RoundView{}, err
	}

	r.mu.Lock()
	if r.status != models.StatusWaiting {
		r.mu.Unlock()
		return models.RoundView{}, models.ErrRoundNotWaiting
	}
	if len(r.participants) < 2 {
		r.mu.Unlock()
		return models.RoundView{}, models.ErrNotEnoughParticipants
	}
	for _, p := range r.participants {
		if !p.Ready {
			r.mu.Unlock()
			return models.RoundView{}, models.ErrParticipantsNotReady
		}
	}
	m.lifeMu.Lock()
	if m.closed {
		m.lifeMu.Unlock()
		r.mu.Unlock()
		return models.RoundView{}, models.ErrShuttingDown
	}
	if err := m.store.SetGameStatus(ctx, r.ID, models.StatusInProgress); err != nil {
		m.lifeMu.Unlock()
		r.mu.Unlock()
		return models.RoundView{}, fmt.Errorf("failed to start game: %w", err)
	}
	m.wg.Add(2)
	m.lifeMu.Unlock()

	r.status = models.StatusInProgress
	r.remaining = int(r.Length / time.Second)
	loopCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go m.runCountdown(loopCtx, r)
	go m.runBots(loopCtx, r)

	view := r.view()
	snap := r.book.Snapshot()
	r.mu.Unlock()

	m.logger.Info().Str("round", r.ID).Int("participants", len(view.Participants)).Msg("round started")
	m.pub.Publish(r.ID, events.Event{Type: events.RoundStarted, Data: view})
	m.pub.Publish(r.ID, events.NewMarket(snap))
	return view, nil
}

// End completes a round: loops are stopped, a played round is scored and
// its results saved, transient rows are purged and the round leaves the
// active set. Ending a round that another caller is already ending is a
// no-op returning a nil leaderboard.
func (m *Manager) End(ctx context.Context, roundID string) ([]models.LeaderboardEntry, error) {
	r, err := m.get(roundID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.status == models.StatusCompleted {
		r.mu.Unlock()
		return nil, nil
	}
	played := r.status == models.StatusInProgress
	r.status = models.StatusCompleted
	r.cancel()

	log := m.logger.With().Str("round", r.ID).Logger()
	var board []models.LeaderboardEntry
	if played {
		everyone := r.everyone()
		board = scoring.Finalize(r.book.Trades(), r.market.FairValue, everyone)
		elapsed := int(r.Length/time.Second) - r.remaining
		results := scoring.Results(r.ID, r.market.Question, elapsed, board, everyone)
		if len(results) > 0 {
			if err := m.store.SaveResults(ctx, results); err != nil {
				log.Error().Err(err).Msg("failed to save results")
			}
		}
	}
	if err := m.store.SetGameStatus(ctx, r.ID, models.StatusCompleted); err != nil {
		log.Error().Err(err).Msg("failed to complete game")
	}
	if err := m.store.PurgeRound(ctx, r.ID); err != nil {
		log.Error().Err(err).Msg("failed to purge round")
	}
	question, fairValue := r.market.Question, r.market.FairValue
	r.mu.Unlock()

	m.rounds.remove(r.ID)
	m.metrics.RoundsActive.Dec()
	m.metrics.RoundsCompleted.WithLabelValues(fmt.Sprint(played)).Inc()
	log.Info().Bool("played", played).Int("ranked", len(board)).Msg("round ended")

	if played {
		if board == nil {
			board = []models.LeaderboardEntry{}
		}
		m.pub.Publish(r.ID, events.Event{Type: events.GameEndLeaderboard, Data: events.Leaderboard{
			Question:    question,
			FairValue:   fairValue,
			Leaderboard: board,
		}})
	}
	m.pub.Publish(r.ID, events.Event{Type: events.LobbyEnded, Data: map[string]string{"round_id": r.ID}})
	if c, ok := m.pub.(closer); ok {
		c.CloseRound(r.ID)
	}
	return board, nil
}

// Close refuses new rounds and starts, ends every active round and waits
// for their loops to exit.
func (m *Manager) Close(ctx context.Context) error {
	m.lifeMu.Lock()
	m.closed = true
	m.lifeMu.Unlock()

	for _, r := range m.rounds.All() {
		if _, err := m.End(ctx, r.ID); err != nil {
			m.logger.Warn().Err(err).Str("round", r.ID).Msg("failed to end round on shutdown")
		}
	}
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) isClosed() bool {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	return m.closed
}
