package game

import (
	"context"
	"sync"
	"time"

	"github.com/xtrntr/tradinggame/internal/bot"
	"github.com/xtrntr/tradinggame/internal/exchange"
	"github.com/xtrntr/tradinggame/internal/models"
)

// Round is one play-session with its own market, book and participants.
// All fields below mu are guarded by it.
type Round struct {
	ID        string
	Name      string
	Capacity  int
	Length    time.Duration
	CreatedAt time.Time

	mu           sync.Mutex
	status       models.RoundStatus
	participants []models.Participant
	roster       map[string]models.Participant // everyone who ever joined, for display and scoring
	remaining    int
	market       models.Market
	book         *exchange.Book
	bots         []*bot.Bot

	// cancel stops the round's countdown and bot loops.
	cancel context.CancelFunc
}

func newRound(id, name string, capacity int, length time.Duration, m models.Market, now time.Time) *Round {
	return &Round{
		ID:        id,
		Name:      name,
		Capacity:  capacity,
		Length:    length,
		CreatedAt: now,
		status:    models.StatusWaiting,
		roster:    make(map[string]models.Participant),
		remaining: int(length / time.Second),
		market:    m,
		book:      exchange.NewBook(id),
		cancel:    func() {},
	}
}

// view must be called with mu held.
func (r *Round) view() models.RoundView {
	ps := make([]models.Participant, len(r.participants))
	copy(ps, r.participants)
	return models.RoundView{
		ID:           r.ID,
		Name:         r.Name,
		Capacity:     r.Capacity,
		Status:       r.status,
		Question:     r.market.Question,
		Remaining:    r.remaining,
		Participants: ps,
	}
}

func (r *Round) indexOf(participantID string) int {
	for i, p := range r.participants {
		if p.ID == participantID {
			return i
		}
	}
	return -1
}

func (r *Round) humans() int {
	n := 0
	for _, p := range r.participants {
		if !p.IsBot {
			n++
		}
	}
	return n
}

func (r *Round) touch(participantID string, now time.Time) {
	if i := r.indexOf(participantID); i >= 0 {
		r.participants[i].LastActive = now
	}
}

func (r *Round) name(participantID string) string {
	if p, ok := r.roster[participantID]; ok {
		return p.Name
	}
	return participantID
}

func (r *Round) everyone() []models.Participant {
	out := make([]models.Participant, 0, len(r.roster))
	for _, p := range r.roster {
		out = append(out, p)
	}
	return out
}

// Registry is the set of active rounds.
type Registry struct {
	mu     sync.RWMutex
	rounds map[string]*Round
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{rounds: make(map[string]*Round)}
}

// Get retrieves a round by id
func (g *Registry) Get(id string) (*Round, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.rounds[id]
	return r, ok
}

func (g *Registry) add(r *Round) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rounds[r.ID] = r
}

func (g *Registry) remove(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.rounds, id)
}

// All returns every active round.
func (g *Registry) All() []*Round {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Round, 0, len(g.rounds))
	for _, r := range g.rounds {
		out = append(out, r)
	}
	return out
}

// Len returns the number of active rounds.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rounds)
}
