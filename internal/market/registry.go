package market

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/xtrntr/tradinggame/internal/models"
)

// Registry is the catalogue of questions a round's market is drawn from.
type Registry struct {
	mu      sync.RWMutex
	answers map[string]float64
	keys    []string // sorted, so a seeded source picks deterministically
}

// NewRegistry creates a registry preloaded with the built-in catalogue.
func NewRegistry() *Registry {
	return NewRegistryFrom(defaultCatalog)
}

// NewRegistryFrom creates a registry holding exactly the given questions.
func NewRegistryFrom(catalog map[string]float64) *Registry {
	r := &Registry{answers: make(map[string]float64, len(catalog))}
	for q, a := range catalog {
		r.answers[q] = a
		r.keys = append(r.keys, q)
	}
	sort.Strings(r.keys)
	return r
}

// Random returns a uniformly chosen market. The registry must not be empty.
func (r *Registry) Random(rng *rand.Rand) models.Market {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q := r.keys[rng.Intn(len(r.keys))]
	return models.Market{Question: q, FairValue: r.answers[q]}
}

// Answer returns the fair value for a question.
func (r *Registry) Answer(question string) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.answers[question]
	return a, ok
}

// All returns a copy of the catalogue.
func (r *Registry) All() map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]float64, len(r.answers))
	for q, a := range r.answers {
		out[q] = a
	}
	return out
}

// Len returns the number of questions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.keys)
}

// Add registers a new question. Duplicates are rejected.
func (r *Registry) Add(question string, answer float64) error {
	if question == "" {
		return &models.ValidationError{Message: "question cannot be empty"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.answers[question]; ok {
		return models.ErrMarketExists
	}
	r.answers[question] = answer
	i := sort.SearchStrings(r.keys, question)
	r.keys = append(r.keys, "")
	copy(r.keys[i+1:], r.keys[i:])
	r.keys[i] = question
	return nil
}
