package game

import (
	"context"

	"github.com/xtrntr/tradinggame/internal/models"
)

// GameRecord is the persisted header of a round.
type GameRecord struct {
	ID         string
	Name       string
	Scenario   string
	Status     models.RoundStatus
	GameLength int // seconds
}

// Store is the durable side of a round: orders, trades and final results,
// keyed by round id.
type Store interface {
	CreateGame(ctx context.Context, g GameRecord) error
	AddParticipant(ctx context.Context, roundID string, p models.Participant) error
	RemoveParticipant(ctx context.Context, roundID, participantID string) error
	SaveOrder(ctx context.Context, o models.Order) error
	UpdateOrderQuantity(ctx context.Context, orderID string, qty int) error
	DeleteOrder(ctx context.Context, orderID string) error
	SaveTrade(ctx context.Context, t models.Trade) error
	SaveResults(ctx context.Context, results []models.GameResult) error
	SetGameStatus(ctx context.Context, roundID string, status models.RoundStatus) error
	// PurgeRound deletes the round's orders, trades and participants.
	PurgeRound(ctx context.Context, roundID string) error
}

// NopStore persists nothing. It is used when the game runs without a database.
type NopStore struct{}

func (NopStore) CreateGame(context.Context, GameRecord) error { return nil }
func (NopStore) AddParticipant(context.Context, string, models.Participant) error { return nil }
func (NopStore) RemoveParticipant(context.Context, string, string) error { return nil }
func (NopStore) SaveOrder(context.Context, models.Order) error { return nil }
func (NopStore) UpdateOrderQuantity(context.Context, string, int) error { return nil }
func (NopStore) DeleteOrder(context.Context, string) error { return nil }
func (NopStore) SaveTrade(context.Context, models.Trade) error { return nil }
func (NopStore) SaveResults(context.Context, []models.GameResult) error { return nil }
func (NopStore) SetGameStatus(context.Context, string, models.RoundStatus) error { return nil }
func (NopStore) PurgeRound(context.Context, string) error { return nil }
