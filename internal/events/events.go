package events

import (
	"time"

	"github.com/xtrntr/tradinggame/internal/models"
)

// Event names sent to round viewers.
const (
	MarketUpdate       = "market_update"
	TradeUpdate        = "trade_update"
	PlayerUpdate       = "player_update"
	RoundStarted       = "round_started"
	TimerUpdate        = "timer_update"
	TimerEnded         = "timer_ended"
	GameEndLeaderboard = "game_end_leaderboard"
	LobbyEnded         = "lobby_ended"
)

// Event is a notification for every viewer of a round.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Publisher is a best-effort, one-way sink for round events.
type Publisher interface {
	Publish(roundID string, ev Event)
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(string, Event) {}

// PriceLevel is one order as shown to viewers.
type PriceLevel struct {
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Market is the payload of MarketUpdate.
type Market struct {
	Bids []PriceLevel `json:"bids"`
	Asks []PriceLevel `json:"asks"`
}

// Trade is the payload of TradeUpdate.
type Trade struct {
	Price      float64   `json:"price"`
	Quantity   int       `json:"quantity"`
	BuyerID    string    `json:"buyer_id"`
	BuyerName  string    `json:"buyer_name"`
	SellerID   string    `json:"seller_id"`
	SellerName string    `json:"seller_name"`
	Time       time.Time `json:"time"`
}

// Timer is the payload of TimerUpdate.
type Timer struct {
	Remaining int `json:"game_length"`
}

// Leaderboard is the payload of GameEndLeaderboard.
type Leaderboard struct {
	Question    string                    `json:"question"`
	FairValue   float64                   `json:"fair_value"`
	Leaderboard []models.LeaderboardEntry `json:"leaderboard"`
}

// NewMarket builds a MarketUpdate event from a snapshot.
func NewMarket(snap models.BookSnapshot) Event {
	return Event{Type: MarketUpdate, Data: Market{Bids: levels(snap.Bids), Asks: levels(snap.Asks)}}
}

func levels(orders []models.Order) []PriceLevel {
	out := make([]PriceLevel, len(orders))
	for i, o := range orders {
		out[i] = PriceLevel{Price: o.Price, Quantity: o.Quantity}
	}
	return out
}
