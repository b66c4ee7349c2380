package models

import "time"

// Side is the side of the book an order rests on.
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// Valid reports whether s is bid or ask.
func (s Side) Valid() bool {
	return s == SideBid || s == SideAsk
}

// Opposite returns the side an order of side s matches against.
func (s Side) Opposite() Side {
	if s == SideBid {
		return SideAsk
	}
	return SideBid
}

// RoundStatus is the lifecycle state of a round.
type RoundStatus string

const (
	StatusWaiting    RoundStatus = "waiting"
	StatusInProgress RoundStatus = "in_progress"
	StatusCompleted  RoundStatus = "completed"
)

// Level is a bot difficulty tier.
type Level string

const (
	LevelEasy   Level = "easy"
	LevelMedium Level = "medium"
	LevelHard   Level = "hard"
	LevelExpert Level = "expert"
)

// ParseLevel maps a level name to a Level, defaulting an empty name to medium.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case "":
		return LevelMedium, nil
	case LevelEasy, LevelMedium, LevelHard, LevelExpert:
		return Level(s), nil
	}
	return "", ErrUnknownLevel
}

// User represents a registered user
type User struct {
	ID           int
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Participant is a human or bot seated in a round.
type Participant struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	IsBot      bool      `json:"is_bot"`
	Level      Level     `json:"level,omitempty"`
	Ready      bool      `json:"ready"`
	LastActive time.Time `json:"last_active"`
}

// Market is the single instrument traded in a round. FairValue is never
// serialized to players.
type Market struct {
	Question  string  `json:"question"`
	FairValue float64 `json:"-"`
}

// Order is a resting bid or ask
type Order struct {
	ID        string    `json:"id"`
	RoundID   string    `json:"round_id"`
	OwnerID   string    `json:"owner_id"`
	Side      Side      `json:"side"`
	Price     float64   `json:"price"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"` // Used for time priority
}

// Trade represents an executed trade
type Trade struct {
	ID         string    `json:"id"`
	RoundID    string    `json:"round_id"`
	BuyerID    string    `json:"buyer_id"`
	SellerID   string    `json:"seller_id"`
	Price      float64   `json:"price"`
	Quantity   int       `json:"quantity"`
	ExecutedAt time.Time `json:"executed_at"`
}

// BookSnapshot is a read-only view of a round's book.
type BookSnapshot struct {
	BestBid      *Order  `json:"best_bid"`
	BestAsk      *Order  `json:"best_ask"`
	Bids         []Order `json:"bids"`
	Asks         []Order `json:"asks"`
	RecentTrades []Trade `json:"recent_trades"`
}

// LeaderboardEntry is one participant's score at the end of a round.
type LeaderboardEntry struct {
	ParticipantID string  `json:"participant_id"`
	Name          string  `json:"name"`
	PnL           float64 `json:"pnl"`
	Accuracy      float64 `json:"accuracy"`
	TradeCount    int     `json:"trade_count"`
}

// RoundView is the player-facing description of a round.
type RoundView struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Capacity     int           `json:"capacity"`
	Status       RoundStatus   `json:"status"`
	Question     string        `json:"question"`
	Remaining    int           `json:"remaining_seconds"`
	Participants []Participant `json:"participants"`
}

// GameResult is a persisted per-participant result row.
type GameResult struct {
	ID              int       `json:"id"`
	ParticipantID   string    `json:"participant_id"`
	RoundID         string    `json:"round_id"`
	Scenario        string    `json:"scenario"`
	PnL             float64   `json:"pnl"`
	Accuracy        float64   `json:"accuracy"`
	TradesCompleted int       `json:"trades_completed"`
	TimeTaken       int       `json:"time_taken"`
	CreatedAt       time.Time `json:"created_at"`
}

// Stats aggregates a participant's results across rounds.
type Stats struct {
	GamesPlayed     int     `json:"games_played"`
	TotalPnL        float64 `json:"total_pnl"`
	AverageAccuracy float64 `json:"average_accuracy"`
	TotalTrades     int     `json:"total_trades"`
}
