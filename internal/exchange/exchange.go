package exchange

import (
	"time"

	"github.com/google/btree"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xtrntr/tradinggame/internal/models"
)

// RecentTradeLimit is the number of trades reported in a snapshot.
const RecentTradeLimit = 10

// PriceDecimals is the price precision the book accepts, matching the
// DECIMAL(18,2) price columns.
const PriceDecimals = 2

// entry is a resting order keyed for price-time priority. seq breaks ties
// between orders created within the same clock tick.
type entry struct {
	price     float64
	createdAt time.Time
	seq       uint64
	order     *models.Order
}

// Bids: highest price first, then earliest time
func bidLess(a, b entry) bool {
	if a.price != b.price {
		return a.price > b.price
	}
	if !a.createdAt.Equal(b.createdAt) {
		return a.createdAt.Before(b.createdAt)
	}
	return a.seq < b.seq
}

// Asks: lowest price first, then earliest time
func askLess(a, b entry) bool {
	if a.price != b.price {
		return a.price < b.price
	}
	if !a.createdAt.Equal(b.createdAt) {
		return a.createdAt.Before(b.createdAt)
	}
	return a.seq < b.seq
}

// FillResult describes the outcome of a marketable order.
type FillResult struct {
	Filled        bool         `json:"filled"`
	Trade         models.Trade `json:"trade"`
	Resting       models.Order `json:"resting"`        // resting order after the fill
	RestingFilled bool         `json:"resting_filled"` // resting order left the book
	Unfilled      int          `json:"unfilled"`       // taker quantity dropped
}

// PostResult describes the outcome of posting a quote.
type PostResult struct {
	Order     *models.Order  `json:"order"`     // rested order, nil if fully matched on entry
	Fills     []FillResult   `json:"fills"`     // matches made because the quote crossed the book
	Cancelled []models.Order `json:"cancelled"` // owner's own orders the quote would have crossed
}

// Book is the order book and matching engine of a single round. It is not
// safe for concurrent use; callers serialize access with the round lock.
type Book struct {
	roundID string
	bids    *btree.BTreeG[entry]
	asks    *btree.BTreeG[entry]
	index   map[string]entry // order id -> entry
	trades  []models.Trade   // append-only, oldest first
	seq     uint64

	now   func() time.Time
	newID func() string
}

// NewBook creates an empty book for a round.
func NewBook(roundID string) *Book {
	const degree = 16
	return &Book{
		roundID: roundID,
		bids:    btree.NewG[entry](degree, bidLess),
		asks:    btree.NewG[entry](degree, askLess),
		index:   make(map[string]entry),
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
}

// SetClock replaces the clock used to timestamp orders and trades.
func (b *Book) SetClock(now func() time.Time) {
	b.now = now
}

// RoundID returns the round the book belongs to.
func (b *Book) RoundID() string {
	return b.roundID
}

func validate(side models.Side, price float64, qty int) error {
	if !side.Valid() {
		return &models.ValidationError{Message: "side must be 'bid' or 'ask'"}
	}
	if price <= 0 {
		return &models.ValidationError{Message: "price must be positive"}
	}
	if p := decimal.NewFromFloat(price); !p.Equal(p.Round(PriceDecimals)) {
		return &models.ValidationError{Message: "price must have at most 2 decimal places"}
	}
	if qty <= 0 {
		return &models.ValidationError{Message: "quantity must be positive"}
	}
	return nil
}

func (b *Book) side(s models.Side) *btree.BTreeG[entry] {
	if s == models.SideBid {
		return b.bids
	}
	return b.asks
}

// acceptable reports whether a resting order on the opposite side can fill a
// taker of side s with the given limit.
func acceptable(s models.Side, limit, resting float64) bool {
	if s == models.SideBid {
		return resting <= limit
	}
	return resting >= limit
}

// bestOpposing returns the highest-priority opposing order acceptable to the
// taker's limit, skipping the taker's own orders.
func (b *Book) bestOpposing(s models.Side, limit float64, takerID string) (entry, bool) {
	var found entry
	var ok bool
	b.side(s.Opposite()).Ascend(func(e entry) bool {
		if !acceptable(s, limit, e.price) {
			return false
		}
		if e.order.OwnerID == takerID {
			return true
		}
		found, ok = e, true
		return false
	})
	return found, ok
}

// PlaceMarketable matches an incoming order against the single best
// acceptable opposing order at the resting order's price. Any quantity the
// resting order cannot absorb is dropped; the taker is never rested.
func (b *Book) PlaceMarketable(s models.Side, price float64, qty int, takerID string) (FillResult, error) {
	if err := validate(s, price, qty); err != nil {
		return FillResult{}, err
	}
	best, ok := b.bestOpposing(s, price, takerID)
	if !ok {
		return FillResult{Unfilled: qty}, nil
	}
	return b.fill(s, best, qty, takerID), nil
}

// fill executes qty (capped by the resting order) against e.
func (b *Book) fill(s models.Side, e entry, qty int, takerID string) FillResult {
	resting := e.order
	tradeQty := min(qty, resting.Quantity)

	trade := models.Trade{
		ID:         b.newID(),
		RoundID:    b.roundID,
		Price:      resting.Price,
		Quantity:   tradeQty,
		ExecutedAt: b.now(),
	}
	if s == models.SideBid {
		trade.BuyerID, trade.SellerID = takerID, resting.OwnerID
	} else {
		trade.BuyerID, trade.SellerID = resting.OwnerID, takerID
	}
	b.trades = append(b.trades, trade)

	resting.Quantity -= tradeQty
	filled := resting.Quantity == 0
	if filled {
		b.remove(e)
	}

	return FillResult{
		Filled:        true,
		Trade:         trade,
		Resting:       *resting,
		RestingFilled: filled,
		Unfilled:      qty - tradeQty,
	}
}

func (b *Book) remove(e entry) {
	b.side(e.order.Side).Delete(e)
	delete(b.index, e.order.ID)
}

// PostResting inserts a quote. A quote that would cross the owner's own
// opposing orders cancels them; a quote that crosses other participants is
// matched on entry so the book is never left crossed. Any remainder rests.
func (b *Book) PostResting(s models.Side, price float64, qty int, ownerID string) (PostResult, error) {
	if err := validate(s, price, qty); err != nil {
		return PostResult{}, err
	}
	var res PostResult

	// Self-trade prevention: drop own crossed orders.
	var own []entry
	b.side(s.Opposite()).Ascend(func(e entry) bool {
		if !acceptable(s, price, e.price) {
			return false
		}
		if e.order.OwnerID == ownerID {
			own = append(own, e)
		}
		return true
	})
	for _, e := range own {
		b.remove(e)
		res.Cancelled = append(res.Cancelled, *e.order)
	}

	for qty > 0 {
		best, ok := b.bestOpposing(s, price, ownerID)
		if !ok {
			break
		}
		fr := b.fill(s, best, qty, ownerID)
		res.Fills = append(res.Fills, fr)
		qty = fr.Unfilled
	}
	if qty == 0 {
		return res, nil
	}

	b.seq++
	order := &models.Order{
		ID:        b.newID(),
		RoundID:   b.roundID,
		OwnerID:   ownerID,
		Side:      s,
		Price:     price,
		Quantity:  qty,
		CreatedAt: b.now(),
	}
	e := entry{price: price, createdAt: order.CreatedAt, seq: b.seq, order: order}
	b.side(s).ReplaceOrInsert(e)
	b.index[order.ID] = e
	out := *order
	res.Order = &out
	return res, nil
}

// Order returns a resting order by id.
func (b *Book) Order(id string) (models.Order, bool) {
	e, ok := b.index[id]
	if !ok {
		return models.Order{}, false
	}
	return *e.order, true
}

// Orders returns the resting orders of one owner, bids then asks, each in
// priority order.
func (b *Book) Orders(ownerID string) []models.Order {
	var out []models.Order
	for _, tree := range []*btree.BTreeG[entry]{b.bids, b.asks} {
		tree.Ascend(func(e entry) bool {
			if e.order.OwnerID == ownerID {
				out = append(out, *e.order)
			}
			return true
		})
	}
	return out
}

// Cancel removes a resting order. Only its owner may cancel it.
func (b *Book) Cancel(orderID, ownerID string) (models.Order, error) {
	e, ok := b.index[orderID]
	if !ok || e.order.OwnerID != ownerID {
		return models.Order{}, models.ErrOrderNotFound
	}
	b.remove(e)
	return *e.order, nil
}

// BestBid returns the highest-priority bid.
func (b *Book) BestBid() (models.Order, bool) {
	e, ok := b.bids.Min()
	if !ok {
		return models.Order{}, false
	}
	return *e.order, true
}

// BestAsk returns the highest-priority ask.
func (b *Book) BestAsk() (models.Order, bool) {
	e, ok := b.asks.Min()
	if !ok {
		return models.Order{}, false
	}
	return *e.order, true
}

// Len returns the number of resting orders.
func (b *Book) Len() int {
	return len(b.index)
}

// Trades returns a copy of the trade log, oldest first.
func (b *Book) Trades() []models.Trade {
	out := make([]models.Trade, len(b.trades))
	copy(out, b.trades)
	return out
}

// Snapshot returns a copy of the book safe to hand to other goroutines.
func (b *Book) Snapshot() models.BookSnapshot {
	snap := models.BookSnapshot{
		Bids:         collect(b.bids),
		Asks:         collect(b.asks),
		RecentTrades: b.recentTrades(RecentTradeLimit),
	}
	if len(snap.Bids) > 0 {
		best := snap.Bids[0]
		snap.BestBid = &best
	}
	if len(snap.Asks) > 0 {
		best := snap.Asks[0]
		snap.BestAsk = &best
	}
	return snap
}

func collect(tree *btree.BTreeG[entry]) []models.Order {
	out := make([]models.Order, 0, tree.Len())
	tree.Ascend(func(e entry) bool {
		out = append(out, *e.order)
		return true
	})
	return out
}

// recentTrades returns up to n trades, newest first.
func (b *Book) recentTrades(n int) []models.Trade {
	if n > len(b.trades) {
		n = len(b.trades)
	}
	out := make([]models.Trade, 0, n)
	for i := len(b.trades) - 1; i >= len(b.trades)-n; i-- {
		out = append(out, b.trades[i])
	}
	return out
}
