package bot

import (
	"math/rand"
	"time"

	"github.com/mroth/weightedrand"
	"github.com/shopspring/decimal"

	"github.com/xtrntr/tradinggame/internal/models"
)

const (
	// DriftFactor is the share of the gap to the recent trade average closed per tick.
	DriftFactor = 0.1
	// MatureTradeCount is the number of recent trades at which quotes follow the market entirely.
	MatureTradeCount = 20
	// ImmatureTradeCount is the trade count below which bots trade eagerly.
	ImmatureTradeCount = 5
	// ActivityWindow bounds the trades counted as recent activity.
	ActivityWindow = 30 * time.Second
	// DefaultDwell is the minimum time between two quotes.
	DefaultDwell = 40 * time.Second
	// MaxQuoteSize bounds the quantity of each posted quote.
	MaxQuoteSize = 10

	minPrice = 0.01
)

// Intent is a marketable order a bot wants to send.
type Intent struct {
	Side     models.Side
	Price    float64
	Quantity int
}

// State is a copy of a bot's private state.
type State struct {
	ID        string       `json:"id"`
	Level     models.Level `json:"level"`
	Estimate  float64      `json:"estimate"`
	Bid       float64      `json:"bid"`
	Ask       float64      `json:"ask"`
	HasBid    bool         `json:"has_bid"`
	HasAsk    bool         `json:"has_ask"`
	LastQuote time.Time    `json:"last_quote"`
	Maturity  int          `json:"maturity"`
}

// view is the market as the bot perceives it, without its own orders.
type view struct {
	bestBid *models.Order
	bestAsk *models.Order
	bids    []models.Order
	asks    []models.Order
	recent  []models.Trade
}

// Bot is a synthetic participant. It is not safe for concurrent use; the
// scheduler drives each bot under its round's lock.
type Bot struct {
	ID    string
	Name  string
	Level models.Level

	params    Params
	estimate  float64
	bid, ask  float64
	hasBid    bool
	hasAsk    bool
	lastQuote time.Time
	maturity  int
	market    view

	rng   *rand.Rand
	now   func() time.Time
	dwell time.Duration
	sizes *weightedrand.Chooser
}

// Option configures a Bot.
type Option func(*Bot)

// WithRand sets the randomness source.
func WithRand(rng *rand.Rand) Option {
	return func(b *Bot) { b.rng = rng }
}

// WithClock sets the clock.
func WithClock(now func() time.Time) Option {
	return func(b *Bot) { b.now = now }
}

// WithDwell sets the minimum time between quotes.
func WithDwell(d time.Duration) Option {
	return func(b *Bot) { b.dwell = d }
}

// New creates a bot whose initial estimate is fairValue perturbed by the
// level's initial noise.
func New(id, name string, level models.Level, fairValue float64, opts ...Option) (*Bot, error) {
	params, err := ParamsFor(level)
	if err != nil {
		return nil, err
	}
	// Smaller trades are far more likely than larger ones.
	sizes, err := weightedrand.NewChooser(
		weightedrand.Choice{Item: 1, Weight: 40},
		weightedrand.Choice{Item: 2, Weight: 30},
		weightedrand.Choice{Item: 3, Weight: 20},
		weightedrand.Choice{Item: 5, Weight: 7},
		weightedrand.Choice{Item: 8, Weight: 3},
	)
	if err != nil {
		return nil, err
	}

	b := &Bot{
		ID:     id,
		Name:   name,
		Level:  level,
		params: params,
		now:    time.Now,
		dwell:  DefaultDwell,
		sizes:  sizes,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.rng == nil {
		b.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	b.estimate = fairValue * (1 + b.uniform(-params.InitialNoise, params.InitialNoise))
	return b, nil
}

func (b *Bot) uniform(lo, hi float64) float64 {
	return lo + b.rng.Float64()*(hi-lo)
}

// State returns a copy of the bot's state.
func (b *Bot) State() State {
	return State{
		ID:        b.ID,
		Level:     b.Level,
		Estimate:  b.estimate,
		Bid:       b.bid,
		Ask:       b.ask,
		HasBid:    b.hasBid,
		HasAsk:    b.hasAsk,
		LastQuote: b.lastQuote,
		Maturity:  b.maturity,
	}
}

// Estimate returns the bot's current fair-value estimate.
func (b *Bot) Estimate() float64 {
	return b.estimate
}

// Observe updates the bot's view of the book. The bot's own orders are
// excluded from the market it sees and instead define its current quote.
func (b *Bot) Observe(snap models.BookSnapshot) {
	v := view{recent: snap.RecentTrades}
	b.hasBid, b.hasAsk = false, false

	// Snapshot sides are already in priority order.
	for _, o := range snap.Bids {
		if o.OwnerID == b.ID {
			if !b.hasBid {
				b.bid, b.hasBid = o.Price, true
			}
			continue
		}
		v.bids = append(v.bids, o)
	}
	for _, o := range snap.Asks {
		if o.OwnerID == b.ID {
			if !b.hasAsk {
				b.ask, b.hasAsk = o.Price, true
			}
			continue
		}
		v.asks = append(v.asks, o)
	}
	if len(v.bids) > 0 {
		best := v.bids[0]
		v.bestBid = &best
	}
	if len(v.asks) > 0 {
		best := v.asks[0]
		v.bestAsk = &best
	}

	b.market = v
	b.maturity = len(v.recent)
	b.adjustEstimate()
}

// adjustEstimate drifts the estimate toward the average recent trade price
// and perturbs it so bots never settle exactly on the market.
func (b *Bot) adjustEstimate() {
	if len(b.market.recent) == 0 {
		return
	}
	var sum float64
	for _, t := range b.market.recent {
		sum += t.Price
	}
	avg := sum / float64(len(b.market.recent))

	next := (1-DriftFactor)*b.estimate + DriftFactor*avg
	b.estimate = next * (1 + b.uniform(-b.params.DriftNoise, b.params.DriftNoise))
}

// competitive reports whether the bot's resting quote is at or better than
// the rest of the market on either side.
func (b *Bot) competitive() bool {
	if b.hasBid && b.market.bestBid != nil && b.bid >= b.market.bestBid.Price {
		return true
	}
	if b.hasAsk && b.market.bestAsk != nil && b.ask <= b.market.bestAsk.Price {
		return true
	}
	return false
}

// ShouldRequote throttles quoting: a level-dependent draw must succeed, the
// dwell time must have passed and the current quote must have been overtaken.
func (b *Bot) ShouldRequote() bool {
	if b.rng.Float64() >= b.params.RequoteProbability {
		return false
	}
	if b.now().Sub(b.lastQuote) < b.dwell {
		return false
	}
	return !b.competitive()
}

// GenerateQuote returns a new bid and ask, with ask > bid, and records them
// as the bot's current quote.
func (b *Bot) GenerateQuote() (float64, float64) {
	noise := b.uniform(b.params.QuoteNoiseMin, b.params.QuoteNoiseMax)
	margin := b.params.Margin * b.estimate

	onMarket := min(float64(b.maturity)/MatureTradeCount, 1)
	onValue := 1 - onMarket

	bestBid := b.estimate - noise
	if b.market.bestBid != nil {
		bestBid = b.market.bestBid.Price
	}
	bestAsk := b.estimate + noise
	if b.market.bestAsk != nil {
		bestAsk = b.market.bestAsk.Price
	}
	bidDepth := averageDepth(b.market.bids)
	askDepth := averageDepth(b.market.asks)

	reluctant := b.competitive()

	bid := onMarket*(bestBid+b.uniform(-1, 0.5)) +
		onValue*(b.estimate-margin-noise) +
		b.uniform(-bidDepth/10, bidDepth/10)
	ask := onMarket*(bestAsk+b.uniform(0.5, 1)) +
		onValue*(b.estimate+margin+noise) +
		b.uniform(-askDepth/10, askDepth/10)

	if reluctant {
		bid -= b.uniform(0, noise/2)
		ask += b.uniform(0, noise/2)
	}

	bid = max(bid, minPrice)
	if ask <= bid {
		ask = bid + b.uniform(0.5, 1)
	}

	bid, ask = round2(bid), round2(ask)
	if ask <= bid {
		ask = round2(bid + 0.5)
	}
	b.bid, b.ask = bid, ask
	b.hasBid, b.hasAsk = true, true
	b.lastQuote = b.now()
	return bid, ask
}

// QuoteSize returns the quantity for one side of a new quote.
func (b *Bot) QuoteSize() int {
	return b.rng.Intn(MaxQuoteSize) + 1
}

// DecideToTrade returns a marketable order when the best opposing quote is
// favourable against the estimate, or, with an activity-dependent
// probability, when the spread is wide. It returns nil otherwise.
func (b *Bot) DecideToTrade() *Intent {
	bestBid, bestAsk := b.market.bestBid, b.market.bestAsk
	freq := b.tradeFrequency()
	margin := b.params.Margin * b.estimate
	qty := b.sizes.PickSource(b.rng).(int)

	if bestAsk != nil && bestAsk.Price <= b.estimate-margin {
		if !b.hasAsk || bestAsk.Price < b.ask {
			return &Intent{Side: models.SideBid, Price: bestAsk.Price, Quantity: qty}
		}
	}
	if bestBid != nil && bestBid.Price >= b.estimate+margin {
		if !b.hasBid || bestBid.Price > b.bid {
			return &Intent{Side: models.SideAsk, Price: bestBid.Price, Quantity: qty}
		}
	}

	if bestBid == nil || bestAsk == nil {
		return nil
	}
	// Wide spreads invite trading.
	if bestAsk.Price-bestBid.Price > b.uniform(1, 5) && b.rng.Float64() < freq {
		if b.rng.Float64() < 0.6 {
			return &Intent{Side: models.SideBid, Price: bestAsk.Price, Quantity: qty}
		}
		if b.rng.Float64() < 0.4 {
			return &Intent{Side: models.SideAsk, Price: bestBid.Price, Quantity: qty}
		}
	}
	return nil
}

// tradeFrequency is high in a young market, then scales with the number of
// trades inside ActivityWindow. The level's Activity factor scales the result,
// capped at 1.
func (b *Bot) tradeFrequency() float64 {
	return min(b.marketActivity()*b.params.Activity, 1)
}

func (b *Bot) marketActivity() float64 {
	if b.maturity < ImmatureTradeCount {
		return 0.8
	}
	now := b.now()
	active := 0
	for _, t := range b.market.recent {
		if now.Sub(t.ExecutedAt) < ActivityWindow {
			active++
		}
	}
	switch {
	case active > 5:
		return 0.6
	case active > 2:
		return 0.4
	default:
		return 0.2
	}
}

func averageDepth(orders []models.Order) float64 {
	if len(orders) == 0 {
		return 1
	}
	var total int
	for _, o := range orders {
		total += o.Quantity
	}
	return float64(total) / float64(len(orders))
}

func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
