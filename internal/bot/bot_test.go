package bot

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/xtrntr/tradinggame/internal/models"
)

var allLevels = []models.Level{models.LevelEasy, models.LevelMedium, models.LevelHard, models.LevelExpert}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBot(t *testing.T, level models.Level, seed int64) (*Bot, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	b, err := New("bot-1", "Bot 1", level, 100, WithRand(rand.New(rand.NewSource(seed))), WithClock(clock.Now))
	require.NoError(t, err)
	return b, clock
}

func order(owner string, side models.Side, price float64, qty int) models.Order {
	return models.Order{OwnerID: owner, Side: side, Price: price, Quantity: qty}
}

func TestNew_UnknownLevel(t *testing.T) {
	_, err := New("b", "b", models.Level("Jane Street"), 100)
	assert.ErrorIs(t, err, models.ErrUnknownLevel)
}

func TestNew_InitialEstimateWithinLevelNoise(t *testing.T) {
	for _, level := range allLevels {
		t.Run(string(level), func(t *testing.T) {
			p, err := ParamsFor(level)
			require.NoError(t, err)
			for seed := int64(0); seed < 200; seed++ {
				b, _ := newTestBot(t, level, seed)
				assert.InDelta(t, 100, b.Estimate(), 100*p.InitialNoise+1e-9)
			}
		})
	}
}

func TestObserve_ExcludesOwnOrders(t *testing.T) {
	b, _ := newTestBot(t, models.LevelMedium, 1)
	b.Observe(models.BookSnapshot{
		Bids: []models.Order{order("bot-1", models.SideBid, 99, 5), order("other", models.SideBid, 98, 2)},
		Asks: []models.Order{order("bot-1", models.SideAsk, 101, 5)},
	})

	require.NotNil(t, b.market.bestBid)
	assert.Equal(t, 98.0, b.market.bestBid.Price)
	assert.Equal(t, "other", b.market.bestBid.OwnerID)
	assert.Nil(t, b.market.bestAsk, "own ask must not be perceived as the market")
	assert.Len(t, b.market.bids, 1)

	st := b.State()
	assert.True(t, st.HasBid)
	assert.True(t, st.HasAsk)
	assert.Equal(t, 99.0, st.Bid)
	assert.Equal(t, 101.0, st.Ask)
}

func TestObserve_FilledQuoteIsForgotten(t *testing.T) {
	b, _ := newTestBot(t, models.LevelMedium, 1)
	b.GenerateQuote()
	require.True(t, b.State().HasBid)

	b.Observe(models.BookSnapshot{})
	assert.False(t, b.State().HasBid)
	assert.False(t, b.State().HasAsk)
}

func TestObserve_DriftsTowardTrades(t *testing.T) {
	b, _ := newTestBot(t, models.LevelMedium, 3)
	b.params.DriftNoise = 0
	b.estimate = 100

	b.Observe(models.BookSnapshot{RecentTrades: []models.Trade{{Price: 110}, {Price: 130}}})
	assert.InDelta(t, 0.9*100+0.1*120, b.Estimate(), 1e-9)
	assert.Equal(t, 2, b.State().Maturity)

	// No trades leaves the estimate alone.
	b.Observe(models.BookSnapshot{})
	assert.InDelta(t, 102, b.Estimate(), 1e-9)
}

func TestShouldRequote(t *testing.T) {
	b, clock := newTestBot(t, models.LevelMedium, 5)
	b.params.RequoteProbability = 1

	b.Observe(models.BookSnapshot{})
	assert.True(t, b.ShouldRequote(), "no quote yet")

	b.GenerateQuote()
	bid := b.State().Bid
	clock.Advance(time.Second)
	b.Observe(models.BookSnapshot{
		Bids: []models.Order{order("bot-1", models.SideBid, bid, 1), order("other", models.SideBid, bid+10, 1)},
	})
	assert.False(t, b.ShouldRequote(), "dwell time not elapsed")

	clock.Advance(DefaultDwell)
	assert.True(t, b.ShouldRequote(), "outbid after dwell")

	b.Observe(models.BookSnapshot{
		Bids: []models.Order{order("bot-1", models.SideBid, bid, 1), order("other", models.SideBid, bid-1, 1)},
	})
	assert.False(t, b.ShouldRequote(), "still the best bid")

	b.params.RequoteProbability = 0
	b.Observe(models.BookSnapshot{})
	assert.False(t, b.ShouldRequote())
}

func TestGenerateQuote_AskAboveBid(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		level := rapid.SampledFrom(allLevels).Draw(rt, "level")
		fair := rapid.Float64Range(0.5, 1e6).Draw(rt, "fair")
		seed := rapid.Int64().Draw(rt, "seed")

		b, err := New("bot-1", "b", level, fair, WithRand(rand.New(rand.NewSource(seed))))
		if err != nil {
			rt.Fatalf("new: %v", err)
		}

		var snap models.BookSnapshot
		nBids := rapid.IntRange(0, 5).Draw(rt, "bids")
		for i := 0; i < nBids; i++ {
			p := rapid.Float64Range(0.01, fair*2).Draw(rt, "bidPrice")
			snap.Bids = append(snap.Bids, order("other", models.SideBid, p, rapid.IntRange(1, 50).Draw(rt, "bidQty")))
		}
		nAsks := rapid.IntRange(0, 5).Draw(rt, "asks")
		for i := 0; i < nAsks; i++ {
			p := rapid.Float64Range(0.01, fair*2).Draw(rt, "askPrice")
			snap.Asks = append(snap.Asks, order("other", models.SideAsk, p, rapid.IntRange(1, 50).Draw(rt, "askQty")))
		}
		nTrades := rapid.IntRange(0, 10).Draw(rt, "trades")
		for i := 0; i < nTrades; i++ {
			snap.RecentTrades = append(snap.RecentTrades, models.Trade{Price: rapid.Float64Range(0.01, fair*2).Draw(rt, "tradePrice"), Quantity: 1})
		}

		b.Observe(snap)
		bid, ask := b.GenerateQuote()
		if !(ask > bid) {
			rt.Fatalf("ask %v not above bid %v", ask, bid)
		}
		if bid <= 0 {
			rt.Fatalf("bid %v not positive", bid)
		}
	})
}

func TestGenerateQuote_CentredOnEstimateInEmptyMarket(t *testing.T) {
	for _, level := range allLevels {
		b, _ := newTestBot(t, level, 11)
		b.estimate = 1000
		b.Observe(models.BookSnapshot{})

		bid, ask := b.GenerateQuote()
		assert.Less(t, bid, 1000.0, string(level))
		assert.Greater(t, ask, 1000.0, string(level))
		assert.Equal(t, b.State().LastQuote, b.now())
	}
}

func TestQuoteSize(t *testing.T) {
	b, _ := newTestBot(t, models.LevelMedium, 2)
	for i := 0; i < 500; i++ {
		q := b.QuoteSize()
		assert.GreaterOrEqual(t, q, 1)
		assert.LessOrEqual(t, q, MaxQuoteSize)
	}
}

func TestDecideToTrade(t *testing.T) {
	tests := []struct {
		name      string
		snap      models.BookSnapshot
		wantSide  models.Side
		wantPrice float64
		wantNil   bool
	}{
		{
			name:      "CheapAsk",
			snap:      models.BookSnapshot{Asks: []models.Order{order("other", models.SideAsk, 80, 5)}},
			wantSide:  models.SideBid,
			wantPrice: 80,
		},
		{
			name:      "RichBid",
			snap:      models.BookSnapshot{Bids: []models.Order{order("other", models.SideBid, 120, 5)}},
			wantSide:  models.SideAsk,
			wantPrice: 120,
		},
		{
			name:    "EmptyBook",
			snap:    models.BookSnapshot{},
			wantNil: true,
		},
		{
			name:    "FairAskOnly",
			snap:    models.BookSnapshot{Asks: []models.Order{order("other", models.SideAsk, 99, 5)}},
			wantNil: true,
		},
		{
			name: "OwnAskBetterThanCheapAsk",
			snap: models.BookSnapshot{Asks: []models.Order{
				order("bot-1", models.SideAsk, 79, 5),
				order("other", models.SideAsk, 80, 5),
			}},
			wantNil: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newTestBot(t, models.LevelMedium, 9)
			b.Observe(tt.snap)
			b.estimate = 100

			intent := b.DecideToTrade()
			if tt.wantNil {
				assert.Nil(t, intent)
				return
			}
			require.NotNil(t, intent)
			assert.Equal(t, tt.wantSide, intent.Side)
			assert.Equal(t, tt.wantPrice, intent.Price)
			assert.Contains(t, []int{1, 2, 3, 5, 8}, intent.Quantity)
		})
	}
}

func TestTradeQuantityFavoursSmallSizes(t *testing.T) {
	b, _ := newTestBot(t, models.LevelMedium, 21)
	counts := map[int]int{}
	for i := 0; i < 5000; i++ {
		counts[b.sizes.PickSource(b.rng).(int)]++
	}
	assert.Greater(t, counts[1], counts[2])
	assert.Greater(t, counts[2], counts[5])
	assert.Greater(t, counts[3], counts[8])
}

func TestTradeFrequency(t *testing.T) {
	b, clock := newTestBot(t, models.LevelMedium, 4)
	now := clock.Now()

	trades := func(n int, age time.Duration) []models.Trade {
		out := make([]models.Trade, n)
		for i := range out {
			out[i] = models.Trade{Price: 100, ExecutedAt: now.Add(-age)}
		}
		return out
	}

	tests := []struct {
		name   string
		recent []models.Trade
		want   float64
	}{
		{"Immature", trades(4, 0), 0.8},
		{"Busy", trades(6, time.Second), 0.6},
		{"Moderate", trades(5, time.Second), 0.4},
		{"Stale", trades(8, time.Minute), 0.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b.Observe(models.BookSnapshot{RecentTrades: tt.recent})
			assert.Equal(t, tt.want, b.tradeFrequency())
		})
	}
}

func TestTradeFrequency_ScalesWithLevel(t *testing.T) {
	immature := models.BookSnapshot{RecentTrades: []models.Trade{{Price: 100}}}

	var last float64
	for _, level := range allLevels {
		b, _ := newTestBot(t, level, 4)
		b.Observe(immature)
		freq := b.tradeFrequency()
		assert.Greater(t, freq, last, string(level))
		assert.LessOrEqual(t, freq, 1.0, string(level))
		last = freq
	}

	b, _ := newTestBot(t, models.LevelEasy, 4)
	b.Observe(immature)
	assert.InDelta(t, 0.6, b.tradeFrequency(), 1e-9)
}
