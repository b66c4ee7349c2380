package exchange

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/xtrntr/tradinggame/internal/models"
)

var owners3 = []string{"alice", "bob", "carol"}

func drawSide(t *rapid.T, label string) models.Side {
	return rapid.SampledFrom([]models.Side{models.SideBid, models.SideAsk}).Draw(t, label)
}

func TestProperty_BookNeverCrossed(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := newTestBook()
		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			side := drawSide(t, "side")
			price := float64(rapid.IntRange(90, 110).Draw(t, "price"))
			qty := rapid.IntRange(1, 10).Draw(t, "qty")
			owner := rapid.SampledFrom(owners3).Draw(t, "owner")

			if rapid.Bool().Draw(t, "marketable") {
				if _, err := b.PlaceMarketable(side, price, qty, owner); err != nil {
					t.Fatalf("place marketable: %v", err)
				}
			} else if _, err := b.PostResting(side, price, qty, owner); err != nil {
				t.Fatalf("post resting: %v", err)
			}

			bid, hasBid := b.BestBid()
			ask, hasAsk := b.BestAsk()
			if hasBid && hasAsk && bid.Price >= ask.Price {
				t.Fatalf("book is crossed: best bid %v >= best ask %v", bid.Price, ask.Price)
			}
		}
	})
}

func TestProperty_ExecutionAtRestingPrice(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := newTestBook()
		restSide := drawSide(t, "restSide")
		restPrice := float64(rapid.IntRange(1, 1000).Draw(t, "restPrice"))
		restQty := rapid.IntRange(1, 50).Draw(t, "restQty")
		improve := float64(rapid.IntRange(0, 100).Draw(t, "improve"))
		takeQty := rapid.IntRange(1, 80).Draw(t, "takeQty")

		if _, err := b.PostResting(restSide, restPrice, restQty, "maker"); err != nil {
			t.Fatalf("post: %v", err)
		}
		limit := restPrice + improve
		if restSide == models.SideBid {
			limit = restPrice - improve
			if limit <= 0 {
				limit = 0.01
			}
		}
		res, err := b.PlaceMarketable(restSide.Opposite(), limit, takeQty, "taker")
		if err != nil {
			t.Fatalf("take: %v", err)
		}
		if !res.Filled {
			t.Fatalf("expected a fill at limit %v against %v", limit, restPrice)
		}
		if res.Trade.Price != restPrice {
			t.Fatalf("trade at %v, want resting price %v", res.Trade.Price, restPrice)
		}

		matched := min(restQty, takeQty)
		if res.Trade.Quantity != matched {
			t.Fatalf("trade qty %d, want %d", res.Trade.Quantity, matched)
		}
		if res.Unfilled != takeQty-matched {
			t.Fatalf("unfilled %d, want %d", res.Unfilled, takeQty-matched)
		}
		if matched == restQty {
			if b.Len() != 0 {
				t.Fatalf("fully filled resting order still on book")
			}
		} else if res.Resting.Quantity != restQty-matched || b.Len() != 1 {
			t.Fatalf("resting remaining %d, want %d", res.Resting.Quantity, restQty-matched)
		}
	})
}
