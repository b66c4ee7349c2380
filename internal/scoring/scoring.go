package scoring

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/xtrntr/tradinggame/internal/models"
)

type tally struct {
	pnl        decimal.Decimal
	legs       int
	profitable int
}

// Finalize scores every participant that traded. A buyer earns
// (fairValue - price) * qty and a seller (price - fairValue) * qty; accuracy
// is the percentage of a participant's legs that were individually
// profitable. Entries are ranked by P&L, highest first.
func Finalize(trades []models.Trade, fairValue float64, participants []models.Participant) []models.LeaderboardEntry {
	fv := decimal.NewFromFloat(fairValue)
	tallies := make(map[string]*tally)
	record := func(id string, pnl decimal.Decimal) {
		t, ok := tallies[id]
		if !ok {
			t = &tally{}
			tallies[id] = t
		}
		t.pnl = t.pnl.Add(pnl)
		t.legs++
		if pnl.IsPositive() {
			t.profitable++
		}
	}

	for _, tr := range trades {
		qty := decimal.NewFromInt(int64(tr.Quantity))
		edge := fv.Sub(decimal.NewFromFloat(tr.Price)).Mul(qty)
		record(tr.BuyerID, edge)
		record(tr.SellerID, edge.Neg())
	}

	names := make(map[string]string, len(participants))
	for _, p := range participants {
		names[p.ID] = p.Name
	}

	board := make([]models.LeaderboardEntry, 0, len(tallies))
	for id, t := range tallies {
		name, ok := names[id]
		if !ok {
			name = id
		}
		pnl, _ := t.pnl.Round(2).Float64()
		accuracy, _ := decimal.NewFromInt(int64(t.profitable * 100)).
			Div(decimal.NewFromInt(int64(t.legs))).
			Round(2).Float64()
		board = append(board, models.LeaderboardEntry{
			ParticipantID: id,
			Name:          name,
			PnL:           pnl,
			Accuracy:      accuracy,
			TradeCount:    t.legs,
		})
	}

	sort.Slice(board, func(i, j int) bool {
		if board[i].PnL != board[j].PnL {
			return board[i].PnL > board[j].PnL
		}
		return board[i].ParticipantID < board[j].ParticipantID
	})
	return board
}

// Results converts a leaderboard into persisted result rows for the human
// participants of a round.
func Results(roundID, scenario string, timeTaken int, board []models.LeaderboardEntry, participants []models.Participant) []models.GameResult {
	bots := make(map[string]bool, len(participants))
	for _, p := range participants {
		if p.IsBot {
			bots[p.ID] = true
		}
	}
	var out []models.GameResult
	for _, e := range board {
		if bots[e.ParticipantID] {
			continue
		}
		out = append(out, models.GameResult{
			ParticipantID:   e.ParticipantID,
			RoundID:         roundID,
			Scenario:        scenario,
			PnL:             e.PnL,
			Accuracy:        e.Accuracy,
			TradesCompleted: e.TradeCount,
			TimeTaken:       timeTaken,
		})
	}
	return out
}
