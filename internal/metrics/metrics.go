package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// Namespace prefixes every metric exposed by the game.
	Namespace = "tradinggame"
)

// Metrics contains the collectors updated by the round scheduler.
type Metrics struct {
	// Number of rounds in the active set.
	RoundsActive prometheus.Gauge
	// Rounds that reached completed, by whether they were played.
	RoundsCompleted *prometheus.CounterVec
	// Orders accepted by the book, by side and source (human, bot).
	Orders *prometheus.CounterVec
	// Executed trades, by taker source.
	Trades *prometheus.CounterVec
	// Marketable orders that found no counterparty.
	Unfilled prometheus.Counter
	// Bot decisions per tick step (quote, trade, hold).
	BotDecisions *prometheus.CounterVec
}

// New builds the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is what tests and NopMetrics use.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RoundsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "rounds_active",
			Help:      "Number of rounds in the active set.",
		}),
		RoundsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rounds_completed_total",
			Help:      "Rounds that reached completed.",
		}, []string{"played"}),
		Orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "orders_total",
			Help:      "Orders accepted by the book.",
		}, []string{"side", "source"}),
		Trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "trades_total",
			Help:      "Executed trades by taker source.",
		}, []string{"source"}),
		Unfilled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "unfilled_total",
			Help:      "Marketable orders that found no counterparty.",
		}),
		BotDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "bot_decisions_total",
			Help:      "Bot decisions per step.",
		}, []string{"decision"}),
	}
	if reg != nil {
		reg.MustRegister(m.RoundsActive, m.RoundsCompleted, m.Orders, m.Trades, m.Unfilled, m.BotDecisions)
	}
	return m
}

// NopMetrics returns collectors that are never exported.
func NopMetrics() *Metrics {
	return New(nil)
}
