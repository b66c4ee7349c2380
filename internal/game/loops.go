package game

import (
	"context"
	"errors"
	"time"

	"github.com/xtrntr/tradinggame/internal/bot"
	"github.com/xtrntr/tradinggame/internal/events"
	"github.com/xtrntr/tradinggame/internal/models"
)

// endTimeout bounds the persistence work of a round ended by its timer.
const endTimeout = 10 * time.Second

// runCountdown decrements the round timer once per tick and ends the round
// when it reaches zero.
func (m *Manager) runCountdown(ctx context.Context, r *Round) {
	defer m.wg.Done()
	log := m.logger.With().Str("round", r.ID).Str("loop", "countdown").Logger()

	ticker := time.NewTicker(m.settings.CountdownTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("stopped")
			return
		case <-ticker.C:
		}

		r.mu.Lock()
		if r.status != models.StatusInProgress {
			r.mu.Unlock()
			return
		}
		if r.remaining > 0 {
			r.remaining--
		}
		remaining := r.remaining
		r.mu.Unlock()

		m.pub.Publish(r.ID, events.Event{Type: events.TimerUpdate, Data: events.Timer{Remaining: remaining}})
		if remaining > 0 {
			continue
		}

		m.pub.Publish(r.ID, events.Event{Type: events.TimerEnded, Data: map[string]string{"message": "Time is up! Game over!"}})
		endCtx, cancel := context.WithTimeout(context.Background(), endTimeout)
		if _, err := m.End(endCtx, r.ID); err != nil && !errors.Is(err, models.ErrRoundNotFound) {
			log.Error().Err(err).Msg("failed to end round")
		}
		cancel()
		return
	}
}

// runBots steps every bot of the round once per tick. Each step holds the
// round lock, so bots never act on a stale book.
func (m *Manager) runBots(ctx context.Context, r *Round) {
	defer m.wg.Done()
	log := m.logger.With().Str("round", r.ID).Str("loop", "bots").Logger()

	ticker := time.NewTicker(m.settings.BotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("stopped")
			return
		case <-ticker.C:
		}

		r.mu.Lock()
		bots := append([]*bot.Bot(nil), r.bots...)
		r.mu.Unlock()

		for _, b := range bots {
			if ctx.Err() != nil {
				return
			}
			if !m.stepBot(ctx, r, b) {
				return
			}
		}
	}
}

// stepBot lets one bot observe the book, requote and trade. It reports
// false once the round is no longer in progress.
func (m *Manager) stepBot(ctx context.Context, r *Round, b *bot.Bot) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != models.StatusInProgress {
		return false
	}
	log := m.logger.With().Str("round", r.ID).Str("bot", b.ID).Logger()

	b.Observe(r.book.Snapshot())
	acted := false
	if b.ShouldRequote() {
		bid, ask := b.GenerateQuote()
		if _, err := m.post(ctx, r, b.ID, models.SideBid, bid, b.QuoteSize(), sourceBot); err != nil {
			log.Warn().Err(err).Float64("price", bid).Msg("bid rejected")
		}
		if _, err := m.post(ctx, r, b.ID, models.SideAsk, ask, b.QuoteSize(), sourceBot); err != nil {
			log.Warn().Err(err).Float64("price", ask).Msg("ask rejected")
		}
		m.metrics.BotDecisions.WithLabelValues("quote").Inc()
		acted = true
	}
	if intent := b.DecideToTrade(); intent != nil {
		if _, err := m.take(ctx, r, b.ID, intent.Side, intent.Price, intent.Quantity, sourceBot); err != nil {
			log.Warn().Err(err).Msg("trade rejected")
		}
		m.metrics.BotDecisions.WithLabelValues("trade").Inc()
		acted = true
	}
	if !acted {
		m.metrics.BotDecisions.WithLabelValues("hold").Inc()
	}
	r.touch(b.ID, m.now())
	return true
}
