package game

import (
	"context"

	"github.com/xtrntr/tradinggame/internal/events"
	"github.com/xtrntr/tradinggame/internal/exchange"
	"github.com/xtrntr/tradinggame/internal/models"
)

const (
	sourceHuman = "human"
	sourceBot   = "bot"
)

// active returns the round if it is in progress and participantID plays in
// it. The caller must hold mu on success.
func (m *Manager) active(roundID, participantID string) (*Round, error) {
	r, err := m.get(roundID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	if r.status != models.StatusInProgress {
		r.mu.Unlock()
		return nil, models.ErrRoundNotInProgress
	}
	if r.indexOf(participantID) < 0 {
		r.mu.Unlock()
		return nil, models.ErrParticipantNotFound
	}
	return r, nil
}

// PostOrder rests a quote for a participant of a running round.
func (m *Manager) PostOrder(ctx context.Context, roundID, participantID string, side models.Side, price float64, qty int) (exchange.PostResult, error) {
	r, err := m.active(roundID, participantID)
	if err != nil {
		return exchange.PostResult{}, err
	}
	defer r.mu.Unlock()
	r.touch(participantID, m.now())
	return m.post(ctx, r, participantID, side, price, qty, sourceHuman)
}

// Trade sends a marketable order for a participant of a running round.
func (m *Manager) Trade(ctx context.Context, roundID, participantID string, side models.Side, price float64, qty int) (exchange.FillResult, error) {
	r, err := m.active(roundID, participantID)
	if err != nil {
		return exchange.FillResult{}, err
	}
	defer r.mu.Unlock()
	r.touch(participantID, m.now())
	return m.take(ctx, r, participantID, side, price, qty, sourceHuman)
}

// Snapshot returns the book of an active round.
func (m *Manager) Snapshot(roundID string) (models.BookSnapshot, error) {
	r, err := m.get(roundID)
	if err != nil {
		return models.BookSnapshot{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.book.Snapshot(), nil
}

// post must be called with mu held. The in-memory book is authoritative;
// persistence failures are logged and do not undo a match.
func (m *Manager) post(ctx context.Context, r *Round, ownerID string, side models.Side, price float64, qty int, source string) (exchange.PostResult, error) {
	res, err := r.book.PostResting(side, price, qty, ownerID)
	if err != nil {
		return res, err
	}
	m.metrics.Orders.WithLabelValues(string(side), source).Inc()

	for _, o := range res.Cancelled {
		m.persist(m.store.DeleteOrder(ctx, o.ID), r.ID, "delete cancelled order")
	}
	for _, fr := range res.Fills {
		m.recordFill(ctx, r, fr, source)
	}
	if res.Order != nil {
		m.persist(m.store.SaveOrder(ctx, *res.Order), r.ID, "save order")
	}
	m.pub.Publish(r.ID, events.NewMarket(r.book.Snapshot()))
	return res, nil
}

// take must be called with mu held.
func (m *Manager) take(ctx context.Context, r *Round, takerID string, side models.Side, price float64, qty int, source string) (exchange.FillResult, error) {
	fr, err := r.book.PlaceMarketable(side, price, qty, takerID)
	if err != nil {
		return fr, err
	}
	m.metrics.Orders.WithLabelValues(string(side), source).Inc()
	if !fr.Filled {
		m.metrics.Unfilled.Inc()
		return fr, nil
	}
	m.recordFill(ctx, r, fr, source)
	m.pub.Publish(r.ID, events.NewMarket(r.book.Snapshot()))
	return fr, nil
}

func (m *Manager) recordFill(ctx context.Context, r *Round, fr exchange.FillResult, source string) {
	m.persist(m.store.SaveTrade(ctx, fr.Trade), r.ID, "save trade")
	if fr.RestingFilled {
		m.persist(m.store.DeleteOrder(ctx, fr.Resting.ID), r.ID, "delete filled order")
	} else {
		m.persist(m.store.UpdateOrderQuantity(ctx, fr.Resting.ID, fr.Resting.Quantity), r.ID, "update order")
	}
	m.metrics.Trades.WithLabelValues(source).Inc()

	t := fr.Trade
	m.pub.Publish(r.ID, events.Event{Type: events.TradeUpdate, Data: events.Trade{
		Price:      t.Price,
		Quantity:   t.Quantity,
		BuyerID:    t.BuyerID,
		BuyerName:  r.name(t.BuyerID),
		SellerID:   t.SellerID,
		SellerName: r.name(t.SellerID),
		Time:       t.ExecutedAt,
	}})
}

func (m *Manager) persist(err error, roundID, what string) {
	if err != nil {
		m.logger.Error().Err(err).Str("round", roundID).Msgf("failed to %s", what)
	}
}

// Orders lists a participant's resting orders in a round.
func (m *Manager) Orders(roundID, participantID string) ([]models.Order, error) {
	r, err := m.get(roundID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.book.Orders(participantID), nil
}

// CancelOrder withdraws a participant's resting order from a running round.
func (m *Manager) CancelOrder(ctx context.Context, roundID, participantID, orderID string) (models.Order, error) {
	r, err := m.active(roundID, participantID)
	if err != nil {
		return models.Order{}, err
	}
	defer r.mu.Unlock()
	o, err := r.book.Cancel(orderID, participantID)
	if err != nil {
		return models.Order{}, err
	}
	r.touch(participantID, m.now())
	m.persist(m.store.DeleteOrder(ctx, o.ID), r.ID, "delete cancelled order")
	m.pub.Publish(r.ID, events.NewMarket(r.book.Snapshot()))
	return o, nil
}
