package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xtrntr/tradinggame/internal/game"
	"github.com/xtrntr/tradinggame/internal/models"
)

const uniqueViolation = "23505"

var _ game.Store = (*DB)(nil)

// DB wraps a PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB initializes a new database connection pool
func NewDB(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	db.Pool.Close()
}

// Migrate applies a schema script. The script must be idempotent.
func (db *DB) Migrate(ctx context.Context, script string) error {
	if _, err := db.Pool.Exec(ctx, script); err != nil {
		return fmt.Errorf("failed to apply migration: %w", err)
	}
	return nil
}

// CreateUser inserts a new user
func (db *DB) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	user := &models.User{}
	err := db.Pool.QueryRow(ctx,
		"INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING id, username, password_hash, created_at",
		username, passwordHash).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, models.ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetUserByUsername retrieves a user by username
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	err := db.Pool.QueryRow(ctx,
		"SELECT id, username, password_hash, created_at FROM users WHERE username = $1",
		username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// CreateGame inserts the header row of a round
func (db *DB) CreateGame(ctx context.Context, g game.GameRecord) error {
	_, err := db.Pool.Exec(ctx,
		"INSERT INTO games (id, name, scenario, status, game_length) VALUES ($1, $2, $3, $4, $5)",
		g.ID, g.Name, g.Scenario, string(g.Status), g.GameLength)
	if err != nil {
		return fmt.Errorf("failed to create game: %w", err)
	}
	return nil
}

// SetGameStatus updates a round's status
func (db *DB) SetGameStatus(ctx context.Context, roundID string, status models.RoundStatus) error {
	tag, err := db.Pool.Exec(ctx, "UPDATE games SET status = $1 WHERE id = $2", string(status), roundID)
	if err != nil {
		return fmt.Errorf("failed to update game status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrRoundNotFound
	}
	return nil
}

// AddParticipant records that a participant joined a round
func (db *DB) AddParticipant(ctx context.Context, roundID string, p models.Participant) error {
	var level *string
	if p.IsBot {
		l := string(p.Level)
		level = &l
	}
	_, err := db.Pool.Exec(ctx,
		"INSERT INTO game_participants (game_id, participant_id, name, is_bot, level) VALUES ($1, $2, $3, $4, $5)",
		roundID, p.ID, p.Name, p.IsBot, level)
	if err != nil {
		return fmt.Errorf("failed to add participant: %w", err)
	}
	return nil
}

// RemoveParticipant deletes a participant row
func (db *DB) RemoveParticipant(ctx context.Context, roundID, participantID string) error {
	_, err := db.Pool.Exec(ctx,
		"DELETE FROM game_participants WHERE game_id = $1 AND participant_id = $2",
		roundID, participantID)
	if err != nil {
		return fmt.Errorf("failed to remove participant: %w", err)
	}
	return nil
}

// GetParticipants lists the participants of a round in join order
func (db *DB) GetParticipants(ctx context.Context, roundID string) ([]models.Participant, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT participant_id, name, is_bot, COALESCE(level, '')
		FROM game_participants
		WHERE game_id = $1
		ORDER BY joined_at ASC`, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}
	defer rows.Close()

	var out []models.Participant
	for rows.Next() {
		var p models.Participant
		var level string
		if err := rows.Scan(&p.ID, &p.Name, &p.IsBot, &level); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		p.Level = models.Level(level)
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveOrder inserts a resting order
func (db *DB) SaveOrder(ctx context.Context, o models.Order) error {
	_, err := db.Pool.Exec(ctx,
		"INSERT INTO orders (id, game_id, owner_id, side, price, quantity, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		o.ID, o.RoundID, o.OwnerID, string(o.Side), o.Price, o.Quantity, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

// UpdateOrderQuantity sets the remaining quantity of a resting order
func (db *DB) UpdateOrderQuantity(ctx context.Context, orderID string, qty int) error {
	_, err := db.Pool.Exec(ctx, "UPDATE orders SET quantity = $1 WHERE id = $2", qty, orderID)
	if err != nil {
		return fmt.Errorf("failed to update order quantity: %w", err)
	}
	return nil
}

// DeleteOrder removes a filled or cancelled order
func (db *DB) DeleteOrder(ctx context.Context, orderID string) error {
	_, err := db.Pool.Exec(ctx, "DELETE FROM orders WHERE id = $1", orderID)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	return nil
}

// GetOpenOrders retrieves the resting orders of a round in time order
func (db *DB) GetOpenOrders(ctx context.Context, roundID string) ([]models.Order, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, game_id, owner_id, side, price, quantity, created_at
		FROM orders
		WHERE game_id = $1
		ORDER BY created_at ASC`, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to get open orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var o models.Order
		var side string
		if err := rows.Scan(&o.ID, &o.RoundID, &o.OwnerID, &side, &o.Price, &o.Quantity, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		o.Side = models.Side(side)
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// SaveTrade inserts an executed trade
func (db *DB) SaveTrade(ctx context.Context, t models.Trade) error {
	_, err := db.Pool.Exec(ctx,
		"INSERT INTO transactions (id, game_id, buyer_id, seller_id, price, quantity, executed_at) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		t.ID, t.RoundID, t.BuyerID, t.SellerID, t.Price, t.Quantity, t.ExecutedAt)
	if err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}
	return nil
}

// GetTrades retrieves the trades of a round, oldest first
func (db *DB) GetTrades(ctx context.Context, roundID string) ([]models.Trade, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, game_id, buyer_id, seller_id, price, quantity, executed_at
		FROM transactions
		WHERE game_id = $1
		ORDER BY executed_at ASC`, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to get trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var t models.Trade
		if err := rows.Scan(&t.ID, &t.RoundID, &t.BuyerID, &t.SellerID, &t.Price, &t.Quantity, &t.ExecutedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// SaveResults inserts the final results of a round in one batch
func (db *DB) SaveResults(ctx context.Context, results []models.GameResult) error {
	batch := &pgx.Batch{}
	for _, r := range results {
		batch.Queue(`
			INSERT INTO game_results (participant_id, game_id, scenario, pnl, accuracy, trades_completed, time_taken)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			r.ParticipantID, r.RoundID, r.Scenario, r.PnL, r.Accuracy, r.TradesCompleted, r.TimeTaken)
	}
	if err := db.Pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}
	return nil
}

// PurgeRound deletes the orders, trades and participants of a round. The
// games row and results are kept.
func (db *DB) PurgeRound(ctx context.Context, roundID string) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range []string{"orders", "transactions", "game_participants"} {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table+" WHERE game_id = $1", roundID); err != nil {
			return fmt.Errorf("failed to purge %s: %w", table, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetUserResults retrieves a participant's results, newest first
func (db *DB) GetUserResults(ctx context.Context, participantID string) ([]models.GameResult, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, participant_id, COALESCE(game_id, ''), scenario, pnl, accuracy, trades_completed, time_taken, created_at
		FROM game_results
		WHERE participant_id = $1
		ORDER BY created_at DESC, id DESC`, participantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user results: %w", err)
	}
	defer rows.Close()

	results := []models.GameResult{}
	for rows.Next() {
		var r models.GameResult
		if err := rows.Scan(&r.ID, &r.ParticipantID, &r.RoundID, &r.Scenario, &r.PnL, &r.Accuracy,
			&r.TradesCompleted, &r.TimeTaken, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// GetUserStats aggregates a participant's results
func (db *DB) GetUserStats(ctx context.Context, participantID string) (models.Stats, error) {
	var s models.Stats
	err := db.Pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(pnl), 0)::float8,
		       COALESCE(ROUND(AVG(accuracy), 2), 0)::float8,
		       COALESCE(SUM(trades_completed), 0)
		FROM game_results
		WHERE participant_id = $1`, participantID).
		Scan(&s.GamesPlayed, &s.TotalPnL, &s.AverageAccuracy, &s.TotalTrades)
	if err != nil {
		return models.Stats{}, fmt.Errorf("failed to get user stats: %w", err)
	}
	return s, nil
}
