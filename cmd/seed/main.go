package main

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/xtrntr/tradinggame/internal/auth"
	"github.com/xtrntr/tradinggame/internal/config"
	"github.com/xtrntr/tradinggame/internal/db"
	"github.com/xtrntr/tradinggame/internal/exchange"
	"github.com/xtrntr/tradinggame/internal/game"
	"github.com/xtrntr/tradinggame/internal/market"
	"github.com/xtrntr/tradinggame/internal/models"
	"github.com/xtrntr/tradinggame/internal/scoring"
)

const seedPassword = "password123"

// Seed the database with demo users and finished games
func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	ctx := context.Background()

	cfg, err := config.Load(config.New())
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	database, err := db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	migration, err := os.ReadFile("migrations/001_init.sql")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read migration")
	}
	if err := database.Migrate(ctx, string(migration)); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate")
	}

	authService := auth.NewAuthService(database, cfg.JWTSecret)
	var players []models.Participant
	for _, name := range []string{"trader1", "trader2"} {
		user, err := authService.Register(ctx, name, seedPassword)
		if errors.Is(err, models.ErrUsernameTaken) {
			user, err = database.GetUserByUsername(ctx, name)
		}
		if err != nil {
			log.Fatal().Err(err).Str("user", name).Msg("failed to create user")
		}
		players = append(players, models.Participant{ID: strconv.Itoa(user.ID), Name: user.Username})
	}

	existing, err := database.GetUserResults(ctx, players[0].ID)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to check results")
	}
	if len(existing) > 0 {
		log.Info().Int("results", len(existing)).Msg("database already seeded")
		return
	}

	markets := market.NewRegistry()
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 3; i++ {
		m := markets.Random(rng)
		if err := playGame(ctx, database, m, players, rng); err != nil {
			log.Fatal().Err(err).Str("question", m.Question).Msg("failed to seed game")
		}
		log.Info().Str("question", m.Question).Msg("seeded game")
	}
	log.Info().Msg("successfully seeded the database")
}

// playGame runs a short scripted round: the second player quotes around the
// fair value and the first lifts or hits a few of those quotes.
func playGame(ctx context.Context, database *db.DB, m models.Market, players []models.Participant, rng *rand.Rand) error {
	roundID := uuid.New().String()
	const length = 120
	err := database.CreateGame(ctx, game.GameRecord{
		ID:         roundID,
		Name:       "Seeded game",
		Scenario:   m.Question,
		Status:     models.StatusInProgress,
		GameLength: length,
	})
	if err != nil {
		return err
	}

	book := exchange.NewBook(roundID)
	maker, taker := players[1], players[0]
	for i := 0; i < 4; i++ {
		spread := m.FairValue * (0.02 + rng.Float64()*0.05)
		bid := roundCents(m.FairValue - spread)
		ask := roundCents(m.FairValue + spread)
		if bid <= 0 {
			bid = 0.01
		}
		if _, err := book.PostResting(models.SideBid, bid, 1+rng.Intn(5), maker.ID); err != nil {
			return err
		}
		if _, err := book.PostResting(models.SideAsk, ask, 1+rng.Intn(5), maker.ID); err != nil {
			return err
		}
		side, price := models.SideBid, ask
		if rng.Intn(2) == 0 {
			side, price = models.SideAsk, bid
		}
		if _, err := book.PlaceMarketable(side, price, 1+rng.Intn(3), taker.ID); err != nil {
			return err
		}
	}

	board := scoring.Finalize(book.Trades(), m.FairValue, players)
	results := scoring.Results(roundID, m.Question, length, board, players)
	if len(results) > 0 {
		if err := database.SaveResults(ctx, results); err != nil {
			return err
		}
	}
	return database.SetGameStatus(ctx, roundID, models.StatusCompleted)
}

func roundCents(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
