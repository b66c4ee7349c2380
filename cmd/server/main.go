package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xtrntr/tradinggame/internal/api"
	"github.com/xtrntr/tradinggame/internal/auth"
	"github.com/xtrntr/tradinggame/internal/config"
	"github.com/xtrntr/tradinggame/internal/db"
	"github.com/xtrntr/tradinggame/internal/events"
	"github.com/xtrntr/tradinggame/internal/game"
	"github.com/xtrntr/tradinggame/internal/market"
	"github.com/xtrntr/tradinggame/internal/metrics"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()
	var migrate string

	cmd := &cobra.Command{
		Use:           "server",
		Short:         "Trading game server: lobbies, order books, bots and leaderboards",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			logger := zerolog.New(os.Stderr).Level(cfg.LogLevel).With().Timestamp().Logger()
			if err := run(cmd.Context(), cfg, migrate, logger); err != nil {
				logger.Error().Err(err).Msg("server stopped")
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&migrate, "migrate", "", "apply this schema file before serving")
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		panic(err)
	}
	return cmd
}

// run serves until ctx is cancelled or a termination signal arrives, then
// ends every round and drains the HTTP server.
func run(ctx context.Context, cfg *config.Config, migrate string, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	if migrate != "" {
		script, err := os.ReadFile(migrate)
		if err != nil {
			return fmt.Errorf("failed to read migration: %w", err)
		}
		if err := database.Migrate(ctx, string(script)); err != nil {
			return err
		}
		logger.Info().Str("file", migrate).Msg("schema applied")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	hub := events.NewHub(logger)
	manager := game.NewManager(cfg.Game, market.NewRegistry(), database, hub, m, logger.With().Str("component", "game").Logger())
	authService := auth.NewAuthService(database, cfg.JWTSecret)
	handler := api.NewHandler(manager, authService, database, hub, logger.With().Str("component", "api").Logger())

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Mount("/api", handler.Routes())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		// Drain requests first so Close sees every started round.
		httpCtx, cancelHTTP := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancelHTTP()
		err := srv.Shutdown(httpCtx)
		if err != nil {
			logger.Warn().Err(err).Msg("http server did not drain in time")
		}

		roundsCtx, cancelRounds := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancelRounds()
		if err := manager.Close(roundsCtx); err != nil {
			logger.Warn().Err(err).Msg("rounds did not stop in time")
		}
		return err
	})
	return g.Wait()
}
