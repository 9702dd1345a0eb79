package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/layer-3/ethauth/adapters/events"
	"github.com/layer-3/ethauth/adapters/store"
	"github.com/layer-3/ethauth/adapters/tokenizer"
	"github.com/layer-3/ethauth/internal/config"
	"github.com/layer-3/ethauth/internal/eth"
	"github.com/layer-3/ethauth/ports"
	"github.com/layer-3/ethauth/service"
	httptransport "github.com/layer-3/ethauth/transport/http"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg, logger)
	},
}

func serve(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	hasher, typedData, err := newHasher(cfg)
	if err != nil {
		return err
	}

	var (
		challengeStore ports.ChallengeStore
		eventPub       ports.EventPublisher = events.NopPublisher{}
	)

	switch cfg.Store {
	case config.StoreMemory:
		challengeStore = store.NewMemoryStore(cfg.ChallengeTTL)
	case config.StoreRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse redis url: %w", err)
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		challengeStore = store.NewRedisStore(redisClient, cfg.ChallengeTTL)

		if cfg.Events.Enabled {
			publisher, err := redisstream.NewPublisher(
				redisstream.PublisherConfig{Client: redisClient},
				events.NewZerologAdapter(logger),
			)
			if err != nil {
				return fmt.Errorf("failed to create redis publisher: %w", err)
			}
			defer publisher.Close()
			eventPub = events.NewWatermillPublisher(publisher, cfg.Events.Topic)
		}
	}

	// Receipts only need to verify within this process lifetime
	receiptKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate receipt key: %w", err)
	}

	authService, err := service.NewAuthService(
		service.Config{Banner: cfg.Banner, ReceiptTTL: cfg.ReceiptTTL},
		challengeStore,
		eth.NewRecoverer(hasher),
		tokenizer.NewJWTTokenizer(receiptKey),
		eventPub,
		logger,
	)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httptransport.SetupRouter(authService, typedData, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.ListenAddr).
			Str("store", cfg.Store).
			Str("scheme", cfg.Scheme).
			Msg("starting server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}
