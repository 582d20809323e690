package main

import (
	"context"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/galactic-archives/internal/auth"
	"github.com/dukerupert/galactic-archives/internal/billing"
	"github.com/dukerupert/galactic-archives/internal/config"
	"github.com/dukerupert/galactic-archives/internal/server"
	"github.com/dukerupert/galactic-archives/internal/store"
)

func serveCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.JWTSecret == config.PlaceholderJWTSecret {
		logger.Warn("JWT_SECRET is the development placeholder")
	}

	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.JWTExpiresIn)
	if err != nil {
		return err
	}

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		// Keep serving so health checks can report the outage.
		logger.Error("store unavailable, starting degraded", "driver", cfg.StoreDriver, "error", err)
		st = store.Unavailable{Err: err}
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			logger.Error("close store", "error", err)
		}
	}()

	opts := server.Options{
		Version:        Version,
		CORSOrigins:    cfg.CORSOrigins,
		AuthRateLimit:  cfg.RateLimitAuth,
		TrustedProxies: cfg.TrustedProxies,
		Argon2: auth.Argon2Params{
			Memory:      cfg.Argon2MemoryKiB,
			Iterations:  cfg.Argon2Iterations,
			Parallelism: cfg.Argon2Parallelism,
		},
	}
	if cfg.BillingEnabled() {
		if cfg.StripeWebhookSecret == "" {
			logger.Warn("STRIPE_WEBHOOK_SECRET is empty, webhook deliveries will be rejected")
		}
		opts.Billing = billing.NewClient(billing.Config{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			FrontendURL:   cfg.FrontendURL,
		})
	} else {
		logger.Info("billing disabled, STRIPE_SECRET_KEY is not set")
	}

	srv := server.New(st, tokens, opts, logger)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Background cleanup goroutine
	cleanupCtx, cleanupCancel := context.WithCancel(ctx)
	defer cleanupCancel()
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("galactic archives starting", "addr", httpServer.Addr, "env", cfg.Env, "store", cfg.StoreDriver, "version", Version)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	cleanupCancel()
	srv.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
