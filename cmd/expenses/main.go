package main

import (
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"expenses/internal/auth"
	"expenses/internal/backend"
	"expenses/internal/cli"
	"expenses/internal/config"
	"expenses/internal/core"
	apphttp "expenses/internal/http"
	"expenses/internal/log"
	"expenses/internal/services"
)

func main() {
	cfg, logger, err := cli.Bootstrap(log.ComponentApp, (*config.Config).Validate)
	if err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Server error", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Warn("Backend cleanup failed", log.FieldError, err.Error())
		}
	}()

	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		// Only the memory backend gets here.
		secret = make([]byte, auth.MinSecretBytes)
		if _, err := rand.Read(secret); err != nil {
			return err
		}
		logger.Warn("JWT_SECRET not set, using a random secret for this process")
	}
	tokens, err := auth.NewTokenManager(secret, cfg.JWTTTL)
	if err != nil {
		return err
	}

	opts := []services.ExpenseOption{
		services.WithPageLimits(core.PageLimits{Default: cfg.DefaultPageLimit, Max: cfg.MaxPageLimit}),
	}
	if res.Events != nil {
		opts = append(opts, services.WithEvents(res.Events))
	}
	expenses := services.NewExpenseService(res.Store, opts...)

	users, err := services.NewUserService(res.Store, auth.DefaultHasher, tokens)
	if err != nil {
		return err
	}

	srv, err := apphttp.NewServer(apphttp.Config{
		Addr:               ":" + cfg.Port,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		TrustedProxies:     cfg.TrustedProxies,
	}, apphttp.Dependencies{
		Expenses: expenses,
		Users:    users,
		Tokens:   tokens,
		Store:    res.Store,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting expense tracker server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"token_ttl", tokens.TTL().String(),
			"events_enabled", res.Events != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received", log.FieldOperation, log.OpShutdown)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
