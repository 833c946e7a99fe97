package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"pastebox/internal/auth"
	"pastebox/internal/config"
	"pastebox/internal/httpserver"
	"pastebox/internal/janitor"
	"pastebox/internal/logging"
	"pastebox/internal/metrics"
	"pastebox/internal/paste"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		bootLogger := logging.New("info", false)
		bootLogger.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Pretty)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("pastebox exited")
	}
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	store, err := openStore(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return errors.Wrap(err, "open data store")
	}
	defer store.Close()

	codec, err := sessionCodec(cfg)
	if err != nil {
		return err
	}
	if cfg.Session.Secret == "" {
		logger.Warn().Msg("session.secret is empty; session cookies are unsigned")
	}

	pastes := paste.NewService(store, logger)
	accounts := auth.NewService(store, codec, logger)
	limiter := httpserver.NewRateLimiter(rate.Limit(cfg.Rate.Limit), cfg.Rate.Burst, 15*time.Minute)

	srv, err := httpserver.New(httpserver.Config{
		Pastes:      pastes,
		Auth:        accounts,
		Health:      store,
		Metrics:     metrics.Handler(),
		MaxBytes:    cfg.MaxBytes,
		ListLimit:   cfg.List.Limit,
		RateLimiter: limiter,
		TrustProxy:  cfg.BehindProxy,
		BaseURL:     cfg.BaseURL,
		CookieName:  cfg.Session.CookieName,
		Logger:      logger,
	})
	if err != nil {
		return errors.Wrap(err, "construct server")
	}

	srvHTTP := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		janitor.Run(gctx, pastes, cfg.Sweep.Interval, logger)
		return nil
	})
	g.Go(func() error {
		logger.Info().Str("addr", cfg.Addr).Str("database", redact(cfg.Database.URL)).Msg("listening")
		if err := srvHTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srvHTTP.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown error")
		}
		return nil
	})
	return g.Wait()
}

func sessionCodec(cfg *config.Config) (auth.Codec, error) {
	if cfg.Session.Secret == "" {
		return auth.PlainCodec{}, nil
	}
	codec, err := auth.NewSignedCodec(cfg.Session.CookieName, []byte(cfg.Session.Secret), nil, 0)
	if err != nil {
		return nil, errors.Wrap(err, "session codec")
	}
	return codec, nil
}
