package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"courtside/internal/auth"
	"courtside/internal/authz"
	"courtside/internal/config"
	"courtside/internal/draft"
	"courtside/internal/feed"
	"courtside/internal/geo"
	"courtside/internal/objectstore"
	"courtside/internal/observability/logging"
	"courtside/internal/observability/metrics"
	"courtside/internal/realtime"
	"courtside/internal/service"
	"courtside/internal/session"
	"courtside/internal/store"
	httpx "courtside/internal/transport/http"
)

func main() {
	if err := config.LoadDotenv(".env"); err != nil {
		slog.Warn("dotenv", "error", err)
	}
	cfg := config.Load()

	logger := logging.NewLogger(logging.Config{
		ServiceName: "courtside",
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
	})
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	metrics.MustRegister("courtside")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	// 1) DB
	gdb, err := store.Open(store.OpenConfig{DSN: cfg.DatabaseURL, LogSQL: cfg.Environment == "dev"})
	if err != nil {
		return err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	if config.IsSQLite(cfg.DatabaseURL) {
		sqlDB.SetMaxOpenConns(1)
	}

	// 2) Change feed
	var (
		changes feed.Feed
		opts    []store.Option
	)
	switch cfg.FeedMode {
	case "memory":
		hub := feed.NewHub()
		defer hub.Close()
		changes = hub
		opts = append(opts, store.WithPublisher(hub))
	default:
		pg := feed.NewPGFeed(cfg.DatabaseURL, logger.With("component", "feed"))
		defer pg.Close()
		changes = pg
	}

	st := store.New(gdb, opts...)
	if err := st.AutoMigrate(ctx); err != nil {
		return err
	}
	drafts := draft.NewGormStore(gdb)
	if err := drafts.Migrate(ctx); err != nil {
		return err
	}

	// 3) Auth
	authClient := auth.NewClient(cfg.AuthBaseURL, cfg.AuthAPIKey)
	var verifier auth.Verifier
	if cfg.AuthJWTSecret != "" {
		logger.Info("using HS256 shared-secret token validation")
		verifier = auth.NewHMACVerifier(cfg.AuthJWTSecret, cfg.AuthIssuer)
	} else {
		logger.Info("using JWKS token validation", "jwks_url", cfg.AuthJWKSURL)
		jv, err := auth.NewJWKSVerifier(cfg.AuthJWKSURL, cfg.AuthIssuer)
		if err != nil {
			return err
		}
		defer jv.Close()
		verifier = jv
	}

	sessionLogger := logger.With("component", "session")
	registry := session.NewRegistry(func() *session.Store {
		return session.New(authClient, verifier, session.Options{Logger: sessionLogger})
	}, cfg.SessionTTL, sessionLogger)
	defer registry.Close()
	go registry.Run(ctx, time.Minute)

	// 4) Storage and services
	avatars, err := objectstore.NewDiskBucket(cfg.StorageDir, objectstore.BucketAvatars, cfg.StoragePublicURL)
	if err != nil {
		return err
	}
	attachments, err := objectstore.NewDiskBucket(cfg.StorageDir, objectstore.BucketAttachments, cfg.StoragePublicURL)
	if err != nil {
		return err
	}
	svcs := service.New(service.Deps{
		Store:       st,
		Avatars:     avatars,
		Attachments: attachments,
		Logger:      logger,
	})

	// 5) HTTP
	router := httpx.NewRouter(httpx.Deps{
		Services: svcs,
		Auth:     authClient,
		Sessions: registry,
		Cookies: session.CookieConfig{
			Name:        cfg.SessionCookie,
			RefreshName: cfg.SessionCookie + "_rt",
			Secure:      cfg.SessionCookieSecure,
			MaxAge:      cfg.SessionTTL,
		},
		Gate:               authz.NewGate(authz.WithLogger(logger)),
		Drafts:             drafts,
		Feed:               changes,
		Realtime:           realtime.Options{BackoffMax: cfg.RealtimeBackoffMax, Logger: logger.With("component", "realtime")},
		Geocoder:           geo.NewClient(cfg.GeocoderURL, cfg.GeocoderRPS),
		Debounce:           geo.NewDebouncer(cfg.GeocoderDebounce),
		StorageDir:         cfg.StorageDir,
		PublicURL:          cfg.PublicURL,
		CORSOrigins:        cfg.CORSOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("courtside listening", "addr", srv.Addr, "feed", cfg.FeedMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
