package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"reviewdesk/internal/adapters/gemini"
	"reviewdesk/internal/adapters/google"
	server "reviewdesk/internal/adapters/http_server"
	"reviewdesk/internal/adapters/observability"
	redisad "reviewdesk/internal/adapters/redis"
	"reviewdesk/internal/adapters/yelp"
	"reviewdesk/internal/app"
	"reviewdesk/internal/domain"
	"reviewdesk/internal/secret"
	"reviewdesk/internal/shared"
	"reviewdesk/internal/storage/memory"
	mysqlrepo "reviewdesk/internal/storage/mysql"
)

// store is every repository the API needs.
type store interface {
	domain.UserRepository
	domain.SessionRepository
	domain.BusinessRepository
	domain.ReviewRepository
	domain.SyncLogRepository
}

func openStore(cfg shared.Config) store {
	if cfg.Store == "memory" {
		log.Warn().Msg("using in-memory store, data is lost on restart")
		return memory.New()
	}
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")
	if err := mysqlrepo.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}
	return mysqlrepo.New(db)
}

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	repo := openStore(cfg)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err := cache.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("redis unreachable, continuing without cache hits")
	}

	// optional providers stay nil interfaces so the services answer 503
	var provider domain.ReviewProvider
	if cfg.YelpKey != "" {
		yc, err := yelp.New(yelp.Config{
			BaseURL:     cfg.YelpBase,
			APIKey:      cfg.YelpKey,
			RPS:         cfg.YelpRPS,
			MaxAttempts: cfg.ProviderMaxAttempts,
			BaseDelay:   cfg.ProviderRetryBase,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize Yelp client")
		}
		provider = yc
	}

	var (
		yelpAuth     server.YelpAuthorizer
		yelpExchange app.CodeExchanger
	)
	if oa := yelp.NewOAuth(cfg.YelpClientID, cfg.YelpClientSecret, cfg.AppURL); oa.Enabled() {
		yelpAuth, yelpExchange = oa, oa
	}

	var box app.TokenBox
	if cfg.EncryptionKey != "" {
		b, err := secret.New(cfg.EncryptionKey)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to derive encryption key")
		}
		box = b
	}

	var idp domain.IdentityVerifier
	var profiles domain.GoogleProfiles
	if cfg.GoogleClientID != "" {
		idp = google.NewIDTokens(cfg.GoogleClientID)
	}
	if cfg.GoogleClientID != "" || cfg.GooglePlacesKey != "" {
		profiles = google.New(google.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			PlacesKey:    cfg.GooglePlacesKey,
			MaxAttempts:  cfg.ProviderMaxAttempts,
			BaseDelay:    cfg.ProviderRetryBase,
		})
	}

	var analyzer domain.Analyzer
	if cfg.GeminiKey != "" {
		a, err := gemini.New(ctx, cfg.GeminiKey, cfg.GeminiModel)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize Gemini client")
		}
		analyzer = a
	}

	policy := app.Policy{Window: cfg.SyncWindow, MaxPerWindow: cfg.SyncMaxPerWindow, Cooldown: cfg.SyncCooldown}
	h := &server.Handlers{
		Sessions: app.NewSessionService(repo, repo, idp, cfg.SessionTTL),
		Business: app.NewBusinessService(app.BusinessDeps{
			Users:      repo,
			Businesses: repo,
			Reviews:    repo,
			Logs:       repo,
			Provider:   provider,
			Google:     profiles,
			YelpOAuth:  yelpExchange,
			Box:        box,
			Cache:      cache,
		}),
		Queries:  app.NewQueryService(repo, repo, repo, provider, analyzer, cache, cfg.CacheTTL),
		Sync:     app.NewSyncEngine(provider, repo, repo, repo, cache, policy),
		YelpAuth: yelpAuth,
		AppURL:   cfg.AppURL,
		Secure:   !cfg.Dev(),
	}

	// http
	srv := server.New(server.WithRequestTimeout(cfg.ReqTimeout))
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(h)

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server failed")
	}
	log.Info().Msg("API stopped")
}
