// Command syncer runs one Yelp sync for every connected business, under the
// same window limit and cooldown as the API route.
package main

import (
	"context"
	"database/sql"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"reviewdesk/internal/adapters/observability"
	redisad "reviewdesk/internal/adapters/redis"
	"reviewdesk/internal/adapters/yelp"
	"reviewdesk/internal/app"
	"reviewdesk/internal/domain"
	"reviewdesk/internal/shared"
	mysqlrepo "reviewdesk/internal/storage/mysql"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cfg := shared.Load()

	// 1) initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	log.Info().
		Str("base", cfg.YelpBase).
		Int("workers", cfg.SyncWorkers).
		Msg("syncer starting")

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")
	if err := mysqlrepo.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}
	repo := mysqlrepo.New(db)

	client, err := yelp.New(yelp.Config{
		BaseURL:     cfg.YelpBase,
		APIKey:      cfg.YelpKey,
		RPS:         cfg.YelpRPS,
		MaxAttempts: cfg.ProviderMaxAttempts,
		BaseDelay:   cfg.ProviderRetryBase,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize Yelp client")
	}
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	policy := app.Policy{Window: cfg.SyncWindow, MaxPerWindow: cfg.SyncMaxPerWindow, Cooldown: cfg.SyncCooldown}
	engine := app.NewSyncEngine(client, repo, repo, repo, cache, policy)

	businesses, err := repo.ListYelpConnected(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("list connected businesses failed")
	}

	workers := cfg.SyncWorkers
	if workers <= 0 {
		workers = 1
	}
	sem := semaphore.NewWeighted(int64(workers))
	var wg sync.WaitGroup
	var synced, skipped, failed atomic.Int64

	for _, b := range businesses {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Warn().Err(err).Msg("stopping before all businesses were scheduled")
			break
		}

		wg.Add(1)
		go func(b domain.Business) {
			defer wg.Done()
			defer sem.Release(1)

			res, err := engine.Sync(ctx, b)
			switch {
			case err == nil:
				synced.Add(1)
				log.Info().Str("business_id", b.ID).Int("reviews", res.SyncedCount).Msg("sync ok")
			case domain.KindOf(err) == domain.KindRateLimited:
				skipped.Add(1)
				log.Info().Str("business_id", b.ID).Err(err).Msg("sync skipped")
			default:
				failed.Add(1)
				log.Warn().Str("business_id", b.ID).Err(err).Msg("sync failed")
			}
		}(b)
	}

	wg.Wait()
	log.Info().
		Int("businesses", len(businesses)).
		Int64("synced", synced.Load()).
		Int64("skipped", skipped.Load()).
		Int64("failed", failed.Load()).
		Msg("sync run completed")
}
