package shared

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string
	AppURL      string
	ReqTimeout  time.Duration
	Store       string // mysql|memory
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string
	CacheTTL    time.Duration

	YelpBase         string
	YelpKey          string
	YelpClientID     string
	YelpClientSecret string
	YelpRPS          int

	ProviderMaxAttempts int
	ProviderRetryBase   time.Duration

	SyncWindow       time.Duration
	SyncMaxPerWindow int
	SyncCooldown     time.Duration
	SyncWorkers      int

	GoogleClientID     string
	GoogleClientSecret string
	GooglePlacesKey    string
	GeminiKey          string
	GeminiModel        string

	EncryptionKey string
	SessionTTL    time.Duration
}

func Load() Config {
	// optional .env for local runs
	_ = godotenv.Load()

	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
			log.Warn().Str("key", k).Str("value", v).Msg("ignoring non-integer env value")
		}
		return def
	}
	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ""),
		AppURL:      env("APP_URL", "http://localhost:3000"),
		ReqTimeout:  time.Duration(atoi("REQUEST_TIMEOUT_SECONDS", 30)) * time.Second,
		Store:       env("STORE_BACKEND", "mysql"),
		MySQLDSN:    env("MYSQL_DSN", "root:root@tcp(localhost:3306)/reviewdesk?parseTime=true&multiStatements=true&charset=utf8mb4&loc=UTC"),
		RedisAddr:   env("REDIS_ADDR", "localhost:6379"),
		RedisPass:   env("REDIS_PASSWORD", ""),
		RedisDB:     atoi("REDIS_DB", 0),
		CacheTTL:    time.Duration(atoi("CACHE_TTL_SECONDS", 900)) * time.Second,

		YelpBase:         env("YELP_BASE_URL", "https://api.yelp.com/v3"),
		YelpKey:          env("YELP_API_KEY", ""),
		YelpClientID:     env("YELP_CLIENT_ID", ""),
		YelpClientSecret: env("YELP_CLIENT_SECRET", ""),
		YelpRPS:          atoi("YELP_RPS", 5),

		ProviderMaxAttempts: atoi("PROVIDER_MAX_ATTEMPTS", 5),
		ProviderRetryBase:   time.Duration(atoi("PROVIDER_RETRY_BASE_MS", 2000)) * time.Millisecond,

		SyncWindow:       time.Duration(atoi("SYNC_WINDOW_HOURS", 24)) * time.Hour,
		SyncMaxPerWindow: atoi("SYNC_MAX_PER_WINDOW", 5),
		SyncCooldown:     time.Duration(atoi("SYNC_COOLDOWN_SECONDS", 60)) * time.Second,
		SyncWorkers:      atoi("SYNC_WORKERS", 4),

		GoogleClientID:     env("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: env("GOOGLE_CLIENT_SECRET", ""),
		GooglePlacesKey:    env("GOOGLE_PLACES_API_KEY", ""),
		GeminiKey:          env("GEMINI_API_KEY", ""),
		GeminiModel:        env("GEMINI_MODEL", "gemini-2.0-flash"),

		EncryptionKey: env("ENCRYPTION_KEY", ""),
		SessionTTL:    time.Duration(atoi("SESSION_TTL_HOURS", 24*7)) * time.Hour,
	}
	if c.YelpKey == "" {
		log.Warn().Msg("YELP_API_KEY is empty, Yelp routes will answer 503")
	}
	if c.GoogleClientID == "" {
		log.Warn().Msg("GOOGLE_CLIENT_ID is empty, Google sign-in will fail")
	}
	if c.GeminiKey == "" {
		log.Warn().Msg("GEMINI_API_KEY is empty, review analysis is disabled")
	}
	if c.EncryptionKey == "" {
		log.Warn().Msg("ENCRYPTION_KEY is empty, Yelp OAuth tokens cannot be stored")
	}
	return c
}

func (c Config) Dev() bool { return c.AppEnv == "dev" || c.AppEnv == "development" }

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
