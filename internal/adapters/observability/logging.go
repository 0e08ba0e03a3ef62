package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger returns the process logger. APP_ENV=dev (or development) writes
// colored console lines at debug level; everything else writes JSON at info.
// LOG_LEVEL overrides the level in both modes.
func NewLogger(env string) zerolog.Logger {
	zerolog.DurationFieldInteger = true
	zerolog.DurationFieldUnit = time.Millisecond

	dev := env == "dev" || env == "development"
	var out io.Writer = os.Stdout
	level := zerolog.InfoLevel
	if dev {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		level = zerolog.DebugLevel
	}
	if lv, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && lv != zerolog.NoLevel {
		level = lv
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("service", "reviewdesk").Logger()
}
