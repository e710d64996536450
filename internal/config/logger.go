package config

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the process-wide zerolog logger. An unknown
// level falls back to info; format "console" swaps the JSON stream for
// a human-readable writer. Both formats write to stderr so ledger
// exports piped from stdout stay clean.
func InitLogger(level, format string) {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var out io.Writer = os.Stderr
	if strings.EqualFold(format, "console") {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Caller().Logger()

	if err != nil {
		log.Warn().Str("requested", level).Msg("Unknown log level, using info")
	}
	log.Info().
		Str("level", parsed.String()).
		Str("format", format).
		Msg("Logger initialized")
}
