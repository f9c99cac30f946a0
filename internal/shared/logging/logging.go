package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/medireport/platform/internal/shared/config"
)

// New builds the root logger. Development defaults to console output,
// everything else to JSON on stdout.
func New(cfg config.LogConfig, env string) zerolog.Logger {
	return NewWithWriter(cfg, env, os.Stdout)
}

// NewWithWriter is New with an explicit output.
func NewWithWriter(cfg config.LogConfig, env string, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	format := cfg.Format
	if format == "" {
		format = "json"
		if env == "development" {
			format = "console"
		}
	}

	w := out
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", "medireport").
		Logger()
}
