package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/edvin/tenancy/internal/config"
)

// NewLogger creates a structured zerolog.Logger with observability context
// fields from the config. Local development gets human-readable output.
func NewLogger(cfg *config.Config) zerolog.Logger {
	var out io.Writer = os.Stdout
	if cfg.LocalDevelopment {
		out = zerolog.ConsoleWriter{Out: os.Stdout}
	}
	return newLogger(out, cfg)
}

func newLogger(out io.Writer, cfg *config.Config) zerolog.Logger {
	ctx := zerolog.New(out).With().Timestamp()

	if cfg.ServiceName != "" {
		ctx = ctx.Str("service", cfg.ServiceName)
	}
	if cfg.MigrationService != "" {
		ctx = ctx.Str("migration_service", cfg.MigrationService)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return ctx.Logger().Level(level)
}
