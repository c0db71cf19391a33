// Package logger builds the structured zerolog logger shared by the store
// backends and the facade.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger construction options.
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // console writer for development
	Output     io.Writer
	WithCaller bool
}

// New creates a structured logger tagged with the service name.
func New(cfg Config) zerolog.Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	log := zerolog.New(output).Level(level).
		With().
		Timestamp().
		Str("service", "metastore").
		Logger()
	if cfg.WithCaller {
		log = log.With().Caller().Logger()
	}
	return log
}
