package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// logger is the package-wide structured logger. It stays silent until the
// CLI configures it, so library callers and tests see no output.
var logger = zerolog.Nop()

// setupLogging configures the package logger for the given level and format.
func setupLogging(cfg LogConfig, w io.Writer) error {
	level, err := parseLogLevel(cfg.Level)
	if err != nil {
		return err
	}
	if w == nil {
		w = os.Stderr
	}

	out := w
	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}

	logger = zerolog.New(out).Level(level).With().Timestamp().Logger()
	return nil
}

func parseLogLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "info", "":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("%w: unknown log level %q (debug, info, warn, error)", ErrInvalidConfig, s)
	}
}
