package core

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the root logger from the logging section. Lines go to out
// in the configured format; taps receive the raw JSON lines.
func NewLogger(cfg LoggingConfig, out io.Writer, taps ...io.Writer) zerolog.Logger {
	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}
	if len(taps) > 0 {
		out = zerolog.MultiLevelWriter(append([]io.Writer{out}, taps...)...)
	}
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))
	return zerolog.New(out).With().Timestamp().Logger()
}

// ParseLevel maps a logging.level value to a zerolog level, defaulting to
// info. The level is applied globally so ReloadConfig can change it later.
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
