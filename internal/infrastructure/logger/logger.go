// Package logger configures boardpilot's process-wide zerolog logger.
// Every package in this module logs through github.com/rs/zerolog/log
// rather than taking an injected logger, so Setup is the single place
// level and output format are decided.
package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup parses level case-insensitively with zerolog.ParseLevel (e.g.
// "debug", "info", "warn", "error"; a string zerolog cannot parse falls
// back to "info") and installs it as zerolog's global level,
// writing human-readable console output to stderr. Called once at
// process startup.
func Setup(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)

	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	log.Logger = zerolog.New(writer).With().Timestamp().Logger()
}
