package config

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupLogging configures the global logger from TRAJLOG_LOG_LEVEL and
// TRAJLOG_LOG_FORMAT. Logs go to stderr; stdout belongs to command output.
func SetupLogging() {
	setupLogging(os.Stderr, os.Getenv("TRAJLOG_LOG_LEVEL"), os.Getenv("TRAJLOG_LOG_FORMAT"))
}

func setupLogging(w io.Writer, levelName, format string) {
	level, err := zerolog.ParseLevel(levelName)
	if err != nil || levelName == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if format == "text" {
		w = zerolog.ConsoleWriter{Out: w}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}
