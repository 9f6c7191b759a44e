package app

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// InitLogger builds the root logger. Console output is for local runs; other
// environments get one JSON object per line.
func InitLogger(levelStr string, console bool) zerolog.Logger {
	level, err := zerolog.ParseLevel(levelStr)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.DurationFieldUnit = time.Millisecond

	var output io.Writer = os.Stdout
	if console {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "2006-01-02 15:04:05",
		}
	}

	logger := zerolog.New(output).With().
		Timestamp().
		Str("app", "relayer").
		Logger()

	return logger
}
