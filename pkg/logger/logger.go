package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// New builds the process logger: a pretty console writer in development,
// structured JSON otherwise.
func New(environment string) zerolog.Logger {
	if environment == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().
			Timestamp().
			Logger()
	}
	return zerolog.New(os.Stdout).
		With().
		Timestamp().
		Logger()
}
