package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger
type Logger struct {
	zerolog.Logger
}

// New creates a logger. Development output is human readable; anything
// else is JSON.
func New(environment string, level string) *Logger {
	var output io.Writer = os.Stderr

	if environment == "development" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	logger := zerolog.New(output).
		Level(lvl).
		With().
		Timestamp().
		Str("service", "formpilot").
		Logger()

	return &Logger{Logger: logger}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

// WithComponent returns a logger with the component name attached
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.Logger.With().Str("component", component).Logger(),
	}
}

// WithTab returns a logger with the tab id attached
func (l *Logger) WithTab(tabID int) *Logger {
	return &Logger{
		Logger: l.Logger.With().Int("tab_id", tabID).Logger(),
	}
}

// WithFrame returns a logger with the frame URL attached
func (l *Logger) WithFrame(url string) *Logger {
	return &Logger{
		Logger: l.Logger.With().Str("frame", url).Logger(),
	}
}
