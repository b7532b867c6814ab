package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the process-wide logger. It writes JSON to stdout until Init
	// is called.
	Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

// Options controls logger construction
type Options struct {
	Level string
	// Format is "json" or "console". Empty picks console when ENV=development.
	Format string
	Output io.Writer
}

// Init initializes the global logger at the given level
func Init(level string) {
	InitWithOptions(Options{Level: level})
}

// InitWithOptions initializes the global logger
func InitWithOptions(opts Options) {
	logLevel, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || opts.Level == "" {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	output := opts.Output
	if output == nil {
		output = os.Stdout
	}

	format := opts.Format
	if format == "" && os.Getenv("ENV") == "development" {
		format = "console"
	}
	if format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()

	Logger.Debug().
		Str("level", logLevel.String()).
		Str("format", format).
		Msg("logger initialized")
}

// WithComponent returns a logger with a component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithRequestID returns a logger with a request ID field
func WithRequestID(requestID string) zerolog.Logger {
	return Logger.With().Str("request_id", requestID).Logger()
}

// WithDisease returns a component logger scoped to one disease
func WithDisease(component, disease string) zerolog.Logger {
	return Logger.With().
		Str("component", component).
		Str("disease", disease).
		Logger()
}
