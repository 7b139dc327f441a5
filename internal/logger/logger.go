package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance. It discards everything until Init is called.
	Logger = zerolog.Nop()
)

// Init initializes the global logger
func Init(level string) {
	// Configure output
	var output io.Writer = os.Stdout

	// Pretty console logging in development
	if os.Getenv("ENV") == "development" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	Logger = New(output, level)

	Logger.Info().
		Str("level", Logger.GetLevel().String()).
		Msg("logger initialized")
}

// New builds a logger writing to w at the given level (info when unparsable).
func New(w io.Writer, level string) zerolog.Logger {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		logLevel = zerolog.InfoLevel
	}

	return zerolog.New(w).
		Level(logLevel).
		With().
		Timestamp().
		Caller().
		Str("service", "sensorwatch").
		Logger()
}

// WithComponent returns a logger with a component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithRequestID returns a logger with a request ID field
func WithRequestID(requestID string) zerolog.Logger {
	return Logger.With().Str("request_id", requestID).Logger()
}

// WithSensor returns a component logger tagged with a sensor_id
func WithSensor(component, sensorID string) zerolog.Logger {
	return Logger.With().
		Str("component", component).
		Str("sensor_id", sensorID).
		Logger()
}
