package tenantlog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Zero is the process-wide logger. Packages log through it with structured
// fields rather than holding their own logger instances.
var Zero = NewZeroLogger("", true)

var logFile *os.File

// NewZeroLogger builds a logger writing to filepath, or to stdout when
// filepath is empty. Pretty output uses the console writer.
func NewZeroLogger(filepath string, pretty bool) *zerolog.Logger {
	_, writer, err := newWriter(filepath)
	if err != nil {
		writer = os.Stdout
	}
	var out io.Writer = writer
	if pretty {
		out = zerolog.ConsoleWriter{Out: writer, TimeFormat: time.RFC3339}
	}
	logger := zerolog.New(out).With().Timestamp().Logger()

	return &logger
}

// ReloadLogger points Zero at a new destination, keeping the current level.
func ReloadLogger(filepath string, pretty bool) error {
	f, writer, err := newWriter(filepath)
	if err != nil {
		return err
	}
	var out io.Writer = writer
	if pretty {
		out = zerolog.ConsoleWriter{Out: writer, TimeFormat: time.RFC3339}
	}
	logger := zerolog.New(out).With().Timestamp().Logger().Level(Zero.GetLevel())

	old := logFile
	logFile = f
	Zero = &logger
	if old != nil {
		_ = old.Close()
	}
	return nil
}

func UpdateZeroLogLevel(logLevel string) error {
	level := parseLevel(logLevel)
	zeroLogger := Zero.With().Logger().Level(level)
	Zero = &zeroLogger
	return nil
}

// ValidLevel reports whether level is one UpdateZeroLogLevel understands.
// The empty string selects the default.
func ValidLevel(level string) bool {
	switch level {
	case "", "debug", "info", "warning", "error", "fatal", "disabled":
		return true
	}
	return false
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
