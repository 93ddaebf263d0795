package internal

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel is the verbosity of the CLI log. Higher levels include the lower ones.
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

var levelNames = []string{"error", "warn", "info", "debug"}

func (l LogLevel) String() string {
	if l < LogLevelError || l > LogLevelDebug {
		return fmt.Sprintf("LogLevel(%d)", int(l))
	}
	return levelNames[l]
}

// Zerolog maps the level onto zerolog's scale.
func (l LogLevel) Zerolog() zerolog.Level {
	switch l {
	case LogLevelError:
		return zerolog.ErrorLevel
	case LogLevelWarn:
		return zerolog.WarnLevel
	case LogLevelDebug:
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLogLevel reads a level name. The empty string means info.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return LogLevelInfo, nil
	case "error":
		return LogLevelError, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "debug":
		return LogLevelDebug, nil
	}
	return LogLevelInfo, fmt.Errorf("unknown log level %q (want one of %s)", s, strings.Join(levelNames, ", "))
}

var (
	logLevel = LogLevelInfo
	logger   = newLogger(os.Stderr)
)

func newLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Logger()
}

// SetLogLevel sets the global log level
func SetLogLevel(level LogLevel) {
	logLevel = level
}

// CurrentLogLevel returns the global log level
func CurrentLogLevel() LogLevel {
	return logLevel
}

// SetVerbose switches between debug and info logging
func SetVerbose(verbose bool) {
	if verbose {
		SetLogLevel(LogLevelDebug)
	} else {
		SetLogLevel(LogLevelInfo)
	}
}

// SetLogOutput redirects log output, e.g. to keep the chat prompt clean.
func SetLogOutput(w io.Writer) {
	logger = newLogger(w)
}

// Logger returns the structured logger behind the Log* helpers, filtered at
// the current level, for callers that want fields instead of format strings.
func Logger() zerolog.Logger {
	return logger.Level(logLevel.Zerolog())
}

func logf(level LogLevel, format string, args ...interface{}) {
	if level > logLevel {
		return
	}
	logger.WithLevel(level.Zerolog()).Msgf(format, args...)
}

// LogError logs an error message
func LogError(format string, args ...interface{}) { logf(LogLevelError, format, args...) }

// LogWarn logs a warning message
func LogWarn(format string, args ...interface{}) { logf(LogLevelWarn, format, args...) }

// LogInfo logs an info message
func LogInfo(format string, args ...interface{}) { logf(LogLevelInfo, format, args...) }

// LogDebug logs a debug message
func LogDebug(format string, args ...interface{}) { logf(LogLevelDebug, format, args...) }
