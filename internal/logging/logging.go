// Package logging configures the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Options configures Setup.
type Options struct {
	// Level is a zerolog level name ("debug", "info", "warn", ...). Empty means info.
	Level string

	// Format is FormatConsole or FormatJSON. Empty means console.
	Format string

	// Verbose forces debug level.
	Verbose bool

	// Writer receives log output. Nil means os.Stderr, keeping stdout free
	// for exported documents.
	Writer io.Writer
}

// Setup builds a logger from opts and installs it as log.Logger.
func Setup(opts Options) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("log level %q: %w", opts.Level, err)
		}
		level = l
	}
	if opts.Verbose {
		level = zerolog.DebugLevel
	}

	var writer io.Writer = os.Stderr
	if opts.Writer != nil {
		writer = opts.Writer
	}
	switch opts.Format {
	case "", FormatConsole:
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: "15:04:05"}
	case FormatJSON:
	default:
		return zerolog.Nop(), fmt.Errorf("log format %q: must be %s or %s", opts.Format, FormatConsole, FormatJSON)
	}

	logger := zerolog.New(writer).
		With().
		Timestamp().
		Str("app", "pseval").
		Logger().
		Level(level)

	log.Logger = logger
	return logger, nil
}
