// Package logging builds the process slog logger.
//
// Output is text on a terminal and JSON otherwise; LOG_FORMAT (text/json)
// overrides the detection and LOG_LEVEL (debug/info/warn/error) sets the
// level. Source locations are shortened to paths relative to the working
// directory. Request-scoped attributes are added with FromContext.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ServiceName is attached to every record as the "service" attribute.
const ServiceName = "companion-api"

// Format selects the handler encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Options configures a logger. Zero values fall back to env-derived defaults.
type Options struct {
	Writer    io.Writer
	Format    Format
	Level     slog.Level
	AddSource bool
	// BaseDir is stripped from source paths; defaults to the working directory.
	BaseDir string
}

// optionsFromEnv reads LOG_FORMAT and LOG_LEVEL.
func optionsFromEnv() Options {
	format := Format(strings.ToLower(strings.TrimSpace(os.Getenv("LOG_FORMAT"))))
	if format != FormatText && format != FormatJSON {
		format = FormatJSON
		if isatty(os.Stdout) {
			format = FormatText
		}
	}
	wd, _ := os.Getwd()
	return Options{
		Writer:    os.Stdout,
		Format:    format,
		Level:     parseLogLevel(os.Getenv("LOG_LEVEL")),
		AddSource: true,
		BaseDir:   wd,
	}
}

// New creates a logger configured from the environment.
func New() *slog.Logger {
	return NewWithOptions(optionsFromEnv())
}

// NewWithOptions creates a logger from explicit options.
func NewWithOptions(opts Options) *slog.Logger {
	if opts.Writer == nil {
		opts.Writer = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     opts.Level,
		AddSource: opts.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key != slog.SourceKey {
				return a
			}
			if src, ok := a.Value.Any().(*slog.Source); ok {
				src.File = shortenPath(opts.BaseDir, src.File)
			}
			return a
		},
	}

	var handler slog.Handler
	if opts.Format == FormatText {
		handler = slog.NewTextHandler(opts.Writer, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(opts.Writer, handlerOpts)
	}
	return slog.New(handler).With("service", ServiceName)
}

// shortenPath makes file relative to base, or reduces it to its base name.
func shortenPath(base, file string) string {
	if base != "" {
		if rel, err := filepath.Rel(base, file); err == nil && !strings.HasPrefix(rel, "..") {
			return rel
		}
	}
	return filepath.Base(file)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetDefault creates a logger from the environment and installs it as the
// slog default.
func SetDefault() *slog.Logger {
	logger := New()
	slog.SetDefault(logger)
	return logger
}

// isatty returns true if the file is a terminal.
func isatty(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}
