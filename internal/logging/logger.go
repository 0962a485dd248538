// Package logging configures zerolog for the doctor binary. Setup installs the
// process-wide logger used through github.com/rs/zerolog/log; packages derive
// component loggers from it with WithComponent.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config configures the logger behavior.
type Config struct {
	Level      string    // debug, info, warn, error
	Format     string    // console or json
	FilePath   string    // optional JSON log file, appended to
	ShowCaller bool      // add file:line to each entry
	Quiet      bool      // no console output; the file, if any, still gets entries
	Console    io.Writer // defaults to os.Stderr
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: FormatConsole,
	}
}

// VerboseConfig returns a configuration for troubleshooting.
func VerboseConfig() *Config {
	return &Config{
		Level:      "debug",
		Format:     FormatConsole,
		ShowCaller: true,
	}
}

// ParseLevel maps a level name to a zerolog level. Unknown names mean info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "off", "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Logger is a configured zerolog logger plus the log file it may own.
type Logger struct {
	zerolog.Logger
	file *os.File
}

// New builds a logger from cfg without touching the global one.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}

	var writers []io.Writer
	if !cfg.Quiet {
		switch cfg.Format {
		case FormatJSON:
			writers = append(writers, console)
		case FormatConsole, "":
			writers = append(writers, zerolog.ConsoleWriter{Out: console, TimeFormat: "2006-01-02 15:04:05.000"})
		default:
			return nil, fmt.Errorf("unknown log format %q", cfg.Format)
		}
	}

	l := &Logger{}
	if cfg.FilePath != "" {
		f, err := openLogFile(cfg.FilePath)
		if err != nil {
			return nil, err
		}
		l.file = f
		writers = append(writers, f)
	}

	var out io.Writer
	switch len(writers) {
	case 0:
		out = io.Discard
	case 1:
		out = writers[0]
	default:
		out = zerolog.MultiLevelWriter(writers...)
	}

	zctx := zerolog.New(out).Level(ParseLevel(cfg.Level)).With().Timestamp()
	if cfg.ShowCaller {
		zctx = zctx.Caller()
	}
	l.Logger = zctx.Logger()
	return l, nil
}

// Setup builds a logger and installs it as the global zerolog logger.
func Setup(cfg *Config) (*Logger, error) {
	l, err := New(cfg)
	if err != nil {
		return nil, err
	}
	log.Logger = l.Logger
	return l, nil
}

// WithComponent returns a child of the global logger tagged with name.
func WithComponent(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}
