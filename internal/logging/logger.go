// Package logging wraps log/slog with the small amount of ceremony the
// gateway needs: level/format selection and category-gated debug logging
// for the noisiest subsystems (raw RTSP traffic, datagram relaying).
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Level is the logging verbosity.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Category gates verbose, subsystem-specific debug logging.
type Category string

const (
	CategorySession   Category = "session"
	CategoryRTSP      Category = "rtsp"
	CategoryRelay     Category = "relay"
	CategoryTransport Category = "transport"
	CategoryAll       Category = "all"
)

// Format selects the slog handler.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config holds logger configuration.
type Config struct {
	Level      Level
	Format     Format
	OutputFile string

	mu       sync.RWMutex
	enabled  map[Category]bool
}

// NewConfig returns a Config with sane defaults.
func NewConfig() *Config {
	return &Config{
		Level:   LevelInfo,
		Format:  FormatText,
		enabled: make(map[Category]bool),
	}
}

// ParseLevel converts a string to a Level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "debug", "DEBUG":
		return LevelDebug, nil
	case "info", "INFO", "":
		return LevelInfo, nil
	case "warn", "WARN", "warning":
		return LevelWarn, nil
	case "error", "ERROR":
		return LevelError, nil
	default:
		return "", fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", s)
	}
}

// ParseFormat converts a string to a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "json", "JSON":
		return FormatJSON, nil
	case "text", "TEXT", "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("invalid log format: %s (must be text or json)", s)
	}
}

func (l Level) toSlog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// EnableCategory turns on debug logging for category, or every category
// when given CategoryAll.
func (c *Config) EnableCategory(category Category) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if category == CategoryAll {
		c.enabled[CategorySession] = true
		c.enabled[CategoryRTSP] = true
		c.enabled[CategoryRelay] = true
		c.enabled[CategoryTransport] = true
		return
	}
	c.enabled[category] = true
}

func (c *Config) isEnabled(category Category) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled[category]
}

// Logger wraps slog.Logger with category-gated debug helpers.
type Logger struct {
	*slog.Logger
	cfg  *Config
	file *os.File
}

// New builds a Logger from cfg.
func New(cfg *Config) (*Logger, error) {
	var w io.Writer = os.Stdout
	var f *os.File

	if cfg.OutputFile != "" {
		var err error
		f, err = os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", cfg.OutputFile, err)
		}
		w = f
	}

	opts := &slog.HandlerOptions{Level: cfg.Level.toSlog()}
	var handler slog.Handler
	if cfg.Format == FormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{Logger: slog.New(handler), cfg: cfg, file: f}, nil
}

// Close releases the log file, if one was opened.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// With returns a Logger with the given attributes appended, preserving
// category configuration.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), cfg: l.cfg, file: l.file}
}

// DebugCategory logs msg at Debug level only when category is enabled.
func (l *Logger) DebugCategory(category Category, msg string, args ...any) {
	if l.cfg.isEnabled(category) {
		args = append([]any{"category", string(category)}, args...)
		l.Debug(msg, args...)
	}
}
