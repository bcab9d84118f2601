// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config captures options for configuring the global logger.
type Config struct {
	Level      string    // "debug", "info", ...; defaults to info
	File       string    // rotated log file; empty means Output
	MaxSizeMB  int       // rotation threshold for File
	MaxBackups int       // rotated files kept
	Output     io.Writer // used when File is empty; defaults to stderr
	Version    string
}

var (
	mu         sync.RWMutex
	base       = zerolog.Nop()
	configured bool
	closer     io.Closer
)

// Configure replaces the global logger. It returns a function that flushes
// and closes the log file, if any.
func Configure(cfg Config) func() error {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var writer io.Writer
	var c io.Closer
	switch {
	case cfg.File != "":
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, 10),
			MaxBackups: orDefault(cfg.MaxBackups, 3),
			Compress:   true,
		}
		writer, c = lj, lj
	case cfg.Output != nil:
		writer = cfg.Output
	default:
		writer = os.Stderr
	}

	l := zerolog.New(writer).Level(level).With().
		Timestamp().
		Str("service", "rusty-tui").
		Str("version", cfg.Version).
		Logger()

	mu.Lock()
	prev := closer
	base, configured, closer = l, true, c
	mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}

	return func() error {
		if c == nil {
			return nil
		}
		return c.Close()
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Base returns the configured logger, or a no-op logger before Configure.
func Base() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func Configured() bool {
	mu.RLock()
	defer mu.RUnlock()
	return configured
}

// WithComponent returns a child logger annotated with the given component name.
func WithComponent(component string) zerolog.Logger {
	return Base().With().Str("component", component).Logger()
}
