package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	corelogger "github.com/kilianp07/medqueue/core/logger"
)

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// NopLogger implements Logger with no-op methods.
type NopLogger = corelogger.Nop

// Config controls the level and destination of every component logger.
type Config struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string `json:"level"`
	// Format is console or json. Empty follows APP_ENV: console when dev.
	Format string `json:"format"`
	// File, when set, receives the logs in addition to stdout and is rotated.
	File       string `json:"file"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

var (
	mu     sync.RWMutex
	out    io.Writer = os.Stdout
	level            = zerolog.InfoLevel
	format string
	closer io.Closer
)

// Configure applies cfg to loggers created afterwards. It returns a function
// closing the rotated file, if any.
func Configure(cfg Config) (func() error, error) {
	lvl := zerolog.InfoLevel
	if cfg.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return nil, err
		}
		lvl = l
	}
	var w io.Writer = os.Stdout
	var c io.Closer
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		w = io.MultiWriter(os.Stdout, lj)
		c = lj
	}

	mu.Lock()
	out, level, format, closer = w, lvl, strings.ToLower(cfg.Format), c
	mu.Unlock()
	return func() error {
		if c == nil {
			return nil
		}
		return c.Close()
	}, nil
}

// New returns a Logger for the given component.
func New(component string) Logger {
	return NewZerologLogger(component)
}

func settings() (io.Writer, zerolog.Level, string) {
	mu.RLock()
	defer mu.RUnlock()
	f := format
	if f == "" && strings.ToLower(os.Getenv("APP_ENV")) == "dev" {
		f = "console"
	}
	return out, level, f
}

func newZerolog(w io.Writer, lvl zerolog.Level, f, component string) zerolog.Logger {
	if f == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("component", component).Logger()
}
