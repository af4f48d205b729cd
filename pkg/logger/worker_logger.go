// Package logger configures the process-wide zerolog logger.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level represents log severity
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	case LevelFatal:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel parses a string level to Level
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// Config for logger
type Config struct {
	Level   Level
	Output  io.Writer
	Service string
	Pretty  bool // human-readable console output for local runs
}

var (
	root zerolog.Logger
	once sync.Once
	mu   sync.RWMutex
)

// Init initializes the root logger. Only the first call takes effect.
func Init(cfg Config) {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		root = build(cfg)
	})
}

// New builds an independent logger, mostly for tests.
func New(cfg Config) zerolog.Logger {
	return build(cfg)
}

func build(cfg Config) zerolog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.Service == "" {
		cfg.Service = "complaint-server"
	}
	out := cfg.Output
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).
		Level(cfg.Level.zerolog()).
		With().
		Timestamp().
		Str("service", cfg.Service).
		Logger()
}

// Default returns the root logger, initializing it with defaults if needed.
func Default() zerolog.Logger {
	Init(Config{Level: LevelInfo})
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// Component returns a child logger tagged with a component name.
func Component(name string) zerolog.Logger {
	l := Default()
	return l.With().Str("component", name).Logger()
}

// WithError returns a child logger carrying the error.
func WithError(err error) zerolog.Logger {
	l := Default()
	if err == nil {
		return l
	}
	return l.With().Err(err).Logger()
}

// Package-level printf helpers for main and bootstrap code.
func Debug(msg string, args ...any) { l := Default(); l.Debug().Msgf(msg, args...) }
func Info(msg string, args ...any)  { l := Default(); l.Info().Msgf(msg, args...) }
func Warn(msg string, args ...any)  { l := Default(); l.Warn().Msgf(msg, args...) }
func Error(msg string, args ...any) { l := Default(); l.Error().Msgf(msg, args...) }
func Fatal(msg string, args ...any) { l := Default(); l.Fatal().Msgf(msg, args...) }
