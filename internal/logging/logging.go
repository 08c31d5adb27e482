package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
)

// LogConfig holds the configuration for the logging backend.
type LogConfig struct {
	// LogFile is the path of the rotating log file. Empty disables file
	// logging and everything goes to stdout only.
	LogFile string
	// DebugLevel is the default level applied to every subsystem logger:
	// trace, debug, info, warn, error, critical.
	DebugLevel string
	// MaxLogFiles is how many rotated files to keep (0 keeps all).
	MaxLogFiles int
	// MaxBufferLines is unused for now but reserved for async writers.
	MaxBufferLines int
}

// LogBackend wraps a slog backend writing to stdout and an optional
// rotating file, and hands out subsystem loggers at a shared level.
type LogBackend struct {
	backend *slog.Backend
	rotator *rotator.Rotator
	level   slog.Level

	mu      sync.Mutex
	loggers map[string]slog.Logger
}

// NewLogBackend creates a backend from cfg. The caller owns the returned
// backend and must Close it to flush the rotator.
func NewLogBackend(cfg LogConfig) (*LogBackend, error) {
	level, ok := slog.LevelFromString(cfg.DebugLevel)
	if !ok {
		level = slog.LevelInfo
	}

	var writers []io.Writer
	writers = append(writers, os.Stdout)

	var r *rotator.Rotator
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create log dir: %w", err)
		}
		var err error
		r, err = rotator.New(cfg.LogFile, 1024, false, cfg.MaxLogFiles)
		if err != nil {
			return nil, fmt.Errorf("failed to create log rotator: %w", err)
		}
		writers = append(writers, r)
	}

	return &LogBackend{
		backend: slog.NewBackend(io.MultiWriter(writers...)),
		rotator: r,
		level:   level,
		loggers: make(map[string]slog.Logger),
	}, nil
}

// Logger returns the logger for the given subsystem tag, creating it on
// first use. Loggers are cached so repeated calls share level state.
func (lb *LogBackend) Logger(subsystem string) slog.Logger {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if log, ok := lb.loggers[subsystem]; ok {
		return log
	}
	log := lb.backend.Logger(subsystem)
	log.SetLevel(lb.level)
	lb.loggers[subsystem] = log
	return log
}

// SetLevel changes the level of every logger created so far and of loggers
// created afterwards.
func (lb *LogBackend) SetLevel(level slog.Level) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.level = level
	for _, log := range lb.loggers {
		log.SetLevel(level)
	}
}

// Close flushes and closes the rotating file, if any.
func (lb *LogBackend) Close() error {
	if lb.rotator != nil {
		return lb.rotator.Close()
	}
	return nil
}
