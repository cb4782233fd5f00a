// Package logging provides one rotating log backend for the whole process
// and hands out per-component loggers from it, mirroring the backend/logger
// split used throughout the bisonbotkit-based tooling this was adapted from.
package logging

import (
	"github.com/decred/slog"
	"github.com/vctt94/bisonbotkit/logging"
)

// Backend is the process-wide log sink; Logger derives named loggers from it.
type Backend struct {
	bknd *logging.LogBackend
}

// New opens (or creates) the rotating log file at logPath and sets the
// minimum level for every logger it hands out.
func New(logPath, debugLevel string) (*Backend, error) {
	bknd, err := logging.NewLogBackend(logging.LogConfig{
		LogFile:        logPath,
		DebugLevel:     debugLevel,
		MaxLogFiles:    10,
		MaxBufferLines: 1000,
	})
	if err != nil {
		return nil, err
	}
	return &Backend{bknd: bknd}, nil
}

// Logger returns a named logger, e.g. New(...).Logger("claim").
func (b *Backend) Logger(name string) slog.Logger {
	return b.bknd.Logger(name)
}
