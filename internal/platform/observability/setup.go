package observability

import (
	"context"
	"log/slog"
	"sync"
)

// Config captures observability toggles.
type Config struct {
	Enabled bool
}

// ShutdownFunc allows callers to tear down any observability exporters.
type ShutdownFunc func(context.Context) error

var (
	loggerMu             sync.RWMutex
	instrumentationLog   *slog.Logger
	instrumentationState Config
)

func currentLogger() (*slog.Logger, Config) {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return instrumentationLog, instrumentationState
}

// Setup installs the logger used for spans and metrics. Counters are kept
// regardless of Enabled so the health endpoint can report them.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (ShutdownFunc, error) {
	loggerMu.Lock()
	instrumentationLog = logger
	instrumentationState = cfg
	loggerMu.Unlock()

	if logger != nil {
		if cfg.Enabled {
			logger.InfoContext(ctx, "[OBSERVABILITY][SETUP] spans and metrics enabled")
		} else {
			logger.InfoContext(ctx, "[OBSERVABILITY][SETUP] disabled")
		}
	}
	return func(ctx context.Context) error {
		if logger != nil && cfg.Enabled {
			logger.InfoContext(ctx, "[OBSERVABILITY][SHUTDOWN] final counters", slog.Any("counters", Snapshot()))
		}
		return nil
	}, nil
}

// Reset clears the registered logger and all counters.
func Reset() {
	loggerMu.Lock()
	instrumentationLog = nil
	instrumentationState = Config{}
	loggerMu.Unlock()

	countersMu.Lock()
	counters = make(map[string]float64)
	countersMu.Unlock()
}
