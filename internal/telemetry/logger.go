// Package telemetry provides the process-wide zap.Logger accessor. The
// rest of this repo calls telemetry.Logger() the same way the rate
// limiter it's grounded on called its own log.Logger() — a package the
// retrieved sources reference throughout but never ship; this package
// reconstructs it.
package telemetry

import (
	"sync"

	"go.uber.org/zap"
)

var (
	once   sync.Once
	global *zap.Logger
)

// Logger returns the process-wide logger, building a production zap
// config on first use. Call SetLogger before any other package runs to
// override it (tests use this to install an observed or nop logger).
func Logger() *zap.Logger {
	once.Do(func() {
		if global != nil {
			return
		}
		l, err := zap.NewProduction()
		if err != nil {
			l = zap.NewNop()
		}
		global = l
	})
	return global
}

// SetLogger overrides the process-wide logger. Must be called before the
// first call to Logger.
func SetLogger(l *zap.Logger) {
	global = l
}
