// Package obs contains observability utilities such as logging and metrics.
package obs

import (
	"log/slog"
	"os"
	"sync"
)

// Logger is the global structured logger used by the service.
//
// Logger is exported to allow other packages to use it for logging.
var Logger *slog.Logger

var loggerOnce sync.Once

// InitLogger initializes the global Logger with JSON handler at info level.
// It is safe to call from multiple packages; only the first call assigns,
// so a late call never races with goroutines already logging.
//
// InitLogger is exported to allow other packages to initialize the Logger.
func InitLogger() {
	loggerOnce.Do(func() {
		h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
		Logger = slog.New(h)
	})
}
