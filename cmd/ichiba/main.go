package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ashita-ai/ichiba"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(),
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

// run builds the app and blocks until shutdown. All wiring lives in the
// ichiba root package so embedders and this binary share one code path.
func run(ctx context.Context, logger *slog.Logger) error {
	app, err := ichiba.New(
		ichiba.WithVersion(version),
		ichiba.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	return app.Run(ctx)
}

// logLevel reads ICHIBA_LOG_LEVEL before config loads so startup lines honor
// it too. Unknown values fall back to info.
func logLevel() slog.Level {
	switch os.Getenv("ICHIBA_LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
