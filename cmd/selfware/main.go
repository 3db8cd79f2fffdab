package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/dohr-michael/selfware-kernel/cmd/commands"
	"github.com/dohr-michael/selfware-kernel/internal/config"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := config.LoadDotenv(config.DotenvPath()); err != nil {
		slog.Warn("failed to load .env", "error", err)
	}

	configureLogging()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if secs, ok := timeoutFromEnv(); ok {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, time.Duration(secs)*time.Second)
		defer timeoutCancel()
	}

	cmd := commands.NewRootCommand(version, commit)
	if err := cmd.Run(ctx, os.Args); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// configureLogging honors SELFWARE_DEBUG and RUST_LOG (the latter kept as
// the generic "enable verbose logs" escape hatch spec.md §6 calls for)
// plus NO_COLOR for downstream renderers that check it.
func configureLogging() {
	level := slog.LevelInfo
	if os.Getenv("SELFWARE_DEBUG") != "" || os.Getenv("RUST_LOG") == "debug" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func timeoutFromEnv() (int, bool) {
	v := os.Getenv("SELFWARE_TIMEOUT")
	if v == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0, false
	}
	return secs, true
}
