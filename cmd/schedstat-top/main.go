package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"

	"github.com/skobkin/schedstat-top/internal/app"
	"github.com/skobkin/schedstat-top/internal/config"
	"github.com/skobkin/schedstat-top/internal/version"
)

var (
	buildVersion = "dev"
	buildCommit  = ""
	buildTime    = ""
)

const exitUsage = 2

func main() {
	version.Set(version.Info{
		Version:   buildVersion,
		Commit:    buildCommit,
		BuildTime: buildTime,
	})

	cfg, err := config.Load()
	if err != nil {
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})
		slog.New(handler).Error("failed to load configuration", "err", err)
		os.Exit(1)
	}

	if err := cfg.ApplyArgs(os.Args[1:]); err != nil {
		if errors.Is(err, config.ErrUsage) {
			fmt.Fprintln(os.Stderr, err)
			usage()
			os.Exit(exitUsage)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	runID := uuid.NewString()

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})
	logger := slog.New(handler).With("run_id", runID)
	logger.Debug("starting", "version", version.Current().String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, logger, cfg, runID, os.Stdout); err != nil {
		logger.Error("application error", "err", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [interval-seconds]\n", filepath.Base(os.Args[0]))
	fmt.Fprintln(os.Stderr, "  interval-seconds  positive whole number of seconds between samples (default 1)")
}
