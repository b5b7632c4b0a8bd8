// Package app wires up and runs the application services.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/skobkin/schedstat-top/internal/config"
	"github.com/skobkin/schedstat-top/internal/httpserver"
	"github.com/skobkin/schedstat-top/internal/report"
	"github.com/skobkin/schedstat-top/internal/sampler"
)

const shutdownTimeout = 10 * time.Second

// Run bootstraps the application lifecycle. Reports are written to out until
// ctx is cancelled or a sampling step fails.
func Run(ctx context.Context, baseLogger *slog.Logger, cfg config.Config, runID string, out io.Writer) error {
	appLogger := baseLogger.With("component", "app")

	format, err := report.ParseFormat(cfg.OutputFormat)
	if err != nil {
		return fmt.Errorf("init reporter: %w", err)
	}
	writer, err := report.NewWriter(out, format, cfg.ShowResets)
	if err != nil {
		return fmt.Errorf("init reporter: %w", err)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			appLogger.Warn("reporter close", "err", err)
		}
	}()

	reader, err := sampler.NewReader(cfg.ProcRoot, baseLogger.With("component", "sampler_reader"))
	if err != nil {
		return fmt.Errorf("init schedstat reader: %w", err)
	}

	samplerManager, err := sampler.NewManager(cfg.SampleInterval, reader, writer, runID, baseLogger.With("component", "sampler"))
	if err != nil {
		return fmt.Errorf("init sampler manager: %w", err)
	}

	appLogger.Info("sampling schedstat",
		"path", reader.Path(),
		"interval", cfg.SampleInterval,
		"format", format,
	)

	samplerCtx, samplerCancel := context.WithCancel(ctx)
	defer samplerCancel()

	samplerErrCh := make(chan error, 1)
	go func() {
		samplerErrCh <- samplerManager.Run(samplerCtx)
	}()

	var (
		srv   *httpserver.Server
		errCh chan error
	)
	if cfg.HTTPEnabled() {
		srv = httpserver.New(cfg, baseLogger.With("component", "http"), samplerManager, runID)

		appLogger.Info("starting HTTP server", "listen_addr", cfg.ListenAddr)

		errCh = make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()
	}

	select {
	case err := <-errCh:
		samplerCancel()
		<-samplerErrCh
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case err := <-samplerErrCh:
		if shutdownErr := shutdownHTTP(srv, errCh); shutdownErr != nil {
			appLogger.Warn("http shutdown", "err", shutdownErr)
		}
		if err != nil {
			return err
		}
		appLogger.Info("shutdown complete")
		return nil
	case <-ctx.Done():
		appLogger.Info("shutdown initiated", "reason", ctx.Err())

		if err := shutdownHTTP(srv, errCh); err != nil {
			return err
		}

		samplerCancel()
		if err := <-samplerErrCh; err != nil && !errors.Is(err, context.Canceled) {
			return err
		}

		appLogger.Info("shutdown complete")
		return nil
	}
}

func shutdownHTTP(srv *httpserver.Server, errCh <-chan error) error {
	if srv == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("http shutdown: %w", err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
