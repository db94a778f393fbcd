// Command bridge serves the incident facade over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wippyai/incident-bridge/config"
	"github.com/wippyai/incident-bridge/facade"
	"github.com/wippyai/incident-bridge/internal/app"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML or TOML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := cfg.Log.BuildLogger()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Bootstrap(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			logger.Warn("close runtime", zap.Error(err))
		}
	}()

	pool := facade.NewPool(a.Executor, cfg.Workers.Count, cfg.Workers.QueueSize,
		facade.WithPoolLogger(logger.Named("pool")))
	defer pool.Close()

	srv := facade.NewServer(cfg.Server.Addr, facade.New(pool, a.Incidents), a.Loader.Handle(),
		facade.WithServerLogger(logger.Named("http")))

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
