// Package app wires the engine, loader and incident proxy from configuration.
package app

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/wippyai/incident-bridge/config"
	"github.com/wippyai/incident-bridge/engine"
	"github.com/wippyai/incident-bridge/guest"
	"github.com/wippyai/incident-bridge/proxy"
	"github.com/wippyai/incident-bridge/runtime"
)

type App struct {
	Engine    *engine.Engine
	Loader    *runtime.Loader
	Executor  *runtime.Executor
	Incidents *proxy.IncidentService
	logger    *zap.Logger
}

// Bootstrap creates the engine, registers the configured services (the
// built-in incident service when none are configured) and loads the runtime.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	engine.SetLogger(logger.Named("engine"))

	eng, err := engine.New(ctx, &engine.Config{
		MemoryLimitPages: cfg.Runtime.MemoryLimitPages,
		MaxMessageBytes:  cfg.Runtime.MaxMessageBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	if err := registerServices(ctx, eng, cfg.Runtime.Services); err != nil {
		_ = eng.Close(ctx)
		return nil, err
	}

	loader := runtime.NewLoader(runtime.WithLogger(logger.Named("runtime")))
	if v := loader.OnLoad(eng); v.Major() != runtime.APIVersion.Major() {
		_ = eng.Close(ctx)
		return nil, fmt.Errorf("runtime reported API version %s, want %d.x", v, runtime.APIVersion.Major())
	}

	exec := runtime.NewExecutor(loader.Handle())
	marshaller := runtime.NewMarshaller(runtime.WithMaxStringBytes(cfg.Marshal.MaxStringBytes))
	incidents, err := proxy.NewIncidentService(exec, marshaller, proxy.WithLogger(logger.Named("proxy")))
	if err != nil {
		_ = eng.Close(ctx)
		return nil, fmt.Errorf("create incident proxy: %w", err)
	}

	return &App{
		Engine:    eng,
		Loader:    loader,
		Executor:  exec,
		Incidents: incidents,
		logger:    logger,
	}, nil
}

func registerServices(ctx context.Context, eng *engine.Engine, services []config.ServiceConfig) error {
	if len(services) == 0 {
		_, err := eng.Register(ctx, proxy.ServiceName, guest.IncidentService())
		if err != nil {
			return fmt.Errorf("register built-in service: %w", err)
		}
		return nil
	}

	for _, s := range services {
		data, err := os.ReadFile(s.Path)
		if err != nil {
			return fmt.Errorf("read service %s: %w", s.Name, err)
		}
		if _, err := eng.Register(ctx, s.Name, data); err != nil {
			return fmt.Errorf("register service %s: %w", s.Name, err)
		}
	}
	return nil
}

func (a *App) Close(ctx context.Context) error {
	a.logger.Info("closing runtime", zap.Int("attachments", a.Loader.Handle().Attached()))
	return a.Engine.Close(ctx)
}
