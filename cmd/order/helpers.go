package main

import (
	"fmt"
	"log/slog"

	"github.com/orderlabs/order/internal/capability"
	"github.com/orderlabs/order/internal/config"
	"github.com/orderlabs/order/internal/logging"
	"github.com/orderlabs/order/internal/trace"
	"github.com/orderlabs/order/internal/transport"
)

// engine bundles the wired negotiation components for one invocation.
type engine struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *capability.Store
	traces *trace.Log
}

func newEngine() (*engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.SetDefault(cfg.LogLevel, cfg.LogFormat)
	store := capability.NewStore(capability.DefaultStorePath(cfg.WorkspaceRoot), logger)
	return &engine{
		cfg:    cfg,
		logger: logger,
		store:  store,
		traces: trace.New(cfg.WorkspaceRoot, logger),
	}, nil
}

func (e *engine) controller(apiKey string) *capability.Controller {
	resolver := capability.NewResolver(e.store, e.logger)
	planner := capability.NewPlanner().
		WithMaxRetries(e.cfg.MaxRetries).
		WithTTL(e.cfg.CapabilityTTL)
	sender := transport.New(apiKey, e.logger)
	return capability.NewController(resolver, e.store, planner, sender, e.traces)
}

func (e *engine) connection(name string) (config.Connection, error) {
	conn, ok := e.cfg.Connection(name)
	if !ok {
		if name == "" {
			return config.Connection{}, fmt.Errorf("no connections configured; add one to %s", config.ConfigFileName)
		}
		return config.Connection{}, fmt.Errorf("unknown connection %q", name)
	}
	return conn, nil
}

func onOff(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}
