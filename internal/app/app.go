// Package app assembles a service from its configuration: logger,
// telemetry, workflow client, model, tool invoker, agent and HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/nablmesh/agent"
	"github.com/hupe1980/nablmesh/config"
	"github.com/hupe1980/nablmesh/logging"
	"github.com/hupe1980/nablmesh/model"
	"github.com/hupe1980/nablmesh/nabl"
	"github.com/hupe1980/nablmesh/server"
	"github.com/hupe1980/nablmesh/telemetry"
	"github.com/hupe1980/nablmesh/tool"
)

// Options overrides collaborators that New would otherwise build from the
// configuration.
type Options struct {
	Logger logging.Logger
	Model  model.Model
	Runner nabl.Runner
}

// App is one running service.
type App struct {
	cfg       *config.Config
	profile   Profile
	logger    logging.Logger
	base      logging.Logger
	invoker   *tool.Invoker
	agent     *agent.Agent
	server    *server.Server
	telemetry telemetry.ShutdownFunc
}

// New wires the service described by cfg.
func New(ctx context.Context, cfg *config.Config, optFns ...func(o *Options)) (*App, error) {
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}

	profile, err := ProfileByName(cfg.Profile)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger, err = NewLogger(cfg.Log)
		if err != nil {
			return nil, err
		}
	}
	base := logger
	logger = logging.With(logger, "service", profile.AgentName)

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("setup telemetry: %w", err)
	}
	instruments := telemetry.DefaultInstruments()

	runner := opts.Runner
	if runner == nil {
		if cfg.Nabl.APIKey == "" {
			logger.Warn("app.config.warning", "reason", "ICLAW_API_KEY not set")
		}
		runner = nabl.NewClient(func(o *nabl.Options) {
			o.BaseURL = cfg.Nabl.BaseURL
			o.APIKey = cfg.Nabl.APIKey
			o.Timeout = cfg.Nabl.Timeout
			o.Logger = logger
		})
	}

	llm := opts.Model
	if llm == nil {
		if cfg.Model.APIKey() == "" {
			logger.Warn("app.config.warning", "reason", "no API key configured", "provider", cfg.Model.Provider)
		}
		llm, err = NewModel(ctx, cfg.Model)
		if err != nil {
			return nil, errors.Join(err, shutdownTelemetry(ctx))
		}
	}

	registry := tool.NewRegistry()
	for _, t := range profile.Tools(runner) {
		if err := registry.Register(t); err != nil {
			return nil, errors.Join(err, shutdownTelemetry(ctx))
		}
	}

	invoker, err := tool.NewInvoker(registry, func(o *tool.InvokerOptions) {
		o.Timeout = cfg.Agent.ToolTimeout
		o.MaxParallel = cfg.Agent.MaxParallelTools
		o.Logger = logger
		o.Instruments = instruments
	})
	if err != nil {
		return nil, errors.Join(err, shutdownTelemetry(ctx))
	}

	ag := agent.New(llm, invoker, func(o *agent.Options) {
		o.Name = profile.AgentName
		o.Instruction = agent.NewInstructionFromText(profile.Instruction)
		o.PromptTemplate = profile.PromptTemplate
		o.MaxIterations = cfg.Agent.MaxIterations
		o.ModelTimeout = cfg.Model.Timeout
		o.Logger = logger
		o.Instruments = instruments
	})

	srv := server.New(ag, func(o *server.Options) {
		o.Framework = profile.Framework
		o.IncludeToolResults = profile.IncludeToolResults
		o.RequestTimeout = cfg.Server.RequestTimeout
		o.CORSOrigins = cfg.Server.CORSOrigins
		o.Logger = logger
	})

	info := llm.Info()
	logger.Info("app.ready",
		"profile", profile.Name,
		"model", info.Name,
		"provider", info.Provider,
		"tools", registry.Names(),
		"max_iterations", cfg.Agent.MaxIterations,
	)

	return &App{
		cfg:       cfg,
		profile:   profile,
		logger:    logger,
		base:      base,
		invoker:   invoker,
		agent:     ag,
		server:    srv,
		telemetry: shutdownTelemetry,
	}, nil
}

// Handler returns the HTTP handler of the service.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// Agent returns the service's agent.
func (a *App) Agent() *agent.Agent { return a.agent }

// Run listens on the configured port and serves until ctx is done.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.Server.Addr(), err)
	}
	return a.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully and
// releases the tool pool and telemetry providers.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("app.listen", "addr", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()

		a.logger.Info("app.shutdown")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()
	return errors.Join(err, a.Close(context.WithoutCancel(ctx)))
}

// Close releases the tool pool and flushes telemetry and the logger.
func (a *App) Close(ctx context.Context) error {
	a.invoker.Close()

	// Sync on a console stdout reports EINVAL; there is nothing to act on.
	defer func() {
		if s, ok := a.base.(interface{ Sync() error }); ok {
			_ = s.Sync()
		}
	}()

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.telemetry(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown telemetry: %w", err)
	}
	return nil
}
