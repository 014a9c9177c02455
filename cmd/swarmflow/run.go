package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/swarmflow/swarmflow/agent"
	"github.com/swarmflow/swarmflow/agent/orchestrator"
	_ "github.com/swarmflow/swarmflow/agent/proxy"
	"github.com/swarmflow/swarmflow/agent/specialist"
	"github.com/swarmflow/swarmflow/bus"
	"github.com/swarmflow/swarmflow/cache"
	"github.com/swarmflow/swarmflow/config"
	"github.com/swarmflow/swarmflow/internal/metrics"
	"github.com/swarmflow/swarmflow/llm/openaicompat"
	"github.com/swarmflow/swarmflow/registry"
	"github.com/swarmflow/swarmflow/tools"
	"github.com/swarmflow/swarmflow/types"
)

// runAgent resolves an agent descriptor from the registry and runs it.
func runAgent(args []string) {
	fs := flag.NewFlagSet("agent", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	swarmID := fs.String("swarm", "", "Swarm this agent belongs to (required for proxies)")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: swarmflow agent <identifier> [--config path] [--swarm id]")
		os.Exit(1)
	}
	identifier := fs.Arg(0)

	cfg, logger := bootstrap(*configPath)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := registry.NewClient(cfg.Registry.Client, logger)
	descriptor, err := reg.Agent(ctx, identifier)
	if err != nil {
		logger.Fatal("agent descriptor not found", zap.String("identifier", identifier), zap.Error(err))
	}

	var swarm *types.SwarmDescriptor
	if *swarmID != "" {
		swarm, err = reg.Swarm(ctx, *swarmID)
		if err != nil {
			logger.Fatal("swarm descriptor not found", zap.String("identifier", *swarmID), zap.Error(err))
		}
	}

	if err := serve(ctx, cfg, *descriptor, swarm, reg, logger); err != nil {
		logger.Fatal("agent stopped with error", zap.Error(err))
	}
	logger.Info("agent stopped", zap.String("identifier", identifier))
}

// runSwarm runs the orchestrator process of a swarm. The orchestrator's
// bus identity is the swarm's identifier.
func runSwarm(args []string) {
	fs := flag.NewFlagSet("swarm", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: swarmflow swarm <identifier> [--config path]")
		os.Exit(1)
	}
	identifier := fs.Arg(0)

	cfg, logger := bootstrap(*configPath)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := registry.NewClient(cfg.Registry.Client, logger)
	swarm, err := reg.Swarm(ctx, identifier)
	if err != nil {
		logger.Fatal("swarm descriptor not found", zap.String("identifier", identifier), zap.Error(err))
	}

	descriptor := types.AgentDescriptor{
		Identifier: swarm.Identifier,
		AgentType:  orchestrator.Type,
		Model:      cfg.LLM.DefaultModel,
	}
	if err := serve(ctx, cfg, descriptor, swarm, reg, logger); err != nil {
		logger.Fatal("orchestrator stopped with error", zap.Error(err))
	}
	logger.Info("orchestrator stopped", zap.String("swarm", identifier))
}

// runRegistry serves descriptor records from a directory of YAML files.
func runRegistry(args []string) {
	fs := flag.NewFlagSet("registry", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg, logger := bootstrap(*configPath)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:    cfg.Registry.ListenAddr,
		Handler: registry.NewServer(cfg.Registry.DescriptorDir, logger).Routes(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("registry listening",
		zap.String("addr", cfg.Registry.ListenAddr),
		zap.String("dir", cfg.Registry.DescriptorDir),
	)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("registry stopped with error", zap.Error(err))
	}
	logger.Info("registry stopped")
}

// bootstrap loads configuration and builds the process logger.
func bootstrap(configPath string) (*config.Config, *zap.Logger) {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	logger.Info("starting swarmflow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)
	return cfg, logger
}

// serve wires the runtime for one descriptor and blocks until shutdown.
func serve(ctx context.Context, cfg *config.Config, descriptor types.AgentDescriptor, swarm *types.SwarmDescriptor, reg *registry.Client, logger *zap.Logger) error {
	if descriptor.AgentType == "" {
		descriptor.AgentType = specialist.Type
	}
	collector := metrics.NewCollector("swarmflow")

	store, err := cache.New(cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("conversation cache: %w", err)
	}
	defer store.Close()

	provider := openaicompat.New(cfg.LLM, logger)

	rt := agent.New(agent.Options{
		Descriptor: descriptor,
		Bus:        bus.New(descriptor.Identifier, cfg.Bus, logger, collector),
		Cache:      store,
		Provider:   provider,
		Retry:      cfg.Retry,
		MaxTokens:  cfg.Server.MaxTokens,
		HTTPAddr:   cfg.Server.HTTPAddr,
		Logger:     logger,
		Metrics:    collector,
	})

	var table *tools.Table
	if len(descriptor.ToolRefs) > 0 {
		table = tools.NewTable(reg.Tools(ctx, descriptor.ToolRefs), logger)
	}

	handler, err := agent.Build(rt, agent.BuildContext{
		Swarm:  swarm,
		Tools:  table,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	rt.SetHandler(handler)

	logger.Info("agent ready",
		zap.String("identifier", descriptor.Identifier),
		zap.String("agent_type", descriptor.AgentType),
		zap.String("topic", types.TopicName(descriptor.Identifier)),
	)
	return rt.Start(ctx)
}
