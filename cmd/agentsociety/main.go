// Command agentsociety runs one agent process: the agentic loop, its tool
// catalog, the shared-directory bus, and the peer HTTP server that together
// make up a single participant in a multi-agent project.
//
// Usage:
//
//	agentsociety serve                    # start this agent's process
//	agentsociety serve --config cfg.yaml  # with an explicit config file
//	agentsociety version                  # print version info
//	agentsociety health --addr <url>      # probe another agent's peer server
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chrysochos/society-agent-sub001/bus"
	"github.com/chrysochos/society-agent-sub001/config"
	"github.com/chrysochos/society-agent-sub001/event"
	"github.com/chrysochos/society-agent-sub001/llm"
	"github.com/chrysochos/society-agent-sub001/loop"
	"github.com/chrysochos/society-agent-sub001/peerserver"
	"github.com/chrysochos/society-agent-sub001/registry"
	"github.com/chrysochos/society-agent-sub001/taskpool"
	"github.com/chrysochos/society-agent-sub001/telemetry"
	"github.com/chrysochos/society-agent-sub001/tooling"
	"github.com/chrysochos/society-agent-sub001/usage"
	"github.com/chrysochos/society-agent-sub001/worker"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "agentsociety: %v\n", err)
			os.Exit(1)
		}
	case "version":
		printVersion()
	case "health":
		runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := telemetry.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting agentsociety",
		zap.String("agent_id", cfg.Agent.ID),
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	provider, err := buildProvider(cfg.Agent)
	if err != nil {
		return fmt.Errorf("build provider: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return serve(ctx, cfg, provider, logger)
}

// serve wires every package built for this module into one running agent
// process and blocks until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, provider llm.Provider, logger *zap.Logger) error {
	collector := telemetry.NewCollector(cfg.Metrics.Namespace, logger)
	sink := telemetry.NewEventSink()

	if err := os.MkdirAll(cfg.Shared.Dir, 0o755); err != nil {
		return fmt.Errorf("create shared dir: %w", err)
	}
	homeFolder := cfg.Agent.HomeFolder
	if homeFolder == "" {
		homeFolder = filepath.Join(cfg.Shared.Dir, cfg.Agent.ID)
	}
	if err := os.MkdirAll(homeFolder, 0o755); err != nil {
		return fmt.Errorf("create home folder: %w", err)
	}

	reg := registry.New(filepath.Join(cfg.Shared.Dir, "registry.json"), "", logger)
	tracker := usage.New(500, cfg.Metrics.Namespace, nil)
	pool := taskpool.New(cfg.Shared.Dir, cfg.Shared.ProjectID)

	resolveHomeFolder := func(agentID string) (string, error) {
		target, err := reg.Get(agentID)
		if err != nil {
			return "", err
		}
		if target == nil {
			return "", fmt.Errorf("agent %s not registered", agentID)
		}
		if target.HomeFolder != "" {
			return target.HomeFolder, nil
		}
		return filepath.Join(cfg.Shared.Dir, agentID), nil
	}

	b := bus.New(bus.Config{
		SelfID:            cfg.Agent.ID,
		SharedDir:         cfg.Shared.Dir,
		Registry:          reg,
		Logger:            logger,
		InboxPollInterval: cfg.Bus.InboxPollInterval,
		LogWatchInterval:  cfg.Bus.LogWatchInterval,
	})

	stop := loop.NewStopSignal()
	runner := loop.NewRunner(provider, sink, tracker, stop, cfg.Loop.ToLoopConfig())

	// host.catalog is filled in once the full catalog (which itself needs
	// host.Invoke for its inter-agent tools) is built below.
	host := NewHost(cfg.Agent.ID, reg, runner, nil, cfg.Agent.Model, cfg.Agent.SystemPrompt)

	var spawner *worker.Spawner
	tp := tooling.NewTaskPoolTools(pool, cfg.Agent.ID, sink, func(count int) ([]string, error) {
		return spawner.Spawn(cfg.Agent.ID, count)
	})
	ia := tooling.NewInterAgent(cfg.Agent.ID, homeFolder, b, host.Invoke, sink)
	fsTool := tooling.NewFilesystem(homeFolder)
	pv := tooling.NewProjectView(cfg.Shared.Dir)
	sh := tooling.NewShell(homeFolder, nil, nil, cfg.Agent.ID, sink)
	tm := tooling.NewTeam(reg, cfg.Shared.Dir)
	sk := tooling.NewSkills(filepath.Join(cfg.Shared.Dir, "skills"))

	catalog := tooling.BuildCatalog(fsTool, pv, sh, tm, tp, ia, sk, nil, cfg.Agent.ID, resolveHomeFolder)
	host.catalog = catalog

	newWorkerCatalog := func(workerID string) (*tooling.Catalog, error) {
		workerFS := tooling.NewFilesystem(homeFolder)
		workerTP := tooling.NewTaskPoolTools(pool, workerID, sink, func(int) ([]string, error) {
			return nil, fmt.Errorf("workers cannot spawn workers")
		})
		full := tooling.BuildCatalog(workerFS, pv, sh, nil, workerTP, nil, sk, nil, workerID, resolveHomeFolder)
		return full.Ephemeral(), nil
	}
	spawner = worker.NewSpawner(reg, provider, tracker, sink, cfg.Agent.Model, newWorkerCatalog, worker.DefaultConfig())

	// handleInbound drives one fresh agentic-loop turn per delivered
	// message; both the bus's own poll loops and the peer server's
	// fire-and-forget routes share this single dispatch function.
	handleInbound := func(m bus.Message) error {
		go func() {
			if _, err := host.invokeSelf(context.Background(), inboundPrompt(m)); err != nil {
				logger.Warn("inbound message turn failed", zap.String("from", m.From), zap.Error(err))
			}
		}()
		return nil
	}
	b.SetHandler(handleInbound)

	peer := peerserver.New(cfg.Agent.ID, handleInbound, logger)
	peer.SetInvokeHandler(func(invokeCtx context.Context, from, message string) (string, error) {
		return host.Invoke(invokeCtx, cfg.Agent.ID, message)
	})
	url, err := peer.Start(cfg.Shared.PortRangeStart, cfg.Shared.PortRangeEnd)
	if err != nil {
		return fmt.Errorf("start peer server: %w", err)
	}

	if err := reg.Register(registry.Registration{
		ID:            cfg.Agent.ID,
		Role:          registry.Role(cfg.Agent.Role),
		Capabilities:  cfg.Agent.Capabilities,
		WorkspacePath: homeFolder,
		HomeFolder:    homeFolder,
		PID:           os.Getpid(),
		URL:           url,
		Status:        registry.StatusOnline,
	}); err != nil {
		return fmt.Errorf("register agent: %w", err)
	}

	group, runCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return b.Run(runCtx) })
	group.Go(func() error { runHeartbeat(runCtx, reg, cfg.Agent.ID, logger); return nil })
	group.Go(func() error { bridgeEventsToMetrics(runCtx, sink, collector); return nil })

	var metricsServer *http.Server
	if cfg.Metrics.ListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server stopped unexpectedly", zap.Error(err))
			}
		}()
		logger.Info("metrics listening", zap.String("addr", cfg.Metrics.ListenAddr))
	}

	<-ctx.Done()

	logger.Info("shutting down agentsociety")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	_ = peer.Shutdown(shutdownCtx)
	_ = reg.Dispose(cfg.Agent.ID)

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		logger.Warn("background task stopped unexpectedly", zap.Error(err))
	}

	return nil
}

// inboundPrompt renders a delivered bus message as the user turn handed to
// the agentic loop.
func inboundPrompt(m bus.Message) string {
	return fmt.Sprintf("[message from %s] %s", m.From, m.Content)
}

// bridgeEventsToMetrics feeds task and worker lifecycle events onto the
// prometheus collector until ctx is cancelled or sink's subscription
// closes. Tool-execution and HTTP metrics are not fed from here, and no
// other code in the process records them either.
func bridgeEventsToMetrics(ctx context.Context, sink *telemetry.EventSink, collector *telemetry.Collector) {
	ch, unsubscribe := sink.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			switch e.Kind {
			case event.KindTaskCreated, event.KindTaskClaimed, event.KindTaskCompleted, event.KindTaskFailed:
				collector.RecordTaskTransition(strings.TrimPrefix(string(e.Kind), "task-"))
			case event.KindWorkerSpawned:
				collector.RecordWorkerSpawned()
			case event.KindWorkerFinished:
				collector.RecordWorkerFinished("resolved")
			}
		}
	}
}

// runHeartbeat refreshes this agent's registry entry every
// registry.HeartbeatInterval until ctx is cancelled.
func runHeartbeat(ctx context.Context, reg *registry.Registry, selfID string, logger *zap.Logger) {
	ticker := time.NewTicker(registry.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := reg.Heartbeat(selfID, registry.StatusOnline); err != nil {
				logger.Warn("heartbeat failed", zap.Error(err))
			}
		}
	}
}

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://127.0.0.1:3000", "peer server address")
	fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/api/status")
	if err != nil {
		fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}
	fmt.Println("OK")
}

func printVersion() {
	fmt.Printf("agentsociety %s\n", Version)
	fmt.Printf("  build time: %s\n", BuildTime)
	fmt.Printf("  git commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`agentsociety - multi-agent orchestration runtime

Usage:
  agentsociety <command> [options]

Commands:
  serve     Start this agent's process
  version   Show version information
  health    Probe a peer server's /api/status
  help      Show this help message

Options for 'serve':
  --config <path>   Path to configuration file (YAML)

Options for 'health':
  --addr <url>      Peer server base URL (default http://127.0.0.1:3000)

Examples:
  agentsociety serve --config ./agent.yaml
  agentsociety health --addr http://127.0.0.1:3001
  agentsociety version`)
}
