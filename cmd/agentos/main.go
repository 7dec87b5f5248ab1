// Command agentos runs the multi-agent orchestrator: it loads the agent
// fleet from a YAML config, wires every core component together, and
// serves the Broadcaster's WebSocket endpoint until interrupted.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/Rikinshah787/agentos/internal/backend"
	"github.com/Rikinshah787/agentos/internal/broadcaster"
	"github.com/Rikinshah787/agentos/internal/bus"
	"github.com/Rikinshah787/agentos/internal/config"
	"github.com/Rikinshah787/agentos/internal/memoryjson"
	"github.com/Rikinshah787/agentos/internal/orchestrator"
	"github.com/Rikinshah787/agentos/internal/otelmetrics"
	"github.com/Rikinshah787/agentos/internal/registry"
	"github.com/Rikinshah787/agentos/internal/rlscore"
	"github.com/Rikinshah787/agentos/internal/task"
	"github.com/Rikinshah787/agentos/internal/workspace"
)

func main() {
	homeDir := flag.String("home", defaultHomeDir(), "data directory for memory and fleet config")
	bindAddr := flag.String("bind", "127.0.0.1:8787", "address the broadcaster's WebSocket server listens on")
	logLevel := flag.String("log-level", "info", "slog level: debug, info, warn, error")
	telemetryEnabled := flag.Bool("telemetry", false, "enable OpenTelemetry metrics export")
	telemetryExporter := flag.String("telemetry-exporter", "stdout", "metrics exporter: stdout or none")
	allowOrigins := flag.String("allow-origins", "", "comma-separated list of allowed WebSocket Origin patterns")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(*logLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(*homeDir, 0o755); err != nil {
		fatal(logger, "create home dir", err)
	}

	fleetPath := filepath.Join(*homeDir, "agents.yaml")
	doc, err := config.Load(fleetPath)
	if err != nil {
		fatal(logger, "load fleet config", err)
	}

	eventBus := bus.New()
	reg := registry.New(eventBus)
	resolveCred := config.ResolveCredential(nil)
	reg.Load(doc.ToRegistryConfigs(), resolveCred)
	logger.Info("startup phase", "phase", "fleet_loaded", "agents", len(doc.Agents))

	memDir := filepath.Join(*homeDir, "memory")
	memStore, err := memoryjson.Open(memDir)
	if err != nil {
		fatal(logger, "open memory store", err)
	}
	defer memStore.Close()
	scorer := rlscore.New(memStore)

	workRoot := filepath.Join(*homeDir, "workspace")
	if err := os.MkdirAll(workRoot, 0o755); err != nil {
		fatal(logger, "create workspace dir", err)
	}
	exec, err := workspace.New(workRoot)
	if err != nil {
		fatal(logger, "init workspace executor", err)
	}

	dispatch := buildDispatch(ctx, doc, logger)
	tasks := task.NewManager()

	otelProvider, err := otelmetrics.Init(ctx, otelmetrics.Config{Enabled: *telemetryEnabled, Exporter: *telemetryExporter})
	if err != nil {
		fatal(logger, "init telemetry", err)
	}
	defer otelProvider.Shutdown(context.Background())

	orch := orchestrator.New(reg, tasks, scorer, dispatch, exec, memStore, eventBus, otelProvider.Metrics, nil, logger)

	var origins []string
	if strings.TrimSpace(*allowOrigins) != "" {
		for _, o := range strings.Split(*allowOrigins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}

	bc := broadcaster.New(reg, tasks, scorer, memStore, eventBus, orch, logger)
	bc.SetAllowOrigins(origins)
	bc.SetCredentialResolver(resolveCred)
	orch.SetNotifier(bc)

	watcher := config.NewWatcher(fleetPath, logger)
	if err := watcher.Start(ctx); err != nil {
		fatal(logger, "start fleet watcher", err)
	}
	go func() {
		for range watcher.Events() {
			newDoc, err := config.Load(fleetPath)
			if err != nil {
				logger.Error("fleet reload failed, keeping prior fleet", "error", err)
				continue
			}
			reg.Reload(newDoc.ToRegistryConfigs(), resolveCred)
			logger.Info("fleet reloaded", "agents", len(newDoc.Agents))
			bc.Touch()
		}
	}()

	go bc.Run(ctx)

	go runTicker(ctx, orchestrator.DispatchInterval, orch.DispatchTick)
	go runTicker(ctx, orchestrator.RechargeInterval, func(tickCtx context.Context) { orch.RechargeTick(tickCtx) })

	server := &http.Server{Addr: *bindAddr, Handler: bc.Handler()}
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("broadcaster listening", "addr", *bindAddr, "path", "/ws")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("broadcaster server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	logger.Info("shutdown complete")
}

// runTicker drives fn on a fixed cadence until ctx is cancelled. Each fn
// call receives ctx itself; ticks never overlap since tick
// runs are synchronous to this goroutine (spec §5: single dispatch worker).
func runTicker(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// buildDispatch registers one Backend Adapter per provider kind that the
// fleet actually declares (spec §4.6's dispatch table), built at startup
// from the endpoint, credential and model of the first agent declaring that
// kind; later agents of the same kind share that adapter.
func buildDispatch(ctx context.Context, doc config.Document, logger *slog.Logger) *backend.Dispatch {
	d := backend.NewDispatch()
	seen := make(map[string]bool)
	for _, a := range doc.Agents {
		if seen[a.Provider] {
			continue
		}
		seen[a.Provider] = true

		apiKey := ""
		if a.CredentialEnvVar != "" {
			apiKey = os.Getenv(a.CredentialEnvVar)
		}

		switch registry.ProviderKind(a.Provider) {
		case registry.ProviderOpenAICompatible:
			d.Register(backend.ProviderOpenAICompatible, backend.NewOpenAICompatBuffered(ctx, "openai-compatible", a.Endpoint, apiKey, a.ModelID))
		case registry.ProviderNIM:
			d.Register(backend.ProviderNIM, backend.NewNIMStreaming(ctx, a.Endpoint, apiKey, a.ModelID, a.ChatTemplateKwargs))
		case registry.ProviderAnthropic:
			d.Register(backend.ProviderAnthropic, backend.NewAnthropicAdapter(ctx, apiKey, a.ModelID))
		case registry.ProviderGemini:
			d.Register(backend.ProviderGemini, backend.NewGeminiAdapter(ctx, apiKey, a.ModelID))
		case registry.ProviderCursorBridge, registry.ProviderCopilotBridge:
			d.Register(backend.ProviderKind(a.Provider), backend.NewBridgeAdapter())
		default:
			logger.Warn("unknown provider in fleet config, no adapter registered", "provider", a.Provider, "agent", a.ID)
		}
	}
	return d
}

func defaultHomeDir() string {
	if h := os.Getenv("AGENTOS_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agentos"
	}
	return filepath.Join(home, ".agentos")
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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

func fatal(logger *slog.Logger, action string, err error) {
	logger.Error("startup failure", "action", action, "error", err)
	os.Exit(1)
}
