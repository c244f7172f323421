package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/recalld/recalld/config"
	"github.com/recalld/recalld/pkg/event"
	"github.com/recalld/recalld/pkg/llm"
	"github.com/recalld/recalld/pkg/logger"
	"github.com/recalld/recalld/pkg/metrics"
	"github.com/recalld/recalld/pkg/retriever"
	"github.com/recalld/recalld/pkg/rollup"
	"github.com/recalld/recalld/pkg/telemetry/tracing"
	"github.com/recalld/recalld/pkg/vectorstore"
	"github.com/recalld/recalld/pkg/version"
)

var (
	configPath  = flag.String("config", "", "Path to configuration file")
	versionFlag = flag.Bool("version", false, "Print version information")
	helpFlag    = flag.Bool("help", false, "Print help information")

	// CLI overrides
	appName   = flag.String("app-name", "", "Override app name")
	dataDir   = flag.String("data-dir", "", "Override event store directory")
	logLevel  = flag.String("log-level", "", "Override log level")
	debugMode = flag.Bool("debug", false, "Enable debug mode")
)

func main() {
	flag.Parse()

	if *helpFlag {
		printHelp()
		os.Exit(0)
	}
	if *versionFlag {
		printVersion()
		os.Exit(0)
	}

	overrides := buildOverrides()

	cfg, err := config.Load(*configPath, overrides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration:\n%s\n", err)
		os.Exit(1)
	}

	logCfg := cfg.Log.ToLoggerConfig()
	if cfg.App.Debug || *debugMode {
		logCfg.Level = logger.DebugLevel
	}
	log := logger.New(logCfg)
	logger.SetGlobal(log)

	build := version.Get()
	log.Info("Starting Recalld",
		"build", build.String(),
		"app", cfg.App.Name,
		"environment", cfg.App.Environment,
	)
	log.Debug("Configuration loaded", "config", cfg.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, cfg.App.Name, version.Version)
	if err != nil {
		log.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Event store backend
	var store event.Store
	switch cfg.Storage.Events.Type {
	case "badger":
		store, err = event.OpenBadgerStore(cfg.Storage.Events.Badger.ToBadgerConfig())
		if err != nil {
			log.Error("Failed to open Badger event store", "error", err)
			os.Exit(1)
		}
		log.Info("Initialized Badger event store", "path", cfg.Storage.Events.Badger.Path)
	case "memory":
		store = event.NewMemoryStore()
		log.Info("Initialized in-memory event store")
	default:
		store = event.NewMemoryStore()
		log.Warn("Unknown event store type, using memory", "type", cfg.Storage.Events.Type)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Error closing event store", "error", err)
		}
	}()

	// Vector store backend
	var vecStore vectorstore.Store
	switch cfg.Storage.Vector.Type {
	case "redis":
		vecStore, err = vectorstore.NewRedisStore(ctx, cfg.Storage.Vector.Redis.ToRedisConfig())
		if err != nil {
			log.Error("Failed to connect to Redis vector store", "error", err)
			os.Exit(1)
		}
		log.Info("Initialized Redis vector store", "address", cfg.Storage.Vector.Redis.Address)
	case "memory":
		vecStore = vectorstore.NewInMem()
		log.Info("Initialized in-memory vector store")
	default:
		vecStore = vectorstore.NewInMem()
		log.Warn("Unknown vector store type, using memory", "type", cfg.Storage.Vector.Type)
	}
	defer func() {
		if err := vecStore.Close(); err != nil {
			log.Error("Error closing vector store", "error", err)
		}
	}()

	// Metrics manager
	metricsCfg := metrics.Config{
		Enabled:                  cfg.Metrics.Enabled,
		Port:                     cfg.Metrics.Port,
		Path:                     cfg.Metrics.Path,
		WindowDurationBuckets:    metrics.DefaultConfig().WindowDurationBuckets,
		ModelDurationBuckets:     metrics.DefaultConfig().ModelDurationBuckets,
		RetrievalDurationBuckets: metrics.DefaultConfig().RetrievalDurationBuckets,
	}
	metricsManager := metrics.NewManager(metricsCfg)

	if metricsManager.Enabled() {
		go func() {
			log.Info("Starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := metricsManager.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				log.Error("Metrics server error", "error", err)
			}
		}()
	}

	// Language model chain and embedder share one client-side rate limit.
	chain := llm.NewChatChain(cfg.Model.ToClientConfig(), cfg.Model.ChainConfigs(), metricsManager)
	client := llm.NewClient(cfg.Model.ToClientConfig())
	var limiter *rate.Limiter
	if cfg.Model.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Model.RequestsPerSecond), cfg.Model.Burst)
	}
	embedder := llm.NewOpenAIEmbedder(client, limiter, cfg.Embedding.ToEmbeddingConfig()).WithMetrics(metricsManager)

	vectors := retriever.NewTimeWeighted(vecStore, embedder, cfg.Retrieval.ToRetrieverConfig()).WithMetrics(metricsManager)

	sum := rollup.NewSummarizer(chain)
	imp := rollup.NewImportanceEvaluator(chain)
	idx := rollup.NewIndexEvaluator(chain)
	persona := rollup.NewPersonaExtractor(store, vectors, chain, log, cfg.Persona.ToPersonaConfig())
	conv := rollup.NewConversationConsolidator(store, vectors, sum, imp, idx, persona, log, metricsManager, cfg.Conversation.ToConversationConfig())

	schedCfg, err := cfg.Rollup.ToSchedulerConfig()
	if err != nil {
		log.Error("Invalid roll-up configuration", "error", err)
		os.Exit(1)
	}
	sched := rollup.NewScheduler(store, vectors, embedder, sum, imp, idx, conv, log, metricsManager, schedCfg)
	if err := sched.Start(ctx); err != nil {
		log.Error("Failed to start roll-up scheduler", "error", err)
		os.Exit(1)
	}

	// Hot-reload the file-backed settings that can change at runtime.
	var watcher *config.Watcher
	if *configPath != "" {
		watcher, err = config.NewWatcher(*configPath, config.NewLoader())
		if err != nil {
			log.Warn("Config watcher unavailable", "error", err)
		} else {
			current := config.ExtractHotReloadable(cfg)
			watcher.OnChange(func(next *config.Config) {
				updated := config.ExtractHotReloadable(next)
				if !current.Changed(updated) {
					return
				}
				if updated.LogLevel != current.LogLevel {
					log.SetLevel(logger.ParseLevel(updated.LogLevel))
					log.Info("Log level updated", "level", updated.LogLevel)
				}
				if updated.RetrievalTopK != current.RetrievalTopK || updated.PersonaThreshold != current.PersonaThreshold {
					log.Warn("Retrieval and persona settings apply on restart")
				}
				current = updated
			})
			go func() {
				if err := watcher.Watch(ctx); err != nil {
					log.Error("Config watcher error", "error", err)
				}
			}()
			log.Info("Watching configuration file", "path", watcher.ConfigPath())
		}
	}

	log.Info("Recalld is running",
		"tick", schedCfg.TickSpec,
		"workers", schedCfg.Workers,
		"metrics_port", cfg.Metrics.Port,
	)
	log.Info("Press Ctrl+C to stop")

	select {
	case sig := <-sigChan:
		log.Info("Received shutdown signal", "signal", sig)
	case <-ctx.Done():
		log.Info("Context cancelled")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			log.Error("Error stopping config watcher", "error", err)
		}
	}

	log.Info("Stopping roll-up scheduler")
	sched.Stop()

	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("Error shutting down tracing", "error", err)
	}

	log.Info("Recalld stopped gracefully")
}

func buildOverrides() map[string]interface{} {
	overrides := make(map[string]interface{})

	if *appName != "" {
		overrides["app.name"] = *appName
	}
	if *dataDir != "" {
		overrides["storage.events.badger.path"] = *dataDir
	}
	if *logLevel != "" {
		overrides["log.level"] = *logLevel
	}
	if *debugMode {
		overrides["app.debug"] = true
	}

	return overrides
}

func printVersion() {
	fmt.Printf("Recalld - Tiered Memory Roll-up Daemon\n")
	fmt.Printf("Version:    %s\n", version.Version)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Printf("Git Commit: %s\n", version.GitCommit)
	fmt.Printf("Go Version: %s\n", version.GoVersion)
}

func printHelp() {
	fmt.Printf("Recalld - Tiered memory roll-up and retrieval daemon\n\n")
	fmt.Printf("Usage: recalld [options]\n\n")
	fmt.Printf("Options:\n")
	flag.PrintDefaults()
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  recalld                                   # Run with default config\n")
	fmt.Printf("  recalld -config config.yaml               # Use specific config file\n")
	fmt.Printf("  recalld -data-dir /var/lib/recalld        # Override event store path\n")
	fmt.Printf("  recalld -log-level debug                  # Override log level\n")
	fmt.Printf("  recalld -version                          # Print version info\n")
}
