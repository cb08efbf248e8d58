package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sentinel-ops/incident-pilot/internal/adapters/codesearch"
	"github.com/sentinel-ops/incident-pilot/internal/adapters/dbinvestigate"
	"github.com/sentinel-ops/incident-pilot/internal/adapters/llm"
	"github.com/sentinel-ops/incident-pilot/internal/adapters/metrics"
	"github.com/sentinel-ops/incident-pilot/internal/adapters/notify"
	"github.com/sentinel-ops/incident-pilot/internal/adapters/scm"
	"github.com/sentinel-ops/incident-pilot/internal/analysis"
	"github.com/sentinel-ops/incident-pilot/internal/baseline"
	"github.com/sentinel-ops/incident-pilot/internal/cache"
	"github.com/sentinel-ops/incident-pilot/internal/config"
	"github.com/sentinel-ops/incident-pilot/internal/investigation"
	"github.com/sentinel-ops/incident-pilot/internal/logging"
	"github.com/sentinel-ops/incident-pilot/internal/monitor"
	"github.com/sentinel-ops/incident-pilot/internal/scheduler"
	"github.com/sentinel-ops/incident-pilot/internal/store"
	"github.com/sentinel-ops/incident-pilot/internal/workflow"
)

// Version is set at build time with -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:     "incidentpilotd",
	Short:   "incidentpilotd watches monitors, investigates anomalies, and reports root causes",
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

func init() {
	monitorsCmd.AddCommand(monitorsValidateCmd)
	rootCmd.AddCommand(serveCmd, versionCmd, migrateCmd, monitorsCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon (the default when no subcommand is given)",
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("incidentpilotd %s\n", Version)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending sqlite schema migrations and exit",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load configuration")
		}
		s, err := store.Open(cfg.SQLitePath, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("migration failed")
		}
		defer s.Close()
		log.Info().Str("path", cfg.SQLitePath).Msg("migrations applied")
	},
}

var monitorsCmd = &cobra.Command{
	Use:   "monitors",
	Short: "Monitor configuration commands",
}

var monitorsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the monitor configuration file, then exit",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load configuration")
		}
		registry := monitor.New(cfg.MonitorConfigPath, log.Logger)
		if err := registry.Load(); err != nil {
			log.Fatal().Err(err).Msg("monitor configuration is invalid")
		}
		log.Info().Int("count", len(registry.List())).Msg("monitor configuration is valid")
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.Init(cfg.LogLevel)
	log.Logger = logger

	logger.Info().Msg("starting incidentpilotd")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	responseCache := cache.New(redisClient, logger)

	registry := monitor.New(cfg.MonitorConfigPath, logger)
	if err := registry.Load(); err != nil {
		logger.Fatal().Err(err).Msg("failed to load monitor configuration")
	}
	defer registry.Close()

	db, err := store.Open(cfg.SQLitePath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open persistence store")
	}
	defer db.Close()

	metricsAdapter := metrics.New(cfg.MetricsBaseURL, cfg.MetricsAPIKey, cfg.AdapterTimeout, logger)
	baselineEngine := baseline.New(metricsAdapter, responseCache, cfg.BaselineTTL, logger)

	var gitAdapter *scm.Adapter
	if cfg.SourceControlBaseURL != "" {
		gitAdapter = scm.New(cfg.SourceControlBaseURL, cfg.SourceControlToken, cfg.AdapterTimeout, responseCache, cfg.RepoMetaTTL, logger)
	}

	var dbAdapter *dbinvestigate.Adapter
	if cfg.DBInvestigationDSN != "" {
		dbAdapter, err = dbinvestigate.New(cfg.DBInvestigationDSN, cfg.DBInvestigationTimeout, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to open db investigation adapter, disabling collector")
			dbAdapter = nil
		} else {
			defer dbAdapter.Close()
		}
	}

	var crossRepoAdapter *codesearch.Adapter
	if cfg.CodeSearchBaseURL != "" {
		crossRepoAdapter = codesearch.New(cfg.CodeSearchBaseURL, cfg.CodeSearchAPIKey, cfg.AdapterTimeout, responseCache, cfg.CodeSearchTTL, logger)
	}

	orchestrator := investigation.New(metricsAdapter, nullableGit(gitAdapter), nullableDB(dbAdapter), nullableCrossRepo(crossRepoAdapter), cfg.AdapterTimeout, cfg.DBInvestigationTimeout, cfg.GitCommitLookbackWindow, cfg.RecentDeploymentWindow, logger)

	llmAdapter := llm.New(cfg.AnthropicAPIKey, cfg.AnthropicModel, logger)
	analysisEngine := analysis.New(llmAdapter, responseCache, cfg.LLMResponseTTL, cfg.LLMCostInputPer1K, cfg.LLMCostOutputPer1K, db, logger)

	notifier := notify.New(cfg.DefaultWebhookURL, "", logger)
	wf := workflow.New(registry, orchestrator, analysisEngine, db, notifier, logger)

	sched := scheduler.New(registry, metricsAdapter, baselineEngine, db, wf, logger)

	// Every successful hot reload restarts the per-monitor polling tasks
	// against the refreshed enabled set. The callback is registered
	// before the watcher starts so a reload can never slip between them.
	registry.OnReload(func(count int) {
		sched.Reload(ctx)
	})
	if err := registry.Watch(); err != nil {
		logger.Warn().Err(err).Msg("failed to start monitor config watcher, hot reload disabled")
	}

	sched.Start(ctx)

	startMetricsServer(ctx, cfg.MetricsListenAddr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutting down")
	sched.Stop()
	cancel()

	logger.Info().Msg("incidentpilotd stopped")
}

// nullableGit/nullableDB/nullableCrossRepo return a nil interface value
// (not a non-nil interface wrapping a nil pointer) when the underlying
// adapter was never constructed, so the investigation orchestrator's
// nil checks behave correctly.
func nullableGit(a *scm.Adapter) investigation.GitCollector {
	if a == nil {
		return nil
	}
	return a
}

func nullableDB(a *dbinvestigate.Adapter) investigation.DBCollector {
	if a == nil {
		return nil
	}
	return a
}

func nullableCrossRepo(a *codesearch.Adapter) investigation.CrossRepoCollector {
	if a == nil {
		return nil
	}
	return a
}
