// Package main provides the Nexus CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/orneryd/nexus/pkg/cache"
	"github.com/orneryd/nexus/pkg/config"
	"github.com/orneryd/nexus/pkg/cypher"
	"github.com/orneryd/nexus/pkg/logging"
	"github.com/orneryd/nexus/pkg/search"
	"github.com/orneryd/nexus/pkg/server"
	"github.com/orneryd/nexus/pkg/storage"
)

var (
	version   = "0.1.0"
	commit    = "dev"
	buildTime = "unknown" // Set via ldflags: -X main.buildTime=$(date +%Y%m%d-%H%M%S)
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nexus",
		Short: "Nexus - property graph query server",
		Long: `Nexus executes Cypher-style statements against a property graph
stored in BadgerDB, with session transactions, a compiled plan cache
and cosine vector search.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "Config file (default: search standard locations)")
	rootCmd.PersistentFlags().String("data-dir", "", "Data directory (overrides config and NEXUS_DATA_DIR)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text, json")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Nexus v%s (%s) built %s\n", version, commit, buildTime)
		},
	})

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  runServe,
	}
	serveCmd.Flags().String("address", "", "Bind address (127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)")
	serveCmd.Flags().Int("http-port", 0, "HTTP API port")
	serveCmd.Flags().Bool("in-memory", false, "Keep all data in memory")
	serveCmd.Flags().Duration("statement-timeout", 0, "Per-statement timeout (0 keeps the configured value)")
	serveCmd.Flags().Int("plan-cache-size", 0, "Maximum cached plans")
	serveCmd.Flags().String("vector-metric", "", "vector.knn similarity: cosine, euclidean, dot")
	rootCmd.AddCommand(serveCmd)

	backupCmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a compressed backup of the data directory",
		RunE:  runBackup,
	}
	backupCmd.Flags().String("out", "", "Backup file to write")
	_ = backupCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(backupCmd)

	restoreCmd := &cobra.Command{
		Use:   "restore",
		Short: "Load a backup into the data directory",
		RunE:  runRestore,
	}
	restoreCmd.Flags().String("in", "", "Backup file to read")
	_ = restoreCmd.MarkFlagRequired("in")
	rootCmd.AddCommand(restoreCmd)

	return rootCmd
}

// loadConfig applies, in order: defaults, config file, NEXUS_* env, then
// any flag set on the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.FindConfigFile()
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		cfg.Database.DataDir, _ = flags.GetString("data-dir")
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format, _ = flags.GetString("log-format")
	}
	if flags.Changed("address") {
		cfg.Server.Address, _ = flags.GetString("address")
	}
	if flags.Changed("http-port") {
		cfg.Server.HTTPPort, _ = flags.GetInt("http-port")
	}
	if flags.Changed("in-memory") {
		cfg.Database.InMemory, _ = flags.GetBool("in-memory")
	}
	if flags.Changed("statement-timeout") {
		cfg.Database.StatementTimeout, _ = flags.GetDuration("statement-timeout")
	}
	if flags.Changed("plan-cache-size") {
		cfg.PlanCache.MaxEntries, _ = flags.GetInt("plan-cache-size")
	}
	if flags.Changed("vector-metric") {
		cfg.Vector.Metric, _ = flags.GetString("vector-metric")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func openEngine(cfg *config.Config, logger *logrus.Logger) (*storage.BadgerEngine, error) {
	return storage.NewBadgerEngineWithOptions(storage.BadgerOptions{
		DataDir:    cfg.Database.DataDir,
		InMemory:   cfg.Database.InMemory,
		SyncWrites: cfg.Database.SyncWrites,
		Logger:     logger,
	})
}

func executorOptions(cfg *config.Config, logger *logrus.Logger) (cypher.Options, error) {
	opts := cypher.DefaultOptions()
	metric, err := search.ParseMetric(cfg.Vector.Metric)
	if err != nil {
		return opts, err
	}
	opts.PlanCache = cache.Config{
		MaxEntries:     cfg.PlanCache.MaxEntries,
		MaxMemoryBytes: cfg.PlanCache.MaxMemoryBytes,
		Enabled:        cfg.PlanCache.Enabled,
	}
	opts.StatementTimeout = cfg.Database.StatementTimeout
	opts.SlowQueryThreshold = cfg.Database.SlowQueryThreshold
	opts.DefaultK = cfg.Vector.DefaultK
	opts.VectorMetric = metric
	opts.Logger = logger
	return opts, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	log := logger.WithField("component", "main")
	log.WithField("config", cfg.String()).Info("starting nexus")

	engine, err := openEngine(cfg, logger)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer engine.Close()

	opts, err := executorOptions(cfg, logger)
	if err != nil {
		return err
	}
	exec := cypher.NewExecutor(engine, opts)
	sessions := cypher.NewSessionManager(exec, cfg.Database.SessionTimeout)
	defer sessions.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go sessions.Run(ctx, time.Minute)

	httpServer, err := server.New(exec, sessions, server.ConfigFrom(cfg.Server), logger)
	if err != nil {
		return err
	}
	if err := httpServer.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("stopping HTTP server: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func runBackup(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("out")
	return withEngine(cmd, func(engine *storage.BadgerEngine) error {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("creating backup file: %w", err)
		}
		n, err := engine.Backup(f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s to %s\n", config.FormatMemorySize(int64(n)), out)
		return nil
	})
}

func runRestore(cmd *cobra.Command, args []string) error {
	in, _ := cmd.Flags().GetString("in")
	return withEngine(cmd, func(engine *storage.BadgerEngine) error {
		f, err := os.Open(in)
		if err != nil {
			return fmt.Errorf("opening backup file: %w", err)
		}
		defer f.Close()
		if err := engine.Restore(f); err != nil {
			return err
		}
		nodes, _ := engine.NodeCount()
		edges, _ := engine.EdgeCount()
		fmt.Fprintf(cmd.OutOrStdout(), "restored %d nodes and %d relationships\n", nodes, edges)
		return nil
	})
}

// withEngine opens the configured on-disk engine for an offline command.
func withEngine(cmd *cobra.Command, fn func(*storage.BadgerEngine) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Database.InMemory {
		return fmt.Errorf("%s needs an on-disk data directory", cmd.Name())
	}
	logger, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	engine, err := openEngine(cfg, logger)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer engine.Close()
	return fn(engine)
}
