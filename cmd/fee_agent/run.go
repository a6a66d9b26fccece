package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/fee-agent/internal/challenge"
	"github.com/jonathan/fee-agent/internal/config"
	"github.com/jonathan/fee-agent/internal/db"
	"github.com/jonathan/fee-agent/internal/objectstore"
	"github.com/jonathan/fee-agent/internal/observability"
	"github.com/jonathan/fee-agent/internal/payload"
	"github.com/jonathan/fee-agent/internal/pipeline"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run a batch of fee form submissions",
	Long: `Runs a batch of independent submissions. Each run fetches the form, generates a payload,
solves the challenge, submits and extracts the fee records.

Configuration comes from defaults, an optional --config file (JSON or YAML) and environment
variables (PAGE_URL, SUBMIT_URL, ANTICAPTCHA_KEY, CAPTCHA_TIMEOUT, ...). Flags override both.`,
	Args: cobra.NoArgs,
	RunE: runBatchCmd,
}

var (
	runConfigPath  string
	runRuns        int
	runOutput      string
	runConcurrency int
	runIntervalMS  int
	runVerbose     bool
	runDatabaseURL string
)

func init() {
	// Config file flag (processed first)
	runCommand.Flags().StringVar(&runConfigPath, "config", "", "Path to config file (values can be overridden by other flags)")

	runCommand.Flags().IntVarP(&runRuns, "runs", "n", 0, "Number of runs in the batch")
	runCommand.Flags().StringVarP(&runOutput, "output", "o", "", "Output directory for run artifacts")
	runCommand.Flags().IntVar(&runConcurrency, "concurrency", 0, "Maximum runs in flight")
	runCommand.Flags().IntVar(&runIntervalMS, "interval", 0, "Minimum milliseconds between run starts")
	runCommand.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print each run's outcome and debug logs")

	// Database URL for the optional run mirror
	runCommand.Flags().StringVar(&runDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")

	rootCmd.AddCommand(runCommand)
}

func runBatchCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(runConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Only override if the flag was explicitly set
	if cmd.Flags().Changed("runs") {
		cfg.Runs = runRuns
	}
	if cmd.Flags().Changed("output") {
		cfg.OutputDir = runOutput
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Concurrency = runConcurrency
	}
	if cmd.Flags().Changed("interval") {
		cfg.RunIntervalMS = runIntervalMS
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = runVerbose
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = runDatabaseURL
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := observability.NewLogger(loggerOptions(cfg))
	defer func() { _ = logger.Sync() }()

	solver := challenge.NewAntiCaptcha(cfg.AntiCaptchaKey, &challenge.AntiCaptchaOptions{
		BaseURL: cfg.AntiCaptchaURL,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, err = executeBatch(ctx, cfg, solver, logger, cmd.OutOrStdout())
	return err
}

func loggerOptions(cfg *config.Config) observability.LoggerOptions {
	opts := observability.DefaultLoggerOptions()
	opts.Level = cfg.LogLevel
	opts.Format = cfg.LogFormat
	if cfg.Verbose {
		opts.Level = "debug"
	}
	return opts
}

// executeBatch wires the orchestrator from cfg, runs the batch and prints the summary.
func executeBatch(ctx context.Context, cfg *config.Config, solver challenge.Solver, logger *zap.Logger, out io.Writer) (*pipeline.BatchResult, error) {
	printer := observability.NewPrinter(out)

	// Initialize database connection if configured
	var recorder pipeline.Recorder
	if cfg.DatabaseURL != "" {
		database, err := db.Connect(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Warn("failed to connect to database, continuing without mirror", zap.Error(err))
		} else {
			defer database.Close()
			if err := database.EnsureSchema(ctx); err != nil {
				logger.Warn("failed to prepare database schema, continuing without mirror", zap.Error(err))
			} else {
				recorder = database
				logger.Debug("connected to database")
			}
		}
	}

	// Initialize the object storage archive if configured
	var archiver pipeline.Archiver
	if cfg.ObjectStoreEndpoint != "" {
		archiver = newArchiver(ctx, cfg.ObjectStore(), logger)
	}

	orch, err := pipeline.NewOrchestrator(pipeline.Options{
		FormURL:          cfg.PageURL,
		SubmitURL:        cfg.SubmitURL,
		ChallengeTimeout: cfg.CaptchaTimeout(),
		MinScore:         cfg.MinScore,
		OutputDir:        cfg.OutputDir,
		Clean:            cfg.CleanOutput,
		UserAgent:        cfg.UserAgent,
		HTTPTimeout:      cfg.HTTPTimeout(),
		Solver:           solver,
		Builder:          payload.NewGenerator(payload.GeneratorOptions{Seed: cfg.PayloadSeed}, logger),
		Recorder:         recorder,
		Archiver:         archiver,
		Logging:          loggerOptions(cfg),
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}

	result := orch.RunBatch(ctx, pipeline.BatchOptions{
		Runs:        cfg.Runs,
		Concurrency: cfg.Concurrency,
		Interval:    cfg.RunInterval(),
	})

	summaries := make([]observability.RunSummary, 0, len(result.Outcomes))
	for _, o := range result.Outcomes {
		s := toRunSummary(o)
		if cfg.Verbose {
			printer.PrintOutcome(s)
		}
		summaries = append(summaries, s)
	}
	printer.PrintBatchSummary(summaries)
	return result, nil
}

// newArchiver returns nil when the bucket cannot be reached so the batch runs without an archive.
func newArchiver(ctx context.Context, storeCfg objectstore.Config, logger *zap.Logger) pipeline.Archiver {
	client, err := objectstore.NewMinIOClient(storeCfg)
	if err != nil {
		logger.Warn("invalid object storage settings, continuing without archive", zap.Error(err))
		return nil
	}
	if err := objectstore.EnsureBucket(ctx, client, storeCfg); err != nil {
		logger.Warn("object storage unavailable, continuing without archive", zap.Error(err))
		return nil
	}
	logger.Debug("object storage ready", zap.String("bucket", storeCfg.Bucket))
	return objectstore.NewArchiver(client, storeCfg, logger)
}

func toRunSummary(o *pipeline.Outcome) observability.RunSummary {
	return observability.RunSummary{
		RunID:         o.RunID,
		Status:        string(o.Status),
		Kind:          string(o.Kind),
		Stage:         string(o.Stage),
		Error:         o.Error,
		Verdict:       string(o.Verdict),
		SummaryCount:  o.SummaryCount,
		DetailCount:   o.DetailCount,
		SolveAttempts: o.ChallengeAttempts,
		Duration:      o.Duration(),
		Dir:           o.Dir,
	}
}
