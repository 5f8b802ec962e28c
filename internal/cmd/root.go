package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"rivwidthcloud/internal/app"
	"rivwidthcloud/internal/domain"
	"rivwidthcloud/internal/infrastructure"
	"rivwidthcloud/internal/metrics"
)

type globalOptions struct {
	configPath  string
	logLevel    string
	metricsFile string
	reportFile  string
	dryRun      bool
	failOnError bool
}

// runtime is built once per invocation in PersistentPreRunE.
type runtime struct {
	opts    *globalOptions
	config  *domain.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	runID   uuid.UUID

	tokenSource  infrastructure.TokenSourceFunc
	taskReader   func(logger *zap.Logger) domain.TaskReader
	exportLister func(ctx context.Context, logger *zap.Logger) (domain.ExportLister, error)
}

func defaultRuntime() *runtime {
	rt := &runtime{tokenSource: infrastructure.DefaultCredentials}
	rt.taskReader = func(logger *zap.Logger) domain.TaskReader {
		return infrastructure.NewCSVTaskReader(logger)
	}
	rt.exportLister = func(ctx context.Context, logger *zap.Logger) (domain.ExportLister, error) {
		return infrastructure.NewGCSExportLister(ctx, logger)
	}
	return rt
}

// NewRootCommand builds the rwc command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(defaultRuntime())
}

func newRootCommand(rt *runtime) *cobra.Command {
	opts := &globalOptions{}
	rt.opts = opts

	root := &cobra.Command{
		Use:   "rwc",
		Short: "Dispatch RivWidthCloud river width exports to Earth Engine",
		Long: `rwc submits river centerline and width exports for Landsat scenes to the
Earth Engine REST API, one scene at a time or as a batch read from a CSV file.
Exports run asynchronously on the remote service and write to Google Drive or
Cloud Storage.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return rt.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if rt.logger != nil {
				_ = rt.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "rwc.yaml", "Path to config file")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile after the run")
	flags.StringVar(&opts.reportFile, "report", "", "Write a TSV report of task outcomes to this file")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Accept tasks locally without calling Earth Engine")
	flags.BoolVar(&opts.failOnError, "fail-on-error", false, "Exit with an error when any task failed")

	root.AddCommand(newOneCommand(rt))
	root.AddCommand(newBatchCommand(rt))
	root.AddCommand(newExportsCommand(rt))
	return root
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func (rt *runtime) init(cmd *cobra.Command) error {
	bootstrap := zap.NewNop()
	var reader domain.ConfigReader = infrastructure.NewYAMLConfigReader(bootstrap, !cmd.Flags().Changed("config"))
	config, err := reader.ReadConfig(rt.opts.configPath)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if rt.opts.logLevel != "" {
		config.Log.Level = rt.opts.logLevel
	}

	logger, err := infrastructure.NewLogger(config.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	rt.config = config
	rt.logger = logger.With(zap.String("command", cmd.Name()))
	rt.metrics = metrics.New()
	rt.runID = uuid.New()
	return nil
}

// submitter returns the Earth Engine client, or a dry-run submitter, and the guard
// serializing renewals of its session.
func (rt *runtime) submitter(ctx context.Context, w io.Writer) (domain.Submitter, *app.SessionGuard, error) {
	// confirmations are printed from every worker
	out := zapcore.Lock(zapcore.AddSync(w))

	if rt.opts.dryRun {
		guard := app.NewSessionGuard(rt.logger, nil)
		return infrastructure.NewDryRunSubmitter(rt.logger, rt.config.Export, rt.runID, out), guard, nil
	}

	session := infrastructure.NewSession(rt.logger, rt.tokenSource)
	guard := app.NewSessionGuard(rt.logger, session)
	if err := guard.Renew(ctx, guard.Generation()); err != nil {
		return nil, nil, fmt.Errorf("initialize earth engine session: %w", err)
	}
	// первая инициализация не считается обновлением
	guard.OnRenew = rt.metrics.SessionRenewals.Inc

	client := infrastructure.NewEarthEngineClient(rt.logger, session, rt.config.EarthEngine, rt.config.Export, rt.runID, out)
	return client, guard, nil
}

// finish logs the summary and writes the optional report and metrics files.
func (rt *runtime) finish(outcomes []domain.TaskOutcome) (app.Summary, error) {
	summary := app.Summarize(outcomes)
	rt.logger.Info("Dispatch finished", append(summary.Fields(), zap.String("run_id", rt.runID.String()))...)

	if rt.opts.reportFile != "" {
		writer := infrastructure.NewTSVReportWriter(rt.logger)
		if err := writer.WriteReport(rt.opts.reportFile, outcomes); err != nil {
			return summary, fmt.Errorf("write report: %w", err)
		}
	}
	if rt.opts.metricsFile != "" {
		if err := rt.metrics.WriteTextfile(rt.opts.metricsFile); err != nil {
			return summary, fmt.Errorf("write metrics: %w", err)
		}
	}

	if rt.opts.failOnError && summary.Failed > 0 {
		return summary, fmt.Errorf("%d of %d tasks failed", summary.Failed, summary.Total)
	}
	return summary, nil
}
