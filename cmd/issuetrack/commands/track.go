// Package commands implements the issuetrack subcommands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/issuetrack/pkg/branch"
	"github.com/Sumatoshi-tech/issuetrack/pkg/config"
	"github.com/Sumatoshi-tech/issuetrack/pkg/issuetracking"
	"github.com/Sumatoshi-tech/issuetrack/pkg/observability"
	"github.com/Sumatoshi-tech/issuetrack/pkg/report"
	"github.com/Sumatoshi-tech/issuetrack/pkg/rules"
	"github.com/Sumatoshi-tech/issuetrack/pkg/storage"
	"github.com/Sumatoshi-tech/issuetrack/pkg/storage/memory"
	"github.com/Sumatoshi-tech/issuetrack/pkg/storage/sqlite"
	"github.com/Sumatoshi-tech/issuetrack/pkg/version"
)

// Sentinel errors.
var (
	ErrNoReport = errors.New("report is required (use --report)")
	ErrNoRules  = errors.New("rule catalog is required (use --rules or rules.catalog)")
)

const (
	trackCmdUse   = "track"
	trackCmdShort = "Track an analysis report against the stored issues of a branch"
	defaultBranch = "main"
)

// ObservabilityInit builds the telemetry providers of a run.
type ObservabilityInit func(observability.Config) (observability.Providers, error)

type trackCommand struct {
	reportPath  string
	project     string
	branchName  string
	branchType  string
	mergeBranch string
	date        string
	store       string
	dbPath      string
	rulesPath   string
	noColor     bool
	dryRun      bool

	initObs ObservabilityInit
}

// NewTrackCommand creates the track subcommand.
func NewTrackCommand() *cobra.Command {
	return newTrackCommandWithDeps(observability.Init)
}

func newTrackCommandWithDeps(initObs ObservabilityInit) *cobra.Command {
	tc := &trackCommand{initObs: initObs}

	cmd := &cobra.Command{
		Use:   trackCmdUse,
		Short: trackCmdShort,
		Long: `Track an analysis report against the stored issues of a branch.

Raised issues are matched with the issues of previous analyses, new issues are
created, disappeared ones are closed and decisions made on other branches are
copied. The result is persisted in one transaction.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return tc.run(cmd)
		},
	}

	cmd.Flags().StringVar(&tc.reportPath, "report", "", "Analysis report (JSON, optionally .lz4)")
	cmd.Flags().StringVar(&tc.project, "project", "", "Project key (default: from the report)")
	cmd.Flags().StringVar(&tc.branchName, "branch", defaultBranch, "Analyzed branch")
	cmd.Flags().StringVar(&tc.branchType, "branch-type", string(branch.TypeMain), "Branch type: main, short, long")
	cmd.Flags().StringVar(&tc.mergeBranch, "merge-branch", "", "Branch the analyzed branch merges into")
	cmd.Flags().StringVar(&tc.date, "date", "", "Analysis date, RFC3339 (default: now)")
	cmd.Flags().StringVar(&tc.store, "store", "", "Storage driver: sqlite, memory (default: storage.driver)")
	cmd.Flags().StringVar(&tc.dbPath, "db", "", "SQLite database path (default: storage.path)")
	cmd.Flags().StringVar(&tc.rulesPath, "rules", "", "Rule catalog YAML (default: rules.catalog)")
	cmd.Flags().BoolVar(&tc.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().BoolVar(&tc.dryRun, "dry-run", false, "Track without persisting")

	return cmd
}

func (tc *trackCommand) run(cmd *cobra.Command) error {
	if tc.reportPath == "" {
		return ErrNoReport
	}

	cfg, err := config.LoadConfig(lookupString(cmd, "config"))
	if err != nil {
		return err
	}

	tc.applyOverrides(cfg)

	if cfg.Rules.Catalog == "" {
		return ErrNoRules
	}

	meta, date, err := tc.analysisContext()
	if err != nil {
		return err
	}

	obsCfg, err := observabilityConfig(cfg, lookupBool(cmd, "verbose"), lookupBool(cmd, "quiet"))
	if err != nil {
		return err
	}

	obsCfg.LogOutput = cmd.ErrOrStderr()

	providers, err := tc.initObs(obsCfg)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}

	logger := observability.LoggerOrDefault(providers.Logger)

	defer func() {
		shutdownErr := providers.Shutdown(context.Background())
		if shutdownErr != nil {
			logger.Warn("observability shutdown failed", "error", shutdownErr)
		}
	}()

	ctx, span := providers.Tracer.Start(cmd.Context(), "issuetrack.track")
	defer span.End()

	res, err := tc.track(ctx, cfg, providers, logger, meta, date)
	if err != nil {
		span.RecordError(err)

		return err
	}

	if lookupBool(cmd, "quiet") {
		return nil
	}

	return renderSummary(cmd.OutOrStdout(), res, summaryOptions{
		NoColor:    tc.noColor,
		HoursInDay: cfg.Tracking.HoursInDay,
		StorePath:  storePath(cfg.Storage),
		DryRun:     tc.dryRun,
	})
}

func (tc *trackCommand) track(
	ctx context.Context,
	cfg *config.Config,
	providers observability.Providers,
	logger *slog.Logger,
	meta branch.Metadata,
	date time.Time,
) (*issuetracking.Result, error) {
	repo, err := rules.LoadCatalogFile(cfg.Rules.Catalog)
	if err != nil {
		return nil, err
	}

	rep, err := report.Open(tc.reportPath)
	if err != nil {
		return nil, err
	}

	metrics, err := observability.NewTrackingMetrics(providers.Meter)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	defer func() {
		closeErr := store.Close()
		if closeErr != nil {
			logger.Warn("closing store failed", "error", closeErr)
		}
	}()

	engine := issuetracking.NewEngine(store, repo, trackingOptions(cfg, tc.dryRun),
		issuetracking.WithLogger(logger),
		issuetracking.WithTracer(providers.Tracer),
		issuetracking.WithMetrics(metrics),
		issuetracking.WithSCM(rep.SCM),
	)

	project := tc.project
	if project == "" {
		project = rep.Project
	}

	return engine.Run(ctx, issuetracking.Request{
		Project: project,
		Branch:  meta,
		Date:    date,
		Files:   rep.Files,
	})
}

func (tc *trackCommand) applyOverrides(cfg *config.Config) {
	if tc.store != "" {
		cfg.Storage.Driver = tc.store
	}

	if tc.dbPath != "" {
		cfg.Storage.Path = tc.dbPath
	}

	if tc.rulesPath != "" {
		cfg.Rules.Catalog = tc.rulesPath
	}
}

func (tc *trackCommand) analysisContext() (branch.Metadata, time.Time, error) {
	typ, err := branch.ParseType(tc.branchType)
	if err != nil {
		return branch.Metadata{}, time.Time{}, err
	}

	meta := branch.Metadata{Name: tc.branchName, Type: typ, MergeBranch: tc.mergeBranch}

	_, err = branch.Resolve(meta)
	if err != nil {
		return branch.Metadata{}, time.Time{}, err
	}

	if tc.date == "" {
		return meta, time.Now().UTC(), nil
	}

	date, err := time.Parse(time.RFC3339, tc.date)
	if err != nil {
		return branch.Metadata{}, time.Time{}, fmt.Errorf("invalid --date: %w", err)
	}

	return meta, date.UTC(), nil
}

func trackingOptions(cfg *config.Config, dryRun bool) issuetracking.Options {
	opts := issuetracking.DefaultOptions()
	opts.Workers = cfg.Tracking.Workers
	opts.BlockHalfSize = cfg.Tracking.BlockHalfSize
	opts.ClosedIssueMaxAge = cfg.Tracking.ClosedIssueMaxAge
	opts.HoursInDay = cfg.Tracking.HoursInDay
	opts.Attribution = issuetracking.Attribution{
		Accounts:        cfg.SCM.AccountMap(),
		DefaultAssignee: cfg.SCM.DefaultAssignee,
		Backdate:        cfg.Tracking.BackdateNewIssues,
	}
	opts.DryRun = dryRun

	return opts
}

func observabilityConfig(cfg *config.Config, verbose, quiet bool) (observability.Config, error) {
	level, err := cfg.Logging.SlogLevel()
	if err != nil {
		return observability.Config{}, err
	}

	switch {
	case verbose:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelWarn
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.OTLPEndpoint = cfg.Observability.OTLPEndpoint
	obsCfg.OTLPInsecure = cfg.Observability.OTLPInsecure
	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(cfg.Observability.OTLPHeaders)
	obsCfg.MetricsFile = cfg.Observability.MetricsFile
	obsCfg.LogLevel = level
	obsCfg.LogJSON = cfg.Logging.Format == config.FormatJSON

	return obsCfg, nil
}

func openStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	if cfg.Driver == config.DriverMemory {
		return memory.New(), nil
	}

	s, err := sqlite.Open(ctx, cfg.Path, sqlite.Options{BusyTimeout: cfg.BusyTimeout})
	if err != nil {
		return nil, err
	}

	return s, nil
}

func storePath(cfg config.StorageConfig) string {
	if cfg.Driver == config.DriverMemory {
		return ""
	}

	return cfg.Path
}

func lookupBool(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)

	return err == nil && v
}

func lookupString(cmd *cobra.Command, name string) string {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		return ""
	}

	return v
}
