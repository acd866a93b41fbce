// Package issuetracking runs the tracking of an analysis: it decides for every
// reported issue whether it is new or the continuation of a known issue, closes
// issues that disappeared, copies decisions across branches and persists the
// outcome.
package issuetracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/issuetrack/pkg/branch"
	"github.com/Sumatoshi-tech/issuetrack/pkg/component"
	"github.com/Sumatoshi-tech/issuetrack/pkg/debt"
	"github.com/Sumatoshi-tech/issuetrack/pkg/fingerprint"
	"github.com/Sumatoshi-tech/issuetrack/pkg/issue"
	"github.com/Sumatoshi-tech/issuetrack/pkg/lifecycle"
	"github.com/Sumatoshi-tech/issuetrack/pkg/observability"
	"github.com/Sumatoshi-tech/issuetrack/pkg/rules"
	"github.com/Sumatoshi-tech/issuetrack/pkg/scm"
	"github.com/Sumatoshi-tech/issuetrack/pkg/storage"
	"github.com/Sumatoshi-tech/issuetrack/pkg/tracking"
	"github.com/Sumatoshi-tech/issuetrack/pkg/workflow"
)

// Sentinel errors.
var (
	ErrDuplicateFile = errors.New("file reported twice")
	ErrMissingBranch = errors.New("branch name is required")
)

// Persistence is the storage the engine reads from and writes to.
type Persistence interface {
	storage.Loader
	storage.Saver
}

// Options tunes the engine.
type Options struct {
	// Workers bounds the files tracked concurrently; zero means GOMAXPROCS.
	Workers int
	// BlockHalfSize is the half size of the blocks used to recognize moved code.
	BlockHalfSize int
	// ClosedIssueMaxAge bounds how long ago a closed issue may have been closed
	// to be reopened; zero disables reopening.
	ClosedIssueMaxAge time.Duration
	// HoursInDay is the length of a work day in remediation durations.
	HoursInDay int
	// Attribution configures authorship of new issues.
	Attribution Attribution
	// DryRun skips persistence.
	DryRun bool
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		BlockHalfSize:     fingerprint.DefaultHalfBlockSize,
		ClosedIssueMaxAge: 30 * 24 * time.Hour,
		HoursInDay:        debt.DefaultHoursInDay,
		Attribution:       Attribution{Backdate: true},
	}
}

// Request is one analysis to track.
type Request struct {
	Project string
	// Branch describes the analyzed branch. FirstAnalysis is derived from storage.
	Branch branch.Metadata
	Date   time.Time
	Files  []SourceFile
}

// Result is the outcome of an analysis.
type Result struct {
	Branch   branch.Metadata
	Strategy branch.Strategy
	Files    []FileResult
	// Measures are keyed by component path; the project is "".
	Measures map[string]component.Measures
	// Outcomes sums the outcomes of all files.
	Outcomes  map[string]int
	Persisted storage.SaveStats
}

// Engine tracks analyses. It is safe for concurrent use when its
// collaborators are.
type Engine struct {
	store     Persistence
	rules     rules.Repository
	opts      Options
	scm       scm.Provider
	workflow  *workflow.Workflow
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *observability.TrackingMetrics
	lcOptions []lifecycle.Option
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) EngineOption {
	return func(e *Engine) { e.tracer = t }
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *observability.TrackingMetrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithSCM sets the blame provider.
func WithSCM(p scm.Provider) EngineOption {
	return func(e *Engine) { e.scm = p }
}

// WithKeyGenerator replaces the generator of issue keys.
func WithKeyGenerator(gen func() string) EngineOption {
	return func(e *Engine) { e.lcOptions = append(e.lcOptions, lifecycle.WithKeyGenerator(gen)) }
}

// NewEngine creates an engine over a store and a rule repository.
func NewEngine(store Persistence, repo rules.Repository, opts Options, engineOpts ...EngineOption) *Engine {
	e := &Engine{
		store:    store,
		rules:    repo,
		opts:     opts,
		scm:      scm.MapProvider{},
		workflow: workflow.New(),
		tracer:   otel.Tracer("issuetrack"),
	}

	for _, opt := range engineOpts {
		opt(e)
	}

	e.logger = observability.LoggerOrDefault(e.logger)

	if e.opts.BlockHalfSize <= 0 {
		e.opts.BlockHalfSize = fingerprint.DefaultHalfBlockSize
	}

	if e.opts.HoursInDay <= 0 {
		e.opts.HoursInDay = debt.DefaultHoursInDay
	}

	return e
}

// Run tracks an analysis and persists it. Nothing is persisted when any file fails.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "issuetrack.analysis", trace.WithAttributes(
		attribute.String("branch", req.Branch.Name),
		attribute.Int("files", len(req.Files)),
	))
	defer span.End()

	res, err := e.run(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return nil, err
	}

	return res, nil
}

func (e *Engine) run(ctx context.Context, req Request) (*Result, error) {
	err := validateRequest(req)
	if err != nil {
		return nil, err
	}

	meta := req.Branch

	_, known, err := e.store.Branch(ctx, meta.Name)
	if err != nil {
		return nil, fmt.Errorf("load branch %s: %w", meta.Name, err)
	}

	meta.FirstAnalysis = !known

	strategy, err := branch.Resolve(meta)
	if err != nil {
		return nil, err
	}

	lc := lifecycle.New(
		issue.ScanContext(req.Date),
		meta.Name,
		debt.NewCalculator(e.rules, debt.Durations{HoursInDay: e.opts.HoursInDay}),
		e.workflow,
		e.lcOptions...,
	)

	proc := e.newProcessor(req, meta, strategy, lc)

	states, err := e.trackFiles(ctx, proc, req.Files)
	if err != nil {
		return nil, err
	}

	removed, err := e.closeRemovedFiles(ctx, proc, strategy, req.Files)
	if err != nil {
		return nil, err
	}

	states = append(states, removed...)

	finish := e.newFinisher(meta, strategy, lc)

	res := &Result{Branch: meta, Strategy: strategy, Outcomes: make(map[string]int)}
	fileMeasures := make(map[string]component.Measures, len(states))
	paths := make([]string, 0, len(states))

	for _, st := range states {
		err = finish(ctx, st)
		if err != nil {
			return nil, err
		}

		e.metrics.RecordFile(ctx, observability.FileStats{Duration: st.duration, Outcomes: st.Outcomes})

		for k, v := range st.Outcomes {
			res.Outcomes[k] += v
		}

		res.Files = append(res.Files, st.FileResult)

		if !st.removed {
			fileMeasures[st.Path] = component.MeasuresOf(st.Issues)
			paths = append(paths, st.Path)
		}
	}

	res.Measures = component.Rollup(component.BuildTree(req.Project, paths), fileMeasures)

	if !e.opts.DryRun {
		res.Persisted, err = e.persist(ctx, req, meta, states)
		if err != nil {
			return nil, err
		}
	}

	e.logger.InfoContext(ctx, "analysis tracked",
		"project", req.Project,
		"branch", meta.Name,
		"strategy", strategy.String(),
		"files", len(states),
		"new", res.Outcomes[observability.OutcomeNew],
		"matched", res.Outcomes[observability.OutcomeMatched],
		"closed", res.Outcomes[observability.OutcomeClosed],
	)

	return res, nil
}

func validateRequest(req Request) error {
	if req.Branch.Name == "" {
		return ErrMissingBranch
	}

	seen := make(map[string]bool, len(req.Files))

	for _, f := range req.Files {
		if seen[f.Path] {
			return fmt.Errorf("%w: %s", ErrDuplicateFile, f.Path)
		}

		seen[f.Path] = true
	}

	return nil
}

func (e *Engine) newProcessor(
	req Request, meta branch.Metadata, strategy branch.Strategy, lc *lifecycle.Lifecycle,
) *fileProcessor {
	inputs := inputFactory{loader: e.store, halfBlock: e.opts.BlockHalfSize}

	var closedSince time.Time
	if e.opts.ClosedIssueMaxAge > 0 {
		closedSince = req.Date.Add(-e.opts.ClosedIssueMaxAge)
	}

	return &fileProcessor{
		project:     req.Project,
		meta:        meta,
		inputs:      inputs,
		delegator:   NewIssueTrackingDelegator(e.store, e.opts.BlockHalfSize, meta.Name, strategy),
		reopener:    tracking.NewStrictTracker[*issue.Issue, *issue.Issue](),
		lifecycle:   lc,
		rules:       e.rules,
		scm:         e.scm,
		attribution: e.opts.Attribution,
		closedSince: closedSince,
		tracer:      e.tracer,
	}
}

// trackFiles tracks files concurrently. The first failure cancels the files
// not started yet.
func (e *Engine) trackFiles(ctx context.Context, proc *fileProcessor, files []SourceFile) ([]*fileState, error) {
	workers := e.opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	states := make([]*fileState, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, f := range files {
		g.Go(func() error {
			err := gctx.Err()
			if err != nil {
				return err
			}

			st, err := proc.track(gctx, f)
			if err != nil {
				return err
			}

			states[i] = st

			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		return nil, err
	}

	return states, nil
}

// closeRemovedFiles closes the open issues of the branch on files missing
// from the analysis. On the first analysis of a long-lived branch the issues
// come from the merge branch, so nothing of the branch itself is closed.
func (e *Engine) closeRemovedFiles(
	ctx context.Context, proc *fileProcessor, strategy branch.Strategy, files []SourceFile,
) ([]*fileState, error) {
	if _, first := strategy.(branch.FirstAnalysisOfLongLivedBranch); first {
		return nil, nil
	}

	paths, err := e.store.OpenIssuePaths(ctx, proc.meta.Name)
	if err != nil {
		return nil, fmt.Errorf("load files of %s: %w", proc.meta.Name, err)
	}

	reported := make(map[string]bool, len(files))
	for _, f := range files {
		reported[f.Path] = true
	}

	var states []*fileState

	for _, path := range paths {
		if reported[path] {
			continue
		}

		st, err := proc.closeRemoved(ctx, path)
		if err != nil {
			return nil, err
		}

		states = append(states, st)
	}

	return states, nil
}

// newFinisher returns the sequential step of a file: cross-branch copies, then
// automatic transitions.
func (e *Engine) newFinisher(
	meta branch.Metadata, strategy branch.Strategy, lc *lifecycle.Lifecycle,
) func(context.Context, *fileState) error {
	var copyDecisions func(ctx context.Context, path string, newIssues []*issue.Issue) (int, error)

	switch s := strategy.(type) {
	case branch.ShortLivedBranch:
		copyDecisions = NewShortBranchIssueMerger(e.store, lc, meta.Name, s.Target).TryMerge
	case branch.MainBranch:
		copyDecisions = NewIssueStatusCopier(e.store, lc, meta.Name).UpdateStatus
	case branch.FirstAnalysisOfLongLivedBranch:
		// No short-lived branch can target a branch that was never analyzed.
	}

	return func(ctx context.Context, st *fileState) error {
		start := time.Now()

		if copyDecisions != nil {
			n, err := copyDecisions(ctx, st.Path, st.newIssues)
			if err != nil {
				return err
			}

			st.Outcomes[observability.OutcomeShortBranchMerged] = n
		}

		for _, iss := range st.Issues {
			err := lc.DoAutomaticTransition(iss)
			if err != nil {
				return fmt.Errorf("%s: %w", st.Path, err)
			}
		}

		st.duration += time.Since(start)

		return nil
	}
}

func (e *Engine) persist(
	ctx context.Context, req Request, meta branch.Metadata, states []*fileState,
) (storage.SaveStats, error) {
	a := storage.Analysis{
		Branch: storage.Branch{Name: meta.Name, Type: meta.Type, MergeBranch: meta.MergeBranch},
		Date:   req.Date,
	}

	for _, st := range states {
		a.Issues = append(a.Issues, st.Issues...)

		if !st.removed {
			a.Sources = append(a.Sources, storage.FileSource{Path: st.Path, LineHashes: st.lines.Hashes()})
		}
	}

	stats, err := e.store.Save(ctx, a)
	if err != nil {
		return storage.SaveStats{}, fmt.Errorf("persist analysis of %s: %w", meta.Name, err)
	}

	e.metrics.RecordPersist(ctx, observability.PersistStats(stats))

	return stats, nil
}
