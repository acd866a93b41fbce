package issuetracking

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/issuetrack/pkg/branch"
	"github.com/Sumatoshi-tech/issuetrack/pkg/fingerprint"
	"github.com/Sumatoshi-tech/issuetrack/pkg/issue"
	"github.com/Sumatoshi-tech/issuetrack/pkg/lifecycle"
	"github.com/Sumatoshi-tech/issuetrack/pkg/observability"
	"github.com/Sumatoshi-tech/issuetrack/pkg/rules"
	"github.com/Sumatoshi-tech/issuetrack/pkg/scm"
	"github.com/Sumatoshi-tech/issuetrack/pkg/tracking"
)

// SourceFile is what an analysis reports for one file.
type SourceFile struct {
	Path   string
	Lines  []string
	Issues []*issue.Issue
}

// FileResult is the outcome of tracking one file.
type FileResult struct {
	Path string
	// Issues holds the raws of the file, with their final state, followed by
	// the bases that were closed.
	Issues []*issue.Issue
	// OnTarget holds the raws left out because they already exist on the merge branch.
	OnTarget []*issue.Issue
	Outcomes map[string]int
}

type fileState struct {
	FileResult

	lines     *fingerprint.LineHashSequence
	newIssues []*issue.Issue
	duration  time.Duration
	// removed is set for a file that has open issues but is missing from the
	// analysis. Its fingerprint is not stored.
	removed bool
}

// fileProcessor tracks files of one analysis. It keeps no per-file state so
// files can be tracked concurrently.
type fileProcessor struct {
	project     string
	meta        branch.Metadata
	inputs      inputFactory
	delegator   *IssueTrackingDelegator
	reopener    *tracking.Tracker[*issue.Issue, *issue.Issue]
	lifecycle   *lifecycle.Lifecycle
	rules       rules.Repository
	scm         scm.Provider
	attribution Attribution
	// closedSince is the oldest close date of issues that may be reopened;
	// zero disables reopening.
	closedSince time.Time
	tracer      trace.Tracer
}

// track builds the inputs of a file, tracks it and applies the lifecycle to
// matched, new and disappeared issues.
func (p *fileProcessor) track(ctx context.Context, f SourceFile) (*fileState, error) {
	start := time.Now()

	ctx, span := p.tracer.Start(ctx, "issuetrack.file", trace.WithAttributes(attribute.String("path", f.Path)))
	defer span.End()

	err := p.prepareRaws(f)
	if err != nil {
		return nil, err
	}

	st := &fileState{
		FileResult: FileResult{Path: f.Path, Outcomes: make(map[string]int)},
		lines:      fingerprint.NewLineHashSequence(f.Lines),
	}

	raw := p.inputs.raw(st.lines, f.Issues)

	ft, err := p.delegator.Track(ctx, f.Path, raw)
	if err != nil {
		return nil, err
	}

	st.OnTarget = ft.OnTarget
	st.Outcomes[observability.OutcomeAlreadyOnTarget] = len(ft.OnTarget)

	for _, pair := range ft.Tracking.Pairs() {
		err = p.applyMatch(pair.Raw, pair.Base, ft.CopyFrom)
		if err != nil {
			return nil, err
		}

		if ft.CopyFrom != "" {
			st.Outcomes[observability.OutcomeCopied]++
		} else {
			st.Outcomes[observability.OutcomeMatched]++
		}

		st.Issues = append(st.Issues, pair.Raw)
	}

	unmatched := ft.Tracking.UnmatchedRaws()

	if ft.CopyFrom == "" {
		unmatched, err = p.reopenClosed(ctx, st, unmatched)
		if err != nil {
			return nil, err
		}
	}

	for _, r := range unmatched {
		err = p.lifecycle.InitNewOpenIssue(r)
		if err != nil {
			return nil, err
		}

		info, _ := p.scm.Info(f.Path)
		p.attribution.Apply(r, info, p.meta.FirstAnalysis, p.lifecycle.Context())

		st.newIssues = append(st.newIssues, r)
		st.Issues = append(st.Issues, r)
	}

	st.Outcomes[observability.OutcomeNew] = len(st.newIssues)

	if ft.CopyFrom == "" {
		for _, base := range ft.Tracking.UnmatchedBases() {
			p.markClosing(base)
			st.Issues = append(st.Issues, base)
			st.Outcomes[observability.OutcomeClosed]++
		}
	}

	st.duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("issues.new", st.Outcomes[observability.OutcomeNew]),
		attribute.Int("issues.matched", st.Outcomes[observability.OutcomeMatched]),
		attribute.Int("issues.closed", st.Outcomes[observability.OutcomeClosed]),
	)

	return st, nil
}

// closeRemoved closes the open issues of a file the analysis no longer reports.
func (p *fileProcessor) closeRemoved(ctx context.Context, path string) (*fileState, error) {
	start := time.Now()

	ctx, span := p.tracer.Start(ctx, "issuetrack.file", trace.WithAttributes(
		attribute.String("path", path),
		attribute.Bool("removed", true),
	))
	defer span.End()

	open, err := p.inputs.loader.OpenIssues(ctx, p.meta.Name, path)
	if err != nil {
		return nil, fmt.Errorf("load open issues of %s: %w", path, err)
	}

	st := &fileState{
		FileResult: FileResult{Path: path, Outcomes: make(map[string]int)},
		lines:      fingerprint.FromHashes(nil),
		removed:    true,
	}

	for _, base := range open {
		p.markClosing(base)
		st.Issues = append(st.Issues, base)
	}

	st.Outcomes[observability.OutcomeClosed] = len(open)
	st.duration = time.Since(start)

	span.SetAttributes(attribute.Int("issues.closed", len(open)))

	return st, nil
}

// prepareRaws scopes the raws to the file and fills in what their rule defines.
func (p *fileProcessor) prepareRaws(f SourceFile) error {
	for _, r := range f.Issues {
		rule, err := p.rules.Get(r.RuleKey)
		if err != nil {
			return fmt.Errorf("issue on %s: %w", f.Path, err)
		}

		r.ProjectKey = p.project
		r.Branch = p.meta.Name
		r.Path = f.Path
		r.Tags = issue.NormalizeTags(r.Tags)

		if r.Severity == "" {
			r.Severity = issue.Severity(rule.Severity)
		}

		if r.Type == "" {
			r.Type = issue.Type(rule.Type)
		}

		if rule.External {
			r.FromExternalRuleEngine = true
		}
	}

	return nil
}

func (p *fileProcessor) applyMatch(raw, base *issue.Issue, copyFrom string) error {
	var err error

	if copyFrom != "" {
		err = p.lifecycle.CopyExistingOpenIssueFromLongLivingBranch(raw, base, copyFrom)
	} else {
		err = p.lifecycle.MergeExistingOpenIssue(raw, base)
	}

	if err != nil {
		return fmt.Errorf("track %s: %w", raw.Path, err)
	}

	return nil
}

// reopenClosed matches raws against recently closed issues of the file and
// returns the raws that are still unmatched.
func (p *fileProcessor) reopenClosed(ctx context.Context, st *fileState, raws []*issue.Issue) ([]*issue.Issue, error) {
	if p.closedSince.IsZero() || len(raws) == 0 {
		return raws, nil
	}

	closed, err := p.inputs.loader.ClosedIssuesSince(ctx, p.meta.Name, st.Path, p.closedSince)
	if err != nil {
		return nil, fmt.Errorf("load closed issues of %s: %w", st.Path, err)
	}

	if len(closed) == 0 {
		return raws, nil
	}

	result := p.reopener.Track(tracking.NewInput(st.lines, raws), tracking.NewInput(nil, closed))

	for _, pair := range result.Pairs() {
		err = p.applyMatch(pair.Raw, pair.Base, "")
		if err != nil {
			return nil, err
		}

		st.Issues = append(st.Issues, pair.Raw)
		st.Outcomes[observability.OutcomeReopened]++
	}

	return result.UnmatchedRaws(), nil
}

// markClosing flags a base without raw so that the workflow closes it.
// Issues of removed or unknown rules are tolerated and closed as removed.
func (p *fileProcessor) markClosing(base *issue.Issue) {
	base.BeingClosed = true

	rule, ok := p.rules.Find(base.RuleKey)
	if !ok || !rule.IsActive() {
		base.OnDisabledRule = true
	}
}
