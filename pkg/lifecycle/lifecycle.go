// Package lifecycle applies the state changes that follow tracking: new issues
// are initialized, matched issues inherit the identity and user decisions of
// their base, and issues inherited from other branches keep their history.
package lifecycle

import (
	"fmt"
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/Sumatoshi-tech/issuetrack/pkg/issue"
)

// EffortCalculator computes remediation effort.
type EffortCalculator interface {
	Calculate(iss *issue.Issue) (*int64, error)
}

// Transitioner applies automatic workflow transitions.
type Transitioner interface {
	DoAutomaticTransition(iss *issue.Issue, ctx issue.ChangeContext) error
}

// Lifecycle is bound to one analysis: its change context and the analyzed branch.
// It holds no per-file state and is safe for concurrent use when its
// collaborators are.
type Lifecycle struct {
	ctx      issue.ChangeContext
	branch   string
	effort   EffortCalculator
	workflow Transitioner
	newKey   func() string
}

// Option configures a Lifecycle.
type Option func(*Lifecycle)

// WithKeyGenerator replaces the random key generator.
func WithKeyGenerator(gen func() string) Option {
	return func(l *Lifecycle) { l.newKey = gen }
}

// New creates a Lifecycle for an analysis of branch.
func New(ctx issue.ChangeContext, branch string, effort EffortCalculator, wf Transitioner, opts ...Option) *Lifecycle {
	l := &Lifecycle{
		ctx:      ctx,
		branch:   branch,
		effort:   effort,
		workflow: wf,
		newKey:   uuid.NewString,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Context returns the change context of the analysis.
func (l *Lifecycle) Context() issue.ChangeContext {
	return l.ctx
}

// InitNewOpenIssue gives a raw issue its identity and computes its effort.
func (l *Lifecycle) InitNewOpenIssue(iss *issue.Issue) error {
	iss.Key = l.newKey()
	iss.New = true
	iss.CreationDate = l.ctx.Date
	iss.UpdateDate = l.ctx.Date
	iss.Status = issue.StatusOpen
	iss.Resolution = issue.ResolutionNone

	effort, err := l.effort.Calculate(iss)
	if err != nil {
		return fmt.Errorf("new issue on %s: %w", iss.Path, err)
	}

	iss.Effort = effort

	return nil
}

// MergeExistingOpenIssue makes raw the continuation of base. Identity, dates
// and user decisions come from base; what the analysis computes comes from raw
// and is recorded against the values of base.
func (l *Lifecycle) MergeExistingOpenIssue(raw, base *issue.Issue) error {
	raw.Key = base.Key
	raw.New = false

	err := l.copyFields(raw, base)
	if err != nil {
		return err
	}

	err = l.recordPastValues(raw, base)
	if err != nil {
		return err
	}

	raw.Changes = base.Changes
	raw.Comments = base.Comments

	return nil
}

// CopyExistingOpenIssueFromLongLivingBranch seeds the first analysis of a
// long-lived branch with an issue of the branch it was created from. What the
// analysis computes is recorded against the values of base, as in a merge.
func (l *Lifecycle) CopyExistingOpenIssueFromLongLivingBranch(raw, base *issue.Issue, fromBranch string) error {
	raw.Key = l.newKey()
	raw.New = false

	err := l.copyFromOtherBranch(raw, base)
	if err != nil {
		return err
	}

	err = l.recordPastValues(raw, base)
	if err != nil {
		return err
	}

	raw.SetFieldChange(l.ctx, issue.FieldFromLongBranch, fromBranch, l.branch)

	return nil
}

// MergeConfirmedOrResolvedFromShortLivingBranch copies the decisions made on
// an equivalent issue of another short-lived branch onto a new issue.
func (l *Lifecycle) MergeConfirmedOrResolvedFromShortLivingBranch(raw, base *issue.Issue, fromBranch string) error {
	err := l.copyFromOtherBranch(raw, base)
	if err != nil {
		return err
	}

	raw.SetFieldChange(l.ctx, issue.FieldFromShortBranch, fromBranch, l.branch)

	return nil
}

// DoAutomaticTransition delegates to the workflow.
func (l *Lifecycle) DoAutomaticTransition(iss *issue.Issue) error {
	err := l.workflow.DoAutomaticTransition(iss, l.ctx)
	if err != nil {
		return fmt.Errorf("automatic transition: %w", err)
	}

	return nil
}

// recordPastValues keeps the analysis values of raw and records the changes
// from base. A manual severity on base wins over the analysis.
func (l *Lifecycle) recordPastValues(raw, base *issue.Issue) error {
	if base.ManualSeverity {
		raw.ManualSeverity = true
		raw.Severity = base.Severity
	} else {
		_, err := raw.SetPastSeverity(base.Severity, l.ctx)
		if err != nil {
			return fmt.Errorf("issue %s: %w", base.Key, err)
		}
	}

	raw.SetPastLine(base.Line)
	raw.SetPastLocations(base.Locations)
	raw.SetPastMessage(base.Message, l.ctx)
	raw.SetPastGap(base.Gap, l.ctx)
	raw.SetPastEffort(base.Effort, l.ctx)

	if raw.Checksum != base.Checksum {
		raw.Changed = true
	}

	return nil
}

func (l *Lifecycle) copyFromOtherBranch(to, from *issue.Issue) error {
	to.Copied = true

	err := l.copyFields(to, from)
	if err != nil {
		return err
	}

	if from.ManualSeverity {
		to.ManualSeverity = true
		to.Severity = from.Severity
	}

	for _, c := range from.Comments {
		c.Key = l.newKey()
		c.IssueKey = to.Key
		to.AddComment(c)
	}

	for _, change := range from.Changes {
		copied := change.Clone()
		copied.Key = l.newKey()
		copied.IssueKey = to.Key
		to.AddChange(copied)
	}

	return nil
}

func (l *Lifecycle) copyFields(to, from *issue.Issue) error {
	to.Type = from.Type
	to.CreationDate = from.CreationDate
	to.UpdateDate = from.UpdateDate
	to.CloseDate = from.CloseDate
	to.Resolution = from.Resolution
	to.Status = from.Status
	to.Assignee = from.Assignee
	to.Author = from.Author
	to.Tags = slices.Clone(from.Tags)
	to.Attributes = maps.Clone(from.Attributes)
	to.OnDisabledRule = from.OnDisabledRule
	to.SelectedAt = from.SelectedAt

	effort, err := l.effort.Calculate(to)
	if err != nil {
		return fmt.Errorf("issue %s on %s: %w", from.Key, to.Path, err)
	}

	to.Effort = effort

	return nil
}
