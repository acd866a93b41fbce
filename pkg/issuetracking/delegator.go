package issuetracking

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/issuetrack/pkg/branch"
	"github.com/Sumatoshi-tech/issuetrack/pkg/issue"
	"github.com/Sumatoshi-tech/issuetrack/pkg/storage"
	"github.com/Sumatoshi-tech/issuetrack/pkg/tracking"
)

// ErrUnknownStrategy is returned for a branch strategy the delegator can't dispatch.
var ErrUnknownStrategy = errors.New("unknown branch strategy")

// FileTracking is the result of tracking the raws of one file.
type FileTracking struct {
	Tracking *tracking.Tracking[*issue.Issue, *issue.Issue]
	// CopyFrom names the branch the bases were loaded from when it is not the
	// analyzed branch. Matches are then copies and unmatched bases stay open.
	CopyFrom string
	// OnTarget are the raws of a short-lived branch that already exist on its
	// merge branch. They are not tracked any further.
	OnTarget []*issue.Issue
}

// IssueTrackingDelegator tracks the raws of a file with the strategy of the
// analyzed branch.
type IssueTrackingDelegator struct {
	inputs   inputFactory
	branch   string
	strategy branch.Strategy
	tracker  *tracking.Tracker[*issue.Issue, *issue.Issue]
}

// NewIssueTrackingDelegator binds a delegator to the analyzed branch. Blocks
// span 2*halfBlock+1 lines.
func NewIssueTrackingDelegator(
	loader storage.Loader, halfBlock int, branchName string, strategy branch.Strategy,
) *IssueTrackingDelegator {
	return &IssueTrackingDelegator{
		inputs:   inputFactory{loader: loader, halfBlock: halfBlock},
		branch:   branchName,
		strategy: strategy,
		tracker:  tracking.NewTracker[*issue.Issue, *issue.Issue](),
	}
}

// Track matches raw against the bases the strategy selects.
func (d *IssueTrackingDelegator) Track(ctx context.Context, path string, raw issueInput) (FileTracking, error) {
	switch s := d.strategy.(type) {
	case branch.MainBranch:
		base, err := d.inputs.open(ctx, d.branch, path)
		if err != nil {
			return FileTracking{}, err
		}

		return FileTracking{Tracking: d.tracker.Track(raw, base)}, nil

	case branch.FirstAnalysisOfLongLivedBranch:
		base, err := d.inputs.open(ctx, s.Target, path)
		if err != nil {
			return FileTracking{}, err
		}

		return FileTracking{Tracking: d.tracker.Track(raw, base), CopyFrom: s.Target}, nil

	case branch.ShortLivedBranch:
		return d.trackShortLived(ctx, path, raw, s.Target)

	default:
		return FileTracking{}, fmt.Errorf("%w: %v", ErrUnknownStrategy, d.strategy)
	}
}

func (d *IssueTrackingDelegator) trackShortLived(ctx context.Context, path string, raw issueInput, target string) (FileTracking, error) {
	targetInput, err := d.inputs.open(ctx, target, path)
	if err != nil {
		return FileTracking{}, err
	}

	onTarget := d.tracker.Track(raw, targetInput)

	kept := onTarget.UnmatchedRaws()
	dropped := make([]*issue.Issue, 0, onTarget.MatchCount())

	for _, p := range onTarget.Pairs() {
		dropped = append(dropped, p.Raw)
	}

	base, err := d.inputs.open(ctx, d.branch, path)
	if err != nil {
		return FileTracking{}, err
	}

	return FileTracking{
		Tracking: d.tracker.Track(d.inputs.subset(raw, kept), base),
		OnTarget: dropped,
	}, nil
}
