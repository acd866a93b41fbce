package issuetracking

import (
	"context"
	"fmt"

	"github.com/Sumatoshi-tech/issuetrack/pkg/issue"
	"github.com/Sumatoshi-tech/issuetrack/pkg/lifecycle"
	"github.com/Sumatoshi-tech/issuetrack/pkg/storage"
	"github.com/Sumatoshi-tech/issuetrack/pkg/tracking"
)

// siblingCopier copies the decisions taken on short-lived branches onto new
// issues of the analyzed branch.
type siblingCopier struct {
	loader    storage.Loader
	lifecycle *lifecycle.Lifecycle
	tracker   *tracking.Tracker[*issue.Issue, issue.ShortBranchIssue]
}

func newSiblingCopier(loader storage.Loader, lc *lifecycle.Lifecycle) siblingCopier {
	return siblingCopier{
		loader:    loader,
		lifecycle: lc,
		tracker:   tracking.NewSimpleTracker[*issue.Issue, issue.ShortBranchIssue](),
	}
}

// copyDecisions returns how many new issues received a decision. Among
// candidates matching the same issue a RESOLVED one wins, then load order.
func (c siblingCopier) copyDecisions(
	ctx context.Context, mergeBranch, excludeBranch, path string, newIssues []*issue.Issue,
) (int, error) {
	if len(newIssues) == 0 {
		return 0, nil
	}

	candidates, err := c.loader.ShortBranchIssues(ctx, mergeBranch, excludeBranch, path)
	if err != nil {
		return 0, fmt.Errorf("load short-lived branch issues of %s: %w", path, err)
	}

	if len(candidates) == 0 {
		return 0, nil
	}

	projections := make([]issue.ShortBranchIssue, len(candidates))
	for i, cand := range candidates {
		projections[i] = issue.NewShortBranchIssue(cand, cand.Branch)
	}

	matches := c.tracker.Candidates(
		tracking.NewInput(nil, newIssues),
		tracking.NewInput(nil, projections),
	)

	used := make([]bool, len(candidates))
	copied := 0

	for ri, list := range matches {
		best := -1

		for _, ci := range list {
			if used[ci] {
				continue
			}

			if best < 0 || resolvedRank(candidates[ci]) < resolvedRank(candidates[best]) {
				best = ci
			}
		}

		if best < 0 {
			continue
		}

		used[best] = true
		from := candidates[best]

		err = c.lifecycle.MergeConfirmedOrResolvedFromShortLivingBranch(newIssues[ri], from, projections[best].BranchName())
		if err != nil {
			return 0, fmt.Errorf("copy decision of %s onto %s: %w", from.Key, path, err)
		}

		copied++
	}

	return copied, nil
}

func resolvedRank(i *issue.Issue) int {
	if i.Status == issue.StatusResolved {
		return 0
	}

	return 1
}

// ShortBranchIssueMerger copies onto new issues of a short-lived branch the
// decisions taken on equivalent issues of sibling branches, i.e. other
// short-lived branches merging into the same branch.
type ShortBranchIssueMerger struct {
	copier siblingCopier
	branch string
	target string
}

// NewShortBranchIssueMerger binds a merger to a short-lived branch and its merge branch.
func NewShortBranchIssueMerger(
	loader storage.Loader, lc *lifecycle.Lifecycle, branchName, target string,
) *ShortBranchIssueMerger {
	return &ShortBranchIssueMerger{copier: newSiblingCopier(loader, lc), branch: branchName, target: target}
}

// TryMerge returns how many of the new issues of a file received a decision.
func (m *ShortBranchIssueMerger) TryMerge(ctx context.Context, path string, newIssues []*issue.Issue) (int, error) {
	return m.copier.copyDecisions(ctx, m.target, m.branch, path, newIssues)
}

// IssueStatusCopier copies onto new issues of a main or long-lived branch the
// decisions taken on equivalent issues of short-lived branches merging into it.
type IssueStatusCopier struct {
	copier siblingCopier
	branch string
}

// NewIssueStatusCopier binds a copier to the analyzed branch.
func NewIssueStatusCopier(loader storage.Loader, lc *lifecycle.Lifecycle, branchName string) *IssueStatusCopier {
	return &IssueStatusCopier{copier: newSiblingCopier(loader, lc), branch: branchName}
}

// UpdateStatus returns how many of the new issues of a file received a decision.
func (c *IssueStatusCopier) UpdateStatus(ctx context.Context, path string, newIssues []*issue.Issue) (int, error) {
	return c.copier.copyDecisions(ctx, c.branch, "", path, newIssues)
}
