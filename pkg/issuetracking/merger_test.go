package issuetracking_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/issuetrack/pkg/branch"
	"github.com/Sumatoshi-tech/issuetrack/pkg/debt"
	"github.com/Sumatoshi-tech/issuetrack/pkg/fingerprint"
	"github.com/Sumatoshi-tech/issuetrack/pkg/issue"
	"github.com/Sumatoshi-tech/issuetrack/pkg/issuetracking"
	"github.com/Sumatoshi-tech/issuetrack/pkg/lifecycle"
	"github.com/Sumatoshi-tech/issuetrack/pkg/storage"
	"github.com/Sumatoshi-tech/issuetrack/pkg/storage/memory"
	"github.com/Sumatoshi-tech/issuetrack/pkg/workflow"
)

func newLifecycle(t *testing.T, branchName string) *lifecycle.Lifecycle {
	t.Helper()

	return lifecycle.New(
		issue.ScanContext(day(5)),
		branchName,
		debt.NewCalculator(testRules(t), debt.Durations{}),
		workflow.New(),
	)
}

// sibling is the issue C of sourceLines as stored on another short-lived branch.
func sibling(key string, status issue.Status, resolution issue.Resolution, updated time.Time) *issue.Issue {
	c := issueC()
	c.Key = key
	c.Checksum = fingerprint.HashLine(sourceLines[c.Line-1])
	c.Status = status
	c.Resolution = resolution
	c.UpdateDate = updated

	return c
}

func newIssueC() *issue.Issue {
	c := issueC()
	c.Key = "NEW"
	c.New = true
	c.Status = issue.StatusOpen
	c.Checksum = fingerprint.HashLine(sourceLines[c.Line-1])

	return c
}

func TestShortBranchIssueMerger_PrefersResolved(t *testing.T) {
	t.Parallel()

	// The resolved candidate is loaded first, in the middle and last.
	for resolvedAt := range 3 {
		t.Run(fmt.Sprintf("resolved loaded at %d", resolvedAt), func(t *testing.T) {
			t.Parallel()

			store := memory.New()

			for i := range 3 {
				name := fmt.Sprintf("feature/%d", i)
				updated := day(4).Add(-time.Duration(i) * time.Hour)

				cand := sibling("K"+name, issue.StatusConfirmed, issue.ResolutionNone, updated)
				if i == resolvedAt {
					cand = sibling("K"+name, issue.StatusResolved, issue.ResolutionFalsePositive, updated)
				}

				seedBranch(t, store, storage.Branch{Name: name, Type: branch.TypeShort, MergeBranch: "main"}, cand)
			}

			target := newIssueC()
			merger := issuetracking.NewShortBranchIssueMerger(store, newLifecycle(t, "feature/x"), "feature/x", "main")

			n, err := merger.TryMerge(context.Background(), samplePath, []*issue.Issue{target})
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			assert.Equal(t, issue.StatusResolved, target.Status)
			assert.Equal(t, issue.ResolutionFalsePositive, target.Resolution)
			assert.True(t, target.Copied)
			assert.Equal(t, "NEW", target.Key)

			require.NotNil(t, target.CurrentChange)
			diff, ok := target.CurrentChange.Get(issue.FieldFromShortBranch)
			require.True(t, ok)
			assert.Equal(t, issue.Diff{Old: fmt.Sprintf("feature/%d", resolvedAt), New: "feature/x"}, diff)
		})
	}
}

func TestShortBranchIssueMerger_PrefersResolvedOnAnotherLine(t *testing.T) {
	t.Parallel()

	store := memory.New()
	seedBranch(t, store, storage.Branch{Name: "feature/a", Type: branch.TypeShort, MergeBranch: "main"},
		sibling("A", issue.StatusConfirmed, issue.ResolutionNone, day(3)))

	moved := sibling("B", issue.StatusResolved, issue.ResolutionFalsePositive, day(1))
	moved.Line = 9
	seedBranch(t, store, storage.Branch{Name: "feature/b", Type: branch.TypeShort, MergeBranch: "main"}, moved)

	target := newIssueC()
	merger := issuetracking.NewShortBranchIssueMerger(store, newLifecycle(t, "feature/x"), "feature/x", "main")

	n, err := merger.TryMerge(context.Background(), samplePath, []*issue.Issue{target})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, issue.StatusResolved, target.Status)
	assert.Equal(t, issue.ResolutionFalsePositive, target.Resolution)

	diff, ok := target.CurrentChange.Get(issue.FieldFromShortBranch)
	require.True(t, ok)
	assert.Equal(t, "feature/b", diff.Old)
}

func TestShortBranchIssueMerger_EachCandidateCopiedOnce(t *testing.T) {
	t.Parallel()

	store := memory.New()
	seedBranch(t, store, storage.Branch{Name: "feature/a", Type: branch.TypeShort, MergeBranch: "main"},
		sibling("A", issue.StatusResolved, issue.ResolutionWontFix, day(1)))

	first, second := newIssueC(), newIssueC()
	second.Key = "NEW2"
	merger := issuetracking.NewShortBranchIssueMerger(store, newLifecycle(t, "feature/x"), "feature/x", "main")

	n, err := merger.TryMerge(context.Background(), samplePath, []*issue.Issue{first, second})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, issue.StatusResolved, first.Status)
	assert.Equal(t, issue.StatusOpen, second.Status)
}

func TestShortBranchIssueMerger_FirstInLoadOrderAmongEquals(t *testing.T) {
	t.Parallel()

	store := memory.New()
	seedBranch(t, store, storage.Branch{Name: "feature/old", Type: branch.TypeShort, MergeBranch: "main"},
		sibling("OLD", issue.StatusConfirmed, issue.ResolutionNone, day(1)))
	seedBranch(t, store, storage.Branch{Name: "feature/recent", Type: branch.TypeShort, MergeBranch: "main"},
		sibling("RECENT", issue.StatusConfirmed, issue.ResolutionNone, day(3)))

	target := newIssueC()
	merger := issuetracking.NewShortBranchIssueMerger(store, newLifecycle(t, "feature/x"), "feature/x", "main")

	_, err := merger.TryMerge(context.Background(), samplePath, []*issue.Issue{target})
	require.NoError(t, err)

	assert.Equal(t, issue.StatusConfirmed, target.Status)
	diff, ok := target.CurrentChange.Get(issue.FieldFromShortBranch)
	require.True(t, ok)
	assert.Equal(t, "feature/recent", diff.Old)
}

func TestShortBranchIssueMerger_CopiesHistoryWithNewKeys(t *testing.T) {
	t.Parallel()

	store := memory.New()
	cand := sibling("SIB", issue.StatusResolved, issue.ResolutionWontFix, day(2))
	cand.Comments = []issue.Comment{{Key: "CM1", IssueKey: "SIB", User: "arthur", Markdown: "intended"}}
	cand.Changes = []issue.FieldDiffs{{Key: "CH1", IssueKey: "SIB", Diffs: map[string]issue.Diff{
		issue.FieldResolution: {New: string(issue.ResolutionWontFix)},
	}}}
	seedBranch(t, store, storage.Branch{Name: "feature/a", Type: branch.TypeShort, MergeBranch: "main"}, cand)

	target := newIssueC()
	merger := issuetracking.NewShortBranchIssueMerger(store, newLifecycle(t, "feature/b"), "feature/b", "main")

	_, err := merger.TryMerge(context.Background(), samplePath, []*issue.Issue{target})
	require.NoError(t, err)

	require.Len(t, target.Comments, 1)
	assert.Equal(t, "NEW", target.Comments[0].IssueKey)
	assert.NotEqual(t, "CM1", target.Comments[0].Key)
	require.Len(t, target.Changes, 1)
	assert.Equal(t, "NEW", target.Changes[0].IssueKey)
	assert.NotEqual(t, "CH1", target.Changes[0].Key)
}

func TestShortBranchIssueMerger_IgnoresOwnBranchAndOtherTargets(t *testing.T) {
	t.Parallel()

	store := memory.New()
	seedBranch(t, store, storage.Branch{Name: "feature/x", Type: branch.TypeShort, MergeBranch: "main"},
		sibling("SELF", issue.StatusResolved, issue.ResolutionFalsePositive, day(1)))
	seedBranch(t, store, storage.Branch{Name: "feature/y", Type: branch.TypeShort, MergeBranch: "develop"},
		sibling("OTHER", issue.StatusResolved, issue.ResolutionFalsePositive, day(1)))

	target := newIssueC()
	merger := issuetracking.NewShortBranchIssueMerger(store, newLifecycle(t, "feature/x"), "feature/x", "main")

	n, err := merger.TryMerge(context.Background(), samplePath, []*issue.Issue{target})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, issue.StatusOpen, target.Status)
	assert.False(t, target.Copied)
}

// failingLoader fails every call so that tests can assert nothing is loaded.
type failingLoader struct {
	storage.Loader

	calls int
}

var errUnexpectedLoad = errors.New("unexpected load")

func (f *failingLoader) ShortBranchIssues(context.Context, string, string, string) ([]*issue.Issue, error) {
	f.calls++

	return nil, errUnexpectedLoad
}

func TestShortBranchIssueMerger_NoNewIssuesLoadsNothing(t *testing.T) {
	t.Parallel()

	loader := &failingLoader{}
	merger := issuetracking.NewShortBranchIssueMerger(loader, newLifecycle(t, "feature/x"), "feature/x", "main")

	n, err := merger.TryMerge(context.Background(), samplePath, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, loader.calls)
}

func TestShortBranchIssueMerger_LoadErrorIsReturned(t *testing.T) {
	t.Parallel()

	merger := issuetracking.NewShortBranchIssueMerger(&failingLoader{}, newLifecycle(t, "feature/x"), "feature/x", "main")

	_, err := merger.TryMerge(context.Background(), samplePath, []*issue.Issue{newIssueC()})
	require.ErrorIs(t, err, errUnexpectedLoad)
}

func TestIssueStatusCopier_UpdateStatus(t *testing.T) {
	t.Parallel()

	store := memory.New()
	seedBranch(t, store, storage.Branch{Name: "feature/a", Type: branch.TypeShort, MergeBranch: "main"},
		sibling("SIB", issue.StatusConfirmed, issue.ResolutionNone, day(1)))

	target := newIssueC()
	copier := issuetracking.NewIssueStatusCopier(store, newLifecycle(t, "main"), "main")

	n, err := copier.UpdateStatus(context.Background(), samplePath, []*issue.Issue{target})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, issue.StatusConfirmed, target.Status)
}
