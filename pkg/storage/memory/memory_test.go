package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/issuetrack/pkg/branch"
	"github.com/Sumatoshi-tech/issuetrack/pkg/issue"
	"github.com/Sumatoshi-tech/issuetrack/pkg/storage"
	"github.com/Sumatoshi-tech/issuetrack/pkg/storage/memory"
)

type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(time.Second)

	return c.now
}

func newStore() *memory.Store {
	clock := &tickingClock{now: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}

	return memory.New(memory.WithClock(clock.Now))
}

var mainBranch = storage.Branch{Name: "main", Type: branch.TypeMain}

func seed(t *testing.T, s *memory.Store, b storage.Branch, issues ...*issue.Issue) {
	t.Helper()

	for _, i := range issues {
		i.New = true
		if i.Branch == "" {
			i.Branch = b.Name
		}
	}

	_, err := s.Save(context.Background(), storage.Analysis{Branch: b, Date: time.Now(), Issues: issues})
	require.NoError(t, err)
}

func TestSaveAndLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore()

	stats, err := s.Save(ctx, storage.Analysis{
		Branch: mainBranch,
		Date:   time.Now(),
		Issues: []*issue.Issue{
			{Key: "A", Branch: "main", Path: "a.go", Status: issue.StatusOpen, New: true},
			{Key: "B", Branch: "main", Path: "a.go", Status: issue.StatusClosed, Resolution: issue.ResolutionFixed, New: true},
		},
		Sources: []storage.FileSource{{Path: "a.go", LineHashes: []string{"h1", "h2"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Inserts)

	b, ok, err := s.Branch(ctx, "main")
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, b.LastAnalysis.IsZero())

	open, err := s.OpenIssues(ctx, "main", "a.go")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "A", open[0].Key)
	assert.False(t, open[0].New)
	assert.False(t, open[0].SelectedAt.IsZero())

	hashes, ok, err := s.LineHashes(ctx, "main", "a.go")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"h1", "h2"}, hashes)

	_, ok, err = s.Branch(ctx, "feature")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadedIssuesAreCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore()
	seed(t, s, mainBranch, &issue.Issue{Key: "A", Path: "a.go", Status: issue.StatusOpen})

	open, err := s.OpenIssues(ctx, "main", "a.go")
	require.NoError(t, err)
	open[0].Message = "mutated"

	again, err := s.Issue(ctx, "A")
	require.NoError(t, err)
	assert.Empty(t, again.Message)
}

func TestClosedIssuesSince(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore()
	recent := time.Date(2025, 2, 20, 0, 0, 0, 0, time.UTC)
	old := recent.AddDate(-1, 0, 0)

	seed(t, s, mainBranch,
		&issue.Issue{Key: "old", Path: "a.go", Status: issue.StatusClosed, CloseDate: old},
		&issue.Issue{Key: "recent", Path: "a.go", Status: issue.StatusClosed, CloseDate: recent},
	)

	closed, err := s.ClosedIssuesSince(ctx, "main", "a.go", recent.AddDate(0, -1, 0))
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, "recent", closed[0].Key)
}

func TestShortBranchIssues(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore()
	day := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	seed(t, s, mainBranch)
	seed(t, s, storage.Branch{Name: "feature/a", Type: branch.TypeShort, MergeBranch: "main"},
		&issue.Issue{Key: "a1", Path: "x.go", Status: issue.StatusConfirmed, UpdateDate: day},
		&issue.Issue{Key: "a2", Path: "x.go", Status: issue.StatusOpen, UpdateDate: day},
	)
	seed(t, s, storage.Branch{Name: "feature/b", Type: branch.TypeShort, MergeBranch: "main"},
		&issue.Issue{Key: "b1", Path: "x.go", Status: issue.StatusResolved, Resolution: issue.ResolutionWontFix, UpdateDate: day.AddDate(0, 0, 1)},
	)
	seed(t, s, storage.Branch{Name: "feature/c", Type: branch.TypeShort, MergeBranch: "develop"},
		&issue.Issue{Key: "c1", Path: "x.go", Status: issue.StatusConfirmed, UpdateDate: day},
	)

	got, err := s.ShortBranchIssues(ctx, "main", "", "x.go")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b1", got[0].Key)
	assert.Equal(t, "a1", got[1].Key)

	got, err = s.ShortBranchIssues(ctx, "main", "feature/b", "x.go")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].Key)
}

func TestSave_ConcurrentUserEditIsMerged(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore()
	seed(t, s, mainBranch, &issue.Issue{Key: "A", Path: "a.go", Status: issue.StatusOpen, Severity: issue.SeverityMajor})

	loaded, err := s.Issue(ctx, "A")
	require.NoError(t, err)

	err = s.ApplyUserChange(ctx, "A", func(i *issue.Issue) error {
		i.Assignee = "arthur"
		i.Status = issue.StatusResolved
		i.Resolution = issue.ResolutionFalsePositive

		return nil
	})
	require.NoError(t, err)

	loaded.Severity = issue.SeverityBlocker
	loaded.Status = issue.StatusReopened
	loaded.Changed = true

	stats, err := s.Save(ctx, storage.Analysis{Branch: mainBranch, Date: time.Now(), Issues: []*issue.Issue{loaded}})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Updates)
	assert.Equal(t, 1, stats.Merged)

	stored, err := s.Issue(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, issue.SeverityBlocker, stored.Severity)
	assert.Equal(t, issue.StatusResolved, stored.Status)
	assert.Equal(t, issue.ResolutionFalsePositive, stored.Resolution)
	assert.Equal(t, "arthur", stored.Assignee)
}

func TestSave_UpdateWithoutConflict(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore()
	seed(t, s, mainBranch, &issue.Issue{Key: "A", Path: "a.go", Status: issue.StatusOpen})

	loaded, err := s.Issue(ctx, "A")
	require.NoError(t, err)

	loaded.SetStatus(issue.StatusClosed, issue.ScanContext(time.Now()))

	stats, err := s.Save(ctx, storage.Analysis{Branch: mainBranch, Date: time.Now(), Issues: []*issue.Issue{loaded}})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Updates)
	assert.Zero(t, stats.Merged)

	stored, err := s.Issue(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, issue.StatusClosed, stored.Status)
	require.Len(t, stored.Changes, 1)
	assert.NotEmpty(t, stored.Changes[0].Key)
}

func TestSave_UnknownKeyIsRejected(t *testing.T) {
	t.Parallel()

	s := newStore()

	_, err := s.Save(context.Background(), storage.Analysis{
		Branch: mainBranch,
		Issues: []*issue.Issue{
			{Key: "fresh", Path: "a.go", New: true},
			{Key: "ghost", Path: "a.go", Changed: true},
		},
	})
	require.ErrorIs(t, err, storage.ErrIssueNotFound)

	_, err = s.Issue(context.Background(), "fresh")
	require.ErrorIs(t, err, storage.ErrIssueNotFound, "failed save must not write anything")
}

func TestApplyUserChange_Missing(t *testing.T) {
	t.Parallel()

	err := newStore().ApplyUserChange(context.Background(), "nope", func(*issue.Issue) error { return nil })
	require.ErrorIs(t, err, storage.ErrIssueNotFound)
}

func TestOpenIssuePaths(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore()
	seed(t, s, mainBranch,
		&issue.Issue{Key: "A", Path: "b.go", Status: issue.StatusOpen},
		&issue.Issue{Key: "B", Path: "a.go", Status: issue.StatusConfirmed},
		&issue.Issue{Key: "C", Path: "a.go", Status: issue.StatusOpen},
		&issue.Issue{Key: "D", Path: "c.go", Status: issue.StatusClosed},
	)
	seed(t, s, storage.Branch{Name: "feature", Type: branch.TypeShort, MergeBranch: "main"},
		&issue.Issue{Key: "E", Path: "d.go", Status: issue.StatusOpen})

	paths, err := s.OpenIssuePaths(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go", "b.go"}, paths)
}
