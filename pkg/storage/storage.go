// Package storage defines what the tracking engine needs from persistence and
// how a re-tracked issue is reconciled with a row a user edited concurrently.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Sumatoshi-tech/issuetrack/pkg/branch"
	"github.com/Sumatoshi-tech/issuetrack/pkg/issue"
)

// Sentinel errors.
var (
	ErrIssueNotFound = errors.New("issue not found")
	ErrConflict      = errors.New("issue was modified concurrently")
)

// Branch is the persisted record of an analyzed branch.
type Branch struct {
	Name         string
	Type         branch.Type
	MergeBranch  string
	LastAnalysis time.Time
}

// FileSource is the fingerprint of a file as of an analysis.
type FileSource struct {
	Path       string
	LineHashes []string
}

// Analysis is everything one analysis writes.
type Analysis struct {
	Branch  Branch
	Date    time.Time
	Issues  []*issue.Issue
	Sources []FileSource
}

// SaveStats counts the rows written by Save.
type SaveStats struct {
	Inserts int
	Updates int
	// Merged counts updates that went through the conflict resolver.
	Merged int
}

// Loader reads the state of previous analyses. Every returned issue is a fresh
// copy owned by the caller, with SelectedAt set to the load time.
type Loader interface {
	// Branch returns the branch record, or false when the branch was never analyzed.
	Branch(ctx context.Context, name string) (Branch, bool, error)
	// OpenIssues returns the issues of a file that are not CLOSED.
	OpenIssues(ctx context.Context, branchName, path string) ([]*issue.Issue, error)
	// OpenIssuePaths returns, in ascending order, the files of a branch that
	// have issues not CLOSED.
	OpenIssuePaths(ctx context.Context, branchName string) ([]string, error)
	// ClosedIssuesSince returns the CLOSED issues of a file closed at or after since.
	ClosedIssuesSince(ctx context.Context, branchName, path string, since time.Time) ([]*issue.Issue, error)
	// ShortBranchIssues returns the CONFIRMED or RESOLVED issues of a file on
	// short-lived branches merging into mergeBranch, except excludeBranch.
	// They are ordered by update date, most recent first, then by key.
	ShortBranchIssues(ctx context.Context, mergeBranch, excludeBranch, path string) ([]*issue.Issue, error)
	// LineHashes returns the fingerprint of a file stored by the last analysis.
	LineHashes(ctx context.Context, branchName, path string) ([]string, bool, error)
	// Issue returns one issue by key.
	Issue(ctx context.Context, key string) (*issue.Issue, error)
}

// Saver writes the result of an analysis in one transaction. New and copied
// issues are inserted. Other issues are updated only if the stored row was not
// modified after they were selected; otherwise the stored row is reloaded and
// merged with UpdateConflictResolver.
type Saver interface {
	Save(ctx context.Context, a Analysis) (SaveStats, error)
}

// Store is a complete persistence backend.
type Store interface {
	Loader
	Saver
	// ApplyUserChange applies a user edit to a stored issue and marks the row
	// as modified.
	ApplyUserChange(ctx context.Context, key string, fn func(*issue.Issue) error) error
	Close() error
}

// NeedsInsert reports whether an issue has no stored row yet.
func NeedsInsert(iss *issue.Issue) bool {
	return iss.New || iss.Copied
}

// NeedsUpdate reports whether a stored issue has changes to write.
func NeedsUpdate(iss *issue.Issue) bool {
	return !NeedsInsert(iss) && (iss.Changed || iss.CurrentChange != nil)
}

// FlushChange moves the current change to the change log, giving it a key.
func FlushChange(iss *issue.Issue, newKey func() string) {
	if iss.CurrentChange == nil {
		return
	}

	change := iss.CurrentChange.Clone()
	change.IssueKey = iss.Key

	if change.Key == "" {
		change.Key = newKey()
	}

	iss.AddChange(change)
	iss.CurrentChange = nil
}
