package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Sumatoshi-tech/issuetrack/pkg/branch"
	"github.com/Sumatoshi-tech/issuetrack/pkg/issue"
	"github.com/Sumatoshi-tech/issuetrack/pkg/storage"
)

// Branch implements storage.Loader.
func (s *Store) Branch(ctx context.Context, name string) (storage.Branch, bool, error) {
	var (
		b    storage.Branch
		typ  string
		last int64
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT name, type, merge_branch, last_analysis FROM branches WHERE name = ?`, name).
		Scan(&b.Name, &typ, &b.MergeBranch, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Branch{}, false, nil
	}

	if err != nil {
		return storage.Branch{}, false, fmt.Errorf("load branch %s: %w", name, err)
	}

	b.Type = branch.Type(typ)
	b.LastAnalysis = fromMillis(last)

	return b, true, nil
}

// OpenIssues implements storage.Loader.
func (s *Store) OpenIssues(ctx context.Context, branchName, path string) ([]*issue.Issue, error) {
	return selectIssues(ctx, s.db, s.now(),
		`WHERE i.branch = ? AND i.path = ? AND i.status <> ? ORDER BY i.kee`,
		branchName, path, string(issue.StatusClosed))
}

// OpenIssuePaths implements storage.Loader.
func (s *Store) OpenIssuePaths(ctx context.Context, branchName string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT path FROM issues WHERE branch = ? AND status <> ? ORDER BY path`,
		branchName, string(issue.StatusClosed))
	if err != nil {
		return nil, fmt.Errorf("load open issue paths of %s: %w", branchName, err)
	}
	defer rows.Close()

	var paths []string

	for rows.Next() {
		var path string

		err = rows.Scan(&path)
		if err != nil {
			return nil, fmt.Errorf("scan open issue path: %w", err)
		}

		paths = append(paths, path)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("load open issue paths of %s: %w", branchName, err)
	}

	return paths, nil
}

// ClosedIssuesSince implements storage.Loader.
func (s *Store) ClosedIssuesSince(ctx context.Context, branchName, path string, since time.Time) ([]*issue.Issue, error) {
	return selectIssues(ctx, s.db, s.now(),
		`WHERE i.branch = ? AND i.path = ? AND i.status = ? AND i.closed_at >= ? ORDER BY i.kee`,
		branchName, path, string(issue.StatusClosed), millis(since))
}

// ShortBranchIssues implements storage.Loader.
func (s *Store) ShortBranchIssues(ctx context.Context, mergeBranch, excludeBranch, path string) ([]*issue.Issue, error) {
	return selectIssues(ctx, s.db, s.now(),
		`JOIN branches b ON b.name = i.branch
		 WHERE b.type = ? AND b.merge_branch = ? AND b.name <> ? AND i.path = ? AND i.status IN (?, ?)
		 ORDER BY i.updated_at DESC, i.kee`,
		string(branch.TypeShort), mergeBranch, excludeBranch, path,
		string(issue.StatusConfirmed), string(issue.StatusResolved))
}

// LineHashes implements storage.Loader.
func (s *Store) LineHashes(ctx context.Context, branchName, path string) ([]string, bool, error) {
	var data string

	err := s.db.QueryRowContext(ctx,
		`SELECT line_hashes FROM file_sources WHERE branch = ? AND path = ?`, branchName, path).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("load line hashes of %s: %w", path, err)
	}

	var hashes []string

	err = json.Unmarshal([]byte(data), &hashes)
	if err != nil {
		return nil, false, fmt.Errorf("decode line hashes of %s: %w", path, err)
	}

	return hashes, true, nil
}

// Issue implements storage.Loader.
func (s *Store) Issue(ctx context.Context, key string) (*issue.Issue, error) {
	return loadIssue(ctx, s.db, key, s.now())
}

func loadIssue(ctx context.Context, q querier, key string, selectedAt time.Time) (*issue.Issue, error) {
	found, err := selectIssues(ctx, q, selectedAt, `WHERE i.kee = ?`, key)
	if err != nil {
		return nil, err
	}

	if len(found) == 0 {
		return nil, fmt.Errorf("%w: %s", storage.ErrIssueNotFound, key)
	}

	return found[0], nil
}
