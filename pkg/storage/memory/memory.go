// Package memory is an in-process storage.Store.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Sumatoshi-tech/issuetrack/pkg/branch"
	"github.com/Sumatoshi-tech/issuetrack/pkg/issue"
	"github.com/Sumatoshi-tech/issuetrack/pkg/storage"
)

type row struct {
	iss *issue.Issue
	// technicalUpdatedAt is when the row was last written.
	technicalUpdatedAt time.Time
}

type sourceKey struct {
	branch string
	path   string
}

// Store keeps everything in maps. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	now      func() time.Time
	resolver storage.UpdateConflictResolver
	branches map[string]storage.Branch
	issues   map[string]*row
	sources  map[sourceKey][]string
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the clock used for technical dates.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		now:      time.Now,
		branches: make(map[string]storage.Branch),
		issues:   make(map[string]*row),
		sources:  make(map[sourceKey][]string),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Branch implements storage.Loader.
func (s *Store) Branch(_ context.Context, name string) (storage.Branch, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.branches[name]

	return b, ok, nil
}

func (s *Store) selectIssues(match func(*issue.Issue) bool) []*issue.Issue {
	s.mu.RLock()
	defer s.mu.RUnlock()

	selectedAt := s.now()

	var out []*issue.Issue

	for _, r := range s.issues {
		if !match(r.iss) {
			continue
		}

		c := r.iss.Clone()
		c.SelectedAt = selectedAt
		out = append(out, c)
	}

	slices.SortFunc(out, func(a, b *issue.Issue) int { return strings.Compare(a.Key, b.Key) })

	return out
}

// OpenIssues implements storage.Loader.
func (s *Store) OpenIssues(_ context.Context, branchName, path string) ([]*issue.Issue, error) {
	return s.selectIssues(func(i *issue.Issue) bool {
		return i.Branch == branchName && i.Path == path && !i.IsClosed()
	}), nil
}

// OpenIssuePaths implements storage.Loader.
func (s *Store) OpenIssuePaths(_ context.Context, branchName string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var paths []string

	for _, r := range s.issues {
		if r.iss.Branch == branchName && !r.iss.IsClosed() {
			paths = append(paths, r.iss.Path)
		}
	}

	slices.Sort(paths)

	return slices.Compact(paths), nil
}

// ClosedIssuesSince implements storage.Loader.
func (s *Store) ClosedIssuesSince(_ context.Context, branchName, path string, since time.Time) ([]*issue.Issue, error) {
	return s.selectIssues(func(i *issue.Issue) bool {
		return i.Branch == branchName && i.Path == path && i.IsClosed() && !i.CloseDate.Before(since)
	}), nil
}

// ShortBranchIssues implements storage.Loader.
func (s *Store) ShortBranchIssues(_ context.Context, mergeBranch, excludeBranch, path string) ([]*issue.Issue, error) {
	s.mu.RLock()
	siblings := make(map[string]bool)

	for name, b := range s.branches {
		if b.Type == branch.TypeShort && b.MergeBranch == mergeBranch && name != excludeBranch {
			siblings[name] = true
		}
	}
	s.mu.RUnlock()

	out := s.selectIssues(func(i *issue.Issue) bool {
		return siblings[i.Branch] && i.Path == path &&
			(i.Status == issue.StatusConfirmed || i.Status == issue.StatusResolved)
	})

	slices.SortStableFunc(out, func(a, b *issue.Issue) int { return b.UpdateDate.Compare(a.UpdateDate) })

	return out, nil
}

// LineHashes implements storage.Loader.
func (s *Store) LineHashes(_ context.Context, branchName, path string) ([]string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hashes, ok := s.sources[sourceKey{branch: branchName, path: path}]

	return slices.Clone(hashes), ok, nil
}

// Issue implements storage.Loader.
func (s *Store) Issue(_ context.Context, key string) (*issue.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.issues[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrIssueNotFound, key)
	}

	c := r.iss.Clone()
	c.SelectedAt = s.now()

	return c, nil
}

// Save implements storage.Saver. Nothing is written when an error is returned.
func (s *Store) Save(_ context.Context, a storage.Analysis) (storage.SaveStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats storage.SaveStats

	now := s.now()
	pending := make(map[string]*row, len(a.Issues))

	for _, in := range a.Issues {
		switch {
		case storage.NeedsInsert(in):
			if _, exists := s.issues[in.Key]; exists {
				return storage.SaveStats{}, fmt.Errorf("%w: insert of existing key %s", storage.ErrConflict, in.Key)
			}

			pending[in.Key] = &row{iss: persisted(in), technicalUpdatedAt: now}
			stats.Inserts++
		case storage.NeedsUpdate(in):
			current, ok := s.issues[in.Key]
			if !ok {
				return storage.SaveStats{}, fmt.Errorf("%w: %s on %s", storage.ErrIssueNotFound, in.Key, in.Path)
			}

			toWrite := in
			if current.technicalUpdatedAt.After(in.SelectedAt) {
				toWrite = s.resolver.Resolve(in, current.iss)
				stats.Merged++
			}

			pending[in.Key] = &row{iss: persisted(toWrite), technicalUpdatedAt: now}
			stats.Updates++
		}
	}

	for key, r := range pending {
		s.issues[key] = r
	}

	for _, src := range a.Sources {
		s.sources[sourceKey{branch: a.Branch.Name, path: src.Path}] = slices.Clone(src.LineHashes)
	}

	b := a.Branch
	b.LastAnalysis = a.Date
	s.branches[b.Name] = b

	return stats, nil
}

// ApplyUserChange implements storage.Store.
func (s *Store) ApplyUserChange(_ context.Context, key string, fn func(*issue.Issue) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.issues[key]
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrIssueNotFound, key)
	}

	c := r.iss.Clone()

	err := fn(c)
	if err != nil {
		return fmt.Errorf("user change on %s: %w", key, err)
	}

	s.issues[key] = &row{iss: persisted(c), technicalUpdatedAt: s.now()}

	return nil
}

// Close implements storage.Store.
func (s *Store) Close() error {
	return nil
}

func persisted(in *issue.Issue) *issue.Issue {
	c := in.Clone()
	storage.FlushChange(c, uuid.NewString)
	c.New = false
	c.Copied = false
	c.Changed = false
	c.BeingClosed = false
	c.LocationsChanged = false
	c.SelectedAt = time.Time{}

	return c
}
