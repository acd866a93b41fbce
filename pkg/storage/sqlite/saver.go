package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Sumatoshi-tech/issuetrack/pkg/issue"
	"github.com/Sumatoshi-tech/issuetrack/pkg/storage"
)

// Save implements storage.Saver. Nothing is written when an error is returned.
func (s *Store) Save(ctx context.Context, a storage.Analysis) (storage.SaveStats, error) {
	var stats storage.SaveStats

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stats = storage.SaveStats{}

		return s.save(ctx, tx, a, &stats)
	})
	if err != nil {
		return storage.SaveStats{}, err
	}

	return stats, nil
}

func (s *Store) save(ctx context.Context, tx *sql.Tx, a storage.Analysis, stats *storage.SaveStats) error {
	now := s.now()

	for _, in := range a.Issues {
		switch {
		case storage.NeedsInsert(in):
			var exists int

			err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM issues WHERE kee = ?`, in.Key).Scan(&exists)
			if err != nil {
				return fmt.Errorf("check issue %s: %w", in.Key, err)
			}

			if exists > 0 {
				return fmt.Errorf("%w: insert of existing key %s", storage.ErrConflict, in.Key)
			}

			row := s.persisted(in)

			err = insertIssue(ctx, tx, row, now)
			if err == nil {
				err = writeLog(ctx, tx, row)
			}

			if err != nil {
				return err
			}

			stats.Inserts++
		case storage.NeedsUpdate(in):
			merged, err := s.update(ctx, tx, in)
			if err != nil {
				return err
			}

			if merged {
				stats.Merged++
			}

			stats.Updates++
		}
	}

	for _, src := range a.Sources {
		data, err := json.Marshal(src.LineHashes)
		if err != nil {
			return fmt.Errorf("encode line hashes of %s: %w", src.Path, err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO file_sources (branch, path, line_hashes) VALUES (?, ?, ?)
			 ON CONFLICT (branch, path) DO UPDATE SET line_hashes = excluded.line_hashes`,
			a.Branch.Name, src.Path, string(data))
		if err != nil {
			return fmt.Errorf("store line hashes of %s: %w", src.Path, err)
		}
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO branches (name, type, merge_branch, last_analysis) VALUES (?, ?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET type = excluded.type, merge_branch = excluded.merge_branch,
		 last_analysis = excluded.last_analysis`,
		a.Branch.Name, string(a.Branch.Type), a.Branch.MergeBranch, millis(a.Date))
	if err != nil {
		return fmt.Errorf("store branch %s: %w", a.Branch.Name, err)
	}

	return nil
}

// update writes a re-tracked issue, merging it with the stored row when the
// row was modified after the issue was selected.
func (s *Store) update(ctx context.Context, tx *sql.Tx, in *issue.Issue) (bool, error) {
	now := s.now()
	row := s.persisted(in)

	written, err := updateIssue(ctx, tx, row, now, in.SelectedAt)
	if err != nil {
		return false, err
	}

	if written {
		return false, writeLog(ctx, tx, row)
	}

	stored, err := loadIssue(ctx, tx, in.Key, now)
	if err != nil {
		return false, fmt.Errorf("%s on %s: %w", in.Key, in.Path, err)
	}

	row = s.persisted(s.resolver.Resolve(in, stored))

	_, err = updateIssue(ctx, tx, row, now, time.Time{})
	if err != nil {
		return false, err
	}

	return true, writeLog(ctx, tx, row)
}

// ApplyUserChange implements storage.Store.
func (s *Store) ApplyUserChange(ctx context.Context, key string, fn func(*issue.Issue) error) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		iss, err := loadIssue(ctx, tx, key, s.now())
		if err != nil {
			return err
		}

		err = fn(iss)
		if err != nil {
			return fmt.Errorf("user change on %s: %w", key, err)
		}

		row := s.persisted(iss)

		_, err = updateIssue(ctx, tx, row, s.now(), time.Time{})
		if err != nil {
			return err
		}

		return writeLog(ctx, tx, row)
	})
}

func (s *Store) persisted(in *issue.Issue) *issue.Issue {
	c := in.Clone()
	storage.FlushChange(c, s.newKey)
	c.New = false
	c.Copied = false
	c.Changed = false
	c.BeingClosed = false
	c.LocationsChanged = false

	return c
}
