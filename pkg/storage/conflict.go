package storage

import (
	"slices"

	"github.com/Sumatoshi-tech/issuetrack/pkg/issue"
)

// UpdateConflictResolver merges an issue produced by an analysis with the row
// currently stored for the same key. Fields computed by the analysis come
// from the scan; decisions a user took on the stored row are kept.
type UpdateConflictResolver struct{}

// Resolve returns the merged issue. Neither argument is modified.
func (UpdateConflictResolver) Resolve(scan, stored *issue.Issue) *issue.Issue {
	merged := scan.Clone()

	if stored.ManualSeverity {
		merged.ManualSeverity = true
		merged.Severity = stored.Severity
	}

	merged.Assignee = stored.Assignee

	if stored.IsResolved() {
		merged.Status = stored.Status
		merged.Resolution = stored.Resolution
		merged.CloseDate = stored.CloseDate
	}

	merged.Tags = slices.Clone(stored.Tags)
	merged.Comments = slices.Clone(stored.Comments)

	merged.Changes = make([]issue.FieldDiffs, len(stored.Changes))
	for i, ch := range stored.Changes {
		merged.Changes[i] = ch.Clone()
	}

	if stored.UpdateDate.After(merged.UpdateDate) {
		merged.UpdateDate = stored.UpdateDate
	}

	return merged
}
