package issue

import (
	"maps"
	"slices"
	"time"
)

// Change log field names.
const (
	FieldSeverity        = "severity"
	FieldStatus          = "status"
	FieldResolution      = "resolution"
	FieldAssignee        = "assignee"
	FieldAuthor          = "author"
	FieldType            = "type"
	FieldTags            = "tags"
	FieldEffort          = "effort"
	FieldFromLongBranch  = "from_long_branch"
	FieldFromShortBranch = "from_short_branch"
)

// Diff is the old and new value of one field.
type Diff struct {
	Old string `json:"old,omitempty"`
	New string `json:"new,omitempty"`
}

// FieldDiffs is one change log entry: the fields changed together by one actor.
type FieldDiffs struct {
	Key          string
	IssueKey     string
	User         string
	CreationDate time.Time
	Diffs        map[string]Diff
}

// SetDiff records a change. A second change of the same field keeps the first old value.
func (f *FieldDiffs) SetDiff(field, oldValue, newValue string) {
	if f.Diffs == nil {
		f.Diffs = make(map[string]Diff)
	}

	if existing, ok := f.Diffs[field]; ok {
		existing.New = newValue
		f.Diffs[field] = existing

		return
	}

	f.Diffs[field] = Diff{Old: oldValue, New: newValue}
}

// Get returns the diff of a field.
func (f FieldDiffs) Get(field string) (Diff, bool) {
	d, ok := f.Diffs[field]

	return d, ok
}

// Fields returns the changed field names sorted.
func (f FieldDiffs) Fields() []string {
	return slices.Sorted(maps.Keys(f.Diffs))
}

// Clone returns a deep copy.
func (f FieldDiffs) Clone() FieldDiffs {
	f.Diffs = maps.Clone(f.Diffs)

	return f
}
