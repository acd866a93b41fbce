package issue

import (
	"errors"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ErrManualSeverity is returned when a rule-driven severity change hits a manual severity.
var ErrManualSeverity = errors.New("severity was set manually and can't be changed")

func (i *Issue) touch(ctx ChangeContext) {
	i.UpdateDate = ctx.Date
	i.Changed = true
}

// SetType changes the issue type.
func (i *Issue) SetType(t Type, ctx ChangeContext) bool {
	if t == i.Type {
		return false
	}

	i.SetFieldChange(ctx, FieldType, string(i.Type), string(t))
	i.Type = t
	i.touch(ctx)

	return true
}

// SetSeverity changes a rule-driven severity.
func (i *Issue) SetSeverity(s Severity, ctx ChangeContext) (bool, error) {
	if i.ManualSeverity {
		return false, ErrManualSeverity
	}

	if s == i.Severity {
		return false, nil
	}

	i.SetFieldChange(ctx, FieldSeverity, string(i.Severity), string(s))
	i.Severity = s
	i.touch(ctx)

	return true, nil
}

// SetPastSeverity keeps the current severity and records the change from previous.
func (i *Issue) SetPastSeverity(previous Severity, ctx ChangeContext) (bool, error) {
	current := i.Severity
	i.Severity = previous

	return i.SetSeverity(current, ctx)
}

// SetManualSeverity sets a user-chosen severity that later analyses won't override.
func (i *Issue) SetManualSeverity(s Severity, ctx ChangeContext) bool {
	if i.ManualSeverity && s == i.Severity {
		return false
	}

	i.SetFieldChange(ctx, FieldSeverity, string(i.Severity), string(s))
	i.Severity = s
	i.ManualSeverity = true
	i.touch(ctx)

	return true
}

// SetLine moves the issue. Line changes are not recorded in the change log.
func (i *Issue) SetLine(line int) bool {
	if line == i.Line {
		return false
	}

	i.Line = line
	i.Changed = true

	return true
}

// SetPastLine keeps the current line and flags the issue changed if it moved.
func (i *Issue) SetPastLine(previous int) bool {
	current := i.Line
	i.Line = previous

	return i.SetLine(current)
}

// UnsetLine detaches the issue from any line.
func (i *Issue) UnsetLine() bool {
	return i.SetLine(0)
}

// SetLocations replaces the secondary locations.
func (i *Issue) SetLocations(locations []Location) bool {
	if slices.Equal(locations, i.Locations) {
		return false
	}

	i.Locations = locations
	i.Changed = true
	i.LocationsChanged = true

	return true
}

// SetPastLocations keeps the current locations and flags a change if they differ from previous.
func (i *Issue) SetPastLocations(previous []Location) bool {
	current := i.Locations
	i.Locations = previous

	return i.SetLocations(current)
}

// SetMessage changes the message.
func (i *Issue) SetMessage(msg string, ctx ChangeContext) bool {
	if msg == i.Message {
		return false
	}

	i.Message = msg
	i.touch(ctx)

	return true
}

// SetPastMessage keeps the current message and flags a change if it differs from previous.
func (i *Issue) SetPastMessage(previous string, ctx ChangeContext) bool {
	current := i.Message
	i.Message = previous

	return i.SetMessage(current, ctx)
}

// SetGap changes the gap.
func (i *Issue) SetGap(gap *float64, ctx ChangeContext) bool {
	if equalPtr(gap, i.Gap) {
		return false
	}

	i.Gap = gap
	i.touch(ctx)

	return true
}

// SetPastGap keeps the current gap and flags a change if it differs from previous.
func (i *Issue) SetPastGap(previous *float64, ctx ChangeContext) bool {
	current := i.Gap
	i.Gap = previous

	return i.SetGap(current, ctx)
}

// SetEffort changes the remediation effort.
func (i *Issue) SetEffort(effort *int64, ctx ChangeContext) bool {
	if equalPtr(effort, i.Effort) {
		return false
	}

	i.SetFieldChange(ctx, FieldEffort, formatMinutes(i.Effort), formatMinutes(effort))
	i.Effort = effort
	i.touch(ctx)

	return true
}

// SetPastEffort keeps the current effort and records the change from previous.
func (i *Issue) SetPastEffort(previous *int64, ctx ChangeContext) bool {
	current := i.Effort
	i.Effort = previous

	return i.SetEffort(current, ctx)
}

// SetStatus changes the status.
func (i *Issue) SetStatus(s Status, ctx ChangeContext) bool {
	if s == i.Status {
		return false
	}

	i.SetFieldChange(ctx, FieldStatus, string(i.Status), string(s))
	i.Status = s
	i.touch(ctx)

	return true
}

// SetResolution changes the resolution.
func (i *Issue) SetResolution(r Resolution, ctx ChangeContext) bool {
	if r == i.Resolution {
		return false
	}

	i.SetFieldChange(ctx, FieldResolution, string(i.Resolution), string(r))
	i.Resolution = r
	i.touch(ctx)

	return true
}

// SetPastStatus keeps the current status and records the change from previous.
func (i *Issue) SetPastStatus(previous Status, ctx ChangeContext) bool {
	current := i.Status
	i.Status = previous

	return i.SetStatus(current, ctx)
}

// SetPastResolution keeps the current resolution and records the change from previous.
func (i *Issue) SetPastResolution(previous Resolution, ctx ChangeContext) bool {
	current := i.Resolution
	i.Resolution = previous

	return i.SetResolution(current, ctx)
}

// Assign changes the assignee; an empty login unassigns.
func (i *Issue) Assign(login string, ctx ChangeContext) bool {
	if login == i.Assignee {
		return false
	}

	i.SetFieldChange(ctx, FieldAssignee, i.Assignee, login)
	i.Assignee = login
	i.touch(ctx)

	return true
}

// SetPastAssignee keeps the current assignee and records the change from previous.
func (i *Issue) SetPastAssignee(previous string, ctx ChangeContext) bool {
	current := i.Assignee
	i.Assignee = previous

	return i.Assign(current, ctx)
}

// SetNewAssignee assigns an unassigned issue. It is a no-op when login is empty
// or the issue already has an assignee.
func (i *Issue) SetNewAssignee(login string, ctx ChangeContext) bool {
	if login == "" || i.Assignee != "" {
		return false
	}

	return i.Assign(login, ctx)
}

// SetAuthor changes the SCM author.
func (i *Issue) SetAuthor(author string, ctx ChangeContext) bool {
	if author == i.Author {
		return false
	}

	i.SetFieldChange(ctx, FieldAuthor, i.Author, author)
	i.Author = author
	i.touch(ctx)

	return true
}

// SetPastAuthor keeps the current author and records the change from previous.
func (i *Issue) SetPastAuthor(previous string, ctx ChangeContext) bool {
	current := i.Author
	i.Author = previous

	return i.SetAuthor(current, ctx)
}

// SetNewAuthor sets the author of an issue that has none.
func (i *Issue) SetNewAuthor(author string, ctx ChangeContext) bool {
	if author == "" || i.Author != "" {
		return false
	}

	return i.SetAuthor(author, ctx)
}

// SetAttribute changes a free-form attribute; an empty value removes it.
func (i *Issue) SetAttribute(key, value string, ctx ChangeContext) bool {
	old := i.Attributes[key]
	if old == value {
		return false
	}

	i.SetFieldChange(ctx, key, old, value)

	if value == "" {
		delete(i.Attributes, key)
	} else {
		if i.Attributes == nil {
			i.Attributes = make(map[string]string)
		}

		i.Attributes[key] = value
	}

	i.touch(ctx)

	return true
}

// SetPastAttribute keeps the current attribute value and records the change from previous.
func (i *Issue) SetPastAttribute(key, previous string, ctx ChangeContext) bool {
	current := i.Attributes[key]

	if previous == "" {
		delete(i.Attributes, key)
	} else {
		if i.Attributes == nil {
			i.Attributes = make(map[string]string)
		}

		i.Attributes[key] = previous
	}

	return i.SetAttribute(key, current, ctx)
}

// SetTags replaces the tags. Tags are trimmed, lowercased, deduplicated and sorted.
func (i *Issue) SetTags(tags []string, ctx ChangeContext) bool {
	normalized := NormalizeTags(tags)
	if slices.Equal(normalized, NormalizeTags(i.Tags)) {
		return false
	}

	i.SetFieldChange(ctx, FieldTags, strings.Join(NormalizeTags(i.Tags), " "), strings.Join(normalized, " "))
	i.Tags = normalized
	i.touch(ctx)

	return true
}

// SetCloseDate changes the close date, truncated to the second. A zero date clears it.
func (i *Issue) SetCloseDate(date time.Time, ctx ChangeContext) bool {
	date = date.Truncate(time.Second)
	if date.Equal(i.CloseDate) {
		return false
	}

	i.CloseDate = date
	i.touch(ctx)

	return true
}

// NormalizeTags trims, lowercases, deduplicates and sorts tags.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))

	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}

	slices.Sort(out)

	return slices.Compact(out)
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}

	return *a == *b
}

func formatMinutes(v *int64) string {
	if v == nil {
		return ""
	}

	return strconv.FormatInt(*v, 10)
}
