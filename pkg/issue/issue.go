// Package issue holds the issue record tracked across analyses together with
// its change log and the tracked field setters used by the lifecycle.
package issue

import (
	"maps"
	"slices"
	"time"

	"github.com/Sumatoshi-tech/issuetrack/pkg/rules"
	"github.com/Sumatoshi-tech/issuetrack/pkg/tracking"
)

// Status is the workflow status of an issue.
type Status string

// Issue statuses.
const (
	StatusOpen      Status = "OPEN"
	StatusConfirmed Status = "CONFIRMED"
	StatusReopened  Status = "REOPENED"
	StatusResolved  Status = "RESOLVED"
	StatusClosed    Status = "CLOSED"
)

// Resolution qualifies RESOLVED and CLOSED issues.
type Resolution string

// Issue resolutions. An unresolved issue has ResolutionNone.
const (
	ResolutionNone          Resolution = ""
	ResolutionFixed         Resolution = "FIXED"
	ResolutionFalsePositive Resolution = "FALSE-POSITIVE"
	ResolutionWontFix       Resolution = "WONTFIX"
	ResolutionRemoved       Resolution = "REMOVED"
)

// Severity of an issue.
type Severity string

// Severities, lowest first.
const (
	SeverityInfo     Severity = "INFO"
	SeverityMinor    Severity = "MINOR"
	SeverityMajor    Severity = "MAJOR"
	SeverityCritical Severity = "CRITICAL"
	SeverityBlocker  Severity = "BLOCKER"
)

// Severities lists every severity, lowest first.
var Severities = []Severity{SeverityInfo, SeverityMinor, SeverityMajor, SeverityCritical, SeverityBlocker}

// Type is the issue category.
type Type string

// Issue types.
const (
	TypeCodeSmell     Type = "CODE_SMELL"
	TypeBug           Type = "BUG"
	TypeVulnerability Type = "VULNERABILITY"
)

// Location is a secondary location attached to an issue.
type Location struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Message   string `json:"message,omitempty"`
}

// TextRange is the primary range of an issue.
type TextRange struct {
	StartLine   int `json:"start_line"`
	StartOffset int `json:"start_offset"`
	EndLine     int `json:"end_line"`
	EndOffset   int `json:"end_offset"`
}

// Issue is a single defect instance. An Issue is owned by exactly one pipeline
// stage at a time and is never shared between files.
type Issue struct {
	Key        string
	RuleKey    rules.Key
	ProjectKey string
	Branch     string
	Path       string

	// Line is 1-based; zero means the issue is not attached to a line.
	Line      int
	TextRange *TextRange
	Locations []Location
	Checksum  string

	Message        string
	Severity       Severity
	ManualSeverity bool
	Type           Type

	Status     Status
	Resolution Resolution
	Assignee   string
	Author     string

	// Gap is the effort-to-fix quantity reported by the rule engine.
	Gap *float64
	// Effort is the remediation effort in minutes.
	Effort *int64

	Tags       []string
	Attributes map[string]string

	CreationDate time.Time
	UpdateDate   time.Time
	CloseDate    time.Time
	// SelectedAt is when the issue was loaded from storage; zero for new issues.
	SelectedAt time.Time

	New                    bool
	Copied                 bool
	Changed                bool
	BeingClosed            bool
	OnDisabledRule         bool
	FromExternalRuleEngine bool
	LocationsChanged       bool

	// Changes is the persisted change log, oldest first.
	Changes []FieldDiffs
	// CurrentChange collects the diffs made during the current analysis.
	CurrentChange *FieldDiffs
	Comments      []Comment
}

// Signature implements tracking.Trackable.
func (i *Issue) Signature() tracking.Signature {
	return tracking.Signature{
		Key:      i.Key,
		RuleKey:  i.RuleKey,
		Line:     i.Line,
		Message:  i.Message,
		LineHash: i.Checksum,
	}
}

// IsResolved reports whether the issue carries a resolution.
func (i *Issue) IsResolved() bool {
	return i.Resolution != ResolutionNone
}

// IsClosed reports whether the issue is CLOSED.
func (i *Issue) IsClosed() bool {
	return i.Status == StatusClosed
}

// Attribute returns a free-form attribute.
func (i *Issue) Attribute(key string) string {
	return i.Attributes[key]
}

// SetFieldChange records a diff in the current change when old and new differ.
func (i *Issue) SetFieldChange(ctx ChangeContext, field, oldValue, newValue string) {
	if oldValue == newValue {
		return
	}

	if i.CurrentChange == nil {
		i.CurrentChange = &FieldDiffs{User: ctx.User, CreationDate: ctx.Date}
	}

	i.CurrentChange.SetDiff(field, oldValue, newValue)
}

// AddChange appends a change to the log.
func (i *Issue) AddChange(change FieldDiffs) {
	i.Changes = append(i.Changes, change)
}

// AddComment appends a comment.
func (i *Issue) AddComment(c Comment) {
	i.Comments = append(i.Comments, c)
}

// Clone returns a deep copy.
func (i *Issue) Clone() *Issue {
	c := *i
	c.Locations = slices.Clone(i.Locations)
	c.Tags = slices.Clone(i.Tags)
	c.Attributes = maps.Clone(i.Attributes)
	c.Comments = slices.Clone(i.Comments)

	if i.TextRange != nil {
		tr := *i.TextRange
		c.TextRange = &tr
	}

	if i.Gap != nil {
		g := *i.Gap
		c.Gap = &g
	}

	if i.Effort != nil {
		e := *i.Effort
		c.Effort = &e
	}

	c.Changes = make([]FieldDiffs, len(i.Changes))
	for idx, ch := range i.Changes {
		c.Changes[idx] = ch.Clone()
	}

	if i.CurrentChange != nil {
		cc := i.CurrentChange.Clone()
		c.CurrentChange = &cc
	}

	return &c
}

// Comment is a user comment on an issue.
type Comment struct {
	Key       string
	IssueKey  string
	User      string
	Markdown  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChangeContext identifies who changes an issue and when.
type ChangeContext struct {
	Date time.Time
	User string
	Scan bool
}

// ScanContext is the context of changes made by an analysis.
func ScanContext(date time.Time) ChangeContext {
	return ChangeContext{Date: date.Truncate(time.Second), Scan: true}
}

// UserContext is the context of changes made by a user.
func UserContext(date time.Time, user string) ChangeContext {
	return ChangeContext{Date: date.Truncate(time.Second), User: user}
}
