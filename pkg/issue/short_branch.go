package issue

import (
	"github.com/Sumatoshi-tech/issuetrack/pkg/rules"
	"github.com/Sumatoshi-tech/issuetrack/pkg/tracking"
)

// ShortBranchIssue is the read-only projection of an issue living on another
// short-lived branch, used to look up resolutions to copy.
type ShortBranchIssue struct {
	key        string
	ruleKey    rules.Key
	line       int
	message    string
	lineHash   string
	status     Status
	resolution Resolution
	branchName string
}

// NewShortBranchIssue projects an issue of the given branch.
func NewShortBranchIssue(i *Issue, branchName string) ShortBranchIssue {
	return ShortBranchIssue{
		key:        i.Key,
		ruleKey:    i.RuleKey,
		line:       i.Line,
		message:    i.Message,
		lineHash:   i.Checksum,
		status:     i.Status,
		resolution: i.Resolution,
		branchName: branchName,
	}
}

// Key is the key of the projected issue.
func (s ShortBranchIssue) Key() string { return s.key }

// Status is the status of the projected issue.
func (s ShortBranchIssue) Status() Status { return s.status }

// Resolution is the resolution of the projected issue.
func (s ShortBranchIssue) Resolution() Resolution { return s.resolution }

// BranchName is the branch the projected issue lives on.
func (s ShortBranchIssue) BranchName() string { return s.branchName }

// Signature implements tracking.Trackable. The key is left out so that
// projections never match by identity.
func (s ShortBranchIssue) Signature() tracking.Signature {
	return tracking.Signature{
		RuleKey:  s.ruleKey,
		Line:     s.line,
		Message:  s.message,
		LineHash: s.lineHash,
	}
}
