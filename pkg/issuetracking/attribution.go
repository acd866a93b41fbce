package issuetracking

import (
	"time"

	"github.com/Sumatoshi-tech/issuetrack/pkg/issue"
	"github.com/Sumatoshi-tech/issuetrack/pkg/scm"
)

// Attribution fills in the author and assignee of new issues from SCM data
// and may backdate their creation to the change that introduced their line.
type Attribution struct {
	// Accounts maps SCM authors to user logins.
	Accounts map[string]string
	// DefaultAssignee is used when the author maps to no login.
	DefaultAssignee string
	// Backdate enables backdating the creation date.
	Backdate bool
}

// Apply attributes a new issue. info may be nil when the file has no blame.
// Issues of the first analysis of a branch are never backdated.
func (a Attribution) Apply(iss *issue.Issue, info *scm.Info, firstAnalysis bool, ctx issue.ChangeContext) {
	cs, ok := info.ForLine(iss.Line)
	if !ok {
		cs, ok = info.Latest()
	}

	if ok && cs.Author != "" {
		iss.SetNewAuthor(cs.Author, ctx)
	}

	login := a.Accounts[iss.Author]
	if login == "" {
		login = a.DefaultAssignee
	}

	iss.SetNewAssignee(login, ctx)

	if !a.Backdate || firstAnalysis || iss.Line == 0 {
		return
	}

	lineCS, found := info.ForLine(iss.Line)
	if found && !lineCS.Date.IsZero() && lineCS.Date.Before(iss.CreationDate) {
		iss.CreationDate = lineCS.Date.Truncate(time.Second)
	}
}
