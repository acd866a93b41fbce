// Package workflow implements the issue status machine: the automatic
// transitions applied at the end of tracking and the manual transitions users trigger.
package workflow

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Sumatoshi-tech/issuetrack/pkg/issue"
)

// Sentinel errors.
var (
	ErrUnknownStatus         = errors.New("unknown issue status")
	ErrTransitionNotAllowed  = errors.New("transition not allowed")
	ErrUnknownTransition     = errors.New("unknown transition")
	ErrAutomaticOnlyOnClosed = errors.New("closed issues only accept automatic transitions")
)

// Transition is the name of a manual transition.
type Transition string

// Manual transitions.
const (
	Confirm       Transition = "confirm"
	Unconfirm     Transition = "unconfirm"
	Resolve       Transition = "resolve"
	FalsePositive Transition = "falsepositive"
	WontFix       Transition = "wontfix"
	Reopen        Transition = "reopen"
)

type manualTransition struct {
	from       []issue.Status
	to         issue.Status
	resolution issue.Resolution
}

var unresolved = []issue.Status{issue.StatusOpen, issue.StatusReopened, issue.StatusConfirmed}

var manualTransitions = map[Transition]manualTransition{
	Confirm:       {from: []issue.Status{issue.StatusOpen, issue.StatusReopened}, to: issue.StatusConfirmed},
	Unconfirm:     {from: []issue.Status{issue.StatusConfirmed}, to: issue.StatusReopened},
	Resolve:       {from: unresolved, to: issue.StatusResolved, resolution: issue.ResolutionFixed},
	FalsePositive: {from: unresolved, to: issue.StatusResolved, resolution: issue.ResolutionFalsePositive},
	WontFix:       {from: unresolved, to: issue.StatusResolved, resolution: issue.ResolutionWontFix},
	Reopen:        {from: []issue.Status{issue.StatusResolved}, to: issue.StatusReopened},
}

var transitionOrder = []Transition{Confirm, Unconfirm, Resolve, FalsePositive, WontFix, Reopen}

// Workflow applies transitions. It holds no state and is safe for concurrent use.
type Workflow struct{}

// New returns a Workflow.
func New() *Workflow {
	return &Workflow{}
}

// OutTransitions lists the manual transitions available from the issue status.
func (w *Workflow) OutTransitions(iss *issue.Issue) []Transition {
	out := make([]Transition, 0, len(transitionOrder))

	for _, name := range transitionOrder {
		if slices.Contains(manualTransitions[name].from, iss.Status) {
			out = append(out, name)
		}
	}

	return out
}

// DoManualTransition applies a user transition.
func (w *Workflow) DoManualTransition(iss *issue.Issue, name Transition, ctx issue.ChangeContext) error {
	tr, ok := manualTransitions[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTransition, name)
	}

	if iss.Status == issue.StatusClosed {
		return fmt.Errorf("%w: issue %s", ErrAutomaticOnlyOnClosed, iss.Key)
	}

	if !slices.Contains(tr.from, iss.Status) {
		return fmt.Errorf("%w: %s from %s on issue %s", ErrTransitionNotAllowed, name, iss.Status, iss.Key)
	}

	iss.SetResolution(tr.resolution, ctx)
	iss.SetStatus(tr.to, ctx)

	return nil
}

// DoAutomaticTransition closes issues flagged as being closed, reopens closed
// issues that came back and reopens fixed issues that are raised again.
func (w *Workflow) DoAutomaticTransition(iss *issue.Issue, ctx issue.ChangeContext) error {
	switch iss.Status {
	case issue.StatusOpen, issue.StatusConfirmed, issue.StatusReopened:
		if iss.BeingClosed {
			closeIssue(iss, ctx)
		}
	case issue.StatusResolved:
		if iss.BeingClosed {
			closeIssue(iss, ctx)
		} else if iss.Resolution == issue.ResolutionFixed {
			iss.SetResolution(issue.ResolutionNone, ctx)
			iss.SetStatus(issue.StatusReopened, ctx)
		}
	case issue.StatusClosed:
		if !iss.BeingClosed {
			restore(iss, ctx)
		}
	default:
		return fmt.Errorf("%w: %q on issue %s", ErrUnknownStatus, iss.Status, iss.Key)
	}

	return nil
}

func closeIssue(iss *issue.Issue, ctx issue.ChangeContext) {
	resolution := issue.ResolutionFixed
	if iss.OnDisabledRule {
		resolution = issue.ResolutionRemoved
	}

	iss.SetResolution(resolution, ctx)
	iss.SetStatus(issue.StatusClosed, ctx)
	iss.SetCloseDate(ctx.Date, ctx)
}

// restore moves a closed issue back to the status and resolution it had before
// being closed. It stays closed when the change log doesn't tell.
func restore(iss *issue.Issue, ctx issue.ChangeContext) {
	status, resolution, ok := PreviousStatus(iss)
	if !ok {
		return
	}

	if status == issue.StatusResolved && resolution == issue.ResolutionFixed {
		// A fixed issue that is raised again is reopened.
		status, resolution = issue.StatusReopened, issue.ResolutionNone
	}

	iss.SetResolution(resolution, ctx)
	iss.SetStatus(status, ctx)
	iss.SetCloseDate(time.Time{}, ctx)
}

// PreviousStatus looks up, in the most recent change that closed the issue, the
// status and resolution it had before.
func PreviousStatus(iss *issue.Issue) (issue.Status, issue.Resolution, bool) {
	for i := len(iss.Changes) - 1; i >= 0; i-- {
		change := iss.Changes[i]

		statusDiff, ok := change.Get(issue.FieldStatus)
		if !ok || statusDiff.New != string(issue.StatusClosed) || statusDiff.Old == "" {
			continue
		}

		// Without a resolution diff the resolution was left as it is now.
		resolution := iss.Resolution
		if resDiff, hasRes := change.Get(issue.FieldResolution); hasRes {
			resolution = issue.Resolution(resDiff.Old)
		}

		return issue.Status(statusDiff.Old), resolution, true
	}

	return "", "", false
}
