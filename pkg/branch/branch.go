// Package branch describes the analyzed branch and derives from it which
// tracking strategy applies.
package branch

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors.
var (
	ErrUnknownType        = errors.New("unknown branch type")
	ErrMissingMergeBranch = errors.New("short-lived branch requires a merge branch")
	ErrSelfMerge          = errors.New("branch can't merge into itself")
)

// Type is the kind of branch.
type Type string

// Branch types.
const (
	TypeMain  Type = "MAIN"
	TypeLong  Type = "LONG"
	TypeShort Type = "SHORT"
)

// ParseType accepts branch types case-insensitively.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToUpper(strings.TrimSpace(s)))

	switch t {
	case TypeMain, TypeLong, TypeShort:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
}

// Metadata is what the analysis context knows about the analyzed branch.
type Metadata struct {
	Name string
	Type Type
	// MergeBranch is the branch this one was created from and merges into.
	MergeBranch string
	// FirstAnalysis is true when the branch has no analysis history yet.
	FirstAnalysis bool
}

// Strategy selects how the issues of a branch are tracked. It is one of
// MainBranch, FirstAnalysisOfLongLivedBranch or ShortLivedBranch.
type Strategy interface {
	strategy()
	String() string
}

// MainBranch tracks raws against the branch's own history. It applies to the
// main branch and to long-lived branches that were analyzed before.
type MainBranch struct{}

// FirstAnalysisOfLongLivedBranch seeds a new long-lived branch from the
// history of its merge branch.
type FirstAnalysisOfLongLivedBranch struct {
	Target string
}

// ShortLivedBranch tracks raws against the branch's own history once the
// issues already present on the target branch are set aside, and copies
// decisions made on sibling short-lived branches.
type ShortLivedBranch struct {
	Target string
}

func (MainBranch) strategy()                     {}
func (FirstAnalysisOfLongLivedBranch) strategy() {}
func (ShortLivedBranch) strategy()               {}

func (MainBranch) String() string { return "main" }

func (s FirstAnalysisOfLongLivedBranch) String() string { return "first-long-lived(" + s.Target + ")" }

func (s ShortLivedBranch) String() string { return "short-lived(" + s.Target + ")" }

// Resolve computes the strategy of a branch. It is a pure function of the metadata.
func Resolve(m Metadata) (Strategy, error) {
	if m.MergeBranch != "" && m.MergeBranch == m.Name {
		return nil, fmt.Errorf("%w: %s", ErrSelfMerge, m.Name)
	}

	switch m.Type {
	case TypeMain:
		return MainBranch{}, nil
	case TypeLong:
		if m.FirstAnalysis && m.MergeBranch != "" {
			return FirstAnalysisOfLongLivedBranch{Target: m.MergeBranch}, nil
		}

		return MainBranch{}, nil
	case TypeShort:
		if m.MergeBranch == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingMergeBranch, m.Name)
		}

		return ShortLivedBranch{Target: m.MergeBranch}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
}
