package issuetracking_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/issuetrack/pkg/branch"
	"github.com/Sumatoshi-tech/issuetrack/pkg/issue"
	"github.com/Sumatoshi-tech/issuetrack/pkg/issuetracking"
	"github.com/Sumatoshi-tech/issuetrack/pkg/rules"
	"github.com/Sumatoshi-tech/issuetrack/pkg/storage"
	"github.com/Sumatoshi-tech/issuetrack/pkg/storage/memory"
)

const (
	ruleNaming   rules.Key = "go:S100"
	ruleOverflow rules.Key = "go:S200"
	ruleRemoved  rules.Key = "go:S999"

	samplePath = "calc/sum.go"
)

var day1 = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func day(n int) time.Time { return day1.AddDate(0, 0, n-1) }

var sourceLines = []string{
	"package calc",
	"",
	"func Sum(a, b int) int {",
	"\treturn a + b",
	"}",
	"",
	"func Diff(a, b int) int {",
	"\treturn a - b",
	"}",
}

func testRules(t *testing.T) *rules.MemoryRepository {
	t.Helper()

	repo, err := rules.NewMemoryRepository(
		rules.Rule{
			Key:         ruleNaming,
			Severity:    string(issue.SeverityMajor),
			Type:        string(issue.TypeCodeSmell),
			Remediation: &rules.RemediationFunction{Type: rules.Linear, GapMultiplier: "5min"},
		},
		rules.Rule{Key: ruleOverflow, Severity: string(issue.SeverityMinor), Type: string(issue.TypeBug)},
		rules.Rule{Key: ruleRemoved, Status: rules.StatusRemoved},
	)
	require.NoError(t, err)

	return repo
}

func raw(rule rules.Key, line int, msg string) *issue.Issue {
	return &issue.Issue{RuleKey: rule, Line: line, Message: msg}
}

// issueA to issueD sit on distinct non-blank lines of sourceLines.
func issueA() *issue.Issue { return raw(ruleNaming, 3, "Rename Sum") }
func issueB() *issue.Issue { return raw(ruleOverflow, 4, "Check overflow") }
func issueC() *issue.Issue { return raw(ruleNaming, 7, "Rename Diff") }
func issueD() *issue.Issue { return raw(ruleOverflow, 8, "Check underflow") }

func mainMeta() branch.Metadata {
	return branch.Metadata{Name: "main", Type: branch.TypeMain}
}

func shortMeta(name string) branch.Metadata {
	return branch.Metadata{Name: name, Type: branch.TypeShort, MergeBranch: "main"}
}

func request(meta branch.Metadata, date time.Time, lines []string, issues ...*issue.Issue) issuetracking.Request {
	return issuetracking.Request{
		Project: "calc",
		Branch:  meta,
		Date:    date,
		Files:   []issuetracking.SourceFile{{Path: samplePath, Lines: lines, Issues: issues}},
	}
}

func newEngine(t *testing.T, store *memory.Store, opts ...issuetracking.EngineOption) *issuetracking.Engine {
	t.Helper()

	return issuetracking.NewEngine(store, testRules(t), issuetracking.DefaultOptions(), opts...)
}

func run(t *testing.T, e *issuetracking.Engine, req issuetracking.Request) *issuetracking.Result {
	t.Helper()

	res, err := e.Run(context.Background(), req)
	require.NoError(t, err)

	return res
}

func openIssues(t *testing.T, s storage.Loader, branchName string) map[string]*issue.Issue {
	t.Helper()

	list, err := s.OpenIssues(context.Background(), branchName, samplePath)
	require.NoError(t, err)

	byMessage := make(map[string]*issue.Issue, len(list))
	for _, i := range list {
		byMessage[i.Message] = i
	}

	return byMessage
}

// seedBranch stores issues on a branch as if an analysis had just created them.
func seedBranch(t *testing.T, s *memory.Store, b storage.Branch, issues ...*issue.Issue) {
	t.Helper()

	for _, i := range issues {
		i.New = true
		i.Branch = b.Name
		i.Path = samplePath
	}

	_, err := s.Save(context.Background(), storage.Analysis{Branch: b, Date: day1, Issues: issues})
	require.NoError(t, err)
}
