package report_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/issuetrack/pkg/issue"
	"github.com/Sumatoshi-tech/issuetrack/pkg/report"
	"github.com/Sumatoshi-tech/issuetrack/pkg/rules"
)

const sample = `{
  "project": "demo",
  "revision": "abc123",
  "files": [
    {
      "path": "src/a.go",
      "lines": ["package a", "", "func Bad_Name() {}"],
      "issues": [
        {"rule": "go:S100", "line": 3, "message": "Rename function", "severity": "MINOR",
         "gap": 1.5, "tags": ["naming"], "text_range": {"start_line": 3, "start_offset": 5, "end_line": 3, "end_offset": 13}},
        {"rule": "go:S200", "message": "File too long", "effort": 30}
      ],
      "changesets": {
        "1": {"author": "ford@example.com", "date": "2025-01-02T10:00:00Z", "revision": "r1"},
        "3": {"author": "arthur@example.com", "date": "2025-02-03T10:00:00Z", "revision": "r2"}
      }
    },
    {"path": "src/b.go", "lines": []}
  ]
}`

func TestDecode(t *testing.T) {
	t.Parallel()

	rep, err := report.Decode(strings.NewReader(sample))
	require.NoError(t, err)

	assert.Equal(t, "demo", rep.Project)
	assert.Equal(t, "abc123", rep.Revision)
	require.Len(t, rep.Files, 2)

	a := rep.Files[0]
	assert.Equal(t, "src/a.go", a.Path)
	assert.Len(t, a.Lines, 3)
	require.Len(t, a.Issues, 2)

	first := a.Issues[0]
	assert.Equal(t, rules.Key("go:S100"), first.RuleKey)
	assert.Equal(t, 3, first.Line)
	assert.Equal(t, issue.SeverityMinor, first.Severity)
	require.NotNil(t, first.Gap)
	assert.InDelta(t, 1.5, *first.Gap, 1e-9)
	assert.Equal(t, &issue.TextRange{StartLine: 3, StartOffset: 5, EndLine: 3, EndOffset: 13}, first.TextRange)

	second := a.Issues[1]
	assert.Zero(t, second.Line)
	assert.Empty(t, second.Severity, "severity defaults from the rule later")
	require.NotNil(t, second.Effort)
	assert.Equal(t, int64(30), *second.Effort)

	info, ok := rep.SCM.Info("src/a.go")
	require.True(t, ok)

	cs, ok := info.ForLine(3)
	require.True(t, ok)
	assert.Equal(t, "arthur@example.com", cs.Author)
	assert.Equal(t, time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC), cs.Date)

	latest, ok := info.Latest()
	require.True(t, ok)
	assert.Equal(t, "r2", latest.Revision)

	_, ok = rep.SCM.Info("src/b.go")
	assert.False(t, ok)
}

func TestDecode_Invalid(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"not json":      `{`,
		"missing files": `{"project": "demo"}`,
		"missing path":  `{"files": [{"lines": []}]}`,
		"bad rule key":  `{"files": [{"path": "a.go", "lines": ["x"], "issues": [{"rule": "S100", "message": "m"}]}]}`,
		"bad severity":  `{"files": [{"path": "a.go", "lines": ["x"], "issues": [{"rule": "go:S1", "message": "m", "severity": "HUGE"}]}]}`,
		"negative line": `{"files": [{"path": "a.go", "lines": ["x"], "issues": [{"rule": "go:S1", "message": "m", "line": -1}]}]}`,
		"line past end": `{"files": [{"path": "a.go", "lines": ["x"], "issues": [{"rule": "go:S1", "message": "m", "line": 2}]}]}`,
		"unknown field": `{"files": [], "extra": true}`,
		"bad changeset": `{"files": [{"path": "a.go", "lines": ["x"], "changesets": {"0": {"author": "a", "date": "2025-01-01T00:00:00Z"}}}]}`,
		"bad date":      `{"files": [{"path": "a.go", "lines": ["x"], "changesets": {"1": {"author": "a", "date": "yesterday"}}}]}`,
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := report.Decode(strings.NewReader(doc))
			require.ErrorIs(t, err, report.ErrInvalidReport)
		})
	}
}

func TestOpen_PlainAndCompressed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	plain := filepath.Join(dir, "report.json")
	require.NoError(t, os.WriteFile(plain, []byte(sample), 0o600))

	compressed := filepath.Join(dir, "report.json.lz4")
	f, err := os.Create(compressed)
	require.NoError(t, err)

	w := lz4.NewWriter(f)
	_, err = w.Write([]byte(sample))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	for _, path := range []string{plain, compressed} {
		rep, openErr := report.Open(path)
		require.NoError(t, openErr, path)
		assert.Len(t, rep.Files, 2, path)
	}

	_, err = report.Open(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}
