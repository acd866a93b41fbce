package commands

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/issuetrack/pkg/debt"
	"github.com/Sumatoshi-tech/issuetrack/pkg/issuetracking"
	"github.com/Sumatoshi-tech/issuetrack/pkg/observability"
)

const projectLabel = "(project)"

// outcomeOrder is the display order of outcomes.
var outcomeOrder = []string{
	observability.OutcomeNew,
	observability.OutcomeMatched,
	observability.OutcomeClosed,
	observability.OutcomeReopened,
	observability.OutcomeCopied,
	observability.OutcomeShortBranchMerged,
	observability.OutcomeAlreadyOnTarget,
}

var outcomeColors = map[string]color.Attribute{
	observability.OutcomeNew:      color.FgYellow,
	observability.OutcomeClosed:   color.FgGreen,
	observability.OutcomeReopened: color.FgRed,
}

type summaryOptions struct {
	NoColor    bool
	HoursInDay int
	// StorePath is the database file; empty for the in-memory store.
	StorePath string
	DryRun    bool
}

func renderSummary(w io.Writer, res *issuetracking.Result, opts summaryOptions) error {
	var b strings.Builder

	bold := newColor(opts.NoColor, color.Bold)

	fmt.Fprintf(&b, "%s %s (%s), %s files\n\n",
		bold.Sprint("Branch"), res.Branch.Name, res.Strategy, humanize.Comma(int64(len(res.Files))))

	b.WriteString(outcomeTable(res.Outcomes, opts.NoColor))
	b.WriteString("\n\n")
	b.WriteString(componentTable(res, debt.Durations{HoursInDay: opts.HoursInDay}))
	b.WriteString("\n\n")
	b.WriteString(persistLine(res, opts))
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	if err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	return nil
}

func newColor(noColor bool, attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if noColor {
		c.DisableColor()
	}

	return c
}

func newTable() table.Writer {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.DrawBorder = false

	return tbl
}

func outcomeTable(outcomes map[string]int, noColor bool) string {
	tbl := newTable()
	tbl.AppendHeader(table.Row{"Outcome", "Issues"})

	total := 0

	for _, name := range outcomeOrder {
		n := outcomes[name]
		if n == 0 {
			continue
		}

		total += n
		label := name

		if attr, ok := outcomeColors[name]; ok {
			label = newColor(noColor, attr).Sprint(name)
		}

		tbl.AppendRow(table.Row{label, humanize.Comma(int64(n))})
	}

	tbl.AppendFooter(table.Row{"Total", humanize.Comma(int64(total))})

	return tbl.Render()
}

// componentTable lists the project and its directories.
func componentTable(res *issuetracking.Result, durations debt.Durations) string {
	files := make(map[string]bool, len(res.Files))
	for _, f := range res.Files {
		files[f.Path] = true
	}

	paths := make([]string, 0, len(res.Measures))

	for p := range res.Measures {
		if !files[p] {
			paths = append(paths, p)
		}
	}

	slices.Sort(paths)

	tbl := newTable()
	tbl.AppendHeader(table.Row{"Component", "Issues", "New", "Closed", "Effort"})

	for _, p := range paths {
		m := res.Measures[p]

		name := p
		if name == "" {
			name = projectLabel
		}

		tbl.AppendRow(table.Row{
			name,
			humanize.Comma(int64(m.Issues)),
			humanize.Comma(int64(m.New)),
			humanize.Comma(int64(m.Closed)),
			durations.Encode(m.Effort),
		})
	}

	return tbl.Render()
}

func persistLine(res *issuetracking.Result, opts summaryOptions) string {
	if opts.DryRun {
		return "Dry run: nothing persisted"
	}

	p := res.Persisted
	line := fmt.Sprintf("Persisted %s inserts, %s updates (%s merged with concurrent edits)",
		humanize.Comma(int64(p.Inserts)), humanize.Comma(int64(p.Updates)), humanize.Comma(int64(p.Merged)))

	if opts.StorePath == "" {
		return line
	}

	info, err := os.Stat(opts.StorePath)
	if err != nil {
		return line
	}

	return fmt.Sprintf("%s to %s (%s)", line, opts.StorePath, humanize.Bytes(uint64(info.Size())))
}
