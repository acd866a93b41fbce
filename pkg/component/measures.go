package component

import (
	"maps"

	"github.com/Sumatoshi-tech/issuetrack/pkg/issue"
)

// Measures aggregates the issues of a component. Add is associative and
// commutative so children can be merged in any order.
type Measures struct {
	Issues     int
	New        int
	Closed     int
	Effort     int64
	ByStatus   map[issue.Status]int
	BySeverity map[issue.Severity]int
}

// MeasuresOf computes the measures of the issues of one file. Closed issues
// only count in Closed.
func MeasuresOf(issues []*issue.Issue) Measures {
	m := Measures{ByStatus: map[issue.Status]int{}, BySeverity: map[issue.Severity]int{}}

	for _, iss := range issues {
		if iss.Status == issue.StatusClosed {
			m.Closed++

			continue
		}

		m.ByStatus[iss.Status]++

		if iss.IsResolved() {
			continue
		}

		m.Issues++
		m.BySeverity[iss.Severity]++

		if iss.New {
			m.New++
		}

		if iss.Effort != nil {
			m.Effort += *iss.Effort
		}
	}

	return m
}

// Add returns the sum of two measures.
func (m Measures) Add(o Measures) Measures {
	sum := Measures{
		Issues:     m.Issues + o.Issues,
		New:        m.New + o.New,
		Closed:     m.Closed + o.Closed,
		Effort:     m.Effort + o.Effort,
		ByStatus:   maps.Clone(m.ByStatus),
		BySeverity: maps.Clone(m.BySeverity),
	}

	if sum.ByStatus == nil {
		sum.ByStatus = map[issue.Status]int{}
	}

	if sum.BySeverity == nil {
		sum.BySeverity = map[issue.Severity]int{}
	}

	for k, v := range o.ByStatus {
		sum.ByStatus[k] += v
	}

	for k, v := range o.BySeverity {
		sum.BySeverity[k] += v
	}

	return sum
}

// Rollup computes the measures of every component from the measures of its
// files, keyed by component path.
func Rollup(root *Component, files map[string]Measures) map[string]Measures {
	out := make(map[string]Measures)

	_ = root.VisitPostOrder(func(c *Component) error {
		if c.Kind == KindFile {
			out[c.Path] = Measures{}.Add(files[c.Path])

			return nil
		}

		total := Measures{}
		for _, child := range c.Children {
			total = total.Add(out[child.Path])
		}

		out[c.Path] = total

		return nil
	})

	return out
}
