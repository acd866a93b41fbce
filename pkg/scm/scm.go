// Package scm holds per-line blame data supplied with an analysis.
package scm

import "time"

// Changeset is the last change of a line.
type Changeset struct {
	Author   string
	Date     time.Time
	Revision string
}

// Info is the blame of one file.
type Info struct {
	lines  map[int]Changeset
	latest Changeset
	found  bool
}

// NewInfo indexes changesets by 1-based line.
func NewInfo(byLine map[int]Changeset) *Info {
	info := &Info{lines: make(map[int]Changeset, len(byLine))}

	for line, cs := range byLine {
		info.lines[line] = cs

		if !info.found || cs.Date.After(info.latest.Date) ||
			(cs.Date.Equal(info.latest.Date) && cs.Revision > info.latest.Revision) {
			info.latest = cs
			info.found = true
		}
	}

	return info
}

// ForLine returns the changeset of a line.
func (i *Info) ForLine(line int) (Changeset, bool) {
	if i == nil {
		return Changeset{}, false
	}

	cs, ok := i.lines[line]

	return cs, ok
}

// Latest returns the most recent changeset of the file.
func (i *Info) Latest() (Changeset, bool) {
	if i == nil {
		return Changeset{}, false
	}

	return i.latest, i.found
}

// Provider gives the blame of a file. Implementations are read-only once
// tracking starts.
type Provider interface {
	Info(path string) (*Info, bool)
}

// MapProvider is a Provider over preloaded blame data.
type MapProvider map[string]*Info

// Info implements Provider.
func (m MapProvider) Info(path string) (*Info, bool) {
	info, ok := m[path]

	return info, ok
}
