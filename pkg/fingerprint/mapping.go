package fingerprint

import (
	"maps"
	"slices"
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// LineMapping maps lines of an old file version to the lines they became in a new version.
// Only lines left unchanged by the diff are mapped.
type LineMapping struct {
	oldToNew map[int]int
	mapped   []int
}

// NewLineMapping diffs two line hash sequences line by line.
func NewLineMapping(old, updated *LineHashSequence) *LineMapping {
	mapping := &LineMapping{oldToNew: make(map[int]int)}

	if old.Length() == 0 || updated.Length() == 0 {
		return mapping
	}

	dmp := diffmatchpatch.New()
	src, dst, lineArray := dmp.DiffLinesToRunes(joinHashes(old), joinHashes(updated))
	diffs := dmp.DiffMainRunes(src, dst, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	oldLine, newLine := 1, 1

	for _, d := range diffs {
		count := strings.Count(d.Text, "\n")

		switch d.Type {
		case diffmatchpatch.DiffEqual:
			for i := range count {
				mapping.oldToNew[oldLine+i] = newLine + i
			}

			oldLine += count
			newLine += count
		case diffmatchpatch.DiffDelete:
			oldLine += count
		case diffmatchpatch.DiffInsert:
			newLine += count
		}
	}

	mapping.mapped = slices.Sorted(maps.Keys(mapping.oldToNew))

	return mapping
}

// NewLine returns the line in the new version for an old line.
func (m *LineMapping) NewLine(oldLine int) (int, bool) {
	if m == nil {
		return 0, false
	}

	line, ok := m.oldToNew[oldLine]

	return line, ok
}

// Project estimates where an old line ended up. Unmapped lines keep their
// offset from the closest preceding mapped line, or from the closest following
// one at the start of the file. Without any mapped line the line is returned as is.
func (m *LineMapping) Project(oldLine int) int {
	if m == nil || len(m.mapped) == 0 {
		return oldLine
	}

	if line, ok := m.oldToNew[oldLine]; ok {
		return line
	}

	i := sort.SearchInts(m.mapped, oldLine)
	if i > 0 {
		prev := m.mapped[i-1]

		return m.oldToNew[prev] + oldLine - prev
	}

	next := m.mapped[0]

	return max(1, m.oldToNew[next]-(next-oldLine))
}

// Len returns the number of mapped lines.
func (m *LineMapping) Len() int {
	if m == nil {
		return 0
	}

	return len(m.oldToNew)
}

// joinHashes renders one hash per line. Blank lines get a placeholder so that
// every line ends with a newline and remains diffable.
func joinHashes(s *LineHashSequence) string {
	var sb strings.Builder

	for _, h := range s.hashes {
		if h == "" {
			h = "-"
		}

		sb.WriteString(h)
		sb.WriteByte('\n')
	}

	return sb.String()
}
