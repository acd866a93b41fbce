package tracking

import (
	"cmp"
	"math"
	"slices"

	"github.com/Sumatoshi-tech/issuetrack/pkg/fingerprint"
	"github.com/Sumatoshi-tech/issuetrack/pkg/rules"
)

// farDistance ranks pairs where at least one side has no line after every located pair.
const farDistance = math.MaxInt32

type ruleMessage struct {
	rule    rules.Key
	message string
}

type candidate struct {
	raw, base int
	distance  int
}

// matchClosest pairs remaining raws and bases with the same rule and message,
// closest lines first. Base lines are projected onto the raw file through a
// line diff when both file versions are known.
func matchClosest[R, B Trackable](t *Tracking[R, B], raw Input[R], base Input[B]) {
	bases := make(map[ruleMessage][]int)

	for _, bi := range t.unmatchedBaseIndexes() {
		s := t.baseSigs[bi]
		k := ruleMessage{rule: s.RuleKey, message: s.Message}
		bases[k] = append(bases[k], bi)
	}

	var (
		candidates []candidate
		mapping    *fingerprint.LineMapping
		mapped     bool
	)

	project := func(line int) int {
		if !mapped {
			mapped = true

			if raw.LineHashes().Length() > 0 && base.LineHashes().Length() > 0 {
				mapping = fingerprint.NewLineMapping(base.LineHashes(), raw.LineHashes())
			}
		}

		return mapping.Project(line)
	}

	for _, ri := range t.unmatchedRawIndexes() {
		rs := t.rawSigs[ri]

		for _, bi := range bases[ruleMessage{rule: rs.RuleKey, message: rs.Message}] {
			candidates = append(candidates, candidate{raw: ri, base: bi, distance: lineDistance(rs.Line, t.baseSigs[bi].Line, project)})
		}
	}

	slices.SortFunc(candidates, func(a, b candidate) int {
		return cmp.Or(
			cmp.Compare(a.distance, b.distance),
			cmp.Compare(t.baseSigs[a.base].Key, t.baseSigs[b.base].Key),
			cmp.Compare(t.baseSigs[a.base].Line, t.baseSigs[b.base].Line),
			cmp.Compare(t.rawSigs[a.raw].Line, t.rawSigs[b.raw].Line),
			cmp.Compare(a.raw, b.raw),
			cmp.Compare(a.base, b.base),
		)
	})

	for _, c := range candidates {
		t.match(c.raw, c.base)
	}
}

func lineDistance(rawLine, baseLine int, project func(int) int) int {
	if rawLine == 0 || baseLine == 0 {
		return farDistance
	}

	return abs(rawLine - project(baseLine))
}
