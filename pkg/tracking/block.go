package tracking

import (
	"cmp"
	"maps"
	"slices"

	"github.com/Sumatoshi-tech/issuetrack/pkg/fingerprint"
)

// maxLinePairs bounds the number of line combinations the recognizer weighs.
const maxLinePairs = 250_000

type linePair struct {
	baseLine int
	rawLine  int
	weight   int
}

type occurrence struct {
	baseLine, rawLine   int
	baseCount, rawCount int
}

// recognizeBlocks matches issues whose surrounding block of code moved. Lines
// whose block hash is unique on both sides are paired first; remaining lines
// are paired by the length of the longest run of equal lines around them.
func recognizeBlocks[R, B Trackable](t *Tracking[R, B], raw Input[R], base Input[B]) {
	rawBlocks, baseBlocks := raw.BlockHashes(), base.BlockHashes()

	rawsByLine := groupByLine(t.rawSigs, t.unmatchedRawIndexes(), rawBlocks)
	basesByLine := groupByLine(t.baseSigs, t.unmatchedBaseIndexes(), baseBlocks)

	if len(rawsByLine) == 0 || len(basesByLine) == 0 {
		return
	}

	byHash := make(map[uint32]*occurrence)

	for _, line := range slices.Sorted(maps.Keys(basesByLine)) {
		h, _ := baseBlocks.BlockHashForLine(line)

		if occ, ok := byHash[h]; ok {
			occ.baseCount++
		} else {
			byHash[h] = &occurrence{baseLine: line, baseCount: 1}
		}
	}

	for _, line := range slices.Sorted(maps.Keys(rawsByLine)) {
		h, _ := rawBlocks.BlockHashForLine(line)

		if occ, ok := byHash[h]; ok {
			occ.rawLine = line
			occ.rawCount++
		}
	}

	unique := make([]*occurrence, 0, len(byHash))

	for _, occ := range byHash {
		if occ.baseCount == 1 && occ.rawCount == 1 {
			unique = append(unique, occ)
		}
	}

	slices.SortFunc(unique, func(a, b *occurrence) int { return cmp.Compare(a.baseLine, b.baseLine) })

	for _, occ := range unique {
		mapLines(t, rawsByLine[occ.rawLine], basesByLine[occ.baseLine])
		delete(rawsByLine, occ.rawLine)
		delete(basesByLine, occ.baseLine)
	}

	if len(rawsByLine)*len(basesByLine) >= maxLinePairs {
		return
	}

	pairs := make([]linePair, 0)

	for baseLine := range basesByLine {
		for rawLine := range rawsByLine {
			w := maximalBlockLength(base.LineHashes(), baseLine, raw.LineHashes(), rawLine)
			if w > 0 {
				pairs = append(pairs, linePair{baseLine: baseLine, rawLine: rawLine, weight: w})
			}
		}
	}

	slices.SortFunc(pairs, func(a, b linePair) int {
		return cmp.Or(
			cmp.Compare(b.weight, a.weight),
			cmp.Compare(abs(a.baseLine-a.rawLine), abs(b.baseLine-b.rawLine)),
			cmp.Compare(a.baseLine, b.baseLine),
			cmp.Compare(a.rawLine, b.rawLine),
		)
	})

	for _, p := range pairs {
		mapLines(t, rawsByLine[p.rawLine], basesByLine[p.baseLine])
	}
}

// groupByLine indexes issues by line, skipping issues without a known line.
func groupByLine(sigs []Signature, indexes []int, blocks *fingerprint.BlockHashSequence) map[int][]int {
	out := make(map[int][]int)

	for _, i := range indexes {
		line := sigs[i].Line
		if _, ok := blocks.BlockHashForLine(line); !ok {
			continue
		}

		out[line] = append(out[line], i)
	}

	return out
}

// mapLines pairs, for each raw on a line, the first unmatched base of the same rule.
func mapLines[R, B Trackable](t *Tracking[R, B], raws, bases []int) {
	for _, ri := range raws {
		if !t.rawUnmatched(ri) {
			continue
		}

		for _, bi := range bases {
			if t.baseUnmatched(bi) && t.baseSigs[bi].RuleKey == t.rawSigs[ri].RuleKey {
				t.match(ri, bi)

				break
			}
		}
	}
}

// maximalBlockLength counts the equal lines starting at the two lines, forward
// then backward. It is zero when the starting lines differ.
func maximalBlockLength(a *fingerprint.LineHashSequence, startA int, b *fingerprint.LineHashSequence, startB int) int {
	length := 0

	for ai, bi := startA, startB; a.HasLine(ai) && b.HasLine(bi) && a.HashForLine(ai) == b.HashForLine(bi); ai, bi = ai+1, bi+1 {
		length++
	}

	if length == 0 {
		return 0
	}

	for ai, bi := startA-1, startB-1; a.HasLine(ai) && b.HasLine(bi) && a.HashForLine(ai) == b.HashForLine(bi); ai, bi = ai-1, bi-1 {
		length++
	}

	return length
}

func abs(v int) int {
	if v < 0 {
		return -v
	}

	return v
}
