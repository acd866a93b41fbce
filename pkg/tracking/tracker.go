package tracking

import (
	"cmp"
	"slices"

	"github.com/Sumatoshi-tech/issuetrack/pkg/rules"
)

type searchKey struct {
	key     string
	rule    rules.Key
	line    int
	hash    string
	message string
}

// keyFunc derives the search key of a pass; ok is false when the issue can't take part.
type keyFunc func(Signature) (searchKey, bool)

func byPersistedKey(s Signature) (searchKey, bool) {
	return searchKey{key: s.Key, rule: s.RuleKey}, s.Key != ""
}

func byLineAndLineHash(s Signature) (searchKey, bool) {
	return searchKey{rule: s.RuleKey, line: s.Line, hash: s.LineHash}, s.LineHash != ""
}

func byLineHashAndMessage(s Signature) (searchKey, bool) {
	return searchKey{rule: s.RuleKey, hash: s.LineHash, message: s.Message}, s.LineHash != ""
}

// byLineAndMessage also matches issues without a line on rule and message.
func byLineAndMessage(s Signature) (searchKey, bool) {
	return searchKey{rule: s.RuleKey, line: s.Line, message: s.Message}, true
}

func byLineLineHashAndMessage(s Signature) (searchKey, bool) {
	return searchKey{rule: s.RuleKey, line: s.Line, hash: s.LineHash, message: s.Message}, s.LineHash != ""
}

func byLineHash(s Signature) (searchKey, bool) {
	return searchKey{rule: s.RuleKey, hash: s.LineHash}, s.LineHash != ""
}

var exactPasses = []keyFunc{
	byPersistedKey,
	byLineAndLineHash,
	byLineHashAndMessage,
	byLineAndMessage,
}

// Tracker matches raws against bases in passes of decreasing confidence. Each
// issue is matched at most once and the outcome only depends on the inputs.
type Tracker[R, B Trackable] struct {
	passes   []keyFunc
	blocks   bool
	anyLine  bool
	fallback bool
}

// NewTracker returns the full tracker: exact passes, moved blocks, same line
// hash anywhere in the file, then a closest-line fallback on rule and message.
func NewTracker[R, B Trackable]() *Tracker[R, B] {
	return &Tracker[R, B]{passes: exactPasses, blocks: true, anyLine: true, fallback: true}
}

// NewSimpleTracker returns a tracker that only runs the hash and message passes.
func NewSimpleTracker[R, B Trackable]() *Tracker[R, B] {
	return &Tracker[R, B]{passes: exactPasses, anyLine: true}
}

// NewStrictTracker returns a tracker that only matches issues on the same
// line, line hash and message. It is used to recognize closed issues that came back.
func NewStrictTracker[R, B Trackable]() *Tracker[R, B] {
	return &Tracker[R, B]{passes: []keyFunc{byLineLineHashAndMessage}}
}

// Track matches the issues of raw against those of base.
func (tr *Tracker[R, B]) Track(raw Input[R], base Input[B]) *Tracking[R, B] {
	t := newTracking(raw.Issues(), base.Issues())

	for _, pass := range tr.passes {
		matchByKey(t, pass)
	}

	if tr.blocks && !t.IsComplete() {
		recognizeBlocks(t, raw, base)
	}

	if tr.anyLine {
		matchByKey(t, byLineHash)
	}

	if tr.fallback && !t.IsComplete() {
		matchClosest(t, raw, base)
	}

	return t
}

// baseOrder sorts base candidates by key, then line, then input position.
func baseOrder(sigs []Signature) func(a, b int) int {
	return func(a, b int) int {
		return cmp.Or(
			cmp.Compare(sigs[a].Key, sigs[b].Key),
			cmp.Compare(sigs[a].Line, sigs[b].Line),
			cmp.Compare(a, b),
		)
	}
}

func matchByKey[R, B Trackable](t *Tracking[R, B], fn keyFunc) {
	if t.IsComplete() {
		return
	}

	candidates := make(map[searchKey][]int)

	for _, bi := range t.unmatchedBaseIndexes() {
		k, ok := fn(t.baseSigs[bi])
		if ok {
			candidates[k] = append(candidates[k], bi)
		}
	}

	if len(candidates) == 0 {
		return
	}

	order := baseOrder(t.baseSigs)
	for _, list := range candidates {
		slices.SortFunc(list, order)
	}

	for _, ri := range t.unmatchedRawIndexes() {
		k, ok := fn(t.rawSigs[ri])
		if !ok {
			continue
		}

		list := candidates[k]
		if len(list) == 0 {
			continue
		}

		t.match(ri, list[0])
		candidates[k] = list[1:]
	}
}

// Candidates returns, for every raw, the indexes of the bases sharing a search
// key with it in any key pass of the tracker, in base input order. Unlike
// Track it does not pair issues, so callers can rank equivalent bases.
func (tr *Tracker[R, B]) Candidates(raw Input[R], base Input[B]) [][]int {
	raws, bases := raw.Issues(), base.Issues()

	passes := slices.Clone(tr.passes)
	if tr.anyLine {
		passes = append(passes, byLineHash)
	}

	baseSigs := make([]Signature, len(bases))
	for i, b := range bases {
		baseSigs[i] = b.Signature()
	}

	index := make([]map[searchKey][]int, len(passes))
	for p, fn := range passes {
		index[p] = make(map[searchKey][]int)

		for bi, s := range baseSigs {
			k, ok := fn(s)
			if ok {
				index[p][k] = append(index[p][k], bi)
			}
		}
	}

	out := make([][]int, len(raws))

	for ri, r := range raws {
		sig := r.Signature()

		var found []int

		for p, fn := range passes {
			k, ok := fn(sig)
			if ok {
				found = append(found, index[p][k]...)
			}
		}

		slices.Sort(found)
		out[ri] = slices.Compact(found)
	}

	return out
}
