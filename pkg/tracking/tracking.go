package tracking

const unmatched = -1

// Pair is a raw matched with a base.
type Pair[R, B Trackable] struct {
	Raw       R
	Base      B
	RawIndex  int
	BaseIndex int
}

// Tracking is the result of matching: every raw and every base is either part
// of exactly one pair or unmatched.
type Tracking[R, B Trackable] struct {
	raws      []R
	bases     []B
	rawSigs   []Signature
	baseSigs  []Signature
	rawToBase []int
	baseToRaw []int
	matched   int
}

func newTracking[R, B Trackable](raws []R, bases []B) *Tracking[R, B] {
	t := &Tracking[R, B]{
		raws:      raws,
		bases:     bases,
		rawSigs:   make([]Signature, len(raws)),
		baseSigs:  make([]Signature, len(bases)),
		rawToBase: make([]int, len(raws)),
		baseToRaw: make([]int, len(bases)),
	}

	for i, r := range raws {
		t.rawSigs[i] = r.Signature()
		t.rawToBase[i] = unmatched
	}

	for i, b := range bases {
		t.baseSigs[i] = b.Signature()
		t.baseToRaw[i] = unmatched
	}

	return t
}

func (t *Tracking[R, B]) match(raw, base int) {
	if t.rawToBase[raw] != unmatched || t.baseToRaw[base] != unmatched {
		return
	}

	t.rawToBase[raw] = base
	t.baseToRaw[base] = raw
	t.matched++
}

func (t *Tracking[R, B]) rawUnmatched(i int) bool  { return t.rawToBase[i] == unmatched }
func (t *Tracking[R, B]) baseUnmatched(i int) bool { return t.baseToRaw[i] == unmatched }

// IsComplete reports whether no further match is possible.
func (t *Tracking[R, B]) IsComplete() bool {
	return t.matched == len(t.raws) || t.matched == len(t.bases)
}

// Pairs returns the matched pairs in raw order.
func (t *Tracking[R, B]) Pairs() []Pair[R, B] {
	pairs := make([]Pair[R, B], 0, t.matched)

	for ri, bi := range t.rawToBase {
		if bi == unmatched {
			continue
		}

		pairs = append(pairs, Pair[R, B]{Raw: t.raws[ri], Base: t.bases[bi], RawIndex: ri, BaseIndex: bi})
	}

	return pairs
}

// UnmatchedRaws returns the raws without a base, in input order.
func (t *Tracking[R, B]) UnmatchedRaws() []R {
	out := make([]R, 0, len(t.raws)-t.matched)

	for i, r := range t.raws {
		if t.rawUnmatched(i) {
			out = append(out, r)
		}
	}

	return out
}

// UnmatchedBases returns the bases without a raw, in input order.
func (t *Tracking[R, B]) UnmatchedBases() []B {
	out := make([]B, 0, len(t.bases)-t.matched)

	for i, b := range t.bases {
		if t.baseUnmatched(i) {
			out = append(out, b)
		}
	}

	return out
}

// BaseFor returns the base matched with the raw at index i.
func (t *Tracking[R, B]) BaseFor(i int) (B, bool) {
	var zero B

	if i < 0 || i >= len(t.raws) || t.rawToBase[i] == unmatched {
		return zero, false
	}

	return t.bases[t.rawToBase[i]], true
}

// MatchCount returns the number of pairs.
func (t *Tracking[R, B]) MatchCount() int {
	return t.matched
}

func (t *Tracking[R, B]) unmatchedRawIndexes() []int {
	out := make([]int, 0, len(t.raws)-t.matched)

	for i := range t.raws {
		if t.rawUnmatched(i) {
			out = append(out, i)
		}
	}

	return out
}

func (t *Tracking[R, B]) unmatchedBaseIndexes() []int {
	out := make([]int, 0, len(t.bases)-t.matched)

	for i := range t.bases {
		if t.baseUnmatched(i) {
			out = append(out, i)
		}
	}

	return out
}
