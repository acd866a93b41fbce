package fingerprint

import "hash/fnv"

// DefaultHalfBlockSize is the number of lines on each side of a line included in its block.
const DefaultHalfBlockSize = 5

const primeBase uint32 = 31

// BlockHashSequence holds, for every line, a rolling hash of the window of line
// hashes centered on it. Positions outside the file contribute zero.
type BlockHashSequence struct {
	hashes []uint32
}

// NewBlockHashSequence builds the block hashes using DefaultHalfBlockSize.
func NewBlockHashSequence(lines *LineHashSequence) *BlockHashSequence {
	return NewBlockHashSequenceWithHalfSize(lines, DefaultHalfBlockSize)
}

// NewBlockHashSequenceWithHalfSize builds the block hashes in a single pass.
func NewBlockHashSequenceWithHalfSize(lines *LineHashSequence, half int) *BlockHashSequence {
	if half < 0 {
		half = 0
	}

	n := lines.Length()
	values := make([]uint32, n)

	for i := range n {
		values[i] = lineValue(lines.HashForLine(i + 1))
	}

	at := func(line int) uint32 {
		if line < 1 || line > n {
			return 0
		}

		return values[line-1]
	}

	power := uint32(1)
	for range 2 * half {
		power *= primeBase
	}

	// Window of line 1 is [1-half, 1+half].
	var hash uint32
	for line := 1 - half; line <= 1+half; line++ {
		hash = hash*primeBase + at(line)
	}

	hashes := make([]uint32, n)

	for line := 1; line <= n; line++ {
		hashes[line-1] = hash
		hash = (hash-power*at(line-half))*primeBase + at(line+half+1)
	}

	return &BlockHashSequence{hashes: hashes}
}

// BlockHashForLine returns the block hash of a 1-based line.
func (s *BlockHashSequence) BlockHashForLine(line int) (uint32, bool) {
	if s == nil || line < 1 || line > len(s.hashes) {
		return 0, false
	}

	return s.hashes[line-1], true
}

// Length returns the number of lines.
func (s *BlockHashSequence) Length() int {
	if s == nil {
		return 0
	}

	return len(s.hashes)
}

func lineValue(hash string) uint32 {
	if hash == "" {
		return 0
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(hash))

	return h.Sum32()
}
