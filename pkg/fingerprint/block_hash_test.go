package fingerprint_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/issuetrack/pkg/fingerprint"
)

func TestBlockHashSequence_SameBlocksSameHash(t *testing.T) {
	t.Parallel()

	lines := []string{"a", "b", "c", "d", "e", "f", "g"}
	seq := fingerprint.NewBlockHashSequenceWithHalfSize(fingerprint.NewLineHashSequence(lines), 1)

	shifted := append([]string{"x", "y"}, lines...)
	shiftedSeq := fingerprint.NewBlockHashSequenceWithHalfSize(fingerprint.NewLineHashSequence(shifted), 1)

	// Line 4 ("d") has the window c,d,e in both versions.
	original, ok := seq.BlockHashForLine(4)
	require.True(t, ok)

	moved, ok := shiftedSeq.BlockHashForLine(6)
	require.True(t, ok)

	assert.Equal(t, original, moved)
}

func TestBlockHashSequence_DifferentNeighboursDifferentHash(t *testing.T) {
	t.Parallel()

	a := fingerprint.NewBlockHashSequenceWithHalfSize(fingerprint.NewLineHashSequence([]string{"a", "b", "c"}), 1)
	b := fingerprint.NewBlockHashSequenceWithHalfSize(fingerprint.NewLineHashSequence([]string{"a", "b", "z"}), 1)

	ha, _ := a.BlockHashForLine(2)
	hb, _ := b.BlockHashForLine(2)

	assert.NotEqual(t, ha, hb)
}

func TestBlockHashSequence_RollingMatchesDirectWindow(t *testing.T) {
	t.Parallel()

	lines := []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11", "12", "13", "14"}
	full := fingerprint.NewBlockHashSequence(fingerprint.NewLineHashSequence(lines))

	// The window of line 8 covers lines 3..13 and equals that of line 6 in a
	// file starting at line 3.
	sub := fingerprint.NewBlockHashSequence(fingerprint.NewLineHashSequence(
		append([]string{"p", "q"}, lines...),
	))

	h1, ok := full.BlockHashForLine(8)
	require.True(t, ok)

	h2, ok := sub.BlockHashForLine(10)
	require.True(t, ok)

	assert.Equal(t, h1, h2)
	assert.Equal(t, len(lines), full.Length())
}

func TestBlockHashSequence_OutOfRange(t *testing.T) {
	t.Parallel()

	seq := fingerprint.NewBlockHashSequence(fingerprint.NewLineHashSequence([]string{"a"}))

	_, ok := seq.BlockHashForLine(0)
	assert.False(t, ok)

	_, ok = seq.BlockHashForLine(2)
	assert.False(t, ok)

	empty := fingerprint.NewBlockHashSequence(fingerprint.NewLineHashSequence(nil))
	assert.Zero(t, empty.Length())
}
