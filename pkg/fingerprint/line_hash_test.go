package fingerprint_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/issuetrack/pkg/fingerprint"
)

func TestHashLine_IgnoresWhitespace(t *testing.T) {
	t.Parallel()

	assert.Equal(t, fingerprint.HashLine("foo(bar);"), fingerprint.HashLine("  foo( bar );\t"))
	assert.NotEqual(t, fingerprint.HashLine("foo"), fingerprint.HashLine("bar"))
	// md5("foo")
	assert.Equal(t, "acbd18db4cc2f85cedef654fccc4a4d8", fingerprint.HashLine("f o o"))
}

func TestHashLine_BlankLineIsEmpty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, fingerprint.HashLine(""))
	assert.Empty(t, fingerprint.HashLine(" \t \r"))
}

func TestLineHashSequence_HashForLine(t *testing.T) {
	t.Parallel()

	seq := fingerprint.NewLineHashSequence([]string{"line 1", "line 2", ""})

	require.Equal(t, 3, seq.Length())
	assert.Equal(t, fingerprint.HashLine("line 1"), seq.HashForLine(1))
	assert.Equal(t, fingerprint.HashLine("line 2"), seq.HashForLine(2))
	assert.Empty(t, seq.HashForLine(3))
	assert.True(t, seq.HasLine(3))
}

func TestLineHashSequence_OutOfRange(t *testing.T) {
	t.Parallel()

	seq := fingerprint.NewLineHashSequence([]string{"a"})

	assert.Empty(t, seq.HashForLine(0))
	assert.Empty(t, seq.HashForLine(-3))
	assert.Empty(t, seq.HashForLine(2))
	assert.False(t, seq.HasLine(2))

	var nilSeq *fingerprint.LineHashSequence
	assert.Empty(t, nilSeq.HashForLine(1))
	assert.Zero(t, nilSeq.Length())
}

func TestLineHashSequence_LinesForHash(t *testing.T) {
	t.Parallel()

	seq := fingerprint.NewLineHashSequence([]string{"x", "y", "x "})

	assert.Equal(t, []int{1, 3}, seq.LinesForHash(fingerprint.HashLine("x")))
	assert.Equal(t, []int{2}, seq.LinesForHash(fingerprint.HashLine("y")))
	assert.Empty(t, seq.LinesForHash(fingerprint.HashLine("z")))
}

func TestFromHashes_RoundTrip(t *testing.T) {
	t.Parallel()

	seq := fingerprint.NewLineHashSequence([]string{"a", "b"})
	restored := fingerprint.FromHashes(seq.Hashes())

	assert.Equal(t, seq.Hashes(), restored.Hashes())
	assert.Equal(t, seq.HashForLine(2), restored.HashForLine(2))
}
