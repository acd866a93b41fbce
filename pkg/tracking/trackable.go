// Package tracking matches issues raised by an analysis (raws) against the
// issues known from a previous analysis (bases) of the same file.
package tracking

import (
	"github.com/Sumatoshi-tech/issuetrack/pkg/fingerprint"
	"github.com/Sumatoshi-tech/issuetrack/pkg/rules"
)

// Signature is what the tracker compares.
type Signature struct {
	// Key is the persisted identity; empty when the issue was never stored.
	Key     string
	RuleKey rules.Key
	// Line is 1-based; zero when the issue has no line.
	Line    int
	Message string
	// LineHash is the hash of the issue line; empty when unknown.
	LineHash string
}

// Trackable is anything the tracker can match.
type Trackable interface {
	Signature() Signature
}

// Input is the set of issues of one file on one side of the tracking, with the
// fingerprints of the matching file version.
type Input[T Trackable] interface {
	LineHashes() *fingerprint.LineHashSequence
	BlockHashes() *fingerprint.BlockHashSequence
	Issues() []T
}

// StaticInput is an Input over an in-memory issue list. Block hashes are built
// on first use. A StaticInput is not safe for concurrent use.
type StaticInput[T Trackable] struct {
	lines     *fingerprint.LineHashSequence
	blocks    *fingerprint.BlockHashSequence
	halfBlock int
	issues    []T
}

// NewInput builds an input using the default block size.
func NewInput[T Trackable](lines *fingerprint.LineHashSequence, issues []T) *StaticInput[T] {
	return NewInputWithBlockSize(lines, issues, fingerprint.DefaultHalfBlockSize)
}

// NewInputWithBlockSize builds an input whose blocks span 2*halfBlock+1 lines.
func NewInputWithBlockSize[T Trackable](
	lines *fingerprint.LineHashSequence, issues []T, halfBlock int,
) *StaticInput[T] {
	if lines == nil {
		lines = fingerprint.FromHashes(nil)
	}

	return &StaticInput[T]{lines: lines, halfBlock: halfBlock, issues: issues}
}

// LineHashes implements Input.
func (in *StaticInput[T]) LineHashes() *fingerprint.LineHashSequence {
	return in.lines
}

// BlockHashes implements Input.
func (in *StaticInput[T]) BlockHashes() *fingerprint.BlockHashSequence {
	if in.blocks == nil {
		in.blocks = fingerprint.NewBlockHashSequenceWithHalfSize(in.lines, in.halfBlock)
	}

	return in.blocks
}

// Issues implements Input.
func (in *StaticInput[T]) Issues() []T {
	return in.issues
}
