package fingerprint

import (
	"crypto/md5" //nolint:gosec // checksum compatibility with stored line hashes, not security.
	"encoding/hex"
	"strings"
)

// insignificant lists the characters removed from a line before hashing.
const insignificant = " \t\r\n"

// LineHashSequence is the ordered list of per-line content hashes of one file version.
// Line numbers are 1-based.
type LineHashSequence struct {
	hashes []string
	lines  map[string][]int
}

// NewLineHashSequence hashes every line of a file.
func NewLineHashSequence(lines []string) *LineHashSequence {
	hashes := make([]string, len(lines))

	for i, line := range lines {
		hashes[i] = HashLine(line)
	}

	return FromHashes(hashes)
}

// FromHashes wraps already computed line hashes, for example ones loaded from storage.
func FromHashes(hashes []string) *LineHashSequence {
	lines := make(map[string][]int, len(hashes))

	for i, h := range hashes {
		lines[h] = append(lines[h], i+1)
	}

	return &LineHashSequence{hashes: hashes, lines: lines}
}

// HashLine returns the hex MD5 of the line stripped of whitespace.
// A blank line hashes to the empty string.
func HashLine(line string) string {
	stripped := strings.Map(func(r rune) rune {
		if strings.ContainsRune(insignificant, r) {
			return -1
		}

		return r
	}, line)

	if stripped == "" {
		return ""
	}

	sum := md5.Sum([]byte(stripped)) //nolint:gosec // see import.

	return hex.EncodeToString(sum[:])
}

// Length returns the number of lines.
func (s *LineHashSequence) Length() int {
	if s == nil {
		return 0
	}

	return len(s.hashes)
}

// HashForLine returns the hash of a 1-based line, or "" when the line is out of range.
func (s *LineHashSequence) HashForLine(line int) string {
	if s == nil || line < 1 || line > len(s.hashes) {
		return ""
	}

	return s.hashes[line-1]
}

// HasLine reports whether line is within the sequence.
func (s *LineHashSequence) HasLine(line int) bool {
	return s != nil && line >= 1 && line <= len(s.hashes)
}

// LinesForHash returns the lines carrying the given hash, in ascending order.
func (s *LineHashSequence) LinesForHash(hash string) []int {
	if s == nil {
		return nil
	}

	return s.lines[hash]
}

// Hashes returns a copy of the hashes in line order.
func (s *LineHashSequence) Hashes() []string {
	if s == nil {
		return nil
	}

	out := make([]string, len(s.hashes))
	copy(out, s.hashes)

	return out
}
