// Package fingerprint hashes the lines of a source file version so that issues
// can be matched across analyses even when code shifts or moves.
package fingerprint
