package store

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// safePathComponent returns a string that is safe to use as a single path
// segment under the data root. Ordinary tokens, database names and keys
// pass through untouched; anything that could escape its directory (path
// separators, "..", empty strings) is replaced by a SHA-256 digest instead.
//
// This does not change the wire contract — a caller that stores "a/../b"
// still reads it back by asking for "a/../b" — it only changes what lands
// on disk.
func safePathComponent(s string) string {
	if isSafeComponent(s) {
		return s
	}
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func isSafeComponent(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	if strings.ContainsAny(s, "/\\\x00") {
		return false
	}
	return true
}
