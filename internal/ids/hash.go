package ids

import (
	"crypto/sha256"
	"encoding/hex"
)

// Separator is written between consecutive parts.
// Without it ["a","bc"] and ["ab","c"] would hash the same bytes.
const Separator byte = 0x00

// HexLen is the length of an id produced by FromParts.
const HexLen = sha256.Size * 2

// FromParts computes a content-addressed id from an ordered list of parts.
// Format: SHA256(part[0] + 0x00 + part[1] + 0x00 + ... + part[n-1])
//
// Parts are hashed as raw bytes. Callers that want two spellings of the same
// value to collide must normalize before calling.
//
// Example: FromParts("repo", "octo/widgets")
func FromParts(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{Separator})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// IsID reports whether s looks like an id produced by FromParts.
func IsID(s string) bool {
	if len(s) != HexLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
