package ids

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
)

func TestFromPartsDeterminism(t *testing.T) {
	id1 := FromParts("repo", "o/r1")
	id2 := FromParts("repo", "o/r1")

	assert.Equal(t, id1, id2, "FromParts must be deterministic")
	assert.Len(t, id1, 64, "SHA-256 hex is 64 characters")
	assert.True(t, IsID(id1))
}

func TestFromPartsSeparatorPreventsBoundaryCollision(t *testing.T) {
	assert.NotEqual(t, FromParts("a", "bc"), FromParts("ab", "c"))
	assert.NotEqual(t, FromParts("", "a"), FromParts("a", ""))
	assert.NotEqual(t, FromParts("a"), FromParts("a", ""))
	assert.NotEqual(t, FromParts(), FromParts(""), "zero parts and one empty part differ")
}

func TestFromPartsMatchesManualDigest(t *testing.T) {
	sum := sha256.Sum256([]byte("repo\x00o/r1"))
	assert.Equal(t, hex.EncodeToString(sum[:]), FromParts("repo", "o/r1"))
}

func TestFromPartsIsLowercaseHex(t *testing.T) {
	id := FromParts("Upper", "CASE")
	for _, c := range id {
		assert.Contains(t, "0123456789abcdef", string(c))
	}
}

func TestFromPartsBoundaryProperty(t *testing.T) {
	// Two pairs whose separator-joined bytes differ must hash differently.
	prop := func(a, b, c, d string) bool {
		if a+"\x00"+b == c+"\x00"+d {
			return FromParts(a, b) == FromParts(c, d)
		}
		return FromParts(a, b) != FromParts(c, d)
	}
	assert.NoError(t, quick.Check(prop, nil))

	// Moving the boundary inside the same concatenation always changes the id.
	shift := func(s string, cut uint8) bool {
		if len(s) < 2 {
			return true
		}
		i := int(cut)%(len(s)-1) + 1
		j := i%(len(s)-1) + 1
		if s[:i]+"\x00"+s[i:] == s[:j]+"\x00"+s[j:] {
			return FromParts(s[:i], s[i:]) == FromParts(s[:j], s[j:])
		}
		return FromParts(s[:i], s[i:]) != FromParts(s[:j], s[j:])
	}
	assert.NoError(t, quick.Check(shift, nil))
}

func TestIsID(t *testing.T) {
	assert.False(t, IsID(""))
	assert.False(t, IsID("abc"))
	assert.False(t, IsID(FromParts("x")[:63]+"G"))
	assert.True(t, IsID(FromParts("x")))
}
