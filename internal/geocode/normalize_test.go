package geocode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheKey_FoldsCaseOnly(t *testing.T) {
	base := CacheKey("500 Test Ave")

	assert.Len(t, base, 40)
	assert.Equal(t, base, CacheKey("500 TEST AVE"))
	assert.Equal(t, base, CacheKey("500 test ave"))

	assert.NotEqual(t, base, CacheKey("500  Test Ave"), "whitespace variants stay distinct")
	assert.NotEqual(t, base, CacheKey("500 Test Ave."), "punctuation variants stay distinct")
	assert.NotEqual(t, base, CacheKey(" 500 Test Ave"))
}

func TestCacheKey_KnownDigest(t *testing.T) {
	// sha1("abc")
	assert.Equal(t, "a9993e364706816aba3e25717850c26c9cd0d89d", CacheKey("ABC"))
}

func TestQuery_Verbatim(t *testing.T) {
	assert.Equal(t, "  500 Test Ave, Springfield ", Query("  500 Test Ave, Springfield "))
}
