package geocode

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// CacheKey derives the cache key for an address: the hex SHA-1 of the lower-cased input.
// Only letter case is folded. Whitespace and punctuation variants produce distinct keys.
func CacheKey(address string) string {
	sum := sha1.Sum([]byte(strings.ToLower(address)))
	return hex.EncodeToString(sum[:])
}

// Query returns the string submitted to the geocoding API, which is the address verbatim.
func Query(address string) string {
	return address
}
