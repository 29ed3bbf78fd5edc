// Package checksum derives document version strings.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ETag quotes a version for use in an HTTP ETag header.
func ETag(version string) string {
	return `"` + version + `"`
}

// Matches reports whether an If-Match style precondition accepts version.
// An empty precondition or "*" always matches; quotes and a weak "W/"
// prefix are ignored.
func Matches(precondition, version string) bool {
	p := strings.TrimSpace(precondition)
	if p == "" || p == "*" {
		return true
	}
	p = strings.TrimPrefix(p, "W/")
	return strings.Trim(p, `"`) == version
}
