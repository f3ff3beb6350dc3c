package blob

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Match: starts with one or more / OR contains \ OR contains ..
var regexForbiddenPatterns = regexp.MustCompile(`^/+|\\+|\.\.`)

// ValidateKey reports whether key is usable both as an S3 key and as a row
// key in the sqlite store.
func ValidateKey(key string) bool {
	// S3 keys must be between 1 and 1024 bytes long
	if len(key) == 0 || len(key) > 1024 {
		return false
	} else if key == "." || key == ".." {
		return false
	}

	if regexForbiddenPatterns.MatchString(key) {
		return false
	}

	return utf8.ValidString(key)
}

func normalizeMetaKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}
