package utils

import (
	"net/url"
	"strings"
)

// IsValidURL reports whether s is an absolute http(s) URL with a host
func IsValidURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// JoinURL appends name to a directory URL, keeping exactly one slash between them
func JoinURL(dirURL, name string) string {
	return strings.TrimRight(dirURL, "/") + "/" + url.PathEscape(strings.TrimLeft(name, "/"))
}

// EnsureTrailingSlash returns the URL with a single trailing slash, which
// directory listings served by IIS and Apache both expect
func EnsureTrailingSlash(dirURL string) string {
	return strings.TrimRight(dirURL, "/") + "/"
}
