package utils

import (
	"mime"
	"net/http"
	"path"
	"strings"
)

const textPlain = "text/plain; charset=utf-8"

// statistical series files are tab separated text regardless of their suffix
var textSuffixes = []string{
	".txt", ".csv", ".tsv", ".current", ".alldata", ".series", ".footnote", ".contacts",
}

// DetectContentType picks a content type from the object name and falls back
// to sniffing the first bytes of body.
func DetectContentType(name string, body []byte) string {
	ext := strings.ToLower(path.Ext(name))
	for _, suffix := range textSuffixes {
		if ext == suffix {
			return textPlain
		}
	}
	if ext != "" {
		if mimeType := mime.TypeByExtension(ext); mimeType != "" {
			return mimeType
		}
	}
	if len(body) == 0 {
		return "application/octet-stream"
	}
	return http.DetectContentType(body)
}
