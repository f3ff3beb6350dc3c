// Package listing turns an HTML directory index into remote file descriptors.
package listing

import (
	"errors"
	"fmt"
	"html"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// ErrParse marks a listing timestamp that matched none of the known layouts
var ErrParse = errors.New("listing: unparseable timestamp")

// RemoteFile is one file entry of a directory listing
type RemoteFile struct {
	Filename     string
	LastModified time.Time // zero when RawTimestamp did not parse
	RawTimestamp string
	SizeBytes    int64
}

// HasTimestamp reports whether LastModified was parsed from the listing
func (f RemoteFile) HasTimestamp() bool {
	return !f.LastModified.IsZero()
}

var (
	regexLineBreak = regexp.MustCompile(`(?i)<br\s*/?>|\r?\n`)
	regexAnchor    = regexp.MustCompile(`(?is)<a\s[^>]*?href\s*=\s*(?:"([^"]*)"|'([^']*)'|([^"'\s>]+))[^>]*>(.*?)</a\s*>`)
	regexTag       = regexp.MustCompile(`<[^>]*>`)
	regexSpace     = regexp.MustCompile(`\s+`)
	regexDate      = regexp.MustCompile(`^\d{1,4}[-/.][0-9A-Za-z]{1,3}[-/.]\d{2,4}$`)
	regexHumanSize = regexp.MustCompile(`^\d+(\.\d+)?[KMGTkmgt]$`)
)

var timestampLayouts = []string{
	"1/2/2006 3:04 PM",
	"1/2/2006 15:04",
	"2006-01-02 15:04",
	"02-Jan-2006 15:04",
}

// Parser reads listings whose timestamps carry no zone. They are
// interpreted in Location.
type Parser struct {
	Location *time.Location
}

func NewParser(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.UTC
	}
	return &Parser{Location: loc}
}

// Parse extracts every file entry from page. It accepts both the
// `name  date time  size` and the IIS `date time size <A>name</A>` layouts.
// A row must carry a date next to its anchor; navigation rows,
// sub-directories and anchors in free text are skipped. A row whose date
// does not parse is kept without a timestamp.
func (p *Parser) Parse(page string) []RemoteFile {
	var files []RemoteFile
	for _, line := range regexLineBreak.Split(page, -1) {
		if f, ok := p.parseLine(line); ok {
			files = append(files, f)
		}
	}
	return files
}

func (p *Parser) parseLine(line string) (RemoteFile, bool) {
	loc := regexAnchor.FindStringSubmatchIndex(line)
	if loc == nil {
		return RemoteFile{}, false
	}

	var href string
	for g := 1; g <= 3; g++ {
		if loc[2*g] >= 0 {
			href = html.UnescapeString(line[loc[2*g]:loc[2*g+1]])
			break
		}
	}
	text := strings.TrimSpace(html.UnescapeString(regexTag.ReplaceAllString(line[loc[8]:loc[9]], "")))
	if isNavigation(href, text) {
		return RemoteFile{}, false
	}

	// anchor text may be truncated ("very_long_fil..>"), the href is not
	name := hrefName(href)
	if name == "" {
		name = text
	}
	if name == "" || name == "." || name == ".." || strings.Contains(name, "/") {
		return RemoteFile{}, false
	}

	rest := line[:loc[0]] + " " + line[loc[1]:]
	rest = html.UnescapeString(regexTag.ReplaceAllString(rest, " "))
	tokens := strings.Fields(rest)
	if len(tokens) == 0 {
		return RemoteFile{}, false
	}
	for _, tok := range tokens {
		if strings.EqualFold(tok, "<dir>") {
			return RemoteFile{}, false
		}
	}

	var size int64
	last := tokens[len(tokens)-1]
	switch {
	case len(tokens) == 1:
	case last == "-":
		tokens = tokens[:len(tokens)-1]
	case regexHumanSize.MatchString(last):
		if n, err := humanize.ParseBytes(last); err == nil {
			size = int64(n)
		}
		tokens = tokens[:len(tokens)-1]
	default:
		if n, err := strconv.ParseInt(last, 10, 64); err == nil {
			size = n
			tokens = tokens[:len(tokens)-1]
		}
	}

	raw := strings.Join(tokens, " ")
	modified, err := ParseTimestamp(raw, p.Location)
	if err != nil && !regexDate.MatchString(tokens[0]) {
		// an anchor in free text, not a listing row
		return RemoteFile{}, false
	}

	return RemoteFile{
		Filename:     name,
		LastModified: modified,
		RawTimestamp: raw,
		SizeBytes:    size,
	}, true
}

// hrefName is the last path segment of href, decoded
func hrefName(href string) string {
	var p string
	if u, err := url.Parse(href); err == nil {
		p = u.Path
	} else {
		p, _, _ = strings.Cut(href, "?")
	}
	if p == "" || strings.HasSuffix(p, "/") {
		return ""
	}
	name := path.Base(p)
	if name == "." || name == "/" {
		return ""
	}
	return name
}

func isNavigation(href, text string) bool {
	switch {
	case strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]"):
		return true
	case strings.HasSuffix(href, "/"), strings.HasPrefix(href, "?"):
		return true
	case text == "." || text == "..":
		return true
	}
	return false
}

// ParseTimestamp parses a zone-less listing timestamp such as
// "1/29/2026  8:30 AM" in loc.
func ParseTimestamp(raw string, loc *time.Location) (time.Time, error) {
	cleaned := strings.ToUpper(regexSpace.ReplaceAllString(strings.TrimSpace(raw), " "))
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, cleaned, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrParse, raw)
}
