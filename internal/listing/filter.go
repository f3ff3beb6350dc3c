package listing

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Filter selects listing entries by glob. An empty filter matches everything.
type Filter struct {
	patterns []string
}

// NewFilter expands `{name}` placeholders in patterns from vars and
// validates the resulting globs.
func NewFilter(patterns []string, vars map[string]string) (*Filter, error) {
	f := &Filter{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		for k, v := range vars {
			p = strings.ReplaceAll(p, "{"+k+"}", v)
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid file pattern %q", p)
		}
		f.patterns = append(f.patterns, p)
	}
	return f, nil
}

func (f *Filter) Patterns() []string {
	return f.patterns
}

func (f *Filter) Match(name string) bool {
	if f == nil || len(f.patterns) == 0 {
		return true
	}
	for _, p := range f.patterns {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}
