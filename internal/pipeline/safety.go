package pipeline

import (
	"fmt"
	"regexp"
	"strings"
)

// maxScopeFiles is the hard cap on paths admitted into one iteration
// (§4.4 S2: "or when |paths| > 50").
const maxScopeFiles = 50

// ApplySafetyFilters rejects any path matching a forbidden pattern, and
// rejects the whole scope if it exceeds maxScopeFiles (§4.4 S2).
func ApplySafetyFilters(paths []string, forbidden []string) ([]string, error) {
	if len(paths) > maxScopeFiles {
		return nil, fmt.Errorf("pipeline: scope has %d paths, exceeds the %d-file safety cap", len(paths), maxScopeFiles)
	}
	var out []string
	for _, p := range paths {
		if matchesAny(p, forbidden) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func matchesAny(path string, patterns []string) bool {
	for _, pat := range patterns {
		if globMatch(pat, path) {
			return true
		}
	}
	return false
}

// globMatch is a small "**"-aware glob matcher for the forbidden-path
// patterns named in §6 ("forbidden-path patterns"). It compiles the
// pattern to a regexp once per call; the pattern sets involved are tiny
// (a handful of config entries evaluated against a bounded scope list),
// so no caching layer is warranted.
func globMatch(pattern, path string) bool {
	re := globToRegexp(pattern)
	return re.MatchString(path)
}

func globToRegexp(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("^")
	i := 0
	for i < len(pattern) {
		switch {
		case strings.HasPrefix(pattern[i:], "**/"):
			b.WriteString("(?:.*/)?")
			i += 3
		case strings.HasPrefix(pattern[i:], "**"):
			b.WriteString(".*")
			i += 2
		case pattern[i] == '*':
			b.WriteString("[^/]*")
			i++
		case strings.ContainsRune(".()+?^${}|[]\\", rune(pattern[i])):
			b.WriteString(regexp.QuoteMeta(string(pattern[i])))
			i++
		default:
			b.WriteRune(rune(pattern[i]))
			i++
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return regexp.MustCompile("$^") // matches nothing
	}
	return re
}
