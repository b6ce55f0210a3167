package layout

import "strings"

// NormalizePath converts backslashes to slashes, collapses repeated slashes
// and drops a trailing slash.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// IDForPath returns the tab id for a note path.
func IDForPath(p string) TabID {
	return TabID(NormalizePath(p))
}

// TitleForPath returns the last path segment, or p itself when it has none.
func TitleForPath(p string) string {
	segs := strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' })
	if len(segs) == 0 {
		return p
	}
	return segs[len(segs)-1]
}

// MatchPath reports whether candidate is prefix itself or lies below it.
// Matching happens on whole segments, so "/notebc" is not below "/note".
// suffix is the remainder of candidate after prefix, starting with "/" for
// descendants and empty for an exact match.
func MatchPath(candidate, prefix string) (suffix string, ok bool) {
	c, p := NormalizePath(candidate), NormalizePath(prefix)
	if p == "" {
		return "", false
	}
	if c == p {
		return "", true
	}
	if p == "/" {
		return c, strings.HasPrefix(c, "/")
	}
	if rest, found := strings.CutPrefix(c, p); found && strings.HasPrefix(rest, "/") {
		return rest, true
	}
	return "", false
}
