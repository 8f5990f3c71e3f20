package catalog

import "strings"

// antMatch reports whether path matches an Ant-style pattern. Supported
// wildcards: `?` one character, `*` any run within a segment, `**` any number
// of segments, `{name}` exactly one segment. Template variables are not
// captured; matching is a boolean predicate.
func antMatch(pattern, path string) bool {
	return matchSegments(splitPath(pattern), splitPath(path))
}

func splitPath(p string) []string {
	return strings.Split(strings.TrimPrefix(p, "/"), "/")
}

func matchSegments(pattern, segments []string) bool {
	if len(pattern) == 0 {
		return len(segments) == 0
	}
	if pattern[0] == "**" {
		// `**` absorbs zero or more segments.
		for i := 0; i <= len(segments); i++ {
			if matchSegments(pattern[1:], segments[i:]) {
				return true
			}
		}
		return false
	}
	if len(segments) == 0 {
		for _, p := range pattern {
			if p != "**" {
				return false
			}
		}
		return true
	}
	if !matchSegment(pattern[0], segments[0]) {
		return false
	}
	return matchSegments(pattern[1:], segments[1:])
}

func matchSegment(pattern, segment string) bool {
	if isTemplateVar(pattern) {
		return segment != ""
	}
	return globMatch(flattenTemplateVars(pattern), segment)
}

func isTemplateVar(pattern string) bool {
	return len(pattern) > 2 &&
		strings.HasPrefix(pattern, "{") &&
		strings.HasSuffix(pattern, "}") &&
		!strings.ContainsAny(pattern[1:len(pattern)-1], "{}")
}

// flattenTemplateVars rewrites embedded {name} placeholders as `*` so that
// mixed segments like v{major} still match.
func flattenTemplateVars(pattern string) string {
	if !strings.Contains(pattern, "{") {
		return pattern
	}
	var b strings.Builder
	depth := 0
	for _, r := range pattern {
		switch {
		case r == '{':
			if depth == 0 {
				b.WriteByte('*')
			}
			depth++
		case r == '}' && depth > 0:
			depth--
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// globMatch matches a single segment against a pattern containing `?` and `*`.
func globMatch(pattern, s string) bool {
	pi, si := 0, 0
	star, mark := -1, 0
	for si < len(s) {
		switch {
		case pi < len(pattern) && (pattern[pi] == '?' || pattern[pi] == s[si]):
			pi++
			si++
		case pi < len(pattern) && pattern[pi] == '*':
			star = pi
			mark = si
			pi++
		case star >= 0:
			pi = star + 1
			mark++
			si = mark
		default:
			return false
		}
	}
	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}
