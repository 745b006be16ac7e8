package model

import "strings"

// MatchGlob reports whether value matches a "*"-wildcard pattern. "*" alone
// matches any non-empty value; a pattern with "*" as a prefix, suffix, or
// infix matches accordingly. Patterns without "*" require an exact match.
func MatchGlob(pattern, value string) bool {
	if value == "" {
		return false
	}
	if pattern == "*" {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return pattern == value
	}

	parts := strings.Split(pattern, "*")
	if !strings.HasPrefix(value, parts[0]) {
		return false
	}
	rest := value[len(parts[0]):]
	for _, part := range parts[1 : len(parts)-1] {
		idx := strings.Index(rest, part)
		if idx < 0 {
			return false
		}
		rest = rest[idx+len(part):]
	}
	last := parts[len(parts)-1]
	return strings.HasSuffix(rest, last)
}

// MatchSubscription reports whether a feature set reference satisfies a
// store subscription's project/name glob pair.
func MatchSubscription(sub Subscription, project, name string) bool {
	return MatchGlob(sub.Project, project) && MatchGlob(sub.Name, name)
}

// LikePattern translates a "*"-wildcard glob into a SQL LIKE pattern,
// escaping any literal "%" or "_" already present in the glob.
func LikePattern(glob string) string {
	escaped := strings.NewReplacer("%", `\%`, "_", `\_`).Replace(glob)
	return strings.ReplaceAll(escaped, "*", "%")
}
