package urlcanon

import (
	"regexp"
	"strings"
)

// Candidate generation limits from the protocol: at most 5 host suffixes
// combined with at most 6 path prefixes, never more than 30 expressions.
const (
	maxHostSuffixes = 5
	maxPathDirs     = 4
	maxPatterns     = 30
)

var ipv4Host = regexp.MustCompile(`^\d+\.\d+\.\d+\.\d+$`)

// Patterns enumerates the host/path expressions of a canonical URL that may
// appear in threat lists, most specific first, deduplicated. The scheme,
// port and userinfo are not part of any expression.
func Patterns(canonical string) []string {
	rest := canonical
	if i := strings.Index(rest, "://"); i != -1 {
		rest = rest[i+3:]
	}
	hostport := rest
	pathquery := "/"
	if i := strings.IndexAny(rest, "/?"); i != -1 {
		hostport = rest[:i]
		pathquery = rest[i:]
		if pathquery[0] == '?' {
			pathquery = "/" + pathquery
		}
	}
	if at := strings.LastIndexByte(hostport, '@'); at != -1 {
		hostport = hostport[at+1:]
	}
	host, _, err := splitPort(hostport)
	if err != nil {
		host = hostport
	}

	hosts := hostSuffixes(host)
	paths := pathPrefixes(pathquery)

	seen := make(map[string]struct{}, len(hosts)*len(paths))
	patterns := make([]string, 0, len(hosts)*len(paths))
	for _, h := range hosts {
		for _, p := range paths {
			expr := h + p
			if _, ok := seen[expr]; ok {
				continue
			}
			if len(patterns) == maxPatterns {
				return patterns
			}
			seen[expr] = struct{}{}
			patterns = append(patterns, expr)
		}
	}
	return patterns
}

// hostSuffixes returns the exact hostname plus the suffixes formed from its
// last five components down to two components. IP hosts are never decomposed.
func hostSuffixes(host string) []string {
	if ipv4Host.MatchString(host) {
		return []string{host}
	}
	parts := strings.Split(host, ".")
	suffixes := make([]string, 0, maxHostSuffixes)
	if len(parts) > maxHostSuffixes {
		suffixes = append(suffixes, host)
	}
	l := min(len(parts), maxHostSuffixes)
	for n := l; n >= 2; n-- {
		suffixes = append(suffixes, strings.Join(parts[len(parts)-n:], "."))
	}
	if len(suffixes) == 0 {
		suffixes = append(suffixes, host)
	}
	return suffixes
}

// pathPrefixes returns the exact path with query, the exact path without
// query, and the directory prefixes of the path up to four levels deep.
func pathPrefixes(pathquery string) []string {
	prefixes := make([]string, 0, maxPathDirs+2)
	prefixes = append(prefixes, pathquery)

	p, _, hasQuery := strings.Cut(pathquery, "?")
	if hasQuery {
		prefixes = append(prefixes, p)
	}

	segments := strings.Split(p, "/")
	dirs := segments[:len(segments)-1]
	current := ""
	for i := 0; i < len(dirs) && i <= maxPathDirs-1; i++ {
		current += dirs[i] + "/"
		if current == p {
			continue
		}
		prefixes = append(prefixes, current)
	}
	return prefixes
}
