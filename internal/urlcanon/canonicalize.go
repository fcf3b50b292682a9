// SPDX-License-Identifier: Apache-2.0

// Package urlcanon normalizes URLs into the canonical form defined by the
// threat list protocol and derives the candidate expressions and digests used
// for prefix lookup.
//
// Canonicalization is a security boundary: it must match the remote service's
// own canonicalization byte for byte, otherwise lookups silently miss. The
// transformation is deterministic and idempotent.
package urlcanon

import (
	"errors"
	"net"
	"path"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"
)

// ErrMalformedURL reports input that cannot be parsed into scheme, host and
// path at all. Merely unusual but parseable input never fails.
var ErrMalformedURL = errors.New("malformed url")

var repeatedDots = regexp.MustCompile(`\.\.+`)

// Canonicalize converts a raw URL into its canonical form: lowercase host
// with redundant dots removed, integer IP literals rewritten as dotted quads,
// percent-encoding collapsed to a single pass over the protocol's safe
// character set, and a dot-segment-free path.
func Canonicalize(raw string) (string, error) {
	url := strings.TrimSpace(raw)
	if url == "" {
		return "", errors.Join(ErrMalformedURL, errors.New("empty input"))
	}

	// Embedded whitespace is stripped, the fragment is dropped entirely.
	url = strings.NewReplacer("\t", "", "\r", "", "\n", "").Replace(url)
	if i := strings.IndexByte(url, '#'); i != -1 {
		url = url[:i]
	}

	if strings.HasPrefix(url, "//") {
		url = "http:" + url
	}
	if !strings.Contains(url, "://") {
		url = "http://" + url
	}

	// One full decode/encode pass over the whole URL so that nothing stays
	// double-escaped and re-decoded separators ('#', '%') are pinned down.
	url = escape(fullUnescape(url))

	scheme, rest, ok := strings.Cut(url, "://")
	if !ok || scheme == "" {
		return "", errors.Join(ErrMalformedURL, errors.New("no scheme"))
	}
	scheme = strings.ToLower(scheme)

	hostport := rest
	pathquery := ""
	if i := strings.IndexAny(rest, "/?"); i != -1 {
		hostport = rest[:i]
		pathquery = rest[i:]
		if pathquery[0] == '?' {
			pathquery = "/" + pathquery
		}
	}

	// Userinfo is not part of the canonical form.
	if at := strings.LastIndexByte(hostport, '@'); at != -1 {
		hostport = hostport[at+1:]
	}

	host, port, err := splitPort(hostport)
	if err != nil {
		return "", errors.Join(ErrMalformedURL, err)
	}

	host, err = canonicalHost(host)
	if err != nil {
		return "", errors.Join(ErrMalformedURL, err)
	}

	p, query, hasQuery := strings.Cut(pathquery, "?")
	p = canonicalPath(fullUnescape(p))

	canonical := scheme + "://" + escape(host)
	if port != "" {
		canonical += ":" + port
	}
	canonical += escape(p)
	if hasQuery {
		canonical += "?" + query
	}
	return canonical, nil
}

func splitPort(hostport string) (host, port string, err error) {
	host = strings.TrimSuffix(hostport, ":")
	i := strings.LastIndexByte(host, ':')
	if i == -1 || strings.Contains(host[i+1:], "]") {
		return host, "", nil
	}

	// IPv6 literals keep their colons; everything after the last colon must
	// then be a decimal port.
	if host[0] == '[' {
		h, p, splitErr := net.SplitHostPort(host)
		if splitErr != nil {
			return strings.Trim(host, "[]"), "", nil
		}
		host, port = h, p
	} else {
		host, port = host[:i], host[i+1:]
	}
	if _, err = strconv.ParseUint(port, 10, 16); err != nil {
		return "", "", errors.New("invalid port " + strconv.Quote(port))
	}
	return host, port, nil
}

func canonicalHost(raw string) (string, error) {
	host := fullUnescape(raw)
	host = strings.Trim(host, ".")
	host = repeatedDots.ReplaceAllString(host, ".")
	host = strings.ToLower(host)
	if host == "" {
		return "", errors.New("empty host")
	}

	// Integer hosts ("3279880203", "0xC37F000B") are IPv4 addresses in
	// disguise and are rewritten as dotted quads.
	if isAllDigits(host) {
		if v, err := strconv.ParseUint(host, 10, 32); err == nil {
			return ipv4String(uint32(v)), nil
		}
	}
	if strings.HasPrefix(host, "0x") && !strings.Contains(host, ".") {
		if v, err := strconv.ParseUint(host[2:], 16, 32); err == nil {
			return ipv4String(uint32(v)), nil
		}
	}

	if isASCII(host) {
		return host, nil
	}

	// Internationalized hostnames are matched in their punycode form.
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", errors.New("idna: " + err.Error())
	}
	return strings.ToLower(ascii), nil
}

func canonicalPath(p string) string {
	if p == "" {
		return "/"
	}
	hasTrailingSlash := strings.HasSuffix(p, "/")
	if p[0] != '/' {
		p = "/" + p
	}
	c := path.Clean(p)
	if c != "/" && hasTrailingSlash {
		c += "/"
	}
	return c
}

// fullUnescape percent-decodes s repeatedly until it reaches a fixed point,
// so no byte stays multiply-encoded. Invalid escapes are kept literal.
func fullUnescape(s string) string {
	for {
		u := unescapeOnce(s)
		if u == s {
			return u
		}
		s = u
	}
}

func unescapeOnce(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) && isHexDigit(s[i+1]) && isHexDigit(s[i+2]) {
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// escape percent-encodes control bytes, non-ASCII bytes, space, '#' and '%'.
// Everything else, including the URL delimiters the protocol treats as safe,
// is left verbatim.
func escape(s string) string {
	const upperhex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x21 || c > 0x7e || c == '#' || c == '%' {
			b.WriteByte('%')
			b.WriteByte(upperhex[c>>4])
			b.WriteByte(upperhex[c&0xf])
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func ipv4String(v uint32) string {
	return net.IPv4(byte(v>>24), byte(v>>16), byte(v>>8), byte(v)).String()
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isHexDigit(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
