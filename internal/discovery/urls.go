// File: internal/discovery/urls.go
package discovery

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/xkilldash9x/consentscan/api/schemas"
)

var schemePattern = regexp.MustCompile(`(?i)^https?://`)

// ValidateTarget checks that raw is an absolute http(s) URL with a host and
// returns it parsed, fragment stripped.
func ValidateTarget(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if !schemePattern.MatchString(raw) {
		return nil, &schemas.InvalidInputError{URL: raw, Reason: "scheme must be http or https"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &schemas.InvalidInputError{URL: raw, Reason: err.Error()}
	}
	if u.Host == "" || u.Hostname() == "" {
		return nil, &schemas.InvalidInputError{URL: raw, Reason: "missing host"}
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = canonicalHost(u.Scheme, u.Host)
	stripFragment(u)
	return u, nil
}

// Normalize returns the canonical frontier key for u: fragment removed,
// scheme and host lower-cased, default port dropped and an empty path turned
// into "/".
func Normalize(u *url.URL) string {
	c := *u
	stripFragment(&c)
	c.Scheme = strings.ToLower(c.Scheme)
	c.Host = canonicalHost(c.Scheme, c.Host)
	if c.Path == "" && c.Opaque == "" {
		c.Path = "/"
	}
	return c.String()
}

// NormalizeString parses and normalizes raw. ok is false when raw is not a URL.
func NormalizeString(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	return Normalize(u), true
}

// IsWebScheme reports whether u uses http or https.
func IsWebScheme(u *url.URL) bool {
	s := strings.ToLower(u.Scheme)
	return s == "http" || s == "https"
}

// HostOf returns the host (including any port) of raw, or "" if raw is not an
// absolute URL.
func HostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

// ResolveLinks resolves hrefs against base and keeps same-origin http(s)
// targets. Results are fragment-free, unique, in input order and capped at
// limit (no cap when limit <= 0).
func ResolveLinks(base *url.URL, hrefs []string, originHost string, limit int) []string {
	originHost = strings.ToLower(originHost)
	seen := make(map[string]struct{}, len(hrefs))
	out := make([]string, 0, len(hrefs))
	for _, href := range hrefs {
		href = strings.TrimSpace(href)
		if href == "" {
			continue
		}
		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		abs := base.ResolveReference(ref)
		if !IsWebScheme(abs) {
			continue
		}
		scheme := strings.ToLower(abs.Scheme)
		if canonicalHost(scheme, abs.Host) != canonicalHost(scheme, originHost) {
			continue
		}
		key := Normalize(abs)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// canonicalHost lower-cases host and strips the scheme's default port.
func canonicalHost(scheme, host string) string {
	host = strings.ToLower(host)
	switch {
	case scheme == "http" && strings.HasSuffix(host, ":80"):
		return strings.TrimSuffix(host, ":80")
	case scheme == "https" && strings.HasSuffix(host, ":443"):
		return strings.TrimSuffix(host, ":443")
	}
	return host
}

func stripFragment(u *url.URL) {
	u.Fragment = ""
	u.RawFragment = ""
}
