package cookies

import (
	"math"
	"strings"
	"time"

	"github.com/xkilldash9x/consentscan/api/schemas"
)

const (
	defaultPath     = "/"
	defaultSameSite = "unspecified"
	dayMillis       = 24 * 60 * 60 * 1000
)

// Classifier turns raw cookies into report rows. It holds no mutable state.
type Classifier struct {
	rules RuleSet
}

// NewClassifier builds a classifier over rules.
func NewClassifier(rules RuleSet) *Classifier {
	if rules.Fallback == "" {
		rules.Fallback = Unclassified
	}
	return &Classifier{rules: rules}
}

// Purpose infers a cookie's purpose from its name, then its domain. Both are
// lower-cased before matching, so rule patterns are written in lower case.
func (c *Classifier) Purpose(name, domain string) string {
	name = strings.ToLower(name)
	for _, r := range c.rules.Name {
		if r.Pattern.MatchString(name) {
			return r.Label
		}
	}
	domain = strings.ToLower(domain)
	for _, r := range c.rules.Domain {
		if r.Pattern.MatchString(domain) {
			return r.Label
		}
	}
	return c.rules.Fallback
}

// Classify projects raw into a report row. originHost is compared without
// its port; lifetimes are measured from scanStart.
func (c *Classifier) Classify(raw schemas.RawCookie, originHost string, scanStart time.Time) schemas.CookieReportRow {
	domain := raw.Domain
	if domain == "" {
		domain = hostname(originHost)
	}
	path := raw.Path
	if path == "" {
		path = defaultPath
	}
	sameSite := raw.SameSite
	if sameSite == "" {
		sameSite = defaultSameSite
	}

	row := schemas.CookieReportRow{
		Name:       raw.Name,
		Domain:     domain,
		Path:       path,
		FirstParty: IsFirstParty(raw.Domain, originHost),
		Purpose:    c.Purpose(raw.Name, raw.Domain),
		Secure:     raw.Secure,
		HTTPOnly:   raw.HTTPOnly,
		SameSite:   sameSite,
	}

	if raw.ExpiresAt != nil && *raw.ExpiresAt > 0 {
		ms := int64(math.Round(*raw.ExpiresAt * 1000))
		days := LifetimeDays(ms, scanStart)
		row.ExpiresAtMillis = &ms
		row.LifetimeDays = &days
	}
	return row
}

// ClassifyAll classifies every cookie in order.
func (c *Classifier) ClassifyAll(raw []schemas.RawCookie, originHost string, scanStart time.Time) []schemas.CookieReportRow {
	rows := make([]schemas.CookieReportRow, len(raw))
	for i, rc := range raw {
		rows[i] = c.Classify(rc, originHost, scanStart)
	}
	return rows
}

// IsFirstParty reports whether a cookie domain belongs to the origin host.
// Only an exact match (ignoring a leading dot, case and port) counts;
// parent-domain and subdomain cookies are third party.
func IsFirstParty(cookieDomain, originHost string) bool {
	if cookieDomain == "" {
		return true
	}
	d := strings.ToLower(strings.TrimPrefix(cookieDomain, "."))
	return d == strings.ToLower(hostname(originHost))
}

// LifetimeDays is max(0, round((expiresAtMillis - start) / 1 day)).
func LifetimeDays(expiresAtMillis int64, start time.Time) int {
	delta := float64(expiresAtMillis-start.UnixMilli()) / dayMillis
	days := int(math.Round(delta))
	if days < 0 {
		return 0
	}
	return days
}

// hostname strips a port from host.
func hostname(host string) string {
	if strings.HasPrefix(host, "[") {
		if end := strings.Index(host, "]"); end > 0 {
			return host[1:end]
		}
		return host
	}
	if i := strings.LastIndex(host, ":"); i >= 0 && strings.Count(host, ":") == 1 {
		return host[:i]
	}
	return host
}
