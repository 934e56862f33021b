// File: api/schemas/schemas.go
package schemas

import (
	"time"
)

// Scan defaults applied when a request leaves an option unset or non-positive.
const (
	DefaultMaxPages            = 4
	DefaultNavigationTimeoutMs = 30000
	DefaultLinksPerPage        = 30
)

// ScanOptions tunes a single scan. Zero values fall back to the defaults above.
type ScanOptions struct {
	MaxPages            int `json:"maxPages,omitempty" yaml:"max_pages"`
	NavigationTimeoutMs int `json:"navigationTimeoutMs,omitempty" yaml:"navigation_timeout_ms"`
}

// WithDefaults returns a copy with every unset option replaced by its default.
func (o ScanOptions) WithDefaults() ScanOptions {
	if o.MaxPages <= 0 {
		o.MaxPages = DefaultMaxPages
	}
	if o.NavigationTimeoutMs <= 0 {
		o.NavigationTimeoutMs = DefaultNavigationTimeoutMs
	}
	return o
}

// NavigationTimeout is the per-call deadline as a duration.
func (o ScanOptions) NavigationTimeout() time.Duration {
	return time.Duration(o.NavigationTimeoutMs) * time.Millisecond
}

// ScanRequest is the immutable input of a scan.
type ScanRequest struct {
	URL     string      `json:"url"`
	Options ScanOptions `json:"options"`
}

// RawCookie is a cookie as reported by the browser backend.
type RawCookie struct {
	Name     string `json:"name"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	Secure   bool   `json:"secure"`
	HTTPOnly bool   `json:"httpOnly"`
	SameSite string `json:"sameSite,omitempty"`
	// ExpiresAt is seconds since the epoch; nil for session cookies.
	ExpiresAt *float64 `json:"expiresAtEpochSeconds,omitempty"`
}

// Key identifies a cookie inside one browser session.
func (c RawCookie) Key() string {
	return c.Name + "|" + c.Domain + "|" + c.Path
}

// CookieReportRow is the classified, display-ready projection of a RawCookie.
type CookieReportRow struct {
	Name            string `json:"name"`
	Domain          string `json:"domain"`
	Path            string `json:"path"`
	FirstParty      bool   `json:"firstParty"`
	Purpose         string `json:"purpose"`
	ExpiresAtMillis *int64 `json:"expiresAtEpochMillis"`
	LifetimeDays    *int   `json:"lifetimeDays"`
	Secure          bool   `json:"secure"`
	HTTPOnly        bool   `json:"httpOnly"`
	SameSite        string `json:"sameSite"`
}

// BannerInfo is the consent banner detector's verdict for one page.
type BannerInfo struct {
	Present bool `json:"present"`
	Visible bool `json:"visible"`
}

// PageVisitOutcome records a single page visit attempt.
type PageVisitOutcome struct {
	URL                    string      `json:"url"`
	Success                bool        `json:"success"`
	CookiesObserved        []RawCookie `json:"cookiesObserved,omitempty"`
	ThirdPartyHosts        []string    `json:"thirdPartyHosts,omitempty"`
	Banner                 BannerInfo  `json:"banner"`
	PrivacyPolicyLinkFound bool        `json:"privacyPolicyLinkFound"`
	FailureReason          string      `json:"failureReason,omitempty"`
}

// ScanResult is the frozen outcome of a scan. Collections are ordered and
// never nil so observers always see arrays.
type ScanResult struct {
	Site                  string            `json:"site"`
	ScannedPages          []string          `json:"scannedPages"`
	ThirdPartyHosts       []string          `json:"thirdPartyHosts"`
	Cookies               []RawCookie       `json:"cookies"`
	CookieReport          []CookieReportRow `json:"cookieReport"`
	ConsentBannerDetected bool              `json:"consentBannerDetected"`
	PrivacyPolicyFound    bool              `json:"privacyPolicyFound"`
	Violations            []string          `json:"violations"`
	Tips                  []string          `json:"tips"`
	Score                 int               `json:"score"`
}

// NewScanResult returns an empty result for site with non-nil collections.
func NewScanResult(site string) ScanResult {
	return ScanResult{
		Site:            site,
		ScannedPages:    []string{},
		ThirdPartyHosts: []string{},
		Cookies:         []RawCookie{},
		CookieReport:    []CookieReportRow{},
		Violations:      []string{},
		Tips:            []string{},
		Score:           100,
	}
}

// Clone returns a deep copy so the caller can hand out results without
// sharing backing arrays.
func (r ScanResult) Clone() ScanResult {
	out := r
	out.ScannedPages = append([]string{}, r.ScannedPages...)
	out.ThirdPartyHosts = append([]string{}, r.ThirdPartyHosts...)
	out.Cookies = make([]RawCookie, len(r.Cookies))
	for i, c := range r.Cookies {
		if c.ExpiresAt != nil {
			v := *c.ExpiresAt
			c.ExpiresAt = &v
		}
		out.Cookies[i] = c
	}
	out.CookieReport = make([]CookieReportRow, len(r.CookieReport))
	for i, row := range r.CookieReport {
		if row.ExpiresAtMillis != nil {
			v := *row.ExpiresAtMillis
			row.ExpiresAtMillis = &v
		}
		if row.LifetimeDays != nil {
			v := *row.LifetimeDays
			row.LifetimeDays = &v
		}
		out.CookieReport[i] = row
	}
	out.Violations = append([]string{}, r.Violations...)
	out.Tips = append([]string{}, r.Tips...)
	return out
}

// ObservedRequest is a single outgoing request seen on a page.
type ObservedRequest struct {
	URL string `json:"url"`
}
