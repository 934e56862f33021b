package analysis

import (
	"regexp"
	"strings"
)

// BannerRules select consent-banner candidates: any element whose id or class
// contains one of Substrings, case-insensitively.
type BannerRules struct {
	Substrings []string
}

// DefaultBannerRules matches "cookie" and "consent".
func DefaultBannerRules() BannerRules {
	return BannerRules{Substrings: []string{"cookie", "consent"}}
}

// Selector renders the rules as a CSS selector list.
func (r BannerRules) Selector() string {
	parts := make([]string, 0, len(r.Substrings)*2)
	for _, s := range r.Substrings {
		if s == "" {
			continue
		}
		q := cssString(s)
		parts = append(parts, "[id*="+q+" i]", "[class*="+q+" i]")
	}
	return strings.Join(parts, ",")
}

// PrivacyRules decide whether an anchor points at a privacy policy. An anchor
// matches when its text matches TextPattern or its lowercased href contains
// any of HrefSubstrings.
type PrivacyRules struct {
	TextPattern    *regexp.Regexp
	HrefSubstrings []string
}

// DefaultPrivacyRules is deliberately permissive.
func DefaultPrivacyRules() PrivacyRules {
	return PrivacyRules{
		TextPattern:    regexp.MustCompile(`(?i)privacy|data\s+protection|gdpr`),
		HrefSubstrings: []string{"privacy"},
	}
}

// Matches applies the rules to one anchor.
func (r PrivacyRules) Matches(text, href string) bool {
	if r.TextPattern != nil && r.TextPattern.MatchString(text) {
		return true
	}
	href = strings.ToLower(href)
	for _, s := range r.HrefSubstrings {
		if s != "" && strings.Contains(href, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

// cssString quotes s as a CSS string literal.
func cssString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\a `)
	return `"` + r.Replace(s) + `"`
}
