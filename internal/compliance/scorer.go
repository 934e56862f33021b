// File: internal/compliance/scorer.go
package compliance

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/consentscan/api/schemas"
)

const (
	startingScore = 100

	penaltyNoBanner        = 30
	penaltyNoPrivacyPolicy = 20
	penaltyLongLived       = 10

	// longLivedDays is the lifetime above which a cookie is flagged.
	longLivedDays = 365
)

const (
	ViolationNoBanner        = "no visible consent banner despite third-party/analytics activity"
	ViolationNoPrivacyPolicy = "no privacy policy link detected"
	violationLongLivedFormat = "found %d cookie(s) lasting > 1 year"

	TipShowBanner       = "Show a consent banner before setting non-essential cookies or loading analytics."
	TipAddPrivacyPolicy = "Add a clearly visible Privacy Policy link in the footer/header."
	TipReduceLifetimes  = "Reduce cookie lifetimes for non-essential cookies."
)

// DefaultAnalyticsCookies are cookie names that count as analytics activity.
var DefaultAnalyticsCookies = []string{
	"_ga", "_gid", "_gat", "_gcl_au", "_fbp", "cid", "amplitude_id", "mixpanel", "ajs_anonymous_id",
}

// Assessment is the verdict for one scan.
type Assessment struct {
	Violations []string
	Tips       []string
	Score      int
}

// Scorer applies the fixed rule set. It is pure and safe for concurrent use.
type Scorer struct {
	analytics map[string]struct{}
}

// NewScorer builds a scorer. A nil list uses DefaultAnalyticsCookies.
func NewScorer(analyticsCookies []string) *Scorer {
	if analyticsCookies == nil {
		analyticsCookies = DefaultAnalyticsCookies
	}
	set := make(map[string]struct{}, len(analyticsCookies))
	for _, name := range analyticsCookies {
		set[strings.ToLower(name)] = struct{}{}
	}
	return &Scorer{analytics: set}
}

// Score evaluates result. Only ThirdPartyHosts, Cookies, CookieReport,
// ConsentBannerDetected and PrivacyPolicyFound are read.
func (s *Scorer) Score(result schemas.ScanResult) Assessment {
	a := Assessment{
		Violations: []string{},
		Tips:       []string{},
		Score:      startingScore,
	}

	if !result.ConsentBannerDetected && (len(result.ThirdPartyHosts) > 0 || s.hasAnalytics(result.Cookies)) {
		a.add(ViolationNoBanner, TipShowBanner, penaltyNoBanner)
	}

	if !result.PrivacyPolicyFound {
		a.add(ViolationNoPrivacyPolicy, TipAddPrivacyPolicy, penaltyNoPrivacyPolicy)
	}

	if n := countLongLived(result.CookieReport); n > 0 {
		a.add(fmt.Sprintf(violationLongLivedFormat, n), TipReduceLifetimes, penaltyLongLived)
	}

	a.Score = clamp(a.Score, 0, startingScore)
	return a
}

// Apply scores result and writes the verdict into it.
func (s *Scorer) Apply(result *schemas.ScanResult) {
	a := s.Score(*result)
	result.Violations = a.Violations
	result.Tips = a.Tips
	result.Score = a.Score
}

// IsAnalytics reports whether name is on the analytics list.
func (s *Scorer) IsAnalytics(name string) bool {
	_, ok := s.analytics[strings.ToLower(name)]
	return ok
}

func (s *Scorer) hasAnalytics(cookies []schemas.RawCookie) bool {
	for _, c := range cookies {
		if s.IsAnalytics(c.Name) {
			return true
		}
	}
	return false
}

func (a *Assessment) add(violation, tip string, penalty int) {
	a.Violations = append(a.Violations, violation)
	a.Tips = append(a.Tips, tip)
	a.Score -= penalty
}

func countLongLived(rows []schemas.CookieReportRow) int {
	n := 0
	for _, r := range rows {
		if r.LifetimeDays != nil && *r.LifetimeDays > longLivedDays {
			n++
		}
	}
	return n
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
