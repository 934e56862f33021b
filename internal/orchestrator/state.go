package orchestrator

import (
	"net/url"
	"strings"
	"time"

	"github.com/xkilldash9x/consentscan/api/schemas"
	"github.com/xkilldash9x/consentscan/internal/cookies"
)

// scanState accumulates per-page outcomes during a crawl. It is owned by one
// run and turned into a ScanResult exactly once by freeze.
type scanState struct {
	site       string
	origin     *url.URL
	originHost string
	startedAt  time.Time

	scanned []string

	thirdParty     []string
	thirdPartySeen map[string]struct{}

	cookies     []schemas.RawCookie
	cookieIndex map[string]int

	bannerVisible bool
	privacyPolicy bool
}

func newScanState(site string, origin *url.URL, startedAt time.Time) *scanState {
	return &scanState{
		site:           strings.TrimSpace(site),
		origin:         origin,
		originHost:     strings.ToLower(origin.Host),
		startedAt:      startedAt,
		thirdPartySeen: make(map[string]struct{}),
		cookieIndex:    make(map[string]int),
	}
}

// fold merges a successful page visit.
func (s *scanState) fold(outcome schemas.PageVisitOutcome) {
	s.scanned = append(s.scanned, outcome.URL)

	for _, host := range outcome.ThirdPartyHosts {
		if _, ok := s.thirdPartySeen[host]; ok {
			continue
		}
		s.thirdPartySeen[host] = struct{}{}
		s.thirdParty = append(s.thirdParty, host)
	}

	// The session jar is cumulative; later snapshots replace earlier values
	// but keep the position of first appearance.
	for _, c := range outcome.CookiesObserved {
		key := c.Key()
		if i, ok := s.cookieIndex[key]; ok {
			s.cookies[i] = c
			continue
		}
		s.cookieIndex[key] = len(s.cookies)
		s.cookies = append(s.cookies, c)
	}

	s.bannerVisible = s.bannerVisible || outcome.Banner.Visible
	s.privacyPolicy = s.privacyPolicy || outcome.PrivacyPolicyLinkFound
}

// freeze builds the immutable, serialization-ready projection.
func (s *scanState) freeze(classifier *cookies.Classifier) schemas.ScanResult {
	result := schemas.NewScanResult(s.site)
	result.ScannedPages = append(result.ScannedPages, s.scanned...)
	result.ThirdPartyHosts = append(result.ThirdPartyHosts, s.thirdParty...)
	result.Cookies = append(result.Cookies, s.cookies...)
	result.CookieReport = append(result.CookieReport, classifier.ClassifyAll(s.cookies, s.originHost, s.startedAt)...)
	result.ConsentBannerDetected = s.bannerVisible
	result.PrivacyPolicyFound = s.privacyPolicy
	return result.Clone()
}
