// File: internal/analysis/extractor.go
package analysis

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/consentscan/api/schemas"
	"github.com/xkilldash9x/consentscan/internal/discovery"
)

// bannerScriptTemplate is filled with a JSON-quoted selector list.
const bannerScriptTemplate = `(() => {
  const nodes = Array.from(document.querySelectorAll(%s));
  let visible = false;
  for (const el of nodes) {
    const style = window.getComputedStyle(el);
    const rect = el.getBoundingClientRect();
    if (style.display !== 'none' && style.visibility !== 'hidden' && rect.width > 0 && rect.height > 0) {
      visible = true;
      break;
    }
  }
  return { present: nodes.length > 0, visible: visible };
})()`

// snapshotScript serializes the live DOM so it can be parsed outside the page.
const snapshotScript = `(() => ({
  url: location.href,
  base: document.baseURI,
  html: document.documentElement ? document.documentElement.outerHTML : ''
}))()`

// Snapshot is the serialized DOM of a loaded page.
type Snapshot struct {
	URL  string `json:"url"`
	Base string `json:"base"`
	HTML string `json:"html"`
}

// Findings are the per-page signals.
type Findings struct {
	Banner                 schemas.BannerInfo
	PrivacyPolicyLinkFound bool
	// Links are same-origin, fragment-free, deduplicated, in DOM order.
	Links []string
}

// Extractor runs the signal extractors against a live page. It holds only
// immutable rule data.
type Extractor struct {
	banner       BannerRules
	privacy      PrivacyRules
	linkLimit    int
	bannerScript string
}

// NewExtractor builds an extractor. linkLimit <= 0 uses the default of 30.
func NewExtractor(banner BannerRules, privacy PrivacyRules, linkLimit int) *Extractor {
	if linkLimit <= 0 {
		linkLimit = schemas.DefaultLinksPerPage
	}
	return &Extractor{
		banner:       banner,
		privacy:      privacy,
		linkLimit:    linkLimit,
		bannerScript: BannerScript(banner),
	}
}

// NewDefaultExtractor uses the built-in rules.
func NewDefaultExtractor() *Extractor {
	return NewExtractor(DefaultBannerRules(), DefaultPrivacyRules(), schemas.DefaultLinksPerPage)
}

// BannerScript renders the banner detection script for rules.
func BannerScript(rules BannerRules) string {
	selector := rules.Selector()
	if selector == "" {
		// querySelectorAll rejects an empty list.
		selector = ":not(*)"
	}
	quoted, _ := json.MarshalToString(selector)
	return fmt.Sprintf(bannerScriptTemplate, quoted)
}

// SnapshotScript returns the DOM serialization script.
func SnapshotScript() string { return snapshotScript }

// DetectBanner runs the consent banner detector.
func (e *Extractor) DetectBanner(ctx context.Context, page schemas.BrowserPage) (schemas.BannerInfo, error) {
	var info schemas.BannerInfo
	if err := page.EvaluateScript(ctx, e.bannerScript, &info); err != nil {
		return schemas.BannerInfo{}, fmt.Errorf("banner detection failed: %w", err)
	}
	// A visible banner is by definition present.
	if info.Visible {
		info.Present = true
	}
	return info, nil
}

// Snapshot serializes the page's DOM.
func (e *Extractor) Snapshot(ctx context.Context, page schemas.BrowserPage) (Snapshot, error) {
	var snap Snapshot
	if err := page.EvaluateScript(ctx, snapshotScript, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("dom snapshot failed: %w", err)
	}
	if snap.URL == "" {
		snap.URL = page.URL()
	}
	return snap, nil
}

// Extract runs every extractor against page. originHost filters links.
func (e *Extractor) Extract(ctx context.Context, page schemas.BrowserPage, originHost string) (Findings, error) {
	banner, err := e.DetectBanner(ctx, page)
	if err != nil {
		return Findings{}, err
	}

	snap, err := e.Snapshot(ctx, page)
	if err != nil {
		return Findings{}, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snap.HTML))
	if err != nil {
		return Findings{}, fmt.Errorf("failed to parse dom snapshot: %w", err)
	}

	return Findings{
		Banner:                 banner,
		PrivacyPolicyLinkFound: e.PrivacyPolicyLinkFound(doc),
		Links:                  e.Links(doc, snap.baseURL(), originHost),
	}, nil
}

// PrivacyPolicyLinkFound reports whether any anchor looks like a privacy
// policy link.
func (e *Extractor) PrivacyPolicyLinkFound(doc *goquery.Document) bool {
	found := false
	doc.Find("a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if e.privacy.Matches(strings.TrimSpace(s.Text()), href) {
			found = true
			return false
		}
		return true
	})
	return found
}

// Links collects anchor hrefs resolved against base and filtered to
// originHost, capped at the extractor's link limit.
func (e *Extractor) Links(doc *goquery.Document, base *url.URL, originHost string) []string {
	if base == nil {
		return []string{}
	}
	var hrefs []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			hrefs = append(hrefs, href)
		}
	})
	return discovery.ResolveLinks(base, hrefs, originHost, e.linkLimit)
}

func (s Snapshot) baseURL() *url.URL {
	for _, raw := range []string{s.Base, s.URL} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err == nil && u.IsAbs() {
			return u
		}
	}
	return nil
}
