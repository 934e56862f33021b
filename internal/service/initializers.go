// File: internal/service/initializers.go
package service

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/consentscan/api/schemas"
	"github.com/xkilldash9x/consentscan/internal/analysis"
	"github.com/xkilldash9x/consentscan/internal/compliance"
	"github.com/xkilldash9x/consentscan/internal/config"
	"github.com/xkilldash9x/consentscan/internal/cookies"
	"github.com/xkilldash9x/consentscan/internal/discovery"
	"github.com/xkilldash9x/consentscan/internal/orchestrator"
)

const (
	robotsFetchTimeout = 10 * time.Second
	robotsCacheTTL     = 30 * time.Minute
)

// NewOrchestrator builds an orchestrator from the scan configuration:
// link limit, cookie rule overrides, analytics allowlist, robots.txt and
// per-host pacing.
func NewOrchestrator(backend schemas.BrowserBackend, cfg config.ScanConfig, userAgent string, logger *zap.Logger) (*orchestrator.Orchestrator, error) {
	rules, err := LoadCookieRules(cfg.RulesFile)
	if err != nil {
		return nil, err
	}

	opts := []orchestrator.Option{
		orchestrator.WithExtractor(analysis.NewExtractor(analysis.DefaultBannerRules(), analysis.DefaultPrivacyRules(), cfg.LinksPerPage)),
		orchestrator.WithClassifier(cookies.NewClassifier(rules)),
		orchestrator.WithScorer(compliance.NewScorer(analyticsAllowlist(cfg.AnalyticsCookies))),
		orchestrator.WithHostLimiter(discovery.NewHostLimiter(cfg.HostDelay)),
	}
	if cfg.RespectRobots {
		client := &http.Client{Timeout: robotsFetchTimeout}
		opts = append(opts, orchestrator.WithRobotsPolicy(discovery.NewRobotsAgent(client, userAgent, robotsCacheTTL, logger)))
		logger.Debug("robots.txt enforcement enabled.")
	}

	return orchestrator.New(backend, logger, opts...)
}

// LoadCookieRules returns the built-in purpose rules, extended by the YAML
// file at path when one is configured.
func LoadCookieRules(path string) (cookies.RuleSet, error) {
	if path == "" {
		return cookies.DefaultRules(), nil
	}
	rules, err := cookies.LoadRulesFile(path)
	if err != nil {
		return cookies.RuleSet{}, fmt.Errorf("failed to load cookie rules: %w", err)
	}
	return rules, nil
}

// analyticsAllowlist returns nil for an empty list so the scorer falls back
// to its defaults.
func analyticsAllowlist(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	return names
}
