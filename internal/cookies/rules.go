// File: internal/cookies/rules.go
package cookies

import (
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// Unclassified is the purpose of a cookie no rule matched.
const Unclassified = "Unclassified / Unknown"

// Rule labels a cookie whose name (or domain, for domain rules) matches Pattern.
type Rule struct {
	Pattern *regexp.Regexp
	Label   string
}

// RuleSet is the ordered purpose table. Name rules are tried first, then
// domain rules; the first match wins.
type RuleSet struct {
	Name     []Rule
	Domain   []Rule
	Fallback string
}

func mustRule(pattern, label string) Rule {
	return Rule{Pattern: regexp.MustCompile(pattern), Label: label}
}

// DefaultRules is the built-in purpose table.
func DefaultRules() RuleSet {
	return RuleSet{
		Name: []Rule{
			mustRule(`^_ga(_.*)?$|^_gid$|^_gat$`, "Analytics (Google Analytics)"),
			mustRule(`^_gcl_au$`, "Ads/Attribution (Google Ads)"),
			mustRule(`^_fbp$|^fr$`, "Ads/Retargeting (Facebook)"),
			mustRule(`^ajs_`, "Analytics (Segment)"),
			mustRule(`^amplitude_`, "Analytics (Amplitude)"),
			mustRule(`^mp_.*_mixpanel$|^mixpanel$`, "Analytics (Mixpanel)"),
			mustRule(`^_hj`, "Analytics (Hotjar)"),
			mustRule(`^_clck$|^_clsk$`, "Analytics (Microsoft Clarity)"),
			mustRule(`^cid$|^scid$`, "Analytics/Attribution"),
			mustRule(`^session$|^sid$|^ssid$|^sessionid$|^connect\.sid$`, "Session / Auth"),
			mustRule(`^__stripe`, "Payments (Stripe)"),
			mustRule(`^twid$|^guest_id$|^ct0$`, "Platform (Twitter/X)"),
		},
		Domain: []Rule{
			mustRule(`doubleclick\.net`, "Ads (DoubleClick)"),
			mustRule(`google`, "Google Services"),
			mustRule(`facebook`, "Facebook Services"),
			mustRule(`twitter|(^|\.)t\.co$`, "Twitter Services"),
		},
		Fallback: Unclassified,
	}
}

// ruleFile is the on-disk shape of a rule table.
type ruleFile struct {
	// Extend keeps the built-in rules and appends the file's rules after them.
	Extend   bool       `yaml:"extend"`
	Name     []ruleSpec `yaml:"name_rules"`
	Domain   []ruleSpec `yaml:"domain_rules"`
	Fallback string     `yaml:"fallback"`
}

type ruleSpec struct {
	Pattern string `yaml:"pattern"`
	Label   string `yaml:"label"`
}

// LoadRules reads a YAML rule table.
//
//	extend: true
//	name_rules:
//	  - pattern: "^_pk_"
//	    label: "Analytics (Matomo)"
//	domain_rules:
//	  - pattern: "hotjar\\.com"
//	    label: "Analytics (Hotjar)"
func LoadRules(r io.Reader) (RuleSet, error) {
	var rf ruleFile
	if err := yaml.NewDecoder(r).Decode(&rf); err != nil && err != io.EOF {
		return RuleSet{}, fmt.Errorf("failed to decode cookie rules: %w", err)
	}

	var set RuleSet
	if rf.Extend {
		set = DefaultRules()
	}

	name, err := compileRules(rf.Name)
	if err != nil {
		return RuleSet{}, fmt.Errorf("name_rules: %w", err)
	}
	domain, err := compileRules(rf.Domain)
	if err != nil {
		return RuleSet{}, fmt.Errorf("domain_rules: %w", err)
	}
	set.Name = append(set.Name, name...)
	set.Domain = append(set.Domain, domain...)

	switch {
	case rf.Fallback != "":
		set.Fallback = rf.Fallback
	case set.Fallback == "":
		set.Fallback = Unclassified
	}
	return set, nil
}

// LoadRulesFile reads a YAML rule table from path. "~" is expanded.
func LoadRulesFile(path string) (RuleSet, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return RuleSet{}, fmt.Errorf("failed to expand rules path: %w", err)
	}
	f, err := os.Open(expanded)
	if err != nil {
		return RuleSet{}, fmt.Errorf("failed to open cookie rules: %w", err)
	}
	defer f.Close()
	return LoadRules(f)
}

func compileRules(specs []ruleSpec) ([]Rule, error) {
	rules := make([]Rule, 0, len(specs))
	for i, s := range specs {
		if s.Label == "" {
			return nil, fmt.Errorf("rule %d has no label", i)
		}
		re, err := regexp.Compile(s.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rules = append(rules, Rule{Pattern: re, Label: s.Label})
	}
	return rules, nil
}
