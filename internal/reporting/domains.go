// internal/reporting/domains.go
package reporting

import (
	"net"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// HostGroup collects third-party hosts under their registrable domain.
type HostGroup struct {
	Domain string   `json:"domain"`
	Hosts  []string `json:"hosts"`
}

// GroupHosts groups hosts by eTLD+1, keeping first-appearance order for
// both groups and members. Hosts without a registrable domain (IPs,
// localhost) form their own group.
func GroupHosts(hosts []string) []HostGroup {
	groups := make([]HostGroup, 0)
	index := make(map[string]int)
	for _, h := range hosts {
		d := registrableDomain(h)
		i, ok := index[d]
		if !ok {
			i = len(groups)
			index[d] = i
			groups = append(groups, HostGroup{Domain: d})
		}
		groups[i].Hosts = append(groups[i].Hosts, h)
	}
	return groups
}

func registrableDomain(host string) string {
	name := strings.ToLower(host)
	if h, _, err := net.SplitHostPort(name); err == nil {
		name = h
	}
	name = strings.Trim(name, "[]")
	if net.ParseIP(name) != nil {
		return name
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(name)
	if err != nil {
		return name
	}
	return d
}
