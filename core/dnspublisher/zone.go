package dnspublisher

import "strings"

// FindZone selects the zone owning domain from a list of candidate zone
// names by longest-suffix match. Picking the longest match is what makes
// delegated subdomains work: for "www.eu.example.com" with zones
// "example.com" and "eu.example.com", the latter wins.
//
// Zone names may carry a trailing dot (Route53, Google Cloud DNS); it is
// ignored for matching and preserved in the returned name.
func FindZone(domain string, zoneNames []string) (string, bool) {
	domain = strings.ToLower(strings.TrimSuffix(domain, "."))

	var best string
	var bestLen int
	for _, name := range zoneNames {
		zone := strings.ToLower(strings.TrimSuffix(name, "."))
		if zone == "" {
			continue
		}
		if domain != zone && !strings.HasSuffix(domain, "."+zone) {
			continue
		}
		if len(zone) > bestLen {
			best = name
			bestLen = len(zone)
		}
	}
	return best, bestLen > 0
}

// ZoneCandidates returns the suffixes of domain that could be its zone
// apex, longest first, down to two labels. Adapters whose vendor API can
// only answer "is this a zone?" probe these in order.
func ZoneCandidates(domain string) []string {
	labels := strings.Split(strings.TrimSuffix(domain, "."), ".")
	var candidates []string
	for i := 0; i <= len(labels)-2; i++ {
		candidates = append(candidates, strings.Join(labels[i:], "."))
	}
	return candidates
}

// RelativeChallengeName returns the _acme-challenge record name relative to
// the zone apex, for vendors whose APIs reject fully qualified names. For a
// challenge on the apex itself it returns the bare label.
func RelativeChallengeName(domain, zone string) string {
	domain = strings.TrimSuffix(domain, ".")
	zone = strings.TrimSuffix(zone, ".")
	if strings.EqualFold(domain, zone) {
		return ChallengeLabel
	}
	sub := strings.TrimSuffix(domain, "."+zone)
	return ChallengeLabel + "." + sub
}
