// Package policy decides which cross-origin callers may receive
// CORS-enabled responses.
package policy

import (
	"fmt"
	"regexp"
)

// localhostPattern matches http(s)://localhost with an optional port.
var localhostPattern = regexp.MustCompile(`^https?://localhost(:\d+)?$`)

// rule is a single ordered matcher. Rules either allow or fall through;
// denial is the absence of any match.
type rule struct {
	name  string
	match func(origin string) bool
}

// OriginPolicy evaluates Origin header values against an ordered rule list.
type OriginPolicy struct {
	rules []rule
}

// New builds the policy for the given base domain. Allowed, in order:
// absent origin, localhost on any port, and any single-label subdomain of
// baseDomain, over http or https.
func New(baseDomain string) *OriginPolicy {
	subdomainPattern := regexp.MustCompile(
		fmt.Sprintf(`^https?://[a-zA-Z0-9-]+\.%s$`, regexp.QuoteMeta(baseDomain)),
	)

	return &OriginPolicy{
		rules: []rule{
			{
				name:  "no-origin",
				match: func(origin string) bool { return origin == "" },
			},
			{
				name:  "localhost",
				match: localhostPattern.MatchString,
			},
			{
				name:  "subdomain",
				match: subdomainPattern.MatchString,
			},
		},
	}
}

// Allow reports whether a request with the given Origin header value may
// proceed. An empty string means the header was absent (non-browser caller).
func (p *OriginPolicy) Allow(origin string) bool {
	for _, r := range p.rules {
		if r.match(origin) {
			return true
		}
	}
	return false
}
