package server

import "strings"

// Decide is the capability gate: a pure function of the configured allowlist
// entry and the resolved login. Comparison is whitespace-trimmed and
// case-insensitive on both sides. An unset allowlist is a misconfiguration,
// distinct from a denial: no capability, diagnostic included, may be exposed.
func Decide(allowedLogin, login string) (Decision, error) {
	allowed := strings.TrimSpace(allowedLogin)
	if allowed == "" {
		return Decision{}, flowErr(ErrServerMisconfigured, "allowed login is not configured")
	}
	resolved := strings.TrimSpace(login)
	return Decision{
		Allowed: strings.EqualFold(allowed, resolved),
		Login:   resolved,
	}, nil
}
