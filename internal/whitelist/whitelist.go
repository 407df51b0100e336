package whitelist

import (
	"strings"

	"go.uber.org/zap"
)

// Checker matches sender addresses against trusted domains
type Checker struct {
	domains map[string]struct{}
	logger  *zap.Logger
}

// NewChecker creates a new whitelist checker
func NewChecker(domains []string, logger *zap.Logger) *Checker {
	set := make(map[string]struct{}, len(domains))
	for _, domain := range domains {
		domain = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), "@")
		if domain != "" {
			set[domain] = struct{}{}
		}
	}

	if len(set) > 0 {
		logger.Info("Initialized trusted domain list", zap.Int("domains", len(set)))
	}

	return &Checker{domains: set, logger: logger}
}

// Domain returns the lowercase domain part of an address
func Domain(address string) string {
	at := strings.LastIndexByte(address, '@')
	if at < 0 || at == len(address)-1 {
		return ""
	}
	return strings.ToLower(strings.Trim(address[at+1:], "> "))
}

// IsWhitelisted checks if any of the addresses belongs to a trusted domain
func (c *Checker) IsWhitelisted(addresses ...string) bool {
	if len(c.domains) == 0 {
		return false
	}
	for _, addr := range addresses {
		domain := Domain(addr)
		if _, ok := c.domains[domain]; ok && domain != "" {
			c.logger.Debug("Domain is whitelisted",
				zap.String("domain", domain),
				zap.String("email", addr))
			return true
		}
	}
	return false
}
