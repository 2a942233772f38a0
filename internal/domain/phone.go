package domain

import (
	"strings"

	"github.com/samber/lo"
)

// MatchesCountry reports whether phone starts with one of the allowed
// country prefixes. The number is trimmed first; an empty list allows all.
func MatchesCountry(phone string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	trimmed := strings.TrimSpace(phone)
	return lo.ContainsBy(allowed, func(prefix string) bool {
		return strings.HasPrefix(trimmed, prefix)
	})
}
