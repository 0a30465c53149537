package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/kailas-cloud/tripmatch/internal/domain"
)

var (
	durationRe = regexp.MustCompile(`(?i)\b(\d{1,3})\s*(day|days|week|weeks)\b`)
	weekendRe  = regexp.MustCompile(`(?i)\bweekend\b`)
	luxuryRe   = regexp.MustCompile(`(?i)\b(luxury|luxurious|premium|high[- ]end|upscale)\b`)
	budgetRe   = regexp.MustCompile(`(?i)\b(cheap|budget|affordable|low[- ]cost|inexpensive)\b`)
)

// KeywordExtract recognizes preferences by pattern matching alone: known
// destination names, duration-in-days phrases, and budget keywords. It is
// the degraded path when the extraction capability is unreachable, so it
// errs toward silence over guessing.
func KeywordExtract(utterance string, destinations []string) domain.PreferenceSet {
	prefs := make(domain.PreferenceSet)
	lower := strings.ToLower(utterance)

	for _, dest := range destinations {
		if dest == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(dest)) {
			prefs[domain.PrefDestination] = dest
			break
		}
	}

	if m := durationRe.FindStringSubmatch(utterance); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 {
			if strings.HasPrefix(strings.ToLower(m[2]), "week") {
				n *= 7
			}
			prefs[domain.PrefDurationDays] = strconv.Itoa(n)
		}
	} else if weekendRe.MatchString(utterance) {
		prefs[domain.PrefDurationDays] = "3"
	}

	switch {
	case luxuryRe.MatchString(utterance):
		prefs[domain.PrefBudgetTier] = string(domain.PriceLuxury)
	case budgetRe.MatchString(utterance):
		prefs[domain.PrefBudgetTier] = string(domain.PriceBudget)
	}

	return prefs
}
