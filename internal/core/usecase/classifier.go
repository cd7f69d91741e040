package usecase

import (
	"context"
	"log/slog"

	"github.com/kirillkom/knowledge-fusion-engine/internal/core/domain"
	"github.com/kirillkom/knowledge-fusion-engine/internal/core/ports"
)

// QueryClassifier determines the query type and the precedence-ordered target
// domains. The primary type classifier is pluggable; the rule-based one is
// always available and takes over when the primary fails, so classification
// itself never errors.
type QueryClassifier struct {
	primary  ports.TypeClassifier
	fallback ports.TypeClassifier
	matcher  ports.DomainMatcher
	logger   *slog.Logger

	preferenceFallback int
}

func NewQueryClassifier(
	primary ports.TypeClassifier,
	matcher ports.DomainMatcher,
	logger *slog.Logger,
) *QueryClassifier {
	fallback := NewRuleBasedTypeClassifier()
	if primary == nil {
		primary = fallback
	}
	return &QueryClassifier{
		primary:            primary,
		fallback:           fallback,
		matcher:            matcher,
		logger:             logger,
		preferenceFallback: 2,
	}
}

func (c *QueryClassifier) Classify(ctx context.Context, query string, uctx domain.UserContext) domain.ClassifiedQuery {
	cq := domain.ClassifiedQuery{Query: query}

	queryType, err := c.primary.ClassifyType(ctx, query)
	if err != nil || !validQueryType(queryType) {
		if err != nil {
			c.logger.Warn("type_classifier_degraded", "error", err)
		}
		queryType, _ = c.fallback.ClassifyType(ctx, query)
		cq.RuleFallback = true
	}
	cq.Type = queryType

	cq.TargetDomains = c.detectDomains(query, uctx)
	return cq
}

// detectDomains applies the precedence chain: configured patterns first, then
// the top context preferences, then the default domain. The result is
// deduplicated and order-preserving.
func (c *QueryClassifier) detectDomains(query string, uctx domain.UserContext) []string {
	matched := c.matcher.MatchDomains(query)
	if len(matched) > 0 {
		return dedupeDomains(matched)
	}

	if len(uctx.DomainPreferences) > 0 {
		prefs := uctx.DomainPreferences
		if len(prefs) > c.preferenceFallback {
			prefs = prefs[:c.preferenceFallback]
		}
		known := make([]string, 0, len(prefs))
		for _, dom := range prefs {
			if c.matcher.HasDomain(dom) {
				known = append(known, dom)
			}
		}
		if len(known) > 0 {
			return dedupeDomains(known)
		}
	}

	return []string{c.matcher.DefaultDomain()}
}

func dedupeDomains(domains []string) []string {
	seen := make(map[string]struct{}, len(domains))
	out := make([]string, 0, len(domains))
	for _, dom := range domains {
		if _, ok := seen[dom]; ok {
			continue
		}
		seen[dom] = struct{}{}
		out = append(out, dom)
	}
	return out
}

func validQueryType(t domain.QueryType) bool {
	switch t {
	case domain.QueryTypeAnalytical, domain.QueryTypeTransactional, domain.QueryTypeInformational,
		domain.QueryTypeNavigational, domain.QueryTypeGenerative:
		return true
	default:
		return false
	}
}
