package usecase

import (
	"context"
	"strings"
	"unicode"

	"github.com/kirillkom/knowledge-fusion-engine/internal/core/domain"
)

// typePriority resolves score ties: informational beats analytical beats
// transactional beats navigational beats generative.
var typePriority = []domain.QueryType{
	domain.QueryTypeInformational,
	domain.QueryTypeAnalytical,
	domain.QueryTypeTransactional,
	domain.QueryTypeNavigational,
	domain.QueryTypeGenerative,
}

var typeKeywords = map[domain.QueryType][]string{
	domain.QueryTypeInformational: {
		"what", "how", "who", "when", "where", "which",
		"explain", "describe", "tell", "definition", "meaning", "overview",
	},
	domain.QueryTypeAnalytical: {
		"analyze", "analyse", "compare", "why", "trend", "correlate",
		"impact", "evaluate", "statistics", "metric", "breakdown", "forecast",
	},
	domain.QueryTypeTransactional: {
		"buy", "order", "deploy", "execute", "transfer", "submit",
		"register", "cancel", "schedule", "install", "configure", "delete",
	},
	domain.QueryTypeNavigational: {
		"open", "goto", "navigate", "link", "url", "page",
		"dashboard", "website", "locate", "section",
	},
	domain.QueryTypeGenerative: {
		"write", "generate", "draft", "compose", "summarize", "summarise",
		"rewrite", "translate", "brainstorm", "outline",
	},
}

// RuleBasedTypeClassifier is the deterministic keyword classifier that is
// always available as the fallback behind any model-backed implementation.
type RuleBasedTypeClassifier struct{}

func NewRuleBasedTypeClassifier() *RuleBasedTypeClassifier {
	return &RuleBasedTypeClassifier{}
}

func (c *RuleBasedTypeClassifier) ClassifyType(_ context.Context, query string) (domain.QueryType, error) {
	tokens := tokenSet(query)

	best := domain.QueryTypeInformational
	bestScore := 0
	for _, queryType := range typePriority {
		score := 0
		for _, keyword := range typeKeywords[queryType] {
			if _, ok := tokens[keyword]; ok {
				score++
			}
		}
		if score > bestScore {
			best = queryType
			bestScore = score
		}
	}
	return best, nil
}

func tokenSet(s string) map[string]struct{} {
	tokens := tokenize(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

// tokenize lowercases and splits on anything that is not a letter or digit.
func tokenize(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
