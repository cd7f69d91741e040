package ollama

import (
	"fmt"
	"strings"

	"github.com/kirillkom/knowledge-fusion-engine/internal/core/domain"
)

func buildAnswerPrompt(query string, bundle domain.KnowledgeBundle, uctx domain.UserContext) string {
	var b strings.Builder

	b.WriteString("You are a knowledge assistant. Answer the user's question using only the provided knowledge.\n")
	if bundle.IsEmpty() {
		b.WriteString("No relevant knowledge was found. Say so explicitly and keep the answer short.\n")
	} else {
		b.WriteString("If the knowledge does not cover the question, say so instead of guessing.\n")
	}

	if len(uctx.DomainPreferences) > 0 {
		fmt.Fprintf(&b, "\nThe user mostly works with these areas: %s.\n", strings.Join(uctx.DomainPreferences, ", "))
	}

	writeSection(&b, "Primary knowledge", bundle.PrimaryKnowledge)
	writeSection(&b, "Supporting knowledge", bundle.SupportingKnowledge)

	fmt.Fprintf(&b, "\nQuestion: %s\nAnswer:", query)
	return b.String()
}

func writeSection(b *strings.Builder, title string, results []domain.FusedResult) {
	if len(results) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", title)
	for i, result := range results {
		text := result.Content.ExtractText()
		if text == "" {
			continue
		}
		fmt.Fprintf(b, "%d. [%s] %s\n", i+1, result.Domain, text)
	}
}

func buildTypePrompt(query string) string {
	return fmt.Sprintf(`Classify the user query into exactly one category:
analytical, transactional, informational, navigational, generative.

Reply with the single category word and nothing else.

Query: %s
Category:`, query)
}
