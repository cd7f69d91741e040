package usecase

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/kirillkom/knowledge-fusion-engine/internal/core/domain"
)

// FusionWeights are tunable, not gospel: the defaults follow the usual
// vector-heavy split but every figure is configuration.
type FusionWeights struct {
	Vector   float64
	Graph    float64
	Document float64

	Backend   float64
	Relevance float64
}

func DefaultFusionWeights() FusionWeights {
	return FusionWeights{
		Vector:    0.4,
		Graph:     0.35,
		Document:  0.25,
		Backend:   0.6,
		Relevance: 0.4,
	}
}

func (w FusionWeights) normalize() FusionWeights {
	def := DefaultFusionWeights()
	if w.Vector <= 0 {
		w.Vector = def.Vector
	}
	if w.Graph <= 0 {
		w.Graph = def.Graph
	}
	if w.Document <= 0 {
		w.Document = def.Document
	}
	if w.Backend <= 0 || w.Relevance <= 0 || w.Backend+w.Relevance > 1.0001 {
		w.Backend = def.Backend
		w.Relevance = def.Relevance
	}
	return w
}

func (w FusionWeights) sourceWeight(source domain.SourceType) float64 {
	switch source {
	case domain.SourceVector:
		return w.Vector
	case domain.SourceGraph:
		return w.Graph
	case domain.SourceDocument:
		return w.Document
	default:
		return 0
	}
}

// KnowledgeFusionEngine deduplicates candidates across backends and domains,
// re-scores them against the query, and merges everything into one ranked
// bundle with source attribution.
type KnowledgeFusionEngine struct {
	weights     FusionWeights
	primaryK    int
	supportingK int
}

func NewKnowledgeFusionEngine(weights FusionWeights, primaryK, supportingK int) *KnowledgeFusionEngine {
	if primaryK <= 0 {
		primaryK = 5
	}
	if supportingK <= 0 {
		supportingK = 5
	}
	return &KnowledgeFusionEngine{
		weights:     weights.normalize(),
		primaryK:    primaryK,
		supportingK: supportingK,
	}
}

type fusionGroup struct {
	content   domain.CandidateContent
	domainID  string
	id        string
	text      string
	relevance float64

	// best normalized contribution per source type
	contributions map[domain.SourceType]domain.SourceContribution
}

func (e *KnowledgeFusionEngine) Fuse(candidates []domain.RetrievalCandidate, query string, _ domain.UserContext) domain.KnowledgeBundle {
	if len(candidates) == 0 {
		return domain.KnowledgeBundle{
			PrimaryKnowledge:    []domain.FusedResult{},
			SupportingKnowledge: []domain.FusedResult{},
			Sources:             []domain.SourceRef{},
			Confidence:          0,
		}
	}

	normalized := normalizePerSource(candidates)

	// Entity groups are additionally indexed by their content hash so a text
	// candidate carrying the same content as a graph entity merges into the
	// entity's group instead of forming a parallel one.
	entityByText := make(map[string]string)
	for _, cand := range candidates {
		entityKey := cand.FusionKey()
		if entityKey == "" {
			continue
		}
		if textKey := contentKey(cand.Content); textKey != "" {
			entityByText[textKey] = entityKey
		}
	}

	groups := make(map[string]*fusionGroup, len(candidates))
	order := make([]string, 0, len(candidates))
	for i, cand := range candidates {
		key := fusionKey(cand)
		if entityKey, ok := entityByText[key]; ok {
			key = entityKey
		}
		group, ok := groups[key]
		if !ok {
			group = &fusionGroup{
				id:            cand.ID,
				domainID:      cand.Domain,
				content:       cand.Content,
				text:          cand.Content.ExtractText(),
				contributions: make(map[domain.SourceType]domain.SourceContribution, 3),
			}
			groups[key] = group
			order = append(order, key)
		}

		contribution := domain.SourceContribution{
			Source:          cand.Source,
			Domain:          cand.Domain,
			RawScore:        cand.Score,
			NormalizedScore: normalized[i],
		}
		if existing, ok := group.contributions[cand.Source]; !ok || contribution.NormalizedScore > existing.NormalizedScore {
			group.contributions[cand.Source] = contribution
		}
		if group.text == "" && cand.Content.ExtractText() != "" {
			group.content = cand.Content
			group.text = cand.Content.ExtractText()
		}
	}

	scoreRelevance(query, groups, order)

	fused := make([]domain.FusedResult, 0, len(groups))
	for _, key := range order {
		group := groups[key]

		contributions := make([]domain.SourceContribution, 0, len(group.contributions))
		finalScore := 0.0
		combinedSum := 0.0
		for _, source := range []domain.SourceType{domain.SourceVector, domain.SourceGraph, domain.SourceDocument} {
			contribution, ok := group.contributions[source]
			if !ok {
				continue
			}
			combined := contribution.NormalizedScore*e.weights.Backend + group.relevance*e.weights.Relevance
			finalScore += e.weights.sourceWeight(source) * combined
			combinedSum += combined
			contributions = append(contributions, contribution)
		}

		agreement := float64(len(contributions)) / 3.0
		avgCombined := combinedSum / float64(len(contributions))
		confidence := clamp01(0.6*agreement + 0.4*avgCombined)

		fused = append(fused, domain.FusedResult{
			ID:         group.id,
			Domain:     group.domainID,
			Content:    group.content,
			FinalScore: finalScore,
			Relevance:  group.relevance,
			Sources:    contributions,
			Confidence: confidence,
		})
	}

	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].FinalScore != fused[j].FinalScore {
			return fused[i].FinalScore > fused[j].FinalScore
		}
		return fused[i].ID < fused[j].ID
	})

	primary := fused
	if len(primary) > e.primaryK {
		primary = primary[:e.primaryK]
	}
	supporting := []domain.FusedResult{}
	if len(fused) > e.primaryK {
		supporting = fused[e.primaryK:]
		if len(supporting) > e.supportingK {
			supporting = supporting[:e.supportingK]
		}
	}

	return domain.KnowledgeBundle{
		PrimaryKnowledge:    primary,
		SupportingKnowledge: supporting,
		Sources:             attributeSources(primary, supporting),
		Confidence:          bundleConfidence(primary),
	}
}

// fusionKey collapses near-duplicates sourced from different backends: graph
// hits key on entity identity, text hits on a hash of the normalized text.
// Candidates with no extractable text stay singleton groups keyed by id.
func fusionKey(cand domain.RetrievalCandidate) string {
	if key := cand.FusionKey(); key != "" {
		return key
	}
	if key := contentKey(cand.Content); key != "" {
		return key
	}
	return "id:" + cand.ID
}

func contentKey(content domain.CandidateContent) string {
	text := normalizeText(content.ExtractText())
	if text == "" {
		return ""
	}
	sum := md5.Sum([]byte(text))
	return "text:" + hex.EncodeToString(sum[:])
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// normalizePerSource min-max-scales raw scores inside each source type.
// Backend-native scales are not comparable across source types, so every
// comparison fusion makes happens on these normalized values.
func normalizePerSource(candidates []domain.RetrievalCandidate) []float64 {
	type bounds struct {
		min, max float64
		seen     bool
	}
	perSource := make(map[domain.SourceType]*bounds, 3)
	for _, cand := range candidates {
		b, ok := perSource[cand.Source]
		if !ok {
			b = &bounds{}
			perSource[cand.Source] = b
		}
		if !b.seen || cand.Score < b.min {
			b.min = cand.Score
		}
		if !b.seen || cand.Score > b.max {
			b.max = cand.Score
		}
		b.seen = true
	}

	out := make([]float64, len(candidates))
	for i, cand := range candidates {
		b := perSource[cand.Source]
		span := b.max - b.min
		if span <= 0 {
			if cand.Score > 0 {
				out[i] = 1
			}
			continue
		}
		out[i] = (cand.Score - b.min) / span
	}
	return out
}

func attributeSources(primary, supporting []domain.FusedResult) []domain.SourceRef {
	type refKey struct {
		domainID string
		source   domain.SourceType
	}
	best := make(map[refKey]float64)
	orderedKeys := make([]refKey, 0, 8)
	for _, result := range append(append([]domain.FusedResult{}, primary...), supporting...) {
		for _, contribution := range result.Sources {
			key := refKey{domainID: contribution.Domain, source: contribution.Source}
			if confidence, ok := best[key]; !ok {
				best[key] = result.Confidence
				orderedKeys = append(orderedKeys, key)
			} else if result.Confidence > confidence {
				best[key] = result.Confidence
			}
		}
	}

	out := make([]domain.SourceRef, 0, len(orderedKeys))
	for _, key := range orderedKeys {
		out = append(out, domain.SourceRef{
			Domain:     key.domainID,
			Backend:    key.source,
			Confidence: best[key],
		})
	}
	return out
}

func bundleConfidence(primary []domain.FusedResult) float64 {
	if len(primary) == 0 {
		return 0
	}
	sum := 0.0
	for _, result := range primary {
		sum += result.Confidence
	}
	return clamp01(sum / float64(len(primary)))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
