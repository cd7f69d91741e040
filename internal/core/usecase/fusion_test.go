package usecase

import (
	"testing"

	"github.com/kirillkom/knowledge-fusion-engine/internal/core/domain"
)

func TestFuseEmptyInput(t *testing.T) {
	engine := NewKnowledgeFusionEngine(DefaultFusionWeights(), 5, 5)

	bundle := engine.Fuse(nil, "query", domain.UserContext{})

	if !bundle.IsEmpty() {
		t.Fatalf("expected empty bundle")
	}
	if bundle.Confidence != 0 {
		t.Fatalf("expected zero confidence, got %v", bundle.Confidence)
	}
	if bundle.PrimaryKnowledge == nil || bundle.Sources == nil {
		t.Fatalf("expected non-nil empty slices for serialization")
	}
}

func TestFuseDeduplicatesSameTextAcrossBackends(t *testing.T) {
	engine := NewKnowledgeFusionEngine(DefaultFusionWeights(), 5, 5)

	candidates := []domain.RetrievalCandidate{
		textCandidate("vector_1", domain.SourceVector, "eco", "Staking locks tokens", 0.9),
		textCandidate("document_1", domain.SourceDocument, "eco", "staking  locks   TOKENS", 0.7),
	}

	bundle := engine.Fuse(candidates, "staking tokens", domain.UserContext{})

	if len(bundle.PrimaryKnowledge) != 1 {
		t.Fatalf("expected one fused result, got %d", len(bundle.PrimaryKnowledge))
	}
	result := bundle.PrimaryKnowledge[0]
	if len(result.Sources) != 2 {
		t.Fatalf("expected contributions from both backends, got %d", len(result.Sources))
	}
}

func TestFuseDeduplicatesGraphEntitiesByID(t *testing.T) {
	engine := NewKnowledgeFusionEngine(DefaultFusionWeights(), 5, 5)

	candidates := []domain.RetrievalCandidate{
		entityCandidate("graph_e1", "e1", "eco", "Validator", 0.5),
		entityCandidate("graph_e1_dup", "e1", "eco", "Validator", 0.9),
	}

	bundle := engine.Fuse(candidates, "validator", domain.UserContext{})

	if len(bundle.PrimaryKnowledge) != 1 {
		t.Fatalf("expected entity dedup by id, got %d results", len(bundle.PrimaryKnowledge))
	}
	contributions := bundle.PrimaryKnowledge[0].Sources
	if len(contributions) != 1 {
		t.Fatalf("expected single graph contribution, got %d", len(contributions))
	}
	if contributions[0].NormalizedScore != 1 {
		t.Fatalf("expected the best normalized score to be kept, got %v", contributions[0].NormalizedScore)
	}
}

func TestFuseMergesSameEntityAcrossVectorAndGraph(t *testing.T) {
	engine := NewKnowledgeFusionEngine(DefaultFusionWeights(), 5, 5)

	vector := textCandidate("vector_1", domain.SourceVector, "eco", "Validator", 0.9)
	graph := entityCandidate("graph_e1", "e1", "eco", "Validator", 0.5)

	bundle := engine.Fuse([]domain.RetrievalCandidate{vector, graph}, "validator", domain.UserContext{})

	if len(bundle.PrimaryKnowledge) != 1 {
		t.Fatalf("expected the text hit to merge into the entity group, got %d results", len(bundle.PrimaryKnowledge))
	}
	merged := bundle.PrimaryKnowledge[0]
	if len(merged.Sources) != 2 {
		t.Fatalf("expected vector and graph contributions, got %d", len(merged.Sources))
	}

	alone := engine.Fuse([]domain.RetrievalCandidate{vector}, "validator", domain.UserContext{})
	if len(alone.PrimaryKnowledge) != 1 {
		t.Fatalf("expected one vector-only result, got %d", len(alone.PrimaryKnowledge))
	}
	if merged.FinalScore <= alone.PrimaryKnowledge[0].FinalScore {
		t.Fatalf("merged final score %v must exceed vector-only %v",
			merged.FinalScore, alone.PrimaryKnowledge[0].FinalScore)
	}
	if merged.Confidence <= alone.PrimaryKnowledge[0].Confidence {
		t.Fatalf("merged confidence %v must exceed vector-only %v",
			merged.Confidence, alone.PrimaryKnowledge[0].Confidence)
	}
}

func TestFuseCorroborationRaisesScoreAndConfidence(t *testing.T) {
	engine := NewKnowledgeFusionEngine(DefaultFusionWeights(), 5, 5)

	candidates := []domain.RetrievalCandidate{
		textCandidate("vector_1", domain.SourceVector, "eco", "alpha beta one", 0.8),
		textCandidate("document_1", domain.SourceDocument, "eco", "alpha beta one", 0.6),
		textCandidate("vector_2", domain.SourceVector, "eco", "alpha beta two", 0.8),
	}

	bundle := engine.Fuse(candidates, "alpha beta", domain.UserContext{})

	if len(bundle.PrimaryKnowledge) != 2 {
		t.Fatalf("expected two fused results, got %d", len(bundle.PrimaryKnowledge))
	}
	corroborated := bundle.PrimaryKnowledge[0]
	single := bundle.PrimaryKnowledge[1]
	if len(corroborated.Sources) != 2 || len(single.Sources) != 1 {
		t.Fatalf("expected corroborated result ranked first, got %+v then %+v", corroborated, single)
	}
	if corroborated.FinalScore <= single.FinalScore {
		t.Fatalf("expected corroboration to raise the final score: %v vs %v", corroborated.FinalScore, single.FinalScore)
	}
	if corroborated.Confidence <= single.Confidence {
		t.Fatalf("expected corroboration to raise confidence: %v vs %v", corroborated.Confidence, single.Confidence)
	}
}

func TestFuseNormalizesScoresPerSource(t *testing.T) {
	engine := NewKnowledgeFusionEngine(DefaultFusionWeights(), 5, 5)

	// Document ranks use a much smaller native scale than vector similarity.
	candidates := []domain.RetrievalCandidate{
		textCandidate("vector_1", domain.SourceVector, "eco", "alpha", 0.9),
		textCandidate("vector_2", domain.SourceVector, "eco", "beta", 0.3),
		textCandidate("document_1", domain.SourceDocument, "eco", "gamma", 0.09),
		textCandidate("document_2", domain.SourceDocument, "eco", "delta", 0.03),
	}

	bundle := engine.Fuse(candidates, "alpha gamma", domain.UserContext{})

	var vectorBest, documentBest float64
	for _, result := range bundle.PrimaryKnowledge {
		for _, contribution := range result.Sources {
			switch contribution.Source {
			case domain.SourceVector:
				if contribution.NormalizedScore > vectorBest {
					vectorBest = contribution.NormalizedScore
				}
			case domain.SourceDocument:
				if contribution.NormalizedScore > documentBest {
					documentBest = contribution.NormalizedScore
				}
			}
		}
	}
	if vectorBest != 1 || documentBest != 1 {
		t.Fatalf("expected both sources min-max scaled to 1, got vector=%v document=%v", vectorBest, documentBest)
	}
}

func TestFusePartitionsPrimaryAndSupporting(t *testing.T) {
	engine := NewKnowledgeFusionEngine(DefaultFusionWeights(), 1, 1)

	candidates := []domain.RetrievalCandidate{
		textCandidate("vector_1", domain.SourceVector, "eco", "alpha", 0.9),
		textCandidate("vector_2", domain.SourceVector, "eco", "beta", 0.5),
		textCandidate("vector_3", domain.SourceVector, "eco", "gamma", 0.1),
	}

	bundle := engine.Fuse(candidates, "alpha", domain.UserContext{})

	if len(bundle.PrimaryKnowledge) != 1 {
		t.Fatalf("expected one primary result, got %d", len(bundle.PrimaryKnowledge))
	}
	if len(bundle.SupportingKnowledge) != 1 {
		t.Fatalf("expected one supporting result, got %d", len(bundle.SupportingKnowledge))
	}
}

func TestFuseAttributesSourcesWithoutDuplicates(t *testing.T) {
	engine := NewKnowledgeFusionEngine(DefaultFusionWeights(), 5, 5)

	candidates := []domain.RetrievalCandidate{
		textCandidate("vector_1", domain.SourceVector, "eco", "alpha", 0.9),
		textCandidate("vector_2", domain.SourceVector, "eco", "beta", 0.5),
		textCandidate("document_1", domain.SourceDocument, "finance", "gamma", 0.4),
	}

	bundle := engine.Fuse(candidates, "alpha", domain.UserContext{})

	if len(bundle.Sources) != 2 {
		t.Fatalf("expected one ref per (domain, backend) pair, got %+v", bundle.Sources)
	}
	seen := map[string]bool{}
	for _, ref := range bundle.Sources {
		key := ref.Domain + "/" + string(ref.Backend)
		if seen[key] {
			t.Fatalf("duplicate source ref %s", key)
		}
		seen[key] = true
		if ref.Confidence < 0 || ref.Confidence > 1 {
			t.Fatalf("source confidence out of range: %v", ref.Confidence)
		}
	}
}

func TestFuseConfidenceStaysInRange(t *testing.T) {
	engine := NewKnowledgeFusionEngine(DefaultFusionWeights(), 5, 5)

	candidates := []domain.RetrievalCandidate{
		textCandidate("vector_1", domain.SourceVector, "eco", "alpha beta", 0.99),
		entityCandidate("graph_e1", "e1", "eco", "alpha", 0.9),
		textCandidate("document_1", domain.SourceDocument, "eco", "alpha beta", 0.8),
	}

	bundle := engine.Fuse(candidates, "alpha beta", domain.UserContext{})

	if bundle.Confidence <= 0 || bundle.Confidence > 1 {
		t.Fatalf("bundle confidence out of range: %v", bundle.Confidence)
	}
	for _, result := range bundle.PrimaryKnowledge {
		if result.Confidence <= 0 || result.Confidence > 1 {
			t.Fatalf("result confidence out of range: %v", result.Confidence)
		}
		if result.Relevance < 0 || result.Relevance > 1 {
			t.Fatalf("result relevance out of range: %v", result.Relevance)
		}
	}
}

func TestFusionWeightsNormalizeRejectsBadSplits(t *testing.T) {
	weights := FusionWeights{Vector: 0.4, Graph: 0.35, Document: 0.25, Backend: 0.9, Relevance: 0.9}.normalize()
	def := DefaultFusionWeights()
	if weights.Backend != def.Backend || weights.Relevance != def.Relevance {
		t.Fatalf("expected default backend/relevance split, got %v/%v", weights.Backend, weights.Relevance)
	}

	zero := FusionWeights{}.normalize()
	if zero != def {
		t.Fatalf("expected zero weights replaced by defaults, got %+v", zero)
	}
}
