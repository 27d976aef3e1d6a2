package services

import (
	"math"
	"testing"

	"shopsense/internal/models"
)

func hit(id string, score float64) models.SearchHit {
	return models.SearchHit{DocID: id, Score: score}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestMergeHitsBoostAndMaxMerge(t *testing.T) {
	semantic := []models.SearchHit{hit("A", 0.9), hit("C", 0.5)}
	lexical := []models.SearchHit{hit("A", 0.7), hit("B", 0.8)}

	merged := MergeHits(semantic, lexical, 1.2, 5)

	if len(merged) != 3 {
		t.Fatalf("expected 3 merged hits, got %d", len(merged))
	}

	want := []struct {
		id     string
		score  float64
		origin string
	}{
		{"A", 1.08, models.OriginHybrid},
		{"B", 0.8, models.OriginLexical},
		{"C", 0.6, models.OriginSemantic},
	}
	for i, w := range want {
		got := merged[i]
		if got.DocID != w.id {
			t.Errorf("rank %d: expected doc %s, got %s", i, w.id, got.DocID)
		}
		if !almostEqual(got.Score, w.score) {
			t.Errorf("rank %d: expected score %v, got %v", i, w.score, got.Score)
		}
		if got.Origin != w.origin {
			t.Errorf("rank %d: expected origin %s, got %s", i, w.origin, got.Origin)
		}
	}
}

func TestMergeHitsLexicalScoreWinsOnOverlap(t *testing.T) {
	// Lexical 2.0 beats boosted semantic 0.6; the hit keeps the max and
	// is still marked hybrid.
	merged := MergeHits([]models.SearchHit{hit("A", 0.5)}, []models.SearchHit{hit("A", 2.0)}, 1.2, 5)

	if len(merged) != 1 {
		t.Fatalf("expected 1 merged hit, got %d", len(merged))
	}
	if !almostEqual(merged[0].Score, 2.0) {
		t.Errorf("expected max-merged score 2.0, got %v", merged[0].Score)
	}
	if merged[0].Origin != models.OriginHybrid {
		t.Errorf("expected hybrid origin, got %s", merged[0].Origin)
	}
}

func TestMergeHitsEmptyInputs(t *testing.T) {
	if got := MergeHits(nil, nil, 1.2, 5); len(got) != 0 {
		t.Errorf("expected empty result for two empty inputs, got %d hits", len(got))
	}

	merged := MergeHits(nil, []models.SearchHit{hit("A", 0.7)}, 1.2, 5)
	if len(merged) != 1 || merged[0].Origin != models.OriginLexical {
		t.Errorf("expected one lexical hit, got %+v", merged)
	}

	merged = MergeHits([]models.SearchHit{hit("A", 0.7)}, nil, 1.2, 5)
	if len(merged) != 1 || merged[0].Origin != models.OriginSemantic {
		t.Errorf("expected one semantic hit, got %+v", merged)
	}
	if !almostEqual(merged[0].Score, 0.84) {
		t.Errorf("expected boosted score 0.84, got %v", merged[0].Score)
	}
}

func TestMergeHitsStableOrderOnTies(t *testing.T) {
	// Equal final scores keep their pre-sort relative order: all semantic
	// hits first (in input order), then lexical-only hits in input order.
	semantic := []models.SearchHit{hit("S1", 0.5), hit("S2", 0.5)}
	lexical := []models.SearchHit{hit("L1", 0.6), hit("L2", 0.6)}

	merged := MergeHits(semantic, lexical, 1.2, 0)

	wantOrder := []string{"S1", "S2", "L1", "L2"}
	for i, id := range wantOrder {
		if merged[i].DocID != id {
			t.Fatalf("expected order %v, got %v at rank %d", wantOrder, merged[i].DocID, i)
		}
	}
}

func TestMergeHitsTruncation(t *testing.T) {
	semantic := []models.SearchHit{hit("A", 0.9), hit("B", 0.8), hit("C", 0.7)}

	if got := MergeHits(semantic, nil, 1.2, 2); len(got) != 2 {
		t.Errorf("expected truncation to 2 hits, got %d", len(got))
	}
	if got := MergeHits(semantic, nil, 1.2, 0); len(got) != 3 {
		t.Errorf("expected no truncation with topK 0, got %d hits", len(got))
	}
}

func TestMergeHitsDuplicateIDsWithinOneInput(t *testing.T) {
	semantic := []models.SearchHit{hit("A", 0.9), hit("A", 0.1)}

	merged := MergeHits(semantic, nil, 1.2, 5)

	if len(merged) != 1 {
		t.Fatalf("expected duplicate collapsed to 1 hit, got %d", len(merged))
	}
	if !almostEqual(merged[0].Score, 1.08) {
		t.Errorf("expected first occurrence kept (score 1.08), got %v", merged[0].Score)
	}
}
