package services

import (
	"sort"

	"shopsense/internal/models"
)

// MergeHits fuses a semantic hit list and a lexical hit list into one ranked,
// deduplicated list keyed by document ID, favoring semantic matches.
//
// Semantic scores are boosted by boost (>1). A document present in both lists
// keeps the max of its boosted-semantic and lexical score and is marked
// hybrid. The sort is stable, so equal scores keep their original relative
// order. topK <= 0 means no truncation.
//
// MergeHits owns no state and never errors: callers map a failed backend to
// an empty input list, and two empty inputs simply produce an empty result.
func MergeHits(semantic, lexical []models.SearchHit, boost float64, topK int) []models.SearchHit {
	merged := make([]models.SearchHit, 0, len(semantic)+len(lexical))
	index := make(map[string]int, len(semantic))

	for _, hit := range semantic {
		if _, seen := index[hit.DocID]; seen {
			// Duplicate IDs within one input are the backend's bug; the first
			// occurrence is canonical.
			continue
		}
		hit.Score *= boost
		hit.Origin = models.OriginSemantic
		index[hit.DocID] = len(merged)
		merged = append(merged, hit)
	}

	for _, hit := range lexical {
		if i, seen := index[hit.DocID]; seen {
			if merged[i].Origin == models.OriginSemantic {
				if hit.Score > merged[i].Score {
					merged[i].Score = hit.Score
				}
				merged[i].Origin = models.OriginHybrid
			}
			continue
		}
		hit.Origin = models.OriginLexical
		index[hit.DocID] = len(merged)
		merged = append(merged, hit)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})

	if topK > 0 && len(merged) > topK {
		merged = merged[:topK]
	}
	return merged
}
