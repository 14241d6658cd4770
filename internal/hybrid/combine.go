/*-------------------------------------------------------------------------
 *
 * pgEdge Assistant Retrieval Engine
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package hybrid

import (
	"sort"
	"strings"
	"unicode"
)

// CombineAndRank merges per-source result lists into a single ranked list.
// It is a pure function: weights each raw score by its source, deduplicates
// by ID, applies the combined threshold, sorts descending, and truncates to
// the combined cap.
//
// Dedup rule: when the same ID appears in more than one source list, the
// entry with the higher combined score survives and keeps its source tag.
// Exact ties go to the earlier source in the order vector, text, graph.
func CombineAndRank(cfg Config, vector, text, graph []SourceResult) []CombinedResult {
	// Insertion order is the tie-break order, so vector goes first.
	lists := [][]SourceResult{vector, text, graph}

	best := make(map[string]CombinedResult)
	for _, list := range lists {
		for _, r := range list {
			combined := CombinedResult{
				SourceResult:  r,
				CombinedScore: r.Score * cfg.weightFor(r.Source),
			}
			existing, ok := best[r.ID]
			if !ok || combined.CombinedScore > existing.CombinedScore {
				best[r.ID] = combined
			}
		}
	}

	// Collect survivors in list order rather than map order so the output
	// is deterministic when combined scores tie across different IDs.
	merged := make([]CombinedResult, 0, len(best))
	seen := make(map[string]bool, len(best))
	for _, list := range lists {
		for _, r := range list {
			if seen[r.ID] {
				continue
			}
			seen[r.ID] = true
			winner := best[r.ID]
			if winner.CombinedScore < cfg.CombinedThreshold {
				continue
			}
			merged = append(merged, winner)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CombinedScore > merged[j].CombinedScore
	})

	if cfg.MaxCombinedResults > 0 && len(merged) > cfg.MaxCombinedResults {
		merged = merged[:cfg.MaxCombinedResults]
	}

	return merged
}

// filterByScore drops results whose raw score is below the threshold,
// preserving order.
func filterByScore(results []SourceResult, threshold float64) []SourceResult {
	kept := results[:0:0]
	for _, r := range results {
		if r.Score >= threshold {
			kept = append(kept, r)
		}
	}
	return kept
}

// capResults truncates a result list to max entries. A non-positive max
// means unlimited.
func capResults(results []SourceResult, max int) []SourceResult {
	if max > 0 && len(results) > max {
		return results[:max]
	}
	return results
}

// mergeByID deduplicates a single-source result list by ID, keeping the
// entry with the higher raw score, and sorts descending by score. Used by
// conversation-history search, which never passes through the weighted
// merge.
func mergeByID(results []SourceResult) []SourceResult {
	best := make(map[string]SourceResult, len(results))
	order := make([]string, 0, len(results))
	for _, r := range results {
		existing, ok := best[r.ID]
		if !ok {
			order = append(order, r.ID)
			best[r.ID] = r
			continue
		}
		if r.Score > existing.Score {
			best[r.ID] = r
		}
	}

	merged := make([]SourceResult, 0, len(order))
	for _, id := range order {
		merged = append(merged, best[id])
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})

	return merged
}

// sanitizeQuery reduces free-form query text to the terms the full-text
// search function expects: lowercased words with punctuation stripped.
func sanitizeQuery(text string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	return strings.Join(words, " ")
}
