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
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"pgedge-assistant-retrieval/internal/logging"
)

const (
	// defaultMaxExpansions bounds the expansion round when the caller asks
	// for expansion without saying how wide.
	defaultMaxExpansions = 3

	// expansionConcurrency caps how many expansion sub-queries run at once.
	expansionConcurrency = 4
)

// SearchWithSimilarityExpansion runs a standard hybrid search and, when the
// query asks for it, a second round of vector queries seeded by the content
// of the top initial results. Expansion hits rejoin the merge alongside the
// original source lists, so the usual threshold, dedup, and cap rules apply.
// Expansion never recurses and a failing expansion sub-query only costs its
// own contribution.
func (e *Engine) SearchWithSimilarityExpansion(ctx context.Context, query SearchQuery) ([]CombinedResult, error) {
	if query.TenantID == "" {
		return nil, ErrTenantRequired
	}

	cfg := e.configSnapshot()
	start := time.Now()
	queryID := uuid.NewString()

	vector, text, graph, err := e.gatherSources(ctx, cfg, query, queryID)
	if err != nil {
		return nil, err
	}

	initial := CombineAndRank(cfg, vector, text, graph)

	if !query.ExpandSimilar || len(initial) == 0 {
		e.stats.recordSearch(time.Since(start), initial, false)
		return initial, nil
	}

	n := query.MaxExpansions
	if n <= 0 {
		n = defaultMaxExpansions
	}
	if n > len(initial) {
		n = len(initial)
	}

	expansion := e.expandResults(ctx, cfg, query.TenantID, initial[:n], queryID)

	// Expansion hits join the vector list so the merge treats them exactly
	// like first-round vector results, including dedup against the seeds.
	combined := CombineAndRank(cfg, append(vector, expansion...), text, graph)

	e.stats.recordSearch(time.Since(start), combined, true)
	logging.Info("similarity expansion search completed",
		"query_id", queryID,
		"tenant_id", query.TenantID,
		"seed_count", n,
		"expansion_hits", len(expansion),
		"result_count", len(combined),
		"latency_ms", time.Since(start).Milliseconds())

	return combined, nil
}

// expandResults embeds each seed result's content and runs one vector query
// per seed. Sub-query failures are logged and skipped.
func (e *Engine) expandResults(ctx context.Context, cfg Config, tenantID string, seeds []CombinedResult, queryID string) []SourceResult {
	var mu sync.Mutex
	var expansion []SourceResult

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(expansionConcurrency)

	for _, seed := range seeds {
		g.Go(func() error {
			if seed.Content == "" {
				return nil
			}

			emb, err := e.embedder.Embed(gctx, seed.Content)
			if err != nil {
				logging.Warn("expansion embedding failed, skipping seed",
					"query_id", queryID, "seed_id", seed.ID, "error", err.Error())
				return nil
			}

			hits, err := e.vector.Search(gctx, emb.Vector, VectorOptions{
				TenantID:  tenantID,
				Threshold: cfg.VectorThreshold,
				Limit:     cfg.MaxVectorResults,
			})
			if err != nil {
				logging.Warn("expansion vector search failed, skipping seed",
					"query_id", queryID, "seed_id", seed.ID, "error", err.Error())
				return nil
			}

			for i := range hits {
				hits[i].Source = SourceVector
			}
			hits = capResults(filterByScore(hits, cfg.VectorThreshold), cfg.MaxVectorResults)

			mu.Lock()
			expansion = append(expansion, hits...)
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()

	return expansion
}
