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
	"sync/atomic"
	"time"
)

// engineStats accumulates counters across concurrent searches. All fields
// are atomics so recording never blocks an in-flight search.
type engineStats struct {
	totalQueries   atomic.Int64
	totalLatencyNs atomic.Int64
	totalResults   atomic.Int64
	expanded       atomic.Int64

	cacheHits    atomic.Int64
	cacheLookups atomic.Int64

	vectorResults       atomic.Int64
	textResults         atomic.Int64
	graphResults        atomic.Int64
	conversationResults atomic.Int64
	messageResults      atomic.Int64
}

// recordSearch accounts for one completed hybrid search.
func (s *engineStats) recordSearch(latency time.Duration, results []CombinedResult, expanded bool) {
	s.totalQueries.Add(1)
	s.totalLatencyNs.Add(int64(latency))
	s.totalResults.Add(int64(len(results)))
	if expanded {
		s.expanded.Add(1)
	}
	for _, r := range results {
		s.recordSource(r.Source, 1)
	}
}

// recordSource adds to the per-source result counter.
func (s *engineStats) recordSource(source Source, n int64) {
	switch source {
	case SourceVector:
		s.vectorResults.Add(n)
	case SourceText:
		s.textResults.Add(n)
	case SourceGraph:
		s.graphResults.Add(n)
	case SourceConversation:
		s.conversationResults.Add(n)
	case SourceMessage:
		s.messageResults.Add(n)
	}
}

// recordCacheLookup accounts for one result-cache probe.
func (s *engineStats) recordCacheLookup(hit bool) {
	s.cacheLookups.Add(1)
	if hit {
		s.cacheHits.Add(1)
	}
}

// snapshot returns a copy of the counters as derived, caller-safe values.
func (s *engineStats) snapshot() Stats {
	queries := s.totalQueries.Load()

	var avgLatency time.Duration
	var avgResults float64
	if queries > 0 {
		avgLatency = time.Duration(s.totalLatencyNs.Load() / queries)
		avgResults = float64(s.totalResults.Load()) / float64(queries)
	}

	var hitRate float64
	if lookups := s.cacheLookups.Load(); lookups > 0 {
		hitRate = float64(s.cacheHits.Load()) / float64(lookups)
	}

	return Stats{
		TotalQueries:     queries,
		AvgLatency:       avgLatency,
		CacheHitRate:     hitRate,
		AvgResultCount:   avgResults,
		ExpandedSearches: s.expanded.Load(),
		SourceBreakdown: map[Source]int64{
			SourceVector:       s.vectorResults.Load(),
			SourceText:         s.textResults.Load(),
			SourceGraph:        s.graphResults.Load(),
			SourceConversation: s.conversationResults.Load(),
			SourceMessage:      s.messageResults.Load(),
		},
	}
}
