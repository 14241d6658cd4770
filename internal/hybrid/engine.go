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
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"

	"pgedge-assistant-retrieval/internal/embedding"
	"pgedge-assistant-retrieval/internal/logging"
)

// Server-side search functions invoked through the FunctionCaller.
const (
	fnSearchKnowledgeText  = "search_knowledge_text"
	fnSearchGraphKnowledge = "search_graph_knowledge"
)

var (
	// ErrTenantRequired is returned when a query carries no tenant ID.
	// Every search is tenant-scoped; there is no cross-tenant mode.
	ErrTenantRequired = errors.New("tenant ID is required")

	// ErrConversationRequired is returned by conversation-history search
	// when no conversation ID is given.
	ErrConversationRequired = errors.New("conversation ID is required")
)

// VectorBackend is the similarity-search collaborator. Implementations
// return raw scores in [0,1] and honor the limit and threshold options.
type VectorBackend interface {
	Search(ctx context.Context, embedding []float64, opts VectorOptions) ([]SourceResult, error)
	SearchConversations(ctx context.Context, embedding []float64, opts ConversationOptions) ([]SourceResult, error)
	SearchMessages(ctx context.Context, embedding []float64, opts MessageOptions) ([]SourceResult, error)
	HealthCheck(ctx context.Context) bool
}

// VectorOptions scopes a knowledge vector search.
type VectorOptions struct {
	TenantID    string
	AssistantID string
	Categories  []string
	Threshold   float64
	Limit       int
}

// ConversationOptions scopes a vector search to one conversation's messages.
type ConversationOptions struct {
	TenantID       string
	ConversationID string
	Limit          int
}

// MessageOptions scopes a tenant-wide message vector search.
type MessageOptions struct {
	TenantID string
	Limit    int
}

// FunctionCaller invokes a named server-side function and returns its rows.
// The text and graph search paths go through this generic surface.
type FunctionCaller interface {
	CallFunction(ctx context.Context, name string, params map[string]interface{}) ([]map[string]interface{}, error)
}

// Backends bundles the collaborators an Engine is constructed with.
type Backends struct {
	Vector    VectorBackend
	Functions FunctionCaller
	Embedder  embedding.Provider
}

// Engine merges vector, full-text, and knowledge-graph retrieval into a
// single ranked result list. All state is in-memory and scoped to the
// instance; nothing is persisted.
type Engine struct {
	vector    VectorBackend
	functions FunctionCaller
	embedder  embedding.Provider

	cfgMu sync.RWMutex
	cfg   Config

	stats engineStats

	cache *expirable.LRU[string, []CombinedResult]
}

type engineOptions struct {
	cacheSize int
	cacheTTL  time.Duration
}

// Option adjusts optional Engine behavior.
type Option func(*engineOptions)

// WithResultCache enables an expiring LRU cache over hybrid search results.
// Cached entries are keyed by tenant plus the full query shape and are
// purged whenever the merge configuration changes.
func WithResultCache(size int, ttl time.Duration) Option {
	return func(o *engineOptions) {
		o.cacheSize = size
		o.cacheTTL = ttl
	}
}

// New creates an Engine over the given backends. The configuration is
// copied; later updates go through UpdateConfig.
func New(b Backends, cfg Config, opts ...Option) (*Engine, error) {
	if b.Vector == nil {
		return nil, fmt.Errorf("vector backend is required")
	}
	if b.Functions == nil {
		return nil, fmt.Errorf("function backend is required")
	}
	if b.Embedder == nil {
		return nil, fmt.Errorf("embedding provider is required")
	}

	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{
		vector:    b.Vector,
		functions: b.Functions,
		embedder:  b.Embedder,
		cfg:       cfg,
	}

	if o.cacheSize > 0 {
		e.cache = expirable.NewLRU[string, []CombinedResult](o.cacheSize, nil, o.cacheTTL)
	}

	return e, nil
}

// Search runs a hybrid search: embed the query text, fan out to the
// vector, full-text, and graph backends concurrently, then merge into one
// ranked list. An embedding failure fails the whole call; a single backend
// failing only removes its contribution.
func (e *Engine) Search(ctx context.Context, query SearchQuery) ([]CombinedResult, error) {
	if query.TenantID == "" {
		return nil, ErrTenantRequired
	}

	cfg := e.configSnapshot()
	start := time.Now()
	queryID := uuid.NewString()

	if e.cache != nil {
		key := cacheKey(query)
		if results, ok := e.cachedResults(key); ok {
			e.stats.recordCacheLookup(true)
			e.stats.recordSearch(time.Since(start), results, false)
			logging.Debug("hybrid search served from cache",
				"query_id", queryID,
				"tenant_id", query.TenantID,
				"result_count", len(results))
			return results, nil
		}
		e.stats.recordCacheLookup(false)
	}

	vector, text, graph, err := e.gatherSources(ctx, cfg, query, queryID)
	if err != nil {
		return nil, err
	}

	combined := CombineAndRank(cfg, vector, text, graph)

	if e.cache != nil {
		e.storeResults(cacheKey(query), combined)
	}

	e.stats.recordSearch(time.Since(start), combined, false)
	logging.Info("hybrid search completed",
		"query_id", queryID,
		"tenant_id", query.TenantID,
		"vector_hits", len(vector),
		"text_hits", len(text),
		"graph_hits", len(graph),
		"result_count", len(combined),
		"latency_ms", time.Since(start).Milliseconds())

	return combined, nil
}

// gatherSources embeds the query text and runs the three sub-searches
// concurrently. Only the embedding step can fail; each backend failure is
// logged and contributes an empty list.
func (e *Engine) gatherSources(ctx context.Context, cfg Config, query SearchQuery, queryID string) (vector, text, graph []SourceResult, err error) {
	var queryVec []float64
	if query.Text != "" {
		emb, embErr := e.embedder.Embed(ctx, query.Text)
		if embErr != nil {
			return nil, nil, nil, fmt.Errorf("failed to embed query text: %w", embErr)
		}
		queryVec = emb.Vector
	}

	g, gctx := errgroup.WithContext(ctx)

	if queryVec != nil {
		g.Go(func() error {
			hits, searchErr := e.vector.Search(gctx, queryVec, VectorOptions{
				TenantID:    query.TenantID,
				AssistantID: query.AssistantID,
				Categories:  categoriesFrom(query.Filters),
				Threshold:   cfg.VectorThreshold,
				Limit:       cfg.MaxVectorResults,
			})
			if searchErr != nil {
				logging.Warn("vector search failed, continuing without it",
					"query_id", queryID, "error", searchErr.Error())
				return nil
			}
			for i := range hits {
				hits[i].Source = SourceVector
			}
			vector = capResults(filterByScore(hits, cfg.VectorThreshold), cfg.MaxVectorResults)
			return nil
		})
	}

	if query.Text != "" {
		g.Go(func() error {
			rows, callErr := e.functions.CallFunction(gctx, fnSearchKnowledgeText, map[string]interface{}{
				"business_id": query.TenantID,
				"query_text":  sanitizeQuery(query.Text),
				"match_count": cfg.MaxTextResults,
			})
			if callErr != nil {
				logging.Warn("text search failed, continuing without it",
					"query_id", queryID, "error", callErr.Error())
				return nil
			}
			hits := make([]SourceResult, 0, len(rows))
			for _, row := range rows {
				hits = append(hits, textResultFromRow(row))
			}
			text = capResults(filterByScore(hits, cfg.TextThreshold), cfg.MaxTextResults)
			return nil
		})
	}

	g.Go(func() error {
		params := map[string]interface{}{
			"business_id": query.TenantID,
			"match_count": cfg.MaxGraphResults,
		}
		if query.Text != "" {
			params["entity_hint"] = sanitizeQuery(query.Text)
		}
		rows, callErr := e.functions.CallFunction(gctx, fnSearchGraphKnowledge, params)
		if callErr != nil {
			logging.Warn("graph search failed, continuing without it",
				"query_id", queryID, "error", callErr.Error())
			return nil
		}
		hits := make([]SourceResult, 0, len(rows))
		for _, row := range rows {
			hits = append(hits, graphResultFromRow(row))
		}
		// Graph has no per-source threshold; the combined threshold still
		// applies after weighting.
		graph = capResults(hits, cfg.MaxGraphResults)
		return nil
	})

	// Sub-search closures swallow their own failures, so Wait never
	// reports one source aborting another.
	_ = g.Wait()

	return vector, text, graph, nil
}

// Stats returns a snapshot of the engine's cumulative counters.
func (e *Engine) Stats() Stats {
	return e.stats.snapshot()
}

// UpdateConfig merges the set fields of the update into the live
// configuration. The new values apply from the next search onward; any
// cached results are dropped since their ranking may no longer hold.
func (e *Engine) UpdateConfig(update ConfigUpdate) {
	e.cfgMu.Lock()
	update.apply(&e.cfg)
	cfg := e.cfg
	e.cfgMu.Unlock()

	if e.cache != nil {
		e.cache.Purge()
	}

	logging.Info("merge configuration updated",
		"vector_weight", cfg.VectorWeight,
		"text_weight", cfg.TextWeight,
		"graph_weight", cfg.GraphWeight,
		"combined_threshold", cfg.CombinedThreshold)
}

// CurrentConfig returns a copy of the live merge configuration.
func (e *Engine) CurrentConfig() Config {
	return e.configSnapshot()
}

// HealthCheck reports whether the engine can serve its dominant search
// path: the vector backend and the embedding provider must both be
// healthy. The text/graph function surface is not part of this check.
func (e *Engine) HealthCheck(ctx context.Context) bool {
	vectorOK := e.vector.HealthCheck(ctx)
	embedderOK := e.embedder.HealthCheck(ctx)

	if !vectorOK || !embedderOK {
		logging.Warn("health check failed",
			"vector_backend", vectorOK,
			"embedding_provider", embedderOK)
	}

	return vectorOK && embedderOK
}

// configSnapshot copies the live configuration so one search observes a
// consistent view even while UpdateConfig runs concurrently.
func (e *Engine) configSnapshot() Config {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg
}

// categoriesFrom translates the caller's category filters into the
// backend's filter-type list.
func categoriesFrom(filters *Filters) []string {
	if filters == nil {
		return nil
	}
	return filters.Categories
}
