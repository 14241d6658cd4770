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
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"pgedge-assistant-retrieval/internal/logging"
)

// defaultConversationLimit bounds conversation-history searches when the
// caller does not set one.
const defaultConversationLimit = 10

// SearchKnowledgeGraph queries the graph function directly with explicit
// entity and relationship lists, bypassing the embedding and vector paths.
// The rows come back reshaped but otherwise untouched: no weighting,
// threshold, or cap stage applies.
func (e *Engine) SearchKnowledgeGraph(ctx context.Context, query GraphQuery) ([]SourceResult, error) {
	if query.TenantID == "" {
		return nil, ErrTenantRequired
	}

	params := map[string]interface{}{
		"business_id": query.TenantID,
	}
	if len(query.Entities) > 0 {
		params["entities"] = query.Entities
	}
	if len(query.Relationships) > 0 {
		params["relationships"] = query.Relationships
	}
	if query.Limit > 0 {
		params["match_count"] = query.Limit
	}

	rows, err := e.functions.CallFunction(ctx, fnSearchGraphKnowledge, params)
	if err != nil {
		return nil, fmt.Errorf("graph search failed: %w", err)
	}

	results := make([]SourceResult, 0, len(rows))
	for _, row := range rows {
		results = append(results, graphResultFromRow(row))
	}

	logging.Debug("knowledge graph search completed",
		"tenant_id", query.TenantID,
		"entity_count", len(query.Entities),
		"relationship_count", len(query.Relationships),
		"result_count", len(results))

	return results, nil
}

// SearchConversationHistory embeds the query text and runs a vector search
// over the named conversation's messages, widening to tenant-wide message
// matches when IncludeRelated is set. Single-source semantics: raw scores
// are compared directly, duplicates keep the higher score, and the merged
// list is sorted by score descending.
func (e *Engine) SearchConversationHistory(ctx context.Context, query ConversationQuery) ([]SourceResult, error) {
	if query.TenantID == "" {
		return nil, ErrTenantRequired
	}
	if query.ConversationID == "" {
		return nil, ErrConversationRequired
	}

	start := time.Now()
	queryID := uuid.NewString()

	emb, err := e.embedder.Embed(ctx, query.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query text: %w", err)
	}

	limit := query.Limit
	if limit <= 0 {
		limit = defaultConversationLimit
	}

	var conversation, messages []SourceResult

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hits, searchErr := e.vector.SearchConversations(gctx, emb.Vector, ConversationOptions{
			TenantID:       query.TenantID,
			ConversationID: query.ConversationID,
			Limit:          limit,
		})
		if searchErr != nil {
			logging.Warn("conversation search failed, continuing without it",
				"query_id", queryID, "error", searchErr.Error())
			return nil
		}
		for i := range hits {
			hits[i].Source = SourceConversation
		}
		conversation = hits
		return nil
	})

	if query.IncludeRelated {
		g.Go(func() error {
			hits, searchErr := e.vector.SearchMessages(gctx, emb.Vector, MessageOptions{
				TenantID: query.TenantID,
				Limit:    limit,
			})
			if searchErr != nil {
				logging.Warn("message search failed, continuing without it",
					"query_id", queryID, "error", searchErr.Error())
				return nil
			}
			for i := range hits {
				hits[i].Source = SourceMessage
			}
			messages = hits
			return nil
		})
	}

	_ = g.Wait()

	merged := mergeByID(append(conversation, messages...))

	for _, r := range merged {
		e.stats.recordSource(r.Source, 1)
	}

	logging.Info("conversation history search completed",
		"query_id", queryID,
		"tenant_id", query.TenantID,
		"conversation_id", query.ConversationID,
		"include_related", query.IncludeRelated,
		"result_count", len(merged),
		"latency_ms", time.Since(start).Milliseconds())

	return merged, nil
}
