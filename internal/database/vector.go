/*-------------------------------------------------------------------------
 *
 * pgEdge Assistant Retrieval Engine
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pgedge-assistant-retrieval/internal/hybrid"
)

const (
	// defaultVectorLimit bounds a vector search when the caller gives no limit
	defaultVectorLimit = 10
)

// VectorSearch runs pgvector similarity queries for the hybrid engine.
// It implements hybrid.VectorBackend over the client's pool. Cosine
// distance is converted to similarity as 1 - distance, so scores land
// in [0,1] and the threshold can be applied SQL-side.
type VectorSearch struct {
	client *Client
}

// NewVectorSearch creates a vector search backend over an existing client
func NewVectorSearch(client *Client) *VectorSearch {
	return &VectorSearch{client: client}
}

// Search finds knowledge chunks similar to the query embedding
func (v *VectorSearch) Search(ctx context.Context, embedding []float64, opts hybrid.VectorOptions) ([]hybrid.SourceResult, error) {
	pool := v.client.Pool()
	if pool == nil {
		return nil, ErrNotConnected
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultVectorLimit
	}

	query := `
		SELECT id, content, category,
			1 - (embedding <=> $1::vector) AS similarity
		FROM knowledge_chunks
		WHERE business_id = $2
			AND 1 - (embedding <=> $1::vector) >= $3`
	args := []interface{}{formatVector(embedding), opts.TenantID, opts.Threshold}

	if opts.AssistantID != "" {
		args = append(args, opts.AssistantID)
		query += fmt.Sprintf(" AND assistant_id = $%d", len(args))
	}
	if len(opts.Categories) > 0 {
		args = append(args, opts.Categories)
		query += fmt.Sprintf(" AND category = ANY($%d)", len(args))
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY similarity DESC LIMIT $%d", len(args))

	startTime := time.Now()
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		LogQuery(query, time.Since(startTime), 0, err)
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	var results []hybrid.SourceResult
	for rows.Next() {
		var id, content, category string
		var similarity float64
		if err := rows.Scan(&id, &content, &category, &similarity); err != nil {
			return nil, fmt.Errorf("failed to scan vector search row: %w", err)
		}
		results = append(results, hybrid.SourceResult{
			ID:      id,
			Content: content,
			Score:   similarity,
			Source:  hybrid.SourceVector,
			Metadata: map[string]interface{}{
				"category": category,
			},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	LogQuery(query, time.Since(startTime), len(results), nil)
	return results, nil
}

// SearchConversations finds messages similar to the query embedding
// within a single conversation
func (v *VectorSearch) SearchConversations(ctx context.Context, embedding []float64, opts hybrid.ConversationOptions) ([]hybrid.SourceResult, error) {
	pool := v.client.Pool()
	if pool == nil {
		return nil, ErrNotConnected
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultVectorLimit
	}

	query := `
		SELECT id, content, conversation_id,
			1 - (embedding <=> $1::vector) AS similarity
		FROM conversation_messages
		WHERE business_id = $2
			AND conversation_id = $3
		ORDER BY similarity DESC
		LIMIT $4`

	startTime := time.Now()
	rows, err := pool.Query(ctx, query, formatVector(embedding), opts.TenantID, opts.ConversationID, limit)
	if err != nil {
		LogQuery(query, time.Since(startTime), 0, err)
		return nil, fmt.Errorf("conversation search failed: %w", err)
	}
	defer rows.Close()

	results, err := scanMessageRows(rows, hybrid.SourceConversation)
	if err != nil {
		return nil, err
	}

	LogQuery(query, time.Since(startTime), len(results), nil)
	return results, nil
}

// SearchMessages finds messages similar to the query embedding across
// all of the tenant's conversations
func (v *VectorSearch) SearchMessages(ctx context.Context, embedding []float64, opts hybrid.MessageOptions) ([]hybrid.SourceResult, error) {
	pool := v.client.Pool()
	if pool == nil {
		return nil, ErrNotConnected
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultVectorLimit
	}

	query := `
		SELECT id, content, conversation_id,
			1 - (embedding <=> $1::vector) AS similarity
		FROM conversation_messages
		WHERE business_id = $2
		ORDER BY similarity DESC
		LIMIT $3`

	startTime := time.Now()
	rows, err := pool.Query(ctx, query, formatVector(embedding), opts.TenantID, limit)
	if err != nil {
		LogQuery(query, time.Since(startTime), 0, err)
		return nil, fmt.Errorf("message search failed: %w", err)
	}
	defer rows.Close()

	results, err := scanMessageRows(rows, hybrid.SourceMessage)
	if err != nil {
		return nil, err
	}

	LogQuery(query, time.Since(startTime), len(results), nil)
	return results, nil
}

// HealthCheck reports whether the backing database is reachable
func (v *VectorSearch) HealthCheck(ctx context.Context) bool {
	return v.client.HealthCheck(ctx)
}

// messageRows is the subset of pgx.Rows scanMessageRows needs
type messageRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanMessageRows(rows messageRows, source hybrid.Source) ([]hybrid.SourceResult, error) {
	var results []hybrid.SourceResult
	for rows.Next() {
		var id, content, conversationID string
		var similarity float64
		if err := rows.Scan(&id, &content, &conversationID, &similarity); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		results = append(results, hybrid.SourceResult{
			ID:      id,
			Content: content,
			Score:   similarity,
			Source:  source,
			Metadata: map[string]interface{}{
				"conversation_id": conversationID,
			},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// formatVector converts an embedding to the pgvector text literal format
func formatVector(embedding []float64) string {
	parts := make([]string, len(embedding))
	for i, val := range embedding {
		parts[i] = fmt.Sprintf("%f", val)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
