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
	"time"
)

// Source identifies which retrieval mechanism produced a result.
type Source string

const (
	SourceVector       Source = "vector"
	SourceText         Source = "text"
	SourceGraph        Source = "graph"
	SourceConversation Source = "conversation"
	SourceMessage      Source = "message"
)

// Filters restricts a hybrid search to a subset of the tenant's content.
type Filters struct {
	// Categories limits results to the given content categories.
	Categories []string

	// Since and Until bound result timestamps when set (zero means unbounded).
	Since time.Time
	Until time.Time
}

// ContextBoost carries hints the caller wants factored into retrieval,
// such as conversations the customer recently touched.
type ContextBoost struct {
	RecentConversationIDs []string
	CustomerAttributes    map[string]string
}

// SearchQuery is the input to a hybrid search.
type SearchQuery struct {
	// Text is the natural-language query. Required for the vector and
	// full-text paths; the graph path uses it as a loose entity hint.
	Text string

	// TenantID is the isolation key. Required for every search.
	TenantID string

	// ConversationID optionally scopes context to one conversation.
	ConversationID string

	// AssistantID optionally scopes results to one assistant's knowledge.
	AssistantID string

	Filters *Filters
	Boost   *ContextBoost

	// ExpandSimilar enables the similarity-expansion round in
	// SearchWithSimilarityExpansion. MaxExpansions bounds how many of the
	// top initial results seed expansion queries.
	ExpandSimilar bool
	MaxExpansions int
}

// SourceResult is one hit from a single backend before merging.
// Score is the backend-native relevance value, expected in [0,1].
type SourceResult struct {
	ID       string
	Content  string
	Score    float64
	Source   Source
	Metadata map[string]interface{}
}

// CombinedResult is a SourceResult augmented with its weighted score.
// For the output of one search call, results are sorted by CombinedScore
// descending and no two results share an ID.
type CombinedResult struct {
	SourceResult
	CombinedScore float64
}

// GraphQuery is the input to a direct knowledge-graph search. It bypasses
// the embedding and vector paths entirely.
type GraphQuery struct {
	TenantID      string
	Entities      []string
	Relationships []string
	Limit         int
}

// ConversationQuery is the input to a conversation-history search.
type ConversationQuery struct {
	TenantID       string
	ConversationID string
	Text           string

	// IncludeRelated widens the search to message-level matches across the
	// whole tenant, not just the named conversation.
	IncludeRelated bool

	Limit int
}

// Stats is a point-in-time snapshot of engine counters. Counters are
// cumulative for the life of the engine instance and are never reset.
type Stats struct {
	TotalQueries     int64
	AvgLatency       time.Duration
	CacheHitRate     float64
	SourceBreakdown  map[Source]int64
	AvgResultCount   float64
	ExpandedSearches int64
}
