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
	"strings"
)

// cacheKey fingerprints a query for the result cache. Tenant isolation is
// part of the key, so identical query text from two tenants can never share
// an entry.
func cacheKey(query SearchQuery) string {
	var b strings.Builder
	b.WriteString(query.TenantID)
	b.WriteByte('|')
	b.WriteString(query.Text)
	b.WriteByte('|')
	b.WriteString(query.AssistantID)
	b.WriteByte('|')
	b.WriteString(query.ConversationID)
	if query.Filters != nil {
		b.WriteByte('|')
		b.WriteString(strings.Join(query.Filters.Categories, ","))
		if !query.Filters.Since.IsZero() {
			b.WriteByte('|')
			b.WriteString(query.Filters.Since.UTC().Format("2006-01-02T15:04:05"))
		}
		if !query.Filters.Until.IsZero() {
			b.WriteByte('|')
			b.WriteString(query.Filters.Until.UTC().Format("2006-01-02T15:04:05"))
		}
	}
	return b.String()
}

// cachedResults returns a copy of a cached result list so callers can never
// mutate the cached slice.
func (e *Engine) cachedResults(key string) ([]CombinedResult, bool) {
	results, ok := e.cache.Get(key)
	if !ok {
		return nil, false
	}
	out := make([]CombinedResult, len(results))
	copy(out, results)
	return out, true
}

// storeResults caches a copy of the result list.
func (e *Engine) storeResults(key string, results []CombinedResult) {
	stored := make([]CombinedResult, len(results))
	copy(stored, results)
	e.cache.Add(key, stored)
}
