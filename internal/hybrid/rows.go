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

import "fmt"

// Row decoding for the text and graph search functions. The function
// surface returns loosely typed rows; these helpers pin each row down to a
// tagged SourceResult so the merge can treat every source uniformly.

// textResultFromRow reshapes one row from search_knowledge_text.
func textResultFromRow(row map[string]interface{}) SourceResult {
	return SourceResult{
		ID:       stringField(row, "id", "chunk_id"),
		Content:  stringField(row, "content", "chunk_text"),
		Score:    floatField(row, "score", "rank"),
		Source:   SourceText,
		Metadata: metadataFrom(row, "id", "chunk_id", "content", "chunk_text", "score", "rank"),
	}
}

// graphResultFromRow reshapes one row from search_graph_knowledge. The
// traversal confidence becomes the raw score; relationship and related
// entity ride along in the metadata.
func graphResultFromRow(row map[string]interface{}) SourceResult {
	return SourceResult{
		ID:       stringField(row, "entity_id", "id"),
		Content:  stringField(row, "content", "entity_name"),
		Score:    floatField(row, "confidence", "score"),
		Source:   SourceGraph,
		Metadata: metadataFrom(row, "entity_id", "id", "content", "entity_name", "confidence", "score"),
	}
}

// stringField returns the first of the named keys holding a usable string.
func stringField(row map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		switch v := row[key].(type) {
		case nil:
			continue
		case string:
			if v != "" {
				return v
			}
		case fmt.Stringer:
			return v.String()
		}
	}
	return ""
}

// floatField returns the first of the named keys holding a numeric value.
// Postgres drivers hand back a mix of float and integer widths depending on
// the column type, so all of them are accepted.
func floatField(row map[string]interface{}, keys ...string) float64 {
	for _, key := range keys {
		switch v := row[key].(type) {
		case float64:
			return v
		case float32:
			return float64(v)
		case int64:
			return float64(v)
		case int32:
			return float64(v)
		case int:
			return float64(v)
		}
	}
	return 0
}

// metadataFrom copies the row minus the keys already lifted into the
// SourceResult proper.
func metadataFrom(row map[string]interface{}, consumed ...string) map[string]interface{} {
	meta := make(map[string]interface{})
	for k, v := range row {
		skip := false
		for _, c := range consumed {
			if k == c {
				skip = true
				break
			}
		}
		if !skip {
			meta[k] = v
		}
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}
