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
	"regexp"
	"sort"
	"strings"
	"time"
)

// functionNamePattern matches a plain or schema-qualified identifier.
// Function names come from engine-internal constants, not user input,
// but validating here keeps the generic caller safe to reuse.
var functionNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?$`)

// FunctionClient invokes named server-side search functions and decodes
// their rows generically. It implements hybrid.FunctionCaller.
type FunctionClient struct {
	client *Client
}

// NewFunctionClient creates a function caller over an existing client
func NewFunctionClient(client *Client) *FunctionClient {
	return &FunctionClient{client: client}
}

// CallFunction executes SELECT * FROM name(k1 => $1, ...) and returns the
// result rows as maps keyed by column name. Parameters are passed by name
// in sorted key order so the generated SQL is deterministic.
func (f *FunctionClient) CallFunction(ctx context.Context, name string, params map[string]interface{}) ([]map[string]interface{}, error) {
	if !functionNamePattern.MatchString(name) {
		return nil, fmt.Errorf("invalid function name: %s", name)
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		if !functionNamePattern.MatchString(k) {
			return nil, fmt.Errorf("invalid parameter name: %s", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pool := f.client.Pool()
	if pool == nil {
		return nil, ErrNotConnected
	}

	placeholders := make([]string, len(keys))
	args := make([]interface{}, len(keys))
	for i, k := range keys {
		placeholders[i] = fmt.Sprintf("%s => $%d", k, i+1)
		args[i] = params[k]
	}

	query := fmt.Sprintf("SELECT * FROM %s(%s)", name, strings.Join(placeholders, ", "))

	startTime := time.Now()
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		LogQuery(query, time.Since(startTime), 0, err)
		return nil, fmt.Errorf("function %s failed: %w", name, err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columnNames := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columnNames[i] = string(fd.Name)
	}

	var results []map[string]interface{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row from %s: %w", name, err)
		}

		row := make(map[string]interface{}, len(columnNames))
		for i, col := range columnNames {
			row[col] = values[i]
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	LogQuery(query, time.Since(startTime), len(results), nil)
	return results, nil
}
