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
	"errors"
	"testing"
)

func TestFunctionNamePattern(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{"simple name", "search_knowledge_text", true},
		{"schema qualified", "public.search_knowledge_text", true},
		{"leading underscore", "_internal_fn", true},
		{"digits", "fn2", true},
		{"empty", "", false},
		{"leading digit", "2fn", false},
		{"semicolon injection", "fn; DROP TABLE users", false},
		{"parenthesis", "fn()", false},
		{"double dot", "a.b.c", false},
		{"whitespace", "fn name", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := functionNamePattern.MatchString(tt.input)
			if got != tt.valid {
				t.Errorf("functionNamePattern.MatchString(%q) = %v, want %v", tt.input, got, tt.valid)
			}
		})
	}
}

func TestCallFunction_InvalidName(t *testing.T) {
	f := NewFunctionClient(NewClient(nil))

	_, err := f.CallFunction(context.Background(), "fn; DROP TABLE users", nil)
	if err == nil {
		t.Fatal("expected error for invalid function name")
	}
	if errors.Is(err, ErrNotConnected) {
		t.Error("name validation should run before the connection check")
	}
}

func TestCallFunction_InvalidParamName(t *testing.T) {
	client := NewClient(nil)
	f := NewFunctionClient(client)

	_, err := f.CallFunction(context.Background(), "search_knowledge_text", map[string]interface{}{
		"bad param": 1,
	})
	if err == nil {
		t.Fatal("expected error for invalid parameter name")
	}
}

func TestCallFunction_NotConnected(t *testing.T) {
	f := NewFunctionClient(NewClient(nil))

	_, err := f.CallFunction(context.Background(), "search_knowledge_text", map[string]interface{}{
		"business_id": "biz-1",
	})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}
