/*-------------------------------------------------------------------------
 *
 * pgEdge Assistant Retrieval Engine
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package shell

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"pgedge-assistant-retrieval/internal/hybrid"
)

func TestParseSlashCommand(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *SlashCommand
	}{
		{
			name:  "not a slash command",
			input: "how do I configure replication",
			want:  nil,
		},
		{
			name:  "bare slash",
			input: "/",
			want:  nil,
		},
		{
			name:  "command without args",
			input: "/help",
			want:  &SlashCommand{Command: "help", Args: []string{}},
		},
		{
			name:  "command with args",
			input: "/config vector_weight 0.6",
			want:  &SlashCommand{Command: "config", Args: []string{"vector_weight", "0.6"}},
		},
		{
			name:  "quoted argument",
			input: `/conversation conv-1 "what did we decide"`,
			want:  &SlashCommand{Command: "conversation", Args: []string{"conv-1", "what did we decide"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseSlashCommand(tt.input)
			if tt.want == nil {
				if got != nil {
					t.Errorf("expected nil, got %+v", got)
				}
				return
			}
			if got == nil {
				t.Fatal("expected a command, got nil")
			}
			if got.Command != tt.want.Command {
				t.Errorf("command = %q, want %q", got.Command, tt.want.Command)
			}
			if len(got.Args) != len(tt.want.Args) || (len(got.Args) > 0 && !reflect.DeepEqual(got.Args, tt.want.Args)) {
				t.Errorf("args = %v, want %v", got.Args, tt.want.Args)
			}
		})
	}
}

func TestParseQuotedArgs(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"simple", "a b c", []string{"a", "b", "c"}},
		{"double quotes", `a "b c" d`, []string{"a", "b c", "d"}},
		{"single quotes", "a 'b c' d", []string{"a", "b c", "d"}},
		{"escaped quote", `"a \"b\" c"`, []string{`a "b" c`}},
		{"extra spaces", "a   b", []string{"a", "b"}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseQuotedArgs(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseQuotedArgs(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestUnknownCommand(t *testing.T) {
	fx := newTestShell(t)

	fx.shell.Execute(context.Background(), "/bogus")

	if !strings.Contains(fx.out.String(), "Unknown command: /bogus") {
		t.Errorf("expected unknown-command message, got: %s", fx.out.String())
	}
}

func TestConfigCommand_ShowAndUpdate(t *testing.T) {
	fx := newTestShell(t)
	ctx := context.Background()

	fx.shell.Execute(ctx, "/config")
	if !strings.Contains(fx.out.String(), "vector_weight:        0.50") {
		t.Errorf("expected current config in output, got: %s", fx.out.String())
	}

	fx.out.Reset()
	fx.shell.Execute(ctx, "/config vector_weight 0.7")
	if !strings.Contains(fx.out.String(), "Updated vector_weight to 0.7") {
		t.Errorf("expected update confirmation, got: %s", fx.out.String())
	}
	if got := fx.shell.engine.CurrentConfig().VectorWeight; got != 0.7 {
		t.Errorf("expected engine weight 0.7, got %v", got)
	}

	// Other fields stay untouched
	if got := fx.shell.engine.CurrentConfig().TextWeight; got != 0.3 {
		t.Errorf("expected text weight unchanged at 0.3, got %v", got)
	}
}

func TestConfigCommand_IntegerField(t *testing.T) {
	fx := newTestShell(t)

	fx.shell.Execute(context.Background(), "/config max_combined_results 25")

	if got := fx.shell.engine.CurrentConfig().MaxCombinedResults; got != 25 {
		t.Errorf("expected max combined results 25, got %d", got)
	}
}

func TestConfigCommand_Errors(t *testing.T) {
	fx := newTestShell(t)
	ctx := context.Background()

	fx.shell.Execute(ctx, "/config bogus_field 1")
	if !strings.Contains(fx.out.String(), "unknown config field") {
		t.Errorf("expected unknown-field error, got: %s", fx.out.String())
	}

	fx.out.Reset()
	fx.shell.Execute(ctx, "/config vector_weight abc")
	if !strings.Contains(fx.out.String(), "expected a number") {
		t.Errorf("expected parse error, got: %s", fx.out.String())
	}

	fx.out.Reset()
	fx.shell.Execute(ctx, "/config vector_weight")
	if !strings.Contains(fx.out.String(), "Usage:") {
		t.Errorf("expected usage message, got: %s", fx.out.String())
	}
}

func TestExpandCommand(t *testing.T) {
	fx := newTestShell(t)
	ctx := context.Background()

	fx.shell.Execute(ctx, "/expand on")
	if !fx.shell.expand {
		t.Error("expected expansion on")
	}

	fx.shell.Execute(ctx, "/expand off")
	if fx.shell.expand {
		t.Error("expected expansion off")
	}

	fx.shell.Execute(ctx, "/expand 5")
	if fx.shell.maxExpansions != 5 {
		t.Errorf("expected max expansions 5, got %d", fx.shell.maxExpansions)
	}

	fx.out.Reset()
	fx.shell.Execute(ctx, "/expand maybe")
	if !strings.Contains(fx.out.String(), "Invalid value for expand") {
		t.Errorf("expected invalid-value message, got: %s", fx.out.String())
	}

	fx.out.Reset()
	fx.shell.Execute(ctx, "/expand")
	if !strings.Contains(fx.out.String(), "max expansions: 5") {
		t.Errorf("expected state display, got: %s", fx.out.String())
	}
}

func TestGraphCommand(t *testing.T) {
	fx := newTestShell(t)
	fx.funcs.rows["search_graph_knowledge"] = []map[string]interface{}{
		{"entity_id": "ent-1", "content": "Spock handles replication", "confidence": 0.85},
	}
	ctx := context.Background()

	fx.shell.Execute(ctx, "/graph spock replication")

	output := fx.out.String()
	if !strings.Contains(output, "[graph]") || !strings.Contains(output, "ent-1") {
		t.Errorf("expected graph result in output, got: %s", output)
	}

	records, err := fx.store.Recent(1)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(records) != 1 || records[0].Mode != "graph" || records[0].Query != "spock replication" {
		t.Errorf("expected graph history record, got %+v", records)
	}
}

func TestGraphCommand_Usage(t *testing.T) {
	fx := newTestShell(t)

	fx.shell.Execute(context.Background(), "/graph")

	if !strings.Contains(fx.out.String(), "Usage: /graph") {
		t.Errorf("expected usage message, got: %s", fx.out.String())
	}
}

func TestConversationCommand_Scope(t *testing.T) {
	fx := newTestShell(t)
	ctx := context.Background()

	fx.shell.Execute(ctx, "/conversation conv-42")
	if fx.shell.conversationID != "conv-42" {
		t.Errorf("expected conversation scope conv-42, got %q", fx.shell.conversationID)
	}

	fx.out.Reset()
	fx.shell.Execute(ctx, "/conversation")
	if !strings.Contains(fx.out.String(), "conv-42") {
		t.Errorf("expected scope display, got: %s", fx.out.String())
	}

	fx.shell.Execute(ctx, "/conversation off")
	if fx.shell.conversationID != "" {
		t.Errorf("expected scope cleared, got %q", fx.shell.conversationID)
	}
}

func TestConversationCommand_Search(t *testing.T) {
	fx := newTestShell(t)
	fx.vector.convResults = []hybrid.SourceResult{
		{ID: "msg-1", Content: "we agreed on async replication", Score: 0.88},
	}
	ctx := context.Background()

	fx.shell.Execute(ctx, `/conversation conv-1 "what did we decide"`)

	output := fx.out.String()
	if !strings.Contains(output, "[conversation]") || !strings.Contains(output, "msg-1") {
		t.Errorf("expected conversation result, got: %s", output)
	}

	records, err := fx.store.Recent(1)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(records) != 1 || records[0].Mode != "conversation" {
		t.Errorf("expected conversation history record, got %+v", records)
	}
}

func TestHistoryCommand(t *testing.T) {
	fx := newTestShell(t)
	fx.vector.results = []hybrid.SourceResult{{ID: "chunk-1", Score: 0.9}}
	ctx := context.Background()

	fx.shell.Execute(ctx, "older query")
	fx.shell.Execute(ctx, "newer query")
	fx.out.Reset()

	fx.shell.Execute(ctx, "/history")
	output := fx.out.String()
	if !strings.Contains(output, "older query") || !strings.Contains(output, "newer query") {
		t.Errorf("expected both queries in history, got: %s", output)
	}

	fx.out.Reset()
	fx.shell.Execute(ctx, "/history nope")
	if !strings.Contains(fx.out.String(), "Invalid history limit") {
		t.Errorf("expected limit error, got: %s", fx.out.String())
	}
}

func TestHistoryCommand_Disabled(t *testing.T) {
	fx := newTestShell(t)
	fx.shell.store = nil

	fx.shell.Execute(context.Background(), "/history")

	if !strings.Contains(fx.out.String(), "History recording is disabled") {
		t.Errorf("expected disabled message, got: %s", fx.out.String())
	}
}

func TestHelpListsCommands(t *testing.T) {
	fx := newTestShell(t)

	fx.shell.Execute(context.Background(), "/help")

	output := fx.out.String()
	for _, cmd := range []string{"/stats", "/health", "/config", "/expand", "/graph", "/conversation", "/history", "/quit"} {
		if !strings.Contains(output, cmd) {
			t.Errorf("expected %s in help output", cmd)
		}
	}
}
