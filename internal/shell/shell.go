/*-------------------------------------------------------------------------
 *
 * pgEdge Assistant Retrieval Engine
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package shell implements the interactive retrieval shell. Plain input
// lines run a hybrid search; slash commands inspect and tune the engine.
package shell

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/uuid"

	"pgedge-assistant-retrieval/internal/history"
	"pgedge-assistant-retrieval/internal/hybrid"
)

const defaultMaxExpansions = 3

// Options configures a Shell
type Options struct {
	Engine  *hybrid.Engine
	History *history.Store // optional; nil disables history recording
	Tenant  string
	Out     io.Writer // defaults to os.Stdout

	// HistoryFile is the readline input history file (distinct from the
	// search history store)
	HistoryFile string
}

// Shell is an interactive session over the retrieval engine
type Shell struct {
	engine    *hybrid.Engine
	store     *history.Store
	tenant    string
	out       io.Writer
	sessionID string

	historyFile string

	// Session state toggled by slash commands
	expand         bool
	maxExpansions  int
	conversationID string
}

// New creates a Shell over an engine
func New(opts Options) (*Shell, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if opts.Tenant == "" {
		return nil, fmt.Errorf("tenant is required")
	}

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	return &Shell{
		engine:        opts.Engine,
		store:         opts.History,
		tenant:        opts.Tenant,
		out:           out,
		sessionID:     uuid.NewString(),
		historyFile:   opts.HistoryFile,
		maxExpansions: defaultMaxExpansions,
	}, nil
}

// Run starts the interactive loop and blocks until the user quits or the
// context is cancelled
func (s *Shell) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "retrieval> ",
		HistoryFile:       s.historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	// Monitor context cancellation in a goroutine
	go func() {
		<-ctx.Done()
		rl.Close() // Closing readline will cause Readline() to return an error
	}()

	fmt.Fprintf(s.out, "pgEdge Assistant Retrieval Shell (tenant: %s)\n", s.tenant)
	fmt.Fprintln(s.out, "Type a query to search, /help for commands, /quit to exit.")

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Fprintln(s.out, "Goodbye!")
				return nil
			}
			if ctx.Err() != nil {
				fmt.Fprintln(s.out, "Goodbye!")
				return nil
			}
			return fmt.Errorf("readline error: %w", err)
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if s.Execute(ctx, input) {
			fmt.Fprintln(s.out, "Goodbye!")
			return nil
		}
	}
}

// Execute processes one input line. It returns true when the session
// should end.
func (s *Shell) Execute(ctx context.Context, input string) bool {
	if cmd := ParseSlashCommand(input); cmd != nil {
		return s.HandleSlashCommand(ctx, cmd)
	}

	s.runSearch(ctx, input)
	return false
}

// runSearch executes a hybrid search for a plain input line
func (s *Shell) runSearch(ctx context.Context, text string) {
	query := hybrid.SearchQuery{
		Text:           text,
		TenantID:       s.tenant,
		ConversationID: s.conversationID,
		ExpandSimilar:  s.expand,
		MaxExpansions:  s.maxExpansions,
	}

	start := time.Now()
	var results []hybrid.CombinedResult
	var err error
	mode := "search"
	if s.expand {
		mode = "expand"
		results, err = s.engine.SearchWithSimilarityExpansion(ctx, query)
	} else {
		results, err = s.engine.Search(ctx, query)
	}
	elapsed := time.Since(start)

	if err != nil {
		fmt.Fprintf(s.out, "Search failed: %v\n", err)
		return
	}

	s.printResults(results, elapsed)
	s.record(text, mode, len(results), topScore(results), elapsed)
}

// printResults writes the ranked results with source tags and scores
func (s *Shell) printResults(results []hybrid.CombinedResult, elapsed time.Duration) {
	if len(results) == 0 {
		fmt.Fprintf(s.out, "No results (%dms)\n", elapsed.Milliseconds())
		return
	}

	fmt.Fprintf(s.out, "Found %d results (%dms):\n", len(results), elapsed.Milliseconds())
	for i, r := range results {
		fmt.Fprintf(s.out, "%3d. [%s] %.3f  %s\n", i+1, r.Source, r.CombinedScore, r.ID)
		if content := truncateContent(r.Content, 200); content != "" {
			fmt.Fprintf(s.out, "     %s\n", content)
		}
	}
}

// printSourceResults writes results from a single-source search (graph or
// conversation), where only the raw score is meaningful
func (s *Shell) printSourceResults(results []hybrid.SourceResult, elapsed time.Duration) {
	if len(results) == 0 {
		fmt.Fprintf(s.out, "No results (%dms)\n", elapsed.Milliseconds())
		return
	}

	fmt.Fprintf(s.out, "Found %d results (%dms):\n", len(results), elapsed.Milliseconds())
	for i, r := range results {
		fmt.Fprintf(s.out, "%3d. [%s] %.3f  %s\n", i+1, r.Source, r.Score, r.ID)
		if content := truncateContent(r.Content, 200); content != "" {
			fmt.Fprintf(s.out, "     %s\n", content)
		}
	}
}

// record appends one executed search to the history store, if configured
func (s *Shell) record(query, mode string, resultCount int, top float64, elapsed time.Duration) {
	if s.store == nil {
		return
	}
	_, err := s.store.Append(history.Record{
		TenantID:    s.tenant,
		Query:       query,
		Mode:        mode,
		ResultCount: resultCount,
		TopScore:    top,
		ElapsedMS:   elapsed.Milliseconds(),
	})
	if err != nil {
		fmt.Fprintf(s.out, "Warning: failed to record history: %v\n", err)
	}
}

// topScore returns the best combined score, or 0 for an empty list
func topScore(results []hybrid.CombinedResult) float64 {
	if len(results) == 0 {
		return 0
	}
	return results[0].CombinedScore
}

// truncateContent collapses whitespace and bounds the content preview
func truncateContent(content string, max int) string {
	content = strings.Join(strings.Fields(content), " ")
	if len(content) <= max {
		return content
	}
	return content[:max-3] + "..."
}
