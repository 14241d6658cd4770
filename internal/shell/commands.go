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
	"fmt"
	"strconv"
	"strings"
	"time"

	"pgedge-assistant-retrieval/internal/hybrid"
)

// SlashCommand represents a parsed slash command
type SlashCommand struct {
	Command string
	Args    []string
}

// ParseSlashCommand parses a slash command from user input
func ParseSlashCommand(input string) *SlashCommand {
	if !strings.HasPrefix(input, "/") {
		return nil
	}

	// Remove the leading slash
	input = strings.TrimPrefix(input, "/")

	// Split into command and arguments, respecting quotes
	parts := parseQuotedArgs(input)
	if len(parts) == 0 {
		return nil
	}

	return &SlashCommand{
		Command: parts[0],
		Args:    parts[1:],
	}
}

// parseQuotedArgs splits a string into arguments, respecting quoted strings
func parseQuotedArgs(input string) []string {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := rune(0)

	runes := []rune(input)

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		switch {
		case (r == '"' || r == '\'') && !inQuote:
			// Start of quoted string
			inQuote = true
			quoteChar = r
		case r == quoteChar && inQuote:
			// End of quoted string
			inQuote = false
			quoteChar = 0
		case r == ' ' && !inQuote:
			// Space outside quotes - end of argument
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		case r == '\\' && inQuote && i+1 < len(runes):
			// Escape sequence in quoted string
			next := runes[i+1]
			if next == quoteChar || next == '\\' {
				current.WriteRune(next)
				i++ // Skip the next character since we've already processed it
			} else {
				current.WriteRune(r)
			}
		default:
			current.WriteRune(r)
		}
	}

	// Add the last argument if any
	if current.Len() > 0 {
		args = append(args, current.String())
	}

	return args
}

// HandleSlashCommand processes a slash command. It returns true when the
// session should end.
func (s *Shell) HandleSlashCommand(ctx context.Context, cmd *SlashCommand) bool {
	if cmd == nil {
		return false
	}

	switch cmd.Command {
	case "help":
		s.printHelp()

	case "stats":
		s.printStats()

	case "health":
		s.printHealth(ctx)

	case "config":
		s.handleConfigCommand(cmd.Args)

	case "expand":
		s.handleExpandCommand(cmd.Args)

	case "graph":
		s.handleGraphCommand(ctx, cmd.Args)

	case "conversation":
		s.handleConversationCommand(ctx, cmd.Args)

	case "history":
		s.handleHistoryCommand(cmd.Args)

	case "quit", "exit":
		return true

	default:
		fmt.Fprintf(s.out, "Unknown command: /%s (try /help)\n", cmd.Command)
	}

	return false
}

// printHelp prints help for slash commands
func (s *Shell) printHelp() {
	help := `
Slash Commands:
  /help                          Show this help message
  /stats                         Show engine counters
  /health                        Check backend health
  /config                        Show the current merge configuration
  /config <field> <value>        Update one merge tunable
  /expand <on|off>               Toggle similarity expansion for searches
  /expand <n>                    Set how many top results seed expansion
  /graph <entity> [entity ...]   Search the knowledge graph directly
  /conversation <id>             Scope searches to one conversation
  /conversation <id> <query>     Search one conversation's history
  /history [n]                   Show recent searches (default 10)
  /quit                          Exit the shell

Config fields:
  vector_weight, text_weight, graph_weight,
  vector_threshold, text_threshold, combined_threshold,
  max_vector_results, max_text_results, max_graph_results,
  max_combined_results

Examples:
  /config vector_weight 0.6
  /expand on
  /graph spock replication
  /conversation conv-42 "what did we decide about failover"
`
	fmt.Fprint(s.out, help)
}

// printStats prints the engine's cumulative counters
func (s *Shell) printStats() {
	stats := s.engine.Stats()

	fmt.Fprintln(s.out, "\nEngine Statistics:")
	fmt.Fprintf(s.out, "  Total Queries:      %d\n", stats.TotalQueries)
	fmt.Fprintf(s.out, "  Avg Latency:        %s\n", stats.AvgLatency)
	fmt.Fprintf(s.out, "  Avg Result Count:   %.1f\n", stats.AvgResultCount)
	fmt.Fprintf(s.out, "  Cache Hit Rate:     %.1f%%\n", stats.CacheHitRate*100)
	fmt.Fprintf(s.out, "  Expanded Searches:  %d\n", stats.ExpandedSearches)

	if len(stats.SourceBreakdown) > 0 {
		fmt.Fprintln(s.out, "  Source Breakdown:")
		for _, source := range []hybrid.Source{
			hybrid.SourceVector, hybrid.SourceText, hybrid.SourceGraph,
			hybrid.SourceConversation, hybrid.SourceMessage,
		} {
			if n, ok := stats.SourceBreakdown[source]; ok {
				fmt.Fprintf(s.out, "    %-14s %d\n", source, n)
			}
		}
	}
}

// printHealth runs the composite health check
func (s *Shell) printHealth(ctx context.Context) {
	if s.engine.HealthCheck(ctx) {
		fmt.Fprintln(s.out, "Engine is healthy")
	} else {
		fmt.Fprintln(s.out, "Engine is UNHEALTHY (check vector backend and embedding provider)")
	}
}

// handleConfigCommand shows or updates the merge configuration
func (s *Shell) handleConfigCommand(args []string) {
	if len(args) == 0 {
		s.printConfig()
		return
	}

	if len(args) != 2 {
		fmt.Fprintln(s.out, "Usage: /config [<field> <value>]")
		return
	}

	if err := s.applyConfigField(args[0], args[1]); err != nil {
		fmt.Fprintf(s.out, "Config update failed: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "Updated %s to %s\n", args[0], args[1])
}

// printConfig shows the live merge configuration
func (s *Shell) printConfig() {
	cfg := s.engine.CurrentConfig()

	fmt.Fprintln(s.out, "\nMerge Configuration:")
	fmt.Fprintf(s.out, "  vector_weight:        %.2f\n", cfg.VectorWeight)
	fmt.Fprintf(s.out, "  text_weight:          %.2f\n", cfg.TextWeight)
	fmt.Fprintf(s.out, "  graph_weight:         %.2f\n", cfg.GraphWeight)
	fmt.Fprintf(s.out, "  vector_threshold:     %.2f\n", cfg.VectorThreshold)
	fmt.Fprintf(s.out, "  text_threshold:       %.2f\n", cfg.TextThreshold)
	fmt.Fprintf(s.out, "  combined_threshold:   %.2f\n", cfg.CombinedThreshold)
	fmt.Fprintf(s.out, "  max_vector_results:   %d\n", cfg.MaxVectorResults)
	fmt.Fprintf(s.out, "  max_text_results:     %d\n", cfg.MaxTextResults)
	fmt.Fprintf(s.out, "  max_graph_results:    %d\n", cfg.MaxGraphResults)
	fmt.Fprintf(s.out, "  max_combined_results: %d\n", cfg.MaxCombinedResults)
}

// applyConfigField updates a single merge tunable by name
func (s *Shell) applyConfigField(field, value string) error {
	var update hybrid.ConfigUpdate

	switch field {
	case "vector_weight", "text_weight", "graph_weight",
		"vector_threshold", "text_threshold", "combined_threshold":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid value %q for %s: expected a number", value, field)
		}
		switch field {
		case "vector_weight":
			update.VectorWeight = &f
		case "text_weight":
			update.TextWeight = &f
		case "graph_weight":
			update.GraphWeight = &f
		case "vector_threshold":
			update.VectorThreshold = &f
		case "text_threshold":
			update.TextThreshold = &f
		case "combined_threshold":
			update.CombinedThreshold = &f
		}

	case "max_vector_results", "max_text_results", "max_graph_results", "max_combined_results":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value %q for %s: expected an integer", value, field)
		}
		switch field {
		case "max_vector_results":
			update.MaxVectorResults = &n
		case "max_text_results":
			update.MaxTextResults = &n
		case "max_graph_results":
			update.MaxGraphResults = &n
		case "max_combined_results":
			update.MaxCombinedResults = &n
		}

	default:
		return fmt.Errorf("unknown config field: %s", field)
	}

	s.engine.UpdateConfig(update)
	return nil
}

// handleExpandCommand toggles similarity expansion for subsequent searches
func (s *Shell) handleExpandCommand(args []string) {
	if len(args) == 0 {
		state := "off"
		if s.expand {
			state = "on"
		}
		fmt.Fprintf(s.out, "Similarity expansion: %s (max expansions: %d)\n", state, s.maxExpansions)
		return
	}

	switch strings.ToLower(args[0]) {
	case "on", "true", "1", "yes":
		s.expand = true
		fmt.Fprintln(s.out, "Similarity expansion enabled")
	case "off", "false", "0", "no":
		s.expand = false
		fmt.Fprintln(s.out, "Similarity expansion disabled")
	default:
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			fmt.Fprintf(s.out, "Invalid value for expand: %s (use on, off, or a positive number)\n", args[0])
			return
		}
		s.maxExpansions = n
		fmt.Fprintf(s.out, "Max expansions set to %d\n", n)
	}
}

// handleGraphCommand runs a direct knowledge-graph search
func (s *Shell) handleGraphCommand(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(s.out, "Usage: /graph <entity> [entity ...]")
		return
	}

	start := time.Now()
	results, err := s.engine.SearchKnowledgeGraph(ctx, hybrid.GraphQuery{
		TenantID: s.tenant,
		Entities: args,
	})
	elapsed := time.Since(start)

	if err != nil {
		fmt.Fprintf(s.out, "Graph search failed: %v\n", err)
		return
	}

	s.printSourceResults(results, elapsed)
	s.record(strings.Join(args, " "), "graph", len(results), topSourceScore(results), elapsed)
}

// handleConversationCommand scopes the session to a conversation, or runs
// a conversation-history search when a query is given
func (s *Shell) handleConversationCommand(ctx context.Context, args []string) {
	if len(args) == 0 {
		if s.conversationID == "" {
			fmt.Fprintln(s.out, "No conversation scope set. Usage: /conversation <id> [query]")
		} else {
			fmt.Fprintf(s.out, "Conversation scope: %s (use '/conversation off' to clear)\n", s.conversationID)
		}
		return
	}

	if args[0] == "off" || args[0] == "none" {
		s.conversationID = ""
		fmt.Fprintln(s.out, "Conversation scope cleared")
		return
	}

	if len(args) == 1 {
		s.conversationID = args[0]
		fmt.Fprintf(s.out, "Searches now scoped to conversation %s\n", args[0])
		return
	}

	queryText := strings.Join(args[1:], " ")
	start := time.Now()
	results, err := s.engine.SearchConversationHistory(ctx, hybrid.ConversationQuery{
		TenantID:       s.tenant,
		ConversationID: args[0],
		Text:           queryText,
	})
	elapsed := time.Since(start)

	if err != nil {
		fmt.Fprintf(s.out, "Conversation search failed: %v\n", err)
		return
	}

	s.printSourceResults(results, elapsed)
	s.record(queryText, "conversation", len(results), topSourceScore(results), elapsed)
}

// handleHistoryCommand shows recent search history
func (s *Shell) handleHistoryCommand(args []string) {
	if s.store == nil {
		fmt.Fprintln(s.out, "History recording is disabled")
		return
	}

	limit := 10
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			fmt.Fprintf(s.out, "Invalid history limit: %s\n", args[0])
			return
		}
		limit = n
	}

	records, err := s.store.Recent(limit)
	if err != nil {
		fmt.Fprintf(s.out, "Failed to read history: %v\n", err)
		return
	}

	if len(records) == 0 {
		fmt.Fprintln(s.out, "No search history yet")
		return
	}

	fmt.Fprintf(s.out, "Recent searches (%d):\n", len(records))
	for _, rec := range records {
		fmt.Fprintf(s.out, "  %s  [%-12s] %3d hits  top %.3f  %4dms  %s\n",
			rec.CreatedAt.Format("2006-01-02 15:04:05"),
			rec.Mode, rec.ResultCount, rec.TopScore, rec.ElapsedMS, rec.Query)
	}
}

// topSourceScore returns the best raw score, or 0 for an empty list
func topSourceScore(results []hybrid.SourceResult) float64 {
	best := 0.0
	for _, r := range results {
		if r.Score > best {
			best = r.Score
		}
	}
	return best
}
