/*-------------------------------------------------------------------------
 *
 * pgEdge Assistant Retrieval Engine
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pgedge-assistant-retrieval/internal/config"
	"pgedge-assistant-retrieval/internal/database"
	"pgedge-assistant-retrieval/internal/embedding"
	"pgedge-assistant-retrieval/internal/hybrid"
)

const version = "1.0.0-alpha1"

var (
	configFile        string
	tenant            string
	dbHost            string
	dbPort            int
	dbName            string
	dbUser            string
	dbPassword        string
	dbSSLMode         string
	embeddingProvider string
	embeddingModel    string

	// search flags
	searchCategories    []string
	searchConversation  string
	searchAssistant     string
	searchExpand        bool
	searchMaxExpansions int
	searchJSON          bool

	// graph flags
	graphEntities      []string
	graphRelationships []string
	graphLimit         int

	// history flags
	historyConversation   string
	historyIncludeRelated bool
	historyLimit          int
)

var rootCmd = &cobra.Command{
	Use:   "pgedge-retrieval",
	Short: "pgEdge Assistant Retrieval Engine - Hybrid knowledge search over PostgreSQL",
	Long: `pgedge-retrieval runs hybrid searches over a tenant's knowledge base,
combining pgvector similarity search, full-text search, and knowledge-graph
traversal into a single ranked result list.

Queries require a tenant; every search is scoped to that tenant's content.`,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run a hybrid search",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Search the knowledge graph directly",
	RunE:  runGraph,
}

var historyCmd = &cobra.Command{
	Use:   "history <query>",
	Short: "Search a conversation's history",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runHistory,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check backend health",
	RunE:  runHealth,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version and exit",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pgEdge Assistant Retrieval Engine v%s\n", version)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "Path to configuration file")
	pf.StringVar(&tenant, "tenant", "", "Tenant (business) ID to search under")
	pf.StringVar(&dbHost, "db-host", "", "Database host")
	pf.IntVar(&dbPort, "db-port", 0, "Database port")
	pf.StringVar(&dbName, "db-name", "", "Database name")
	pf.StringVar(&dbUser, "db-user", "", "Database user")
	pf.StringVar(&dbPassword, "db-password", "", "Database password")
	pf.StringVar(&dbSSLMode, "db-sslmode", "", "Database SSL mode")
	pf.StringVar(&embeddingProvider, "embedding-provider", "", "Embedding provider: voyage, openai, or ollama")
	pf.StringVar(&embeddingModel, "embedding-model", "", "Embedding model name")

	searchCmd.Flags().StringSliceVar(&searchCategories, "category", nil, "Limit results to the given categories")
	searchCmd.Flags().StringVar(&searchConversation, "conversation", "", "Scope context to one conversation")
	searchCmd.Flags().StringVar(&searchAssistant, "assistant", "", "Scope results to one assistant's knowledge")
	searchCmd.Flags().BoolVar(&searchExpand, "expand", false, "Enable similarity expansion")
	searchCmd.Flags().IntVar(&searchMaxExpansions, "max-expansions", 3, "How many top results seed expansion queries")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Emit results as JSON")

	graphCmd.Flags().StringSliceVar(&graphEntities, "entity", nil, "Entity to look up (repeatable)")
	graphCmd.Flags().StringSliceVar(&graphRelationships, "relationship", nil, "Relationship type to follow (repeatable)")
	graphCmd.Flags().IntVar(&graphLimit, "limit", 0, "Maximum results (0 uses the configured default)")

	historyCmd.Flags().StringVar(&historyConversation, "conversation", "", "Conversation ID to search (required)")
	historyCmd.Flags().BoolVar(&historyIncludeRelated, "include-related", false, "Also search related messages across the tenant")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "Maximum results (0 uses the configured default)")

	rootCmd.AddCommand(searchCmd, graphCmd, historyCmd, healthCmd, versionCmd)
}

func main() {
	// Let cobra handle errors and exit codes
	// Usage is shown for flag parse errors, but suppressed for runtime errors (via cmd.SilenceUsage in the run functions)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// signalContext returns a context cancelled on SIGINT/SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// cliFlags translates cobra persistent flags into the config layer's view
func cliFlags(cmd *cobra.Command) config.CLIFlags {
	changed := cmd.Root().PersistentFlags().Changed
	return config.CLIFlags{
		ConfigFileSet:        changed("config"),
		ConfigFile:           configFile,
		DBHost:               dbHost,
		DBHostSet:            changed("db-host"),
		DBPort:               dbPort,
		DBPortSet:            changed("db-port"),
		DBName:               dbName,
		DBNameSet:            changed("db-name"),
		DBUser:               dbUser,
		DBUserSet:            changed("db-user"),
		DBPassword:           dbPassword,
		DBPassSet:            changed("db-password"),
		DBSSLMode:            dbSSLMode,
		DBSSLSet:             changed("db-sslmode"),
		Tenant:               tenant,
		TenantSet:            changed("tenant"),
		EmbeddingProvider:    embeddingProvider,
		EmbeddingProviderSet: changed("embedding-provider"),
		EmbeddingModel:       embeddingModel,
		EmbeddingModelSet:    changed("embedding-model"),
	}
}

// loadConfiguration resolves the config path and loads the layered config
func loadConfiguration(cmd *cobra.Command) (*config.Config, error) {
	path := configFile
	if path == "" {
		exePath, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to get executable path: %w", err)
		}
		path = config.GetDefaultConfigPath(exePath)
	}

	return config.LoadConfig(path, cliFlags(cmd))
}

// buildEngine wires the database, embedding provider, and hybrid engine
// from configuration. The caller must Close the returned client.
func buildEngine(ctx context.Context, cfg *config.Config) (*hybrid.Engine, *database.Client, error) {
	client := database.NewClient(&cfg.Database)
	if err := client.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	provider, err := embedding.NewProvider(embedding.Config{
		Provider:     cfg.Embedding.Provider,
		Model:        cfg.Embedding.Model,
		VoyageAPIKey: cfg.Embedding.VoyageAPIKey,
		OpenAIAPIKey: cfg.Embedding.OpenAIAPIKey,
		OllamaURL:    cfg.Embedding.OllamaURL,
	})
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}

	var opts []hybrid.Option
	if cfg.Cache.Enabled {
		opts = append(opts, hybrid.WithResultCache(cfg.Cache.Size,
			time.Duration(cfg.Cache.TTLSeconds)*time.Second))
	}

	engine, err := hybrid.New(hybrid.Backends{
		Vector:    database.NewVectorSearch(client),
		Functions: database.NewFunctionClient(client),
		Embedder:  embedding.NewRetryProvider(provider),
	}, cfg.Search.ToHybrid(), opts...)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to create engine: %w", err)
	}

	return engine, client, nil
}

// requireTenant ensures a tenant is configured before a search runs
func requireTenant(cfg *config.Config) (string, error) {
	if cfg.Tenant == "" {
		return "", fmt.Errorf("a tenant is required (set --tenant, PGEDGE_RETRIEVAL_TENANT, or the config file)")
	}
	return cfg.Tenant, nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, err := loadConfiguration(cmd)
	if err != nil {
		return err
	}
	tenantID, err := requireTenant(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	engine, client, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	query := hybrid.SearchQuery{
		Text:           strings.Join(args, " "),
		TenantID:       tenantID,
		ConversationID: searchConversation,
		AssistantID:    searchAssistant,
		ExpandSimilar:  searchExpand,
		MaxExpansions:  searchMaxExpansions,
	}
	if len(searchCategories) > 0 {
		query.Filters = &hybrid.Filters{Categories: searchCategories}
	}

	start := time.Now()
	var results []hybrid.CombinedResult
	if searchExpand {
		results, err = engine.SearchWithSimilarityExpansion(ctx, query)
	} else {
		results, err = engine.Search(ctx, query)
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return printResultsJSON(results)
	}
	printResults(results, time.Since(start))
	return nil
}

func runGraph(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, err := loadConfiguration(cmd)
	if err != nil {
		return err
	}
	tenantID, err := requireTenant(cfg)
	if err != nil {
		return err
	}

	entities := append([]string{}, graphEntities...)
	entities = append(entities, args...)
	if len(entities) == 0 && len(graphRelationships) == 0 {
		return fmt.Errorf("at least one --entity or --relationship is required")
	}

	ctx, cancel := signalContext()
	defer cancel()

	engine, client, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	start := time.Now()
	results, err := engine.SearchKnowledgeGraph(ctx, hybrid.GraphQuery{
		TenantID:      tenantID,
		Entities:      entities,
		Relationships: graphRelationships,
		Limit:         graphLimit,
	})
	if err != nil {
		return fmt.Errorf("graph search failed: %w", err)
	}

	printSourceResults(results, time.Since(start))
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, err := loadConfiguration(cmd)
	if err != nil {
		return err
	}
	tenantID, err := requireTenant(cfg)
	if err != nil {
		return err
	}
	if historyConversation == "" {
		return fmt.Errorf("--conversation is required")
	}

	ctx, cancel := signalContext()
	defer cancel()

	engine, client, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	start := time.Now()
	results, err := engine.SearchConversationHistory(ctx, hybrid.ConversationQuery{
		TenantID:       tenantID,
		ConversationID: historyConversation,
		Text:           strings.Join(args, " "),
		IncludeRelated: historyIncludeRelated,
		Limit:          historyLimit,
	})
	if err != nil {
		return fmt.Errorf("conversation search failed: %w", err)
	}

	printSourceResults(results, time.Since(start))
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, err := loadConfiguration(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	engine, client, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	if !engine.HealthCheck(ctx) {
		return fmt.Errorf("engine is unhealthy (check vector backend and embedding provider)")
	}

	fmt.Println("Engine is healthy")
	return nil
}

// resultJSON is the machine-readable shape for one search result
type resultJSON struct {
	ID            string                 `json:"id"`
	Content       string                 `json:"content"`
	Score         float64                `json:"score"`
	CombinedScore float64                `json:"combined_score"`
	Source        string                 `json:"source"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

func printResultsJSON(results []hybrid.CombinedResult) error {
	out := make([]resultJSON, 0, len(results))
	for _, r := range results {
		out = append(out, resultJSON{
			ID:            r.ID,
			Content:       r.Content,
			Score:         r.Score,
			CombinedScore: r.CombinedScore,
			Source:        string(r.Source),
			Metadata:      r.Metadata,
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printResults(results []hybrid.CombinedResult, elapsed time.Duration) {
	if len(results) == 0 {
		fmt.Printf("No results (%dms)\n", elapsed.Milliseconds())
		return
	}

	fmt.Printf("Found %d results (%dms):\n", len(results), elapsed.Milliseconds())
	for i, r := range results {
		fmt.Printf("%3d. [%s] %.3f  %s\n", i+1, r.Source, r.CombinedScore, r.ID)
		if content := oneLine(r.Content, 200); content != "" {
			fmt.Printf("     %s\n", content)
		}
	}
}

func printSourceResults(results []hybrid.SourceResult, elapsed time.Duration) {
	if len(results) == 0 {
		fmt.Printf("No results (%dms)\n", elapsed.Milliseconds())
		return
	}

	fmt.Printf("Found %d results (%dms):\n", len(results), elapsed.Milliseconds())
	for i, r := range results {
		fmt.Printf("%3d. [%s] %.3f  %s\n", i+1, r.Source, r.Score, r.ID)
		if content := oneLine(r.Content, 200); content != "" {
			fmt.Printf("     %s\n", content)
		}
	}
}

// oneLine collapses whitespace and bounds the content preview
func oneLine(content string, max int) string {
	content = strings.Join(strings.Fields(content), " ")
	if len(content) <= max {
		return content
	}
	return content[:max-3] + "..."
}
