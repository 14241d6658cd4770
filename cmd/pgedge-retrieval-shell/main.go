/*-------------------------------------------------------------------------
 *
 * pgEdge Assistant Retrieval Shell
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pgedge-assistant-retrieval/internal/config"
	"pgedge-assistant-retrieval/internal/database"
	"pgedge-assistant-retrieval/internal/embedding"
	"pgedge-assistant-retrieval/internal/history"
	"pgedge-assistant-retrieval/internal/hybrid"
	"pgedge-assistant-retrieval/internal/shell"
)

const version = "1.0.0-alpha1"

func main() {
	// Command line flags
	configFile := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	tenant := flag.String("tenant", "", "Tenant (business) ID to search under")
	dbHost := flag.String("db-host", "", "Database host")
	dbPort := flag.Int("db-port", 0, "Database port")
	dbName := flag.String("db-name", "", "Database name")
	dbUser := flag.String("db-user", "", "Database user")
	embeddingProvider := flag.String("embedding-provider", "", "Embedding provider: voyage, openai, or ollama")
	embeddingModel := flag.String("embedding-model", "", "Embedding model to use")
	noWatch := flag.Bool("no-watch", false, "Disable config file watching")

	flag.Parse()

	if *showVersion {
		fmt.Printf("pgEdge Assistant Retrieval Shell v%s\n", version)
		return
	}

	cliFlags := config.CLIFlags{
		ConfigFileSet:        *configFile != "",
		ConfigFile:           *configFile,
		DBHost:               *dbHost,
		DBHostSet:            *dbHost != "",
		DBPort:               *dbPort,
		DBPortSet:            *dbPort != 0,
		DBName:               *dbName,
		DBNameSet:            *dbName != "",
		DBUser:               *dbUser,
		DBUserSet:            *dbUser != "",
		Tenant:               *tenant,
		TenantSet:            *tenant != "",
		EmbeddingProvider:    *embeddingProvider,
		EmbeddingProviderSet: *embeddingProvider != "",
		EmbeddingModel:       *embeddingModel,
		EmbeddingModelSet:    *embeddingModel != "",
	}

	// Resolve the config path
	configPath := *configFile
	if configPath == "" {
		if exePath, err := os.Executable(); err == nil {
			configPath = config.GetDefaultConfigPath(exePath)
		}
	}

	cfg, err := config.LoadConfig(configPath, cliFlags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if cfg.Tenant == "" {
		fmt.Fprintln(os.Stderr, "Error: a tenant is required (set -tenant, PGEDGE_RETRIEVAL_TENANT, or the config file)")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Connect to the database
	client := database.NewClient(&cfg.Database)
	if err := client.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to database: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	// Embedding provider with retry and rate limiting
	provider, err := embedding.NewProvider(embedding.Config{
		Provider:     cfg.Embedding.Provider,
		Model:        cfg.Embedding.Model,
		VoyageAPIKey: cfg.Embedding.VoyageAPIKey,
		OpenAIAPIKey: cfg.Embedding.OpenAIAPIKey,
		OllamaURL:    cfg.Embedding.OllamaURL,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating embedding provider: %v\n", err)
		os.Exit(1)
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
		fmt.Fprintf(os.Stderr, "Error creating engine: %v\n", err)
		os.Exit(1)
	}

	// Live reload: apply search tunable changes from the config file
	// without restarting the shell
	if !*noWatch && config.ConfigFileExists(configPath) {
		reloadable := config.NewReloadableConfig(cfg, configPath, cliFlags)
		reloadable.OnReload(func(newCfg *config.Config) {
			engine.UpdateConfig(newCfg.Search.ToHybridUpdate())
		})

		watcher, err := config.NewFileWatcher(configPath, reloadable.Reload)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: config watching disabled: %v\n", err)
		} else {
			watcher.Start()
			defer watcher.Stop()
		}
	}

	// Search history store
	historyPath := cfg.HistoryPath
	if historyPath == "" {
		historyPath = history.DefaultPath()
	}
	store, err := history.NewStore(historyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: history disabled: %v\n", err)
		store = nil
	} else {
		defer store.Close()
	}

	sh, err := shell.New(shell.Options{
		Engine:      engine,
		History:     store,
		Tenant:      cfg.Tenant,
		HistoryFile: historyPath + ".readline",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating shell: %v\n", err)
		os.Exit(1)
	}

	if err := sh.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error running shell: %v\n", err)
		os.Exit(1)
	}
}
