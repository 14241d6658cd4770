/*-------------------------------------------------------------------------
 *
 * pgEdge Assistant Retrieval Engine
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"pgedge-assistant-retrieval/internal/hybrid"
)

// Config represents the complete retrieval engine configuration
type Config struct {
	// Database connection configuration
	Database DatabaseConfig `yaml:"database"`

	// Embedding configuration
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Hybrid search tunables
	Search SearchConfig `yaml:"search"`

	// Result cache configuration
	Cache CacheConfig `yaml:"cache"`

	// Tenant is the default tenant (business) ID for CLI and shell sessions
	Tenant string `yaml:"tenant"`

	// HistoryPath is the SQLite file used by the shell's query history
	HistoryPath string `yaml:"history_path"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host"`     // Database host (default: localhost)
	Port     int    `yaml:"port"`     // Database port (default: 5432)
	Database string `yaml:"database"` // Database name (default: postgres)
	User     string `yaml:"user"`     // Database user (required)
	Password string `yaml:"password"` // Database password (optional, will use PGEDGE_DB_PASSWORD env var or .pgpass if not set)
	SSLMode  string `yaml:"sslmode"`  // SSL mode: disable, require, verify-ca, verify-full (default: prefer)

	// Connection pool settings
	PoolMaxConns        int    `yaml:"pool_max_conns"`          // Maximum number of connections (default: 4)
	PoolMinConns        int    `yaml:"pool_min_conns"`          // Minimum number of connections (default: 0)
	PoolMaxConnIdleTime string `yaml:"pool_max_conn_idle_time"` // Max time a connection can be idle before being closed (default: 30m)
}

// EmbeddingConfig holds embedding generation settings
type EmbeddingConfig struct {
	Provider         string `yaml:"provider"`            // "voyage", "openai", or "ollama"
	Model            string `yaml:"model"`               // Provider-specific model name
	VoyageAPIKey     string `yaml:"voyage_api_key"`      // API key for Voyage AI (direct - discouraged, use api_key_file or env var)
	VoyageAPIKeyFile string `yaml:"voyage_api_key_file"` // Path to file containing Voyage API key
	OpenAIAPIKey     string `yaml:"openai_api_key"`      // API key for OpenAI (direct - discouraged, use api_key_file or env var)
	OpenAIAPIKeyFile string `yaml:"openai_api_key_file"` // Path to file containing OpenAI API key
	OllamaURL        string `yaml:"ollama_url"`          // URL for Ollama service (default: http://localhost:11434)
}

// SearchConfig holds the hybrid merge tunables. Zero values mean "use the
// engine default"; the engine does not range-check these.
type SearchConfig struct {
	VectorWeight float64 `yaml:"vector_weight"` // Weight for vector similarity results (default: 0.5)
	TextWeight   float64 `yaml:"text_weight"`   // Weight for full-text results (default: 0.3)
	GraphWeight  float64 `yaml:"graph_weight"`  // Weight for knowledge-graph results (default: 0.2)

	VectorThreshold   float64 `yaml:"vector_threshold"`   // Minimum raw vector similarity (default: 0.7)
	TextThreshold     float64 `yaml:"text_threshold"`     // Minimum raw text rank (default: 0.6)
	CombinedThreshold float64 `yaml:"combined_threshold"` // Minimum weighted score after merge (default: 0.5)

	MaxVectorResults   int `yaml:"max_vector_results"`   // Per-source cap for vector hits (default: 8)
	MaxTextResults     int `yaml:"max_text_results"`     // Per-source cap for text hits (default: 5)
	MaxGraphResults    int `yaml:"max_graph_results"`    // Per-source cap for graph hits (default: 4)
	MaxCombinedResults int `yaml:"max_combined_results"` // Cap on the merged result list (default: 10)
}

// CacheConfig holds result cache settings
type CacheConfig struct {
	Enabled    bool `yaml:"enabled"`     // Whether the search result cache is enabled (default: false)
	Size       int  `yaml:"size"`        // Maximum cached queries (default: 256)
	TTLSeconds int  `yaml:"ttl_seconds"` // Entry lifetime in seconds (default: 60)
}

// LoadConfig loads configuration with proper priority:
// 1. Command line flags (highest priority)
// 2. Environment variables
// 3. Configuration file
// 4. Hard-coded defaults (lowest priority)
func LoadConfig(configPath string, cliFlags CLIFlags) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Load config file if it exists
	if configPath != "" {
		fileCfg, err := loadConfigFile(configPath)
		if err != nil {
			// If file was explicitly specified, error out
			if cliFlags.ConfigFileSet {
				return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
			}
			// Otherwise just use defaults (file may not exist and that's ok)
		} else {
			// Merge file config into defaults
			mergeConfig(cfg, fileCfg)
		}
	}

	// Override with environment variables
	applyEnvironmentVariables(cfg)

	// Override with command line flags (highest priority)
	applyCLIFlags(cfg, cliFlags)

	// Validate final configuration
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// CLIFlags represents command line flag values and whether they were explicitly set
type CLIFlags struct {
	ConfigFileSet bool
	ConfigFile    string

	// Database flags
	DBHost     string
	DBHostSet  bool
	DBPort     int
	DBPortSet  bool
	DBName     string
	DBNameSet  bool
	DBUser     string
	DBUserSet  bool
	DBPassword string
	DBPassSet  bool
	DBSSLMode  string
	DBSSLSet   bool

	// Tenant flags
	Tenant    string
	TenantSet bool

	// Embedding flags
	EmbeddingProvider    string
	EmbeddingProviderSet bool
	EmbeddingModel       string
	EmbeddingModelSet    bool
}

// defaultConfig returns configuration with hard-coded defaults
func defaultConfig() *Config {
	defaults := hybrid.DefaultConfig()
	return &Config{
		Database: DatabaseConfig{
			Host:                "localhost",
			Port:                5432,
			Database:            "postgres",
			User:                "",       // Required - must be provided
			Password:            "",       // Optional - will use env var or .pgpass
			SSLMode:             "prefer", // Default SSL mode
			PoolMaxConns:        4,        // Default max connections
			PoolMinConns:        0,        // Default min connections
			PoolMaxConnIdleTime: "30m",    // Default idle timeout
		},
		Embedding: EmbeddingConfig{
			Provider:     "ollama",                 // Default provider
			Model:        "nomic-embed-text",       // Default Ollama model
			VoyageAPIKey: "",                       // Must be provided if using Voyage AI
			OllamaURL:    "http://localhost:11434", // Default Ollama URL
		},
		Search: SearchConfig{
			VectorWeight:       defaults.VectorWeight,
			TextWeight:         defaults.TextWeight,
			GraphWeight:        defaults.GraphWeight,
			VectorThreshold:    defaults.VectorThreshold,
			TextThreshold:      defaults.TextThreshold,
			CombinedThreshold:  defaults.CombinedThreshold,
			MaxVectorResults:   defaults.MaxVectorResults,
			MaxTextResults:     defaults.MaxTextResults,
			MaxGraphResults:    defaults.MaxGraphResults,
			MaxCombinedResults: defaults.MaxCombinedResults,
		},
		Cache: CacheConfig{
			Enabled:    false, // Disabled by default (opt-in)
			Size:       256,
			TTLSeconds: 60,
		},
		Tenant:      "",
		HistoryPath: "", // Shell picks a per-user path when unset
	}
}

// loadConfigFile loads configuration from a YAML file
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &cfg, nil
}

// mergeConfig merges source config into dest, only overriding non-zero values
func mergeConfig(dest, src *Config) {
	// Database
	if src.Database.Host != "" {
		dest.Database.Host = src.Database.Host
	}
	if src.Database.Port != 0 {
		dest.Database.Port = src.Database.Port
	}
	if src.Database.Database != "" {
		dest.Database.Database = src.Database.Database
	}
	if src.Database.User != "" {
		dest.Database.User = src.Database.User
	}
	if src.Database.Password != "" {
		dest.Database.Password = src.Database.Password
	}
	if src.Database.SSLMode != "" {
		dest.Database.SSLMode = src.Database.SSLMode
	}
	if src.Database.PoolMaxConns != 0 {
		dest.Database.PoolMaxConns = src.Database.PoolMaxConns
	}
	if src.Database.PoolMinConns != 0 {
		dest.Database.PoolMinConns = src.Database.PoolMinConns
	}
	if src.Database.PoolMaxConnIdleTime != "" {
		dest.Database.PoolMaxConnIdleTime = src.Database.PoolMaxConnIdleTime
	}

	// Embedding
	if src.Embedding.Provider != "" {
		dest.Embedding.Provider = src.Embedding.Provider
	}
	if src.Embedding.Model != "" {
		dest.Embedding.Model = src.Embedding.Model
	}
	if src.Embedding.VoyageAPIKey != "" {
		dest.Embedding.VoyageAPIKey = src.Embedding.VoyageAPIKey
	}
	if src.Embedding.VoyageAPIKeyFile != "" {
		dest.Embedding.VoyageAPIKeyFile = src.Embedding.VoyageAPIKeyFile
	}
	if src.Embedding.OpenAIAPIKey != "" {
		dest.Embedding.OpenAIAPIKey = src.Embedding.OpenAIAPIKey
	}
	if src.Embedding.OpenAIAPIKeyFile != "" {
		dest.Embedding.OpenAIAPIKeyFile = src.Embedding.OpenAIAPIKeyFile
	}
	if src.Embedding.OllamaURL != "" {
		dest.Embedding.OllamaURL = src.Embedding.OllamaURL
	}

	// Search tunables: a zero weight or threshold is never a useful
	// setting, so zero means "not specified" here the same way an empty
	// string does for the database fields
	if src.Search.VectorWeight != 0 {
		dest.Search.VectorWeight = src.Search.VectorWeight
	}
	if src.Search.TextWeight != 0 {
		dest.Search.TextWeight = src.Search.TextWeight
	}
	if src.Search.GraphWeight != 0 {
		dest.Search.GraphWeight = src.Search.GraphWeight
	}
	if src.Search.VectorThreshold != 0 {
		dest.Search.VectorThreshold = src.Search.VectorThreshold
	}
	if src.Search.TextThreshold != 0 {
		dest.Search.TextThreshold = src.Search.TextThreshold
	}
	if src.Search.CombinedThreshold != 0 {
		dest.Search.CombinedThreshold = src.Search.CombinedThreshold
	}
	if src.Search.MaxVectorResults != 0 {
		dest.Search.MaxVectorResults = src.Search.MaxVectorResults
	}
	if src.Search.MaxTextResults != 0 {
		dest.Search.MaxTextResults = src.Search.MaxTextResults
	}
	if src.Search.MaxGraphResults != 0 {
		dest.Search.MaxGraphResults = src.Search.MaxGraphResults
	}
	if src.Search.MaxCombinedResults != 0 {
		dest.Search.MaxCombinedResults = src.Search.MaxCombinedResults
	}

	// Cache
	if src.Cache.Enabled {
		dest.Cache.Enabled = src.Cache.Enabled
	}
	if src.Cache.Size != 0 {
		dest.Cache.Size = src.Cache.Size
	}
	if src.Cache.TTLSeconds != 0 {
		dest.Cache.TTLSeconds = src.Cache.TTLSeconds
	}

	// Tenant
	if src.Tenant != "" {
		dest.Tenant = src.Tenant
	}

	// History path
	if src.HistoryPath != "" {
		dest.HistoryPath = src.HistoryPath
	}
}

// setStringFromEnv sets a string config value from an environment variable if it exists
func setStringFromEnv(dest *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dest = val
	}
}

// setStringFromEnvWithFallback sets a string config value from an environment variable,
// checking multiple environment variable names in priority order
func setStringFromEnvWithFallback(dest *string, keys ...string) {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			*dest = val
			return
		}
	}
}

// setBoolFromEnv sets a boolean config value from an environment variable if it exists
// Accepts "true", "1", or "yes" as true values
func setBoolFromEnv(dest *bool, key string) {
	if val := os.Getenv(key); val != "" {
		*dest = val == "true" || val == "1" || val == "yes"
	}
}

// setIntFromEnv sets an integer config value from an environment variable if it exists
func setIntFromEnv(dest *int, key string) {
	if val := os.Getenv(key); val != "" {
		var intVal int
		_, err := fmt.Sscanf(val, "%d", &intVal)
		if err == nil {
			*dest = intVal
		}
	}
}

// setFloatFromEnv sets a float config value from an environment variable if it exists
func setFloatFromEnv(dest *float64, key string) {
	if val := os.Getenv(key); val != "" {
		var floatVal float64
		_, err := fmt.Sscanf(val, "%f", &floatVal)
		if err == nil {
			*dest = floatVal
		}
	}
}

// applyEnvironmentVariables overrides config with environment variables if they exist
// All environment variables use the PGEDGE_ prefix to avoid collisions
func applyEnvironmentVariables(cfg *Config) {
	// Database
	setStringFromEnv(&cfg.Database.Host, "PGEDGE_DB_HOST")
	setIntFromEnv(&cfg.Database.Port, "PGEDGE_DB_PORT")
	setStringFromEnv(&cfg.Database.Database, "PGEDGE_DB_NAME")
	setStringFromEnv(&cfg.Database.User, "PGEDGE_DB_USER")
	setStringFromEnv(&cfg.Database.Password, "PGEDGE_DB_PASSWORD")
	setStringFromEnv(&cfg.Database.SSLMode, "PGEDGE_DB_SSLMODE")

	// Also support standard PostgreSQL environment variables for convenience
	if cfg.Database.Host == "localhost" {
		setStringFromEnv(&cfg.Database.Host, "PGHOST")
	}
	if cfg.Database.Port == 5432 {
		setIntFromEnv(&cfg.Database.Port, "PGPORT")
	}
	if cfg.Database.Database == "postgres" {
		setStringFromEnv(&cfg.Database.Database, "PGDATABASE")
	}
	if cfg.Database.User == "" {
		setStringFromEnv(&cfg.Database.User, "PGUSER")
	}
	if cfg.Database.Password == "" {
		setStringFromEnv(&cfg.Database.Password, "PGPASSWORD")
	}
	if cfg.Database.SSLMode == "prefer" {
		setStringFromEnv(&cfg.Database.SSLMode, "PGSSLMODE")
	}

	// Embedding
	setStringFromEnv(&cfg.Embedding.Provider, "PGEDGE_EMBEDDING_PROVIDER")
	setStringFromEnv(&cfg.Embedding.Model, "PGEDGE_EMBEDDING_MODEL")
	// API key loading priority: env vars > api_key_file > direct config value
	// 1. Try environment variables first (PGEDGE_ prefixed, then standard)
	setStringFromEnvWithFallback(&cfg.Embedding.VoyageAPIKey, "PGEDGE_VOYAGE_API_KEY", "VOYAGE_API_KEY")
	setStringFromEnvWithFallback(&cfg.Embedding.OpenAIAPIKey, "PGEDGE_OPENAI_API_KEY", "OPENAI_API_KEY")
	// 2. If env vars not set and api_key_file is specified, load from file
	if cfg.Embedding.VoyageAPIKey == "" && cfg.Embedding.VoyageAPIKeyFile != "" {
		if key, err := readAPIKeyFromFile(cfg.Embedding.VoyageAPIKeyFile); err == nil && key != "" {
			cfg.Embedding.VoyageAPIKey = key
		}
		// Note: errors are silently ignored - file may not exist and that's ok
	}
	if cfg.Embedding.OpenAIAPIKey == "" && cfg.Embedding.OpenAIAPIKeyFile != "" {
		if key, err := readAPIKeyFromFile(cfg.Embedding.OpenAIAPIKeyFile); err == nil && key != "" {
			cfg.Embedding.OpenAIAPIKey = key
		}
		// Note: errors are silently ignored - file may not exist and that's ok
	}
	// 3. Direct config value (if set) is already in cfg.Embedding from mergeConfig
	setStringFromEnv(&cfg.Embedding.OllamaURL, "PGEDGE_OLLAMA_URL")

	// Search tunables
	setFloatFromEnv(&cfg.Search.VectorWeight, "PGEDGE_SEARCH_VECTOR_WEIGHT")
	setFloatFromEnv(&cfg.Search.TextWeight, "PGEDGE_SEARCH_TEXT_WEIGHT")
	setFloatFromEnv(&cfg.Search.GraphWeight, "PGEDGE_SEARCH_GRAPH_WEIGHT")
	setFloatFromEnv(&cfg.Search.VectorThreshold, "PGEDGE_SEARCH_VECTOR_THRESHOLD")
	setFloatFromEnv(&cfg.Search.TextThreshold, "PGEDGE_SEARCH_TEXT_THRESHOLD")
	setFloatFromEnv(&cfg.Search.CombinedThreshold, "PGEDGE_SEARCH_COMBINED_THRESHOLD")
	setIntFromEnv(&cfg.Search.MaxVectorResults, "PGEDGE_SEARCH_MAX_VECTOR_RESULTS")
	setIntFromEnv(&cfg.Search.MaxTextResults, "PGEDGE_SEARCH_MAX_TEXT_RESULTS")
	setIntFromEnv(&cfg.Search.MaxGraphResults, "PGEDGE_SEARCH_MAX_GRAPH_RESULTS")
	setIntFromEnv(&cfg.Search.MaxCombinedResults, "PGEDGE_SEARCH_MAX_COMBINED_RESULTS")

	// Cache
	setBoolFromEnv(&cfg.Cache.Enabled, "PGEDGE_CACHE_ENABLED")
	setIntFromEnv(&cfg.Cache.Size, "PGEDGE_CACHE_SIZE")
	setIntFromEnv(&cfg.Cache.TTLSeconds, "PGEDGE_CACHE_TTL_SECONDS")

	// Tenant
	setStringFromEnv(&cfg.Tenant, "PGEDGE_RETRIEVAL_TENANT")

	// History path
	setStringFromEnv(&cfg.HistoryPath, "PGEDGE_RETRIEVAL_HISTORY_PATH")
}

// applyCLIFlags overrides config with CLI flags if they were explicitly set
func applyCLIFlags(cfg *Config, flags CLIFlags) {
	// Database
	if flags.DBHostSet {
		cfg.Database.Host = flags.DBHost
	}
	if flags.DBPortSet {
		cfg.Database.Port = flags.DBPort
	}
	if flags.DBNameSet {
		cfg.Database.Database = flags.DBName
	}
	if flags.DBUserSet {
		cfg.Database.User = flags.DBUser
	}
	if flags.DBPassSet {
		cfg.Database.Password = flags.DBPassword
	}
	if flags.DBSSLSet {
		cfg.Database.SSLMode = flags.DBSSLMode
	}

	// Tenant
	if flags.TenantSet {
		cfg.Tenant = flags.Tenant
	}

	// Embedding
	if flags.EmbeddingProviderSet {
		cfg.Embedding.Provider = flags.EmbeddingProvider
	}
	if flags.EmbeddingModelSet {
		cfg.Embedding.Model = flags.EmbeddingModel
	}
}

// validateConfig checks if the configuration is valid. Search tunables are
// deliberately not range-checked: operators may experiment with weights
// above 1 or zeroed thresholds, and the engine treats them as opaque.
func validateConfig(cfg *Config) error {
	// An empty user is allowed: the client falls back to the
	// PGEDGE_POSTGRES_CONNECTION_STRING environment variable or local
	// auth. A password without a user cannot form a connection string.
	if cfg.Database.Password != "" && cfg.Database.User == "" {
		return fmt.Errorf("database user is required when a password is configured (set via -db-user, PGEDGE_DB_USER, PGUSER env var, or config file)")
	}

	switch cfg.Embedding.Provider {
	case "voyage", "openai", "ollama", "":
	default:
		return fmt.Errorf("unsupported embedding provider: %s (supported: voyage, openai, ollama)", cfg.Embedding.Provider)
	}

	if cfg.Cache.Enabled && cfg.Cache.Size <= 0 {
		return fmt.Errorf("cache size must be positive when the cache is enabled")
	}

	return nil
}

// readAPIKeyFromFile reads an API key from a file
// Returns the key with whitespace trimmed, or empty string if file doesn't exist or is empty
func readAPIKeyFromFile(filePath string) (string, error) {
	if filePath == "" {
		return "", nil
	}

	// Expand tilde to home directory
	if filePath[0] == '~' {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		filePath = filepath.Join(homeDir, filePath[1:])
	}

	// Check if file exists
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return "", nil // File doesn't exist, return empty (not an error)
	}

	// Read file contents
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read API key file %s: %w", filePath, err)
	}

	// Return trimmed contents (remove whitespace/newlines)
	key := strings.TrimSpace(string(data))
	return key, nil
}

// GetDefaultConfigPath returns the default config file path
// Searches /etc/pgedge/retrieval/ first, then binary directory
func GetDefaultConfigPath(binaryPath string) string {
	systemPath := "/etc/pgedge/retrieval/pgedge-retrieval.yaml"
	if _, err := os.Stat(systemPath); err == nil {
		return systemPath
	}

	dir := filepath.Dir(binaryPath)
	return filepath.Join(dir, "pgedge-retrieval.yaml")
}

// BuildConnectionString creates a PostgreSQL connection string from DatabaseConfig
// If password is not set, pgx will automatically look it up from .pgpass file
func (cfg *DatabaseConfig) BuildConnectionString() string {
	// Build connection string components
	connStr := fmt.Sprintf("postgres://%s", cfg.User)

	// Add password only if explicitly set
	// If not set, pgx will use .pgpass file automatically
	if cfg.Password != "" {
		connStr += ":" + cfg.Password
	}

	connStr += fmt.Sprintf("@%s:%d/%s", cfg.Host, cfg.Port, cfg.Database)

	// Add SSL mode
	if cfg.SSLMode != "" {
		connStr += "?sslmode=" + cfg.SSLMode
	}

	return connStr
}

// ConfigFileExists checks if a config file exists at the given path
func ConfigFileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ToHybrid converts the search tunables into an engine configuration
func (s SearchConfig) ToHybrid() hybrid.Config {
	return hybrid.Config{
		VectorWeight:       s.VectorWeight,
		TextWeight:         s.TextWeight,
		GraphWeight:        s.GraphWeight,
		VectorThreshold:    s.VectorThreshold,
		TextThreshold:      s.TextThreshold,
		CombinedThreshold:  s.CombinedThreshold,
		MaxVectorResults:   s.MaxVectorResults,
		MaxTextResults:     s.MaxTextResults,
		MaxGraphResults:    s.MaxGraphResults,
		MaxCombinedResults: s.MaxCombinedResults,
	}
}

// ToHybridUpdate converts the search tunables into a full engine config
// update, suitable for applying after a config file reload
func (s SearchConfig) ToHybridUpdate() hybrid.ConfigUpdate {
	cfg := s.ToHybrid()
	return hybrid.ConfigUpdate{
		VectorWeight:       &cfg.VectorWeight,
		TextWeight:         &cfg.TextWeight,
		GraphWeight:        &cfg.GraphWeight,
		VectorThreshold:    &cfg.VectorThreshold,
		TextThreshold:      &cfg.TextThreshold,
		CombinedThreshold:  &cfg.CombinedThreshold,
		MaxVectorResults:   &cfg.MaxVectorResults,
		MaxTextResults:     &cfg.MaxTextResults,
		MaxGraphResults:    &cfg.MaxGraphResults,
		MaxCombinedResults: &cfg.MaxCombinedResults,
	}
}
