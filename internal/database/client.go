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
	"fmt"
	"net/url"
	"os"
	"sync"
	"time"

	"pgedge-assistant-retrieval/internal/config"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotConnected is returned when a query is attempted before Connect
var ErrNotConnected = errors.New("database client is not connected")

// Client manages the PostgreSQL connection pool for the retrieval engine.
// All retrieval queries are read-only; the pool enforces this at the
// session level via default_transaction_read_only.
type Client struct {
	connStr  string
	dbConfig *config.DatabaseConfig
	mu       sync.RWMutex
	pool     *pgxpool.Pool
}

// NewClient creates a new database client with optional database configuration
func NewClient(dbConfig *config.DatabaseConfig) *Client {
	return &Client{
		dbConfig: dbConfig,
	}
}

// NewClientWithConnectionString creates a new client with a specific connection string
func NewClientWithConnectionString(connStr string, dbConfig *config.DatabaseConfig) *Client {
	return &Client{
		connStr:  connStr,
		dbConfig: dbConfig,
	}
}

// Connect establishes the connection pool
func (c *Client) Connect(ctx context.Context) error {
	startTime := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pool != nil {
		return nil // Already connected
	}

	connStr := c.connStr
	if connStr == "" {
		// Priority order for connection string:
		// 1. DatabaseConfig (if provided)
		// 2. PGEDGE_POSTGRES_CONNECTION_STRING environment variable
		// 3. Default fallback
		if c.dbConfig != nil && c.dbConfig.User != "" {
			connStr = c.dbConfig.BuildConnectionString()
		} else {
			connStr = os.Getenv("PGEDGE_POSTGRES_CONNECTION_STRING")
			if connStr == "" {
				connStr = "postgres://localhost/postgres?sslmode=disable"
			}
		}
		c.connStr = connStr
	}

	// Add application_name to connection string if not already present
	enhancedConnStr, err := addApplicationName(connStr, "pgEdge Assistant Retrieval Engine")
	if err != nil {
		return fmt.Errorf("unable to enhance connection string: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(enhancedConnStr)
	if err != nil {
		return fmt.Errorf("unable to parse connection string: %w", err)
	}

	// Apply pool configuration if available
	if c.dbConfig != nil {
		if c.dbConfig.PoolMaxConns > 0 {
			poolConfig.MaxConns = int32(c.dbConfig.PoolMaxConns)
		}
		if c.dbConfig.PoolMinConns > 0 {
			poolConfig.MinConns = int32(c.dbConfig.PoolMinConns)
		}
		if c.dbConfig.PoolMaxConnIdleTime != "" {
			idleTime, err := time.ParseDuration(c.dbConfig.PoolMaxConnIdleTime)
			if err != nil {
				return fmt.Errorf("invalid pool_max_conn_idle_time: %w", err)
			}
			poolConfig.MaxConnIdleTime = idleTime
		}
	}

	// Log connection details if debug logging is enabled
	if GetLogLevel() >= LogLevelDebug {
		poolConfigMap := make(map[string]interface{})
		poolConfigMap["max_conns"] = poolConfig.MaxConns
		poolConfigMap["min_conns"] = poolConfig.MinConns
		poolConfigMap["max_conn_lifetime"] = poolConfig.MaxConnLifetime
		poolConfigMap["max_conn_idle_time"] = poolConfig.MaxConnIdleTime
		LogConnectionDetails(connStr, poolConfigMap)
	}

	// Retrieval never writes; enforce read-only transactions at the
	// session level for every pooled connection
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = make(map[string]string)
	}
	poolConfig.ConnConfig.RuntimeParams["default_transaction_read_only"] = "on"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		duration := time.Since(startTime)
		LogConnection(connStr, duration, err)
		return fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		duration := time.Since(startTime)
		LogConnection(connStr, duration, err)
		return fmt.Errorf("unable to ping database: %w", err)
	}

	c.pool = pool

	duration := time.Since(startTime)
	LogConnection(connStr, duration, nil)

	return nil
}

// addApplicationName adds application_name parameter to a PostgreSQL connection string
func addApplicationName(connStr, appName string) (string, error) {
	u, err := url.Parse(connStr)
	if err != nil {
		return "", fmt.Errorf("invalid connection string: %w", err)
	}

	query := u.Query()
	if !query.Has("application_name") {
		query.Set("application_name", appName)
		u.RawQuery = query.Encode()
	}

	return u.String(), nil
}

// Pool returns the underlying connection pool, or nil before Connect
func (c *Client) Pool() *pgxpool.Pool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pool
}

// ConnectionString returns the connection string the client was configured with
func (c *Client) ConnectionString() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connStr
}

// HealthCheck reports whether the database is reachable
func (c *Client) HealthCheck(ctx context.Context) bool {
	c.mu.RLock()
	pool := c.pool
	c.mu.RUnlock()

	if pool == nil {
		return false
	}
	return pool.Ping(ctx) == nil
}

// Close closes the connection pool
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pool != nil {
		c.pool.Close()
		c.pool = nil
	}
}
