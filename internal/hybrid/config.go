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

// Config holds the tunables for merging results across sources. Weights
// multiply each source's raw score and need not sum to 1. Values are not
// range-checked: callers own the sanity of what they set.
type Config struct {
	VectorWeight float64
	TextWeight   float64
	GraphWeight  float64

	VectorThreshold   float64
	TextThreshold     float64
	CombinedThreshold float64

	MaxVectorResults   int
	MaxTextResults     int
	MaxGraphResults    int
	MaxCombinedResults int
}

// DefaultConfig returns the baseline merge configuration. Vector search
// dominates at these weights, which is why an embedding failure is treated
// as fatal while individual backend failures are not.
func DefaultConfig() Config {
	return Config{
		VectorWeight:       0.5,
		TextWeight:         0.3,
		GraphWeight:        0.2,
		VectorThreshold:    0.7,
		TextThreshold:      0.6,
		CombinedThreshold:  0.5,
		MaxVectorResults:   8,
		MaxTextResults:     5,
		MaxGraphResults:    4,
		MaxCombinedResults: 10,
	}
}

// ConfigUpdate is a partial Config. Nil fields leave the current value
// unchanged; set fields overwrite it.
type ConfigUpdate struct {
	VectorWeight *float64
	TextWeight   *float64
	GraphWeight  *float64

	VectorThreshold   *float64
	TextThreshold     *float64
	CombinedThreshold *float64

	MaxVectorResults   *int
	MaxTextResults     *int
	MaxGraphResults    *int
	MaxCombinedResults *int
}

// apply merges the update into cfg, field by field.
func (u ConfigUpdate) apply(cfg *Config) {
	if u.VectorWeight != nil {
		cfg.VectorWeight = *u.VectorWeight
	}
	if u.TextWeight != nil {
		cfg.TextWeight = *u.TextWeight
	}
	if u.GraphWeight != nil {
		cfg.GraphWeight = *u.GraphWeight
	}
	if u.VectorThreshold != nil {
		cfg.VectorThreshold = *u.VectorThreshold
	}
	if u.TextThreshold != nil {
		cfg.TextThreshold = *u.TextThreshold
	}
	if u.CombinedThreshold != nil {
		cfg.CombinedThreshold = *u.CombinedThreshold
	}
	if u.MaxVectorResults != nil {
		cfg.MaxVectorResults = *u.MaxVectorResults
	}
	if u.MaxTextResults != nil {
		cfg.MaxTextResults = *u.MaxTextResults
	}
	if u.MaxGraphResults != nil {
		cfg.MaxGraphResults = *u.MaxGraphResults
	}
	if u.MaxCombinedResults != nil {
		cfg.MaxCombinedResults = *u.MaxCombinedResults
	}
}

// weightFor returns the configured weight for a merge source. Conversation
// and message results never pass through the weighted merge, so they fall
// through to zero.
func (c Config) weightFor(source Source) float64 {
	switch source {
	case SourceVector:
		return c.VectorWeight
	case SourceText:
		return c.TextWeight
	case SourceGraph:
		return c.GraphWeight
	default:
		return 0
	}
}
