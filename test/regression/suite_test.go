/*-------------------------------------------------------------------------
 *
 * pgEdge Assistant Retrieval Engine
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package regression exercises the retrieval engine end to end over
// in-memory backends: hybrid search, similarity expansion, direct graph
// and conversation queries, live config updates, stats, and health.
package regression

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/stretchr/testify/suite"

	"pgedge-assistant-retrieval/internal/embedding"
	"pgedge-assistant-retrieval/internal/hybrid"
)

// TestResult tracks individual test execution details
type TestResult struct {
	Name      string
	Status    string
	Duration  time.Duration
	StartTime time.Time
}

// RetrievalTestSuite runs the engine regression tests
type RetrievalTestSuite struct {
	suite.Suite
	ctx context.Context

	vector   *memoryVector
	funcs    *memoryFunctions
	embedder *memoryEmbedder
	engine   *hybrid.Engine

	// Track test results for summary
	testResults    []TestResult
	suiteStartTime time.Time
}

// memoryVector is a canned-response hybrid.VectorBackend. Results are
// keyed by tenant to verify isolation.
type memoryVector struct {
	byTenant     map[string][]hybrid.SourceResult
	convByTenant map[string][]hybrid.SourceResult
	msgByTenant  map[string][]hybrid.SourceResult
	healthy      bool
	calls        int
}

func (m *memoryVector) Search(_ context.Context, _ []float64, opts hybrid.VectorOptions) ([]hybrid.SourceResult, error) {
	m.calls++
	return m.byTenant[opts.TenantID], nil
}

func (m *memoryVector) SearchConversations(_ context.Context, _ []float64, opts hybrid.ConversationOptions) ([]hybrid.SourceResult, error) {
	return m.convByTenant[opts.TenantID], nil
}

func (m *memoryVector) SearchMessages(_ context.Context, _ []float64, opts hybrid.MessageOptions) ([]hybrid.SourceResult, error) {
	return m.msgByTenant[opts.TenantID], nil
}

func (m *memoryVector) HealthCheck(_ context.Context) bool { return m.healthy }

// memoryFunctions serves canned rows per server-side function name. Rows
// belong to a single tenant; other tenants get nothing.
type memoryFunctions struct {
	tenantID string
	rows     map[string][]map[string]interface{}
}

func (m *memoryFunctions) CallFunction(_ context.Context, name string, params map[string]interface{}) ([]map[string]interface{}, error) {
	if params["business_id"] != m.tenantID {
		return nil, nil
	}
	return m.rows[name], nil
}

// memoryEmbedder implements embedding.Provider without any HTTP
type memoryEmbedder struct {
	healthy bool
}

func (m *memoryEmbedder) Embed(_ context.Context, text string) (*embedding.Result, error) {
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}
	return &embedding.Result{
		Vector: []float64{0.1, 0.2, 0.3},
		Tokens: len(text),
		Model:  "memory-embed",
	}, nil
}

func (m *memoryEmbedder) Dimensions() int                    { return 3 }
func (m *memoryEmbedder) ModelName() string                  { return "memory-embed" }
func (m *memoryEmbedder) ProviderName() string               { return "memory" }
func (m *memoryEmbedder) HealthCheck(_ context.Context) bool { return m.healthy }

// SetupSuite runs once before all tests
func (s *RetrievalTestSuite) SetupSuite() {
	s.ctx = context.Background()
	s.suiteStartTime = time.Now()
	s.testResults = make([]TestResult, 0)

	s.vector = &memoryVector{
		byTenant: map[string][]hybrid.SourceResult{
			"tenant-a": {
				{ID: "chunk-refund", Content: "Refunds are processed within 5 business days.", Score: 0.92},
				{ID: "chunk-shipping", Content: "Standard shipping takes 3-7 days.", Score: 0.81},
			},
			"tenant-b": {
				{ID: "chunk-other", Content: "Unrelated tenant content.", Score: 0.90},
			},
		},
		convByTenant: map[string][]hybrid.SourceResult{
			"tenant-a": {
				{ID: "msg-1", Content: "Customer asked about the refund window.", Score: 0.88},
			},
		},
		msgByTenant: map[string][]hybrid.SourceResult{
			"tenant-a": {
				{ID: "msg-2", Content: "A related message in another conversation.", Score: 0.75},
			},
		},
		healthy: true,
	}

	s.funcs = &memoryFunctions{
		tenantID: "tenant-a",
		rows: map[string][]map[string]interface{}{
			"search_knowledge_text": {
				{"id": "chunk-refund", "content": "Refunds are processed within 5 business days.", "score": 0.85},
				{"id": "chunk-faq", "content": "See the FAQ for return labels.", "score": 0.70},
			},
			"search_graph_knowledge": {
				{"entity_id": "ent-refund-policy", "content": "refund-policy applies-to all-orders", "confidence": 0.80, "relationship": "applies-to"},
			},
		},
	}

	s.embedder = &memoryEmbedder{healthy: true}

	cfg := hybrid.DefaultConfig()
	cfg.TextThreshold = 0.5
	cfg.CombinedThreshold = 0.02

	engine, err := hybrid.New(hybrid.Backends{
		Vector:    s.vector,
		Functions: s.funcs,
		Embedder:  s.embedder,
	}, cfg, hybrid.WithResultCache(32, time.Minute))
	s.Require().NoError(err, "Failed to create engine")
	s.engine = engine
}

// SetupTest tracks per-test timing for the summary
func (s *RetrievalTestSuite) SetupTest() {
	s.testResults = append(s.testResults, TestResult{
		Name:      s.T().Name(),
		StartTime: time.Now(),
		Status:    "RUNNING",
	})
}

// TearDownTest records the final status and duration
func (s *RetrievalTestSuite) TearDownTest() {
	if len(s.testResults) > 0 {
		idx := len(s.testResults) - 1
		s.testResults[idx].Duration = time.Since(s.testResults[idx].StartTime)
		if s.T().Failed() {
			s.testResults[idx].Status = "FAIL"
		} else {
			s.testResults[idx].Status = "PASS"
		}
	}
}

// TearDownSuite runs once after all tests
func (s *RetrievalTestSuite) TearDownSuite() {
	s.printTestSummary()
}

// Tests run in lexical order; later tests build on the counters that
// earlier searches accumulated.

func (s *RetrievalTestSuite) Test01_HybridSearchMergesSources() {
	results, err := s.engine.Search(s.ctx, hybrid.SearchQuery{
		TenantID: "tenant-a",
		Text:     "refund policy",
	})
	s.Require().NoError(err)
	s.Require().NotEmpty(results)

	// chunk-refund matches both the vector and text paths; the merge must
	// dedup it and rank it first
	s.Equal("chunk-refund", results[0].ID)
	seen := make(map[string]bool)
	sources := make(map[hybrid.Source]bool)
	for _, r := range results {
		s.False(seen[r.ID], "duplicate id %q in merged results", r.ID)
		seen[r.ID] = true
		sources[r.Source] = true
	}
	s.True(sources[hybrid.SourceVector], "expected a vector contribution")

	// Results are sorted by combined score descending
	for i := 1; i < len(results); i++ {
		s.GreaterOrEqual(results[i-1].CombinedScore, results[i].CombinedScore)
	}
}

func (s *RetrievalTestSuite) Test02_TenantIsolation() {
	results, err := s.engine.Search(s.ctx, hybrid.SearchQuery{
		TenantID: "tenant-b",
		Text:     "refund policy",
	})
	s.Require().NoError(err)

	for _, r := range results {
		s.NotEqual("chunk-refund", r.ID, "tenant-b must not see tenant-a content")
	}
}

func (s *RetrievalTestSuite) Test03_TenantRequired() {
	_, err := s.engine.Search(s.ctx, hybrid.SearchQuery{Text: "anything"})
	s.Require().ErrorIs(err, hybrid.ErrTenantRequired)
}

func (s *RetrievalTestSuite) Test04_ResultCache() {
	query := hybrid.SearchQuery{TenantID: "tenant-a", Text: "cached regression query"}

	before := s.vector.calls
	first, err := s.engine.Search(s.ctx, query)
	s.Require().NoError(err)
	second, err := s.engine.Search(s.ctx, query)
	s.Require().NoError(err)

	s.Equal(len(first), len(second))
	s.Equal(before+1, s.vector.calls, "second identical search must be served from cache")
}

func (s *RetrievalTestSuite) Test05_SimilarityExpansion() {
	results, err := s.engine.SearchWithSimilarityExpansion(s.ctx, hybrid.SearchQuery{
		TenantID:      "tenant-a",
		Text:          "refund policy",
		ExpandSimilar: true,
		MaxExpansions: 2,
	})
	s.Require().NoError(err)
	s.Require().NotEmpty(results)

	seen := make(map[string]bool)
	for _, r := range results {
		s.False(seen[r.ID], "expansion must not introduce duplicate ids")
		seen[r.ID] = true
	}

	s.Positive(s.engine.Stats().ExpandedSearches)
}

func (s *RetrievalTestSuite) Test06_DirectGraphSearch() {
	results, err := s.engine.SearchKnowledgeGraph(s.ctx, hybrid.GraphQuery{
		TenantID: "tenant-a",
		Entities: []string{"refund-policy"},
	})
	s.Require().NoError(err)
	s.Require().Len(results, 1)

	s.Equal("ent-refund-policy", results[0].ID)
	s.Equal(hybrid.SourceGraph, results[0].Source)
	s.InDelta(0.80, results[0].Score, 1e-9)
	s.Equal("applies-to", results[0].Metadata["relationship"])
}

func (s *RetrievalTestSuite) Test07_ConversationHistorySearch() {
	results, err := s.engine.SearchConversationHistory(s.ctx, hybrid.ConversationQuery{
		TenantID:       "tenant-a",
		ConversationID: "conv-1",
		Text:           "refund window",
		IncludeRelated: true,
	})
	s.Require().NoError(err)
	s.Require().Len(results, 2)

	s.Equal(hybrid.SourceConversation, results[0].Source)
	s.Equal(hybrid.SourceMessage, results[1].Source)
}

func (s *RetrievalTestSuite) Test08_ConfigUpdateRebalancesRanking() {
	// Boost the text weight far above vector so a text-only hit outranks a
	// vector-only one on the next search
	textWeight := 0.9
	vectorWeight := 0.05
	s.engine.UpdateConfig(hybrid.ConfigUpdate{
		TextWeight:   &textWeight,
		VectorWeight: &vectorWeight,
	})

	cfg := s.engine.CurrentConfig()
	s.Equal(0.9, cfg.TextWeight)
	s.Equal(0.05, cfg.VectorWeight)
	s.Equal(0.2, cfg.GraphWeight, "untouched fields must survive a partial update")

	results, err := s.engine.Search(s.ctx, hybrid.SearchQuery{
		TenantID: "tenant-a",
		Text:     "refund policy",
	})
	s.Require().NoError(err)
	s.Require().NotEmpty(results)

	// chunk-faq is text-only (0.70 * 0.9); chunk-shipping is vector-only
	// (0.81 * 0.05). The reweighting must reorder them.
	pos := make(map[string]int)
	for i, r := range results {
		pos[r.ID] = i
	}
	if faq, ok := pos["chunk-faq"]; ok {
		if shipping, ok := pos["chunk-shipping"]; ok {
			s.Less(faq, shipping, "text weight boost must outrank the vector-only hit")
		}
	}
}

func (s *RetrievalTestSuite) Test09_StatsAccumulate() {
	stats := s.engine.Stats()

	s.Positive(stats.TotalQueries)
	s.Positive(stats.AvgLatency)
	s.Positive(stats.SourceBreakdown[hybrid.SourceVector])
	s.Positive(stats.CacheHitRate, "the cache test must have produced at least one hit")
}

func (s *RetrievalTestSuite) Test10_HealthComposition() {
	s.True(s.engine.HealthCheck(s.ctx))

	s.embedder.healthy = false
	s.False(s.engine.HealthCheck(s.ctx), "an unhealthy embedder must fail the composite check")

	s.embedder.healthy = true
	s.vector.healthy = false
	s.False(s.engine.HealthCheck(s.ctx), "an unhealthy vector backend must fail the composite check")

	s.vector.healthy = true
	s.True(s.engine.HealthCheck(s.ctx))
}

// formatDuration renders durations with stable width for the summary table
func formatDuration(d time.Duration) string {
	d = d.Round(time.Millisecond)

	if d >= time.Second {
		seconds := float64(d) / float64(time.Second)
		return fmt.Sprintf("%7.3fs", seconds)
	}

	ms := d.Milliseconds()
	return fmt.Sprintf("%7dms", ms)
}

// printTestSummary displays a formatted summary of test results
func (s *RetrievalTestSuite) printTestSummary() {
	totalDuration := time.Since(s.suiteStartTime)

	passCount, failCount := 0, 0
	for _, result := range s.testResults {
		if result.Status == "PASS" {
			passCount++
		} else if result.Status == "FAIL" {
			failCount++
		}
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleColoredBright)
	t.SetTitle("pgEdge Assistant Retrieval Engine - Regression Summary")

	t.AppendHeader(table.Row{"#", "Test Name", "Status", "Duration"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 2, Align: text.AlignLeft},
		{Number: 3, Align: text.AlignCenter},
		{Number: 4, Align: text.AlignRight},
	})

	for i, result := range s.testResults {
		testName := strings.TrimPrefix(result.Name, "TestRetrievalSuite/")

		var status string
		if result.Status == "PASS" {
			status = text.FgGreen.Sprintf("PASS")
		} else if result.Status == "FAIL" {
			status = text.FgRed.Sprintf("FAIL")
		} else {
			status = text.FgYellow.Sprintf("%s", result.Status)
		}

		t.AppendRow(table.Row{i + 1, testName, status, formatDuration(result.Duration)})
	}

	t.AppendSeparator()

	totalTests := len(s.testResults)
	var statusSummary string
	if failCount > 0 {
		statusSummary = text.FgRed.Sprintf("%d passed, %d failed", passCount, failCount)
	} else {
		statusSummary = text.FgGreen.Sprintf("All %d tests passed", passCount)
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("Total: %d tests", totalTests), statusSummary, formatDuration(totalDuration)})

	fmt.Println("\n" + strings.Repeat("=", 80))
	t.Render()
	fmt.Println(strings.Repeat("=", 80))
}

// TestRetrievalSuite runs the regression suite
func TestRetrievalSuite(t *testing.T) {
	suite.Run(t, new(RetrievalTestSuite))
}
