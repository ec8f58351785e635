package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"riq/internal/cache"
	"riq/internal/config"
	"riq/internal/estimate"
	"riq/internal/facts"
	"riq/internal/impact"
	"riq/internal/pipeline"
)

func sampleFacts() *facts.RepositoryFacts {
	return &facts.RepositoryFacts{
		SchemaVersion: facts.SchemaVersion,
		Repo: facts.RepoRef{
			Root: "/work/shop",
			Name: "shop",
			Hash: "9f8a7b6c",
		},
		GeneratedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Structure: facts.StructureFacts{
			Languages:   []string{"javascript", "typescript"},
			Layout:      "src",
			EntryPoints: []string{"src/index.js"},
			TestDirs:    []string{"test"},
		},
		Database: facts.DatabaseFacts{
			Engines: []string{"postgresql"},
			ORMs:    []string{"prisma"},
			Models:  []string{"User", "Order"},
		},
		API: facts.APIFacts{
			Styles:     []string{"rest"},
			Frameworks: []string{"express"},
			Routes: []facts.Route{
				{Method: "GET", Path: "/users", File: "src/routes/users.js"},
				{Method: "POST", Path: "/orders", File: "src/routes/orders.js"},
			},
		},
		Frontend: facts.FrontendFacts{
			Frameworks: []string{"react"},
			Bundlers:   []string{"vite"},
		},
		Dependencies: facts.DependencyFacts{
			Runtime: []facts.Dependency{{Name: "express", Version: "^4.18.0"}},
			Dev:     []facts.Dependency{{Name: "vitest", Version: "^1.0.0"}},
			Count:   2,
		},
		Warnings: []string{"package.json: unreadable workspaces entry"},
	}
}

func sampleImpact() *impact.ImpactAnalysis {
	return &impact.ImpactAnalysis{
		Requirement:  "Add order export",
		Dependencies: []string{"Orders API", "Billing Service"},
		Risks: []impact.Risk{
			{
				Category:    impact.RiskData,
				Description: "Schema changes require coordinated migration",
				Likelihood:  impact.LikelihoodMedium,
				Severity:    impact.SeverityHigh,
				Mitigations: []string{"Test migration against a production snapshot"},
			},
		},
		Effort: estimate.Estimate{
			Score:  16,
			Bucket: estimate.BucketM,
			Plan:   estimate.Plan{Duration: "1-2 weeks"},
		},
		TestAreas: []string{"integration tests for Orders API"},
		Rollout: impact.RolloutStrategy{
			Approach: "staged",
			Stages:   []string{"deploy behind a feature flag", "enable for internal users"},
		},
		Rollback: []string{"disable the feature flag"},
	}
}

func TestOutputFormat(t *testing.T) {
	orig := formatFlag
	defer func() { formatFlag = orig }()

	for _, valid := range []string{"json", "markdown", "table"} {
		formatFlag = valid
		format, err := outputFormat()
		if err != nil {
			t.Errorf("outputFormat(%q): unexpected error: %v", valid, err)
		}
		if string(format) != valid {
			t.Errorf("outputFormat(%q) = %q", valid, format)
		}
	}

	formatFlag = "xml"
	if _, err := outputFormat(); err == nil {
		t.Error("expected error for unsupported format")
	} else if !strings.Contains(err.Error(), "unsupported format") {
		t.Errorf("error should mention unsupported format, got: %v", err)
	}
}

func TestPrintJSON(t *testing.T) {
	resp := struct {
		Name  string `json:"name"`
		Value int    `json:"value"`
	}{
		Name:  "test",
		Value: 123,
	}

	var buf bytes.Buffer
	if err := printJSON(&buf, resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(buf.String(), `"name": "test"`) {
		t.Error("missing name field")
	}
	if !strings.Contains(buf.String(), `"value": 123`) {
		t.Error("missing value field")
	}
}

func TestRenderFactsMarkdown(t *testing.T) {
	result := renderFactsMarkdown(sampleFacts())

	if !strings.Contains(result, "# Repository Facts: shop") {
		t.Error("missing header")
	}
	if !strings.Contains(result, "- Root: `/work/shop`") {
		t.Error("missing root")
	}
	if !strings.Contains(result, "- Identity: `9f8a7b6c`") {
		t.Error("missing identity")
	}
	if !strings.Contains(result, "- Languages: javascript, typescript") {
		t.Error("missing languages")
	}
	if !strings.Contains(result, "## Database") {
		t.Error("missing database section")
	}
	if !strings.Contains(result, "- Models: User, Order") {
		t.Error("missing models")
	}
	if !strings.Contains(result, "`GET /users` (src/routes/users.js)") {
		t.Error("missing route")
	}
	if !strings.Contains(result, "## Frontend") {
		t.Error("missing frontend section")
	}
	if !strings.Contains(result, "## Dependencies (2)") {
		t.Error("missing dependency count")
	}
	if !strings.Contains(result, "express ^4.18.0") {
		t.Error("missing runtime dependency")
	}
	if !strings.Contains(result, "## Warnings") {
		t.Error("missing warnings section")
	}
	// Patterns are empty in the fixture, so the section is omitted.
	if strings.Contains(result, "## Patterns") {
		t.Error("should not have patterns section when empty")
	}
}

func TestRenderFactsMarkdown_CapsRoutes(t *testing.T) {
	f := &facts.RepositoryFacts{Repo: facts.RepoRef{Name: "big"}}
	for i := 0; i < maxListItems+5; i++ {
		f.API.Routes = append(f.API.Routes, facts.Route{Method: "GET", Path: "/x"})
	}

	result := renderFactsMarkdown(f)
	if !strings.Contains(result, "... and 5 more") {
		t.Error("missing overflow marker")
	}
}

func TestRenderImpactMarkdown(t *testing.T) {
	result := renderImpactMarkdown(sampleImpact())

	if !strings.Contains(result, "# Impact Analysis") {
		t.Error("missing header")
	}
	if !strings.Contains(result, "Requirement: Add order export") {
		t.Error("missing requirement")
	}
	if !strings.Contains(result, "- Score: 16.0") {
		t.Error("missing score")
	}
	if !strings.Contains(result, "- Bucket: M") {
		t.Error("missing bucket")
	}
	if !strings.Contains(result, "- Orders API") {
		t.Error("missing dependency")
	}
	if !strings.Contains(result, "**data** (likelihood medium, severity high)") {
		t.Error("missing risk line")
	}
	if !strings.Contains(result, "Mitigation: Test migration against a production snapshot") {
		t.Error("missing mitigation")
	}
	if !strings.Contains(result, "## Test Areas") {
		t.Error("missing test areas section")
	}
	if !strings.Contains(result, "Approach: staged") {
		t.Error("missing rollout approach")
	}
	if !strings.Contains(result, "2. enable for internal users") {
		t.Error("missing rollout stage")
	}
	if !strings.Contains(result, "1. disable the feature flag") {
		t.Error("missing rollback step")
	}
}

func TestRenderEstimateMarkdown(t *testing.T) {
	est := estimate.Compute([]estimate.ComponentChange{
		{Name: "Database Schema", Type: estimate.TypeDatabase, Kind: estimate.KindModify, Confidence: estimate.ConfidenceHigh},
	}, estimate.Complexity{DataMigration: true})

	result := renderEstimateMarkdown(est, true)

	if !strings.Contains(result, "# Effort Estimate") {
		t.Error("missing header")
	}
	if !strings.Contains(result, "- Score: 16.0") {
		t.Error("missing score")
	}
	if !strings.Contains(result, "- Bucket: M") {
		t.Error("missing bucket")
	}
	if !strings.Contains(result, "- Duration: 1-2 weeks") {
		t.Error("missing duration")
	}
	if !strings.Contains(result, "1. design") {
		t.Error("missing plan phase")
	}
	if !strings.Contains(result, "Resources: 1-2 engineers") {
		t.Error("missing resources")
	}
	if !strings.Contains(result, "## Breakdown") {
		t.Error("missing breakdown section")
	}
	if !strings.Contains(result, "modify database at high confidence") {
		t.Error("missing line item detail")
	}
	if !strings.Contains(result, "- data migration: +10.0") {
		t.Error("missing adder line item")
	}
}

func TestRenderEstimateMarkdown_NoExplain(t *testing.T) {
	est := estimate.Compute([]estimate.ComponentChange{
		{Name: "Auth", Type: estimate.TypeService, Kind: estimate.KindModify, Confidence: estimate.ConfidenceHigh},
	}, estimate.Complexity{})

	result := renderEstimateMarkdown(est, false)

	if !strings.Contains(result, "- Score: 4.0") {
		t.Error("missing score")
	}
	if strings.Contains(result, "## Breakdown") {
		t.Error("should not have breakdown section without explain")
	}
}

func TestRenderStatusMarkdown(t *testing.T) {
	st := pipeline.Status{
		RunID:           "run-1",
		Status:          pipeline.StatusComplete,
		CompletedPhases: []string{"facts", "impact", "compose"},
		Artifacts: &pipeline.Artifacts{
			Facts:  sampleFacts(),
			Impact: sampleImpact(),
		},
	}

	result := renderStatusMarkdown(st)

	if !strings.Contains(result, "# Run run-1") {
		t.Error("missing header")
	}
	if !strings.Contains(result, "- Status: complete") {
		t.Error("missing status")
	}
	if !strings.Contains(result, "- Completed phases: facts, impact, compose") {
		t.Error("missing phases")
	}
	if !strings.Contains(result, "# Repository Facts: shop") {
		t.Error("missing inlined facts artifact")
	}
	if !strings.Contains(result, "# Impact Analysis") {
		t.Error("missing inlined impact artifact")
	}
}

func TestRenderStatusMarkdown_Error(t *testing.T) {
	st := pipeline.Status{
		RunID:  "run-7",
		Status: pipeline.StatusError,
		Error:  "walk failed",
	}

	result := renderStatusMarkdown(st)

	if !strings.Contains(result, "- Status: error") {
		t.Error("missing error status")
	}
	if !strings.Contains(result, "- Error: walk failed") {
		t.Error("missing error message")
	}
	if strings.Contains(result, "# Repository Facts") {
		t.Error("should not inline artifacts when there are none")
	}
}

func TestRenderRunListMarkdown(t *testing.T) {
	runs := []pipeline.RunSummary{
		{
			ID:          "run-1",
			State:       pipeline.StateComplete,
			Progress:    "complete",
			StartedAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			Requirement: "Add support for exporting orders to CSV and PDF",
		},
		{
			ID:        "run-2",
			State:     pipeline.StateError,
			Progress:  "facts",
			StartedAt: time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC),
		},
	}

	result := renderRunListMarkdown(runs)

	if !strings.Contains(result, "| ID | State | Progress | Started | Requirement |") {
		t.Error("missing table header")
	}
	if !strings.Contains(result, "| run-1 | complete |") {
		t.Error("missing first run")
	}
	if !strings.Contains(result, "2025-06-01 12:00:00") {
		t.Error("missing start time")
	}
	if !strings.Contains(result, "orders to C... |") {
		t.Error("requirement should be truncated")
	}
	if !strings.Contains(result, "| run-2 | error |") {
		t.Error("missing second run")
	}
}

func TestRenderRunListMarkdown_Empty(t *testing.T) {
	result := renderRunListMarkdown(nil)
	if !strings.Contains(result, "No runs recorded.") {
		t.Error("missing empty message")
	}
}

func TestRenderCacheStatsMarkdown(t *testing.T) {
	stats := cache.Stats{
		Enabled:       true,
		Hits:          10,
		Misses:        4,
		MemoryEntries: 3,
		DiskEntries:   9,
		DiskBytes:     2048,
		DiskPath:      "/tmp/riq.db",
	}

	result := renderCacheStatsMarkdown(stats)

	if !strings.Contains(result, "- Enabled: yes") {
		t.Error("missing enabled flag")
	}
	if !strings.Contains(result, "- Hits: 10") {
		t.Error("missing hits")
	}
	if !strings.Contains(result, "- Disk size: 2.0 KiB") {
		t.Error("missing disk size")
	}
	if !strings.Contains(result, "- Disk path: /tmp/riq.db") {
		t.Error("missing disk path")
	}
	if strings.Contains(result, "Disk error") {
		t.Error("should not have disk error when empty")
	}
}

func TestRenderConfigMarkdown(t *testing.T) {
	result := renderConfigMarkdown(config.DefaultConfig())

	if !strings.Contains(result, "- cache.path: .riq/cache/riq.db") {
		t.Error("missing cache path")
	}
	if !strings.Contains(result, "- server.port: 9310") {
		t.Error("missing server port")
	}
	if !strings.Contains(result, "- estimation.smallMax: 10") {
		t.Error("missing estimation threshold")
	}
	if !strings.Contains(result, "- logging.format: human") {
		t.Error("missing logging format")
	}
}

func TestRenderFactsTable(t *testing.T) {
	var buf bytes.Buffer
	if err := renderFactsTable(&buf, sampleFacts()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result := buf.String()
	for _, want := range []string{"Repository", "shop", "postgresql", "express", "GET", "/users"} {
		if !strings.Contains(result, want) {
			t.Errorf("missing %q in table output", want)
		}
	}
}

func TestRenderImpactTable(t *testing.T) {
	var buf bytes.Buffer
	if err := renderImpactTable(&buf, sampleImpact()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result := buf.String()
	if !strings.Contains(result, "Requirement: Add order export") {
		t.Error("missing requirement")
	}
	if !strings.Contains(result, "(score 16.0)") {
		t.Error("missing score")
	}
	if !strings.Contains(result, "Dependencies: Orders API, Billing Service") {
		t.Error("missing dependencies")
	}
	if !strings.Contains(result, "medium") {
		t.Error("missing risk likelihood")
	}
	if !strings.Contains(result, "Rollout: staged (2 stages)") {
		t.Error("missing rollout")
	}
}

func TestRenderEstimateTable(t *testing.T) {
	est := estimate.Compute([]estimate.ComponentChange{
		{Name: "Database Schema", Type: estimate.TypeDatabase, Kind: estimate.KindModify, Confidence: estimate.ConfidenceHigh},
	}, estimate.Complexity{DataMigration: true})

	var buf bytes.Buffer
	if err := renderEstimateTable(&buf, est, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result := buf.String()
	if !strings.Contains(result, "data migration") {
		t.Error("missing breakdown row")
	}
	if !strings.Contains(result, "+10.0") {
		t.Error("missing breakdown points")
	}
	if !strings.Contains(result, "Score: 16.0") {
		t.Error("missing score")
	}
	if !strings.Contains(result, "Duration: 1-2 weeks") {
		t.Error("missing duration")
	}
}

func TestRenderEstimateTable_NoExplain(t *testing.T) {
	est := estimate.Compute([]estimate.ComponentChange{
		{Name: "Database Schema", Type: estimate.TypeDatabase, Kind: estimate.KindModify, Confidence: estimate.ConfidenceHigh},
	}, estimate.Complexity{DataMigration: true})

	var buf bytes.Buffer
	if err := renderEstimateTable(&buf, est, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result := buf.String()
	if strings.Contains(result, "+10.0") {
		t.Error("should not have breakdown rows without explain")
	}
	if !strings.Contains(result, "Score: 16.0") {
		t.Error("missing score")
	}
}

func TestRenderStatusTable(t *testing.T) {
	st := pipeline.Status{
		RunID:    "run-7",
		Status:   pipeline.StatusError,
		Progress: "facts",
		Error:    "walk failed",
	}

	var buf bytes.Buffer
	if err := renderStatusTable(&buf, st); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result := buf.String()
	if !strings.Contains(result, "Run: run-7") {
		t.Error("missing run id")
	}
	if !strings.Contains(result, "Error: walk failed") {
		t.Error("missing error")
	}
}

func TestRenderRunListTable(t *testing.T) {
	runs := []pipeline.RunSummary{
		{ID: "run-1", State: pipeline.StateComplete, Progress: "complete", StartedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
	}

	var buf bytes.Buffer
	if err := renderRunListTable(&buf, runs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result := buf.String()
	if !strings.Contains(result, "run-1") {
		t.Error("missing run id")
	}
	if !strings.Contains(result, "complete") {
		t.Error("missing state")
	}
}

func TestRenderRunListTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := renderRunListTable(&buf, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "No runs recorded.") {
		t.Error("missing empty message")
	}
}

func TestRenderCacheStatsTable(t *testing.T) {
	stats := cache.Stats{Enabled: true, DiskBytes: 2048}

	var buf bytes.Buffer
	if err := renderCacheStatsTable(&buf, stats); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result := buf.String()
	if !strings.Contains(result, "Enabled") {
		t.Error("missing enabled row")
	}
	if !strings.Contains(result, "2.0 KiB") {
		t.Error("missing disk size")
	}
}

func TestRenderConfigTable(t *testing.T) {
	var buf bytes.Buffer
	if err := renderConfigTable(&buf, config.DefaultConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result := buf.String()
	if !strings.Contains(result, "server.port") {
		t.Error("missing setting key")
	}
	if !strings.Contains(result, "9310") {
		t.Error("missing setting value")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		s    string
		max  int
		want string
	}{
		{"shorter than max", "short", 10, "short"},
		{"exactly max", "exact", 5, "exact"},
		{"longer than max", "a much longer string", 10, "a much ..."},
		{"max too small to ellipsize", "abcdef", 3, "abcdef"},
		{"multibyte runes", "日本語のテキストです", 5, "日本..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncate(tt.s, tt.max); got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.s, tt.max, got, tt.want)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{100, "100 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1048576, "1.0 MiB"},
		{1073741824, "1.0 GiB"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := formatBytes(tt.bytes)
			if result != tt.expected {
				t.Errorf("formatBytes(%d) = %q, want %q", tt.bytes, result, tt.expected)
			}
		})
	}
}
