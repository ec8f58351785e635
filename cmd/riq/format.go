package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"riq/internal/cache"
	"riq/internal/config"
	"riq/internal/estimate"
	"riq/internal/facts"
	"riq/internal/impact"
	"riq/internal/pipeline"
)

// OutputFormat selects how command results are rendered.
type OutputFormat string

const (
	FormatJSON     OutputFormat = "json"
	FormatMarkdown OutputFormat = "markdown"
	FormatTable    OutputFormat = "table"
)

// maxListItems caps markdown list length; the JSON output carries the
// full artifact.
const maxListItems = 25

// outputFormat validates the --format flag.
func outputFormat() (OutputFormat, error) {
	switch OutputFormat(formatFlag) {
	case FormatJSON, FormatMarkdown, FormatTable:
		return OutputFormat(formatFlag), nil
	default:
		return "", fmt.Errorf("unsupported format: %s (expected json, markdown, or table)", formatFlag)
	}
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printFacts(f *facts.RepositoryFacts) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}
	switch format {
	case FormatJSON:
		return printJSON(os.Stdout, f)
	case FormatMarkdown:
		fmt.Print(renderFactsMarkdown(f))
		return nil
	default:
		return renderFactsTable(os.Stdout, f)
	}
}

func printImpact(a *impact.ImpactAnalysis) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}
	switch format {
	case FormatJSON:
		return printJSON(os.Stdout, a)
	case FormatMarkdown:
		fmt.Print(renderImpactMarkdown(a))
		return nil
	default:
		return renderImpactTable(os.Stdout, a)
	}
}

func printEstimate(est estimate.Estimate, explain bool) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}
	switch format {
	case FormatJSON:
		return printJSON(os.Stdout, est)
	case FormatMarkdown:
		fmt.Print(renderEstimateMarkdown(est, explain))
		return nil
	default:
		return renderEstimateTable(os.Stdout, est, explain)
	}
}

func printStatus(st pipeline.Status) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}
	switch format {
	case FormatJSON:
		return printJSON(os.Stdout, st)
	case FormatMarkdown:
		fmt.Print(renderStatusMarkdown(st))
		return nil
	default:
		return renderStatusTable(os.Stdout, st)
	}
}

func printRunList(runs []pipeline.RunSummary) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}
	switch format {
	case FormatJSON:
		return printJSON(os.Stdout, runs)
	case FormatMarkdown:
		fmt.Print(renderRunListMarkdown(runs))
		return nil
	default:
		return renderRunListTable(os.Stdout, runs)
	}
}

func printCacheStats(stats cache.Stats) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}
	switch format {
	case FormatJSON:
		return printJSON(os.Stdout, stats)
	case FormatMarkdown:
		fmt.Print(renderCacheStatsMarkdown(stats))
		return nil
	default:
		return renderCacheStatsTable(os.Stdout, stats)
	}
}

func printConfig(cfg *config.Config) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}
	switch format {
	case FormatJSON:
		return printJSON(os.Stdout, cfg)
	case FormatMarkdown:
		fmt.Print(renderConfigMarkdown(cfg))
		return nil
	default:
		return renderConfigTable(os.Stdout, cfg)
	}
}

// renderFactsMarkdown renders the facts artifact as markdown sections,
// skipping sections with nothing to report.
func renderFactsMarkdown(f *facts.RepositoryFacts) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Repository Facts: %s\n\n", f.Repo.Name)
	fmt.Fprintf(&b, "- Root: `%s`\n", f.Repo.Root)
	fmt.Fprintf(&b, "- Identity: `%s`\n", f.Repo.Hash)
	fmt.Fprintf(&b, "- Generated: %s\n", f.GeneratedAt.Format(time.RFC3339))

	b.WriteString("\n## Structure\n\n")
	writeListField(&b, "Languages", f.Structure.Languages)
	writeStringField(&b, "Layout", f.Structure.Layout)
	fmt.Fprintf(&b, "- Monorepo: %s\n", yesNo(f.Structure.Monorepo))
	writeListField(&b, "Workspaces", f.Structure.Workspaces)
	writeListField(&b, "Entry points", f.Structure.EntryPoints)
	writeListField(&b, "Test dirs", f.Structure.TestDirs)

	if hasDatabaseFacts(f.Database) {
		b.WriteString("\n## Database\n\n")
		writeListField(&b, "Engines", f.Database.Engines)
		writeListField(&b, "ORMs", f.Database.ORMs)
		writeListField(&b, "Models", f.Database.Models)
		writeListField(&b, "Tables", f.Database.Tables)
		writeStringField(&b, "Migrations", f.Database.MigrationsDir)
		writeListField(&b, "Schema files", f.Database.SchemaFiles)
	}

	if hasAPIFacts(f.API) {
		b.WriteString("\n## API\n\n")
		writeListField(&b, "Styles", f.API.Styles)
		writeListField(&b, "Frameworks", f.API.Frameworks)
		if len(f.API.Routes) > 0 {
			b.WriteString("- Routes:\n")
			shown := f.API.Routes
			if len(shown) > maxListItems {
				shown = shown[:maxListItems]
			}
			for _, r := range shown {
				fmt.Fprintf(&b, "  - `%s`", r.String())
				if r.File != "" {
					fmt.Fprintf(&b, " (%s)", r.File)
				}
				b.WriteString("\n")
			}
			if len(f.API.Routes) > maxListItems {
				fmt.Fprintf(&b, "  - ... and %d more\n", len(f.API.Routes)-maxListItems)
			}
		}
		writeListField(&b, "Spec files", f.API.SpecFiles)
	}

	if hasFrontendFacts(f.Frontend) {
		b.WriteString("\n## Frontend\n\n")
		writeListField(&b, "Frameworks", f.Frontend.Frameworks)
		writeListField(&b, "Bundlers", f.Frontend.Bundlers)
		writeListField(&b, "UI libraries", f.Frontend.UILibraries)
		writeListField(&b, "State management", f.Frontend.StateManagement)
		writeListField(&b, "Component dirs", f.Frontend.ComponentDirs)
	}

	if hasPatternFacts(f.Patterns) {
		b.WriteString("\n## Patterns\n\n")
		writeListField(&b, "Architecture", f.Patterns.Architecture)
		writeListField(&b, "CI", f.Patterns.CI)
		if f.Patterns.Containerized {
			b.WriteString("- Containerized: yes\n")
		}
		writeListField(&b, "IaC", f.Patterns.IaC)
		writeListField(&b, "Testing", f.Patterns.Testing)
		writeListField(&b, "Lint", f.Patterns.Lint)
	}

	fmt.Fprintf(&b, "\n## Dependencies (%d)\n\n", f.Dependencies.Count)
	writeDependencyList(&b, "Runtime", f.Dependencies.Runtime)
	writeDependencyList(&b, "Dev", f.Dependencies.Dev)

	if len(f.Warnings) > 0 {
		b.WriteString("\n## Warnings\n\n")
		for _, w := range f.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}

	return b.String()
}

// renderImpactMarkdown renders an impact analysis as markdown.
func renderImpactMarkdown(a *impact.ImpactAnalysis) string {
	var b strings.Builder

	b.WriteString("# Impact Analysis\n\n")
	if a.Requirement != "" {
		fmt.Fprintf(&b, "Requirement: %s\n\n", a.Requirement)
	}

	b.WriteString("## Effort\n\n")
	fmt.Fprintf(&b, "- Score: %.1f\n", a.Effort.Score)
	fmt.Fprintf(&b, "- Bucket: %s\n", a.Effort.Bucket)
	writeStringField(&b, "Duration", a.Effort.Plan.Duration)

	if len(a.Dependencies) > 0 {
		b.WriteString("\n## Dependencies\n\n")
		for _, d := range a.Dependencies {
			fmt.Fprintf(&b, "- %s\n", d)
		}
	}

	if len(a.Risks) > 0 {
		b.WriteString("\n## Risks\n\n")
		for _, r := range a.Risks {
			fmt.Fprintf(&b, "- **%s** (likelihood %s, severity %s): %s\n",
				r.Category, r.Likelihood, r.Severity, r.Description)
			for _, m := range r.Mitigations {
				fmt.Fprintf(&b, "  - Mitigation: %s\n", m)
			}
		}
	}

	if len(a.TestAreas) > 0 {
		b.WriteString("\n## Test Areas\n\n")
		for _, area := range a.TestAreas {
			fmt.Fprintf(&b, "- %s\n", area)
		}
	}

	if a.Rollout.Approach != "" {
		b.WriteString("\n## Rollout\n\n")
		fmt.Fprintf(&b, "Approach: %s\n", a.Rollout.Approach)
		if len(a.Rollout.Stages) > 0 {
			b.WriteString("\n")
			for i, stage := range a.Rollout.Stages {
				fmt.Fprintf(&b, "%d. %s\n", i+1, stage)
			}
		}
	}

	if len(a.Rollback) > 0 {
		b.WriteString("\n## Rollback\n\n")
		for i, step := range a.Rollback {
			fmt.Fprintf(&b, "%d. %s\n", i+1, step)
		}
	}

	return b.String()
}

// renderEstimateMarkdown renders an estimate as markdown. The breakdown
// section is only included when explain is set.
func renderEstimateMarkdown(est estimate.Estimate, explain bool) string {
	var b strings.Builder

	b.WriteString("# Effort Estimate\n\n")
	fmt.Fprintf(&b, "- Score: %.1f\n", est.Score)
	fmt.Fprintf(&b, "- Bucket: %s\n", est.Bucket)
	writeStringField(&b, "Duration", est.Plan.Duration)

	if len(est.Plan.Phases) > 0 {
		b.WriteString("\n## Plan\n\n")
		for i, phase := range est.Plan.Phases {
			fmt.Fprintf(&b, "%d. %s\n", i+1, phase)
		}
		if len(est.Plan.Resources) > 0 {
			fmt.Fprintf(&b, "\nResources: %s\n", strings.Join(est.Plan.Resources, ", "))
		}
	}

	if explain && len(est.Breakdown) > 0 {
		b.WriteString("\n## Breakdown\n\n")
		for _, item := range est.Breakdown {
			if item.Detail != "" {
				fmt.Fprintf(&b, "- %s (%s): %+.1f\n", item.Label, item.Detail, item.Points)
			} else {
				fmt.Fprintf(&b, "- %s: %+.1f\n", item.Label, item.Points)
			}
		}
	}

	if len(est.Warnings) > 0 {
		b.WriteString("\n## Warnings\n\n")
		for _, w := range est.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}

	return b.String()
}

// renderStatusMarkdown renders the poll view of a run, inlining the
// artifact sections when the run produced them.
func renderStatusMarkdown(st pipeline.Status) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Run %s\n\n", st.RunID)
	fmt.Fprintf(&b, "- Status: %s\n", st.Status)
	writeStringField(&b, "Progress", st.Progress)
	writeListField(&b, "Completed phases", st.CompletedPhases)
	writeStringField(&b, "Error", st.Error)

	if st.Artifacts != nil {
		if st.Artifacts.Facts != nil {
			b.WriteString("\n")
			b.WriteString(renderFactsMarkdown(st.Artifacts.Facts))
		}
		if st.Artifacts.Impact != nil {
			b.WriteString("\n")
			b.WriteString(renderImpactMarkdown(st.Artifacts.Impact))
		}
	}

	return b.String()
}

// renderRunListMarkdown renders run summaries as a markdown table.
func renderRunListMarkdown(runs []pipeline.RunSummary) string {
	var b strings.Builder

	b.WriteString("# Analysis Runs\n\n")
	if len(runs) == 0 {
		b.WriteString("No runs recorded.\n")
		return b.String()
	}

	b.WriteString("| ID | State | Progress | Started | Requirement |\n")
	b.WriteString("|----|-------|----------|---------|-------------|\n")
	for _, r := range runs {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			r.ID, r.State, r.Progress,
			r.StartedAt.Format("2006-01-02 15:04:05"),
			truncate(r.Requirement, 40))
	}
	return b.String()
}

func renderCacheStatsMarkdown(stats cache.Stats) string {
	var b strings.Builder

	b.WriteString("# Cache\n\n")
	fmt.Fprintf(&b, "- Enabled: %s\n", yesNo(stats.Enabled))
	fmt.Fprintf(&b, "- Hits: %d\n", stats.Hits)
	fmt.Fprintf(&b, "- Misses: %d\n", stats.Misses)
	fmt.Fprintf(&b, "- Memory entries: %d\n", stats.MemoryEntries)
	fmt.Fprintf(&b, "- Disk entries: %d\n", stats.DiskEntries)
	fmt.Fprintf(&b, "- Disk size: %s\n", formatBytes(stats.DiskBytes))
	writeStringField(&b, "Disk path", stats.DiskPath)
	writeStringField(&b, "Disk error", stats.DiskError)
	return b.String()
}

func renderConfigMarkdown(cfg *config.Config) string {
	var b strings.Builder

	b.WriteString("# Configuration\n\n")
	for _, row := range configRows(cfg) {
		fmt.Fprintf(&b, "- %s: %s\n", row[0], row[1])
	}
	return b.String()
}

// configRows flattens the config into dotted key/value pairs for the
// markdown and table renderers.
func configRows(cfg *config.Config) [][]string {
	return [][]string{
		{"version", strconv.Itoa(cfg.Version)},
		{"analysis.maxFilesPerCategory", strconv.Itoa(cfg.Analysis.MaxFilesPerCategory)},
		{"analysis.maxFileSizeBytes", strconv.FormatInt(cfg.Analysis.MaxFileSizeBytes, 10)},
		{"analysis.sampleEvery", strconv.Itoa(cfg.Analysis.SampleEvery)},
		{"analysis.detectorTimeoutMs", strconv.Itoa(cfg.Analysis.DetectorTimeoutMs)},
		{"analysis.exclude", strings.Join(cfg.Analysis.Exclude, ", ")},
		{"cache.enabled", yesNo(cfg.Cache.Enabled)},
		{"cache.ttlSeconds", strconv.Itoa(cfg.Cache.TtlSeconds)},
		{"cache.maxMemoryEntries", strconv.Itoa(cfg.Cache.MaxMemoryEntries)},
		{"cache.path", cfg.Cache.Path},
		{"cache.compression", yesNo(cfg.Cache.Compression)},
		{"estimation.smallMax", strconv.FormatFloat(cfg.Estimation.SmallMax, 'g', -1, 64)},
		{"estimation.mediumMax", strconv.FormatFloat(cfg.Estimation.MediumMax, 'g', -1, 64)},
		{"estimation.largeMax", strconv.FormatFloat(cfg.Estimation.LargeMax, 'g', -1, 64)},
		{"server.host", cfg.Server.Host},
		{"server.port", strconv.Itoa(cfg.Server.Port)},
		{"server.tokenFile", cfg.Server.TokenFile},
		{"logging.format", cfg.Logging.Format},
		{"logging.level", cfg.Logging.Level},
	}
}

func writeListField(b *strings.Builder, label string, values []string) {
	if len(values) == 0 {
		return
	}
	fmt.Fprintf(b, "- %s: %s\n", label, strings.Join(values, ", "))
}

func writeStringField(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "- %s: %s\n", label, value)
}

func writeDependencyList(b *strings.Builder, label string, deps []facts.Dependency) {
	if len(deps) == 0 {
		return
	}
	fmt.Fprintf(b, "- %s:\n", label)
	shown := deps
	if len(shown) > maxListItems {
		shown = shown[:maxListItems]
	}
	for _, d := range shown {
		if d.Version != "" {
			fmt.Fprintf(b, "  - %s %s\n", d.Name, d.Version)
		} else {
			fmt.Fprintf(b, "  - %s\n", d.Name)
		}
	}
	if len(deps) > maxListItems {
		fmt.Fprintf(b, "  - ... and %d more\n", len(deps)-maxListItems)
	}
}

func hasDatabaseFacts(d facts.DatabaseFacts) bool {
	return len(d.Engines) > 0 || len(d.ORMs) > 0 || len(d.Tables) > 0 ||
		len(d.Models) > 0 || d.MigrationsDir != "" || len(d.SchemaFiles) > 0
}

func hasAPIFacts(a facts.APIFacts) bool {
	return len(a.Styles) > 0 || len(a.Frameworks) > 0 || len(a.Routes) > 0 || len(a.SpecFiles) > 0
}

func hasFrontendFacts(f facts.FrontendFacts) bool {
	return len(f.Frameworks) > 0 || len(f.Bundlers) > 0 || len(f.UILibraries) > 0 ||
		len(f.StateManagement) > 0 || len(f.ComponentDirs) > 0
}

func hasPatternFacts(p facts.PatternFacts) bool {
	return len(p.Architecture) > 0 || len(p.CI) > 0 || p.Containerized ||
		len(p.IaC) > 0 || len(p.Testing) > 0 || len(p.Lint) > 0
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

// truncate shortens s to max runes with an ellipsis suffix.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max || max <= 3 {
		return s
	}
	return string(runes[:max-3]) + "..."
}

// formatBytes formats byte size in human-readable form.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
