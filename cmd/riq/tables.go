package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"riq/internal/cache"
	"riq/internal/config"
	"riq/internal/estimate"
	"riq/internal/facts"
	"riq/internal/impact"
	"riq/internal/pipeline"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// maxTableRoutes caps the routes table; the JSON output carries them all.
const maxTableRoutes = 20

var (
	bucketSmallColor  = color.New(color.FgGreen)
	bucketMediumColor = color.New(color.FgYellow)
	bucketLargeColor  = color.New(color.FgRed)
	bucketXLColor     = color.New(color.FgRed, color.Bold)

	severityLowColor    = color.New(color.FgCyan)
	severityMediumColor = color.New(color.FgYellow)
	severityHighColor   = color.New(color.FgRed, color.Bold)
)

// colorBucket renders the effort bucket for terminal output.
func colorBucket(b estimate.Bucket) string {
	switch b {
	case estimate.BucketS:
		return bucketSmallColor.Sprint(string(b))
	case estimate.BucketM:
		return bucketMediumColor.Sprint(string(b))
	case estimate.BucketL:
		return bucketLargeColor.Sprint(string(b))
	case estimate.BucketXL:
		return bucketXLColor.Sprint(string(b))
	default:
		return string(b)
	}
}

// colorSeverity renders a risk severity for terminal output.
func colorSeverity(s impact.Severity) string {
	switch s {
	case impact.SeverityHigh:
		return severityHighColor.Sprint(string(s))
	case impact.SeverityMedium:
		return severityMediumColor.Sprint(string(s))
	default:
		return severityLowColor.Sprint(string(s))
	}
}

// renderFactsTable writes the facts summary table, followed by a routes
// table when the repository exposes HTTP routes.
func renderFactsTable(w io.Writer, f *facts.RepositoryFacts) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Fact", "Value"})

	var rows [][]string
	add := func(fact, value string) {
		if value != "" {
			rows = append(rows, []string{fact, value})
		}
	}
	add("Repository", f.Repo.Name)
	add("Identity", f.Repo.Hash)
	add("Languages", strings.Join(f.Structure.Languages, ", "))
	add("Layout", f.Structure.Layout)
	if f.Structure.Monorepo {
		add("Monorepo", "yes")
	}
	add("Database engines", strings.Join(f.Database.Engines, ", "))
	add("ORMs", strings.Join(f.Database.ORMs, ", "))
	add("Models", strings.Join(f.Database.Models, ", "))
	add("API frameworks", strings.Join(f.API.Frameworks, ", "))
	if n := len(f.API.Routes); n > 0 {
		add("Routes", strconv.Itoa(n))
	}
	add("Frontend", strings.Join(f.Frontend.Frameworks, ", "))
	add("CI", strings.Join(f.Patterns.CI, ", "))
	add("Dependencies", strconv.Itoa(f.Dependencies.Count))
	if n := len(f.Warnings); n > 0 {
		add("Warnings", strconv.Itoa(n))
	}

	if err := table.Bulk(rows); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}

	if len(f.API.Routes) > 0 {
		fmt.Fprintln(w)
		routes := tablewriter.NewWriter(w)
		routes.Header([]string{"Method", "Path", "File"})

		shown := f.API.Routes
		if len(shown) > maxTableRoutes {
			shown = shown[:maxTableRoutes]
		}
		var routeRows [][]string
		for _, r := range shown {
			routeRows = append(routeRows, []string{r.Method, r.Path, r.File})
		}
		if err := routes.Bulk(routeRows); err != nil {
			return err
		}
		if err := routes.Render(); err != nil {
			return err
		}
		if len(f.API.Routes) > maxTableRoutes {
			fmt.Fprintf(w, "... and %d more routes\n", len(f.API.Routes)-maxTableRoutes)
		}
	}
	return nil
}

// renderImpactTable writes the impact summary with a colored risk table.
func renderImpactTable(w io.Writer, a *impact.ImpactAnalysis) error {
	if a.Requirement != "" {
		fmt.Fprintf(w, "Requirement: %s\n", a.Requirement)
	}
	fmt.Fprintf(w, "Effort: %s (score %.1f)\n", colorBucket(a.Effort.Bucket), a.Effort.Score)
	if a.Effort.Plan.Duration != "" {
		fmt.Fprintf(w, "Duration: %s\n", a.Effort.Plan.Duration)
	}
	if len(a.Dependencies) > 0 {
		fmt.Fprintf(w, "Dependencies: %s\n", strings.Join(a.Dependencies, ", "))
	}

	if len(a.Risks) > 0 {
		fmt.Fprintln(w)
		table := tablewriter.NewWriter(w)
		table.Header([]string{"Risk", "Likelihood", "Severity", "Description"})

		var rows [][]string
		for _, r := range a.Risks {
			rows = append(rows, []string{
				string(r.Category),
				string(r.Likelihood),
				colorSeverity(r.Severity),
				truncate(r.Description, 60),
			})
		}
		if err := table.Bulk(rows); err != nil {
			return err
		}
		if err := table.Render(); err != nil {
			return err
		}
	}

	if len(a.TestAreas) > 0 {
		fmt.Fprintf(w, "\nTest areas: %s\n", strings.Join(a.TestAreas, ", "))
	}
	if a.Rollout.Approach != "" {
		fmt.Fprintf(w, "Rollout: %s (%d stages)\n", a.Rollout.Approach, len(a.Rollout.Stages))
	}
	return nil
}

// renderEstimateTable writes the estimate summary. With explain, the
// scored line items come first as a right-aligned table.
func renderEstimateTable(w io.Writer, est estimate.Estimate, explain bool) error {
	if explain && len(est.Breakdown) > 0 {
		table := tablewriter.NewWriter(w)
		table.Header([]string{"Item", "Detail", "Points"})
		table.Configure(func(cfg *tablewriter.Config) {
			cfg.Row.Alignment.Global = tw.AlignRight
		})

		var rows [][]string
		for _, item := range est.Breakdown {
			rows = append(rows, []string{item.Label, item.Detail, fmt.Sprintf("%+.1f", item.Points)})
		}
		if err := table.Bulk(rows); err != nil {
			return err
		}
		if err := table.Render(); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Score: %.1f\n", est.Score)
	fmt.Fprintf(w, "Bucket: %s\n", colorBucket(est.Bucket))
	if est.Plan.Duration != "" {
		fmt.Fprintf(w, "Duration: %s\n", est.Plan.Duration)
	}
	for _, warn := range est.Warnings {
		fmt.Fprintf(w, "Warning: %s\n", warn)
	}
	return nil
}

// renderStatusTable writes the poll view of a run, with artifact tables
// when the run produced them.
func renderStatusTable(w io.Writer, st pipeline.Status) error {
	fmt.Fprintf(w, "Run: %s\n", st.RunID)
	fmt.Fprintf(w, "Status: %s\n", st.Status)
	if st.Progress != "" {
		fmt.Fprintf(w, "Progress: %s\n", st.Progress)
	}
	if len(st.CompletedPhases) > 0 {
		fmt.Fprintf(w, "Completed phases: %s\n", strings.Join(st.CompletedPhases, ", "))
	}
	if st.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", st.Error)
	}

	if st.Artifacts != nil {
		if st.Artifacts.Facts != nil {
			fmt.Fprintln(w)
			if err := renderFactsTable(w, st.Artifacts.Facts); err != nil {
				return err
			}
		}
		if st.Artifacts.Impact != nil {
			fmt.Fprintln(w)
			if err := renderImpactTable(w, st.Artifacts.Impact); err != nil {
				return err
			}
		}
	}
	return nil
}

// renderRunListTable writes run summaries as a table, newest first.
func renderRunListTable(w io.Writer, runs []pipeline.RunSummary) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded.")
		return err
	}

	table := tablewriter.NewWriter(w)
	table.Header([]string{"ID", "State", "Progress", "Started", "Requirement"})

	var rows [][]string
	for _, r := range runs {
		rows = append(rows, []string{
			r.ID,
			string(r.State),
			r.Progress,
			r.StartedAt.Format("2006-01-02 15:04:05"),
			truncate(r.Requirement, 40),
		})
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

func renderCacheStatsTable(w io.Writer, stats cache.Stats) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Stat", "Value"})

	rows := [][]string{
		{"Enabled", yesNo(stats.Enabled)},
		{"Hits", strconv.FormatInt(stats.Hits, 10)},
		{"Misses", strconv.FormatInt(stats.Misses, 10)},
		{"Memory entries", strconv.Itoa(stats.MemoryEntries)},
		{"Disk entries", strconv.Itoa(stats.DiskEntries)},
		{"Disk size", formatBytes(stats.DiskBytes)},
	}
	if stats.DiskPath != "" {
		rows = append(rows, []string{"Disk path", stats.DiskPath})
	}
	if stats.DiskError != "" {
		rows = append(rows, []string{"Disk error", stats.DiskError})
	}

	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

func renderConfigTable(w io.Writer, cfg *config.Config) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Setting", "Value"})

	if err := table.Bulk(configRows(cfg)); err != nil {
		return err
	}
	return table.Render()
}
