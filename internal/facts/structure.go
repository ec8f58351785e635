package facts

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"riq/internal/walker"
)

// languageByExt maps source extensions to language labels. Order does
// not matter here; census order comes from file counts.
var languageByExt = map[string]string{
	".go":     "go",
	".ts":     "typescript",
	".tsx":    "typescript",
	".js":     "javascript",
	".jsx":    "javascript",
	".mjs":    "javascript",
	".cjs":    "javascript",
	".py":     "python",
	".rb":     "ruby",
	".java":   "java",
	".kt":     "kotlin",
	".rs":     "rust",
	".php":    "php",
	".cs":     "csharp",
	".swift":  "swift",
	".dart":   "dart",
	".scala":  "scala",
	".ex":     "elixir",
	".exs":    "elixir",
	".c":      "c",
	".h":      "c",
	".cpp":    "cpp",
	".cc":     "cpp",
	".hpp":    "cpp",
	".vue":    "vue",
	".svelte": "svelte",
}

// maxLanguages caps the census at the dominant languages.
const maxLanguages = 5

var entryPointNames = map[string]struct{}{
	"main.go":   {},
	"index.ts":  {},
	"index.js":  {},
	"main.ts":   {},
	"main.js":   {},
	"main.py":   {},
	"app.py":    {},
	"main.rs":   {},
	"server.js": {},
}

var testDirNames = []string{"test", "tests", "__tests__", "spec", "e2e"}

// StructuralDetector classifies repository layout: languages, monorepo
// workspaces, entry points, and test directories.
type StructuralDetector struct{}

func (d *StructuralDetector) Name() string { return "structure" }

func (d *StructuralDetector) Detect(ctx context.Context, src *Source) (*PartialFacts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := &PartialFacts{}
	inv := src.Inventory

	d.detectWorkspaces(src, p)
	p.Structure.Languages = languageCensus(inv)
	p.Structure.Layout = classifyLayout(inv)
	p.Structure.EntryPoints = findEntryPoints(inv)

	for _, name := range testDirNames {
		for _, dir := range inv.DirsWithBase(name) {
			p.Structure.TestDirs = append(p.Structure.TestDirs, dir)
		}
	}
	sort.Strings(p.Structure.TestDirs)

	return p, nil
}

// detectWorkspaces checks the workspace manifests in fixed order. Any
// one of them marks the repository as a monorepo.
func (d *StructuralDetector) detectWorkspaces(src *Source, p *PartialFacts) {
	inv := src.Inventory

	if fi, ok := inv.FirstByName("pnpm-workspace.yaml"); ok {
		data, err := src.Read(fi)
		if err == nil {
			var ws struct {
				Packages []string `yaml:"packages"`
			}
			if yaml.Unmarshal(data, &ws) == nil && len(ws.Packages) > 0 {
				p.Structure.Monorepo = true
				p.Structure.Workspaces = append(p.Structure.Workspaces, ws.Packages...)
			}
		}
	}

	for _, fi := range inv.ByName("package.json") {
		if strings.Contains(fi.Path, "/") {
			continue // workspace declarations live in the root manifest
		}
		data, err := src.Read(fi)
		if err != nil {
			continue
		}
		var pkg struct {
			Workspaces json.RawMessage `json:"workspaces"`
		}
		if json.Unmarshal(data, &pkg) != nil || len(pkg.Workspaces) == 0 {
			continue
		}
		var list []string
		if json.Unmarshal(pkg.Workspaces, &list) != nil {
			var obj struct {
				Packages []string `json:"packages"`
			}
			if json.Unmarshal(pkg.Workspaces, &obj) == nil {
				list = obj.Packages
			}
		}
		if len(list) > 0 {
			p.Structure.Monorepo = true
			p.Structure.Workspaces = append(p.Structure.Workspaces, list...)
		}
	}

	if fi, ok := inv.FirstByName("go.work"); ok {
		data, err := src.Read(fi)
		if err == nil {
			uses := parseGoWorkUses(string(data))
			if len(uses) > 0 {
				p.Structure.Monorepo = true
				p.Structure.Workspaces = append(p.Structure.Workspaces, uses...)
			}
		}
	}

	for _, fi := range inv.ByName("Cargo.toml") {
		if strings.Contains(fi.Path, "/") {
			continue
		}
		data, err := src.Read(fi)
		if err != nil {
			continue
		}
		var cargo struct {
			Workspace struct {
				Members []string `toml:"members"`
			} `toml:"workspace"`
		}
		if toml.Unmarshal(data, &cargo) == nil && len(cargo.Workspace.Members) > 0 {
			p.Structure.Monorepo = true
			p.Structure.Workspaces = append(p.Structure.Workspaces, cargo.Workspace.Members...)
		}
	}

	if fi, ok := inv.FirstByName("lerna.json"); ok {
		data, err := src.Read(fi)
		if err == nil {
			var lerna struct {
				Packages []string `json:"packages"`
			}
			if json.Unmarshal(data, &lerna) == nil && len(lerna.Packages) > 0 {
				p.Structure.Monorepo = true
				p.Structure.Workspaces = append(p.Structure.Workspaces, lerna.Packages...)
			}
		}
	}
}

// parseGoWorkUses extracts the use directives from a go.work file.
func parseGoWorkUses(content string) []string {
	var uses []string
	inBlock := false
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "use ("):
			inBlock = true
		case inBlock && line == ")":
			inBlock = false
		case inBlock && line != "" && !strings.HasPrefix(line, "//"):
			uses = append(uses, strings.TrimPrefix(line, "./"))
		case strings.HasPrefix(line, "use ") && !strings.Contains(line, "("):
			uses = append(uses, strings.TrimPrefix(strings.TrimSpace(strings.TrimPrefix(line, "use ")), "./"))
		}
	}
	return uses
}

// languageCensus counts source files per language and returns the
// dominant languages, most files first. Ties break alphabetically so
// the census is deterministic.
func languageCensus(inv *walker.Inventory) []string {
	counts := make(map[string]int)
	for _, fi := range inv.ByCategory[walker.CategorySource] {
		if lang, ok := languageByExt[fi.Ext]; ok {
			counts[lang]++
		}
	}
	if len(counts) == 0 {
		return nil
	}

	langs := make([]string, 0, len(counts))
	for lang := range counts {
		langs = append(langs, lang)
	}
	sort.Slice(langs, func(i, j int) bool {
		if counts[langs[i]] != counts[langs[j]] {
			return counts[langs[i]] > counts[langs[j]]
		}
		return langs[i] < langs[j]
	})
	if len(langs) > maxLanguages {
		langs = langs[:maxLanguages]
	}
	return langs
}

// classifyLayout picks a layout label, first match wins.
func classifyLayout(inv *walker.Inventory) string {
	switch {
	case inv.HasDir("apps") && inv.HasDir("packages"):
		return "monorepo"
	case inv.HasDir("src"):
		return "src-layout"
	case inv.HasDir("cmd") && inv.HasDir("internal"):
		return "go-standard"
	case inv.HasDir("app"):
		return "app-layout"
	default:
		return "flat"
	}
}

// findEntryPoints collects conventionally named entry files near the
// repository root. Deeply nested matches are ignored so a vendored
// tree cannot flood the list.
func findEntryPoints(inv *walker.Inventory) []string {
	const maxDepth = 2
	const maxEntries = 10

	var entries []string
	for _, fi := range inv.Files {
		base := fi.Path
		if idx := strings.LastIndex(fi.Path, "/"); idx >= 0 {
			base = fi.Path[idx+1:]
		}
		if _, ok := entryPointNames[base]; !ok {
			continue
		}
		if strings.Count(fi.Path, "/") > maxDepth {
			continue
		}
		entries = append(entries, fi.Path)
		if len(entries) >= maxEntries {
			break
		}
	}
	return entries
}
