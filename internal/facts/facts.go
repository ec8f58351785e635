// Package facts defines the repository fact artifact and the detectors
// that populate it. Detectors are pure readers: they inspect a shared
// file inventory, never modify the repository, and never fail the whole
// run over a single unreadable or malformed file.
package facts

import (
	"fmt"
	"time"
)

// SchemaVersion identifies the artifact shape. Bumped on incompatible
// changes so cached artifacts from older versions are not misread.
const SchemaVersion = "1"

// RepoRef identifies the repository an artifact was generated from.
type RepoRef struct {
	Root string `json:"root"`
	Name string `json:"name"`
	Hash string `json:"hash"`
}

// StructureFacts describe repository layout and language makeup.
type StructureFacts struct {
	Languages   []string `json:"languages,omitempty"`
	Layout      string   `json:"layout,omitempty"`
	Monorepo    bool     `json:"monorepo"`
	Workspaces  []string `json:"workspaces,omitempty"`
	EntryPoints []string `json:"entryPoints,omitempty"`
	TestDirs    []string `json:"testDirs,omitempty"`
}

// DatabaseFacts describe persistence surfaces found in the repository.
type DatabaseFacts struct {
	Engines       []string `json:"engines,omitempty"`
	ORMs          []string `json:"orms,omitempty"`
	Tables        []string `json:"tables,omitempty"`
	Models        []string `json:"models,omitempty"`
	MigrationsDir string   `json:"migrationsDir,omitempty"`
	SchemaFiles   []string `json:"schemaFiles,omitempty"`
}

// Route is a single HTTP route surface.
type Route struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	File   string `json:"file,omitempty"`
}

// String renders the route the way humans quote it, e.g. "GET /users".
func (r Route) String() string {
	return r.Method + " " + r.Path
}

// APIFacts describe the API surface of the repository.
type APIFacts struct {
	Styles     []string `json:"styles,omitempty"`
	Frameworks []string `json:"frameworks,omitempty"`
	Routes     []Route  `json:"routes,omitempty"`
	SpecFiles  []string `json:"specFiles,omitempty"`
}

// FrontendFacts describe the frontend stack, if any.
type FrontendFacts struct {
	Frameworks      []string `json:"frameworks,omitempty"`
	Bundlers        []string `json:"bundlers,omitempty"`
	UILibraries     []string `json:"uiLibraries,omitempty"`
	StateManagement []string `json:"stateManagement,omitempty"`
	ComponentDirs   []string `json:"componentDirs,omitempty"`
}

// PatternFacts describe architectural and tooling conventions.
type PatternFacts struct {
	Architecture  []string `json:"architecture,omitempty"`
	CI            []string `json:"ci,omitempty"`
	Containerized bool     `json:"containerized"`
	IaC           []string `json:"iac,omitempty"`
	Testing       []string `json:"testing,omitempty"`
	Lint          []string `json:"lint,omitempty"`
}

// Manifest records one recognized dependency manifest.
type Manifest struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
}

// Dependency is a single declared dependency. Source is the manifest
// path it was declared in.
type Dependency struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	Source  string `json:"source,omitempty"`
}

// DependencyFacts describe declared dependencies across all manifests.
type DependencyFacts struct {
	Manifests []Manifest   `json:"manifests,omitempty"`
	Runtime   []Dependency `json:"runtime,omitempty"`
	Dev       []Dependency `json:"dev,omitempty"`
	Count     int          `json:"count"`
}

// RepositoryFacts is the versioned artifact produced by a facts run.
// The JSON shape is stable within a SchemaVersion.
type RepositoryFacts struct {
	SchemaVersion string          `json:"schemaVersion"`
	Repo          RepoRef         `json:"repo"`
	GeneratedAt   time.Time       `json:"generatedAt"`
	Structure     StructureFacts  `json:"structure"`
	Database      DatabaseFacts   `json:"database"`
	API           APIFacts        `json:"api"`
	Frontend      FrontendFacts   `json:"frontend"`
	Patterns      PatternFacts    `json:"patterns"`
	Dependencies  DependencyFacts `json:"dependencies"`
	Warnings      []string        `json:"warnings,omitempty"`
}

// PartialFacts is one detector's contribution to the merged artifact.
// Zero values make no claim: Merge takes single-valued fields from the
// first detector that set them and accumulates everything else.
type PartialFacts struct {
	Structure    StructureFacts
	Database     DatabaseFacts
	API          APIFacts
	Frontend     FrontendFacts
	Patterns     PatternFacts
	Dependencies DependencyFacts
	Warnings     []string
}

func (p *PartialFacts) warnf(format string, args ...interface{}) {
	p.Warnings = append(p.Warnings, fmt.Sprintf(format, args...))
}

// Merge folds detector contributions into base in slice order, which is
// the registry's registration order. Single-valued facts keep the first
// claim; collections accumulate and dedup preserving first-seen order;
// warnings always accumulate.
func Merge(base *RepositoryFacts, parts []PartialFacts) {
	for i := range parts {
		p := &parts[i]

		base.Structure.Languages = append(base.Structure.Languages, p.Structure.Languages...)
		if base.Structure.Layout == "" {
			base.Structure.Layout = p.Structure.Layout
		}
		if !base.Structure.Monorepo {
			base.Structure.Monorepo = p.Structure.Monorepo
		}
		base.Structure.Workspaces = append(base.Structure.Workspaces, p.Structure.Workspaces...)
		base.Structure.EntryPoints = append(base.Structure.EntryPoints, p.Structure.EntryPoints...)
		base.Structure.TestDirs = append(base.Structure.TestDirs, p.Structure.TestDirs...)

		base.Database.Engines = append(base.Database.Engines, p.Database.Engines...)
		base.Database.ORMs = append(base.Database.ORMs, p.Database.ORMs...)
		base.Database.Tables = append(base.Database.Tables, p.Database.Tables...)
		base.Database.Models = append(base.Database.Models, p.Database.Models...)
		if base.Database.MigrationsDir == "" {
			base.Database.MigrationsDir = p.Database.MigrationsDir
		}
		base.Database.SchemaFiles = append(base.Database.SchemaFiles, p.Database.SchemaFiles...)

		base.API.Styles = append(base.API.Styles, p.API.Styles...)
		base.API.Frameworks = append(base.API.Frameworks, p.API.Frameworks...)
		base.API.Routes = append(base.API.Routes, p.API.Routes...)
		base.API.SpecFiles = append(base.API.SpecFiles, p.API.SpecFiles...)

		base.Frontend.Frameworks = append(base.Frontend.Frameworks, p.Frontend.Frameworks...)
		base.Frontend.Bundlers = append(base.Frontend.Bundlers, p.Frontend.Bundlers...)
		base.Frontend.UILibraries = append(base.Frontend.UILibraries, p.Frontend.UILibraries...)
		base.Frontend.StateManagement = append(base.Frontend.StateManagement, p.Frontend.StateManagement...)
		base.Frontend.ComponentDirs = append(base.Frontend.ComponentDirs, p.Frontend.ComponentDirs...)

		base.Patterns.Architecture = append(base.Patterns.Architecture, p.Patterns.Architecture...)
		base.Patterns.CI = append(base.Patterns.CI, p.Patterns.CI...)
		if !base.Patterns.Containerized {
			base.Patterns.Containerized = p.Patterns.Containerized
		}
		base.Patterns.IaC = append(base.Patterns.IaC, p.Patterns.IaC...)
		base.Patterns.Testing = append(base.Patterns.Testing, p.Patterns.Testing...)
		base.Patterns.Lint = append(base.Patterns.Lint, p.Patterns.Lint...)

		base.Dependencies.Manifests = append(base.Dependencies.Manifests, p.Dependencies.Manifests...)
		base.Dependencies.Runtime = append(base.Dependencies.Runtime, p.Dependencies.Runtime...)
		base.Dependencies.Dev = append(base.Dependencies.Dev, p.Dependencies.Dev...)

		base.Warnings = append(base.Warnings, p.Warnings...)
	}

	base.Structure.Languages = dedupStrings(base.Structure.Languages)
	base.Structure.Workspaces = dedupStrings(base.Structure.Workspaces)
	base.Structure.EntryPoints = dedupStrings(base.Structure.EntryPoints)
	base.Structure.TestDirs = dedupStrings(base.Structure.TestDirs)

	base.Database.Engines = dedupStrings(base.Database.Engines)
	base.Database.ORMs = dedupStrings(base.Database.ORMs)
	base.Database.Tables = dedupStrings(base.Database.Tables)
	base.Database.Models = dedupStrings(base.Database.Models)
	base.Database.SchemaFiles = dedupStrings(base.Database.SchemaFiles)

	base.API.Styles = dedupStrings(base.API.Styles)
	base.API.Frameworks = dedupStrings(base.API.Frameworks)
	base.API.Routes = dedupRoutes(base.API.Routes)
	base.API.SpecFiles = dedupStrings(base.API.SpecFiles)

	base.Frontend.Frameworks = dedupStrings(base.Frontend.Frameworks)
	base.Frontend.Bundlers = dedupStrings(base.Frontend.Bundlers)
	base.Frontend.UILibraries = dedupStrings(base.Frontend.UILibraries)
	base.Frontend.StateManagement = dedupStrings(base.Frontend.StateManagement)
	base.Frontend.ComponentDirs = dedupStrings(base.Frontend.ComponentDirs)

	base.Patterns.Architecture = dedupStrings(base.Patterns.Architecture)
	base.Patterns.CI = dedupStrings(base.Patterns.CI)
	base.Patterns.IaC = dedupStrings(base.Patterns.IaC)
	base.Patterns.Testing = dedupStrings(base.Patterns.Testing)
	base.Patterns.Lint = dedupStrings(base.Patterns.Lint)

	base.Dependencies.Manifests = dedupManifests(base.Dependencies.Manifests)
	base.Dependencies.Runtime = dedupDependencies(base.Dependencies.Runtime)
	base.Dependencies.Dev = dedupDependencies(base.Dependencies.Dev)
	base.Dependencies.Count = len(base.Dependencies.Runtime) + len(base.Dependencies.Dev)
}

func dedupStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func dedupRoutes(routes []Route) []Route {
	if len(routes) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(routes))
	out := make([]Route, 0, len(routes))
	for _, r := range routes {
		key := r.Method + " " + r.Path
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

func dedupManifests(manifests []Manifest) []Manifest {
	if len(manifests) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(manifests))
	out := make([]Manifest, 0, len(manifests))
	for _, m := range manifests {
		if _, ok := seen[m.Path]; ok {
			continue
		}
		seen[m.Path] = struct{}{}
		out = append(out, m)
	}
	return out
}

func dedupDependencies(deps []Dependency) []Dependency {
	if len(deps) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(deps))
	out := make([]Dependency, 0, len(deps))
	for _, d := range deps {
		key := d.Name + "\x00" + d.Source
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, d)
	}
	return out
}
