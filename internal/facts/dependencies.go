package facts

import (
	"context"
	"strings"

	"riq/internal/facts/deps"
	"riq/internal/walker"
)

// manifestSpec binds a manifest basename to its kind label and parser.
type manifestSpec struct {
	Kind  string
	Name  string
	Parse func([]byte) ([]deps.Entry, error)
}

// manifestTable is the recognized manifest list in scan order.
var manifestTable = []manifestSpec{
	{Kind: "npm", Name: "package.json", Parse: deps.ParsePackageJSON},
	{Kind: "gomod", Name: "go.mod", Parse: deps.ParseGoMod},
	{Kind: "pip", Name: "requirements.txt", Parse: deps.ParseRequirements},
	{Kind: "pyproject", Name: "pyproject.toml", Parse: deps.ParsePyproject},
	{Kind: "cargo", Name: "Cargo.toml", Parse: deps.ParseCargo},
	{Kind: "gem", Name: "Gemfile", Parse: deps.ParseGemfile},
	{Kind: "composer", Name: "composer.json", Parse: deps.ParseComposer},
	{Kind: "maven", Name: "pom.xml", Parse: deps.ParsePom},
	{Kind: "gradle", Name: "build.gradle", Parse: deps.ParseGradle},
	{Kind: "gradle", Name: "build.gradle.kts", Parse: deps.ParseGradle},
	{Kind: "pub", Name: "pubspec.yaml", Parse: deps.ParsePubspec},
}

// DependencyInventory collects declared dependencies from every
// recognized manifest in the repository.
type DependencyInventory struct{}

func (d *DependencyInventory) Name() string { return "dependencies" }

func (d *DependencyInventory) Detect(ctx context.Context, src *Source) (*PartialFacts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := &PartialFacts{}

	for _, fi := range src.Inventory.ByCategory[walker.CategoryManifest] {
		spec, ok := lookupManifestSpec(fi)
		if !ok {
			continue
		}
		data, err := src.Read(fi)
		if err != nil {
			p.warnf("manifest %s unreadable: %v", fi.Path, err)
			continue
		}
		entries, err := spec.Parse(data)
		if err != nil {
			p.warnf("manifest %s: %v", fi.Path, err)
			continue
		}

		p.Dependencies.Manifests = append(p.Dependencies.Manifests, Manifest{
			Path: fi.Path,
			Kind: spec.Kind,
		})
		for _, e := range entries {
			dep := Dependency{Name: e.Name, Version: e.Version, Source: fi.Path}
			if e.Dev {
				p.Dependencies.Dev = append(p.Dependencies.Dev, dep)
			} else {
				p.Dependencies.Runtime = append(p.Dependencies.Runtime, dep)
			}
		}
	}

	return p, nil
}

func lookupManifestSpec(fi walker.FileInfo) (manifestSpec, bool) {
	base := fi.Path
	if idx := strings.LastIndex(fi.Path, "/"); idx >= 0 {
		base = fi.Path[idx+1:]
	}
	for _, spec := range manifestTable {
		if spec.Name == base {
			return spec, true
		}
	}
	return manifestSpec{}, false
}
