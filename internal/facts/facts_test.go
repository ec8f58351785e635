package facts

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMergeSingleValuedFirstMatchWins(t *testing.T) {
	base := &RepositoryFacts{SchemaVersion: SchemaVersion}
	parts := []PartialFacts{
		{Structure: StructureFacts{Layout: "src-layout"}},
		{Structure: StructureFacts{Layout: "flat", Monorepo: true}},
		{Database: DatabaseFacts{MigrationsDir: "migrations"}},
		{Database: DatabaseFacts{MigrationsDir: "db/migrate"}},
	}

	Merge(base, parts)

	if base.Structure.Layout != "src-layout" {
		t.Errorf("Layout = %q, want first claim %q", base.Structure.Layout, "src-layout")
	}
	if !base.Structure.Monorepo {
		t.Error("Monorepo should be set by the only detector that claimed it")
	}
	if base.Database.MigrationsDir != "migrations" {
		t.Errorf("MigrationsDir = %q, want first claim %q", base.Database.MigrationsDir, "migrations")
	}
}

func TestMergeCollectionsDedupPreservingOrder(t *testing.T) {
	base := &RepositoryFacts{}
	parts := []PartialFacts{
		{Structure: StructureFacts{Languages: []string{"go", "typescript"}}},
		{Structure: StructureFacts{Languages: []string{"typescript", "python"}}},
	}

	Merge(base, parts)

	want := []string{"go", "typescript", "python"}
	if diff := cmp.Diff(want, base.Structure.Languages); diff != "" {
		t.Errorf("Languages mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeRoutesDedupByMethodAndPath(t *testing.T) {
	base := &RepositoryFacts{}
	parts := []PartialFacts{
		{API: APIFacts{Routes: []Route{
			{Method: "GET", Path: "/users", File: "a.js"},
			{Method: "GET", Path: "/users", File: "b.js"},
			{Method: "POST", Path: "/users", File: "a.js"},
		}}},
	}

	Merge(base, parts)

	if len(base.API.Routes) != 2 {
		t.Fatalf("Routes = %d entries, want 2", len(base.API.Routes))
	}
	if base.API.Routes[0].File != "a.js" {
		t.Errorf("first-seen route should win, got file %q", base.API.Routes[0].File)
	}
}

func TestMergeWarningsAccumulate(t *testing.T) {
	base := &RepositoryFacts{}
	parts := []PartialFacts{
		{Warnings: []string{"first"}},
		{Warnings: []string{"second", "third"}},
	}

	Merge(base, parts)

	if len(base.Warnings) != 3 {
		t.Errorf("Warnings = %d entries, want 3", len(base.Warnings))
	}
}

func TestMergeDependencyCount(t *testing.T) {
	base := &RepositoryFacts{}
	parts := []PartialFacts{
		{Dependencies: DependencyFacts{
			Runtime: []Dependency{
				{Name: "express", Source: "package.json"},
				{Name: "express", Source: "package.json"}, // duplicate
				{Name: "pg", Source: "package.json"},
			},
			Dev: []Dependency{
				{Name: "jest", Source: "package.json"},
			},
		}},
	}

	Merge(base, parts)

	if base.Dependencies.Count != 3 {
		t.Errorf("Count = %d, want 3 unique dependencies", base.Dependencies.Count)
	}
}

func TestRouteString(t *testing.T) {
	r := Route{Method: "GET", Path: "/users"}
	if got := r.String(); got != "GET /users" {
		t.Errorf("String() = %q, want %q", got, "GET /users")
	}
}
