package impact

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"riq/internal/estimate"
	"riq/internal/facts"
)

func componentNames(changes []estimate.ComponentChange) []string {
	names := make([]string, len(changes))
	for i, c := range changes {
		names[i] = c.Name
	}
	return names
}

func TestDeriveChangesKeywordRules(t *testing.T) {
	tests := []struct {
		name        string
		requirement string
		want        []string
	}{
		{
			name:        "tenant keyword expands to auth and database",
			requirement: "Add multi-tenant support to user authentication",
			want:        []string{"Auth Service", "Database Schema"},
		},
		{
			name:        "auth keyword alone",
			requirement: "support SSO login",
			want:        []string{"Auth Service"},
		},
		{
			name:        "database keyword",
			requirement: "add a migration for the orders table",
			want:        []string{"Database Schema"},
		},
		{
			name:        "api keyword",
			requirement: "expose a graphql endpoint for orders",
			want:        []string{"API Layer"},
		},
		{
			name:        "frontend keyword",
			requirement: "redesign the billing dashboard",
			want:        []string{"Web Frontend"},
		},
		{
			name:        "infrastructure keyword",
			requirement: "deploy workers on kubernetes",
			want:        []string{"Infrastructure"},
		},
		{
			name:        "config keyword",
			requirement: "gate rollout behind a feature flag",
			want:        []string{"Configuration"},
		},
		{
			name:        "overlapping rules dedup by component name",
			requirement: "tenant-aware auth with per-tenant database schema",
			want:        []string{"Auth Service", "Database Schema"},
		},
		{
			name:        "multiple layers accumulate in rule order",
			requirement: "new api endpoint backed by a schema migration",
			want:        []string{"Database Schema", "API Layer"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := componentNames(DeriveChanges(tt.requirement, nil))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("components mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDeriveChangesKindInference(t *testing.T) {
	tests := []struct {
		name        string
		requirement string
		want        estimate.ChangeKind
	}{
		{"additive verb", "add a tenant column", estimate.KindCreate},
		{"destructive verb", "remove the legacy auth endpoint", estimate.KindDelete},
		{"restructuring verb", "refactor the database access layer", estimate.KindRefactor},
		{"destructive outranks additive", "remove the old login page and add a new one", estimate.KindDelete},
		{"replace reads as refactor", "replace the auth module with a new provider", estimate.KindRefactor},
		{"no verb hint defaults to modify", "tenant-scoped billing reports", estimate.KindModify},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changes := DeriveChanges(tt.requirement, nil)
			if len(changes) == 0 {
				t.Fatalf("DeriveChanges(%q) returned no changes", tt.requirement)
			}
			for _, c := range changes {
				if c.Kind != tt.want {
					t.Errorf("%s kind = %s, want %s", c.Name, c.Kind, tt.want)
				}
			}
		})
	}
}

func TestDeriveChangesConfidence(t *testing.T) {
	derived := DeriveChanges("multi-tenant reports", nil)
	for _, c := range derived {
		if c.Confidence != estimate.ConfidenceMedium {
			t.Errorf("%s confidence = %s, want medium", c.Name, c.Confidence)
		}
	}
}

func TestDeriveChangesFallback(t *testing.T) {
	repoFacts := &facts.RepositoryFacts{Repo: facts.RepoRef{Name: "shop"}}

	t.Run("no keyword match without facts yields nothing", func(t *testing.T) {
		if got := DeriveChanges("improve the onboarding flow", nil); got != nil {
			t.Errorf("DeriveChanges = %+v, want nil", got)
		}
	})

	t.Run("no keyword match with facts yields a low-confidence core change", func(t *testing.T) {
		got := DeriveChanges("improve the onboarding flow", repoFacts)
		want := []estimate.ComponentChange{{
			Name:       "Application Core",
			Type:       estimate.TypeService,
			Kind:       estimate.KindModify,
			Confidence: estimate.ConfidenceLow,
		}}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("fallback mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("blank requirement yields nothing even with facts", func(t *testing.T) {
		if got := DeriveChanges("   ", repoFacts); got != nil {
			t.Errorf("DeriveChanges = %+v, want nil", got)
		}
	})
}

func TestDeriveChangesDeterministic(t *testing.T) {
	requirement := "add multi-tenant api endpoints with new database tables"
	first := DeriveChanges(requirement, nil)
	second := DeriveChanges(requirement, nil)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("DeriveChanges not deterministic (-first +second):\n%s", diff)
	}
}
