package impact

import (
	"strings"

	"riq/internal/estimate"
	"riq/internal/facts"
)

// componentTemplate names one component a requirement plausibly touches.
type componentTemplate struct {
	name string
	typ  estimate.ComponentType
}

// componentRule maps requirement keywords onto component templates. Rules
// are evaluated independently; every matching rule contributes, and the
// result is deduplicated by component name.
type componentRule struct {
	keywords   []string
	components []componentTemplate
}

// componentRules is the fixed keyword table. These are lexical matches,
// kept as data so tuning them is a table edit, not new branching logic.
var componentRules = []componentRule{
	{
		keywords: []string{"multi-tenant", "tenant"},
		components: []componentTemplate{
			{"Auth Service", estimate.TypeService},
			{"Database Schema", estimate.TypeDatabase},
		},
	},
	{
		keywords: []string{"auth", "login", "sso", "oauth", "permission", "role-based"},
		components: []componentTemplate{
			{"Auth Service", estimate.TypeService},
		},
	},
	{
		keywords: []string{"database", "migration", "schema", "table", "index"},
		components: []componentTemplate{
			{"Database Schema", estimate.TypeDatabase},
		},
	},
	{
		keywords: []string{"api", "endpoint", "rest", "graphql", "grpc", "webhook"},
		components: []componentTemplate{
			{"API Layer", estimate.TypeAPI},
		},
	},
	{
		keywords: []string{"ui", "frontend", "page", "dashboard", "screen", "form"},
		components: []componentTemplate{
			{"Web Frontend", estimate.TypeService},
		},
	},
	{
		keywords: []string{"cache", "caching", "queue", "broker", "rate limit"},
		components: []componentTemplate{
			{"Caching Layer", estimate.TypeInfrastructure},
		},
	},
	{
		keywords: []string{"deploy", "docker", "kubernetes", "terraform", "infrastructure", "scaling"},
		components: []componentTemplate{
			{"Infrastructure", estimate.TypeInfrastructure},
		},
	},
	{
		keywords: []string{"config", "configuration", "feature flag", "environment variable"},
		components: []componentTemplate{
			{"Configuration", estimate.TypeConfig},
		},
	},
}

// kindHints classify the requirement verb. Ordered: destructive and
// restructuring words win over additive ones so "replace X with a new Y"
// reads as a refactor, not a create.
var kindHints = []struct {
	words []string
	kind  estimate.ChangeKind
}{
	{[]string{"remove", "delete", "drop", "deprecate", "sunset"}, estimate.KindDelete},
	{[]string{"refactor", "rework", "restructure", "replace", "consolidate"}, estimate.KindRefactor},
	{[]string{"add", "new", "create", "introduce", "build", "implement"}, estimate.KindCreate},
}

// kindFor infers the change kind from the requirement text, defaulting
// to modify when no verb hint matches.
func kindFor(requirement string) estimate.ChangeKind {
	for _, hint := range kindHints {
		for _, word := range hint.words {
			if strings.Contains(requirement, word) {
				return hint.kind
			}
		}
	}
	return estimate.KindModify
}

// DeriveChanges synthesizes plausible component changes from a free-text
// requirement when the caller supplied none. Keyword hits score at medium
// confidence; when nothing matches but repository facts exist, a single
// low-confidence core change stands in so the estimate is never empty for
// an analyzed repository. Derivation is pure: the same requirement and
// facts always yield the same changes.
func DeriveChanges(requirement string, f *facts.RepositoryFacts) []estimate.ComponentChange {
	req := strings.ToLower(requirement)
	if strings.TrimSpace(req) == "" {
		return nil
	}
	kind := kindFor(req)

	var changes []estimate.ComponentChange
	seen := make(map[string]bool)
	for _, rule := range componentRules {
		if !matchesAny(req, rule.keywords) {
			continue
		}
		for _, tmpl := range rule.components {
			if seen[tmpl.name] {
				continue
			}
			seen[tmpl.name] = true
			changes = append(changes, estimate.ComponentChange{
				Name:       tmpl.name,
				Type:       tmpl.typ,
				Kind:       kind,
				Confidence: estimate.ConfidenceMedium,
			})
		}
	}

	if len(changes) == 0 && f != nil {
		changes = append(changes, estimate.ComponentChange{
			Name:       "Application Core",
			Type:       estimate.TypeService,
			Kind:       kind,
			Confidence: estimate.ConfidenceLow,
		})
	}
	return changes
}

func matchesAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}
