// Package impact assesses proposed changes against repository facts.
// An assessment bundles dependencies, risks, effort, test areas, and
// rollout strategy for one requirement. Derivation is heuristic: it
// reads facts and the requirement text, never the repository itself.
package impact

import (
	"strings"

	"riq/internal/estimate"
	"riq/internal/facts"
)

// RiskCategory classifies a risk finding.
type RiskCategory string

const (
	RiskSecurity    RiskCategory = "security"
	RiskData        RiskCategory = "data"
	RiskIntegration RiskCategory = "integration"
	RiskCompliance  RiskCategory = "compliance"
	RiskOperational RiskCategory = "operational"
)

// Likelihood expresses how probable a risk is.
type Likelihood string

const (
	LikelihoodLow    Likelihood = "low"
	LikelihoodMedium Likelihood = "medium"
	LikelihoodHigh   Likelihood = "high"
)

// Severity expresses how bad the realized risk would be.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Risk is one risk finding with its fixed mitigation list.
type Risk struct {
	Category    RiskCategory `json:"category"`
	Description string       `json:"description"`
	Likelihood  Likelihood   `json:"likelihood"`
	Severity    Severity     `json:"severity"`
	Mitigations []string     `json:"mitigations"`
}

// RolloutStrategy describes how the change reaches production.
type RolloutStrategy struct {
	Approach string   `json:"approach"`
	Stages   []string `json:"stages"`
}

// ImpactAnalysis is the full assessment artifact for one requirement.
type ImpactAnalysis struct {
	Requirement  string            `json:"requirement"`
	Dependencies []string          `json:"dependencies"`
	Risks        []Risk            `json:"risks"`
	Effort       estimate.Estimate `json:"effort"`
	TestAreas    []string          `json:"testAreas"`
	Rollout      RolloutStrategy   `json:"rollout"`
	Rollback     []string          `json:"rollback"`
}

// Input carries everything Assess needs. Facts may be nil; the
// assessment then derives dependencies from the changes alone.
type Input struct {
	Requirement string
	Changes     []estimate.ComponentChange
	Complexity  estimate.Complexity
	NFRs        []string
	Facts       *facts.RepositoryFacts
}

// Assess runs the full impact assessment. It is pure and deterministic:
// risk rules are additive and fire independently, in declaration order,
// never suppressing one another.
func Assess(in Input) ImpactAnalysis {
	effort := estimate.Compute(in.Changes, in.Complexity)

	return ImpactAnalysis{
		Requirement:  in.Requirement,
		Dependencies: deriveDependencies(in),
		Risks:        assessRisks(in),
		Effort:       effort,
		TestAreas:    deriveTestAreas(in),
		Rollout:      rolloutFor(effort.Bucket),
		Rollback:     rollbackSteps(in),
	}
}

// assessRisks applies the rule list. Each rule contributes at most one
// risk with a fixed description and mitigation list.
func assessRisks(in Input) []Risk {
	risks := make([]Risk, 0, 4)

	if strings.Contains(strings.ToLower(in.Requirement), "tenant") {
		risks = append(risks, Risk{
			Category:    RiskSecurity,
			Description: "tenant data isolation breach",
			Likelihood:  LikelihoodMedium,
			Severity:    SeverityHigh,
			Mitigations: []string{
				"row-level security review",
				"tenant-scoped integration tests",
				"access-control audit",
			},
		})
	}

	if hasChangeOfType(in.Changes, estimate.TypeDatabase) {
		risks = append(risks, Risk{
			Category:    RiskData,
			Description: "migration failure or data corruption",
			Likelihood:  LikelihoodMedium,
			Severity:    SeverityHigh,
			Mitigations: []string{
				"backup before migration",
				"reversible migration scripts",
				"staging dry-run",
			},
		})
	}

	if hasChangeOfType(in.Changes, estimate.TypeAPI) {
		risks = append(risks, Risk{
			Category:    RiskIntegration,
			Description: "breaking changes for API consumers",
			Likelihood:  LikelihoodMedium,
			Severity:    SeverityMedium,
			Mitigations: []string{
				"contract tests",
				"API versioning",
				"deprecation window",
			},
		})
	}

	if in.Complexity.ComplianceRequired {
		risks = append(risks, Risk{
			Category:    RiskCompliance,
			Description: "regulatory control gaps",
			Likelihood:  LikelihoodLow,
			Severity:    SeverityHigh,
			Mitigations: []string{
				"compliance checklist review",
				"audit logging verification",
			},
		})
	}

	return risks
}

// deriveTestAreas builds the test area list: unit and integration always,
// the rest conditional on changes, NFRs, and the requirement text.
func deriveTestAreas(in Input) []string {
	areas := []string{"unit", "integration"}

	if hasChangeOfType(in.Changes, estimate.TypeAPI) {
		areas = append(areas, "api-contract", "performance")
	}
	if hasChangeOfType(in.Changes, estimate.TypeDatabase) {
		areas = append(areas, "data-migration", "data-integrity")
	}
	if hasNFR(in.NFRs, "security") {
		areas = append(areas, "security", "penetration")
	}
	if hasNFR(in.NFRs, "performance") {
		areas = append(areas, "load", "stress")
	}
	if strings.Contains(strings.ToLower(in.Requirement), "multi-tenant") {
		areas = append(areas, "tenant-isolation")
	}

	return dedupOrdered(areas)
}

// rolloutFor maps the effort bucket onto a rollout strategy.
func rolloutFor(bucket estimate.Bucket) RolloutStrategy {
	switch bucket {
	case estimate.BucketS:
		return RolloutStrategy{
			Approach: "direct",
			Stages:   []string{"deploy to production"},
		}
	case estimate.BucketM:
		return RolloutStrategy{
			Approach: "staged",
			Stages:   []string{"dev", "staging", "production"},
		}
	default:
		return RolloutStrategy{
			Approach: "phased",
			Stages:   []string{"internal", "5% beta", "25%", "50%", "100%"},
		}
	}
}

// rollbackSteps is always at least the two universal steps; database and
// api changes append their own.
func rollbackSteps(in Input) []string {
	steps := []string{
		"disable feature flag (immediate)",
		"redeploy previous version",
	}
	if hasChangeOfType(in.Changes, estimate.TypeDatabase) {
		steps = append(steps, "run prepared database rollback scripts")
	}
	if hasChangeOfType(in.Changes, estimate.TypeAPI) {
		steps = append(steps, "fall back to previous API version")
	}
	return steps
}

// deriveDependencies lists the changed component names plus repository
// dependents the facts reveal: frontend frameworks consume a changed api
// component, ORM layers ride on a changed database.
func deriveDependencies(in Input) []string {
	deps := make([]string, 0, len(in.Changes))
	for _, change := range in.Changes {
		deps = append(deps, change.Name)
	}

	if in.Facts != nil {
		if hasChangeOfType(in.Changes, estimate.TypeAPI) {
			deps = append(deps, in.Facts.Frontend.Frameworks...)
		}
		if hasChangeOfType(in.Changes, estimate.TypeDatabase) {
			deps = append(deps, in.Facts.Database.ORMs...)
		}
	}

	return dedupOrdered(deps)
}

func hasChangeOfType(changes []estimate.ComponentChange, t estimate.ComponentType) bool {
	for _, change := range changes {
		if change.Type == t {
			return true
		}
	}
	return false
}

func hasNFR(nfrs []string, want string) bool {
	for _, nfr := range nfrs {
		if strings.EqualFold(strings.TrimSpace(nfr), want) {
			return true
		}
	}
	return false
}

func dedupOrdered(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(values))
	out := values[:0]
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
