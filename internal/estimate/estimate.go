// Package estimate converts a set of component changes and complexity
// flags into a numeric effort score, a discrete bucket, and a phased plan
// skeleton. Scoring is pure and deterministic: the same inputs always
// produce the same estimate.
package estimate

import (
	"fmt"
)

// ChangeKind describes what happens to a component.
type ChangeKind string

const (
	KindCreate   ChangeKind = "create"
	KindModify   ChangeKind = "modify"
	KindRefactor ChangeKind = "refactor"
	KindDelete   ChangeKind = "delete"
)

// ComponentType classifies the component being changed.
type ComponentType string

const (
	TypeDatabase       ComponentType = "database"
	TypeAPI            ComponentType = "api"
	TypeService        ComponentType = "service"
	TypeLibrary        ComponentType = "library"
	TypeConfig         ComponentType = "config"
	TypeInfrastructure ComponentType = "infrastructure"
)

// Confidence expresses how certain the caller is about a change.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Bucket is the discrete effort size.
type Bucket string

const (
	BucketS  Bucket = "S"
	BucketM  Bucket = "M"
	BucketL  Bucket = "L"
	BucketXL Bucket = "XL"
)

// ComponentChange is one planned change to one component.
type ComponentChange struct {
	Name       string        `json:"name"`
	Type       ComponentType `json:"type"`
	Kind       ChangeKind    `json:"kind"`
	Confidence Confidence    `json:"confidence"`
}

// Complexity carries the cross-cutting flags that add flat score on top
// of the per-change weights.
type Complexity struct {
	IntegrationPoints  int  `json:"integrationPoints"`
	DataMigration      bool `json:"dataMigration"`
	BreakingChanges    bool `json:"breakingChanges"`
	ComplianceRequired bool `json:"complianceRequired"`
}

// LineItem is one scored contribution, kept for --explain output.
type LineItem struct {
	Label  string  `json:"label"`
	Detail string  `json:"detail,omitempty"`
	Points float64 `json:"points"`
}

// Plan is the static delivery skeleton attached to a bucket.
type Plan struct {
	Phases    []string `json:"phases"`
	Duration  string   `json:"duration"`
	Resources []string `json:"resources"`
}

// Estimate is the full scoring result.
type Estimate struct {
	Score     float64    `json:"score"`
	Bucket    Bucket     `json:"bucket"`
	Breakdown []LineItem `json:"breakdown"`
	Plan      Plan       `json:"plan"`
	Warnings  []string   `json:"warnings,omitempty"`
}

// Weight tables. Each table carries an explicit "default" row that
// absorbs unknown enum values, so a malformed change still scores
// (with a warning) instead of failing the whole estimate.
var (
	changeWeights = map[ChangeKind]float64{
		KindCreate:   3,
		KindModify:   2,
		KindRefactor: 4,
		KindDelete:   1,
		"default":    2,
	}

	typeWeights = map[ComponentType]float64{
		TypeDatabase:       3,
		TypeInfrastructure: 3,
		TypeAPI:            2,
		TypeService:        2,
		TypeLibrary:        1,
		TypeConfig:         1,
		"default":          2,
	}

	confidenceMultipliers = map[Confidence]float64{
		ConfidenceLow:    1.5,
		ConfidenceMedium: 1.2,
		ConfidenceHigh:   1.0,
		"default":        1.2,
	}
)

// Flat adders for the complexity flags.
const (
	integrationPointWeight = 2.0
	dataMigrationWeight    = 10.0
	breakingChangesWeight  = 8.0
	complianceWeight       = 5.0
)

// Bucket thresholds. Config may override these at startup via
// SetThresholds before any estimates run. A score exactly equal to a
// threshold lands in the larger bucket.
var (
	smallMax  = 10.0
	mediumMax = 25.0
	largeMax  = 50.0
)

// SetThresholds overrides the bucket boundaries. Values must be strictly
// ascending; anything else is rejected and the current thresholds stay.
func SetThresholds(small, medium, large float64) error {
	if !(small < medium && medium < large) {
		return fmt.Errorf("thresholds must be strictly ascending, got %v < %v < %v", small, medium, large)
	}
	smallMax = small
	mediumMax = medium
	largeMax = large
	return nil
}

// Thresholds returns the current bucket boundaries (small, medium, large).
func Thresholds() (float64, float64, float64) {
	return smallMax, mediumMax, largeMax
}

// BucketFor maps a score onto a bucket using the current thresholds.
func BucketFor(score float64) Bucket {
	switch {
	case score < smallMax:
		return BucketS
	case score < mediumMax:
		return BucketM
	case score < largeMax:
		return BucketL
	default:
		return BucketXL
	}
}

// Compute scores the given changes and complexity flags. The breakdown
// holds one line item per change plus one per active complexity adder.
func Compute(changes []ComponentChange, cx Complexity) Estimate {
	est := Estimate{
		Breakdown: make([]LineItem, 0, len(changes)+4),
	}
	warned := make(map[string]bool)

	for _, change := range changes {
		changeWeight, ok := changeWeights[change.Kind]
		if !ok {
			changeWeight = changeWeights["default"]
			warnOnce(&est, warned, fmt.Sprintf("unknown change kind %q, scored as modify", change.Kind))
		}
		typeWeight, ok := typeWeights[change.Type]
		if !ok {
			typeWeight = typeWeights["default"]
			warnOnce(&est, warned, fmt.Sprintf("unknown component type %q, scored as service", change.Type))
		}
		multiplier, ok := confidenceMultipliers[change.Confidence]
		if !ok {
			multiplier = confidenceMultipliers["default"]
			warnOnce(&est, warned, fmt.Sprintf("unknown confidence %q, scored as medium", change.Confidence))
		}

		points := changeWeight * typeWeight * multiplier
		est.Score += points
		est.Breakdown = append(est.Breakdown, LineItem{
			Label:  change.Name,
			Detail: fmt.Sprintf("%s %s at %s confidence (%v x %v x %v)", change.Kind, change.Type, change.Confidence, changeWeight, typeWeight, multiplier),
			Points: points,
		})
	}

	if cx.IntegrationPoints > 0 {
		points := integrationPointWeight * float64(cx.IntegrationPoints)
		est.Score += points
		est.Breakdown = append(est.Breakdown, LineItem{
			Label:  "integration points",
			Detail: fmt.Sprintf("%d points of integration x %v", cx.IntegrationPoints, integrationPointWeight),
			Points: points,
		})
	}
	if cx.DataMigration {
		est.Score += dataMigrationWeight
		est.Breakdown = append(est.Breakdown, LineItem{
			Label:  "data migration",
			Points: dataMigrationWeight,
		})
	}
	if cx.BreakingChanges {
		est.Score += breakingChangesWeight
		est.Breakdown = append(est.Breakdown, LineItem{
			Label:  "breaking changes",
			Points: breakingChangesWeight,
		})
	}
	if cx.ComplianceRequired {
		est.Score += complianceWeight
		est.Breakdown = append(est.Breakdown, LineItem{
			Label:  "compliance requirements",
			Points: complianceWeight,
		})
	}

	est.Bucket = BucketFor(est.Score)
	est.Plan = GeneratePlan(est.Bucket)
	return est
}

func warnOnce(est *Estimate, warned map[string]bool, message string) {
	if warned[message] {
		return
	}
	warned[message] = true
	est.Warnings = append(est.Warnings, message)
}

// planTable is the static plan lookup per bucket. Entries are copied on
// return so callers cannot mutate the table.
var planTable = map[Bucket]Plan{
	BucketS: {
		Phases:    []string{"implement", "review", "deploy"},
		Duration:  "1-3 days",
		Resources: []string{"1 engineer"},
	},
	BucketM: {
		Phases:    []string{"design", "implement", "review", "deploy"},
		Duration:  "1-2 weeks",
		Resources: []string{"1-2 engineers"},
	},
	BucketL: {
		Phases:    []string{"discovery", "design", "implement", "review", "phased rollout"},
		Duration:  "2-6 weeks",
		Resources: []string{"2-3 engineers", "tech lead"},
	},
	BucketXL: {
		Phases:    []string{"discovery", "architecture review", "design", "migration plan", "implement", "review", "phased rollout"},
		Duration:  "6+ weeks",
		Resources: []string{"dedicated team", "tech lead"},
	},
}

// GeneratePlan returns the delivery skeleton for a bucket. Unknown
// buckets fall back to the M plan.
func GeneratePlan(bucket Bucket) Plan {
	plan, ok := planTable[bucket]
	if !ok {
		plan = planTable[BucketM]
	}
	return Plan{
		Phases:    append([]string(nil), plan.Phases...),
		Duration:  plan.Duration,
		Resources: append([]string(nil), plan.Resources...),
	}
}
