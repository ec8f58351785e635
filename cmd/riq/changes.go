package main

import (
	"fmt"
	"strings"

	"riq/internal/errors"
	"riq/internal/estimate"
)

var componentTypes = map[string]estimate.ComponentType{
	"database":       estimate.TypeDatabase,
	"api":            estimate.TypeAPI,
	"service":        estimate.TypeService,
	"library":        estimate.TypeLibrary,
	"config":         estimate.TypeConfig,
	"infrastructure": estimate.TypeInfrastructure,
}

var changeKinds = map[string]estimate.ChangeKind{
	"create":   estimate.KindCreate,
	"modify":   estimate.KindModify,
	"refactor": estimate.KindRefactor,
	"delete":   estimate.KindDelete,
}

var confidenceLevels = map[string]estimate.Confidence{
	"low":    estimate.ConfidenceLow,
	"medium": estimate.ConfidenceMedium,
	"high":   estimate.ConfidenceHigh,
}

// parseChangeSpecs parses repeated --change values into component
// changes. Each spec is name:type:kind with an optional :confidence
// suffix; omitted confidence defaults to high.
func parseChangeSpecs(specs []string) ([]estimate.ComponentChange, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	changes := make([]estimate.ComponentChange, 0, len(specs))
	for _, spec := range specs {
		change, err := parseChangeSpec(spec)
		if err != nil {
			return nil, err
		}
		changes = append(changes, change)
	}
	return changes, nil
}

func parseChangeSpec(spec string) (estimate.ComponentChange, error) {
	parts := strings.Split(spec, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return estimate.ComponentChange{}, invalidChange(spec,
			"expected name:type:kind or name:type:kind:confidence")
	}

	name := strings.TrimSpace(parts[0])
	if name == "" {
		return estimate.ComponentChange{}, invalidChange(spec, "component name is empty")
	}

	componentType, ok := componentTypes[strings.ToLower(strings.TrimSpace(parts[1]))]
	if !ok {
		return estimate.ComponentChange{}, invalidChange(spec,
			fmt.Sprintf("unknown component type %q (expected database, api, service, library, config, or infrastructure)", parts[1]))
	}

	kind, ok := changeKinds[strings.ToLower(strings.TrimSpace(parts[2]))]
	if !ok {
		return estimate.ComponentChange{}, invalidChange(spec,
			fmt.Sprintf("unknown change kind %q (expected create, modify, refactor, or delete)", parts[2]))
	}

	confidence := estimate.ConfidenceHigh
	if len(parts) == 4 {
		confidence, ok = confidenceLevels[strings.ToLower(strings.TrimSpace(parts[3]))]
		if !ok {
			return estimate.ComponentChange{}, invalidChange(spec,
				fmt.Sprintf("unknown confidence %q (expected low, medium, or high)", parts[3]))
		}
	}

	return estimate.ComponentChange{
		Name:       name,
		Type:       componentType,
		Kind:       kind,
		Confidence: confidence,
	}, nil
}

func invalidChange(spec, reason string) error {
	return errors.NewRiqError(errors.InvalidChange,
		fmt.Sprintf("invalid --change %q: %s", spec, reason),
		nil, errors.GetSuggestedFixes(errors.InvalidChange))
}
