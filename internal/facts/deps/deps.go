// Package deps parses dependency manifests into a uniform entry list.
// Parsers take raw bytes and never touch the filesystem, which keeps
// them trivially testable and safe to run on untrusted repositories.
package deps

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"regexp"
	"sort"
	"strings"

	burnttoml "github.com/BurntSushi/toml"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Entry is one declared dependency.
type Entry struct {
	Name    string
	Version string
	Dev     bool
}

// ParsePackageJSON reads npm dependencies and devDependencies.
func ParsePackageJSON(data []byte) ([]Entry, error) {
	var pkg struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("parse package.json: %w", err)
	}
	var entries []Entry
	for _, name := range sortedKeys(pkg.Dependencies) {
		entries = append(entries, Entry{Name: name, Version: pkg.Dependencies[name]})
	}
	for _, name := range sortedKeys(pkg.DevDependencies) {
		entries = append(entries, Entry{Name: name, Version: pkg.DevDependencies[name], Dev: true})
	}
	return entries, nil
}

// ParseGoMod line-scans the require block. Indirect requirements are
// skipped; they describe the build closure, not what the project
// declares.
func ParseGoMod(data []byte) ([]Entry, error) {
	var entries []Entry
	inBlock := false
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "require ("):
			inBlock = true
		case inBlock && line == ")":
			inBlock = false
		case inBlock || strings.HasPrefix(line, "require "):
			entry := strings.TrimPrefix(line, "require ")
			if strings.Contains(entry, "// indirect") {
				continue
			}
			fields := strings.Fields(entry)
			if len(fields) >= 2 && strings.HasPrefix(fields[1], "v") {
				entries = append(entries, Entry{Name: fields[0], Version: fields[1]})
			}
		}
	}
	return entries, nil
}

// ParseRequirements reads a pip requirements file.
func ParseRequirements(data []byte) ([]Entry, error) {
	var entries []Entry
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		if idx := strings.IndexByte(line, ';'); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		name, version := splitRequirement(line)
		if name != "" {
			entries = append(entries, Entry{Name: name, Version: version})
		}
	}
	return entries, nil
}

// splitRequirement splits "requests>=2.28" into name and version spec.
func splitRequirement(s string) (name, version string) {
	if idx := strings.IndexByte(s, '['); idx >= 0 {
		if end := strings.IndexByte(s, ']'); end > idx {
			s = s[:idx] + s[end+1:]
		}
	}
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '=', '>', '<', '~', '!', '^', ' ':
			return strings.TrimSpace(s[:i]), strings.Trim(strings.TrimSpace(s[i:]), "=<>~!^ ")
		}
	}
	return strings.TrimSpace(s), ""
}

// ParsePyproject reads PEP 621 project dependencies and poetry tables.
func ParsePyproject(data []byte) ([]Entry, error) {
	var doc struct {
		Project struct {
			Dependencies []string `toml:"dependencies"`
		} `toml:"project"`
		Tool struct {
			Poetry struct {
				Dependencies map[string]interface{} `toml:"dependencies"`
				Group        map[string]struct {
					Dependencies map[string]interface{} `toml:"dependencies"`
				} `toml:"group"`
			} `toml:"poetry"`
		} `toml:"tool"`
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse pyproject.toml: %w", err)
	}

	var entries []Entry
	for _, dep := range doc.Project.Dependencies {
		name, version := splitRequirement(dep)
		if name != "" {
			entries = append(entries, Entry{Name: name, Version: version})
		}
	}
	for _, name := range sortedKeys(doc.Tool.Poetry.Dependencies) {
		if name == "python" {
			continue
		}
		entries = append(entries, Entry{Name: name, Version: versionOf(doc.Tool.Poetry.Dependencies[name])})
	}
	if dev, ok := doc.Tool.Poetry.Group["dev"]; ok {
		for _, name := range sortedKeys(dev.Dependencies) {
			entries = append(entries, Entry{Name: name, Version: versionOf(dev.Dependencies[name]), Dev: true})
		}
	}
	return entries, nil
}

// ParseCargo reads Cargo dependencies and dev-dependencies.
func ParseCargo(data []byte) ([]Entry, error) {
	var doc struct {
		Dependencies    map[string]interface{} `toml:"dependencies"`
		DevDependencies map[string]interface{} `toml:"dev-dependencies"`
	}
	if err := burnttoml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse Cargo.toml: %w", err)
	}
	var entries []Entry
	for _, name := range sortedKeys(doc.Dependencies) {
		entries = append(entries, Entry{Name: name, Version: versionOf(doc.Dependencies[name])})
	}
	for _, name := range sortedKeys(doc.DevDependencies) {
		entries = append(entries, Entry{Name: name, Version: versionOf(doc.DevDependencies[name]), Dev: true})
	}
	return entries, nil
}

var gemPattern = regexp.MustCompile(`(?m)^\s*gem\s+["']([\w\-./]+)["'](?:\s*,\s*["']([^"']+)["'])?`)

// ParseGemfile reads gem declarations with a line pattern. Group
// blocks are not tracked, so everything lands in runtime.
func ParseGemfile(data []byte) ([]Entry, error) {
	var entries []Entry
	for _, m := range gemPattern.FindAllStringSubmatch(string(data), -1) {
		entries = append(entries, Entry{Name: m[1], Version: m[2]})
	}
	return entries, nil
}

// ParseComposer reads composer require and require-dev. The php
// platform pseudo-package is skipped.
func ParseComposer(data []byte) ([]Entry, error) {
	var doc struct {
		Require    map[string]string `json:"require"`
		RequireDev map[string]string `json:"require-dev"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse composer.json: %w", err)
	}
	var entries []Entry
	for _, name := range sortedKeys(doc.Require) {
		if name == "php" || strings.HasPrefix(name, "ext-") {
			continue
		}
		entries = append(entries, Entry{Name: name, Version: doc.Require[name]})
	}
	for _, name := range sortedKeys(doc.RequireDev) {
		entries = append(entries, Entry{Name: name, Version: doc.RequireDev[name], Dev: true})
	}
	return entries, nil
}

// ParsePom reads maven dependencies as groupId:artifactId pairs. The
// test scope maps to dev.
func ParsePom(data []byte) ([]Entry, error) {
	var doc struct {
		Dependencies struct {
			Dependency []struct {
				GroupID    string `xml:"groupId"`
				ArtifactID string `xml:"artifactId"`
				Version    string `xml:"version"`
				Scope      string `xml:"scope"`
			} `xml:"dependency"`
		} `xml:"dependencies"`
	}
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse pom.xml: %w", err)
	}
	var entries []Entry
	for _, dep := range doc.Dependencies.Dependency {
		if dep.GroupID == "" || dep.ArtifactID == "" {
			continue
		}
		entries = append(entries, Entry{
			Name:    dep.GroupID + ":" + dep.ArtifactID,
			Version: dep.Version,
			Dev:     dep.Scope == "test",
		})
	}
	return entries, nil
}

var gradlePattern = regexp.MustCompile(`(?m)^\s*(implementation|api|compileOnly|runtimeOnly|testImplementation)\s*\(?\s*['"]([^'"]+)['"]`)

// ParseGradle reads groovy and kotlin dependency declarations with a
// line pattern.
func ParseGradle(data []byte) ([]Entry, error) {
	var entries []Entry
	for _, m := range gradlePattern.FindAllStringSubmatch(string(data), -1) {
		coord := m[2]
		name, version := coord, ""
		if idx := strings.LastIndexByte(coord, ':'); idx > 0 && strings.Count(coord, ":") == 2 {
			name, version = coord[:idx], coord[idx+1:]
		}
		entries = append(entries, Entry{
			Name:    name,
			Version: version,
			Dev:     m[1] == "testImplementation",
		})
	}
	return entries, nil
}

// ParsePubspec reads dart dependencies and dev_dependencies.
func ParsePubspec(data []byte) ([]Entry, error) {
	var doc struct {
		Dependencies    map[string]interface{} `yaml:"dependencies"`
		DevDependencies map[string]interface{} `yaml:"dev_dependencies"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse pubspec.yaml: %w", err)
	}
	var entries []Entry
	for _, name := range sortedKeys(doc.Dependencies) {
		entries = append(entries, Entry{Name: name, Version: versionOf(doc.Dependencies[name])})
	}
	for _, name := range sortedKeys(doc.DevDependencies) {
		entries = append(entries, Entry{Name: name, Version: versionOf(doc.DevDependencies[name]), Dev: true})
	}
	return entries, nil
}

// versionOf extracts a version from a scalar or a table with a version
// key, the two shapes toml and yaml manifests use.
func versionOf(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case map[string]interface{}:
		if ver, ok := v["version"].(string); ok {
			return ver
		}
	}
	return ""
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
