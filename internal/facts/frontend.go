package facts

import (
	"context"
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"
)

// frontendFrameworkChecks is ordered so meta-frameworks claim their
// base framework too: a next app is also a react app.
var frontendFrameworkChecks = []struct {
	Dep    string
	Labels []string
}{
	{"next", []string{"next", "react"}},
	{"react", []string{"react"}},
	{"nuxt", []string{"nuxt", "vue"}},
	{"vue", []string{"vue"}},
	{"@angular/core", []string{"angular"}},
	{"@sveltejs/kit", []string{"sveltekit", "svelte"}},
	{"svelte", []string{"svelte"}},
}

var bundlerChecks = []struct {
	Dep        string
	ConfigStem string
	Label      string
}{
	{"vite", "vite.config", "vite"},
	{"webpack", "webpack.config", "webpack"},
	{"rollup", "rollup.config", "rollup"},
	{"esbuild", "", "esbuild"},
	{"parcel", "", "parcel"},
}

var uiLibraryChecks = []struct {
	Dep   string
	Label string
}{
	{"tailwindcss", "tailwind"},
	{"@mui/material", "mui"},
	{"antd", "antd"},
	{"@chakra-ui/react", "chakra"},
	{"bootstrap", "bootstrap"},
}

var stateManagementChecks = []struct {
	Dep   string
	Label string
}{
	{"@reduxjs/toolkit", "redux"},
	{"redux", "redux"},
	{"zustand", "zustand"},
	{"mobx", "mobx"},
	{"pinia", "pinia"},
	{"vuex", "vuex"},
}

var componentDirCandidates = []string{"src/components", "components", "app/components"}

// FrontendSurfaceExtractor detects frontend frameworks, bundlers, UI
// libraries, and state management from package manifests.
type FrontendSurfaceExtractor struct{}

func (d *FrontendSurfaceExtractor) Name() string { return "frontend" }

func (d *FrontendSurfaceExtractor) Detect(ctx context.Context, src *Source) (*PartialFacts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := &PartialFacts{}

	for _, fi := range src.Inventory.ByName("package.json") {
		data, err := src.Read(fi)
		if err != nil {
			continue
		}
		var pkg struct {
			Dependencies    map[string]string `json:"dependencies"`
			DevDependencies map[string]string `json:"devDependencies"`
		}
		if err := json.Unmarshal(data, &pkg); err != nil {
			p.warnf("package.json %s unparseable: %v", fi.Path, err)
			continue
		}
		has := func(name string) bool {
			if _, ok := pkg.Dependencies[name]; ok {
				return true
			}
			_, ok := pkg.DevDependencies[name]
			return ok
		}

		for _, check := range frontendFrameworkChecks {
			if has(check.Dep) {
				p.Frontend.Frameworks = append(p.Frontend.Frameworks, check.Labels...)
				break
			}
		}
		for _, check := range bundlerChecks {
			if has(check.Dep) {
				p.Frontend.Bundlers = append(p.Frontend.Bundlers, check.Label)
			}
		}
		for _, check := range uiLibraryChecks {
			if has(check.Dep) {
				p.Frontend.UILibraries = append(p.Frontend.UILibraries, check.Label)
			}
		}
		for _, check := range stateManagementChecks {
			if has(check.Dep) {
				p.Frontend.StateManagement = append(p.Frontend.StateManagement, check.Label)
			}
		}
	}

	// Bundler config files count even when the dep lives in a parent
	// workspace manifest the walk did not keep.
	for _, fi := range src.Inventory.Files {
		base := fi.Path
		if idx := strings.LastIndex(fi.Path, "/"); idx >= 0 {
			base = fi.Path[idx+1:]
		}
		for _, check := range bundlerChecks {
			if check.ConfigStem != "" && strings.HasPrefix(base, check.ConfigStem+".") {
				p.Frontend.Bundlers = append(p.Frontend.Bundlers, check.Label)
			}
		}
	}

	d.detectFlutter(src, p)

	for _, dir := range componentDirCandidates {
		if src.Inventory.HasDir(dir) {
			p.Frontend.ComponentDirs = append(p.Frontend.ComponentDirs, dir)
		}
	}

	return p, nil
}

// detectFlutter reads pubspec.yaml for a flutter dependency.
func (d *FrontendSurfaceExtractor) detectFlutter(src *Source, p *PartialFacts) {
	fi, ok := src.Inventory.FirstByName("pubspec.yaml")
	if !ok {
		return
	}
	data, err := src.Read(fi)
	if err != nil {
		return
	}
	var pubspec struct {
		Dependencies map[string]interface{} `yaml:"dependencies"`
	}
	if err := yaml.Unmarshal(data, &pubspec); err != nil {
		p.warnf("pubspec.yaml %s unparseable: %v", fi.Path, err)
		return
	}
	if _, ok := pubspec.Dependencies["flutter"]; ok {
		p.Frontend.Frameworks = append(p.Frontend.Frameworks, "flutter")
	}
}
