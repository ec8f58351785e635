package facts

import (
	"context"
	"testing"
)

func TestStructuralDetectorWorkspaces(t *testing.T) {
	src := newTestSource(t, map[string]string{
		"package.json": `{"name": "mono", "workspaces": ["packages/*", "apps/*"]}`,
		"packages/a/package.json": `{"name": "a"}`,
		"apps/web/package.json":   `{"name": "web"}`,
	})

	part, err := (&StructuralDetector{}).Detect(context.Background(), src)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if !part.Structure.Monorepo {
		t.Error("workspaces declaration should mark a monorepo")
	}
	if !containsString(part.Structure.Workspaces, "packages/*") {
		t.Errorf("Workspaces = %v, missing packages/*", part.Structure.Workspaces)
	}
	if part.Structure.Layout != "monorepo" {
		t.Errorf("Layout = %q, want monorepo for apps/ + packages/", part.Structure.Layout)
	}
}

func TestStructuralDetectorGoWork(t *testing.T) {
	src := newTestSource(t, map[string]string{
		"go.work":         "go 1.24\n\nuse (\n\t./svc\n\t./lib\n)\n",
		"svc/go.mod":      "module example.com/svc\n\ngo 1.24\n",
		"lib/go.mod":      "module example.com/lib\n\ngo 1.24\n",
		"svc/main.go":     "package main\n",
		"lib/lib.go":      "package lib\n",
	})

	part, err := (&StructuralDetector{}).Detect(context.Background(), src)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if !part.Structure.Monorepo {
		t.Error("go.work should mark a monorepo")
	}
	if !containsString(part.Structure.Workspaces, "svc") || !containsString(part.Structure.Workspaces, "lib") {
		t.Errorf("Workspaces = %v, want svc and lib", part.Structure.Workspaces)
	}
}

func TestStructuralDetectorLanguageCensus(t *testing.T) {
	src := newTestSource(t, map[string]string{
		"a.go":      "package a\n",
		"b.go":      "package a\n",
		"c.go":      "package a\n",
		"x.ts":      "export {}\n",
		"y.ts":      "export {}\n",
		"single.py": "pass\n",
	})

	part, err := (&StructuralDetector{}).Detect(context.Background(), src)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	langs := part.Structure.Languages
	if len(langs) != 3 {
		t.Fatalf("Languages = %v, want 3 entries", langs)
	}
	if langs[0] != "go" || langs[1] != "typescript" || langs[2] != "python" {
		t.Errorf("Languages = %v, want count-descending order [go typescript python]", langs)
	}
}

func TestStructuralDetectorLayouts(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  string
	}{
		{
			name: "go standard",
			files: map[string]string{
				"cmd/app/main.go":    "package main\n",
				"internal/core/c.go": "package core\n",
			},
			want: "go-standard",
		},
		{
			name: "src layout",
			files: map[string]string{
				"src/index.ts": "export {}\n",
			},
			want: "src-layout",
		},
		{
			name: "app layout",
			files: map[string]string{
				"app/models/user.rb": "class User\nend\n",
			},
			want: "app-layout",
		},
		{
			name:  "flat",
			files: map[string]string{"main.py": "pass\n"},
			want:  "flat",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newTestSource(t, tt.files)
			part, err := (&StructuralDetector{}).Detect(context.Background(), src)
			if err != nil {
				t.Fatalf("Detect: %v", err)
			}
			if part.Structure.Layout != tt.want {
				t.Errorf("Layout = %q, want %q", part.Structure.Layout, tt.want)
			}
		})
	}
}

func TestStructuralDetectorEntryPointsAndTestDirs(t *testing.T) {
	src := newTestSource(t, map[string]string{
		"main.go":                 "package main\n",
		"src/index.ts":            "export {}\n",
		"tests/unit_test.py":      "pass\n",
		"deep/very/far/main.go":   "package main\n",
		"__tests__/app.test.js":   "test()\n",
	})

	part, err := (&StructuralDetector{}).Detect(context.Background(), src)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if !containsString(part.Structure.EntryPoints, "main.go") {
		t.Errorf("EntryPoints = %v, missing main.go", part.Structure.EntryPoints)
	}
	if !containsString(part.Structure.EntryPoints, "src/index.ts") {
		t.Errorf("EntryPoints = %v, missing src/index.ts", part.Structure.EntryPoints)
	}
	if containsString(part.Structure.EntryPoints, "deep/very/far/main.go") {
		t.Error("deeply nested main.go should not count as an entry point")
	}
	if !containsString(part.Structure.TestDirs, "tests") || !containsString(part.Structure.TestDirs, "__tests__") {
		t.Errorf("TestDirs = %v, want tests and __tests__", part.Structure.TestDirs)
	}
}
