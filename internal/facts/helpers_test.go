package facts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"riq/internal/logging"
	"riq/internal/walker"
)

// newTestSource lays out files in a temp dir, walks it, and wraps the
// result in a detector source.
func newTestSource(t *testing.T, files map[string]string) *Source {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", rel, err)
		}
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	inv, err := walker.Walk(context.Background(), root, walker.DefaultOptions(), logging.Nop())
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	return &Source{Root: root, Inventory: inv, Logger: logging.Nop()}
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

func hasRoute(routes []Route, method, path string) bool {
	for _, r := range routes {
		if r.Method == method && r.Path == path {
			return true
		}
	}
	return false
}
