// Package repoident derives a stable identity for a repository state.
// The hash folds together the canonical root, every manifest file's
// size and mtime, and the git HEAD when one exists. An unchanged repo
// keeps its identity; any manifest change produces a new one, which is
// exactly the invalidation granularity cache keys need.
package repoident

import (
	"crypto/sha256"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"riq/internal/walker"
)

// Identity names one repository state.
type Identity struct {
	Root string `json:"root"`
	Name string `json:"name"`
	Hash string `json:"hash"`
}

// FactsID renders the stable artifact ID for this repository state.
func (id Identity) FactsID() string {
	return "riq:facts:" + id.Hash
}

// maxIdentDepth bounds the manifest stat scan. Manifests deeper than
// this describe vendored or generated trees, not the project.
const maxIdentDepth = 3

// Compute derives the identity of the repository at repoRoot. The scan
// only stats manifest files, so it is cheap enough to run before every
// cache lookup.
func Compute(repoRoot string) (Identity, error) {
	abs, err := filepath.Abs(repoRoot)
	if err != nil {
		return Identity{}, err
	}

	var b strings.Builder
	b.WriteString(abs)
	b.WriteByte('\n')
	for _, line := range manifestStats(abs) {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if head := gitHead(abs); head != "" {
		b.WriteString(head)
		b.WriteByte('\n')
	}

	return Identity{
		Root: abs,
		Name: filepath.Base(abs),
		Hash: hashString(b.String()),
	}, nil
}

// manifestStats returns one "path:size:mtime" line per manifest file,
// sorted so the fold is order-independent.
func manifestStats(root string) []string {
	var lines []string

	var visit func(dir string, depth int)
	visit = func(dir string, depth int) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() {
				if depth >= maxIdentDepth || walker.IgnoredDir(name) {
					continue
				}
				visit(filepath.Join(dir, name), depth+1)
				continue
			}
			if walker.Classify(name) != walker.CategoryManifest {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			rel, err := filepath.Rel(root, filepath.Join(dir, name))
			if err != nil {
				continue
			}
			lines = append(lines, fmt.Sprintf("%s:%d:%d",
				filepath.ToSlash(rel), info.Size(), info.ModTime().UnixNano()))
		}
	}
	visit(root, 0)

	sort.Strings(lines)
	return lines
}

// gitHead returns the current HEAD commit, or empty when the directory
// is not a git repository or git is unavailable. Identity never fails
// over git.
func gitHead(repoRoot string) string {
	if _, err := os.Stat(filepath.Join(repoRoot, ".git")); err != nil {
		return ""
	}
	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = repoRoot
	output, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(output))
}

// hashString returns the first 16 hex chars of the sha256 digest, the
// same short form the rest of the system uses for repo hashes.
func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", sum[:8])
}
