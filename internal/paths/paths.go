// Package paths guards every filesystem access riq makes against the
// repository under analysis. All detector file access goes through
// JoinRepoPath so nothing can escape the repository root.
package paths

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	riqerrors "riq/internal/errors"
)

const (
	// RiqDirName is the per-repo state directory
	RiqDirName = ".riq"

	// CacheSubdir holds the analysis cache inside the state directory
	CacheSubdir = "cache"

	// DatabaseFile is the sqlite database file name
	DatabaseFile = "riq.db"
)

// EnsureRepoRoot verifies that the given path exists and is a directory,
// and returns its absolute form.
func EnsureRepoRoot(repoRoot string) (string, error) {
	abs, err := filepath.Abs(repoRoot)
	if err != nil {
		return "", riqerrors.NewRiqError(riqerrors.RepoNotFound,
			fmt.Sprintf("cannot resolve repository root %q", repoRoot), err, nil)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", riqerrors.NewRiqError(riqerrors.RepoNotFound,
			fmt.Sprintf("repository root %q does not exist", repoRoot), err,
			riqerrors.GetSuggestedFixes(riqerrors.RepoNotFound))
	}
	if !info.IsDir() {
		return "", riqerrors.NewRiqError(riqerrors.RepoNotFound,
			fmt.Sprintf("repository root %q is not a directory", repoRoot), nil,
			riqerrors.GetSuggestedFixes(riqerrors.RepoNotFound))
	}
	return abs, nil
}

// CanonicalizePath converts an absolute path to a repo-relative canonical path
// - Resolves symlinks to real paths
// - Makes path relative to repo root
// - Converts backslashes to forward slashes
// - Returns repo-relative path with forward slashes
func CanonicalizePath(absolutePath string, repoRoot string) (string, error) {
	// Resolve symlinks
	resolved, err := filepath.EvalSymlinks(absolutePath)
	if err != nil {
		// If the file doesn't exist yet, use the path as-is
		if os.IsNotExist(err) {
			resolved = absolutePath
		} else {
			return "", err
		}
	}

	// Make path relative to repo root
	repoRootResolved, err := filepath.EvalSymlinks(repoRoot)
	if err != nil {
		if os.IsNotExist(err) {
			repoRootResolved = repoRoot
		} else {
			return "", err
		}
	}

	relativePath, err := filepath.Rel(repoRootResolved, resolved)
	if err != nil {
		return "", err
	}

	// Convert to forward slashes (platform independent)
	canonicalPath := filepath.ToSlash(relativePath)

	return canonicalPath, nil
}

// IsWithinRepo checks if a path is within the repository root. A symlink
// that points outside the repository counts as outside.
func IsWithinRepo(path string, repoRoot string) bool {
	canonical, err := CanonicalizePath(path, repoRoot)
	if err != nil {
		return false
	}

	// Path is outside repo if it starts with ..
	return canonical != ".." && !strings.HasPrefix(canonical, "../")
}

// NormalizePath normalizes a path by converting backslashes to forward slashes
// This is useful for paths that are already relative but need normalization
func NormalizePath(path string) string {
	return filepath.ToSlash(filepath.Clean(path))
}

// JoinRepoPath joins a repo root with a canonical path and verifies the
// result stays inside the repository. Escape attempts return PATH_ESCAPE.
func JoinRepoPath(repoRoot string, canonicalPath string) (string, error) {
	// Ensure we use forward slashes in the canonical path
	normalizedPath := strings.ReplaceAll(canonicalPath, "\\", "/")
	if filepath.IsAbs(normalizedPath) {
		return "", riqerrors.NewRiqError(riqerrors.PathEscape,
			fmt.Sprintf("absolute path %q not allowed inside repository", canonicalPath), nil, nil)
	}
	// Convert to OS-specific path separator for joining
	parts := strings.Split(normalizedPath, "/")
	joined := filepath.Join(append([]string{repoRoot}, parts...)...)

	if !IsWithinRepo(joined, repoRoot) {
		return "", riqerrors.NewRiqError(riqerrors.PathEscape,
			fmt.Sprintf("path %q resolves outside repository", canonicalPath), nil, nil)
	}
	return joined, nil
}

// ComputeRepoHash returns a short stable hash for a repository path
func ComputeRepoHash(repoRoot string) string {
	hash := sha256.Sum256([]byte(filepath.Clean(repoRoot)))
	return fmt.Sprintf("%x", hash[:8])
}

// GetLocalRiqDir returns the repo-local state directory (<repo>/.riq)
func GetLocalRiqDir(repoRoot string) string {
	return filepath.Join(repoRoot, RiqDirName)
}

// GetLocalDatabasePath returns the repo-local sqlite path (<repo>/.riq/cache/riq.db)
func GetLocalDatabasePath(repoRoot string) string {
	return filepath.Join(repoRoot, RiqDirName, CacheSubdir, DatabaseFile)
}

// EnsureLocalRiqDir creates the repo-local state directory tree
func EnsureLocalRiqDir(repoRoot string) (string, error) {
	dir := filepath.Join(GetLocalRiqDir(repoRoot), CacheSubdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return GetLocalRiqDir(repoRoot), nil
}
