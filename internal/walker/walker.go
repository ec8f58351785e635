// Package walker performs the single bounded traversal of a repository that
// all fact detectors share. The walk classifies files into coarse categories
// and enforces per-category and per-file cost caps so analysis stays cheap
// even on very large repositories.
package walker

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"riq/internal/config"
	riqerrors "riq/internal/errors"
	"riq/internal/logging"
)

// Category classifies a file by the kind of signal it can carry
type Category string

const (
	// CategorySource is application/library source code
	CategorySource Category = "source"
	// CategoryManifest is a dependency manifest (package.json, go.mod, ...)
	CategoryManifest Category = "manifest"
	// CategoryConfig is build/deploy/tool configuration
	CategoryConfig Category = "config"
	// CategorySchema is database or API schema (SQL, prisma, proto, graphql)
	CategorySchema Category = "schema"
	// CategoryDoc is documentation
	CategoryDoc Category = "doc"
	// CategoryOther is anything else worth keeping in the inventory
	CategoryOther Category = "other"
)

// FileInfo describes one inventoried file
type FileInfo struct {
	// Path is repo-relative with forward slashes
	Path string
	// AbsPath is the absolute path on disk
	AbsPath string
	// Size in bytes
	Size int64
	// Category assigned during the walk
	Category Category
	// Ext is the lowercased file extension including the dot
	Ext string
}

// Inventory is the shared result of one repository walk
type Inventory struct {
	Files      []FileInfo
	ByCategory map[Category][]FileInfo
	Dirs       []string

	Truncated         bool
	SkippedLarge      int
	SkippedUnreadable int
	TotalSeen         int
}

// Options bound the cost of a walk
type Options struct {
	MaxFilesPerCategory int
	MaxFileSizeBytes    int64
	SampleEvery         int
	Excludes            []string
}

// DefaultOptions returns the standard walk bounds
func DefaultOptions() Options {
	return Options{
		MaxFilesPerCategory: 300,
		MaxFileSizeBytes:    1 << 20,
		SampleEvery:         0,
	}
}

// OptionsFromConfig maps the analysis config section onto walk options
func OptionsFromConfig(cfg *config.AnalysisConfig) Options {
	opts := DefaultOptions()
	if cfg == nil {
		return opts
	}
	if cfg.MaxFilesPerCategory > 0 {
		opts.MaxFilesPerCategory = cfg.MaxFilesPerCategory
	}
	if cfg.MaxFileSizeBytes > 0 {
		opts.MaxFileSizeBytes = cfg.MaxFileSizeBytes
	}
	if cfg.SampleEvery > 0 {
		opts.SampleEvery = cfg.SampleEvery
	}
	opts.Excludes = cfg.Exclude
	return opts
}

// ignoreDirs are never descended into
var ignoreDirs = map[string]bool{
	"node_modules": true, ".git": true, "__pycache__": true,
	"vendor": true, "dist": true, "build": true, "target": true,
	".next": true, ".nuxt": true, "venv": true, ".venv": true,
	".idea": true, ".vscode": true, "coverage": true,
	".cache": true, ".tmp": true, ".terraform": true,
	".dart_tool": true, ".riq": true,
}

// hiddenDirAllowlist keeps CI directories visible despite the hidden-dir rule
var hiddenDirAllowlist = map[string]bool{
	".github":   true,
	".circleci": true,
}

// IgnoredDir reports whether a directory name is excluded from every
// scan: dependency trees, build output, VCS metadata, hidden dirs off
// the allowlist.
func IgnoredDir(name string) bool {
	if ignoreDirs[name] {
		return true
	}
	return strings.HasPrefix(name, ".") && !hiddenDirAllowlist[name]
}

// manifestNames maps exact basenames to the manifest category
var manifestNames = map[string]bool{
	"package.json": true, "go.mod": true, "go.work": true,
	"Cargo.toml": true, "pyproject.toml": true, "requirements.txt": true,
	"Gemfile": true, "composer.json": true, "pom.xml": true,
	"build.gradle": true, "build.gradle.kts": true, "pubspec.yaml": true,
	"pnpm-workspace.yaml": true, "lerna.json": true, "mix.exs": true,
}

// configNames maps exact basenames to the config category
var configNames = map[string]bool{
	"Dockerfile": true, "docker-compose.yml": true, "docker-compose.yaml": true,
	"Jenkinsfile": true, "Makefile": true, "serverless.yml": true,
	"serverless.yaml": true, "vercel.json": true, "netlify.toml": true,
	"Chart.yaml": true, ".gitlab-ci.yml": true, "azure-pipelines.yml": true,
	"Pulumi.yaml": true,
}

var sourceExts = map[string]bool{
	".go": true, ".ts": true, ".tsx": true, ".js": true, ".jsx": true,
	".mjs": true, ".cjs": true, ".py": true, ".rb": true, ".rs": true,
	".java": true, ".kt": true, ".kts": true, ".php": true, ".cs": true,
	".swift": true, ".dart": true, ".scala": true, ".ex": true, ".exs": true,
	".vue": true, ".svelte": true,
}

var schemaExts = map[string]bool{
	".sql": true, ".prisma": true, ".graphql": true, ".graphqls": true,
	".proto": true,
}

var configExts = map[string]bool{
	".yml": true, ".yaml": true, ".toml": true, ".ini": true,
	".conf": true, ".tf": true, ".json": true,
}

var docExts = map[string]bool{
	".md": true, ".rst": true, ".adoc": true, ".txt": true,
}

// binaryExts are skipped entirely
var binaryExts = map[string]bool{
	".exe": true, ".dll": true, ".so": true, ".dylib": true,
	".a": true, ".o": true, ".obj": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true,
	".ico": true, ".svg": true, ".woff": true, ".woff2": true, ".ttf": true,
	".pdf": true, ".zip": true, ".tar": true, ".gz": true, ".bz2": true,
	".mp3": true, ".mp4": true, ".avi": true, ".mov": true,
	".wasm": true, ".class": true, ".pyc": true, ".lock": true,
}

// Classify assigns a category from the file name alone
func Classify(name string) Category {
	base := filepath.Base(name)
	if manifestNames[base] {
		return CategoryManifest
	}
	if configNames[base] {
		return CategoryConfig
	}
	ext := strings.ToLower(filepath.Ext(base))
	switch {
	case schemaExts[ext]:
		return CategorySchema
	case sourceExts[ext]:
		return CategorySource
	case configExts[ext]:
		return CategoryConfig
	case docExts[ext]:
		return CategoryDoc
	default:
		return CategoryOther
	}
}

const maxDirs = 5000

// Walk traverses the repository once and produces the shared inventory.
// Per-file errors are logged and counted, never fatal. Hitting a cap or the
// context deadline marks the inventory truncated instead of failing.
func Walk(ctx context.Context, repoRoot string, opts Options, logger *logging.Logger) (*Inventory, error) {
	inv := &Inventory{
		ByCategory: make(map[Category][]FileInfo),
	}

	ignoreMap := make(map[string]bool, len(ignoreDirs)+len(opts.Excludes))
	for dir := range ignoreDirs {
		ignoreMap[dir] = true
	}
	for _, dir := range opts.Excludes {
		ignoreMap[dir] = true
	}

	sourceSeen := 0

	err := filepath.WalkDir(repoRoot, func(path string, d fs.DirEntry, err error) error {
		// Check context for timeout
		select {
		case <-ctx.Done():
			inv.Truncated = true
			logger.Warn("walk stopped at deadline", map[string]interface{}{
				"filesSeen": inv.TotalSeen,
			})
			return filepath.SkipAll
		default:
		}

		if err != nil {
			if path == repoRoot {
				return err
			}
			inv.SkippedUnreadable++
			logger.Warn("cannot access path, skipping", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil //nolint:nilerr // intentionally continue on walk errors
		}

		rel, relErr := filepath.Rel(repoRoot, path)
		if relErr != nil {
			return nil //nolint:nilerr // WalkDir only yields paths under repoRoot
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel == "." {
				return nil
			}
			name := d.Name()
			if ignoreMap[name] {
				return filepath.SkipDir
			}
			if strings.HasPrefix(name, ".") && !hiddenDirAllowlist[name] {
				return filepath.SkipDir
			}
			// Directory symlinks are not followed
			if d.Type()&fs.ModeSymlink != 0 {
				return filepath.SkipDir
			}
			if len(inv.Dirs) < maxDirs {
				inv.Dirs = append(inv.Dirs, rel)
			}
			return nil
		}

		inv.TotalSeen++

		ext := strings.ToLower(filepath.Ext(path))
		if binaryExts[ext] {
			return nil
		}

		info, statErr := d.Info()
		if statErr != nil {
			inv.SkippedUnreadable++
			logger.Warn("cannot stat file, skipping", map[string]interface{}{
				"path":  rel,
				"error": statErr.Error(),
			})
			return nil //nolint:nilerr // intentionally continue on stat errors
		}

		if info.Size() > opts.MaxFileSizeBytes {
			inv.SkippedLarge++
			logger.Debug("skipping file: too large", map[string]interface{}{
				"file": rel,
				"size": info.Size(),
			})
			return nil
		}

		category := Classify(path)

		// Optional sampling applies to source files only; manifests and
		// schemas always carry signal worth keeping.
		if category == CategorySource && opts.SampleEvery > 1 {
			sourceSeen++
			if sourceSeen%opts.SampleEvery != 0 {
				return nil
			}
		}

		if len(inv.ByCategory[category]) >= opts.MaxFilesPerCategory {
			inv.Truncated = true
			return nil
		}

		fi := FileInfo{
			Path:     rel,
			AbsPath:  path,
			Size:     info.Size(),
			Category: category,
			Ext:      ext,
		}
		inv.Files = append(inv.Files, fi)
		inv.ByCategory[category] = append(inv.ByCategory[category], fi)
		return nil
	})

	if err != nil {
		return nil, riqerrors.NewRiqError(riqerrors.WalkFailed,
			"repository walk failed", err, nil)
	}

	logger.Debug("walk completed", map[string]interface{}{
		"files":     len(inv.Files),
		"dirs":      len(inv.Dirs),
		"seen":      inv.TotalSeen,
		"truncated": inv.Truncated,
	})

	return inv, nil
}

// ReadCapped reads at most max bytes of an inventoried file
func ReadCapped(fi FileInfo, max int64) ([]byte, error) {
	f, err := os.Open(fi.AbsPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	return io.ReadAll(io.LimitReader(f, max))
}

// ByName returns all inventoried files with the given base name
func (inv *Inventory) ByName(name string) []FileInfo {
	var out []FileInfo
	for _, fi := range inv.Files {
		if filepath.Base(fi.Path) == name {
			out = append(out, fi)
		}
	}
	return out
}

// FirstByName returns the first inventoried file with the given base name
func (inv *Inventory) FirstByName(name string) (FileInfo, bool) {
	for _, fi := range inv.Files {
		if filepath.Base(fi.Path) == name {
			return fi, true
		}
	}
	return FileInfo{}, false
}

// ByExt returns all inventoried files with the given extension (".sql")
func (inv *Inventory) ByExt(ext string) []FileInfo {
	var out []FileInfo
	for _, fi := range inv.Files {
		if fi.Ext == ext {
			out = append(out, fi)
		}
	}
	return out
}

// HasDir reports whether the repo-relative directory was inventoried
func (inv *Inventory) HasDir(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, d := range inv.Dirs {
		if d == rel {
			return true
		}
	}
	return false
}

// DirsWithBase returns inventoried directories whose base name matches
func (inv *Inventory) DirsWithBase(base string) []string {
	var out []string
	for _, d := range inv.Dirs {
		if filepath.Base(d) == base {
			out = append(out, d)
		}
	}
	return out
}
