package facts

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"riq/internal/logging"
	"riq/internal/walker"
)

// maxDetectorRead caps how much of any one file a detector will read.
const maxDetectorRead = 1 << 20

// detectorConcurrency bounds the fan-out so large repositories do not
// open six full scans worth of file handles at once.
const detectorConcurrency = 4

// Source is the read-only view detectors work from. All file access
// goes through the shared inventory so every detector sees the same
// bounded snapshot of the repository.
type Source struct {
	Root      string
	Inventory *walker.Inventory
	Logger    *logging.Logger
}

// Read returns up to 1 MiB of a file's content. Oversize files are
// truncated, not failed.
func (s *Source) Read(fi walker.FileInfo) ([]byte, error) {
	return walker.ReadCapped(fi, maxDetectorRead)
}

// Detector extracts one category of facts from a repository. Detect
// must tolerate missing files and malformed content; it returns an
// error only when it cannot produce any partial result at all.
type Detector interface {
	Name() string
	Detect(ctx context.Context, src *Source) (*PartialFacts, error)
}

// Registry holds detectors in priority order. Registration order is
// merge order, so single-valued facts favor earlier detectors.
type Registry struct {
	detectors []Detector
	logger    *logging.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Registry{logger: logger}
}

// Register appends a detector to the registry.
func (r *Registry) Register(d Detector) {
	r.detectors = append(r.detectors, d)
}

// Names returns the registered detector names in priority order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.detectors))
	for i, d := range r.detectors {
		names[i] = d.Name()
	}
	return names
}

// DefaultRegistry wires the standard detectors in their fixed priority
// order: structure, database, api, frontend, patterns, dependencies.
func DefaultRegistry(logger *logging.Logger) *Registry {
	r := NewRegistry(logger)
	r.Register(&StructuralDetector{})
	r.Register(&SchemaExtractor{})
	r.Register(&APISurfaceExtractor{})
	r.Register(&FrontendSurfaceExtractor{})
	r.Register(&PatternClassifier{})
	r.Register(&DependencyInventory{})
	return r
}

// RunAll executes every registered detector and merges their output
// into one artifact. Detectors run concurrently but results are merged
// by registration index, so the artifact is deterministic regardless
// of completion order. A detector error or panic degrades to a warning
// on the artifact; sibling detectors are unaffected.
func (r *Registry) RunAll(ctx context.Context, src *Source) (*RepositoryFacts, error) {
	results := make([]*PartialFacts, len(r.detectors))
	faults := make([]string, len(r.detectors))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(detectorConcurrency)

	for i, d := range r.detectors {
		g.Go(func() error {
			defer func() {
				if rec := recover(); rec != nil {
					faults[i] = fmt.Sprintf("detector %s panicked: %v", d.Name(), rec)
					r.logger.Error("Detector panicked", map[string]interface{}{
						"detector": d.Name(),
						"panic":    fmt.Sprintf("%v", rec),
					})
				}
			}()

			start := time.Now()
			part, err := d.Detect(gctx, src)
			if err != nil {
				faults[i] = fmt.Sprintf("detector %s failed: %v", d.Name(), err)
				r.logger.Warn("Detector failed", map[string]interface{}{
					"detector": d.Name(),
					"error":    err.Error(),
				})
				return nil //nolint:nilerr // detector faults degrade to artifact warnings
			}
			results[i] = part
			r.logger.Debug("Detector finished", map[string]interface{}{
				"detector":    d.Name(),
				"duration_ms": time.Since(start).Milliseconds(),
			})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	artifact := &RepositoryFacts{
		SchemaVersion: SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
	}
	parts := make([]PartialFacts, 0, len(r.detectors))
	for i := range r.detectors {
		if faults[i] != "" {
			parts = append(parts, PartialFacts{Warnings: []string{faults[i]}})
			continue
		}
		if results[i] != nil {
			parts = append(parts, *results[i])
		}
	}
	Merge(artifact, parts)
	return artifact, nil
}
