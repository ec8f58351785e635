package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"riq/internal/cache"
	"riq/internal/estimate"
	"riq/internal/facts"
	"riq/internal/impact"
	"riq/internal/logging"
	"riq/internal/repoident"
	"riq/internal/walker"
)

// AnalyzeRequest carries everything one run needs.
type AnalyzeRequest struct {
	RepoRoot     string
	Requirement  string
	Changes      []estimate.ComponentChange
	Complexity   estimate.Complexity
	NFRs         []string
	RefreshFacts bool
}

// hasExplicitInputs reports whether the caller supplied change details
// beyond the requirement text. Impact artifacts are only cached when the
// requirement is the sole input, because the cache key covers identity
// and requirement only.
func (r AnalyzeRequest) hasExplicitInputs() bool {
	return len(r.Changes) > 0 || len(r.NFRs) > 0 || r.Complexity != (estimate.Complexity{})
}

// Options configures the orchestrator.
type Options struct {
	Walk    walker.Options
	Timeout time.Duration
}

// Orchestrator sequences the pipeline phases per run. Phases are an
// explicit ordered list, so the sequencing here stays structurally
// separate from the fan-out inside the facts phase.
type Orchestrator struct {
	registry *facts.Registry
	cache    *cache.Cache
	store    *Store
	opts     Options
	logger   *logging.Logger
}

// NewOrchestrator wires the orchestrator. Nil collaborators get inert
// defaults (disabled cache, memory-only store).
func NewOrchestrator(registry *facts.Registry, analysisCache *cache.Cache, store *Store, opts Options, logger *logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.Nop()
	}
	if registry == nil {
		registry = facts.DefaultRegistry(logger)
	}
	if analysisCache == nil {
		analysisCache = cache.New(cache.Options{}, logger)
	}
	if store == nil {
		store = NewStore("", logger)
	}
	if opts.Walk.MaxFilesPerCategory <= 0 && opts.Walk.MaxFileSizeBytes <= 0 {
		opts.Walk = walker.DefaultOptions()
	}
	return &Orchestrator{
		registry: registry,
		cache:    analysisCache,
		store:    store,
		opts:     opts,
		logger:   logger,
	}
}

// runContext carries intermediate outputs between phases of one run.
type runContext struct {
	req      AnalyzeRequest
	identity repoident.Identity
	facts    *facts.RepositoryFacts
	impact   *impact.ImpactAnalysis
}

// phaseStep is one entry in a run's phase list.
type phaseStep struct {
	phase Phase
	run   func(ctx context.Context, rc *runContext) error
}

// planPhases builds the phase list for a request. The impact phase only
// exists when there is a requirement to assess.
func (o *Orchestrator) planPhases(req AnalyzeRequest) []phaseStep {
	steps := []phaseStep{{phase: PhaseFacts, run: o.factsPhase}}
	if req.Requirement != "" {
		steps = append(steps, phaseStep{phase: PhaseImpact, run: o.impactPhase})
	}
	return append(steps, phaseStep{phase: PhaseCompose, run: o.composePhase})
}

// Analyze runs the full pipeline synchronously and returns the finished
// run (failed runs come back with their partial artifacts attached).
func (o *Orchestrator) Analyze(ctx context.Context, req AnalyzeRequest) (*Run, error) {
	run := NewRun(req.RepoRoot, req.Requirement)
	o.store.Save(run)

	err := o.execute(ctx, run, req)
	final, _ := o.store.Get(run.ID)
	return final, err
}

// Start registers a run and launches the pipeline on its own goroutine,
// detached from the caller's context so an ended HTTP request cannot
// cancel it. The configured timeout is the only bound.
func (o *Orchestrator) Start(ctx context.Context, req AnalyzeRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	run := NewRun(req.RepoRoot, req.Requirement)
	o.store.Save(run)

	go func() {
		runCtx := context.Background()
		cancel := context.CancelFunc(func() {})
		if o.opts.Timeout > 0 {
			runCtx, cancel = context.WithTimeout(runCtx, o.opts.Timeout)
		}
		defer cancel()
		_ = o.execute(runCtx, run, req)
	}()

	return run.ID, nil
}

// GetStatus returns the poll view for a run ID. Unknown IDs report
// not_found rather than an error.
func (o *Orchestrator) GetStatus(runID string) Status {
	run, ok := o.store.Get(runID)
	if !ok {
		return Status{RunID: runID, Status: StatusNotFound}
	}
	return run.StatusView()
}

// ListRuns returns recent runs, newest first.
func (o *Orchestrator) ListRuns(limit int) []RunSummary {
	return o.store.List(limit)
}

// Store exposes the run store for the HTTP layer's lifecycle management.
func (o *Orchestrator) Store() *Store {
	return o.store
}

func (o *Orchestrator) execute(ctx context.Context, run *Run, req AnalyzeRequest) error {
	rc := &runContext{req: req}
	return o.executeSteps(ctx, run, rc, o.planPhases(req))
}

// executeSteps drives the run through the given phase list. The run is
// mutated only here; every observable state lands in the store as a
// snapshot.
func (o *Orchestrator) executeSteps(ctx context.Context, run *Run, rc *runContext, steps []phaseStep) error {
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			o.failRun(run, rc, err)
			return err
		}
		if err := run.Begin(step.phase); err != nil {
			o.failRun(run, rc, err)
			return err
		}
		o.store.Save(run)
		o.logger.Debug("Phase started", map[string]interface{}{
			"runId": run.ID,
			"phase": string(step.phase),
		})

		start := time.Now()
		if err := step.run(ctx, rc); err != nil {
			o.logger.Error("Phase failed", map[string]interface{}{
				"runId":       run.ID,
				"phase":       string(step.phase),
				"error":       err.Error(),
				"duration_ms": time.Since(start).Milliseconds(),
			})
			o.failRun(run, rc, err)
			return err
		}

		o.attachArtifacts(run, rc)
		if err := run.MarkPhase(step.phase); err != nil {
			o.failRun(run, rc, err)
			return err
		}
		o.store.Save(run)
		o.logger.Info("Phase complete", map[string]interface{}{
			"runId":       run.ID,
			"phase":       string(step.phase),
			"progress":    run.Progress,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	}

	if err := run.MarkComplete(); err != nil {
		o.failRun(run, rc, err)
		return err
	}
	o.store.Save(run)
	o.store.SaveArtifacts(run)
	return nil
}

// failRun records the failure verbatim and keeps whatever artifacts the
// finished phases produced.
func (o *Orchestrator) failRun(run *Run, rc *runContext, err error) {
	o.attachArtifacts(run, rc)
	if markErr := run.MarkFailed(err); markErr != nil {
		o.logger.Warn("Could not mark run failed", map[string]interface{}{
			"runId": run.ID,
			"error": markErr.Error(),
		})
	}
	o.store.Save(run)
	o.store.SaveArtifacts(run)
}

func (o *Orchestrator) attachArtifacts(run *Run, rc *runContext) {
	if rc.facts != nil {
		run.Facts = rc.facts
	}
	if rc.impact != nil {
		run.Impact = rc.impact
	}
}

// factsPhase produces the repository facts artifact: cache read-through
// on the repo identity, full walk and detector fan-out on a miss.
func (o *Orchestrator) factsPhase(ctx context.Context, rc *runContext) error {
	identity, err := repoident.Compute(rc.req.RepoRoot)
	if err != nil {
		return err
	}
	rc.identity = identity

	key := cache.Key(identity, "")
	if !rc.req.RefreshFacts {
		if payload, ok := o.cache.Get(key); ok {
			var cached facts.RepositoryFacts
			if err := json.Unmarshal(payload, &cached); err == nil {
				rc.facts = &cached
				return nil
			}
			o.cache.Invalidate(key)
		}
	}

	inventory, err := walker.Walk(ctx, rc.req.RepoRoot, o.opts.Walk, o.logger)
	if err != nil {
		return err
	}
	source := &facts.Source{Root: rc.req.RepoRoot, Inventory: inventory, Logger: o.logger}
	artifact, err := o.registry.RunAll(ctx, source)
	if err != nil {
		return err
	}
	artifact.Repo = facts.RepoRef{Root: identity.Root, Name: identity.Name, Hash: identity.Hash}
	rc.facts = artifact
	return nil
}

// impactPhase runs the estimator and assessor over the facts.
func (o *Orchestrator) impactPhase(ctx context.Context, rc *runContext) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !rc.req.RefreshFacts && !rc.req.hasExplicitInputs() {
		key := cache.Key(rc.identity, rc.req.Requirement)
		if payload, ok := o.cache.Get(key); ok {
			var cached impact.ImpactAnalysis
			if err := json.Unmarshal(payload, &cached); err == nil {
				rc.impact = &cached
				return nil
			}
			o.cache.Invalidate(key)
		}
	}

	changes := rc.req.Changes
	if len(changes) == 0 {
		changes = impact.DeriveChanges(rc.req.Requirement, rc.facts)
		o.logger.Debug("derived component changes from requirement", map[string]interface{}{
			"count": len(changes),
		})
	}

	analysis := impact.Assess(impact.Input{
		Requirement: rc.req.Requirement,
		Changes:     changes,
		Complexity:  rc.req.Complexity,
		NFRs:        rc.req.NFRs,
		Facts:       rc.facts,
	})
	rc.impact = &analysis
	return nil
}

// composePhase writes the finished artifacts through the cache. Run
// persistence itself is handled by the store as states change.
func (o *Orchestrator) composePhase(ctx context.Context, rc *runContext) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if rc.facts != nil {
		payload, err := json.Marshal(rc.facts)
		if err != nil {
			return fmt.Errorf("failed to encode facts artifact: %w", err)
		}
		o.cache.Set(cache.Key(rc.identity, ""), cache.KindFacts, payload)
	}

	if rc.impact != nil && !rc.req.hasExplicitInputs() {
		payload, err := json.Marshal(rc.impact)
		if err != nil {
			return fmt.Errorf("failed to encode impact artifact: %w", err)
		}
		o.cache.Set(cache.Key(rc.identity, rc.req.Requirement), cache.KindImpact, payload)
	}
	return nil
}
