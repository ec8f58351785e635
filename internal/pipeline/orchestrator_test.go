package pipeline

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"riq/internal/cache"
	"riq/internal/errors"
	"riq/internal/estimate"
	"riq/internal/facts"
	"riq/internal/logging"
)

// writeFixtureRepo lays out a small express+react+prisma project with
// enough surface for every detector family to find something.
func writeFixtureRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	files := map[string]string{
		"package.json": `{
  "name": "shop",
  "dependencies": {
    "express": "^4.18.2",
    "react": "^18.2.0"
  },
  "devDependencies": {
    "jest": "^29.7.0"
  }
}
`,
		"prisma/schema.prisma": `datasource db {
  provider = "postgresql"
  url      = env("DATABASE_URL")
}

model User {
  id    Int    @id
  email String
}

model Order {
  id     Int @id
  userId Int
}
`,
		"src/routes/users.js": `const router = require('express').Router();
router.get('/users', listUsers);
router.post('/users', createUser);
module.exports = router;
`,
	}
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func newTestOrchestrator(t *testing.T, analysisCache *cache.Cache) *Orchestrator {
	t.Helper()
	store := NewStore("", nil)
	t.Cleanup(func() { _ = store.Close() })
	return NewOrchestrator(nil, analysisCache, store, Options{}, logging.Nop())
}

func hasString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func hasRoute(routes []facts.Route, want string) bool {
	for _, r := range routes {
		if r.String() == want {
			return true
		}
	}
	return false
}

func TestOrchestratorAnalyzeFactsOnly(t *testing.T) {
	repo := writeFixtureRepo(t)
	o := newTestOrchestrator(t, nil)

	run, err := o.Analyze(context.Background(), AnalyzeRequest{RepoRoot: repo})
	if err != nil {
		t.Fatalf("Analyze() = %v", err)
	}
	if run.State != StateComplete || run.Progress != "2/2" {
		t.Fatalf("State/Progress = %s/%s", run.State, run.Progress)
	}
	if run.Impact != nil {
		t.Errorf("Impact = %+v, want none without a requirement", run.Impact)
	}

	f := run.Facts
	if f == nil {
		t.Fatal("Facts missing on completed run")
	}
	if f.SchemaVersion != facts.SchemaVersion {
		t.Errorf("SchemaVersion = %q", f.SchemaVersion)
	}
	if f.Repo.Name != filepath.Base(repo) || f.Repo.Hash == "" {
		t.Errorf("Repo = %+v", f.Repo)
	}
	if !hasString(f.Frontend.Frameworks, "react") {
		t.Errorf("Frontend.Frameworks = %v, want react", f.Frontend.Frameworks)
	}
	if !hasString(f.Database.ORMs, "prisma") {
		t.Errorf("Database.ORMs = %v, want prisma", f.Database.ORMs)
	}
	if !hasString(f.Database.Models, "User") || !hasString(f.Database.Models, "Order") {
		t.Errorf("Database.Models = %v, want User and Order", f.Database.Models)
	}
	if !hasString(f.API.Frameworks, "express") {
		t.Errorf("API.Frameworks = %v, want express", f.API.Frameworks)
	}
	if !hasRoute(f.API.Routes, "GET /users") || !hasRoute(f.API.Routes, "POST /users") {
		t.Errorf("API.Routes = %v, want GET /users and POST /users", f.API.Routes)
	}
}

func TestOrchestratorAnalyzeWithRequirement(t *testing.T) {
	repo := writeFixtureRepo(t)
	o := newTestOrchestrator(t, nil)

	run, err := o.Analyze(context.Background(), AnalyzeRequest{
		RepoRoot:    repo,
		Requirement: "add multi-tenant support",
	})
	if err != nil {
		t.Fatalf("Analyze() = %v", err)
	}
	if run.State != StateComplete || run.Progress != "3/3" {
		t.Fatalf("State/Progress = %s/%s", run.State, run.Progress)
	}
	if run.Impact == nil {
		t.Fatal("Impact missing on completed run")
	}

	// No explicit changes were supplied, so the tenant keyword drives
	// derived auth and database changes through the assessor.
	if run.Impact.Effort.Bucket != estimate.BucketM {
		t.Errorf("Effort = %+v, want bucket M", run.Impact.Effort)
	}
	if run.Impact.Effort.Score <= 0 {
		t.Errorf("Effort.Score = %v, want positive", run.Impact.Effort.Score)
	}

	var categories []string
	for _, risk := range run.Impact.Risks {
		categories = append(categories, string(risk.Category))
	}
	if !hasString(categories, "security") || !hasString(categories, "data") {
		t.Errorf("risk categories = %v, want security and data", categories)
	}

	wantDeps := []string{"Auth Service", "Database Schema", "prisma"}
	if diff := cmp.Diff(wantDeps, run.Impact.Dependencies); diff != "" {
		t.Errorf("Dependencies mismatch (-want +got):\n%s", diff)
	}
	if !hasString(run.Impact.TestAreas, "tenant-isolation") {
		t.Errorf("TestAreas = %v, want tenant-isolation", run.Impact.TestAreas)
	}
}

func TestOrchestratorExplicitChangesSkipDerivation(t *testing.T) {
	repo := writeFixtureRepo(t)
	o := newTestOrchestrator(t, nil)

	run, err := o.Analyze(context.Background(), AnalyzeRequest{
		RepoRoot:    repo,
		Requirement: "add multi-tenant support",
		Changes: []estimate.ComponentChange{
			{Name: "billing-lib", Type: estimate.TypeLibrary, Kind: estimate.KindModify, Confidence: estimate.ConfidenceHigh},
		},
	})
	if err != nil {
		t.Fatalf("Analyze() = %v", err)
	}
	if !hasString(run.Impact.Dependencies, "billing-lib") {
		t.Errorf("Dependencies = %v, want the explicit change", run.Impact.Dependencies)
	}
	if hasString(run.Impact.Dependencies, "Auth Service") {
		t.Errorf("Dependencies = %v, derived changes should be skipped", run.Impact.Dependencies)
	}
}

func TestOrchestratorCacheServesFacts(t *testing.T) {
	repo := writeFixtureRepo(t)
	analysisCache := cache.New(cache.Options{Enabled: true, TTLSeconds: 3600}, nil)
	t.Cleanup(func() { _ = analysisCache.Close() })
	o := newTestOrchestrator(t, analysisCache)

	first, err := o.Analyze(context.Background(), AnalyzeRequest{RepoRoot: repo})
	if err != nil {
		t.Fatalf("first Analyze() = %v", err)
	}
	if got := len(first.Facts.API.Routes); got != 2 {
		t.Fatalf("first run routes = %d, want 2", got)
	}

	// Source edits do not move the repo identity (manifests and git
	// HEAD do), so the next run must serve the cached artifact.
	routesPath := filepath.Join(repo, "src", "routes", "users.js")
	extra := "router.delete('/users/:id', deleteUser);\n"
	appendFile(t, routesPath, extra)

	second, err := o.Analyze(context.Background(), AnalyzeRequest{RepoRoot: repo})
	if err != nil {
		t.Fatalf("second Analyze() = %v", err)
	}
	if got := len(second.Facts.API.Routes); got != 2 {
		t.Errorf("cached run routes = %d, want the 2 cached routes", got)
	}

	refreshed, err := o.Analyze(context.Background(), AnalyzeRequest{RepoRoot: repo, RefreshFacts: true})
	if err != nil {
		t.Fatalf("refresh Analyze() = %v", err)
	}
	if !hasRoute(refreshed.Facts.API.Routes, "DELETE /users/:id") {
		t.Errorf("refreshed routes = %v, want the new route", refreshed.Facts.API.Routes)
	}
}

func appendFile(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatal(err)
	}
}

func TestOrchestratorGetStatusUnknownRun(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	status := o.GetStatus("riq:run:doesnotexist")
	if status.Status != StatusNotFound {
		t.Errorf("Status = %s, want not_found", status.Status)
	}
	if status.RunID != "riq:run:doesnotexist" {
		t.Errorf("RunID = %q", status.RunID)
	}
}

func TestOrchestratorFailureRetainsPartialArtifacts(t *testing.T) {
	repo := writeFixtureRepo(t)
	o := newTestOrchestrator(t, nil)

	req := AnalyzeRequest{RepoRoot: repo, Requirement: "multi-tenant reports"}
	run := NewRun(req.RepoRoot, req.Requirement)
	o.store.Save(run)

	steps := []phaseStep{
		{phase: PhaseFacts, run: o.factsPhase},
		{phase: PhaseImpact, run: func(ctx context.Context, rc *runContext) error {
			return stderrors.New("assessor exploded")
		}},
		{phase: PhaseCompose, run: o.composePhase},
	}
	if err := o.executeSteps(context.Background(), run, &runContext{req: req}, steps); err == nil {
		t.Fatal("executeSteps succeeded, want the injected failure")
	}

	status := o.GetStatus(run.ID)
	if status.Status != StatusError {
		t.Fatalf("Status = %s, want error", status.Status)
	}
	if status.Error != "assessor exploded" {
		t.Errorf("Error = %q", status.Error)
	}
	if diff := cmp.Diff([]string{string(PhaseFacts)}, status.CompletedPhases); diff != "" {
		t.Errorf("CompletedPhases mismatch (-want +got):\n%s", diff)
	}
	if status.Artifacts == nil || status.Artifacts.Facts == nil {
		t.Fatalf("Artifacts = %+v, want the facts from the finished phase", status.Artifacts)
	}
	if status.Artifacts.Impact != nil {
		t.Errorf("Impact = %+v, want none", status.Artifacts.Impact)
	}
}

func TestOrchestratorAnalyzeMissingRepo(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	missing := filepath.Join(t.TempDir(), "gone")

	run, err := o.Analyze(context.Background(), AnalyzeRequest{RepoRoot: missing})
	if err == nil {
		t.Fatal("Analyze() succeeded on a missing repo")
	}
	var riqErr *errors.RiqError
	if !stderrors.As(err, &riqErr) || riqErr.Code != errors.WalkFailed {
		t.Errorf("err = %v, want WALK_FAILED", err)
	}
	if run.State != StateError {
		t.Errorf("State = %s, want error", run.State)
	}
}

func TestOrchestratorAnalyzeCanceledContext(t *testing.T) {
	repo := writeFixtureRepo(t)
	o := newTestOrchestrator(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := o.Analyze(ctx, AnalyzeRequest{RepoRoot: repo})
	if !stderrors.Is(err, context.Canceled) {
		t.Fatalf("Analyze() = %v, want context.Canceled", err)
	}
	if run.State != StateError {
		t.Errorf("State = %s, want error", run.State)
	}

	if _, err := o.Start(ctx, AnalyzeRequest{RepoRoot: repo}); !stderrors.Is(err, context.Canceled) {
		t.Errorf("Start() = %v, want context.Canceled", err)
	}
}

func TestOrchestratorStartAsync(t *testing.T) {
	repo := writeFixtureRepo(t)
	o := newTestOrchestrator(t, nil)

	id, err := o.Start(context.Background(), AnalyzeRequest{RepoRoot: repo, Requirement: "tenant reports"})
	if err != nil {
		t.Fatalf("Start() = %v", err)
	}

	deadline := time.Now().Add(15 * time.Second)
	for {
		status := o.GetStatus(id)
		switch status.Status {
		case StatusComplete:
			if status.Artifacts == nil || status.Artifacts.Facts == nil || status.Artifacts.Impact == nil {
				t.Fatalf("Artifacts = %+v, want facts and impact", status.Artifacts)
			}
			if status.Progress != "3/3" {
				t.Errorf("Progress = %q, want 3/3", status.Progress)
			}
			return
		case StatusError:
			t.Fatalf("run failed: %s", status.Error)
		case StatusNotFound:
			t.Fatalf("run %s vanished", id)
		}
		if time.Now().After(deadline) {
			t.Fatalf("run still %s after deadline", o.GetStatus(id).Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestOrchestratorListRuns(t *testing.T) {
	repo := writeFixtureRepo(t)
	o := newTestOrchestrator(t, nil)

	first, err := o.Analyze(context.Background(), AnalyzeRequest{RepoRoot: repo})
	if err != nil {
		t.Fatalf("Analyze() = %v", err)
	}
	second, err := o.Analyze(context.Background(), AnalyzeRequest{RepoRoot: repo, Requirement: "tenant reports"})
	if err != nil {
		t.Fatalf("Analyze() = %v", err)
	}

	runs := o.ListRuns(10)
	if len(runs) != 2 {
		t.Fatalf("ListRuns = %d entries, want 2", len(runs))
	}
	if runs[0].ID != second.ID || runs[1].ID != first.ID {
		t.Errorf("ListRuns order = [%s %s], want newest first", runs[0].ID, runs[1].ID)
	}
	for _, summary := range runs {
		if summary.State != StateComplete {
			t.Errorf("run %s state = %s, want complete", summary.ID, summary.State)
		}
	}
}
