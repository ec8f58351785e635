// Package pipeline sequences the analysis phases for a run and tracks
// per-run state. Phases execute in strict order because each consumes the
// previous phase's output; detector fan-out happens inside the facts
// phase, never across phases.
package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"riq/internal/facts"
	"riq/internal/impact"
)

// Phase identifies one pipeline stage.
type Phase string

const (
	PhaseFacts   Phase = "analyzing-facts"
	PhaseImpact  Phase = "analyzing-impact"
	PhaseCompose Phase = "composing-artifacts"
)

// RunState is the lifecycle state of a run. Phase states mirror the phase
// names so a status poll reads naturally.
type RunState string

const (
	StateIdle     RunState = "idle"
	StateFacts    RunState = RunState(PhaseFacts)
	StateImpact   RunState = RunState(PhaseImpact)
	StateCompose  RunState = RunState(PhaseCompose)
	StateComplete RunState = "complete"
	StateError    RunState = "error"
)

// forwardOrder ranks the forward states; legal transitions only increase
// the rank. StateError is reachable from any non-terminal state instead.
var forwardOrder = map[RunState]int{
	StateIdle:     0,
	StateFacts:    1,
	StateImpact:   2,
	StateCompose:  3,
	StateComplete: 4,
}

// Terminal reports whether the state accepts no further transitions.
func (s RunState) Terminal() bool {
	return s == StateComplete || s == StateError
}

// Run is one analysis run with its state and artifacts. Only the
// orchestrator goroutine mutates a Run; everyone else reads clones
// handed out by the store.
type Run struct {
	ID              string                 `json:"id"`
	Repo            string                 `json:"repo"`
	Requirement     string                 `json:"requirement,omitempty"`
	State           RunState               `json:"state"`
	CompletedPhases []string               `json:"completedPhases,omitempty"`
	Progress        string                 `json:"progress"`
	StartedAt       time.Time              `json:"startedAt"`
	FinishedAt      *time.Time             `json:"finishedAt,omitempty"`
	Error           string                 `json:"error,omitempty"`
	Facts           *facts.RepositoryFacts `json:"facts,omitempty"`
	Impact          *impact.ImpactAnalysis `json:"impact,omitempty"`

	planned []Phase
}

// plannedFor returns the phase list for a run: the impact phase only
// exists when there is a requirement to assess.
func plannedFor(requirement string) []Phase {
	if requirement == "" {
		return []Phase{PhaseFacts, PhaseCompose}
	}
	return []Phase{PhaseFacts, PhaseImpact, PhaseCompose}
}

// NewRun creates an idle run with a fresh ID.
func NewRun(repo, requirement string) *Run {
	planned := plannedFor(requirement)
	return &Run{
		ID:          "riq:run:" + strings.ReplaceAll(uuid.New().String(), "-", ""),
		Repo:        repo,
		Requirement: requirement,
		State:       StateIdle,
		Progress:    fmt.Sprintf("0/%d", len(planned)),
		StartedAt:   time.Now().UTC(),
		planned:     planned,
	}
}

// PlannedPhases returns the phases this run executes, in order.
func (r *Run) PlannedPhases() []Phase {
	return append([]Phase(nil), r.planned...)
}

// Begin moves the run into the given phase. Transitions must move
// forward; terminal runs reject everything.
func (r *Run) Begin(phase Phase) error {
	if r.State.Terminal() {
		return fmt.Errorf("run %s is %s, cannot begin %s", r.ID, r.State, phase)
	}
	next := RunState(phase)
	if forwardOrder[next] <= forwardOrder[r.State] {
		return fmt.Errorf("run %s cannot move from %s to %s", r.ID, r.State, next)
	}
	r.State = next
	return nil
}

// MarkPhase records completion of the phase the run is currently in.
func (r *Run) MarkPhase(phase Phase) error {
	if r.State != RunState(phase) {
		return fmt.Errorf("run %s is %s, cannot complete phase %s", r.ID, r.State, phase)
	}
	r.CompletedPhases = append(r.CompletedPhases, string(phase))
	r.Progress = fmt.Sprintf("%d/%d", len(r.CompletedPhases), len(r.planned))
	return nil
}

// MarkComplete moves the run to its terminal success state. All planned
// phases must have completed.
func (r *Run) MarkComplete() error {
	if r.State.Terminal() {
		return fmt.Errorf("run %s is already %s", r.ID, r.State)
	}
	if len(r.CompletedPhases) != len(r.planned) {
		return fmt.Errorf("run %s has %d of %d phases complete", r.ID, len(r.CompletedPhases), len(r.planned))
	}
	now := time.Now().UTC()
	r.State = StateComplete
	r.FinishedAt = &now
	return nil
}

// MarkFailed moves the run to its terminal error state. Artifacts from
// phases that finished stay attached.
func (r *Run) MarkFailed(err error) error {
	if r.State.Terminal() {
		return fmt.Errorf("run %s is already %s", r.ID, r.State)
	}
	now := time.Now().UTC()
	r.State = StateError
	r.FinishedAt = &now
	if err != nil {
		r.Error = err.Error()
	}
	return nil
}

// Clone copies the run. Slices are copied; the artifact pointers are
// shared because artifacts are immutable once attached.
func (r *Run) Clone() *Run {
	clone := *r
	clone.CompletedPhases = append([]string(nil), r.CompletedPhases...)
	clone.planned = append([]Phase(nil), r.planned...)
	return &clone
}

// RunStatus is the polled status classification.
type RunStatus string

const (
	StatusNotFound   RunStatus = "not_found"
	StatusInProgress RunStatus = "in_progress"
	StatusComplete   RunStatus = "complete"
	StatusError      RunStatus = "error"
)

// Artifacts bundles whatever outputs a run produced.
type Artifacts struct {
	Facts  *facts.RepositoryFacts `json:"facts,omitempty"`
	Impact *impact.ImpactAnalysis `json:"impact,omitempty"`
}

// Status is the poll view of a run. Artifacts are present when the run
// completed, and partially present when it failed after producing some.
type Status struct {
	RunID           string     `json:"runId"`
	Status          RunStatus  `json:"status"`
	Progress        string     `json:"progress,omitempty"`
	CompletedPhases []string   `json:"completedPhases,omitempty"`
	Error           string     `json:"error,omitempty"`
	Artifacts       *Artifacts `json:"artifacts,omitempty"`
}

// StatusView derives the poll view from the run.
func (r *Run) StatusView() Status {
	status := Status{
		RunID:           r.ID,
		Progress:        r.Progress,
		CompletedPhases: append([]string(nil), r.CompletedPhases...),
		Error:           r.Error,
	}
	switch r.State {
	case StateComplete:
		status.Status = StatusComplete
		status.Artifacts = &Artifacts{Facts: r.Facts, Impact: r.Impact}
	case StateError:
		status.Status = StatusError
		if r.Facts != nil || r.Impact != nil {
			status.Artifacts = &Artifacts{Facts: r.Facts, Impact: r.Impact}
		}
	default:
		status.Status = StatusInProgress
	}
	return status
}

// RunSummary is the lightweight view for listing runs.
type RunSummary struct {
	ID          string     `json:"id"`
	Repo        string     `json:"repo"`
	Requirement string     `json:"requirement,omitempty"`
	State       RunState   `json:"state"`
	Progress    string     `json:"progress"`
	StartedAt   time.Time  `json:"startedAt"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// ToSummary creates the listing view of the run.
func (r *Run) ToSummary() RunSummary {
	return RunSummary{
		ID:          r.ID,
		Repo:        r.Repo,
		Requirement: r.Requirement,
		State:       r.State,
		Progress:    r.Progress,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Error:       r.Error,
	}
}
