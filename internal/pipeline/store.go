package pipeline

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"riq/internal/facts"
	"riq/internal/impact"
	"riq/internal/logging"
)

const storeSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	repo TEXT NOT NULL,
	requirement TEXT,
	state TEXT NOT NULL,
	completed_phases TEXT,
	progress TEXT,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	error TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);

CREATE TABLE IF NOT EXISTS run_artifacts (
	run_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	payload BLOB NOT NULL,
	PRIMARY KEY (run_id, kind)
);
`

const (
	artifactFacts  = "facts"
	artifactImpact = "impact"
)

// Store keeps runs in memory and mirrors them into sqlite so `riq runs`
// sees runs from other processes. The memory map is the source of truth
// within a process; sqlite writes are best-effort and only logged when
// they fail.
type Store struct {
	mu     sync.RWMutex
	runs   map[string]*Run
	conn   *sql.DB
	logger *logging.Logger

	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewStore creates a run store. An empty path keeps the store
// memory-only; a sqlite tier that cannot be opened is logged and skipped.
func NewStore(path string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Nop()
	}
	s := &Store{
		runs:   make(map[string]*Run),
		logger: logger,
	}

	if path != "" {
		conn, err := openRunsDB(path)
		if err != nil {
			logger.Warn("Run persistence unavailable, keeping runs in memory", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
		} else {
			s.conn = conn
		}
	}

	s.encoder, _ = zstd.NewWriter(nil)
	s.decoder, _ = zstd.NewReader(nil)
	return s
}

func openRunsDB(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open runs database: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := conn.Exec(storeSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize runs schema: %w", err)
	}
	return conn, nil
}

// Close releases the sqlite tier and codecs.
func (s *Store) Close() error {
	if s.encoder != nil {
		s.encoder.Close()
	}
	if s.decoder != nil {
		s.decoder.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Save stores a snapshot of the run. Callers keep mutating their own
// Run; the store only ever holds clones.
func (s *Store) Save(run *Run) {
	snapshot := run.Clone()

	s.mu.Lock()
	s.runs[snapshot.ID] = snapshot
	s.mu.Unlock()

	if s.conn == nil {
		return
	}
	completed, _ := json.Marshal(snapshot.CompletedPhases)
	_, err := s.conn.Exec(`
		INSERT OR REPLACE INTO runs (id, repo, requirement, state, completed_phases, progress, started_at, finished_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		snapshot.ID,
		snapshot.Repo,
		nullString(snapshot.Requirement),
		string(snapshot.State),
		string(completed),
		snapshot.Progress,
		snapshot.StartedAt.Format(time.RFC3339),
		nullTime(snapshot.FinishedAt),
		nullString(snapshot.Error),
	)
	if err != nil {
		s.logger.Warn("Failed to persist run", map[string]interface{}{
			"runId": snapshot.ID,
			"error": err.Error(),
		})
	}
}

// SaveArtifacts persists the run's artifacts as compressed JSON rows.
func (s *Store) SaveArtifacts(run *Run) {
	if s.conn == nil {
		return
	}
	if run.Facts != nil {
		s.saveArtifact(run.ID, artifactFacts, run.Facts)
	}
	if run.Impact != nil {
		s.saveArtifact(run.ID, artifactImpact, run.Impact)
	}
}

func (s *Store) saveArtifact(runID, kind string, artifact interface{}) {
	payload, err := json.Marshal(artifact)
	if err != nil {
		s.logger.Warn("Failed to encode run artifact", map[string]interface{}{
			"runId": runID,
			"kind":  kind,
			"error": err.Error(),
		})
		return
	}
	if s.encoder != nil {
		payload = s.encoder.EncodeAll(payload, make([]byte, 0, len(payload)))
	}
	if _, err := s.conn.Exec(`
		INSERT OR REPLACE INTO run_artifacts (run_id, kind, payload)
		VALUES (?, ?, ?)
	`, runID, kind, payload); err != nil {
		s.logger.Warn("Failed to persist run artifact", map[string]interface{}{
			"runId": runID,
			"kind":  kind,
			"error": err.Error(),
		})
	}
}

// Get returns a copy of the run, falling back to sqlite for runs from
// other processes. The second return is false when the ID is unknown.
func (s *Store) Get(id string) (*Run, bool) {
	s.mu.RLock()
	run, ok := s.runs[id]
	s.mu.RUnlock()
	if ok {
		return run.Clone(), true
	}

	if s.conn == nil {
		return nil, false
	}
	loaded, err := s.loadRun(id)
	if err != nil {
		s.logger.Warn("Failed to load run", map[string]interface{}{
			"runId": id,
			"error": err.Error(),
		})
		return nil, false
	}
	if loaded == nil {
		return nil, false
	}
	return loaded, true
}

func (s *Store) loadRun(id string) (*Run, error) {
	var run Run
	var requirement, completed, finishedAt, errMsg sql.NullString
	var state, startedAt string

	err := s.conn.QueryRow(`
		SELECT id, repo, requirement, state, completed_phases, progress, started_at, finished_at, error
		FROM runs WHERE id = ?
	`, id).Scan(&run.ID, &run.Repo, &requirement, &state, &completed, &run.Progress, &startedAt, &finishedAt, &errMsg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.Requirement = requirement.String
	run.State = RunState(state)
	run.Error = errMsg.String
	run.planned = plannedFor(run.Requirement)
	if completed.Valid && completed.String != "" {
		if err := json.Unmarshal([]byte(completed.String), &run.CompletedPhases); err != nil {
			return nil, fmt.Errorf("invalid completed_phases: %w", err)
		}
	}
	if t, err := time.Parse(time.RFC3339, startedAt); err == nil {
		run.StartedAt = t
	}
	if finishedAt.Valid {
		if t, err := time.Parse(time.RFC3339, finishedAt.String); err == nil {
			run.FinishedAt = &t
		}
	}

	if err := s.loadArtifacts(&run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *Store) loadArtifacts(run *Run) error {
	rows, err := s.conn.Query(`
		SELECT kind, payload FROM run_artifacts WHERE run_id = ?
	`, run.ID)
	if err != nil {
		return fmt.Errorf("failed to load run artifacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var kind string
		var payload []byte
		if err := rows.Scan(&kind, &payload); err != nil {
			return fmt.Errorf("failed to scan run artifact: %w", err)
		}
		if s.decoder != nil {
			if plain, err := s.decoder.DecodeAll(payload, nil); err == nil {
				payload = plain
			}
		}
		switch kind {
		case artifactFacts:
			var f facts.RepositoryFacts
			if err := json.Unmarshal(payload, &f); err == nil {
				run.Facts = &f
			}
		case artifactImpact:
			var ia impact.ImpactAnalysis
			if err := json.Unmarshal(payload, &ia); err == nil {
				run.Impact = &ia
			}
		}
	}
	return rows.Err()
}

// List returns run summaries, newest first. In-memory runs win over their
// sqlite rows because they carry the freshest state.
func (s *Store) List(limit int) []RunSummary {
	if limit <= 0 {
		limit = 20
	}

	s.mu.RLock()
	summaries := make([]RunSummary, 0, len(s.runs))
	seen := make(map[string]bool, len(s.runs))
	for _, run := range s.runs {
		summaries = append(summaries, run.ToSummary())
		seen[run.ID] = true
	}
	s.mu.RUnlock()

	if s.conn != nil {
		rows, err := s.conn.Query(`
			SELECT id, repo, requirement, state, completed_phases, progress, started_at, finished_at, error
			FROM runs ORDER BY started_at DESC LIMIT ?
		`, limit)
		if err != nil {
			s.logger.Warn("Failed to list persisted runs", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			defer func() { _ = rows.Close() }()
			for rows.Next() {
				var summary RunSummary
				var requirement, completed, finishedAt, errMsg sql.NullString
				var state, startedAt string
				if err := rows.Scan(&summary.ID, &summary.Repo, &requirement, &state, &completed, &summary.Progress, &startedAt, &finishedAt, &errMsg); err != nil {
					continue
				}
				if seen[summary.ID] {
					continue
				}
				summary.Requirement = requirement.String
				summary.State = RunState(state)
				summary.Error = errMsg.String
				if t, err := time.Parse(time.RFC3339, startedAt); err == nil {
					summary.StartedAt = t
				}
				if finishedAt.Valid {
					if t, err := time.Parse(time.RFC3339, finishedAt.String); err == nil {
						summary.FinishedAt = &t
					}
				}
				summaries = append(summaries, summary)
			}
		}
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].StartedAt.After(summaries[j].StartedAt)
	})
	if len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}
