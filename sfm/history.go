package sfm

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS clean_runs (
	run_id              TEXT PRIMARY KEY,
	scene_id            TEXT NOT NULL,
	iterations          INTEGER NOT NULL,
	cameras_before      INTEGER NOT NULL,
	landmarks_before    INTEGER NOT NULL,
	removed_cameras     INTEGER NOT NULL,
	removed_landmarks   INTEGER NOT NULL,
	remaining_cameras   INTEGER NOT NULL,
	remaining_landmarks INTEGER NOT NULL,
	duration_ms         REAL,
	params_json         TEXT,
	result_json         TEXT,
	created_at          INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_clean_runs_scene ON clean_runs(scene_id, created_at);
`

// CleanRun is one persisted cleaning run
type CleanRun struct {
	RunID              string          `json:"runId"`
	SceneID            string          `json:"sceneId"`
	Iterations         int             `json:"iterations"`
	CamerasBefore      int             `json:"camerasBefore"`
	LandmarksBefore    int             `json:"landmarksBefore"`
	RemovedCameras     int             `json:"removedCameras"`
	RemovedLandmarks   int             `json:"removedLandmarks"`
	RemainingCameras   int             `json:"remainingCameras"`
	RemainingLandmarks int             `json:"remainingLandmarks"`
	DurationMs         float64         `json:"durationMs"`
	ParamsJSON         json.RawMessage `json:"params,omitempty"`
	ResultJSON         json.RawMessage `json:"result,omitempty"`
	CreatedAt          int64           `json:"createdAt"` // unix nanoseconds
}

// RunFromReport converts a report into a history row
func RunFromReport(r *CleanReport) (*CleanRun, error) {
	params, err := json.Marshal(r.Params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	result, err := json.Marshal(r.Result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &CleanRun{
		RunID:              r.RunID,
		SceneID:            r.SceneID,
		Iterations:         r.Result.Iterations,
		CamerasBefore:      r.CamerasBefore,
		LandmarksBefore:    r.LandmarksBefore,
		RemovedCameras:     len(r.Result.RemovedCameras),
		RemovedLandmarks:   len(r.Result.RemovedLandmarks),
		RemainingCameras:   r.RemainingCameras,
		RemainingLandmarks: r.RemainingLandmarks,
		DurationMs:         r.Duration,
		ParamsJSON:         params,
		ResultJSON:         result,
	}, nil
}

// HistoryStore persists clean runs in SQLite
type HistoryStore struct {
	db *sql.DB
}

// OpenHistoryStore opens (creating if needed) the history database at path.
// ":memory:" gives a private in-memory store.
func OpenHistoryStore(path string) (*HistoryStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(historySchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	return &HistoryStore{db: db}, nil
}

// Close closes the database
func (s *HistoryStore) Close() error {
	return s.db.Close()
}

// Insert persists a run. If RunID is empty, a UUID is generated.
func (s *HistoryStore) Insert(run *CleanRun) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = time.Now().UnixNano()
	}

	var params, result interface{}
	if len(run.ParamsJSON) > 0 {
		params = string(run.ParamsJSON)
	}
	if len(run.ResultJSON) > 0 {
		result = string(run.ResultJSON)
	}

	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO clean_runs (
				run_id, scene_id, iterations, cameras_before, landmarks_before,
				removed_cameras, removed_landmarks, remaining_cameras, remaining_landmarks,
				duration_ms, params_json, result_json, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, run.SceneID, run.Iterations, run.CamerasBefore, run.LandmarksBefore,
			run.RemovedCameras, run.RemovedLandmarks, run.RemainingCameras, run.RemainingLandmarks,
			run.DurationMs, params, result, run.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert clean run: %w", err)
		}
		return nil
	})
}

// InsertReport persists a report as a run
func (s *HistoryStore) InsertReport(r *CleanReport) error {
	run, err := RunFromReport(r)
	if err != nil {
		return err
	}
	return s.Insert(run)
}

const runColumns = `run_id, scene_id, iterations, cameras_before, landmarks_before,
	removed_cameras, removed_landmarks, remaining_cameras, remaining_landmarks,
	duration_ms, params_json, result_json, created_at`

// ListByScene returns the runs of a scene, newest first
func (s *HistoryStore) ListByScene(sceneID string) ([]*CleanRun, error) {
	rows, err := s.db.Query(`SELECT `+runColumns+`
		FROM clean_runs
		WHERE scene_id = ?
		ORDER BY created_at DESC`, sceneID)
	if err != nil {
		return nil, fmt.Errorf("query clean runs: %w", err)
	}
	return scanRuns(rows)
}

// Recent returns up to limit runs across all scenes, newest first
func (s *HistoryStore) Recent(limit int) ([]*CleanRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT `+runColumns+`
		FROM clean_runs
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query clean runs: %w", err)
	}
	return scanRuns(rows)
}

// Get returns a single run by id
func (s *HistoryStore) Get(runID string) (*CleanRun, error) {
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM clean_runs WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("query clean run: %w", err)
	}
	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("clean run %s not found", runID)
	}
	return runs[0], nil
}

func scanRuns(rows *sql.Rows) ([]*CleanRun, error) {
	defer rows.Close()

	runs := []*CleanRun{}
	for rows.Next() {
		var r CleanRun
		var params, result sql.NullString
		err := rows.Scan(
			&r.RunID, &r.SceneID, &r.Iterations, &r.CamerasBefore, &r.LandmarksBefore,
			&r.RemovedCameras, &r.RemovedLandmarks, &r.RemainingCameras, &r.RemainingLandmarks,
			&r.DurationMs, &params, &result, &r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan clean run row: %w", err)
		}
		if params.Valid {
			r.ParamsJSON = json.RawMessage(params.String)
		}
		if result.Valid {
			r.ResultJSON = json.RawMessage(result.String)
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}

const (
	busyRetries = 5
	busyBackoff = 20 * time.Millisecond
)

// isSQLiteBusy reports whether err is a lock contention error
func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// retryOnBusy runs fn, retrying with linear backoff while it reports a busy database
func retryOnBusy(fn func() error) error {
	var err error
	for attempt := 0; attempt < busyRetries; attempt++ {
		if err = fn(); !isSQLiteBusy(err) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * busyBackoff)
	}
	return err
}
