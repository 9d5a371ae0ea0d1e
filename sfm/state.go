package sfm

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// SceneState is the latest cleaned scene for one source
type SceneState struct {
	Scene *Scene
	// Removed holds the cameras the last run removed, for rendering
	Removed CameraMap
	Report  *CleanReport
}

// StateTracker keeps the latest cleaned scene and report per scene id for
// the HTTP endpoints
type StateTracker struct {
	mu        sync.RWMutex
	scenes    map[string]*SceneState
	reports   map[string]*CleanReport
	cachePath string // path to the report cache file; empty disables persistence
}

// NewStateTracker creates a new state tracker
func NewStateTracker() *StateTracker {
	return &StateTracker{
		scenes:  make(map[string]*SceneState),
		reports: make(map[string]*CleanReport),
	}
}

// NewStateTrackerWithCache creates a state tracker that persists reports to
// cachePath. Reports already in the file are loaded on creation.
func NewStateTrackerWithCache(cachePath string) *StateTracker {
	st := NewStateTracker()
	st.cachePath = cachePath
	if cachePath != "" {
		if reports, err := LoadReports(cachePath); err == nil {
			for _, r := range reports {
				st.reports[r.SceneID] = r
			}
		}
	}
	return st
}

// UpdateScene records a cleaned scene with the cameras removed from it and
// its report, then persists the reports when a cache is configured.
func (st *StateTracker) UpdateScene(s *Scene, removed CameraMap, r *CleanReport) {
	st.mu.Lock()
	st.scenes[s.ID] = &SceneState{Scene: s, Removed: removed, Report: r}
	if r != nil {
		st.reports[s.ID] = r
	}
	cachePath := st.cachePath
	st.mu.Unlock()

	if cachePath != "" && r != nil {
		if err := SaveReports(st.GetReports(), cachePath); err != nil {
			log.Printf("warning: failed to save report cache: %v", err)
		}
	}
}

// GetScene returns the latest state for a scene
func (st *StateTracker) GetScene(id string) (*SceneState, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	ss, ok := st.scenes[id]
	return ss, ok
}

// GetReport returns the latest report for a scene
func (st *StateTracker) GetReport(id string) (*CleanReport, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	r, ok := st.reports[id]
	return r, ok
}

// GetReports returns the latest report of every scene, ordered by scene id
func (st *StateTracker) GetReports() []*CleanReport {
	st.mu.RLock()
	defer st.mu.RUnlock()

	ids := make([]string, 0, len(st.reports))
	for id := range st.reports {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]*CleanReport, 0, len(ids))
	for _, id := range ids {
		out = append(out, st.reports[id])
	}
	return out
}

// HasScenes returns true if at least one scene has been cleaned
func (st *StateTracker) HasScenes() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.scenes) > 0
}

// SaveReports writes reports to disk as JSON
func SaveReports(reports []*CleanReport, path string) error {
	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal reports: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report cache: %w", err)
	}
	return nil
}

// LoadReports reads reports from a JSON file on disk
func LoadReports(path string) ([]*CleanReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report cache: %w", err)
	}
	var reports []*CleanReport
	if err := json.Unmarshal(data, &reports); err != nil {
		return nil, fmt.Errorf("unmarshal report cache: %w", err)
	}
	return reports, nil
}

// RemovedCameras picks the cameras named in ids out of before
func RemovedCameras(before CameraMap, ids []FrameID) CameraMap {
	out := make(CameraMap, len(ids))
	for _, fid := range ids {
		if cam, ok := before[fid]; ok && cam != nil {
			out[fid] = cam
		}
	}
	return out
}
