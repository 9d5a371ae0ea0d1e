package sfm

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
)

func cleanedFixtureScene(t *testing.T, id string) (*Scene, CameraMap, *CleanReport) {
	t.Helper()
	f := twoClusterFixture(t)
	s := &Scene{ID: id, Cameras: f.cams, Landmarks: f.lms, Tracks: f.tracks}
	before := make(CameraMap, len(s.Cameras))
	for fid, cam := range s.Cameras {
		before[fid] = cam
	}
	r := CleanScene(s, lenientParams(), nil)
	return s, RemovedCameras(before, r.Result.RemovedCameras), r
}

func TestNewStateTracker(t *testing.T) {
	st := NewStateTracker()
	if st.HasScenes() {
		t.Error("new tracker HasScenes should be false")
	}
	if len(st.GetReports()) != 0 {
		t.Error("new tracker should have zero reports")
	}
	if _, ok := st.GetScene("x"); ok {
		t.Error("GetScene on empty tracker should miss")
	}
}

func TestStateTracker_UpdateScene(t *testing.T) {
	st := NewStateTracker()
	s, removed, r := cleanedFixtureScene(t, "rig-a")

	if len(removed) != 2 {
		t.Fatalf("removed = %d cameras, want 2", len(removed))
	}
	st.UpdateScene(s, removed, r)

	ss, ok := st.GetScene("rig-a")
	if !ok {
		t.Fatal("scene rig-a not found")
	}
	if ss.Scene != s || ss.Report != r || len(ss.Removed) != 2 {
		t.Errorf("scene state = %+v", ss)
	}
	if got, ok := st.GetReport("rig-a"); !ok || got.RunID != r.RunID {
		t.Errorf("GetReport = %v, %v", got, ok)
	}
	if !st.HasScenes() {
		t.Error("HasScenes should be true")
	}
}

func TestStateTracker_ReportsOrdered(t *testing.T) {
	st := NewStateTracker()
	for _, id := range []string{"c", "a", "b"} {
		s, removed, r := cleanedFixtureScene(t, id)
		st.UpdateScene(s, removed, r)
	}
	reports := st.GetReports()
	if len(reports) != 3 {
		t.Fatalf("len = %d, want 3", len(reports))
	}
	for i, want := range []string{"a", "b", "c"} {
		if reports[i].SceneID != want {
			t.Errorf("reports[%d] = %q, want %q", i, reports[i].SceneID, want)
		}
	}
}

func TestStateTracker_CachePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "reports.json")

	st := NewStateTrackerWithCache(path)
	s, removed, r := cleanedFixtureScene(t, "rig-a")
	st.UpdateScene(s, removed, r)

	reloaded := NewStateTrackerWithCache(path)
	got, ok := reloaded.GetReport("rig-a")
	if !ok {
		t.Fatal("report not restored from cache")
	}
	if got.RunID != r.RunID || got.RemainingCameras != 3 {
		t.Errorf("restored report = %+v", got)
	}
	// Scenes themselves are not cached.
	if reloaded.HasScenes() {
		t.Error("scenes should not survive a restart")
	}
}

func TestStateTracker_MissingCache(t *testing.T) {
	st := NewStateTrackerWithCache(filepath.Join(t.TempDir(), "absent.json"))
	if len(st.GetReports()) != 0 {
		t.Error("missing cache file should yield an empty tracker")
	}
}

func TestStateTracker_ConcurrentAccess(t *testing.T) {
	st := NewStateTracker()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("scene-%d", i)
			s := NewScene(id)
			st.UpdateScene(s, nil, NewCleanReport(s, DefaultCleanParams(), s.Clean(DefaultCleanParams(), nil)))
			st.GetReports()
			st.GetScene(id)
		}(i)
	}
	wg.Wait()
	if got := len(st.GetReports()); got != 8 {
		t.Errorf("reports = %d, want 8", got)
	}
}
