package main

import (
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kwv/sfmclean/sfm"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// populatedTracker returns a StateTracker holding one cleaned scene "rig".
func populatedTracker(t *testing.T) *sfm.StateTracker {
	t.Helper()
	s := testScene(t, "rig")
	before := make(sfm.CameraMap, len(s.Cameras))
	for fid, cam := range s.Cameras {
		before[fid] = cam
	}
	params := sfm.DefaultCleanParams()
	params.CoverageThresh = 0
	r := sfm.CleanScene(s, params, nil)

	st := sfm.NewStateTracker()
	st.UpdateScene(s, sfm.RemovedCameras(before, r.Result.RemovedCameras), r)
	return st
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// /health
// ---------------------------------------------------------------------------

func TestHealth(t *testing.T) {
	tests := []struct {
		name          string
		tracker       *sfm.StateTracker
		wantHasScenes bool
	}{
		{"empty", sfm.NewStateTracker(), false},
		{"populated", populatedTracker(t), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(t, newHTTPServer(tt.tracker, nil, 0), "/health")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			var body struct {
				Status    string `json:"status"`
				HasScenes bool   `json:"hasScenes"`
				History   bool   `json:"history"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != "ok" {
				t.Errorf("status = %q, want ok", body.Status)
			}
			if body.HasScenes != tt.wantHasScenes {
				t.Errorf("hasScenes = %v, want %v", body.HasScenes, tt.wantHasScenes)
			}
			if body.History {
				t.Error("history should be false without a store")
			}
		})
	}
}

// ---------------------------------------------------------------------------
// /reports
// ---------------------------------------------------------------------------

func TestReports(t *testing.T) {
	h := newHTTPServer(populatedTracker(t), nil, 0)

	w := get(t, h, "/reports")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var reports []sfm.CleanReport
	if err := json.Unmarshal(w.Body.Bytes(), &reports); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(reports) != 1 || reports[0].SceneID != "rig" {
		t.Fatalf("reports = %+v", reports)
	}

	w = get(t, h, "/reports/rig")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var report sfm.CleanReport
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(report.Result.RemovedCameras) != 2 {
		t.Errorf("removed cameras = %v, want 2", report.Result.RemovedCameras)
	}

	if w := get(t, h, "/reports/unknown"); w.Code != http.StatusNotFound {
		t.Errorf("unknown scene status = %d, want 404", w.Code)
	}
}

func TestReports_EmptyIsArray(t *testing.T) {
	w := get(t, newHTTPServer(sfm.NewStateTracker(), nil, 0), "/reports")
	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

// ---------------------------------------------------------------------------
// /scenes/{id}/...
// ---------------------------------------------------------------------------

func TestSceneEndpoints(t *testing.T) {
	h := newHTTPServer(populatedTracker(t), nil, 0.25)

	tests := []struct {
		path        string
		contentType string
		check       func(t *testing.T, w *httptest.ResponseRecorder)
	}{
		{
			path:        "/scenes/rig/coverage.png",
			contentType: "image/png",
			check: func(t *testing.T, w *httptest.ResponseRecorder) {
				if _, err := png.Decode(w.Body); err != nil {
					t.Errorf("invalid PNG: %v", err)
				}
			},
		},
		{
			path:        "/scenes/rig/plan.png",
			contentType: "image/png",
			check: func(t *testing.T, w *httptest.ResponseRecorder) {
				if _, err := png.Decode(w.Body); err != nil {
					t.Errorf("invalid PNG: %v", err)
				}
			},
		},
		{
			path:        "/scenes/rig/plan.svg",
			contentType: "image/svg+xml",
			check: func(t *testing.T, w *httptest.ResponseRecorder) {
				if !strings.Contains(w.Body.String(), "<svg") {
					t.Error("body is not SVG")
				}
			},
		},
		{
			path:        "/scenes/rig/plan.geojson?simplify=0.5",
			contentType: "application/geo+json",
			check: func(t *testing.T, w *httptest.ResponseRecorder) {
				var fc struct {
					Type     string            `json:"type"`
					Features []json.RawMessage `json:"features"`
				}
				if err := json.Unmarshal(w.Body.Bytes(), &fc); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if fc.Type != "FeatureCollection" || len(fc.Features) == 0 {
					t.Errorf("unexpected collection: type %q, %d features", fc.Type, len(fc.Features))
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := get(t, h, tt.path)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200 (%s)", w.Code, w.Body.String())
			}
			if ct := w.Header().Get("Content-Type"); ct != tt.contentType {
				t.Errorf("Content-Type = %q, want %q", ct, tt.contentType)
			}
			tt.check(t, w)
		})
	}
}

func TestSceneEndpoints_UnknownScene(t *testing.T) {
	h := newHTTPServer(populatedTracker(t), nil, 0)
	for _, ep := range []string{
		"/scenes/nope/coverage.png",
		"/scenes/nope/plan.svg",
		"/scenes/nope/plan.png",
		"/scenes/nope/plan.geojson",
	} {
		if w := get(t, h, ep); w.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", ep, w.Code)
		}
	}
}

func TestPlanGeoJSON_BadTolerance(t *testing.T) {
	h := newHTTPServer(populatedTracker(t), nil, 0)
	for _, q := range []string{"abc", "-1"} {
		if w := get(t, h, "/scenes/rig/plan.geojson?simplify="+q); w.Code != http.StatusBadRequest {
			t.Errorf("simplify=%s: status = %d, want 400", q, w.Code)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newHTTPServer(sfm.NewStateTracker(), nil, 0)
	req := httptest.NewRequest(http.MethodPost, "/reports", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

// ---------------------------------------------------------------------------
// /history
// ---------------------------------------------------------------------------

func TestHistory_Disabled(t *testing.T) {
	w := get(t, newHTTPServer(sfm.NewStateTracker(), nil, 0), "/history")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestHistory(t *testing.T) {
	store, err := sfm.OpenHistoryStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("OpenHistoryStore: %v", err)
	}
	defer store.Close()

	st := populatedTracker(t)
	report, _ := st.GetReport("rig")
	if err := store.InsertReport(report); err != nil {
		t.Fatalf("InsertReport: %v", err)
	}

	h := newHTTPServer(st, store, 0)

	tests := []struct {
		target   string
		wantCode int
		wantRuns int
	}{
		{"/history", http.StatusOK, 1},
		{"/history?limit=5", http.StatusOK, 1},
		{"/history?scene=rig", http.StatusOK, 1},
		{"/history?scene=other", http.StatusOK, 0},
		{"/history?limit=x", http.StatusBadRequest, 0},
		{"/history?limit=-2", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			w := get(t, h, tt.target)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			var runs []sfm.CleanRun
			if err := json.Unmarshal(w.Body.Bytes(), &runs); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(runs) != tt.wantRuns {
				t.Errorf("runs = %d, want %d", len(runs), tt.wantRuns)
			}
			if len(runs) > 0 && runs[0].RemainingLandmarks != 16 {
				t.Errorf("remaining landmarks = %d, want 16", runs[0].RemainingLandmarks)
			}
		})
	}
}
