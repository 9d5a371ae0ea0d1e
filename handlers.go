package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/kwv/sfmclean/sfm"
)

// newHTTPServer creates an HTTP server with all endpoints. history may be nil.
func newHTTPServer(stateTracker *sfm.StateTracker, history *sfm.HistoryStore, coverageThresh float64) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] /health request from %s", r.RemoteAddr)
		status := struct {
			Status    string    `json:"status"`
			Timestamp time.Time `json:"timestamp"`
			HasScenes bool      `json:"hasScenes"`
			History   bool      `json:"history"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			HasScenes: stateTracker.HasScenes(),
			History:   history != nil,
		}
		writeJSON(w, status)
	})

	mux.HandleFunc("GET /reports", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, stateTracker.GetReports())
	})

	mux.HandleFunc("GET /reports/{id}", func(w http.ResponseWriter, r *http.Request) {
		report, ok := stateTracker.GetReport(r.PathValue("id"))
		if !ok {
			http.Error(w, "No report for scene", http.StatusNotFound)
			return
		}
		writeJSON(w, report)
	})

	mux.HandleFunc("GET /scenes/{id}/coverage.png", func(w http.ResponseWriter, r *http.Request) {
		state, ok := sceneState(w, r, stateTracker)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := sfm.NewCoverageSheet(state.Scene, coverageThresh).WritePNG(w); err != nil {
			log.Printf("Error encoding coverage PNG: %v", err)
		}
	})

	mux.HandleFunc("GET /scenes/{id}/plan.svg", func(w http.ResponseWriter, r *http.Request) {
		state, ok := sceneState(w, r, stateTracker)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		renderer := sfm.NewPlanRenderer(sfm.NewPlanView(state.Scene, state.Removed))
		if err := renderer.RenderToSVG(w); err != nil {
			log.Printf("Error rendering plan SVG: %v", err)
		}
	})

	mux.HandleFunc("GET /scenes/{id}/plan.png", func(w http.ResponseWriter, r *http.Request) {
		state, ok := sceneState(w, r, stateTracker)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		renderer := sfm.NewPlanRenderer(sfm.NewPlanView(state.Scene, state.Removed))
		if err := renderer.RenderToPNG(w); err != nil {
			log.Printf("Error rendering plan PNG: %v", err)
		}
	})

	mux.HandleFunc("GET /scenes/{id}/plan.geojson", func(w http.ResponseWriter, r *http.Request) {
		state, ok := sceneState(w, r, stateTracker)
		if !ok {
			return
		}
		tolerance := 0.0
		if v := r.URL.Query().Get("simplify"); v != "" {
			t, err := strconv.ParseFloat(v, 64)
			if err != nil || t < 0 {
				http.Error(w, "Invalid simplify tolerance", http.StatusBadRequest)
				return
			}
			tolerance = t
		}
		data, err := sfm.MarshalSceneGeoJSON(sfm.NewPlanView(state.Scene, state.Removed), tolerance)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		if _, err := w.Write(data); err != nil {
			log.Printf("Error writing GeoJSON: %v", err)
		}
	})

	mux.HandleFunc("GET /history", func(w http.ResponseWriter, r *http.Request) {
		if history == nil {
			http.Error(w, "History not enabled", http.StatusServiceUnavailable)
			return
		}
		q := r.URL.Query()

		var runs []*sfm.CleanRun
		var err error
		if scene := q.Get("scene"); scene != "" {
			runs, err = history.ListByScene(scene)
		} else {
			limit := 0
			if v := q.Get("limit"); v != "" {
				limit, err = strconv.Atoi(v)
				if err != nil || limit < 0 {
					http.Error(w, "Invalid limit", http.StatusBadRequest)
					return
				}
			}
			runs, err = history.Recent(limit)
		}
		if err != nil {
			log.Printf("[HTTP] /history: %v", err)
			http.Error(w, "History query failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, runs)
	})

	return mux
}

// sceneState looks up the {id} scene, answering 404 when it is unknown
func sceneState(w http.ResponseWriter, r *http.Request, st *sfm.StateTracker) (*sfm.SceneState, bool) {
	state, ok := st.GetScene(r.PathValue("id"))
	if !ok {
		http.Error(w, "Scene not found", http.StatusNotFound)
		return nil, false
	}
	return state, true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}
