package sfm

import (
	"time"

	"github.com/google/uuid"
)

// CleanReport describes one cleaning run over a scene
type CleanReport struct {
	RunID     string      `json:"runId"`
	SceneID   string      `json:"sceneId"`
	Timestamp int64       `json:"timestamp"`
	Duration  float64     `json:"durationMs"`
	Params    CleanParams `json:"params"`
	Result    CleanResult `json:"result"`

	CamerasBefore      int `json:"camerasBefore"`
	LandmarksBefore    int `json:"landmarksBefore"`
	RemainingCameras   int `json:"remainingCameras"`
	RemainingLandmarks int `json:"remainingLandmarks"`

	// Coverage is the per-frame coverage of the cleaned scene
	Coverage []FrameCoverage `json:"coverage"`
	// Components holds the camera count of each component of the cleaned
	// scene. A converged run has at most one.
	Components []int `json:"components"`
}

// ReportSummary is the compact form published in the combined reports list
type ReportSummary struct {
	SceneID            string `json:"sceneId"`
	RunID              string `json:"runId"`
	Timestamp          int64  `json:"timestamp"`
	RemovedCameras     int    `json:"removedCameras"`
	RemovedLandmarks   int    `json:"removedLandmarks"`
	RemainingCameras   int    `json:"remainingCameras"`
	RemainingLandmarks int    `json:"remainingLandmarks"`
}

// CleanScene cleans s in place and returns a report of the run
func CleanScene(s *Scene, params CleanParams, logger Logger) *CleanReport {
	camsBefore, lmsBefore := s.CameraCount(), len(s.Landmarks)
	start := time.Now()
	result := s.Clean(params, logger)
	elapsed := time.Since(start)

	r := NewCleanReport(s, params, result)
	r.CamerasBefore = camsBefore
	r.LandmarksBefore = lmsBefore
	r.Duration = float64(elapsed.Microseconds()) / 1000.0
	return r
}

// NewCleanReport builds a report for a scene that has already been cleaned
// with params, producing result.
func NewCleanReport(s *Scene, params CleanParams, result CleanResult) *CleanReport {
	coverage := ImageCoverages(s.Tracks, s.Landmarks, s.Cameras)
	comps := ConnectedCameraComponents(s.Cameras, s.Landmarks, s.Tracks)

	return &CleanReport{
		RunID:              uuid.New().String(),
		SceneID:            s.ID,
		Timestamp:          time.Now().Unix(),
		Params:             params,
		Result:             result,
		CamerasBefore:      s.CameraCount() + len(result.RemovedCameras),
		LandmarksBefore:    len(s.Landmarks) + len(result.RemovedLandmarks),
		RemainingCameras:   s.CameraCount(),
		RemainingLandmarks: len(s.Landmarks),
		Coverage:           coverage,
		Components:         componentSizes(comps),
	}
}

// Summary returns the compact form of the report
func (r *CleanReport) Summary() ReportSummary {
	return ReportSummary{
		SceneID:            r.SceneID,
		RunID:              r.RunID,
		Timestamp:          r.Timestamp,
		RemovedCameras:     len(r.Result.RemovedCameras),
		RemovedLandmarks:   len(r.Result.RemovedLandmarks),
		RemainingCameras:   r.RemainingCameras,
		RemainingLandmarks: r.RemainingLandmarks,
	}
}
