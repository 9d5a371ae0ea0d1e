package sfm

import "math"

// CleanParams configures CleanCamerasAndLandmarks
type CleanParams struct {
	// TriangCosAngThresh is the largest allowed cosine of a landmark's
	// widest triangulation angle.
	TriangCosAngThresh float64 `yaml:"triangulationAngleCos" json:"triangulationAngleCos"`
	// CoverageThresh is the minimum image coverage fraction a camera needs.
	CoverageThresh float64 `yaml:"coverageThreshold" json:"coverageThreshold"`
	// ErrorTol is the reprojection error tolerance in pixels; negative
	// disables the reprojection test.
	ErrorTol float64 `yaml:"errorTolerance" json:"errorTolerance"`
	// OutlierStdevBound enables the statistical landmark filter when positive.
	OutlierStdevBound float64 `yaml:"outlierStdevBound,omitempty" json:"outlierStdevBound,omitempty"`

	// ActiveCameras restricts camera validation to these frames.
	// Empty means all cameras.
	ActiveCameras []FrameID `yaml:"-" json:"activeCameras,omitempty"`
	// ActiveLandmarks restricts landmark validation to these landmarks.
	// Empty means all landmarks.
	ActiveLandmarks []LandmarkID `yaml:"-" json:"activeLandmarks,omitempty"`
}

// DefaultCleanParams returns thresholds suitable for pixel-scale imagery:
// a 1 degree minimum triangulation angle, 25% coverage and 5px error.
func DefaultCleanParams() CleanParams {
	return CleanParams{
		TriangCosAngThresh: math.Cos(1.0 * math.Pi / 180.0),
		CoverageThresh:     0.25,
		ErrorTol:           5.0,
	}
}

// criteria extracts the landmark thresholds
func (p CleanParams) criteria() LandmarkCriteria {
	return LandmarkCriteria{
		TriangCosAngThresh: p.TriangCosAngThresh,
		ErrorTol:           p.ErrorTol,
		OutlierStdevBound:  p.OutlierStdevBound,
	}
}

// CleanResult summarizes a cleaning run
type CleanResult struct {
	RemovedCameras   []FrameID    `json:"removedCameras"` // removal order
	RemovedLandmarks []LandmarkID `json:"removedLandmarks"`
	Iterations       int          `json:"iterations"`

	OutlierLandmarks       int `json:"outlierLandmarks"`
	UnconstrainedLandmarks int `json:"unconstrainedLandmarks"`
	BadAngleLandmarks      int `json:"badAngleLandmarks"`
	FarLandmarks           int `json:"farLandmarks"`
	LowCoverageCameras     int `json:"lowCoverageCameras"`
	DisconnectedCameras    int `json:"disconnectedCameras"`
	// ComponentSizes holds the camera count of each component seen by the
	// last connectivity pass that split the solution.
	ComponentSizes []int `json:"componentSizes,omitempty"`
}

// CleanCamerasAndLandmarks repeatedly removes bad landmarks, poorly covered
// cameras, and cameras outside the largest connected component until a pass
// removes nothing. cams and lms are modified in place; tracks only have
// their inlier flags rewritten.
func CleanCamerasAndLandmarks(cams CameraMap, lms LandmarkMap, tracks *TrackSet, params CleanParams, logger Logger) CleanResult {
	logger = orNop(logger)
	result := CleanResult{
		RemovedCameras:   []FrameID{},
		RemovedLandmarks: []LandmarkID{},
	}

	detLms := activeLandmarks(lms, params.ActiveLandmarks)
	detCams := activeCameras(cams, params.ActiveCameras)
	crit := params.criteria()

	for changed := true; changed; {
		changed = false
		result.Iterations++

		lr := DetectBadLandmarks(cams, detLms, tracks, crit, logger)
		if len(lr.Remove) > 0 {
			changed = true
			logger.Printf("removing %d under constrained landmarks", len(lr.Remove))
		}
		RemoveLandmarks(lr.Remove, lms)
		RemoveLandmarks(lr.Remove, detLms)
		result.RemovedLandmarks = append(result.RemovedLandmarks, lr.Remove...)
		result.OutlierLandmarks += lr.Outliers
		result.UnconstrainedLandmarks += lr.Unconstrained
		result.BadAngleLandmarks += lr.BadAngle
		result.FarLandmarks += lr.TooFar

		for _, fid := range DetectBadCameras(detCams, detLms, tracks, params.CoverageThresh) {
			delete(cams, fid)
			delete(detCams, fid)
			result.RemovedCameras = append(result.RemovedCameras, fid)
			result.LowCoverageCameras++
			changed = true
			logger.Printf("removing camera %d (low coverage)", fid)
		}

		comps := ConnectedCameraComponents(cams, lms, tracks)
		if len(comps) > 1 {
			keep := comps[LargestComponent(comps)]
			result.ComponentSizes = componentSizes(comps)
			logger.Printf("found %d camera components, keeping %d cameras", len(comps), len(keep))
			for _, fid := range sortedFrames(cams) {
				if keep.Has(fid) || cams[fid] == nil {
					continue
				}
				delete(cams, fid)
				delete(detCams, fid)
				result.RemovedCameras = append(result.RemovedCameras, fid)
				result.DisconnectedCameras++
				changed = true
				logger.Printf("removing camera %d (disconnected)", fid)
			}
		}
	}

	return result
}

// activeLandmarks returns a view of lms restricted to ids. An empty id list
// selects everything.
func activeLandmarks(lms LandmarkMap, ids []LandmarkID) LandmarkMap {
	out := make(LandmarkMap, len(lms))
	if len(ids) == 0 {
		for id, lm := range lms {
			out[id] = lm
		}
		return out
	}
	for _, id := range ids {
		if lm, ok := lms[id]; ok {
			out[id] = lm
		}
	}
	return out
}

// activeCameras returns a view of cams restricted to ids. An empty id list
// selects everything.
func activeCameras(cams CameraMap, ids []FrameID) CameraMap {
	out := make(CameraMap, len(cams))
	if len(ids) == 0 {
		for fid, cam := range cams {
			out[fid] = cam
		}
		return out
	}
	for _, fid := range ids {
		if cam, ok := cams[fid]; ok {
			out[fid] = cam
		}
	}
	return out
}

func componentSizes(comps []FrameSet) []int {
	sizes := make([]int, len(comps))
	for i, c := range comps {
		sizes[i] = len(c)
	}
	return sizes
}
