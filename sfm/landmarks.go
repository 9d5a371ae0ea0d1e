package sfm

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// FarPointFactor scales the median inlier depth into the far-point threshold
const FarPointFactor = 10.0

// LandmarkCriteria holds the thresholds for landmark validation
type LandmarkCriteria struct {
	// TriangCosAngThresh removes landmarks whose widest triangulation angle
	// has a cosine above this value.
	TriangCosAngThresh float64
	// ErrorTol is the reprojection error tolerance in pixels. Negative
	// disables the reprojection test.
	ErrorTol float64
	// OutlierStdevBound removes landmarks further than this many standard
	// deviations from the mean on any axis. Zero disables the filter.
	OutlierStdevBound float64
}

// LandmarkReport is the outcome of DetectBadLandmarks
type LandmarkReport struct {
	Remove        []LandmarkID // ascending
	Outliers      int
	Unconstrained int
	BadAngle      int
	TooFar        int
	// DepthThreshold is the far-point cutoff, or -1 when no inlier depth
	// was recorded.
	DepthThreshold float64
}

// observationCamera resolves the camera for a track state.
// Empty observations and absent cameras yield false.
func observationCamera(cams CameraMap, ts *TrackState) (Camera, bool) {
	if _, ok := ts.Observed(); !ok {
		return nil, false
	}
	cam, ok := cams[ts.Frame]
	if !ok || cam == nil {
		return nil, false
	}
	return cam, true
}

// DetectBadLandmarks scores every landmark in lms and returns those that
// should be removed. As a side effect it rewrites the inlier flag of every
// visited observation that has a camera in cams.
//
// A landmark is removed when it is a statistical outlier (if enabled), has
// fewer than two inlier views, has a too-narrow triangulation angle, or has
// an inlier view deeper than FarPointFactor times the median inlier depth.
func DetectBadLandmarks(cams CameraMap, lms LandmarkMap, tracks *TrackSet, crit LandmarkCriteria, logger Logger) LandmarkReport {
	logger = orNop(logger)
	remove := make(map[LandmarkID]struct{})
	report := LandmarkReport{DepthThreshold: -1}

	if crit.OutlierStdevBound > 0 {
		for _, id := range statisticalOutliers(lms, crit.OutlierStdevBound) {
			remove[id] = struct{}{}
			report.Outliers++
		}
	}

	ets := crit.ErrorTol * crit.ErrorTol
	ids := sortedLandmarks(lms)

	var depths []float64
	for _, id := range ids {
		if _, gone := remove[id]; gone {
			continue
		}
		lm := lms[id]
		if lm == nil {
			continue
		}
		t, ok := tracks.Get(id)
		if !ok {
			continue
		}

		var observing []Camera
		for _, ts := range t.States {
			cam, ok := observationCamera(cams, ts)
			if !ok {
				continue
			}
			d := cam.Depth(lm.Loc)
			if d <= 0 {
				ts.Inlier = false
				continue
			}
			loc, _ := ts.Observed()
			if crit.ErrorTol < 0 || ReprojectionErrorSqr(cam, lm, loc) <= ets {
				ts.Inlier = true
				observing = append(observing, cam)
				depths = append(depths, d)
			} else {
				ts.Inlier = false
			}
		}

		if len(observing) < 2 {
			report.Unconstrained++
			remove[id] = struct{}{}
			continue
		}
		if BundleAngleMax(observing, lm.Loc) > crit.TriangCosAngThresh {
			report.BadAngle++
			remove[id] = struct{}{}
		}
	}

	if len(depths) > 0 {
		slices.Sort(depths)
		report.DepthThreshold = depths[len(depths)/2] * FarPointFactor
		for _, id := range ids {
			if _, gone := remove[id]; gone {
				continue
			}
			if landmarkTooFar(cams, lms[id], tracks, report.DepthThreshold) {
				report.TooFar++
				remove[id] = struct{}{}
			}
		}
	}

	report.Remove = make([]LandmarkID, 0, len(remove))
	for _, id := range ids {
		if _, ok := remove[id]; ok {
			report.Remove = append(report.Remove, id)
		}
	}

	logger.Printf("landmarks=%d outliers=%d unconstrained=%d bad_angle=%d too_far=%d depth_thresh=%.3f",
		len(lms), report.Outliers, report.Unconstrained, report.BadAngle, report.TooFar, report.DepthThreshold)
	return report
}

// landmarkTooFar reports whether any inlier view of lm is deeper than thresh
func landmarkTooFar(cams CameraMap, lm *Landmark, tracks *TrackSet, thresh float64) bool {
	if lm == nil {
		return false
	}
	t, ok := tracks.Get(lm.ID)
	if !ok {
		return false
	}
	for _, ts := range t.States {
		if !ts.Inlier {
			continue
		}
		cam, ok := observationCamera(cams, ts)
		if !ok {
			continue
		}
		if cam.Depth(lm.Loc) > thresh {
			return true
		}
	}
	return false
}

// statisticalOutliers returns landmarks whose distance from the mean exceeds
// bound standard deviations on any axis.
func statisticalOutliers(lms LandmarkMap, bound float64) []LandmarkID {
	ids := sortedLandmarks(lms)
	if len(ids) < 2 {
		return nil
	}
	xs := make([]float64, 0, len(ids))
	ys := make([]float64, 0, len(ids))
	zs := make([]float64, 0, len(ids))
	kept := make([]LandmarkID, 0, len(ids))
	for _, id := range ids {
		lm := lms[id]
		if lm == nil {
			continue
		}
		kept = append(kept, id)
		xs = append(xs, lm.Loc.X)
		ys = append(ys, lm.Loc.Y)
		zs = append(zs, lm.Loc.Z)
	}
	if len(kept) < 2 {
		return nil
	}

	mx, sx := stat.MeanStdDev(xs, nil)
	my, sy := stat.MeanStdDev(ys, nil)
	mz, sz := stat.MeanStdDev(zs, nil)

	var out []LandmarkID
	for i, id := range kept {
		if exceeds(xs[i], mx, sx, bound) || exceeds(ys[i], my, sy, bound) || exceeds(zs[i], mz, sz, bound) {
			out = append(out, id)
		}
	}
	return out
}

// exceeds reports whether v lies more than bound deviations from mean.
// A zero deviation axis never flags anything.
func exceeds(v, mean, stdev, bound float64) bool {
	if stdev == 0 || math.IsNaN(stdev) {
		return false
	}
	return math.Abs(v-mean)/stdev > bound
}

// RemoveLandmarks deletes the given ids from lms, ignoring unknown ids.
// It returns the number actually removed.
func RemoveLandmarks(ids []LandmarkID, lms LandmarkMap) int {
	n := 0
	for _, id := range ids {
		if _, ok := lms[id]; ok {
			delete(lms, id)
			n++
		}
	}
	return n
}
