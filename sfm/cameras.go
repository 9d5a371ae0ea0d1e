package sfm

// DetectBadCameras returns the frames whose coverage fraction is strictly
// below coverageThresh, in ascending order. It reads the inlier flags left
// by the most recent DetectBadLandmarks pass.
func DetectBadCameras(cams CameraMap, lms LandmarkMap, tracks *TrackSet, coverageThresh float64) []FrameID {
	var bad []FrameID
	for _, fc := range ImageCoverages(tracks, lms, cams) {
		if fc.Coverage < coverageThresh {
			bad = append(bad, fc.Frame)
		}
	}
	return bad
}
