package sfm

// ConnectedCameraComponents partitions the observed cameras into maximal sets
// linked by co-observing a landmark. Only inlier observations of tracks with
// a landmark in lms, on frames with a present camera, are considered.
//
// Each track's camera clique is merged into the first existing component it
// overlaps; any further overlapping components are folded into that one and
// dropped by swap-and-pop from the highest index down.
func ConnectedCameraComponents(cams CameraMap, lms LandmarkMap, tracks *TrackSet) []FrameSet {
	var comps []FrameSet

	for _, t := range tracks.Tracks() {
		if lm, ok := lms[t.ID]; !ok || lm == nil {
			continue
		}

		clique := make(FrameSet)
		for _, ts := range t.States {
			if !ts.Inlier {
				// outliers don't connect cameras
				continue
			}
			if _, ok := observationCamera(cams, ts); !ok {
				continue
			}
			clique.Add(ts.Frame)
		}
		if len(clique) == 0 {
			continue
		}

		var overlapping []int
		for i, comp := range comps {
			for fid := range clique {
				if comp.Has(fid) {
					overlapping = append(overlapping, i)
					break
				}
			}
		}

		if len(overlapping) == 0 {
			comps = append(comps, clique)
			continue
		}

		final := comps[overlapping[0]]
		for fid := range clique {
			final.Add(fid)
		}
		for _, idx := range overlapping[1:] {
			for fid := range comps[idx] {
				final.Add(fid)
			}
		}
		for k := len(overlapping) - 1; k >= 1; k-- {
			idx := overlapping[k]
			last := len(comps) - 1
			comps[idx] = comps[last]
			comps[last] = nil
			comps = comps[:last]
		}
	}
	return comps
}

// LargestComponent returns the index of the component with the most cameras,
// preferring the lowest index on ties, or -1 for no components.
func LargestComponent(comps []FrameSet) int {
	best := -1
	for i, c := range comps {
		if best < 0 || len(c) > len(comps[best]) {
			best = i
		}
	}
	return best
}
