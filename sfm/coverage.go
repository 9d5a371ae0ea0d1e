package sfm

import "math"

// Coverage mask dimensions
const (
	MaskWidth  = 16
	MaskHeight = 16
)

// CoverageMask records which cells of a frame contain at least one inlier
// landmark projection.
type CoverageMask [MaskHeight][MaskWidth]bool

// Count returns the number of covered cells
func (m *CoverageMask) Count() int {
	n := 0
	for r := range m {
		for c := range m[r] {
			if m[r][c] {
				n++
			}
		}
	}
	return n
}

// Fraction returns the covered share of the mask
func (m *CoverageMask) Fraction() float64 {
	if m == nil {
		return 0
	}
	return float64(m.Count()) / float64(MaskWidth*MaskHeight)
}

// FrameCoverage pairs a frame with its coverage fraction
type FrameCoverage struct {
	Frame    FrameID `json:"frame"`
	Coverage float64 `json:"coverage"`
}

type imageDims struct {
	w, h int
}

// maskCell maps an image location to a mask cell, clamping to the grid
func maskCell(x, y float64, dims imageDims) (row, col int) {
	row = int(math.Max(0, math.Min(MaskHeight*y/float64(dims.h), MaskHeight-1)))
	col = int(math.Max(0, math.Min(MaskWidth*x/float64(dims.w), MaskWidth-1)))
	return row, col
}

// CoverageMasks builds a coverage mask for every camera with known image
// dimensions. Frames without any inlier projection get an empty mask.
// Only tracks with a landmark in lms contribute.
func CoverageMasks(tracks *TrackSet, lms LandmarkMap, cams CameraMap) map[FrameID]*CoverageMask {
	dims := make(map[FrameID]imageDims, len(cams))
	masks := make(map[FrameID]*CoverageMask, len(cams))
	for fid, cam := range cams {
		w, h, ok := ImageSize(cam)
		if !ok {
			continue
		}
		dims[fid] = imageDims{w: w, h: h}
		masks[fid] = &CoverageMask{}
	}

	for _, t := range tracks.Tracks() {
		if _, ok := lms[t.ID]; !ok {
			continue
		}
		for _, ts := range t.States {
			d, ok := dims[ts.Frame]
			if !ok {
				continue
			}
			loc, ok := ts.Observed()
			if !ok || !ts.Inlier || math.IsNaN(loc.X) || math.IsNaN(loc.Y) {
				continue
			}
			row, col := maskCell(loc.X, loc.Y, d)
			masks[ts.Frame][row][col] = true
		}
	}
	return masks
}

// ImageCoverages returns the covered fraction of each frame with known
// image dimensions, in ascending frame order.
func ImageCoverages(tracks *TrackSet, lms LandmarkMap, cams CameraMap) []FrameCoverage {
	masks := CoverageMasks(tracks, lms, cams)
	out := make([]FrameCoverage, 0, len(masks))
	for _, fid := range sortedFrames(cams) {
		m, ok := masks[fid]
		if !ok {
			continue
		}
		out = append(out, FrameCoverage{Frame: fid, Coverage: m.Fraction()})
	}
	return out
}
