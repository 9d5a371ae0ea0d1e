package sfm

import (
	"cmp"
	"image/color"
	"slices"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/spatial/r3"
)

// PlanCamera is a camera projected onto the ground plane
type PlanCamera struct {
	Frame    FrameID
	Position orb.Point
	// Component is the index into PlanView.Components, or -1 when the
	// camera observes nothing.
	Component int
	Removed   bool
}

// PlanLandmark is a landmark projected onto the ground plane
type PlanLandmark struct {
	ID       LandmarkID
	Position orb.Point
}

// PlanView is a top-down (X/Z) view of a scene after cleaning. Components are
// ordered largest first, ties broken by the smallest frame.
type PlanView struct {
	SceneID    string
	Cameras    []PlanCamera
	Landmarks  []PlanLandmark
	Components [][]FrameID
}

// ComponentColor pairs the fill and outline colors of a component
type ComponentColor struct {
	Fill    color.NRGBA
	Outline color.NRGBA
}

// DefaultComponentColors returns the palette used for camera components.
// Index 0 is the main component.
func DefaultComponentColors() []ComponentColor {
	return []ComponentColor{
		{ // Blue
			Fill:    color.NRGBA{100, 149, 237, 120},
			Outline: color.NRGBA{0, 0, 139, 255},
		},
		{ // Orange
			Fill:    color.NRGBA{255, 165, 0, 120},
			Outline: color.NRGBA{205, 102, 0, 255},
		},
		{ // Green
			Fill:    color.NRGBA{144, 238, 144, 120},
			Outline: color.NRGBA{0, 100, 0, 255},
		},
		{ // Purple
			Fill:    color.NRGBA{216, 191, 216, 120},
			Outline: color.NRGBA{85, 26, 139, 255},
		},
	}
}

// groundPoint drops the vertical (Y) axis
func groundPoint(v r3.Vec) orb.Point {
	return orb.Point{v.X, v.Z}
}

// NewPlanView builds the plan view of a cleaned scene. removed holds the
// cameras the cleaning run dropped; they are drawn but belong to no
// component.
func NewPlanView(s *Scene, removed CameraMap) *PlanView {
	pv := &PlanView{SceneID: s.ID}

	comps := ConnectedCameraComponents(s.Cameras, s.Landmarks, s.Tracks)
	for _, c := range comps {
		pv.Components = append(pv.Components, c.Sorted())
	}
	slices.SortFunc(pv.Components, func(a, b []FrameID) int {
		if len(a) != len(b) {
			return len(b) - len(a)
		}
		return cmp.Compare(a[0], b[0])
	})

	compOf := make(map[FrameID]int)
	for i, c := range pv.Components {
		for _, fid := range c {
			compOf[fid] = i
		}
	}

	for _, fid := range sortedFrames(s.Cameras) {
		cam := s.Cameras[fid]
		if cam == nil {
			continue
		}
		comp, ok := compOf[fid]
		if !ok {
			comp = -1
		}
		pv.Cameras = append(pv.Cameras, PlanCamera{
			Frame:     fid,
			Position:  groundPoint(cam.Center()),
			Component: comp,
		})
	}
	for _, fid := range sortedFrames(removed) {
		cam := removed[fid]
		if cam == nil {
			continue
		}
		if _, kept := s.Cameras[fid]; kept {
			continue
		}
		pv.Cameras = append(pv.Cameras, PlanCamera{
			Frame:     fid,
			Position:  groundPoint(cam.Center()),
			Component: -1,
			Removed:   true,
		})
	}
	slices.SortFunc(pv.Cameras, func(a, b PlanCamera) int { return cmp.Compare(a.Frame, b.Frame) })

	for _, id := range sortedLandmarks(s.Landmarks) {
		lm := s.Landmarks[id]
		if lm == nil {
			continue
		}
		pv.Landmarks = append(pv.Landmarks, PlanLandmark{ID: id, Position: groundPoint(lm.Loc)})
	}
	return pv
}

// Bound returns the ground-plane bound of every camera and landmark
func (pv *PlanView) Bound() (orb.Bound, bool) {
	var mp orb.MultiPoint
	for _, c := range pv.Cameras {
		mp = append(mp, c.Position)
	}
	for _, l := range pv.Landmarks {
		mp = append(mp, l.Position)
	}
	if len(mp) == 0 {
		return orb.Bound{}, false
	}
	return mp.Bound(), true
}

// componentPoints returns the ground positions of the cameras of component i
// in frame order
func (pv *PlanView) componentPoints(i int) []orb.Point {
	var pts []orb.Point
	for _, c := range pv.Cameras {
		if c.Component == i {
			pts = append(pts, c.Position)
		}
	}
	return pts
}

// Footprint returns the ground footprint of component i: the convex hull of
// its cameras, or their bounding box when the hull is degenerate.
func (pv *PlanView) Footprint(i int) orb.Polygon {
	pts := pv.componentPoints(i)
	if len(pts) == 0 {
		return nil
	}
	hull := convexHull(pts)
	if len(hull) < 3 {
		return orb.MultiPoint(pts).Bound().ToPolygon()
	}
	hull = append(hull, hull[0])
	return orb.Polygon{orb.Ring(hull)}
}

// convexHull computes the hull of points with Andrew's monotone chain,
// counter-clockwise without the closing point.
func convexHull(points []orb.Point) []orb.Point {
	if len(points) < 3 {
		return slices.Clone(points)
	}

	sorted := slices.Clone(points)
	slices.SortFunc(sorted, func(a, b orb.Point) int {
		if c := cmp.Compare(a[0], b[0]); c != 0 {
			return c
		}
		return cmp.Compare(a[1], b[1])
	})

	cross := func(o, a, b orb.Point) float64 {
		return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
	}

	n := len(sorted)
	hull := make([]orb.Point, 0, 2*n)
	for _, p := range sorted {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := n - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}
