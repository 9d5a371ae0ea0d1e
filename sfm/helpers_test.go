package sfm

import (
	"testing"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// testIntrinsics describes a 1280x960 image with a 1000px focal length
var testIntrinsics = Intrinsics{
	FocalLength:    1000,
	PrincipalPoint: r2.Vec{X: 640, Y: 480},
	AspectRatio:    1,
}

// worldUp makes image y grow along world +Y for cameras looking down +Z
var worldUp = r3.Vec{X: 0, Y: -1, Z: 0}

// fixture is a small scene under construction
type fixture struct {
	t      *testing.T
	cams   CameraMap
	lms    LandmarkMap
	tracks *TrackSet
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		t:      t,
		cams:   make(CameraMap),
		lms:    make(LandmarkMap),
		tracks: NewTrackSet(),
	}
}

// forwardCamera creates a camera at center looking along +Z
func forwardCamera(t *testing.T, center r3.Vec) *SimpleCamera {
	t.Helper()
	cam, err := LookAt(center, r3.Add(center, r3.Vec{Z: 1}), worldUp, testIntrinsics)
	if err != nil {
		t.Fatalf("LookAt: %v", err)
	}
	return cam
}

func (f *fixture) addCamera(fid FrameID, center r3.Vec) *SimpleCamera {
	f.t.Helper()
	cam := forwardCamera(f.t, center)
	f.cams[fid] = cam
	return cam
}

// addLandmark adds a landmark and a track observing it exactly from each frame
func (f *fixture) addLandmark(id LandmarkID, loc r3.Vec, frames ...FrameID) *Track {
	f.t.Helper()
	lm := &Landmark{ID: id, Loc: loc}
	f.lms[id] = lm
	t := &Track{ID: id}
	for _, fid := range frames {
		cam, ok := f.cams[fid]
		if !ok {
			f.t.Fatalf("frame %d has no camera", fid)
		}
		t.States = append(t.States, &TrackState{
			Frame:   fid,
			Feature: &Feature{Loc: cam.Project(loc)},
			Inlier:  true,
		})
	}
	f.tracks.Add(t)
	return t
}

// addGrid adds a rows x cols grid of landmarks at depth z starting at id,
// spanning x in [-4, 4] and y in [-3, 3], each observed by every frame.
// It returns the next unused id.
func (f *fixture) addGrid(id LandmarkID, rows, cols int, z float64, frames ...FrameID) LandmarkID {
	f.t.Helper()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			x := -4.0 + 8.0*float64(c)/float64(max(cols-1, 1))
			y := -3.0 + 6.0*float64(r)/float64(max(rows-1, 1))
			f.addLandmark(id, r3.Vec{X: x, Y: y, Z: z}, frames...)
			id++
		}
	}
	return id
}

// lenientParams disables coverage removal and keeps a wide error tolerance
func lenientParams() CleanParams {
	p := DefaultCleanParams()
	p.CoverageThresh = 0
	return p
}

// recordingLogger captures log lines
type recordingLogger struct {
	lines []string
	onLog func()
}

func (l *recordingLogger) Printf(format string, args ...interface{}) {
	l.lines = append(l.lines, format)
	if l.onLog != nil {
		l.onLog()
	}
}
