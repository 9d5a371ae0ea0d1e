package sfm

import (
	"maps"
	"slices"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// FrameID identifies a camera frame
type FrameID int64

// TrackID identifies a feature track
type TrackID int64

// LandmarkID identifies a landmark. Landmarks share the id of the track that
// supports them.
type LandmarkID = TrackID

// Camera is the minimal camera capability the cleaner needs.
type Camera interface {
	// Center returns the camera center in world coordinates.
	Center() r3.Vec
	// Depth returns the signed distance of pt in front of the image plane.
	Depth(pt r3.Vec) float64
	// Project maps a world point to image coordinates.
	Project(pt r3.Vec) r2.Vec
	// PrincipalPoint returns the principal point in pixels.
	PrincipalPoint() r2.Vec
}

// ImageSize returns the image width and height implied by the camera's
// principal point (assumed to be the image center). ok is false when the
// camera is absent or the derived size is not positive.
func ImageSize(cam Camera) (w, h int, ok bool) {
	if cam == nil {
		return 0, 0, false
	}
	pp := cam.PrincipalPoint()
	w = int(pp.X * 2.0)
	h = int(pp.Y * 2.0)
	if w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

// Landmark is a triangulated 3D point
type Landmark struct {
	ID  LandmarkID
	Loc r3.Vec
}

// CameraMap holds cameras by frame. A nil entry means the camera is absent.
type CameraMap map[FrameID]Camera

// LandmarkMap holds landmarks by id
type LandmarkMap map[LandmarkID]*Landmark

// Feature is a 2D feature measurement
type Feature struct {
	Loc r2.Vec
}

// TrackState is one appearance of a track on one frame.
//
// A nil Feature is an empty observation: the track touches the frame but
// carries no measurement, so it never counts as evidence for a landmark.
type TrackState struct {
	Frame   FrameID
	Feature *Feature
	Inlier  bool
}

// Observed returns the feature location and true, or false for an empty
// observation.
func (ts *TrackState) Observed() (r2.Vec, bool) {
	if ts == nil || ts.Feature == nil {
		return r2.Vec{}, false
	}
	return ts.Feature.Loc, true
}

// Track is an ordered sequence of track states sharing one id
type Track struct {
	ID     TrackID
	States []*TrackState
}

// TrackSet holds tracks in insertion order with an id index
type TrackSet struct {
	tracks []*Track
	byID   map[TrackID]*Track
}

// NewTrackSet creates a track set from the given tracks.
// A later track with a duplicate id replaces the earlier one in the index.
func NewTrackSet(tracks ...*Track) *TrackSet {
	ts := &TrackSet{byID: make(map[TrackID]*Track, len(tracks))}
	for _, t := range tracks {
		ts.Add(t)
	}
	return ts
}

// Add appends a track
func (s *TrackSet) Add(t *Track) {
	if t == nil {
		return
	}
	if s.byID == nil {
		s.byID = make(map[TrackID]*Track)
	}
	s.tracks = append(s.tracks, t)
	s.byID[t.ID] = t
}

// Tracks returns the tracks in insertion order
func (s *TrackSet) Tracks() []*Track {
	if s == nil {
		return nil
	}
	return s.tracks
}

// Get returns the track with the given id
func (s *TrackSet) Get(id TrackID) (*Track, bool) {
	if s == nil {
		return nil, false
	}
	t, ok := s.byID[id]
	return t, ok
}

// Len returns the number of tracks
func (s *TrackSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.tracks)
}

// FrameSet is a set of frame ids
type FrameSet map[FrameID]struct{}

// Add inserts a frame
func (fs FrameSet) Add(id FrameID) { fs[id] = struct{}{} }

// Has reports whether the frame is in the set
func (fs FrameSet) Has(id FrameID) bool {
	_, ok := fs[id]
	return ok
}

// Sorted returns the frames in ascending order
func (fs FrameSet) Sorted() []FrameID {
	return slices.Sorted(maps.Keys(fs))
}

// Scene owns the cameras, landmarks and tracks of one reconstruction
type Scene struct {
	ID        string
	Cameras   CameraMap
	Landmarks LandmarkMap
	Tracks    *TrackSet
}

// NewScene creates an empty scene
func NewScene(id string) *Scene {
	return &Scene{
		ID:        id,
		Cameras:   make(CameraMap),
		Landmarks: make(LandmarkMap),
		Tracks:    NewTrackSet(),
	}
}

// Clean runs CleanCamerasAndLandmarks on the scene's own collections.
func (s *Scene) Clean(params CleanParams, logger Logger) CleanResult {
	return CleanCamerasAndLandmarks(s.Cameras, s.Landmarks, s.Tracks, params, logger)
}

// CameraCount returns the number of present cameras
func (s *Scene) CameraCount() int {
	n := 0
	for _, cam := range s.Cameras {
		if cam != nil {
			n++
		}
	}
	return n
}

// sortedFrames returns the frames of cams in ascending order
func sortedFrames(cams CameraMap) []FrameID {
	return slices.Sorted(maps.Keys(cams))
}

// sortedLandmarks returns the landmark ids of lms in ascending order
func sortedLandmarks(lms LandmarkMap) []LandmarkID {
	return slices.Sorted(maps.Keys(lms))
}
