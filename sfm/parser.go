package sfm

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// sceneJSON is the on-disk and on-the-wire scene format
type sceneJSON struct {
	ID        string         `json:"id"`
	Cameras   []cameraJSON   `json:"cameras"`
	Landmarks []landmarkJSON `json:"landmarks"`
	Tracks    []trackJSON    `json:"tracks"`
}

type cameraJSON struct {
	Frame FrameID `json:"frame"`
	// Absent marks a frame whose camera is unknown
	Absent         bool        `json:"absent,omitempty"`
	Center         [3]float64  `json:"center"`
	Rotation       []float64   `json:"rotation,omitempty"` // row-major 3x3 world-to-camera
	LookAt         *lookAtJSON `json:"lookAt,omitempty"`
	FocalLength    float64     `json:"focalLength"`
	PrincipalPoint [2]float64  `json:"principalPoint"`
	AspectRatio    float64     `json:"aspectRatio,omitempty"`
	Skew           float64     `json:"skew,omitempty"`
}

type lookAtJSON struct {
	Target [3]float64 `json:"target"`
	Up     [3]float64 `json:"up"`
}

type landmarkJSON struct {
	ID  LandmarkID `json:"id"`
	Loc [3]float64 `json:"loc"`
}

type trackJSON struct {
	ID     TrackID     `json:"id"`
	States []stateJSON `json:"states"`
}

type stateJSON struct {
	Frame  FrameID     `json:"frame"`
	Loc    *[2]float64 `json:"loc,omitempty"`
	Inlier bool        `json:"inlier"`
}

// ParseSceneFile reads and parses a scene JSON file. A scene without an id
// takes the file's base name.
func ParseSceneFile(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	s, err := ParseSceneJSON(data)
	if err != nil {
		return nil, err
	}
	if s.ID == "" {
		s.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return s, nil
}

// ParseSceneJSON parses scene JSON data
func ParseSceneJSON(data []byte) (*Scene, error) {
	var raw sceneJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}

	s := NewScene(raw.ID)
	for i, cj := range raw.Cameras {
		if _, dup := s.Cameras[cj.Frame]; dup {
			return nil, fmt.Errorf("cameras[%d]: duplicate frame %d", i, cj.Frame)
		}
		if cj.Absent {
			s.Cameras[cj.Frame] = nil
			continue
		}
		cam, err := cj.camera()
		if err != nil {
			return nil, fmt.Errorf("cameras[%d] (frame %d): %w", i, cj.Frame, err)
		}
		s.Cameras[cj.Frame] = cam
	}

	for i, lj := range raw.Landmarks {
		if _, dup := s.Landmarks[lj.ID]; dup {
			return nil, fmt.Errorf("landmarks[%d]: duplicate id %d", i, lj.ID)
		}
		s.Landmarks[lj.ID] = &Landmark{ID: lj.ID, Loc: vec3(lj.Loc)}
	}

	for _, tj := range raw.Tracks {
		t := &Track{ID: tj.ID, States: make([]*TrackState, 0, len(tj.States))}
		for _, sj := range tj.States {
			ts := &TrackState{Frame: sj.Frame, Inlier: sj.Inlier}
			if sj.Loc != nil {
				ts.Feature = &Feature{Loc: r2.Vec{X: sj.Loc[0], Y: sj.Loc[1]}}
			}
			t.States = append(t.States, ts)
		}
		s.Tracks.Add(t)
	}
	return s, nil
}

func (cj cameraJSON) camera() (*SimpleCamera, error) {
	in := Intrinsics{
		FocalLength:    cj.FocalLength,
		PrincipalPoint: r2.Vec{X: cj.PrincipalPoint[0], Y: cj.PrincipalPoint[1]},
		AspectRatio:    cj.AspectRatio,
		Skew:           cj.Skew,
	}
	center := vec3(cj.Center)

	switch {
	case len(cj.Rotation) > 0:
		if len(cj.Rotation) != 9 {
			return nil, fmt.Errorf("rotation needs 9 values, got %d", len(cj.Rotation))
		}
		return NewSimpleCamera(center, mat.NewDense(3, 3, cj.Rotation), in)
	case cj.LookAt != nil:
		return LookAt(center, vec3(cj.LookAt.Target), vec3(cj.LookAt.Up), in)
	default:
		return nil, fmt.Errorf("camera needs rotation or lookAt")
	}
}

// MarshalScene encodes a scene in the format read by ParseSceneJSON.
// Only SimpleCamera cameras can be encoded.
func MarshalScene(s *Scene) ([]byte, error) {
	raw := sceneJSON{
		ID:        s.ID,
		Cameras:   make([]cameraJSON, 0, len(s.Cameras)),
		Landmarks: make([]landmarkJSON, 0, len(s.Landmarks)),
		Tracks:    make([]trackJSON, 0, s.Tracks.Len()),
	}

	for _, fid := range sortedFrames(s.Cameras) {
		switch cam := s.Cameras[fid].(type) {
		case nil:
			raw.Cameras = append(raw.Cameras, cameraJSON{Frame: fid, Absent: true})
		case *SimpleCamera:
			if cam == nil {
				raw.Cameras = append(raw.Cameras, cameraJSON{Frame: fid, Absent: true})
				continue
			}
			in := cam.Intrinsics()
			c := cam.Center()
			raw.Cameras = append(raw.Cameras, cameraJSON{
				Frame:          fid,
				Center:         [3]float64{c.X, c.Y, c.Z},
				Rotation:       cam.Rotation().RawMatrix().Data,
				FocalLength:    in.FocalLength,
				PrincipalPoint: [2]float64{in.PrincipalPoint.X, in.PrincipalPoint.Y},
				AspectRatio:    in.AspectRatio,
				Skew:           in.Skew,
			})
		default:
			return nil, fmt.Errorf("frame %d: cannot encode camera type %T", fid, cam)
		}
	}

	for _, id := range sortedLandmarks(s.Landmarks) {
		lm := s.Landmarks[id]
		if lm == nil {
			continue
		}
		raw.Landmarks = append(raw.Landmarks, landmarkJSON{ID: id, Loc: [3]float64{lm.Loc.X, lm.Loc.Y, lm.Loc.Z}})
	}

	for _, t := range s.Tracks.Tracks() {
		tj := trackJSON{ID: t.ID, States: make([]stateJSON, 0, len(t.States))}
		for _, ts := range t.States {
			sj := stateJSON{Frame: ts.Frame, Inlier: ts.Inlier}
			if loc, ok := ts.Observed(); ok {
				sj.Loc = &[2]float64{loc.X, loc.Y}
			}
			tj.States = append(tj.States, sj)
		}
		raw.Tracks = append(raw.Tracks, tj)
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("marshaling scene: %w", err)
	}
	return data, nil
}

func vec3(v [3]float64) r3.Vec {
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}
}
