package sfm

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
)

// Feature kinds written to the "kind" property
const (
	KindCamera     = "camera"
	KindLandmark   = "landmark"
	KindComponent  = "component"
	KindTrajectory = "trajectory"
)

// SceneToGeoJSON exports a plan view as a FeatureCollection in ground-plane
// world units. It contains one Point per camera and landmark, one Polygon
// footprint per component and a LineString of the kept cameras in frame
// order. tolerance > 0 simplifies the trajectory with Douglas-Peucker.
func SceneToGeoJSON(pv *PlanView, tolerance float64) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for i, frames := range pv.Components {
		poly := pv.Footprint(i)
		if len(poly) == 0 {
			continue
		}
		f := geojson.NewFeature(poly)
		f.ID = fmt.Sprintf("component-%d", i)
		f.Properties["kind"] = KindComponent
		f.Properties["component"] = i
		f.Properties["cameras"] = len(frames)
		f.Properties["span"] = componentSpan(pv.componentPoints(i))
		f.Properties["area"] = planar.Area(poly)
		fc.Append(f)
	}

	var trajectory orb.LineString
	for _, cam := range pv.Cameras {
		f := geojson.NewFeature(cam.Position)
		f.ID = fmt.Sprintf("camera-%d", cam.Frame)
		f.Properties["kind"] = KindCamera
		f.Properties["frame"] = int64(cam.Frame)
		f.Properties["component"] = cam.Component
		f.Properties["removed"] = cam.Removed
		fc.Append(f)

		if !cam.Removed {
			trajectory = append(trajectory, cam.Position)
		}
	}

	for _, lm := range pv.Landmarks {
		f := geojson.NewFeature(lm.Position)
		f.ID = fmt.Sprintf("landmark-%d", lm.ID)
		f.Properties["kind"] = KindLandmark
		f.Properties["landmark"] = int64(lm.ID)
		fc.Append(f)
	}

	if len(trajectory) >= 2 {
		if tolerance > 0 {
			if s, ok := simplify.DouglasPeucker(tolerance).Simplify(trajectory.Clone()).(orb.LineString); ok {
				trajectory = s
			}
		}
		f := geojson.NewFeature(trajectory)
		f.ID = "trajectory"
		f.Properties["kind"] = KindTrajectory
		f.Properties["length"] = planar.Length(trajectory)
		fc.Append(f)
	}

	return fc
}

// componentSpan returns the largest ground distance between two cameras
func componentSpan(pts []orb.Point) float64 {
	span := 0.0
	for i := range pts {
		for j := i + 1; j < len(pts); j++ {
			span = max(span, planar.Distance(pts[i], pts[j]))
		}
	}
	return span
}

// MarshalSceneGeoJSON is SceneToGeoJSON encoded as JSON
func MarshalSceneGeoJSON(pv *PlanView, tolerance float64) ([]byte, error) {
	data, err := SceneToGeoJSON(pv, tolerance).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal geojson: %w", err)
	}
	return data, nil
}
