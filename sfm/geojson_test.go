package sfm

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func featuresByKind(fc *geojson.FeatureCollection) map[string][]*geojson.Feature {
	out := make(map[string][]*geojson.Feature)
	for _, f := range fc.Features {
		kind := f.Properties.MustString("kind", "")
		out[kind] = append(out[kind], f)
	}
	return out
}

func TestSceneToGeoJSON_CleanedScene(t *testing.T) {
	s, removed, _ := cleanedFixtureScene(t, "rig")
	data, err := MarshalSceneGeoJSON(NewPlanView(s, removed), 0.1)
	require.NoError(t, err)

	fc, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	byKind := featuresByKind(fc)

	require.Len(t, byKind[KindComponent], 1)
	comp := byKind[KindComponent][0]
	assert.Equal(t, 3, comp.Properties.MustInt("cameras"))
	assert.InDelta(t, 2.0, comp.Properties.MustFloat64("span"), 1e-9)
	_, isPoly := comp.Geometry.(orb.Polygon)
	assert.True(t, isPoly)

	require.Len(t, byKind[KindCamera], 5)
	removedFrames := []int{}
	for _, f := range byKind[KindCamera] {
		if f.Properties.MustBool("removed") {
			removedFrames = append(removedFrames, f.Properties.MustInt("frame"))
			assert.Equal(t, -1, f.Properties.MustInt("component"))
		}
	}
	assert.Equal(t, []int{4, 5}, removedFrames)

	assert.Len(t, byKind[KindLandmark], 16)

	require.Len(t, byKind[KindTrajectory], 1)
	traj := byKind[KindTrajectory][0]
	ls, ok := traj.Geometry.(orb.LineString)
	require.True(t, ok)
	assert.Equal(t, orb.LineString{{-1, 0}, {1, 0}}, ls, "collinear cameras simplify to endpoints")
	assert.InDelta(t, 2.0, traj.Properties.MustFloat64("length"), 1e-9)
}

func TestSceneToGeoJSON_NoSimplify(t *testing.T) {
	s, removed, _ := cleanedFixtureScene(t, "rig")
	fc := SceneToGeoJSON(NewPlanView(s, removed), 0)

	var traj *geojson.Feature
	for _, f := range fc.Features {
		if f.ID == "trajectory" {
			traj = f
		}
	}
	require.NotNil(t, traj)
	assert.Len(t, traj.Geometry.(orb.LineString), 3)
}

func TestSceneToGeoJSON_Empty(t *testing.T) {
	fc := SceneToGeoJSON(&PlanView{}, 0)
	assert.Empty(t, fc.Features)

	one := &PlanView{Cameras: []PlanCamera{{Frame: 1, Component: -1}}}
	fc = SceneToGeoJSON(one, 0)
	require.Len(t, fc.Features, 1, "a single camera has no trajectory")
	assert.Equal(t, "camera-1", fc.Features[0].ID)
}

func TestComponentSpan(t *testing.T) {
	assert.Equal(t, 0.0, componentSpan(nil))
	assert.Equal(t, 0.0, componentSpan([]orb.Point{{1, 1}}))
	assert.InDelta(t, 5.0, componentSpan([]orb.Point{{0, 0}, {3, 4}, {1, 1}}), 1e-9)
}
