package sfm

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanScene(t *testing.T) {
	f := twoClusterFixture(t)
	s := &Scene{ID: "two-clusters", Cameras: f.cams, Landmarks: f.lms, Tracks: f.tracks}

	r := CleanScene(s, lenientParams(), nil)
	require.NotNil(t, r)

	_, err := uuid.Parse(r.RunID)
	assert.NoError(t, err, "run id should be a UUID")
	assert.Equal(t, "two-clusters", r.SceneID)
	assert.Equal(t, 5, r.CamerasBefore)
	assert.Equal(t, 23, r.LandmarksBefore)
	assert.Equal(t, 3, r.RemainingCameras)
	assert.Equal(t, 16, r.RemainingLandmarks)
	assert.Equal(t, []int{3}, r.Components)
	assert.Len(t, r.Coverage, 3)
	assert.GreaterOrEqual(t, r.Duration, 0.0)

	sum := r.Summary()
	assert.Equal(t, 2, sum.RemovedCameras)
	assert.Equal(t, 7, sum.RemovedLandmarks)
	assert.Equal(t, r.RunID, sum.RunID)
}

func TestNewCleanReport_UniqueRunIDs(t *testing.T) {
	s := NewScene("empty")
	res := s.Clean(DefaultCleanParams(), nil)
	a := NewCleanReport(s, DefaultCleanParams(), res)
	b := NewCleanReport(s, DefaultCleanParams(), res)
	assert.NotEqual(t, a.RunID, b.RunID)
	assert.Empty(t, a.Components)
	assert.Zero(t, a.CamerasBefore)
}
