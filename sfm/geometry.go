package sfm

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

var inf = math.Inf(1)

// ReprojectionErrorSqr returns the squared pixel distance between the
// projection of lm through cam and the observed location.
func ReprojectionErrorSqr(cam Camera, lm *Landmark, observed r2.Vec) float64 {
	return r2.Norm2(r2.Sub(cam.Project(lm.Loc), observed))
}

// BundleAngleMax returns the cosine of the largest angle between any two
// viewing rays from the cameras to pt. With fewer than two cameras the
// result is 1 (zero angle).
func BundleAngleMax(cams []Camera, pt r3.Vec) float64 {
	rays := make([]r3.Vec, 0, len(cams))
	for _, cam := range cams {
		ray := r3.Sub(cam.Center(), pt)
		if r3.Norm(ray) == 0 {
			continue
		}
		rays = append(rays, r3.Unit(ray))
	}

	minCos := 1.0
	for i := 0; i < len(rays); i++ {
		for j := i + 1; j < len(rays); j++ {
			if c := r3.Dot(rays[i], rays[j]); c < minCos {
				minCos = c
			}
		}
	}
	return minCos
}
