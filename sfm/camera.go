package sfm

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// Intrinsics holds pinhole camera intrinsic parameters.
// The calibration matrix is K = [[f, skew, ppx], [0, f/aspect, ppy], [0, 0, 1]].
type Intrinsics struct {
	FocalLength    float64
	PrincipalPoint r2.Vec
	AspectRatio    float64 // fx/fy, 0 is treated as 1
	Skew           float64
}

// ImageSize returns the image size implied by the principal point
func (in Intrinsics) ImageSize() (int, int) {
	return int(in.PrincipalPoint.X * 2.0), int(in.PrincipalPoint.Y * 2.0)
}

// SimpleCamera is a perspective camera with a world-to-camera rotation
// and a center in world coordinates.
type SimpleCamera struct {
	intrinsics Intrinsics
	center     r3.Vec
	rotation   *mat.Dense
}

// NewSimpleCamera creates a camera. rotation must be a 3x3 world-to-camera
// rotation matrix.
func NewSimpleCamera(center r3.Vec, rotation mat.Matrix, in Intrinsics) (*SimpleCamera, error) {
	r, c := rotation.Dims()
	if r != 3 || c != 3 {
		return nil, fmt.Errorf("rotation must be 3x3, got %dx%d", r, c)
	}
	return &SimpleCamera{
		intrinsics: in,
		center:     center,
		rotation:   mat.DenseCopyOf(rotation),
	}, nil
}

// LookAt creates a camera at center with its optical axis pointing at target.
// up gives the world direction that should appear at the top of the image.
func LookAt(center, target, up r3.Vec, in Intrinsics) (*SimpleCamera, error) {
	z := r3.Sub(target, center)
	if r3.Norm(z) == 0 {
		return nil, fmt.Errorf("look-at target coincides with camera center")
	}
	z = r3.Unit(z)
	// Image y points down, so the camera x axis is z cross up.
	x := r3.Cross(z, up)
	if r3.Norm(x) < 1e-12 {
		return nil, fmt.Errorf("up vector is parallel to the viewing direction")
	}
	x = r3.Unit(x)
	y := r3.Cross(z, x)

	rot := mat.NewDense(3, 3, []float64{
		x.X, x.Y, x.Z,
		y.X, y.Y, y.Z,
		z.X, z.Y, z.Z,
	})
	return NewSimpleCamera(center, rot, in)
}

// Intrinsics returns the camera intrinsics
func (c *SimpleCamera) Intrinsics() Intrinsics { return c.intrinsics }

// Center returns the camera center
func (c *SimpleCamera) Center() r3.Vec { return c.center }

// Rotation returns a copy of the world-to-camera rotation
func (c *SimpleCamera) Rotation() *mat.Dense { return mat.DenseCopyOf(c.rotation) }

// PrincipalPoint returns the principal point
func (c *SimpleCamera) PrincipalPoint() r2.Vec { return c.intrinsics.PrincipalPoint }

// toCamera transforms a world point into camera coordinates
func (c *SimpleCamera) toCamera(pt r3.Vec) r3.Vec {
	d := r3.Sub(pt, c.center)
	var out mat.VecDense
	out.MulVec(c.rotation, mat.NewVecDense(3, []float64{d.X, d.Y, d.Z}))
	return r3.Vec{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}
}

// Depth returns the distance of pt along the optical axis
func (c *SimpleCamera) Depth(pt r3.Vec) float64 {
	return c.toCamera(pt).Z
}

// Project maps a world point into pixel coordinates.
// Points on the image plane project to +Inf.
func (c *SimpleCamera) Project(pt r3.Vec) r2.Vec {
	p := c.toCamera(pt)
	in := c.intrinsics
	aspect := in.AspectRatio
	if aspect == 0 {
		aspect = 1
	}
	if p.Z == 0 {
		return r2.Vec{X: inf, Y: inf}
	}
	u := p.X / p.Z
	v := p.Y / p.Z
	return r2.Vec{
		X: in.FocalLength*u + in.Skew*v + in.PrincipalPoint.X,
		Y: in.FocalLength/aspect*v + in.PrincipalPoint.Y,
	}
}
