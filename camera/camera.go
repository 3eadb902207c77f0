package camera

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"whitted/ray"
	"whitted/vmath/mat33"
	"whitted/vmath/vec3"
)

// ErrDegenerateWindow is returned for view windows whose per-pixel steps
// cannot be computed.
var ErrDegenerateWindow = errors.New("degenerate view window")

// Params are the camera settings of a scene.
type Params struct {
	Eye    vec3.T
	View   vec3.T
	Up     vec3.T
	FovV   float64 // degrees
	Width  int
	Height int

	Parallel bool
}

// Jittered returns a copy of p with the eye moved by scale*(N(0,1), N(0,1),
// N(0,1)), for depth of field.
func (p Params) Jittered(rng *rand.Rand, scale float64) Params {
	p.Eye = vec3.AddVV(p.Eye, vec3.MulVS(vec3.GaussianDistribution(rng), scale*planeDistance))
	return p
}

// planeDistance is the distance of the perspective image plane from the eye.
const planeDistance = 1.0

// ViewWindow is the image plane of one eye position.
type ViewWindow struct {
	Params Params

	// Basis has columns u (right), v (up) and the view direction.
	Basis mat33.T

	// PlaneWidth and PlaneHeight are measured in world units.
	PlaneWidth, PlaneHeight float64

	UL, UR, LL, LR vec3.T

	// DH steps one column right, DV one row down.
	DH, DV vec3.T
}

// Build computes the view window of p.
func Build(p Params) (*ViewWindow, error) {
	if p.Width < 2 || p.Height < 2 {
		return nil, fmt.Errorf("%w: image must be at least 2x2, got %dx%d", ErrDegenerateWindow, p.Width, p.Height)
	}

	u := vec3.CProd(p.View, p.Up)
	if u.Norm() == 0 || math.IsNaN(u.Norm()) {
		return nil, fmt.Errorf("%w: view direction %v and up direction %v are parallel", ErrDegenerateWindow, p.View, p.Up)
	}
	u = vec3.Normalize(u)
	v := vec3.Normalize(vec3.CProd(u, p.View))

	w := &ViewWindow{
		Params: p,
		Basis:  mat33.FromColumns(u, v, p.View),
	}

	w.PlaneHeight = 2 * planeDistance * math.Tan(p.FovV*math.Pi/360)
	w.PlaneWidth = w.PlaneHeight * float64(p.Width) / float64(p.Height)

	d := planeDistance
	if p.Parallel {
		d = 0
	}

	hw, hh := w.PlaneWidth/2, w.PlaneHeight/2
	corner := func(x, y float64) vec3.T {
		return vec3.AddVV(p.Eye, mat33.MulMV(w.Basis, vec3.T{x, y, d}))
	}
	w.UL = corner(-hw, hh)
	w.UR = corner(hw, hh)
	w.LL = corner(-hw, -hh)
	w.LR = corner(hw, -hh)

	w.DH = vec3.DivVS(vec3.SubVV(w.UR, w.UL), float64(p.Width-1))
	w.DV = vec3.DivVS(vec3.SubVV(w.LL, w.UL), float64(p.Height-1))

	return w, nil
}

// PlanePoint is the image plane sample of pixel (row, col).
func (w *ViewWindow) PlanePoint(row, col int) vec3.T {
	return vec3.AddVV(w.UL, vec3.AddVV(vec3.MulVS(w.DH, float64(col)), vec3.MulVS(w.DV, float64(row))))
}

// PixelRay returns the primary ray of pixel (row, col).  Perspective rays
// leave the eye through the plane sample; parallel rays leave the plane sample
// along the view direction.
func (w *ViewWindow) PixelRay(row, col int) ray.Ray {
	sample := w.PlanePoint(row, col)
	if w.Params.Parallel {
		return ray.Ray{
			Point: sample,
			Slope: w.Basis.Column(2),
			Row:   row,
			Col:   col,
		}
	}
	return ray.Ray{
		Point: w.Params.Eye,
		Slope: vec3.Normalize(vec3.SubVV(sample, w.Params.Eye)),
		Row:   row,
		Col:   col,
	}
}

// Rays returns every primary ray in row-major order.
func (w *ViewWindow) Rays() []ray.Ray {
	rays := make([]ray.Ray, 0, w.Params.Width*w.Params.Height)
	for r := 0; r < w.Params.Height; r++ {
		for c := 0; c < w.Params.Width; c++ {
			rays = append(rays, w.PixelRay(r, c))
		}
	}
	return rays
}
