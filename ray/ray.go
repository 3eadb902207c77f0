package ray

import (
	"math"

	"whitted/vmath/vec3"
)

// Span is a closed interval of ray parameters.
type Span struct {
	Lo, Hi float64
}

// Forward accepts every positive parameter.
func Forward() Span {
	return Span{0, math.Inf(1)}
}

func (s Span) Contains(t float64) bool {
	return s.Lo < t && t <= s.Hi
}

// Ray is a half-line.  Slope is kept at unit length by every constructor in
// this module, so ray parameters are distances.
//
// Row and Col name the pixel a camera ray was generated for.  Secondary rays
// inherit them from their parent.
type Ray struct {
	Point vec3.T
	Slope vec3.T

	Row, Col int
}

func (r *Ray) Eval(t float64) vec3.T {
	return vec3.T{
		r.Point[0] + t*r.Slope[0],
		r.Point[1] + t*r.Slope[1],
		r.Point[2] + t*r.Slope[2],
	}
}

// Advance returns a copy of the ray whose origin has moved d along the slope.
func (r Ray) Advance(d float64) Ray {
	r.Point = r.Eval(d)
	return r
}

// Toward returns the unit-slope ray from p in direction dir, tagged with the
// pixel of parent.
func Toward(parent Ray, p, dir vec3.T) Ray {
	return Ray{
		Point: p,
		Slope: vec3.Normalize(dir),
		Row:   parent.Row,
		Col:   parent.Col,
	}
}
