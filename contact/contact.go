package contact

import (
	"math"

	"whitted/vmath/vec3"
)

// Contact is the result of intersecting a ray with one geometry.  It owns
// everything the shading code needs to know about the hit, so geometries stay
// free of per-query state.
type Contact struct {
	// T is the nearest positive parameter of the hit along the query ray.
	T float64

	// TFar is the farthest root along the query ray.  For triangles it equals
	// T.
	TFar float64

	// P is the hit point, query.Eval(T).
	P vec3.T

	// Bary holds barycentric weights for triangle hits, in vertex order.
	Bary [3]float64
}

func ContactNaN() Contact {
	return Contact{
		T:    math.NaN(),
		TFar: math.NaN(),
	}
}

func (c Contact) IsNaN() bool {
	return math.IsNaN(c.T)
}
