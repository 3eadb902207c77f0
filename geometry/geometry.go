package geometry

import (
	"fmt"
	"math"

	"whitted/contact"
	"whitted/ray"
	"whitted/vmath/vec2"
	"whitted/vmath/vec3"
)

// Geometry is implemented by Sphere, Ellipsoid and Triangle.
type Geometry interface {
	// RayInto returns the nearest hit with a positive parameter, or a NaN
	// contact if there is none.
	RayInto(query ray.Ray) contact.Contact

	// Normal returns the unit surface normal at a contact produced by this
	// geometry.
	Normal(c contact.Contact) vec3.T

	// MaterialCoords returns the (u, v) texture coordinates at a contact.  Only
	// meaningful when HasMaterialCoords is true.
	MaterialCoords(c contact.Contact) vec2.T
	HasMaterialCoords() bool
}

// SolveQuadratic returns the real roots of a*t^2 + b*t + c, smaller first.
// ok is false when the discriminant is negative.
func SolveQuadratic(a, b, c float64) (tMin, tMax float64, ok bool) {
	disc := b*b - 4*a*c
	if disc < 0 {
		return math.NaN(), math.NaN(), false
	}

	sq := math.Sqrt(disc)
	t1 := (-b + sq) / (2 * a)
	t2 := (-b - sq) / (2 * a)
	if t1 > t2 {
		t1, t2 = t2, t1
	}
	return t1, t2, true
}

// quadricContact turns the roots of a quadric into a contact on query,
// choosing the nearest positive root.
func quadricContact(query ray.Ray, a, b, c float64) contact.Contact {
	tMin, tMax, ok := SolveQuadratic(a, b, c)
	if !ok {
		return contact.ContactNaN()
	}

	t := tMin
	if t <= 0 {
		t = tMax
	}
	if !(t > 0) {
		return contact.ContactNaN()
	}

	return contact.Contact{
		T:    t,
		TFar: tMax,
		P:    query.Eval(t),
	}
}

// Sphere is a Geometry with a center and radius.
type Sphere struct {
	Center vec3.T
	Radius float64
}

func (s *Sphere) RayInto(query ray.Ray) contact.Contact {
	dif := vec3.SubVV(query.Point, s.Center)

	a := 1.0
	b := 2 * vec3.IProd(query.Slope, dif)
	c := vec3.IProd(dif, dif) - s.Radius*s.Radius
	return quadricContact(query, a, b, c)
}

func (s *Sphere) Normal(c contact.Contact) vec3.T {
	return vec3.Normalize(vec3.SubVV(c.P, s.Center))
}

func (s *Sphere) HasMaterialCoords() bool { return true }

// MaterialCoords maps the longitude around the z axis to u and the polar angle
// from +z to v, both in [0, 1].
func (s *Sphere) MaterialCoords(c contact.Contact) vec2.T {
	theta := math.Atan2(c.P[1]-s.Center[1], c.P[0]-s.Center[0])
	if theta < 0 {
		theta += 2 * math.Pi
	}

	ratio := (c.P[2] - s.Center[2]) / s.Radius
	phi := math.Acos(math.Max(-1, math.Min(1, ratio)))

	return vec2.T{theta / (2 * math.Pi), phi / math.Pi}
}

func (s *Sphere) String() string {
	return fmt.Sprintf("sphere center=%v radius=%v", s.Center, s.Radius)
}

// Ellipsoid is an axis-aligned ellipsoid with semi-axes Axes.
//
// Normals and texture coordinates are computed as for a sphere around Center,
// without correcting for the axis scaling.
type Ellipsoid struct {
	Center vec3.T
	Axes   vec3.T
}

func (e *Ellipsoid) RayInto(query ray.Ray) contact.Contact {
	var a, b, c float64
	for i := 0; i < 3; i++ {
		d := query.Slope[i]
		o := query.Point[i] - e.Center[i]
		sq := e.Axes[i] * e.Axes[i]

		a += d * d / sq
		b += 2 * o * d / sq
		c += o * o / sq
	}
	c -= 1
	return quadricContact(query, a, b, c)
}

func (e *Ellipsoid) Normal(c contact.Contact) vec3.T {
	return vec3.Normalize(vec3.SubVV(c.P, e.Center))
}

func (e *Ellipsoid) HasMaterialCoords() bool { return true }

func (e *Ellipsoid) MaterialCoords(c contact.Contact) vec2.T {
	theta := math.Atan2(e.Axes[0]*(c.P[1]-e.Center[1]), e.Axes[1]*(c.P[0]-e.Center[0]))
	if theta < 0 {
		theta += 2 * math.Pi
	}

	ratio := (c.P[2] - e.Center[2]) / e.Axes[2]
	phi := math.Acos(math.Max(-1, math.Min(1, ratio)))

	return vec2.T{theta / (2 * math.Pi), phi / math.Pi}
}

func (e *Ellipsoid) String() string {
	return fmt.Sprintf("ellipsoid center=%v axes=%v", e.Center, e.Axes)
}
