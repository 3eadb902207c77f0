package light

import (
	"fmt"
	"math"

	"whitted/rgb"
	"whitted/vmath/vec3"
)

type Kind int

const (
	Point Kind = iota
	Directional
	Spot
)

func (k Kind) String() string {
	switch k {
	case Point:
		return "point"
	case Directional:
		return "directional"
	case Spot:
		return "spot"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Light is a point, directional or spot light.
type Light struct {
	Kind Kind

	// Position of point and spot lights.
	Position vec3.T

	// Direction is the unit direction light travels in, for directional lights,
	// and the unit cone axis for spot lights.
	Direction vec3.T

	// HalfAngle is the spot cone half-angle in degrees.
	HalfAngle float64

	Color rgb.T
}

// NewLight interprets the (x, y, z, w) form of a light record: w == 0 makes a
// directional light travelling along (x, y, z), anything else a point light at
// (x, y, z).
func NewLight(xyz vec3.T, w float64, c rgb.T) Light {
	if w == 0 {
		return Light{
			Kind:      Directional,
			Direction: vec3.Normalize(xyz),
			Color:     c,
		}
	}
	return Light{
		Kind:     Point,
		Position: xyz,
		Color:    c,
	}
}

func NewSpotlight(pos, dir vec3.T, halfAngle float64, c rgb.T) Light {
	return Light{
		Kind:      Spot,
		Position:  pos,
		Direction: vec3.Normalize(dir),
		HalfAngle: halfAngle,
		Color:     c,
	}
}

// Toward returns the unit vector from p toward the light, and the distance to
// the light (infinite for directional lights).
func (l *Light) Toward(p vec3.T) (vec3.T, float64) {
	if l.Kind == Directional {
		return vec3.MulVS(l.Direction, -1), math.Inf(1)
	}
	d := vec3.SubVV(l.Position, p)
	dist := d.Norm()
	return vec3.DivVS(d, dist), dist
}

// Illuminates reports whether light arriving along -lDir is inside the cone.
// Only spot lights have a cone.
func (l *Light) Illuminates(lDir vec3.T) bool {
	if l.Kind != Spot {
		return true
	}
	return vec3.IProd(l.Direction, vec3.MulVS(lDir, -1)) >= math.Cos(l.HalfAngle*math.Pi/180)
}

// Bounded reports whether occluders past the light should be ignored.
func (l *Light) Bounded() bool {
	return l.Kind != Directional
}

func (l Light) String() string {
	switch l.Kind {
	case Directional:
		return fmt.Sprintf("directional light dir=%v color=%v", l.Direction, l.Color)
	case Spot:
		return fmt.Sprintf("spot light pos=%v dir=%v half-angle=%v color=%v", l.Position, l.Direction, l.HalfAngle, l.Color)
	}
	return fmt.Sprintf("point light pos=%v color=%v", l.Position, l.Color)
}
