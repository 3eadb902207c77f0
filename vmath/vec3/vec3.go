package vec3

import (
	"math"
	"math/rand"
)

type T [3]float64

func (v T) Norm() float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// Normalize returns v scaled to unit length.  The zero vector comes back as
// NaNs, so callers that can produce it must check first.
func Normalize(v T) T {
	l := v.Norm()
	return T{
		v[0] / l,
		v[1] / l,
		v[2] / l,
	}
}

func AddVV(a, b T) T {
	return T{
		a[0] + b[0],
		a[1] + b[1],
		a[2] + b[2],
	}
}

func SubVV(a, b T) T {
	return T{
		a[0] - b[0],
		a[1] - b[1],
		a[2] - b[2],
	}
}

func MulVS(a T, b float64) T {
	return T{
		a[0] * b,
		a[1] * b,
		a[2] * b,
	}
}

func DivVS(a T, b float64) T {
	return T{
		a[0] / b,
		a[1] / b,
		a[2] / b,
	}
}

func IProd(a, b T) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func CProd(a, b T) T {
	return T{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

// Mirror reflects i (pointing away from the surface) about the normal n,
// giving 2(n.i)n - i.
func Mirror(i, n T) T {
	return SubVV(MulVS(n, 2*IProd(n, i)), i)
}

// Refract transmits i (pointing away from the surface, on the same side as n)
// through an interface with relative index ratio (incident index over
// transmitted index).  ok is false on total internal reflection.
func Refract(i, n T, ratio float64) (t T, ok bool) {
	cos := IProd(i, n)
	radicand := 1 - ratio*ratio*(1-cos*cos)
	if radicand < 0 {
		return T{}, false
	}

	t = AddVV(
		MulVS(n, -math.Sqrt(radicand)),
		MulVS(SubVV(MulVS(n, cos), i), ratio),
	)
	return Normalize(t), true
}

// GaussianDistribution draws each component independently from N(0, 1).
func GaussianDistribution(rng *rand.Rand) T {
	return T{
		rng.NormFloat64(),
		rng.NormFloat64(),
		rng.NormFloat64(),
	}
}

// UniformCubeDistribution draws each component independently from [0, 1).
func UniformCubeDistribution(rng *rand.Rand) T {
	return T{
		rng.Float64(),
		rng.Float64(),
		rng.Float64(),
	}
}
