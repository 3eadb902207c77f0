// Package rgb is the color arithmetic used by the shading code.  Channels are
// unconstrained floats; only ClampHi bounds them, and only from above.
package rgb

import "math"

type T [3]float64

var (
	Black = T{0, 0, 0}
	White = T{1, 1, 1}
)

func AddCC(a, b T) T {
	return T{
		a[0] + b[0],
		a[1] + b[1],
		a[2] + b[2],
	}
}

// MulCC is the component-wise product, used to filter one color by another.
func MulCC(a, b T) T {
	return T{
		a[0] * b[0],
		a[1] * b[1],
		a[2] * b[2],
	}
}

func MulCS(a T, s float64) T {
	return T{
		a[0] * s,
		a[1] * s,
		a[2] * s,
	}
}

// ClampHi limits every channel to at most 1.  Negative channels pass through
// unchanged.
func ClampHi(a T) T {
	return T{
		math.Min(a[0], 1),
		math.Min(a[1], 1),
		math.Min(a[2], 1),
	}
}

// Byte converts one channel to the 0-255 range used by image files, rounding
// half away from zero.
func Byte(c float64) int {
	return int(math.Round(255 * c))
}

// InUnitRange reports whether every channel lies in [0, 1].
func (a T) InUnitRange() bool {
	for _, c := range a {
		if !(c >= 0 && c <= 1) {
			return false
		}
	}
	return true
}
