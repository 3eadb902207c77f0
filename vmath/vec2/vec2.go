package vec2

type T [2]float64

// Barycentric blends three points with weights w, which callers keep summing
// to one.
func Barycentric(a, b, c T, w [3]float64) T {
	return T{
		w[0]*a[0] + w[1]*b[0] + w[2]*c[0],
		w[0]*a[1] + w[1]*b[1] + w[2]*c[1],
	}
}
