package material

import (
	"fmt"
	"math"

	"whitted/rgb"
	"whitted/vmath/vec2"
)

// MtlColor is a Phong material with transparency and a refractive index.
type MtlColor struct {
	// Od is the diffuse color and Os the specular color.
	Od, Os rgb.T

	// Ambient, diffuse and specular coefficients, each in [0, 1].
	Ka, Kd, Ks float64

	// N is the specular exponent.
	N float64

	// Alpha is the opacity: 0 casts no shadow, 1 casts a full one.  It is also
	// the absorption coefficient inside the medium.
	Alpha float64

	// Eta is the index of refraction.  Negative values mark a surface that
	// neither reflects nor refracts.
	Eta float64
}

// Default returns the material used for surfaces declared before any
// mtlcolor record: black, fully opaque, no reflection.
func Default() MtlColor {
	return MtlColor{Alpha: 1, Eta: -1}
}

// Reflective reports whether mirror and transmitted rays should be traced from
// this material.
func (m MtlColor) Reflective() bool {
	return m.Eta >= 0
}

func (m MtlColor) String() string {
	return fmt.Sprintf("mtlcolor Od=%v Os=%v ka=%v kd=%v ks=%v n=%v alpha=%v eta=%v", m.Od, m.Os, m.Ka, m.Kd, m.Ks, m.N, m.Alpha, m.Eta)
}

// Schlick approximates the Fresnel reflectance of an interface with index eta
// at an incidence angle with cosine cos.  The sign of cos is ignored, so either
// side of the interface gives the same answer.
func Schlick(eta, cos float64) float64 {
	cos = math.Min(math.Abs(cos), 1)
	f0 := math.Pow((eta-1)/(eta+1), 2)
	return f0 + (1-f0)*math.Pow(1-cos, 5)
}

// ColorMap resolves a color at texture coordinates.
type ColorMap func(uv vec2.T) rgb.T

func ConstantColor(c rgb.T) ColorMap {
	return func(uv vec2.T) rgb.T {
		return c
	}
}

// Sampler is anything that can be looked up by texture coordinates.
type Sampler interface {
	Sample(u, v float64) rgb.T
}

func SampledColor(s Sampler) ColorMap {
	return func(uv vec2.T) rgb.T {
		return s.Sample(uv[0], uv[1])
	}
}
