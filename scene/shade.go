package scene

import (
	"math"
	"math/rand"

	"whitted/contact"
	"whitted/geometry"
	"whitted/light"
	"whitted/material"
	"whitted/ray"
	"whitted/rgb"
	"whitted/vmath/vec3"
)

// DefaultMaxDepth bounds the reflection and refraction walks.
const DefaultMaxDepth = 5

// ShadeFlags selects which secondary contributions Shade adds.
type ShadeFlags int

const (
	ShadeReflect ShadeFlags = 1 << iota
	ShadeRefract

	ShadeAll = ShadeReflect | ShadeRefract
)

// RayStats counts the rays cast while shading, by kind.
type RayStats struct {
	Primary   int64
	Shadow    int64
	Reflected int64
	Refracted int64
}

func (s *RayStats) Add(o RayStats) {
	s.Primary += o.Primary
	s.Shadow += o.Shadow
	s.Reflected += o.Reflected
	s.Refracted += o.Refracted
}

// ShadowFactor is the fraction of light lt that reaches p along lDir, the unit
// direction toward the light.  Every element hit along the way, other than
// self, blocks in proportion to its material alpha.  Occluders beyond a
// positioned light do not count.  The shadow ray starts minHitDistance away
// from p, so neighbours sharing an edge with self do not occlude it.
func (s *Scene) ShadowFactor(lt *light.Light, p, lDir vec3.T, self int) float64 {
	query := ray.Ray{Point: p, Slope: lDir}.Advance(minHitDistance)

	span := ray.Forward()
	if lt.Bounded() {
		span.Hi = vec3.SubVV(lt.Position, p).Norm() - minHitDistance
	}

	count := 0
	blocked := 0.0
	for i, elt := range s.CrushedElements {
		if i == self {
			continue
		}
		c := elt.Geometry.RayInto(query)
		if c.IsNaN() || !span.Contains(c.T) {
			continue
		}
		count++
		blocked += elt.Material.Alpha
	}

	if count == 0 {
		return 1
	}
	return 1 - blocked/float64(count)
}

// Shader carries the per-goroutine state of shading: random numbers for soft
// shadows, option values, and ray counters.
type Shader struct {
	Scene *Scene
	RNG   *rand.Rand

	ShadowSamples int
	MaxDepth      int

	Stats RayStats
}

func NewShader(s *Scene, rng *rand.Rand, shadowSamples, maxDepth int) *Shader {
	if shadowSamples < 1 {
		shadowSamples = 1
	}
	return &Shader{
		Scene:         s,
		RNG:           rng,
		ShadowSamples: shadowSamples,
		MaxDepth:      maxDepth,
	}
}

// Trace returns the color seen along a primary ray, and whether anything was
// hit.  Misses see the background.
func (sh *Shader) Trace(query ray.Ray) (rgb.T, bool) {
	sh.Stats.Primary++

	c, idx := sh.Scene.Intersect(query)
	if idx == -1 {
		return sh.Scene.Background, false
	}
	return sh.Shade(query, c, idx, sh.MaxDepth, ShadeAll), true
}

// Shade computes the Blinn-Phong color of element idx at contact c, seen along
// query, with shadows and, when depth allows, reflection and refraction.  The
// result is clamped to at most 1 per channel.
func (sh *Shader) Shade(query ray.Ray, c contact.Contact, idx int, depth int, flags ShadeFlags) rgb.T {
	elt := sh.Scene.CrushedElements[idx]
	m := &elt.Material

	p := c.P
	n := elt.Geometry.Normal(c)
	v := vec3.MulVS(query.Slope, -1)

	od := elt.DiffuseAt(c)
	color := rgb.MulCS(od, m.Ka)

	for i := range sh.Scene.Lights {
		lt := &sh.Scene.Lights[i]

		lDir, _ := lt.Toward(p)
		if !lt.Illuminates(lDir) {
			continue
		}

		intensity := lt.Color
		if len(sh.Scene.Lights) == 1 {
			intensity = rgb.White
		}

		diffuse := rgb.MulCS(od, m.Kd*math.Max(0, vec3.IProd(n, lDir)))

		// The halfway vector vanishes when the light is straight behind the
		// surface as seen along query.
		specular := rgb.Black
		if half := vec3.AddVV(lDir, v); half.Norm() > 0 {
			h := vec3.Normalize(half)
			specular = rgb.MulCS(m.Os, m.Ks*math.Pow(math.Max(0, vec3.IProd(n, h)), m.N))
		}

		shadow := sh.shadow(lt, p, lDir, idx)
		color = rgb.AddCC(color, rgb.MulCS(rgb.MulCC(intensity, rgb.AddCC(diffuse, specular)), shadow))
	}

	if depth > 0 && m.Reflective() {
		basis := mirrorNormal(elt, c)
		if flags&ShadeReflect != 0 {
			color = rgb.AddCC(color, sh.reflect(query, p, v, basis, m.Eta, depth))
		}
		if flags&ShadeRefract != 0 {
			color = rgb.AddCC(color, sh.refract(query, p, v, basis, m.Alpha, m.Eta, depth))
		}
	}

	return rgb.ClampHi(color)
}

// mirrorNormal is the normal that reflected and refracted rays are built
// around.  Triangles use their flat face normal even when vertex normals are
// interpolated for lighting.
func mirrorNormal(elt *CrushedElement, c contact.Contact) vec3.T {
	if tri, ok := elt.Geometry.(*geometry.Triangle); ok {
		return tri.FaceNormal()
	}
	return elt.Geometry.Normal(c)
}

func (sh *Shader) shadow(lt *light.Light, p, lDir vec3.T, self int) float64 {
	sh.Stats.Shadow++
	factor := sh.Scene.ShadowFactor(lt, p, lDir, self)
	if !lt.Bounded() || sh.ShadowSamples <= 1 {
		return factor
	}

	// Soft shadows: average over directions toward points jittered within a
	// cube next to the light.
	for i := 1; i < sh.ShadowSamples; i++ {
		sh.Stats.Shadow++
		jitter := vec3.MulVS(vec3.UniformCubeDistribution(sh.RNG), 2)
		target := vec3.AddVV(lt.Position, jitter)
		factor += sh.Scene.ShadowFactor(lt, p, vec3.Normalize(vec3.SubVV(target, p)), self)
	}
	return factor / float64(sh.ShadowSamples)
}

// faceToward flips n so that it lies on the same side as i, and returns the
// cosine between them.
func faceToward(i, n vec3.T) (vec3.T, float64) {
	cos := vec3.IProd(i, n)
	if cos < 0 {
		return vec3.MulVS(n, -1), -cos
	}
	return n, cos
}

// reflect walks the chain of mirror bounces leaving p.  i points back along
// the incoming ray and n is the surface normal at p.  Each hit adds its local
// color, without further reflection, weighted by the Fresnel reflectance of
// the surface it left.
func (sh *Shader) reflect(parent ray.Ray, p, i, n vec3.T, eta float64, depth int) rgb.T {
	color := rgb.Black

	for bounce := 0; bounce < depth && eta >= 0; bounce++ {
		var cos float64
		n, cos = faceToward(i, n)
		fr := material.Schlick(eta, cos)

		sh.Stats.Reflected++
		hitRay, c, idx := sh.Scene.TraceOffset(ray.Toward(parent, p, vec3.Mirror(i, n)))
		if idx == -1 {
			break
		}

		local := sh.Shade(hitRay, c, idx, depth-1, ShadeRefract)
		color = rgb.AddCC(color, rgb.MulCS(local, fr))

		elt := sh.Scene.CrushedElements[idx]
		i = vec3.MulVS(hitRay.Slope, -1)
		p = c.P
		n = elt.Geometry.Normal(c)
		eta = elt.Material.Eta
		parent = hitRay
	}

	return rgb.ClampHi(color)
}

// refract walks rays transmitted through p.  Each pass enters the medium at
// p, leaves it at the next surface hit, and adds the color of whatever is
// seen after leaving, weighted by the Fresnel transmittance and attenuated by
// the medium's alpha.  Total internal reflection ends the walk.
func (sh *Shader) refract(parent ray.Ray, p, i, n vec3.T, alpha, eta float64, depth int) rgb.T {
	color := rgb.Black

	for pass := 0; pass < depth && eta > 0; pass++ {
		var cos float64
		n, cos = faceToward(i, n)
		fr := material.Schlick(eta, cos)

		inDir, ok := vec3.Refract(i, n, 1/eta)
		if !ok {
			break
		}
		sh.Stats.Refracted++
		inRay, c1, idx1 := sh.Scene.TraceOffset(ray.Toward(parent, p, inDir))
		if idx1 == -1 {
			break
		}

		// Leave the medium at the far surface.
		exitI := vec3.MulVS(inRay.Slope, -1)
		exitN, _ := faceToward(exitI, sh.Scene.CrushedElements[idx1].Geometry.Normal(c1))
		outDir, ok := vec3.Refract(exitI, exitN, eta)
		if !ok {
			break
		}
		sh.Stats.Refracted++
		outRay, c2, idx2 := sh.Scene.TraceOffset(ray.Toward(inRay, c1.P, outDir))
		if idx2 == -1 {
			break
		}

		attenuation := math.Exp(-alpha * math.Abs(c2.T-c1.T))
		local := sh.Shade(outRay, c2, idx2, depth-1, ShadeReflect)
		color = rgb.AddCC(color, rgb.MulCS(local, (1-fr)*attenuation))

		elt := sh.Scene.CrushedElements[idx2]
		i = vec3.MulVS(outRay.Slope, -1)
		p = c2.P
		n = elt.Geometry.Normal(c2)
		eta = elt.Material.Eta
		alpha = elt.Material.Alpha
		parent = outRay
	}

	return color
}
