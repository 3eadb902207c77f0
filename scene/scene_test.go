package scene

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"whitted/camera"
	"whitted/framebuffer"
	"whitted/geometry"
	"whitted/light"
	"whitted/material"
	"whitted/ray"
	"whitted/rgb"
	"whitted/texture"
	"whitted/vmath/vec3"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var approx = cmpopts.EquateApprox(0, 1e-6)

func basicCamera(size int) camera.Params {
	return camera.Params{
		Eye:    vec3.T{0, 0, 0},
		View:   vec3.T{0, 0, -1},
		Up:     vec3.T{0, 1, 0},
		FovV:   90,
		Width:  size,
		Height: size,
	}
}

func addSphere(t *testing.T, s *Scene, center vec3.T, radius float64, m material.MtlColor) int {
	t.Helper()
	mi := s.AddMaterial(m)
	return s.AddElement(&Element{
		Geometry:      &geometry.Sphere{Center: center, Radius: radius},
		MaterialIndex: mi,
		TextureIndex:  -1,
	})
}

func opaque(od rgb.T) material.MtlColor {
	m := material.Default()
	m.Od = od
	m.Os = rgb.White
	m.Ka = 0.1
	m.Kd = 0.5
	m.Ks = 0.2
	m.N = 10
	return m
}

func TestIntersectNearest(t *testing.T) {
	s := &Scene{}
	addSphere(t, s, vec3.T{0, 0, -10}, 1, opaque(rgb.White))
	near := addSphere(t, s, vec3.T{0, 0, -5}, 1, opaque(rgb.White))
	if err := s.Crush(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	c, idx := s.Intersect(ray.Ray{Slope: vec3.T{0, 0, -1}})
	if idx != near {
		t.Fatalf("Intersect hit element %d, want %d", idx, near)
	}
	if diff := cmp.Diff(c.T, 4.0, approx); diff != "" {
		t.Fatalf("Bad hit distance; diff (-got +want)\n%s", diff)
	}

	if _, idx := s.Intersect(ray.Ray{Slope: vec3.T{0, 1, 0}}); idx != -1 {
		t.Fatalf("Ray pointing away hit element %d", idx)
	}
}

func TestTraceOffsetLeavesSurface(t *testing.T) {
	s := &Scene{}
	addSphere(t, s, vec3.T{0, 0, 0}, 1, opaque(rgb.White))
	if err := s.Crush(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// Leaving the outside of the sphere hits nothing.
	if _, _, idx := s.TraceOffset(ray.Ray{Point: vec3.T{0, 0, 1}, Slope: vec3.T{0, 0, 1}}); idx != -1 {
		t.Fatalf("Outward ray hit element %d", idx)
	}

	// Going inward reaches the far side, measured from the nudged origin.
	nudged, c, idx := s.TraceOffset(ray.Ray{Point: vec3.T{0, 0, 1}, Slope: vec3.T{0, 0, -1}})
	if idx != 0 {
		t.Fatalf("Inward ray missed")
	}
	if diff := cmp.Diff(nudged.Point, vec3.T{0, 0, 1 - selfHitOffset}, approx); diff != "" {
		t.Fatalf("Bad nudged origin; diff (-got +want)\n%s", diff)
	}
	if diff := cmp.Diff(c.P, vec3.T{0, 0, -1}, approx); diff != "" {
		t.Fatalf("Bad far side hit; diff (-got +want)\n%s", diff)
	}
}

func TestShadowFactor(t *testing.T) {
	s := &Scene{}
	self := addSphere(t, s, vec3.T{0, 0, 0}, 1, opaque(rgb.White))

	half := opaque(rgb.White)
	half.Alpha = 0.5
	addSphere(t, s, vec3.T{0, 5, 0}, 1, half)
	if err := s.Crush(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	p := vec3.T{0, 1, 0}
	up := vec3.T{0, 1, 0}

	testCases := []struct {
		desc  string
		light light.Light
		want  float64
	}{
		{
			desc:  "occluder before point light",
			light: light.NewLight(vec3.T{0, 10, 0}, 1, rgb.White),
			want:  0.5,
		},
		{
			desc:  "occluder beyond point light",
			light: light.NewLight(vec3.T{0, 2, 0}, 1, rgb.White),
			want:  1,
		},
		{
			desc:  "directional light is never beyond an occluder",
			light: light.NewLight(vec3.T{0, -1, 0}, 0, rgb.White),
			want:  0.5,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			got := s.ShadowFactor(&tc.light, p, up, self)
			if diff := cmp.Diff(got, tc.want, approx); diff != "" {
				t.Fatalf("Bad shadow factor; diff (-got +want)\n%s", diff)
			}
		})
	}

	// Any direction gives a factor in [0, 1].
	rng := rand.New(rand.NewSource(7))
	lt := light.NewLight(vec3.T{0, 100, 0}, 1, rgb.White)
	for i := 0; i < 200; i++ {
		dir := vec3.Normalize(vec3.SubVV(vec3.UniformCubeDistribution(rng), vec3.T{0.5, 0, 0.5}))
		got := s.ShadowFactor(&lt, p, dir, self)
		if got < 0 || got > 1 {
			t.Fatalf("ShadowFactor along %v = %v, outside [0, 1]", dir, got)
		}
	}
}

func TestShadeSingleSphere(t *testing.T) {
	s := &Scene{
		Camera:     basicCamera(5),
		Background: rgb.T{0.1, 0.2, 0.3},
	}
	addSphere(t, s, vec3.T{0, 0, -5}, 1, opaque(rgb.T{1, 0, 0}))
	s.AddLight(light.NewLight(vec3.T{0, 0, -1}, 0, rgb.T{0.5, 0.5, 0.5}))

	fb := framebuffer.New(5, 5)
	if _, err := RenderScene(context.Background(), s, DefaultRenderOptions(), fb, nil); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// Head on: ambient + diffuse + specular, with the single light counted as
	// white.
	if diff := cmp.Diff(fb.Mean(2, 2, rgb.Black), rgb.T{0.8, 0.2, 0.2}, approx); diff != "" {
		t.Errorf("Bad center pixel; diff (-got +want)\n%s", diff)
	}

	if diff := cmp.Diff(fb.Mean(0, 0, rgb.Black), rgb.T{0.1, 0.2, 0.3}, approx); diff != "" {
		t.Errorf("Corner pixel should see the background; diff (-got +want)\n%s", diff)
	}

	for r := 0; r < 5; r++ {
		for c := 0; c < 5; c++ {
			if n := fb.SampleCount(r, c); n != 1 {
				t.Fatalf("Pixel (%d, %d) has %d samples, want 1", r, c, n)
			}
			if !fb.Mean(r, c, rgb.Black).InUnitRange() {
				t.Fatalf("Pixel (%d, %d) = %v is out of range", r, c, fb.Mean(r, c, rgb.Black))
			}
		}
	}
}

func TestShadowFactorIgnoresTouchingSurface(t *testing.T) {
	s := &Scene{}
	mesh := &geometry.Mesh{}
	addTriangle := func(a, b, c vec3.T) int {
		face := geometry.Face{Vertices: [3]int{mesh.AddVertex(a), mesh.AddVertex(b), mesh.AddVertex(c)}}
		tri, err := geometry.NewTriangle(mesh, face)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		return s.AddElement(&Element{Geometry: tri, MaterialIndex: s.AddMaterial(opaque(rgb.White)), TextureIndex: -1})
	}

	floor := addTriangle(vec3.T{-1, 0, -1}, vec3.T{1, 0, -1}, vec3.T{0, 0, 1})
	// A ramp through the origin, so it touches the floor point below.
	addTriangle(vec3.T{-1, -1, -1}, vec3.T{1, -1, -1}, vec3.T{0, 1, 1})
	if err := s.Crush(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// A point a hair under the floor, as shading contacts often are.
	p := vec3.T{0, -1e-9, 0}
	lt := light.NewLight(vec3.T{0, -1, 0}, 0, rgb.White)
	if got := s.ShadowFactor(&lt, p, vec3.T{0, 1, 0}, floor); got != 1 {
		t.Fatalf("ShadowFactor = %v, want 1", got)
	}
}

func TestShadeBacklit(t *testing.T) {
	s := &Scene{Camera: basicCamera(3)}
	addSphere(t, s, vec3.T{0, 0, -5}, 1, opaque(rgb.T{1, 0, 0}))

	// Travelling toward the camera, so the lit side faces away from it.
	s.AddLight(light.NewLight(vec3.T{0, 0, 1}, 0, rgb.White))

	if err := s.Crush(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	sh := NewShader(s, rand.New(rand.NewSource(1)), 1, DefaultMaxDepth)
	got, _ := sh.Trace(ray.Ray{Slope: vec3.T{0, 0, -1}})
	if diff := cmp.Diff(got, rgb.T{0.1, 0, 0}, approx); diff != "" {
		t.Fatalf("Backlit point should be ambient only; diff (-got +want)\n%s", diff)
	}

	fb := framebuffer.New(3, 3)
	if _, err := RenderScene(context.Background(), s, DefaultRenderOptions(), fb, nil); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for i, px := range fb.Resolve(rgb.Black) {
		if !px.InUnitRange() {
			t.Fatalf("Pixel %d = %v is out of range", i, px)
		}
	}
}

func TestShadeTexturedDiffuse(t *testing.T) {
	s := &Scene{Camera: basicCamera(3)}

	tex := texture.New(2, 2)
	tex.Set(0, 0, rgb.T{0.5, 0.25, 0})
	tex.Set(0, 1, rgb.T{0, 0, 1})
	tex.Set(1, 0, rgb.T{0, 1, 0})
	tex.Set(1, 1, rgb.T{1, 1, 1})

	s.AddElement(&Element{
		Geometry:      &geometry.Sphere{Center: vec3.T{0, 0, -5}, Radius: 1},
		MaterialIndex: s.AddMaterial(opaque(rgb.T{1, 0, 1})),
		TextureIndex:  s.AddTexture(tex),
	})
	s.AddLight(light.NewLight(vec3.T{0, 0, -1}, 0, rgb.White))
	if err := s.Crush(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// The pole facing the camera maps to texel (0, 0), which replaces Od in
	// the ambient and diffuse terms: 0.1*texel + 0.5*texel + 0.2*Os.
	sh := NewShader(s, rand.New(rand.NewSource(1)), 1, DefaultMaxDepth)
	got, _ := sh.Trace(ray.Ray{Slope: vec3.T{0, 0, -1}})
	if diff := cmp.Diff(got, rgb.T{0.5, 0.35, 0.2}, approx); diff != "" {
		t.Fatalf("Bad textured color; diff (-got +want)\n%s", diff)
	}
}

func TestShadeSpotlightCone(t *testing.T) {
	testCases := []struct {
		desc string
		dir  vec3.T
		want rgb.T
	}{
		{
			desc: "inside the cone",
			dir:  vec3.T{0, 0, -1},
			want: rgb.T{0.8, 0.2, 0.2},
		},
		{
			desc: "outside the cone",
			dir:  vec3.T{0, 1, 0},
			want: rgb.T{0.1, 0, 0},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			s := &Scene{Camera: basicCamera(3)}
			addSphere(t, s, vec3.T{0, 0, -5}, 1, opaque(rgb.T{1, 0, 0}))
			s.AddLight(light.NewSpotlight(vec3.T{0, 0, 0}, tc.dir, 30, rgb.White))
			if err := s.Crush(); err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			sh := NewShader(s, rand.New(rand.NewSource(1)), 1, DefaultMaxDepth)
			got, _ := sh.Trace(ray.Ray{Slope: vec3.T{0, 0, -1}})
			if diff := cmp.Diff(got, tc.want, approx); diff != "" {
				t.Fatalf("Bad color; diff (-got +want)\n%s", diff)
			}
		})
	}
}

func TestShadeThroughClearSphere(t *testing.T) {
	s := &Scene{Camera: basicCamera(3)}

	// Index matched and perfectly clear, so the center ray passes straight
	// through.
	glass := material.Default()
	glass.Eta = 1
	glass.Alpha = 0
	addSphere(t, s, vec3.T{0, 0, -5}, 1, glass)

	green := material.Default()
	green.Od = rgb.T{0, 1, 0}
	green.Ka = 1
	addSphere(t, s, vec3.T{0, 0, -20}, 5, green)

	if err := s.Crush(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	sh := NewShader(s, rand.New(rand.NewSource(1)), 1, DefaultMaxDepth)
	got, hit := sh.Trace(ray.Ray{Slope: vec3.T{0, 0, -1}})
	if !hit {
		t.Fatalf("Center ray missed")
	}
	if diff := cmp.Diff(got, rgb.T{0, 1, 0}, approx); diff != "" {
		t.Fatalf("Bad color through the sphere; diff (-got +want)\n%s", diff)
	}
	if sh.Stats.Refracted != 2 {
		t.Errorf("Cast %d refracted rays, want 2", sh.Stats.Refracted)
	}
}

func TestShadeMirror(t *testing.T) {
	s := &Scene{Camera: basicCamera(3)}

	// A mirror with a high index reflects strongly even head on.
	mirror := material.Default()
	mirror.Eta = 100

	red := material.Default()
	red.Od = rgb.T{1, 0, 0}
	red.Ka = 1

	mi := s.AddMaterial(mirror)
	floor := &geometry.Mesh{}
	a := floor.AddVertex(vec3.T{-10, -10, -5})
	b := floor.AddVertex(vec3.T{10, -10, -5})
	c := floor.AddVertex(vec3.T{0, 10, -5})
	tri, err := geometry.NewTriangle(floor, geometry.Face{Vertices: [3]int{a, b, c}})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	s.AddElement(&Element{Geometry: tri, MaterialIndex: mi, TextureIndex: -1})

	// Behind the camera, seen only in the mirror.
	addSphere(t, s, vec3.T{0, 0, 5}, 1, red)

	if err := s.Crush(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	sh := NewShader(s, rand.New(rand.NewSource(1)), 1, DefaultMaxDepth)
	got, _ := sh.Trace(ray.Ray{Slope: vec3.T{0, 0, -1}})

	f0 := math.Pow(99.0/101.0, 2)
	if diff := cmp.Diff(got, rgb.T{f0, 0, 0}, approx); diff != "" {
		t.Fatalf("Bad mirrored color; diff (-got +want)\n%s", diff)
	}
}

func TestRenderReproducible(t *testing.T) {
	s := &Scene{
		Camera:     basicCamera(8),
		Background: rgb.T{0, 0, 0.2},
	}
	addSphere(t, s, vec3.T{0, 0, -5}, 1.5, opaque(rgb.T{1, 0.5, 0}))
	addSphere(t, s, vec3.T{1, 1, -3}, 0.5, opaque(rgb.T{0, 0.5, 1}))
	s.AddLight(light.NewLight(vec3.T{3, 3, 0}, 1, rgb.White))
	s.AddLight(light.NewSpotlight(vec3.T{-3, 3, 0}, vec3.T{1, -1, -2}, 30, rgb.T{0.5, 0.5, 0.5}))

	opts := DefaultRenderOptions()
	opts.Workers = 3
	opts.Seed = 42
	opts.DOFSamples = 2
	opts.ShadowSamples = 4

	render := func() *framebuffer.Image {
		fb := framebuffer.New(8, 8)
		if _, err := RenderScene(context.Background(), s, opts, fb, nil); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		return fb
	}

	first := render()
	if diff := cmp.Diff(render(), first); diff != "" {
		t.Fatalf("Same seed rendered differently; diff (-got +want)\n%s", diff)
	}
	if got := first.SampleCount(4, 4); got != 3 {
		t.Fatalf("Pixel has %d samples, want 3", got)
	}
}

func TestRenderResumeAndProgress(t *testing.T) {
	s := &Scene{Camera: basicCamera(4)}
	addSphere(t, s, vec3.T{0, 0, -5}, 1, opaque(rgb.White))

	opts := DefaultRenderOptions()
	opts.Workers = 3

	var last, total int
	progress := func(cur, tot int) {
		last, total = cur, tot
	}

	fb := framebuffer.New(4, 4)
	for i := 0; i < 2; i++ {
		stats, err := RenderScene(context.Background(), s, opts, fb, progress)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if stats.Primary != 16 {
			t.Fatalf("Cast %d primary rays, want 16", stats.Primary)
		}
	}

	if last != 4 || total != 4 {
		t.Errorf("Final progress (%d, %d), want (4, 4)", last, total)
	}
	if got := fb.TotalSamples(); got != 32 {
		t.Errorf("Resumed render holds %d samples, want 32", got)
	}
}

func TestRenderErrors(t *testing.T) {
	s := &Scene{Camera: basicCamera(4)}
	addSphere(t, s, vec3.T{0, 0, -5}, 1, opaque(rgb.White))

	if _, err := RenderScene(context.Background(), s, DefaultRenderOptions(), framebuffer.New(3, 4), nil); err == nil {
		t.Errorf("Mismatched framebuffer was accepted")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := RenderScene(ctx, s, DefaultRenderOptions(), framebuffer.New(4, 4), nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Cancelled render returned %v, want context.Canceled", err)
	}
}
