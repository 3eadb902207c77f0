package camera

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"whitted/ray"
	"whitted/vmath/vec3"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func basicParams() Params {
	return Params{
		Eye:    vec3.T{0, 0, 5},
		View:   vec3.T{0, 0, -1},
		Up:     vec3.T{0, 1, 0},
		FovV:   90,
		Width:  3,
		Height: 3,
	}
}

func TestBuildCorners(t *testing.T) {
	w, err := Build(basicParams())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// fovv 90 puts the plane edges at +-1 one unit in front of the eye.
	got := []vec3.T{w.UL, w.UR, w.LL, w.LR}
	want := []vec3.T{
		{-1, 1, 4},
		{1, 1, 4},
		{-1, -1, 4},
		{1, -1, 4},
	}
	if diff := cmp.Diff(got, want, approx); diff != "" {
		t.Fatalf("Bad corners; diff (-got +want)\n%s", diff)
	}

	if diff := cmp.Diff([]vec3.T{w.DH, w.DV}, []vec3.T{{1, 0, 0}, {0, -1, 0}}, approx); diff != "" {
		t.Fatalf("Bad pixel steps; diff (-got +want)\n%s", diff)
	}
}

func TestPerspectiveRays(t *testing.T) {
	w, err := Build(basicParams())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	rays := w.Rays()
	if len(rays) != 9 {
		t.Fatalf("Got %d rays, want 9", len(rays))
	}

	for i, r := range rays {
		if r.Row != i/3 || r.Col != i%3 {
			t.Fatalf("Ray %d tagged (%d, %d), want row-major order", i, r.Row, r.Col)
		}
		if diff := cmp.Diff(r.Point, vec3.T{0, 0, 5}); diff != "" {
			t.Fatalf("Perspective ray does not start at the eye; diff (-got +want)\n%s", diff)
		}
		if math.Abs(r.Slope.Norm()-1) > 1e-12 {
			t.Fatalf("Ray slope %v is not unit length", r.Slope)
		}
	}

	// The center pixel looks straight down the view direction.
	center := w.PixelRay(1, 1)
	want := ray.Ray{Point: vec3.T{0, 0, 5}, Slope: vec3.T{0, 0, -1}, Row: 1, Col: 1}
	if diff := cmp.Diff(center, want, approx); diff != "" {
		t.Fatalf("Bad center ray; diff (-got +want)\n%s", diff)
	}
}

func TestParallelRays(t *testing.T) {
	p := basicParams()
	p.Parallel = true
	w, err := Build(p)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	r := w.PixelRay(0, 2)
	want := ray.Ray{Point: vec3.T{1, 1, 5}, Slope: vec3.T{0, 0, -1}, Row: 0, Col: 2}
	if diff := cmp.Diff(r, want, approx); diff != "" {
		t.Fatalf("Bad parallel ray; diff (-got +want)\n%s", diff)
	}
}

func TestAspectRatio(t *testing.T) {
	p := basicParams()
	p.Width = 5
	p.Height = 3
	w, err := Build(p)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if math.Abs(w.PlaneWidth/w.PlaneHeight-5.0/3.0) > 1e-12 {
		t.Fatalf("Plane is %vx%v, want aspect 5/3", w.PlaneWidth, w.PlaneHeight)
	}
}

func TestBuildErrors(t *testing.T) {
	oneWide := basicParams()
	oneWide.Width = 1

	oneHigh := basicParams()
	oneHigh.Height = 1

	parallel := basicParams()
	parallel.Up = vec3.T{0, 0, 2}

	for _, p := range []Params{oneWide, oneHigh, parallel} {
		_, err := Build(p)
		if !errors.Is(err, ErrDegenerateWindow) {
			t.Errorf("Build(%+v) error = %v, want ErrDegenerateWindow", p, err)
		}
	}
}

func TestJittered(t *testing.T) {
	p := basicParams()

	a := p.Jittered(rand.New(rand.NewSource(3)), 0.009)
	b := p.Jittered(rand.New(rand.NewSource(3)), 0.009)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("Jitter is not reproducible; diff (-got +want)\n%s", diff)
	}

	if a.Eye == p.Eye {
		t.Fatalf("Jittered eye did not move")
	}
	if d := vec3.SubVV(a.Eye, p.Eye).Norm(); d > 0.1 {
		t.Fatalf("Jittered eye moved %v, far more than the scale allows", d)
	}

	// Only the eye moves.
	a.Eye = p.Eye
	if diff := cmp.Diff(a, p); diff != "" {
		t.Fatalf("Jitter changed more than the eye; diff (-got +want)\n%s", diff)
	}
}
