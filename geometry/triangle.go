package geometry

import (
	"errors"
	"fmt"
	"math"

	"whitted/contact"
	"whitted/ray"
	"whitted/vmath/vec2"
	"whitted/vmath/vec3"
)

// Barycentric weights may overshoot a sum of one by this much and still count
// as inside the triangle.
const baryTolerance = 0.0001

// Mesh holds the vertex, texture-coordinate and normal pools that triangle
// faces refer to.  It belongs to a scene and is only appended to while the
// scene is being built.
type Mesh struct {
	Vertices  []vec3.T
	TexCoords []vec2.T
	Normals   []vec3.T
}

func (m *Mesh) AddVertex(v vec3.T) int {
	m.Vertices = append(m.Vertices, v)
	return len(m.Vertices)
}

func (m *Mesh) AddTexCoord(uv vec2.T) int {
	m.TexCoords = append(m.TexCoords, uv)
	return len(m.TexCoords)
}

func (m *Mesh) AddNormal(n vec3.T) int {
	m.Normals = append(m.Normals, n)
	return len(m.Normals)
}

// Face refers to mesh entries by 1-based index.  A zero in TexCoords or
// Normals means the face did not declare them; either all three corners
// declare an attribute or none do.
type Face struct {
	Vertices  [3]int
	TexCoords [3]int
	Normals   [3]int
}

// Triangle is a flat triangle with optional per-vertex normals and texture
// coordinates.
type Triangle struct {
	P [3]vec3.T

	N          [3]vec3.T
	HasNormals bool

	UV     [3]vec2.T
	HasUVs bool

	// Plane coefficients: (A, B, C) is the unit face normal and
	// A*x + B*y + C*z + D = 0 on the plane.
	A, B, C, D float64

	area float64
}

// ErrMixedCorners is returned for faces where some corners declare texture
// coordinates or normals and others do not.
var ErrMixedCorners = errors.New("face corners disagree")

// declared reports whether every corner of idx names an entry, and fails if
// only some of them do.
func declared(idx [3]int, what string) (bool, error) {
	n := 0
	for _, i := range idx {
		if i != 0 {
			n++
		}
	}
	if n != 0 && n != 3 {
		return false, fmt.Errorf("%w: %d of 3 corners declare %s", ErrMixedCorners, n, what)
	}
	return n == 3, nil
}

// NewTriangle resolves f against m.
func NewTriangle(m *Mesh, f Face) (*Triangle, error) {
	t := &Triangle{}

	hasUVs, err := declared(f.TexCoords, "texture coordinates")
	if err != nil {
		return nil, err
	}
	hasNormals, err := declared(f.Normals, "normals")
	if err != nil {
		return nil, err
	}

	for i, vi := range f.Vertices {
		if vi < 1 || vi > len(m.Vertices) {
			return nil, fmt.Errorf("vertex index %d out of range [1, %d]", vi, len(m.Vertices))
		}
		t.P[i] = m.Vertices[vi-1]
	}

	if hasUVs {
		t.HasUVs = true
		for i, ti := range f.TexCoords {
			if ti < 1 || ti > len(m.TexCoords) {
				return nil, fmt.Errorf("texture coordinate index %d out of range [1, %d]", ti, len(m.TexCoords))
			}
			t.UV[i] = m.TexCoords[ti-1]
		}
	}

	if hasNormals {
		t.HasNormals = true
		for i, ni := range f.Normals {
			if ni < 1 || ni > len(m.Normals) {
				return nil, fmt.Errorf("normal index %d out of range [1, %d]", ni, len(m.Normals))
			}
			t.N[i] = m.Normals[ni-1]
		}
	}

	cross := vec3.CProd(vec3.SubVV(t.P[1], t.P[0]), vec3.SubVV(t.P[2], t.P[0]))
	t.area = 0.5 * cross.Norm()
	if t.area == 0 {
		return nil, fmt.Errorf("degenerate triangle %v", t.P)
	}

	normal := vec3.Normalize(cross)
	t.A, t.B, t.C = normal[0], normal[1], normal[2]
	t.D = -vec3.IProd(normal, t.P[0])

	return t, nil
}

// FaceNormal is the unit normal of the supporting plane.
func (t *Triangle) FaceNormal() vec3.T {
	return vec3.T{t.A, t.B, t.C}
}

func (t *Triangle) RayInto(query ray.Ray) contact.Contact {
	coeff := t.FaceNormal()
	tHit := -(vec3.IProd(coeff, query.Point) + t.D) / vec3.IProd(coeff, query.Slope)
	if math.IsNaN(tHit) || math.IsInf(tHit, 0) || tHit <= 0 {
		return contact.ContactNaN()
	}

	p := query.Eval(tHit)
	bary, ok := t.barycentric(p)
	if !ok {
		return contact.ContactNaN()
	}

	return contact.Contact{
		T:    tHit,
		TFar: tHit,
		P:    p,
		Bary: bary,
	}
}

// barycentric computes the weights of p (assumed on the plane) from
// sub-triangle areas.
func (t *Triangle) barycentric(p vec3.T) ([3]float64, bool) {
	e1 := vec3.SubVV(t.P[1], t.P[0])
	e2 := vec3.SubVV(t.P[2], t.P[0])
	e3 := vec3.SubVV(p, t.P[1])
	e4 := vec3.SubVV(p, t.P[2])

	alpha := 0.5 * vec3.CProd(e3, e4).Norm() / t.area
	beta := 0.5 * vec3.CProd(e4, e2).Norm() / t.area
	gamma := 0.5 * vec3.CProd(e1, e3).Norm() / t.area

	w := [3]float64{alpha, beta, gamma}
	for _, x := range w {
		if x < 0 || x > 1 {
			return w, false
		}
	}
	if alpha+beta+gamma-1 > baryTolerance {
		return w, false
	}
	return w, true
}

func (t *Triangle) Normal(c contact.Contact) vec3.T {
	if !t.HasNormals {
		return t.FaceNormal()
	}

	n := vec3.T{}
	for i := 0; i < 3; i++ {
		n = vec3.AddVV(n, vec3.MulVS(t.N[i], c.Bary[i]))
	}
	return vec3.Normalize(n)
}

func (t *Triangle) HasMaterialCoords() bool { return t.HasUVs }

func (t *Triangle) MaterialCoords(c contact.Contact) vec2.T {
	return vec2.Barycentric(t.UV[0], t.UV[1], t.UV[2], c.Bary)
}

func (t *Triangle) String() string {
	return fmt.Sprintf("triangle p0=%v p1=%v p2=%v normals=%v uvs=%v", t.P[0], t.P[1], t.P[2], t.HasNormals, t.HasUVs)
}
