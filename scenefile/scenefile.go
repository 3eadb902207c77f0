// Package scenefile reads the line-oriented scene description format.
//
// Each non-blank line starts with a keyword followed by whitespace-separated
// values.  Materials and textures are state: a surface uses the most recent
// mtlcolor and texture records before it.
package scenefile

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"whitted/geometry"
	"whitted/light"
	"whitted/material"
	"whitted/rgb"
	"whitted/scene"
	"whitted/texture"
	"whitted/vmath/vec2"
	"whitted/vmath/vec3"

	"github.com/golang/glog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// parallelEpsilon is the smallest |up x view| accepted.
const parallelEpsilon = 0.05

// TextureOpener loads the texture at a resolved path.
type TextureOpener func(name string) (*texture.Texture, error)

type Option func(*parser)

// WithBaseDir resolves relative texture paths against dir instead of the
// working directory.
func WithBaseDir(dir string) Option {
	return func(p *parser) {
		p.baseDir = dir
	}
}

// WithTextureOpener replaces reading texture files from disk.
func WithTextureOpener(open TextureOpener) Option {
	return func(p *parser) {
		p.openTexture = open
	}
}

// WithDigest copies every byte of the scene, and of each texture read from
// disk, into w.  Passing a hash identifies the full input of a render.
func WithDigest(w io.Writer) Option {
	return func(p *parser) {
		p.digest = w
	}
}

const (
	gotEye = 1 << iota
	gotViewDir
	gotUpDir
	gotFOVV
	gotImSize
	gotBkgColor

	gotRequired = gotEye | gotViewDir | gotUpDir | gotFOVV | gotImSize | gotBkgColor
)

var requiredNames = []struct {
	bit  int
	name string
}{
	{gotEye, "eye"},
	{gotViewDir, "viewdir"},
	{gotUpDir, "updir"},
	{gotFOVV, "fovv"},
	{gotImSize, "imsize"},
	{gotBkgColor, "bkgcolor"},
}

type parser struct {
	baseDir     string
	openTexture TextureOpener
	digest      io.Writer

	s   *scene.Scene
	got int

	curMaterial int
	curTexture  int

	line   int
	fields []string
}

func (p *parser) readTexture(name string) (*texture.Texture, error) {
	if p.digest == nil {
		return texture.ReadFile(name)
	}

	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	if _, err := p.digest.Write(data); err != nil {
		return nil, fmt.Errorf("while digesting texture: %w", err)
	}
	return texture.Read(bytes.NewReader(data))
}

// Parse reads a scene description.  The returned scene is crushed and ready to
// render.
func Parse(r io.Reader, opts ...Option) (*scene.Scene, error) {
	p := &parser{
		s:           &scene.Scene{},
		curMaterial: -1,
		curTexture:  -1,
	}
	p.openTexture = p.readTexture
	for _, opt := range opts {
		opt(p)
	}

	if p.digest != nil {
		r = io.TeeReader(r, p.digest)
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		p.line++
		p.fields = strings.Fields(sc.Text())
		if len(p.fields) == 0 {
			continue
		}
		if err := p.record(); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, newError(InvalidFile, p.line, err, "reading scene")
	}

	if err := p.finish(); err != nil {
		return nil, err
	}

	return p.s, nil
}

// Load reads the scene file at path.  Textures are found relative to the
// scene file's directory.
func Load(ctx context.Context, path string, opts ...Option) (*scene.Scene, error) {
	tracer := otel.Tracer("whitted/scenefile")
	_, span := tracer.Start(ctx, "Load")
	defer span.End()
	span.SetAttributes(attribute.String("path", path))

	f, err := os.Open(path)
	if err != nil {
		return nil, newError(InvalidFile, 0, err, "%q", path)
	}
	defer f.Close()

	opts = append([]Option{WithBaseDir(filepath.Dir(path))}, opts...)
	s, err := Parse(f, opts...)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("elements", len(s.Elements)),
		attribute.Int("lights", len(s.Lights)),
		attribute.Int("textures", len(s.Textures)),
	)
	glog.Infof("Loaded %q: %d elements, %d lights, %d textures", path, len(s.Elements), len(s.Lights), len(s.Textures))
	return s, nil
}

func (p *parser) record() error {
	keyword := p.fields[0]
	switch keyword {
	case "eye":
		v, err := p.vector(1)
		if err != nil {
			return err
		}
		p.s.Camera.Eye = v
		p.got |= gotEye
	case "viewdir":
		v, err := p.direction(1)
		if err != nil {
			return err
		}
		p.s.Camera.View = v
		p.got |= gotViewDir
	case "updir":
		v, err := p.direction(1)
		if err != nil {
			return err
		}
		p.s.Camera.Up = v
		p.got |= gotUpDir
	case "fovv":
		return p.fovv()
	case "imsize":
		return p.imsize()
	case "bkgcolor":
		c, err := p.color(1)
		if err != nil {
			return err
		}
		p.s.Background = c
		p.got |= gotBkgColor
	case "parallel":
		p.s.Camera.Parallel = true
	case "mtlcolor":
		return p.mtlcolor()
	case "texture":
		return p.texture()
	case "sphere":
		return p.sphere()
	case "ellipsoid":
		return p.ellipsoid()
	case "v":
		v, err := p.vector(1)
		if err != nil {
			return err
		}
		p.s.Mesh.AddVertex(v)
	case "vt":
		return p.texCoord()
	case "vn":
		v, err := p.vector(1)
		if err != nil {
			return err
		}
		p.s.Mesh.AddNormal(v)
	case "f":
		return p.face()
	case "light":
		return p.light()
	case "spotlight":
		return p.spotlight()
	default:
		return newError(InvalidSceneFile, p.line, nil, "unknown keyword %q", keyword)
	}
	return nil
}

func (p *parser) finish() error {
	if p.got != gotRequired {
		var missing []string
		for _, r := range requiredNames {
			if p.got&r.bit == 0 {
				missing = append(missing, r.name)
			}
		}
		return newError(InvalidSceneFile, 0, nil, "missing %s", strings.Join(missing, ", "))
	}

	if vec3.CProd(p.s.Camera.Up, p.s.Camera.View).Norm() < parallelEpsilon {
		return newError(ParallelCoords, 0, nil, "updir %v, viewdir %v", p.s.Camera.Up, p.s.Camera.View)
	}

	if err := p.s.Crush(); err != nil {
		return newError(InvalidSceneFile, 0, err, "resolving references")
	}
	return nil
}

// need checks that the record has at least n values after the keyword.
func (p *parser) need(n int) error {
	if len(p.fields)-1 < n {
		return newError(InvalidSceneFile, p.line, nil, "%s needs %d values, got %d", p.fields[0], n, len(p.fields)-1)
	}
	return nil
}

func (p *parser) float(i int) (float64, error) {
	if err := p.need(i); err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(p.fields[i], 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, newError(InvalidSceneFile, p.line, nil, "%s value %d is not a number: %q", p.fields[0], i, p.fields[i])
	}
	return v, nil
}

// floats parses the n values starting at field first.
func (p *parser) floats(first, n int) ([]float64, error) {
	if err := p.need(first + n - 1); err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i := range out {
		v, err := p.float(first + i)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (p *parser) vector(first int) (vec3.T, error) {
	f, err := p.floats(first, 3)
	if err != nil {
		return vec3.T{}, err
	}
	return vec3.T{f[0], f[1], f[2]}, nil
}

// direction parses a vector and scales it to unit length.
func (p *parser) direction(first int) (vec3.T, error) {
	v, err := p.vector(first)
	if err != nil {
		return vec3.T{}, err
	}
	if v.Norm() == 0 {
		return vec3.T{}, newError(InvalidVector, p.line, nil, "%s %v", p.fields[0], v)
	}
	return vec3.Normalize(v), nil
}

func inUnitRange(v float64) bool {
	return v >= 0 && v <= 1
}

func (p *parser) color(first int) (rgb.T, error) {
	f, err := p.floats(first, 3)
	if err != nil {
		return rgb.T{}, err
	}
	c := rgb.T{f[0], f[1], f[2]}
	if !c.InUnitRange() {
		return rgb.T{}, newError(InvalidColor, p.line, nil, "%s color %v outside [0, 1]", p.fields[0], c)
	}
	return c, nil
}

func (p *parser) fovv() error {
	v, err := p.float(1)
	if err != nil {
		return err
	}
	if v >= 180 || v <= 0 {
		return newError(InvalidFOV, p.line, nil, "fovv %v", v)
	}
	p.s.Camera.FovV = v
	p.got |= gotFOVV
	return nil
}

func (p *parser) imsize() error {
	if err := p.need(2); err != nil {
		return err
	}
	var dims [2]int
	for i := range dims {
		v, err := strconv.Atoi(p.fields[1+i])
		if err != nil {
			return newError(InvalidSceneFile, p.line, nil, "imsize value %q is not an integer", p.fields[1+i])
		}
		dims[i] = v
	}
	if dims[0] <= 0 || dims[1] <= 0 {
		return newError(InvalidDims, p.line, nil, "imsize %d %d", dims[0], dims[1])
	}
	p.s.Camera.Width, p.s.Camera.Height = dims[0], dims[1]
	p.got |= gotImSize
	return nil
}

// mtlcolor reads "Od Os ka kd ks n [alpha [eta]]".
func (p *parser) mtlcolor() error {
	od, err := p.color(1)
	if err != nil {
		return err
	}
	specular, err := p.color(4)
	if err != nil {
		return err
	}
	f, err := p.floats(7, 4)
	if err != nil {
		return err
	}

	m := material.Default()
	m.Od, m.Os = od, specular
	m.Ka, m.Kd, m.Ks, m.N = f[0], f[1], f[2], f[3]
	if !inUnitRange(m.Ka) || !inUnitRange(m.Kd) || !inUnitRange(m.Ks) {
		return newError(InvalidConstant, p.line, nil, "ka %v, kd %v, ks %v outside [0, 1]", m.Ka, m.Kd, m.Ks)
	}

	if len(p.fields) > 11 {
		if m.Alpha, err = p.float(11); err != nil {
			return err
		}
		if !inUnitRange(m.Alpha) {
			return newError(InvalidConstant, p.line, nil, "alpha %v outside [0, 1]", m.Alpha)
		}
	}
	if len(p.fields) > 12 {
		if m.Eta, err = p.float(12); err != nil {
			return err
		}
	}

	p.curMaterial = p.s.AddMaterial(m)
	return nil
}

func (p *parser) texture() error {
	if err := p.need(1); err != nil {
		return err
	}
	name := p.fields[1]
	if !filepath.IsAbs(name) {
		name = filepath.Join(p.baseDir, name)
	}

	tex, err := p.openTexture(name)
	if err != nil {
		return newError(InvalidFile, p.line, err, "texture %q", name)
	}
	p.curTexture = p.s.AddTexture(tex)
	glog.V(2).Infof("line %d: texture %d: %v", p.line, p.curTexture, tex)
	return nil
}

func (p *parser) addSurface(g geometry.Geometry) {
	if p.curMaterial == -1 {
		p.curMaterial = p.s.AddMaterial(material.Default())
	}
	idx := p.s.AddElement(&scene.Element{
		Geometry:      g,
		MaterialIndex: p.curMaterial,
		TextureIndex:  p.curTexture,
	})
	glog.V(2).Infof("line %d: element %d: %v material=%v", p.line, idx, g, p.s.Materials[p.curMaterial])
}

func (p *parser) sphere() error {
	f, err := p.floats(1, 4)
	if err != nil {
		return err
	}
	if f[3] <= 0 {
		return newError(InvalidSceneFile, p.line, nil, "sphere radius %v must be positive", f[3])
	}
	p.addSurface(&geometry.Sphere{Center: vec3.T{f[0], f[1], f[2]}, Radius: f[3]})
	return nil
}

func (p *parser) ellipsoid() error {
	f, err := p.floats(1, 6)
	if err != nil {
		return err
	}
	axes := vec3.T{f[3], f[4], f[5]}
	if axes[0] <= 0 || axes[1] <= 0 || axes[2] <= 0 {
		return newError(InvalidSceneFile, p.line, nil, "ellipsoid axes %v must be positive", axes)
	}
	p.addSurface(&geometry.Ellipsoid{Center: vec3.T{f[0], f[1], f[2]}, Axes: axes})
	return nil
}

func (p *parser) texCoord() error {
	f, err := p.floats(1, 2)
	if err != nil {
		return err
	}
	if !inUnitRange(f[0]) || !inUnitRange(f[1]) {
		return newError(InvalidSceneFile, p.line, nil, "texture coordinates (%v, %v) outside [0, 1]", f[0], f[1])
	}
	p.s.Mesh.AddTexCoord(vec2.T{f[0], f[1]})
	return nil
}

// faceIndex parses one "v", "v/vt", "v/vt/vn" or "v//vn" token.
func faceIndex(tok string) (v, vt, vn int, ok bool) {
	parts := strings.Split(tok, "/")
	if len(parts) > 3 {
		return 0, 0, 0, false
	}

	var idx [3]int
	for i, part := range parts {
		if part == "" {
			// Only the texture index may be left out, as in "v//vn".
			if i != 1 || len(parts) != 3 {
				return 0, 0, 0, false
			}
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n <= 0 {
			return 0, 0, 0, false
		}
		idx[i] = n
	}
	return idx[0], idx[1], idx[2], true
}

func (p *parser) face() error {
	if err := p.need(3); err != nil {
		return err
	}

	var f geometry.Face
	for i := 0; i < 3; i++ {
		v, vt, vn, ok := faceIndex(p.fields[1+i])
		if !ok {
			return newError(InvalidSceneFile, p.line, nil, "bad face vertex %q", p.fields[1+i])
		}
		f.Vertices[i], f.TexCoords[i], f.Normals[i] = v, vt, vn
	}

	tri, err := geometry.NewTriangle(&p.s.Mesh, f)
	if err != nil {
		return newError(InvalidSceneFile, p.line, err, "face")
	}
	p.addSurface(tri)
	return nil
}

func (p *parser) light() error {
	xyz, err := p.vector(1)
	if err != nil {
		return err
	}
	w, err := p.float(4)
	if err != nil {
		return err
	}
	c, err := p.color(5)
	if err != nil {
		return err
	}
	if w == 0 && xyz.Norm() == 0 {
		return newError(InvalidVector, p.line, nil, "light direction %v", xyz)
	}

	l := light.NewLight(xyz, w, c)
	p.s.AddLight(l)
	glog.V(2).Infof("line %d: %v", p.line, l)
	return nil
}

func (p *parser) spotlight() error {
	pos, err := p.vector(1)
	if err != nil {
		return err
	}
	dir, err := p.direction(4)
	if err != nil {
		return err
	}
	theta, err := p.float(7)
	if err != nil {
		return err
	}
	c, err := p.color(8)
	if err != nil {
		return err
	}

	l := light.NewSpotlight(pos, dir, theta, c)
	p.s.AddLight(l)
	glog.V(2).Infof("line %d: %v", p.line, l)
	return nil
}
