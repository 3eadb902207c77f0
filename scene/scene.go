package scene

import (
	"fmt"

	"whitted/camera"
	"whitted/contact"
	"whitted/geometry"
	"whitted/light"
	"whitted/material"
	"whitted/ray"
	"whitted/rgb"
	"whitted/texture"
	"whitted/vmath/vec2"
)

// Element places one geometry in the scene with a material and an optional
// texture.
type Element struct {
	Geometry      geometry.Geometry
	MaterialIndex int

	// TextureIndex is -1 for untextured elements.
	TextureIndex int
}

// CrushedElement is an Element with its references resolved, ready for
// rendering.
type CrushedElement struct {
	Geometry geometry.Geometry
	Material material.MtlColor

	// Diffuse resolves the diffuse color at texture coordinates: either the
	// material's Od or a texture lookup.
	Diffuse  material.ColorMap
	Textured bool
}

// DiffuseAt returns the diffuse color of the element at a contact.
func (e *CrushedElement) DiffuseAt(c contact.Contact) rgb.T {
	if !e.Textured {
		return e.Diffuse(vec2.T{})
	}
	return e.Diffuse(e.Geometry.MaterialCoords(c))
}

// Scene is everything needed to render one image.  After Crush it is only
// read, and may be shared by any number of goroutines.
type Scene struct {
	Camera     camera.Params
	Background rgb.T

	Materials []material.MtlColor
	Textures  []*texture.Texture
	Lights    []light.Light
	Elements  []*Element

	// Mesh holds the pools that triangle elements were built from.
	Mesh geometry.Mesh

	CrushedElements []*CrushedElement
}

// AddMaterial is a convenience function to register a material and get its
// index.
func (s *Scene) AddMaterial(m material.MtlColor) int {
	s.Materials = append(s.Materials, m)
	return len(s.Materials) - 1
}

func (s *Scene) AddTexture(t *texture.Texture) int {
	s.Textures = append(s.Textures, t)
	return len(s.Textures) - 1
}

func (s *Scene) AddLight(l light.Light) int {
	s.Lights = append(s.Lights, l)
	return len(s.Lights) - 1
}

func (s *Scene) AddElement(e *Element) int {
	s.Elements = append(s.Elements, e)
	return len(s.Elements) - 1
}

// Crush resolves material and texture references of every element.  It must
// be called after the last Add and before rendering.
func (s *Scene) Crush() error {
	s.CrushedElements = make([]*CrushedElement, 0, len(s.Elements))

	for i, e := range s.Elements {
		if e.MaterialIndex < 0 || e.MaterialIndex >= len(s.Materials) {
			return fmt.Errorf("element %d refers to material %d, but there are %d", i, e.MaterialIndex, len(s.Materials))
		}
		if e.TextureIndex >= len(s.Textures) {
			return fmt.Errorf("element %d refers to texture %d, but there are %d", i, e.TextureIndex, len(s.Textures))
		}

		m := s.Materials[e.MaterialIndex]
		crushed := &CrushedElement{
			Geometry: e.Geometry,
			Material: m,
			Diffuse:  material.ConstantColor(m.Od),
		}

		if e.TextureIndex >= 0 && e.Geometry.HasMaterialCoords() {
			crushed.Diffuse = material.SampledColor(s.Textures[e.TextureIndex])
			crushed.Textured = true
		}

		s.CrushedElements = append(s.CrushedElements, crushed)
	}

	return nil
}

// Intersect finds the element with the nearest positive hit along query, by
// testing every element.  The index is -1 on a miss.
func (s *Scene) Intersect(query ray.Ray) (contact.Contact, int) {
	minContact := contact.ContactNaN()
	minElementIndex := -1

	for i, elt := range s.CrushedElements {
		c := elt.Geometry.RayInto(query)
		if c.IsNaN() {
			continue
		}
		if minElementIndex == -1 || c.T < minContact.T {
			minContact = c
			minElementIndex = i
		}
	}

	return minContact, minElementIndex
}

const (
	// selfHitOffset is how far a secondary ray's origin is first moved along
	// its slope to clear the surface it leaves.
	selfHitOffset = 0.02

	// selfHitStep grows the offset while hits remain too close.
	selfHitStep = 0.001

	// minHitDistance is the closest a secondary hit may be to the origin.
	minHitDistance = 0.001

	// maxSelfHitSteps bounds the nudging loop.
	maxSelfHitSteps = 10000
)

// TraceOffset intersects a secondary ray that leaves a surface.  The origin is
// nudged forward, first by selfHitOffset and then in selfHitStep increments,
// until the nearest hit is at least minHitDistance away or nothing is hit.
// The contact is relative to the returned, nudged ray.
func (s *Scene) TraceOffset(query ray.Ray) (ray.Ray, contact.Contact, int) {
	offset := selfHitOffset
	for i := 0; ; i++ {
		nudged := query.Advance(offset)
		c, idx := s.Intersect(nudged)
		if idx == -1 || c.T >= minHitDistance || i == maxSelfHitSteps {
			return nudged, c, idx
		}
		offset += selfHitStep
	}
}
