package texture

import (
	"fmt"
	"math"

	"whitted/rgb"
)

// Texture is an immutable grid of colors stored row-major, row 0 first.
type Texture struct {
	Width, Height int
	Texels        []rgb.T
}

func New(width, height int) *Texture {
	return &Texture{
		Width:  width,
		Height: height,
		Texels: make([]rgb.T, width*height),
	}
}

func (t *Texture) At(row, col int) rgb.T {
	return t.Texels[row*t.Width+col]
}

func (t *Texture) Set(row, col int, c rgb.T) {
	t.Texels[row*t.Width+col] = c
}

// Sample bilinearly interpolates the texture at (u, v), with u running across
// columns and v down rows.  Coordinates are clamped to [0, 1] and neighbours
// past the last row or column are dropped rather than wrapped.
func (t *Texture) Sample(u, v float64) rgb.T {
	u = math.Max(0, math.Min(1, u))
	v = math.Max(0, math.Min(1, v))

	x := u * float64(t.Width-1)
	y := v * float64(t.Height-1)

	i := int(x)
	j := int(y)

	a := x - float64(i)
	b := y - float64(j)

	ret := rgb.MulCS(t.At(j, i), (1-a)*(1-b))
	if i+1 < t.Width {
		ret = rgb.AddCC(ret, rgb.MulCS(t.At(j, i+1), a*(1-b)))
	}
	if j+1 < t.Height {
		ret = rgb.AddCC(ret, rgb.MulCS(t.At(j+1, i), (1-a)*b))
	}
	if i+1 < t.Width && j+1 < t.Height {
		ret = rgb.AddCC(ret, rgb.MulCS(t.At(j+1, i+1), a*b))
	}
	return ret
}

func (t *Texture) String() string {
	return fmt.Sprintf("texture %dx%d", t.Width, t.Height)
}
