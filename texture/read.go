package texture

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"whitted/rgb"
)

// ErrBadHeader is returned when a texture file does not start with
// "<magic> width height <magic>".
var ErrBadHeader = errors.New("bad texture header")

// Read parses the ASCII texture format: a four-token header
// "<magic> width height <magic>" followed by width*height whitespace-separated
// "r g b" triples in [0, 255], row-major.
func Read(in io.Reader) (*Texture, error) {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	sc.Split(bufio.ScanWords)

	var header [4]string
	for i := range header {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return nil, fmt.Errorf("while reading header: %w", err)
			}
			return nil, fmt.Errorf("%w: file ends after %d tokens", ErrBadHeader, i)
		}
		header[i] = sc.Text()
	}

	width, err := strconv.Atoi(header[1])
	if err != nil {
		return nil, fmt.Errorf("%w: width %q: %v", ErrBadHeader, header[1], err)
	}
	height, err := strconv.Atoi(header[2])
	if err != nil {
		return nil, fmt.Errorf("%w: height %q: %v", ErrBadHeader, header[2], err)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: dimensions %dx%d must be positive", ErrBadHeader, width, height)
	}

	tex := New(width, height)
	for idx := range tex.Texels {
		var c rgb.T
		for ch := range c {
			if !sc.Scan() {
				if err := sc.Err(); err != nil {
					return nil, fmt.Errorf("while reading texel %d: %w", idx, err)
				}
				return nil, fmt.Errorf("texture data ends at texel %d of %d", idx, len(tex.Texels))
			}
			val, err := strconv.Atoi(sc.Text())
			if err != nil {
				return nil, fmt.Errorf("while parsing texel %d: %w", idx, err)
			}
			if val < 0 || val > 255 {
				return nil, fmt.Errorf("texel %d channel value %d outside [0, 255]", idx, val)
			}
			c[ch] = float64(val) / 255
		}
		tex.Texels[idx] = c
	}

	return tex, nil
}

func ReadFile(name string) (*Texture, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("while opening texture file: %w", err)
	}
	defer f.Close()

	return Read(f)
}
