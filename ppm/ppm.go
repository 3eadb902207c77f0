// Package ppm reads and writes plain (ASCII, "P3") portable pixmaps.
package ppm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"

	"whitted/rgb"
)

const (
	magic  = "P3"
	maxVal = 255

	// pixelsPerLine is how many pixels Write puts on each line of the body.
	pixelsPerLine = 5
)

var ErrFormat = errors.New("not a plain PPM")

// Write encodes pixels, row-major, as a P3 image with maxval 255.  Each
// channel is written as round(255*c); callers are expected to pass colors in
// [0, 1].
func Write(w io.Writer, width, height int, pixels []rgb.T) error {
	if len(pixels) != width*height {
		return fmt.Errorf("got %d pixels for a %dx%d image", len(pixels), width, height)
	}

	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "%s\n%d %d\n%d", magic, width, height, maxVal)
	for i, c := range pixels {
		if i%pixelsPerLine == 0 {
			bw.WriteString("\n")
		}
		fmt.Fprintf(bw, "%d %d %d ", rgb.Byte(c[0]), rgb.Byte(c[1]), rgb.Byte(c[2]))
	}
	bw.WriteString("\n")

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("while writing image: %w", err)
	}
	return nil
}

type Header struct {
	Width, Height, MaxVal int
}

type tokenReader struct {
	sc *bufio.Scanner
}

func newTokenReader(r io.Reader) *tokenReader {
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)
	return &tokenReader{sc: sc}
}

func (t *tokenReader) next(what string) (string, error) {
	if !t.sc.Scan() {
		if err := t.sc.Err(); err != nil {
			return "", fmt.Errorf("while reading %s: %w", what, err)
		}
		return "", fmt.Errorf("%w: missing %s", ErrFormat, what)
	}
	return t.sc.Text(), nil
}

func (t *tokenReader) nextInt(what string) (int, error) {
	tok, err := t.next(what)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(tok)
	if err != nil {
		return 0, fmt.Errorf("%w: bad %s %q", ErrFormat, what, tok)
	}
	return v, nil
}

func (t *tokenReader) header() (Header, error) {
	m, err := t.next("magic")
	if err != nil {
		return Header{}, err
	}
	if m != magic {
		return Header{}, fmt.Errorf("%w: magic %q", ErrFormat, m)
	}

	var h Header
	if h.Width, err = t.nextInt("width"); err != nil {
		return Header{}, err
	}
	if h.Height, err = t.nextInt("height"); err != nil {
		return Header{}, err
	}
	if h.MaxVal, err = t.nextInt("maxval"); err != nil {
		return Header{}, err
	}
	if h.Width <= 0 || h.Height <= 0 || h.MaxVal <= 0 {
		return Header{}, fmt.Errorf("%w: header %+v", ErrFormat, h)
	}
	return h, nil
}

// ReadHeader reads just the header of a P3 image.
func ReadHeader(r io.Reader) (Header, error) {
	return newTokenReader(r).header()
}

// Read decodes a P3 image, scaling channels into [0, 1] by the header's
// maxval.
func Read(r io.Reader) (Header, []rgb.T, error) {
	t := newTokenReader(r)
	h, err := t.header()
	if err != nil {
		return Header{}, nil, err
	}

	pixels := make([]rgb.T, h.Width*h.Height)
	for i := range pixels {
		for ch := range pixels[i] {
			v, err := t.nextInt(fmt.Sprintf("pixel %d", i))
			if err != nil {
				return Header{}, nil, err
			}
			if v < 0 || v > h.MaxVal {
				return Header{}, nil, fmt.Errorf("%w: pixel %d value %d outside [0, %d]", ErrFormat, i, v, h.MaxVal)
			}
			pixels[i][ch] = float64(v) / float64(h.MaxVal)
		}
	}
	return h, pixels, nil
}
