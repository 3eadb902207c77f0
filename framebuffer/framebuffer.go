// Package framebuffer accumulates color samples per pixel and stores them in a
// compact binary form so renders can be resumed with more passes.
package framebuffer

import (
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"whitted/rgb"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const dataLayoutVersion = 1

// Image keeps a running sum and sample count for every pixel.
type Image struct {
	RowSize, ColSize int

	// Sums holds three floats (r, g, b) per pixel, row-major.
	Sums   []float32
	Counts []float32
}

func New(rows, cols int) *Image {
	im := &Image{}
	im.Resize(rows, cols)
	return im
}

func (im *Image) Resize(rowSize, colSize int) {
	im.RowSize = rowSize
	im.ColSize = colSize

	im.Sums = make([]float32, rowSize*colSize*3)
	im.Counts = make([]float32, rowSize*colSize)
}

func (im *Image) RecordSample(r, c int, color rgb.T) {
	idx := r*im.ColSize + c
	im.Sums[3*idx+0] += float32(color[0])
	im.Sums[3*idx+1] += float32(color[1])
	im.Sums[3*idx+2] += float32(color[2])
	im.Counts[idx] += 1
}

// SampleCount returns the number of samples recorded at (r, c).
func (im *Image) SampleCount(r, c int) int {
	return int(im.Counts[r*im.ColSize+c])
}

// TotalSamples sums the sample counts of every pixel.
func (im *Image) TotalSamples() int {
	total := 0
	for _, n := range im.Counts {
		total += int(n)
	}
	return total
}

// Mean returns the average of the samples at (r, c), or fallback if there are
// none.
func (im *Image) Mean(r, c int, fallback rgb.T) rgb.T {
	idx := r*im.ColSize + c
	n := im.Counts[idx]
	if n == 0 {
		return fallback
	}
	return rgb.T{
		float64(im.Sums[3*idx+0] / n),
		float64(im.Sums[3*idx+1] / n),
		float64(im.Sums[3*idx+2] / n),
	}
}

// Resolve returns the mean color of every pixel in row-major order.
func (im *Image) Resolve(fallback rgb.T) []rgb.T {
	out := make([]rgb.T, 0, im.RowSize*im.ColSize)
	for r := 0; r < im.RowSize; r++ {
		for c := 0; c < im.ColSize; c++ {
			out = append(out, im.Mean(r, c, fallback))
		}
	}
	return out
}

// Cut copies the block [rowSrc, rowLim) x [colSrc, colLim) into a new image.
func (im *Image) Cut(rowSrc, rowLim, colSrc, colLim int) *Image {
	dst := New(rowLim-rowSrc, colLim-colSrc)

	dstIndex := 0
	for r := rowSrc; r < rowLim; r++ {
		for c := colSrc; c < colLim; c++ {
			srcIndex := r*im.ColSize + c

			copy(dst.Sums[3*dstIndex:3*dstIndex+3], im.Sums[3*srcIndex:3*srcIndex+3])
			dst.Counts[dstIndex] = im.Counts[srcIndex]

			dstIndex++
		}
	}

	return dst
}

// Paste overwrites the block of im starting at (rowSrc, colSrc) with src.
func (im *Image) Paste(src *Image, rowSrc, colSrc int) {
	for r := 0; r < src.RowSize; r++ {
		for c := 0; c < src.ColSize; c++ {
			srcIndex := r*src.ColSize + c
			dstIndex := (r+rowSrc)*im.ColSize + (c + colSrc)

			copy(im.Sums[3*dstIndex:3*dstIndex+3], src.Sums[3*srcIndex:3*srcIndex+3])
			im.Counts[dstIndex] = src.Counts[srcIndex]
		}
	}
}

// Read decodes an image written by Write: an 8-byte little-endian header
// length, a proto-encoded header, then zlib-compressed sums and counts.
func Read(in io.Reader) (*Image, error) {
	var headerLength uint64
	if err := binary.Read(in, binary.LittleEndian, &headerLength); err != nil {
		return nil, fmt.Errorf("while reading header length: %w", err)
	}
	if headerLength > 1<<20 {
		return nil, fmt.Errorf("implausible header length %d", headerLength)
	}

	headerBytes := make([]byte, int(headerLength))
	if _, err := io.ReadFull(in, headerBytes); err != nil {
		return nil, fmt.Errorf("while reading header bytes: %w", err)
	}

	hdr := &structpb.Struct{}
	if err := proto.Unmarshal(headerBytes, hdr); err != nil {
		return nil, fmt.Errorf("while unmarshaling header: %w", err)
	}

	fields := hdr.GetFields()
	if v := fields["data_layout_version"].GetNumberValue(); v != dataLayoutVersion {
		return nil, fmt.Errorf("bad data layout version: %v", v)
	}

	rows := int(fields["row_size"].GetNumberValue())
	cols := int(fields["col_size"].GetNumberValue())
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("bad dimensions in header: %dx%d", rows, cols)
	}

	im := New(rows, cols)

	zipReader, err := zlib.NewReader(in)
	if err != nil {
		return nil, fmt.Errorf("while opening zip reader: %w", err)
	}
	defer zipReader.Close()

	if err := binary.Read(zipReader, binary.LittleEndian, im.Sums); err != nil {
		return nil, fmt.Errorf("while reading color sums: %w", err)
	}

	if err := binary.Read(zipReader, binary.LittleEndian, im.Counts); err != nil {
		return nil, fmt.Errorf("while reading sample counts: %w", err)
	}

	return im, nil
}

func ReadFile(name string) (*Image, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("while opening file: %w", err)
	}
	defer f.Close()

	return Read(f)
}

func Write(im *Image, w io.Writer) error {
	hdr, err := structpb.NewStruct(map[string]interface{}{
		"row_size":            im.RowSize,
		"col_size":            im.ColSize,
		"data_layout_version": dataLayoutVersion,
	})
	if err != nil {
		return fmt.Errorf("while building header: %w", err)
	}

	hdrBytes, err := proto.Marshal(hdr)
	if err != nil {
		return fmt.Errorf("while marshaling header: %w", err)
	}

	headerLengthBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(headerLengthBytes, uint64(len(hdrBytes)))
	if _, err := w.Write(headerLengthBytes); err != nil {
		return fmt.Errorf("while writing header length: %w", err)
	}

	if _, err := w.Write(hdrBytes); err != nil {
		return fmt.Errorf("while writing header: %w", err)
	}

	zipWriter := zlib.NewWriter(w)

	if err := binary.Write(zipWriter, binary.LittleEndian, im.Sums); err != nil {
		return fmt.Errorf("while writing color sums: %w", err)
	}

	if err := binary.Write(zipWriter, binary.LittleEndian, im.Counts); err != nil {
		return fmt.Errorf("while writing sample counts: %w", err)
	}

	if err := zipWriter.Close(); err != nil {
		return fmt.Errorf("while closing zip writer: %w", err)
	}

	return nil
}

func WriteFile(im *Image, name string) error {
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("while creating file: %w", err)
	}

	if err := Write(im, f); err != nil {
		f.Close()
		return err
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("while closing file: %w", err)
	}
	return nil
}
