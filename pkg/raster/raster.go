// Package raster holds the single-channel luminance images consumed by the
// resampler and the feature extractor, and decodes uploaded target files into
// them.
package raster

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/webar-studio/pkg/errs"
)

// Image is an immutable width x height grid of 8-bit luminance samples stored
// row-major.
type Image struct {
	width  int
	height int
	pix    []uint8
}

// New creates an Image from a copy of pix. len(pix) must equal width*height.
func New(width, height int, pix []uint8) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, errs.InvalidParameterf("raster", "invalid dimensions %dx%d", width, height)
	}
	if len(pix) != width*height {
		return nil, errs.InvalidParameterf("raster", "expected %d samples, got %d", width*height, len(pix))
	}
	cp := make([]uint8, len(pix))
	copy(cp, pix)
	return &Image{width: width, height: height, pix: cp}, nil
}

// Build creates an Image by evaluating sample for every pixel in row-major
// order.
func Build(width, height int, sample func(x, y int) uint8) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, errs.InvalidParameterf("raster", "invalid dimensions %dx%d", width, height)
	}
	pix := make([]uint8, width*height)
	i := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			pix[i] = sample(x, y)
			i++
		}
	}
	return &Image{width: width, height: height, pix: pix}, nil
}

// Uniform creates an Image where every sample equals v.
func Uniform(width, height int, v uint8) (*Image, error) {
	return Build(width, height, func(int, int) uint8 { return v })
}

// FromImage converts any decoded image into luminance samples.
func FromImage(img image.Image) (*Image, error) {
	if img == nil {
		return nil, errs.InvalidParameterf("raster", "nil image")
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, errs.InvalidParameterf("raster", "empty image %dx%d", b.Dx(), b.Dy())
	}

	// Grayscale returns an NRGBA image with R=G=B, anchored at (0,0)
	gray := imaging.Grayscale(img)
	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	return Build(w, h, func(x, y int) uint8 {
		return gray.Pix[y*gray.Stride+x*4]
	})
}

// Width returns the number of columns.
func (m *Image) Width() int { return m.width }

// Height returns the number of rows.
func (m *Image) Height() int { return m.height }

// At returns the sample at (x, y). Coordinates must be in bounds.
func (m *Image) At(x, y int) uint8 {
	return m.pix[y*m.width+x]
}

// Pixels returns a copy of the samples in row-major order.
func (m *Image) Pixels() []uint8 {
	cp := make([]uint8, len(m.pix))
	copy(cp, m.pix)
	return cp
}

// Gray returns the samples as a standard library grayscale image.
func (m *Image) Gray() *image.Gray {
	g := image.NewGray(image.Rect(0, 0, m.width, m.height))
	copy(g.Pix, m.pix)
	return g
}

// DecodeImage decodes JPEG, PNG, GIF or WebP data, honouring EXIF orientation.
func DecodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, errs.InvalidParameterf("decode", "empty file")
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err == nil {
		return img, nil
	}

	// Fallback: libwebp handles extended WebP variants the pure Go decoder rejects
	if wimg, werr := webp.Decode(bytes.NewReader(data)); werr == nil {
		return wimg, nil
	}

	return nil, errs.InvalidParameterf("decode", "unknown or unsupported image format: %v", err)
}

// Decode decodes data and converts it into luminance samples.
func Decode(data []byte) (*Image, error) {
	img, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}
	return FromImage(img)
}

// String implements fmt.Stringer.
func (m *Image) String() string {
	return fmt.Sprintf("raster.Image(%dx%d)", m.width, m.height)
}
