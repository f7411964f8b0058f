package raster

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/menta2k/webar-studio/pkg/errs"
)

// createTestImage creates an RGBA image with a white square on a black background
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x >= width/4 && x < 3*width/4 && y >= height/4 && y < 3*height/4 {
				img.Set(x, y, color.RGBA{255, 255, 255, 255})
			} else {
				img.Set(x, y, color.RGBA{0, 0, 0, 255})
			}
		}
	}
	return img
}

func TestNewCopiesSamples(t *testing.T) {
	pix := []uint8{1, 2, 3, 4, 5, 6}
	img, err := New(3, 2, pix)
	require.NoError(t, err)

	pix[0] = 99
	require.Equal(t, uint8(1), img.At(0, 0))
	require.Equal(t, uint8(6), img.At(2, 1))

	out := img.Pixels()
	out[1] = 99
	require.Equal(t, uint8(2), img.At(1, 0))
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(0, 2, nil)
	require.ErrorIs(t, err, errs.ErrInvalidParameter)

	_, err = New(2, 2, []uint8{1, 2, 3})
	require.ErrorIs(t, err, errs.ErrInvalidParameter)
}

func TestFromImageLuminance(t *testing.T) {
	img, err := FromImage(createTestImage(40, 20))
	require.NoError(t, err)
	require.Equal(t, 40, img.Width())
	require.Equal(t, 20, img.Height())
	require.Equal(t, uint8(0), img.At(0, 0))
	require.Equal(t, uint8(255), img.At(20, 10))
}

func TestFromImageNonZeroOrigin(t *testing.T) {
	src := image.NewGray(image.Rect(10, 10, 14, 13))
	src.SetGray(10, 10, color.Gray{Y: 200})

	img, err := FromImage(src)
	require.NoError(t, err)
	require.Equal(t, 4, img.Width())
	require.Equal(t, 3, img.Height())
	require.Equal(t, uint8(200), img.At(0, 0))
}

func TestDecodePNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, createTestImage(32, 32)))

	img, err := Decode(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, 32, img.Width())
	require.Equal(t, uint8(255), img.At(16, 16))
}

func TestDecodeFailsFast(t *testing.T) {
	_, err := Decode(nil)
	require.ErrorIs(t, err, errs.ErrInvalidParameter)

	_, err = Decode([]byte("definitely not an image"))
	require.ErrorIs(t, err, errs.ErrInvalidParameter)
}

func TestGrayRoundTrip(t *testing.T) {
	img, err := Build(5, 4, func(x, y int) uint8 { return uint8(x*10 + y) })
	require.NoError(t, err)

	g := img.Gray()
	back, err := FromImage(g)
	require.NoError(t, err)
	require.Equal(t, img.Pixels(), back.Pixels())
}
