package resample

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/menta2k/webar-studio/pkg/errs"
	"github.com/menta2k/webar-studio/pkg/raster"
)

// createTestImage creates a deterministic gradient with some texture
func createTestImage(t testing.TB, width, height int) *raster.Image {
	t.Helper()
	img, err := raster.Build(width, height, func(x, y int) uint8 {
		return uint8((x*7 + y*13 + (x*y)%17) % 256)
	})
	require.NoError(t, err)
	return img
}

func TestResizeDimensions(t *testing.T) {
	sizes := [][2]int{{1, 1}, {7, 3}, {100, 100}, {640, 480}, {1024, 768}, {333, 17}}
	scales := []float64{0.1, 0.25, 1.0 / 3.0, 0.5, 0.75, 1, 1.5, 2}

	for _, sz := range sizes {
		img := createTestImage(t, sz[0], sz[1])
		for _, scale := range scales {
			wantW := int(math.Floor(float64(sz[0]) * scale))
			wantH := int(math.Floor(float64(sz[1]) * scale))

			out, err := Resize(img, scale)
			if wantW < 1 || wantH < 1 {
				require.ErrorIs(t, err, errs.ErrInvalidParameter, "size %v scale %v", sz, scale)
				continue
			}
			require.NoError(t, err, "size %v scale %v", sz, scale)
			require.Equal(t, wantW, out.Width(), "size %v scale %v", sz, scale)
			require.Equal(t, wantH, out.Height(), "size %v scale %v", sz, scale)
		}
	}
}

func TestResizeIdentity(t *testing.T) {
	img := createTestImage(t, 123, 45)
	out, err := Resize(img, 1)
	require.NoError(t, err)
	require.Equal(t, img.Pixels(), out.Pixels())
}

func TestResizeBilinearWeights(t *testing.T) {
	img, err := raster.New(2, 2, []uint8{0, 100, 0, 100})
	require.NoError(t, err)

	up, err := Resize(img, 2)
	require.NoError(t, err)
	require.Equal(t, 4, up.Width())
	require.Equal(t, 4, up.Height())
	row := []uint8{0, 50, 100, 100}
	var want []uint8
	for y := 0; y < 4; y++ {
		want = append(want, row...)
	}
	require.Equal(t, want, up.Pixels())

	img, err = raster.New(4, 2, []uint8{0, 10, 20, 30, 0, 10, 20, 30})
	require.NoError(t, err)

	down, err := Resize(img, 0.5)
	require.NoError(t, err)
	require.Equal(t, []uint8{0, 20}, down.Pixels())
}

func TestResizeSingleRowCannotHalve(t *testing.T) {
	img, err := raster.New(4, 1, []uint8{0, 10, 20, 30})
	require.NoError(t, err)

	_, err = Resize(img, 0.5)
	require.ErrorIs(t, err, errs.ErrInvalidParameter)
}

func TestResizeRoundsToNearest(t *testing.T) {
	img, err := raster.New(2, 2, []uint8{0, 1, 0, 1})
	require.NoError(t, err)

	// sx = 0.5 gives 0.5, which rounds away from zero
	out, err := Resize(img, 4)
	require.NoError(t, err)
	require.Equal(t, uint8(0), out.At(0, 0))
	require.Equal(t, uint8(1), out.At(2, 0))
	require.Equal(t, uint8(1), out.At(3, 0))
}

func TestResizeUniformStaysUniform(t *testing.T) {
	img, err := raster.Uniform(64, 48, 128)
	require.NoError(t, err)

	out, err := Resize(img, 0.37)
	require.NoError(t, err)
	for _, v := range out.Pixels() {
		require.Equal(t, uint8(128), v)
	}
}

func TestResizeInvalidScale(t *testing.T) {
	img := createTestImage(t, 10, 10)
	for _, scale := range []float64{0, -1, math.NaN(), math.Inf(1), 0.05} {
		_, err := Resize(img, scale)
		require.ErrorIs(t, err, errs.ErrInvalidParameter, "scale %v", scale)
	}

	_, err := Resize(nil, 1)
	require.ErrorIs(t, err, errs.ErrInvalidParameter)
}

func TestResizeDeterministic(t *testing.T) {
	img := createTestImage(t, 200, 150)
	a, err := Resize(img, 0.61)
	require.NoError(t, err)
	b, err := Resize(img, 0.61)
	require.NoError(t, err)
	require.Equal(t, a.Pixels(), b.Pixels())
}

func TestFit(t *testing.T) {
	img := createTestImage(t, 2048, 1024)

	out, scale, err := Fit(img, 1024)
	require.NoError(t, err)
	require.Equal(t, 0.5, scale)
	require.Equal(t, 1024, out.Width())
	require.Equal(t, 512, out.Height())

	small := createTestImage(t, 300, 200)
	same, scale, err := Fit(small, 1024)
	require.NoError(t, err)
	require.Equal(t, 1.0, scale)
	require.Same(t, small, same)

	_, _, err = Fit(small, 0)
	require.ErrorIs(t, err, errs.ErrInvalidParameter)
}

func BenchmarkResize(b *testing.B) {
	img := createTestImage(b, 1024, 768)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Resize(img, 0.5)
	}
}
