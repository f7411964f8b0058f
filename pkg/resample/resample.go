// Package resample implements the deterministic bilinear downscale used to
// normalize target images before feature extraction.
//
// Only arithmetic is used so that identical inputs give identical samples on
// every platform.
package resample

import (
	"math"

	"github.com/menta2k/webar-studio/pkg/errs"
	"github.com/menta2k/webar-studio/pkg/raster"
)

// MaxDimension bounds the output side length accepted by Resize
const MaxDimension = 1 << 15

// Resize scales img by scale using bilinear interpolation. The output is
// floor(width*scale) x floor(height*scale).
func Resize(img *raster.Image, scale float64) (*raster.Image, error) {
	if img == nil {
		return nil, errs.InvalidParameterf("resize", "nil image")
	}
	if math.IsNaN(scale) || math.IsInf(scale, 0) || scale <= 0 {
		return nil, errs.InvalidParameterf("resize", "scale must be a positive finite number, got %v", scale)
	}

	srcW, srcH := img.Width(), img.Height()
	fw := math.Floor(float64(srcW) * scale)
	fh := math.Floor(float64(srcH) * scale)
	if fw < 1 || fh < 1 {
		return nil, errs.InvalidParameterf("resize", "scale %v reduces %dx%d below 1x1", scale, srcW, srcH)
	}
	if fw > MaxDimension || fh > MaxDimension {
		return nil, errs.InvalidParameterf("resize", "scale %v enlarges %dx%d beyond %d px", scale, srcW, srcH, MaxDimension)
	}
	dstW, dstH := int(fw), int(fh)

	return raster.Build(dstW, dstH, func(x, y int) uint8 {
		sx := float64(x) / scale
		sy := float64(y) / scale

		x0 := clampIndex(int(math.Floor(sx)), srcW)
		y0 := clampIndex(int(math.Floor(sy)), srcH)
		x1 := clampIndex(x0+1, srcW)
		y1 := clampIndex(y0+1, srcH)

		xw := sx - float64(x0)
		yw := sy - float64(y0)
		if xw < 0 {
			xw = 0
		} else if xw > 1 {
			xw = 1
		}
		if yw < 0 {
			yw = 0
		} else if yw > 1 {
			yw = 1
		}

		v := float64(img.At(x0, y0))*(1-xw)*(1-yw) +
			float64(img.At(x1, y0))*xw*(1-yw) +
			float64(img.At(x0, y1))*(1-xw)*yw +
			float64(img.At(x1, y1))*xw*yw

		return toSample(v)
	})
}

// Fit downscales img so that neither side exceeds maxDimension. Images that
// already fit are returned as-is with scale 1.
func Fit(img *raster.Image, maxDimension int) (*raster.Image, float64, error) {
	if img == nil {
		return nil, 0, errs.InvalidParameterf("fit", "nil image")
	}
	if maxDimension <= 0 {
		return nil, 0, errs.InvalidParameterf("fit", "max dimension must be positive, got %d", maxDimension)
	}

	longest := img.Width()
	if img.Height() > longest {
		longest = img.Height()
	}
	if longest <= maxDimension {
		return img, 1, nil
	}

	scale := float64(maxDimension) / float64(longest)
	out, err := Resize(img, scale)
	if err != nil {
		return nil, 0, err
	}
	return out, scale, nil
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func toSample(v float64) uint8 {
	r := math.Round(v)
	if r < 0 {
		return 0
	}
	if r > 255 {
		return 255
	}
	return uint8(r)
}
