package upload

import (
	"bytes"
	"fmt"
	"image/png"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"github.com/menta2k/webar-studio/pkg/raster"
)

// ImageOptimizer downsizes and re-encodes large images
type ImageOptimizer struct {
	MaxDimension int
	Quality      int
}

// NewImageOptimizer creates an ImageOptimizer with default settings
func NewImageOptimizer() *ImageOptimizer {
	return &ImageOptimizer{MaxDimension: 4096, Quality: 85}
}

// Optimize implements Optimizer. PNG stays PNG, WebP stays WebP, everything
// else becomes JPEG.
func (o *ImageOptimizer) Optimize(data []byte, contentType string) ([]byte, string, error) {
	img, err := raster.DecodeImage(data)
	if err != nil {
		return nil, "", err
	}

	b := img.Bounds()
	if o.MaxDimension > 0 && (b.Dx() > o.MaxDimension || b.Dy() > o.MaxDimension) {
		img = imaging.Fit(img, o.MaxDimension, o.MaxDimension, imaging.Lanczos)
	}

	quality := o.Quality
	if quality < 1 || quality > 100 {
		quality = 85
	}

	var buf bytes.Buffer
	switch strings.ToLower(contentType) {
	case "image/png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, "", fmt.Errorf("encode png: %w", err)
		}
		return buf.Bytes(), "image/png", nil
	case "image/webp":
		if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
			return nil, "", fmt.Errorf("encode webp: %w", err)
		}
		return buf.Bytes(), "image/webp", nil
	default:
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return nil, "", fmt.Errorf("encode jpeg: %w", err)
		}
		return buf.Bytes(), "image/jpeg", nil
	}
}
