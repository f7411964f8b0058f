package features

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/menta2k/webar-studio/pkg/errs"
	"github.com/menta2k/webar-studio/pkg/raster"
	"github.com/menta2k/webar-studio/pkg/types"
)

// Extractor finds trackable points in a luminance image.
//
// The score is a first-order edge-strength heuristic sampled on a fixed grid:
// the sum of absolute differences between a grid sample and its neighbours
// one stride to the right and one stride below. It is a lightweight proxy for
// a corner detector and is NOT invariant to rotation or scale; a target
// photographed at a different angle or distance yields a different point set.
type Extractor struct {
	config Config
}

// Config holds configuration for feature extraction
type Config struct {
	Stride    int     // grid step in pixels, also the excluded border width
	Threshold float64 // minimum score kept
	Cap       int     // maximum number of points returned
}

// DefaultConfig returns the extraction defaults
func DefaultConfig() Config {
	return Config{
		Stride:    10,
		Threshold: 32,
		Cap:       200,
	}
}

// New creates an Extractor with default configuration
func New() *Extractor {
	return &Extractor{config: DefaultConfig()}
}

// NewWithConfig creates an Extractor with custom configuration
func NewWithConfig(config Config) *Extractor {
	return &Extractor{config: config}
}

// Config returns the active configuration
func (e *Extractor) Config() Config {
	return e.config
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.Stride < 1 {
		return fmt.Errorf("stride must be at least 1, got %d", c.Stride)
	}
	if c.Threshold < 0 {
		return fmt.Errorf("threshold must not be negative, got %v", c.Threshold)
	}
	if c.Cap < 1 {
		return fmt.Errorf("cap must be at least 1, got %d", c.Cap)
	}
	return nil
}

// Extract returns at most limit points sorted by descending score. A limit of
// zero or less uses the configured cap. An empty result is valid and signals a
// low-texture image.
func (e *Extractor) Extract(img *raster.Image, limit int) ([]types.FeaturePoint, error) {
	if img == nil {
		return nil, errs.InvalidParameterf("extract", "nil image")
	}
	if err := e.config.Validate(); err != nil {
		return nil, errs.InvalidParameterf("extract", "%v", err)
	}
	if limit <= 0 {
		limit = e.config.Cap
	}

	stride := e.config.Stride
	width, height := img.Width(), img.Height()

	var points []types.FeaturePoint
	for y := stride; y < height-stride; y += stride {
		for x := stride; x < width-stride; x += stride {
			score := e.score(img, x, y)
			if score < e.config.Threshold {
				continue
			}
			points = append(points, types.FeaturePoint{X: x, Y: y, Score: score})
		}
	}

	slices.SortStableFunc(points, func(a, b types.FeaturePoint) int {
		return cmp.Compare(b.Score, a.Score)
	})

	if len(points) > limit {
		points = points[:limit]
	}
	if points == nil {
		points = []types.FeaturePoint{}
	}
	return points, nil
}

func (e *Extractor) score(img *raster.Image, x, y int) float64 {
	s := e.config.Stride
	c := int(img.At(x, y))
	right := int(img.At(x+s, y))
	below := int(img.At(x, y+s))
	return float64(absInt(c-right) + absInt(c-below))
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
