package features

import (
	"errors"
	"testing"

	"github.com/menta2k/webar-studio/pkg/errs"
	"github.com/menta2k/webar-studio/pkg/raster"
)

// createCheckerboard creates a black/white checkerboard with the given cell size
func createCheckerboard(t testing.TB, width, height, cell int) *raster.Image {
	t.Helper()
	img, err := raster.Build(width, height, func(x, y int) uint8 {
		if (x/cell+y/cell)%2 == 0 {
			return 0
		}
		return 255
	})
	if err != nil {
		t.Fatalf("build checkerboard: %v", err)
	}
	return img
}

// createTestImage creates a gradient with a few high contrast blocks
func createTestImage(t testing.TB, width, height int) *raster.Image {
	t.Helper()
	img, err := raster.Build(width, height, func(x, y int) uint8 {
		if x > width/4 && x < width/2 && y > height/4 && y < 3*height/4 {
			return 255
		}
		if x > 3*width/4 && y > height/4 && y < 3*height/4 {
			return 0
		}
		return uint8((x*128)/width + (y*64)/height)
	})
	if err != nil {
		t.Fatalf("build image: %v", err)
	}
	return img
}

func TestNew(t *testing.T) {
	extractor := New()
	if extractor == nil {
		t.Fatal("New() returned nil")
	}

	if extractor.config.Stride != 10 {
		t.Errorf("Expected stride 10, got %d", extractor.config.Stride)
	}
	if extractor.config.Cap != 200 {
		t.Errorf("Expected cap 200, got %d", extractor.config.Cap)
	}
}

func TestNewWithConfig(t *testing.T) {
	cfg := Config{Stride: 4, Threshold: 10, Cap: 50}

	extractor := NewWithConfig(cfg)
	if extractor.Config() != cfg {
		t.Errorf("Expected config %+v, got %+v", cfg, extractor.Config())
	}
}

func TestUniformImageHasNoFeatures(t *testing.T) {
	img, err := raster.Uniform(512, 512, 128)
	if err != nil {
		t.Fatal(err)
	}

	points, err := New().Extract(img, 200)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if points == nil {
		t.Error("Expected an empty, non-nil slice")
	}
	if len(points) != 0 {
		t.Errorf("Expected no points on a uniform image, got %d", len(points))
	}
}

func TestCheckerboardFillsCap(t *testing.T) {
	extractor := New()
	img := createCheckerboard(t, 1024, 768, 10)

	points, err := extractor.Extract(img, 200)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(points) < 190 || len(points) > 200 {
		t.Errorf("Expected close to 200 points, got %d", len(points))
	}
	for i, p := range points {
		if p.Score <= extractor.config.Threshold {
			t.Errorf("Point %d has score %v at or below threshold", i, p.Score)
		}
	}
}

func TestPointsStayInsideBorder(t *testing.T) {
	cfg := Config{Stride: 7, Threshold: 1, Cap: 10000}
	extractor := NewWithConfig(cfg)

	for _, sz := range [][2]int{{100, 80}, {64, 64}, {15, 15}, {14, 30}, {333, 211}} {
		img := createCheckerboard(t, sz[0], sz[1], 3)
		points, err := extractor.Extract(img, 0)
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		for _, p := range points {
			if p.X < cfg.Stride || p.X >= sz[0]-cfg.Stride {
				t.Errorf("size %v: x=%d outside [%d,%d)", sz, p.X, cfg.Stride, sz[0]-cfg.Stride)
			}
			if p.Y < cfg.Stride || p.Y >= sz[1]-cfg.Stride {
				t.Errorf("size %v: y=%d outside [%d,%d)", sz, p.Y, cfg.Stride, sz[1]-cfg.Stride)
			}
		}
	}
}

func TestOutputSortedAndCapped(t *testing.T) {
	extractor := NewWithConfig(Config{Stride: 5, Threshold: 1, Cap: 200})
	img := createTestImage(t, 400, 300)

	for _, limit := range []int{1, 5, 37, 200, 5000} {
		points, err := extractor.Extract(img, limit)
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		if len(points) > limit {
			t.Errorf("limit %d: got %d points", limit, len(points))
		}
		for i := 1; i < len(points); i++ {
			if points[i].Score > points[i-1].Score {
				t.Fatalf("limit %d: points not sorted at %d (%v > %v)", limit, i, points[i].Score, points[i-1].Score)
			}
		}
	}
}

func TestTiesKeepScanOrder(t *testing.T) {
	extractor := NewWithConfig(Config{Stride: 10, Threshold: 1, Cap: 1000})
	img := createCheckerboard(t, 100, 100, 10)

	points, err := extractor.Extract(img, 0)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(points) < 2 {
		t.Fatalf("Expected several points, got %d", len(points))
	}
	for i := 1; i < len(points); i++ {
		prev, cur := points[i-1], points[i]
		if prev.Score != cur.Score {
			continue
		}
		if cur.Y < prev.Y || (cur.Y == prev.Y && cur.X < prev.X) {
			t.Fatalf("Equal scores out of scan order: %+v before %+v", prev, cur)
		}
	}
}

func TestScoreIsEdgeStrength(t *testing.T) {
	img, err := raster.Build(30, 30, func(x, y int) uint8 {
		switch {
		case x == 20 && y == 10:
			return 100
		case x == 10 && y == 20:
			return 40
		default:
			return 0
		}
	})
	if err != nil {
		t.Fatal(err)
	}

	points, err := NewWithConfig(Config{Stride: 10, Threshold: 1, Cap: 10}).Extract(img, 0)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	// Only (10,10) is on the interior grid of a 30x30 image with stride 10
	if len(points) != 1 {
		t.Fatalf("Expected 1 point, got %d", len(points))
	}
	if points[0].X != 10 || points[0].Y != 10 || points[0].Score != 140 {
		t.Errorf("Unexpected point %+v", points[0])
	}
}

func TestExtractInvalidInput(t *testing.T) {
	if _, err := New().Extract(nil, 10); !errors.Is(err, errs.ErrInvalidParameter) {
		t.Errorf("Expected ErrInvalidParameter for nil image, got %v", err)
	}

	img := createTestImage(t, 50, 50)
	if _, err := NewWithConfig(Config{Stride: 0, Cap: 10}).Extract(img, 0); !errors.Is(err, errs.ErrInvalidParameter) {
		t.Errorf("Expected ErrInvalidParameter for zero stride, got %v", err)
	}
}

func TestSmallImageYieldsNothing(t *testing.T) {
	img := createCheckerboard(t, 20, 20, 1)
	points, err := New().Extract(img, 0)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(points) != 0 {
		t.Errorf("Expected no interior grid on a 20x20 image, got %d", len(points))
	}
}

func BenchmarkExtract(b *testing.B) {
	extractor := New()
	img := createCheckerboard(b, 1024, 768, 10)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		extractor.Extract(img, 200)
	}
}
