package compiler

import (
	"context"
	"image"
	"log/slog"

	"github.com/menta2k/webar-studio/pkg/descriptor"
	"github.com/menta2k/webar-studio/pkg/errs"
	"github.com/menta2k/webar-studio/pkg/features"
	"github.com/menta2k/webar-studio/pkg/raster"
	"github.com/menta2k/webar-studio/pkg/resample"
)

// NativeName identifies the in-process strategy
const NativeName = "native"

// NativeConfig holds configuration for the in-process compiler
type NativeConfig struct {
	MaxDimension     int // longest side after normalization
	MinFeatures      int // fewer points than this flags a low-texture target
	AllowPlaceholder bool
	Features         features.Config
}

// DefaultNativeConfig returns the native compiler defaults
func DefaultNativeConfig() NativeConfig {
	return NativeConfig{
		MaxDimension: 1024,
		MinFeatures:  1,
		Features:     features.DefaultConfig(),
	}
}

// Native compiles targets without any external dependency
type Native struct {
	config    NativeConfig
	extractor *features.Extractor
	exporter  *descriptor.Exporter
	log       *slog.Logger
}

// NewNative creates a Native compiler with default configuration
func NewNative() *Native {
	return NewNativeWithConfig(DefaultNativeConfig())
}

// NewNativeWithConfig creates a Native compiler with custom configuration
func NewNativeWithConfig(config NativeConfig) *Native {
	return &Native{
		config:    config,
		extractor: features.NewWithConfig(config.Features),
		exporter:  descriptor.NewExporter(descriptor.Options{AllowPlaceholder: config.AllowPlaceholder}),
		log:       slog.Default(),
	}
}

// SetLogger replaces the logger
func (n *Native) SetLogger(log *slog.Logger) {
	if log != nil {
		n.log = log
	}
}

// Name implements Compiler
func (n *Native) Name() string { return NativeName }

// Compile implements Compiler
func (n *Native) Compile(ctx context.Context, img image.Image, progress ProgressFunc) (*Result, error) {
	report := reporter(progress)
	report(0)

	gray, err := raster.FromImage(img)
	if err != nil {
		return nil, err
	}
	return n.CompileRaster(ctx, gray, report)
}

// CompileRaster compiles an already converted luminance image.
func (n *Native) CompileRaster(ctx context.Context, img *raster.Image, progress ProgressFunc) (*Result, error) {
	report := reporter(progress)
	if err := ctx.Err(); err != nil {
		return nil, errs.New(errs.ErrAbort, "compile", err)
	}

	normalized, scale, err := resample.Fit(img, n.config.MaxDimension)
	if err != nil {
		return nil, err
	}
	report(25)

	points, err := n.extractor.Extract(normalized, n.config.Features.Cap)
	if err != nil {
		return nil, err
	}
	report(60)

	desc, err := descriptor.Describe(normalized, points)
	if err != nil {
		return nil, err
	}
	artifact, err := n.exporter.ExportDescriptors(*desc)
	if err != nil {
		return nil, err
	}
	report(100)

	res := &Result{
		Artifact:   artifact,
		Descriptor: desc,
		Strategy:   NativeName,
		LowTexture: len(points) < n.config.MinFeatures || len(points) == 0,
	}
	if res.LowTexture {
		n.log.Warn("low texture target",
			"width", normalized.Width(),
			"height", normalized.Height(),
			"points", len(points),
			"min_features", n.config.MinFeatures,
		)
	}
	if artifact.Placeholder {
		n.log.Warn("descriptor serialization failed, emitted placeholder artifact")
	}
	n.log.Debug("native compile finished",
		"source", img.String(),
		"scale", scale,
		"points", len(points),
	)
	return res, nil
}
