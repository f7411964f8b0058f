// Package compiler turns decoded target images into compiled tracking
// artifacts.
//
// Two strategies implement Compiler: Native runs the resample, extract and
// export stages in-process; Delegated hands the decoded image to an external
// tracking Library. The caller obtains the Library once (for example with
// ProbeExec) and passes it to Select, which returns the strategy to use.
package compiler

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"math"

	"github.com/menta2k/webar-studio/pkg/errs"
	"github.com/menta2k/webar-studio/pkg/types"
)

// ProgressFunc receives compilation progress as a percentage in [0, 100]
type ProgressFunc func(percent float64)

// Compiler compiles one target image into an artifact
type Compiler interface {
	Name() string
	Compile(ctx context.Context, img image.Image, progress ProgressFunc) (*Result, error)
}

// Result is the outcome of one compilation
type Result struct {
	Artifact *types.Artifact
	// Descriptor is nil when the artifact came from an external library
	Descriptor *types.ImageDescriptor
	Strategy   string
	LowTexture bool
}

// PointCount returns the number of feature points in the native descriptor,
// or -1 when the artifact layout is opaque.
func (r *Result) PointCount() int {
	if r == nil || r.Descriptor == nil {
		return -1
	}
	return len(r.Descriptor.MatchingData.Points)
}

// Select returns the delegated strategy backed by lib with native as its
// fallback, or native alone when lib is nil. Fallback warnings go to the
// native compiler's logger.
func Select(lib Library, native *Native) Compiler {
	if lib == nil {
		return native
	}
	f := WithFallback(NewDelegated(lib), native)
	f.SetLogger(native.log)
	return f
}

// Fallback runs a primary Compiler and retries with a fallback one when the
// primary fails with ErrCompilation
type Fallback struct {
	primary  Compiler
	fallback Compiler
	log      *slog.Logger
}

// WithFallback creates a Fallback compiler
func WithFallback(primary, fallback Compiler) *Fallback {
	return &Fallback{primary: primary, fallback: fallback, log: slog.Default()}
}

// SetLogger replaces the logger
func (c *Fallback) SetLogger(log *slog.Logger) {
	if log != nil {
		c.log = log
	}
}

func (c *Fallback) Name() string {
	return c.primary.Name() + "+" + c.fallback.Name()
}

func (c *Fallback) Compile(ctx context.Context, img image.Image, progress ProgressFunc) (*Result, error) {
	res, err := c.primary.Compile(ctx, img, progress)
	if err == nil {
		return res, nil
	}
	if !errors.Is(err, errs.ErrCompilation) || ctx.Err() != nil {
		return nil, err
	}
	c.log.Warn("delegated compilation failed, using native compiler",
		"primary", c.primary.Name(),
		"fallback", c.fallback.Name(),
		"error", err,
	)
	return c.fallback.Compile(ctx, img, progress)
}

// reporter clamps and forwards progress, tolerating a nil callback
func reporter(progress ProgressFunc) ProgressFunc {
	return func(p float64) {
		if progress == nil {
			return
		}
		switch {
		case math.IsNaN(p):
			return
		case p < 0:
			p = 0
		case p > 100:
			p = 100
		}
		progress(p)
	}
}
