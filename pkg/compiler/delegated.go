package compiler

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/menta2k/webar-studio/pkg/errs"
	"github.com/menta2k/webar-studio/pkg/types"
)

// Library is an external image-tracking compiler obtained at runtime
type Library interface {
	Name() string
	// Compile builds the library's internal target representation,
	// reporting progress between 0 and 100.
	Compile(ctx context.Context, img image.Image, progress ProgressFunc) (Compiled, error)
}

// Compiled is a target compiled by a Library
type Compiled interface {
	// Export returns the library-specific binary artifact
	Export() ([]byte, error)
}

// Delegated compiles targets with an external Library. Its artifacts use the
// library's own binary layout.
type Delegated struct {
	lib Library
}

// NewDelegated creates a Delegated compiler backed by lib
func NewDelegated(lib Library) *Delegated {
	return &Delegated{lib: lib}
}

// Name implements Compiler
func (d *Delegated) Name() string { return "delegated:" + d.lib.Name() }

// Compile implements Compiler
func (d *Delegated) Compile(ctx context.Context, img image.Image, progress ProgressFunc) (*Result, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, errs.InvalidParameterf("compile", "empty image")
	}

	report := reporter(progress)
	report(0)

	compiled, err := d.lib.Compile(ctx, img, report)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, errs.New(errs.ErrAbort, "compile", err)
		}
		return nil, errs.New(errs.ErrCompilation, d.Name(), err)
	}

	data, err := compiled.Export()
	if err != nil {
		return nil, errs.New(errs.ErrCompilation, d.Name(), fmt.Errorf("export: %w", err))
	}
	if len(data) == 0 {
		return nil, errs.New(errs.ErrCompilation, d.Name(), errors.New("library exported an empty artifact"))
	}
	report(100)

	return &Result{
		Artifact: &types.Artifact{
			Data:        data,
			Format:      types.FormatMind,
			ContentType: "application/octet-stream",
		},
		Strategy: d.Name(),
	}, nil
}
