// Package webarstudio compiles WebAR target images into tracking artifacts and
// publishes both to object storage.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//		"os"
//
//		webarstudio "github.com/menta2k/webar-studio"
//		"github.com/menta2k/webar-studio/pkg/upload"
//	)
//
//	func main() {
//		studio := webarstudio.New("http://localhost:8080")
//
//		data, err := os.ReadFile("poster.png")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		pub, err := studio.Publish(context.Background(), upload.File{Name: "poster.png", Data: data}, nil)
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Printf("target %s, artifact %s (%d points)\n", pub.ImageURL, pub.ArtifactURL, pub.Points)
//	}
//
// The package ties together the components under pkg/:
//
// 1. Raster (pkg/raster): decoding and luminance conversion
// 2. Resample and Features (pkg/resample, pkg/features): normalization and keypoint extraction
// 3. Descriptor and Compiler (pkg/descriptor, pkg/compiler): artifact export, native or delegated
// 4. Upload (pkg/upload): credential, transfer, retry and fallback state machine
//
// The native detector is a simple gradient grid. It is deterministic and
// suitable for flat, well textured targets, but it is neither rotation nor
// scale invariant. Pass a compiler.Library to NewWithConfig to delegate to a
// full tracking compiler.
package webarstudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/menta2k/webar-studio/internal/logging"
	"github.com/menta2k/webar-studio/pkg/compiler"
	"github.com/menta2k/webar-studio/pkg/errs"
	"github.com/menta2k/webar-studio/pkg/raster"
	"github.com/menta2k/webar-studio/pkg/types"
	"github.com/menta2k/webar-studio/pkg/upload"
)

// Version of the webar studio library
const Version = "1.0.0"

// Uploader stores a file and returns its public URL
type Uploader interface {
	Upload(ctx context.Context, f upload.File) (string, error)
}

// Studio provides a high-level interface for compiling and publishing targets
type Studio struct {
	compiler compiler.Compiler
	uploader Uploader
	log      *slog.Logger
}

// New creates a Studio using the native compiler and an upload orchestrator
// for the backend at backendURL
func New(backendURL string) *Studio {
	return NewWithConfig(compiler.NewNative(), upload.New(backendURL))
}

// NewWithConfig creates a Studio with a custom compiler and uploader. A nil
// uploader limits the Studio to Compile.
func NewWithConfig(c compiler.Compiler, u Uploader) *Studio {
	if c == nil {
		c = compiler.NewNative()
	}
	return &Studio{compiler: c, uploader: u, log: slog.Default()}
}

// SetLogger replaces the logger
func (s *Studio) SetLogger(log *slog.Logger) {
	if log != nil {
		s.log = log
	}
}

// Compiler returns the compilation strategy in use
func (s *Studio) Compiler() compiler.Compiler {
	return s.compiler
}

// Publication is the outcome of publishing one target
type Publication struct {
	ImageURL       string               `json:"imageUrl"`
	ArtifactURL    string               `json:"artifactUrl"`
	ArtifactFormat types.ArtifactFormat `json:"artifactFormat"`
	Strategy       string               `json:"strategy"`
	Points         int                  `json:"points"`
	LowTexture     bool                 `json:"lowTexture"`
	Placeholder    bool                 `json:"placeholder"`
}

// Compile decodes a JPEG, PNG, GIF or WebP target and compiles it
func (s *Studio) Compile(ctx context.Context, data []byte, progress compiler.ProgressFunc) (*compiler.Result, error) {
	if len(data) == 0 {
		return nil, errs.InvalidParameterf("compile", "empty image data")
	}
	img, err := raster.DecodeImage(data)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := s.compiler.Compile(ctx, img, progress)
	if err != nil {
		logging.LogCompileError(s.log, s.compiler.Name(), time.Since(start), err)
		return nil, err
	}
	logging.LogCompileComplete(s.log, s.compiler.Name(), res.Strategy, res.PointCount(), time.Since(start))
	return res, nil
}

// CompileFile compiles the target image stored at path
func (s *Studio) CompileFile(ctx context.Context, path string, progress compiler.ProgressFunc) (*compiler.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return s.Compile(ctx, data, progress)
}

// Publish uploads the target image, compiles it and uploads the artifact.
// Undecodable input fails before anything is uploaded.
func (s *Studio) Publish(ctx context.Context, f upload.File, progress compiler.ProgressFunc) (*Publication, error) {
	if s.uploader == nil {
		return nil, errors.New("publish: no uploader configured")
	}
	if len(f.Data) == 0 {
		return nil, errs.InvalidParameterf("publish", "empty file %q", f.Name)
	}
	img, err := raster.DecodeImage(f.Data)
	if err != nil {
		return nil, err
	}

	imageURL, err := s.uploader.Upload(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("upload target: %w", err)
	}

	res, err := s.compiler.Compile(ctx, img, progress)
	if err != nil {
		return nil, fmt.Errorf("compile target: %w", err)
	}

	artifactURL, err := s.uploader.Upload(ctx, upload.File{
		Name:        artifactName(f.Name, res.Artifact.Format),
		ContentType: res.Artifact.ContentType,
		Data:        res.Artifact.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("upload artifact: %w", err)
	}

	s.log.Info("target published",
		"image_url", imageURL,
		"artifact_url", artifactURL,
		"strategy", res.Strategy,
		"points", res.PointCount(),
	)
	return &Publication{
		ImageURL:       imageURL,
		ArtifactURL:    artifactURL,
		ArtifactFormat: res.Artifact.Format,
		Strategy:       res.Strategy,
		Points:         res.PointCount(),
		LowTexture:     res.LowTexture,
		Placeholder:    res.Artifact.Placeholder,
	}, nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}

func artifactName(source string, format types.ArtifactFormat) string {
	base := filepath.Base(source)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." {
		stem = "target"
	}
	return stem + format.Extension()
}
