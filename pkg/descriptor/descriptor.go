// Package descriptor serializes extracted target features into the portable
// JSON artifact read by the tracking runtime.
package descriptor

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/menta2k/webar-studio/pkg/errs"
	"github.com/menta2k/webar-studio/pkg/raster"
	"github.com/menta2k/webar-studio/pkg/types"
)

// PlaceholderSchema marks artifacts that carry no usable tracking data
const PlaceholderSchema = "webar-placeholder/v1"

// ContentType of the native JSON artifact
const ContentType = "application/json"

// Document is the top-level JSON layout of a native artifact
type Document struct {
	Schema       string                  `json:"schema,omitempty"`
	Placeholder  bool                    `json:"placeholder,omitempty"`
	ImageTargets []types.ImageDescriptor `json:"imageTargets"`
}

// Options controls the exporter
type Options struct {
	// AllowPlaceholder emits a marked placeholder artifact instead of an error
	// when serialization fails.
	AllowPlaceholder bool
}

// Exporter turns an image and its feature points into an Artifact
type Exporter struct {
	options Options
	marshal func(v any) ([]byte, error)
}

// NewExporter creates an Exporter
func NewExporter(options Options) *Exporter {
	return &Exporter{options: options, marshal: json.Marshal}
}

// Describe builds the in-memory descriptor for img and points.
func Describe(img *raster.Image, points []types.FeaturePoint) (*types.ImageDescriptor, error) {
	if img == nil {
		return nil, errs.InvalidParameterf("export", "nil image")
	}
	for i, p := range points {
		if p.X < 0 || p.X >= img.Width() || p.Y < 0 || p.Y >= img.Height() {
			return nil, errs.InvalidParameterf("export", "point %d (%d,%d) outside %dx%d", i, p.X, p.Y, img.Width(), img.Height())
		}
		if math.IsNaN(p.Score) || math.IsInf(p.Score, 0) || p.Score < 0 {
			return nil, errs.InvalidParameterf("export", "point %d has invalid score %v", i, p.Score)
		}
	}

	cp := make([]types.FeaturePoint, len(points))
	copy(cp, points)
	return &types.ImageDescriptor{
		Dimensions:   types.Dimensions{Width: img.Width(), Height: img.Height()},
		MatchingData: types.MatchingData{Points: cp},
	}, nil
}

// Export serializes img and points into a native JSON artifact.
func (e *Exporter) Export(img *raster.Image, points []types.FeaturePoint) (*types.Artifact, error) {
	desc, err := Describe(img, points)
	if err != nil {
		return nil, err
	}
	return e.ExportDescriptors(*desc)
}

// ExportDescriptors serializes one or more descriptors into a single artifact.
func (e *Exporter) ExportDescriptors(descs ...types.ImageDescriptor) (*types.Artifact, error) {
	if len(descs) == 0 {
		return nil, errs.InvalidParameterf("export", "no image targets")
	}

	data, err := e.marshal(Document{ImageTargets: descs})
	if err == nil {
		return &types.Artifact{Data: data, Format: types.FormatJSON, ContentType: ContentType}, nil
	}
	if !e.options.AllowPlaceholder {
		return nil, errs.New(errs.ErrCompilation, "export", fmt.Errorf("serialize descriptor: %w", err))
	}
	return placeholder(descs)
}

// placeholder keeps the dimensions but drops all points so that the artifact
// can never be mistaken for tracking data.
func placeholder(descs []types.ImageDescriptor) (*types.Artifact, error) {
	doc := Document{Schema: PlaceholderSchema, Placeholder: true}
	for _, d := range descs {
		doc.ImageTargets = append(doc.ImageTargets, types.ImageDescriptor{
			Dimensions:   d.Dimensions,
			MatchingData: types.MatchingData{Points: []types.FeaturePoint{}},
		})
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, errs.New(errs.ErrCompilation, "export placeholder", err)
	}
	return &types.Artifact{
		Data:        data,
		Format:      types.FormatPlaceholder,
		ContentType: ContentType,
		Placeholder: true,
	}, nil
}

// Decode parses a native JSON artifact.
func Decode(data []byte) (*Document, error) {
	if len(data) == 0 {
		return nil, errs.InvalidParameterf("decode descriptor", "empty artifact")
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errs.InvalidParameterf("decode descriptor", "%v", err)
	}
	return &doc, nil
}

// IsPlaceholder reports whether doc was produced by the placeholder fallback.
func (d *Document) IsPlaceholder() bool {
	return d.Placeholder || d.Schema == PlaceholderSchema
}
