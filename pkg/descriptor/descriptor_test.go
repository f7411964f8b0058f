package descriptor

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/menta2k/webar-studio/pkg/errs"
	"github.com/menta2k/webar-studio/pkg/features"
	"github.com/menta2k/webar-studio/pkg/raster"
	"github.com/menta2k/webar-studio/pkg/resample"
	"github.com/menta2k/webar-studio/pkg/types"
)

func createCheckerboard(t *testing.T, width, height, cell int) *raster.Image {
	t.Helper()
	img, err := raster.Build(width, height, func(x, y int) uint8 {
		if (x/cell+y/cell)%2 == 0 {
			return 20
		}
		return 230
	})
	require.NoError(t, err)
	return img
}

func TestExportRoundTrip(t *testing.T) {
	src := createCheckerboard(t, 800, 600, 13)
	img, err := resample.Resize(src, 0.5)
	require.NoError(t, err)

	points, err := features.New().Extract(img, 200)
	require.NoError(t, err)
	require.NotEmpty(t, points)

	artifact, err := NewExporter(Options{}).Export(img, points)
	require.NoError(t, err)
	require.Equal(t, types.FormatJSON, artifact.Format)
	require.Equal(t, ContentType, artifact.ContentType)
	require.False(t, artifact.Placeholder)

	doc, err := Decode(artifact.Data)
	require.NoError(t, err)
	require.False(t, doc.IsPlaceholder())
	require.Len(t, doc.ImageTargets, 1)
	require.Equal(t, types.Dimensions{Width: 400, Height: 300}, doc.ImageTargets[0].Dimensions)
	require.Equal(t, points, doc.ImageTargets[0].MatchingData.Points)
}

func TestExportSchema(t *testing.T) {
	img, err := raster.Uniform(30, 20, 0)
	require.NoError(t, err)

	artifact, err := NewExporter(Options{}).Export(img, []types.FeaturePoint{{X: 10, Y: 5, Score: 42.5}})
	require.NoError(t, err)
	require.JSONEq(t,
		`{"imageTargets":[{"dimensions":{"width":30,"height":20},"matchingData":{"points":[{"x":10,"y":5,"score":42.5}]}}]}`,
		string(artifact.Data))
}

func TestExportEmptyPointsIsValid(t *testing.T) {
	img, err := raster.Uniform(64, 64, 128)
	require.NoError(t, err)

	artifact, err := NewExporter(Options{}).Export(img, []types.FeaturePoint{})
	require.NoError(t, err)

	var raw map[string][]map[string]map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(artifact.Data, &raw))
	require.JSONEq(t, `[]`, string(raw["imageTargets"][0]["matchingData"]["points"]))
}

func TestExportRejectsInvalidPoints(t *testing.T) {
	img, err := raster.Uniform(10, 10, 0)
	require.NoError(t, err)
	exporter := NewExporter(Options{AllowPlaceholder: true})

	cases := [][]types.FeaturePoint{
		{{X: 10, Y: 0, Score: 1}},
		{{X: 0, Y: -1, Score: 1}},
		{{X: 1, Y: 1, Score: -3}},
		{{X: 1, Y: 1, Score: math.NaN()}},
	}
	for _, points := range cases {
		_, err := exporter.Export(img, points)
		require.ErrorIs(t, err, errs.ErrInvalidParameter, "%+v", points)
	}

	_, err = exporter.Export(nil, nil)
	require.ErrorIs(t, err, errs.ErrInvalidParameter)
}

func TestSerializationFailureWithoutOptIn(t *testing.T) {
	img, err := raster.Uniform(10, 10, 0)
	require.NoError(t, err)

	exporter := NewExporter(Options{})
	exporter.marshal = func(any) ([]byte, error) { return nil, errors.New("boom") }

	_, err = exporter.Export(img, nil)
	require.ErrorIs(t, err, errs.ErrCompilation)
}

func TestSerializationFailureEmitsMarkedPlaceholder(t *testing.T) {
	img, err := raster.Uniform(48, 32, 0)
	require.NoError(t, err)

	exporter := NewExporter(Options{AllowPlaceholder: true})
	exporter.marshal = func(any) ([]byte, error) { return nil, errors.New("boom") }

	artifact, err := exporter.Export(img, []types.FeaturePoint{{X: 1, Y: 1, Score: 50}})
	require.NoError(t, err)
	require.True(t, artifact.Placeholder)
	require.Equal(t, types.FormatPlaceholder, artifact.Format)

	doc, err := Decode(artifact.Data)
	require.NoError(t, err)
	require.True(t, doc.IsPlaceholder())
	require.Equal(t, PlaceholderSchema, doc.Schema)
	require.Equal(t, types.Dimensions{Width: 48, Height: 32}, doc.ImageTargets[0].Dimensions)
	require.Empty(t, doc.ImageTargets[0].MatchingData.Points)
}

func TestExportDescriptorsMultipleTargets(t *testing.T) {
	a := types.ImageDescriptor{Dimensions: types.Dimensions{Width: 1, Height: 2}}
	b := types.ImageDescriptor{Dimensions: types.Dimensions{Width: 3, Height: 4}}

	artifact, err := NewExporter(Options{}).ExportDescriptors(a, b)
	require.NoError(t, err)

	doc, err := Decode(artifact.Data)
	require.NoError(t, err)
	require.Len(t, doc.ImageTargets, 2)
	require.Equal(t, 3, doc.ImageTargets[1].Dimensions.Width)

	_, err = NewExporter(Options{}).ExportDescriptors()
	require.ErrorIs(t, err, errs.ErrInvalidParameter)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode(nil)
	require.ErrorIs(t, err, errs.ErrInvalidParameter)

	_, err = Decode([]byte("{not json"))
	require.ErrorIs(t, err, errs.ErrInvalidParameter)
}
