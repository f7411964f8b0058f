package upload

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime"
	"mime/multipart"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMultipartBodyLayout(t *testing.T) {
	data := []byte("payload bytes")
	body, err := newMultipartBody(map[string]string{"policy": "p", "key": "k"}, "file", `po"ster.png`, "image/png", data)
	require.NoError(t, err)

	raw, err := io.ReadAll(body.reader)
	require.NoError(t, err)
	require.Equal(t, body.length, int64(len(raw)))

	mediaType, params, err := mime.ParseMediaType(body.contentType)
	require.NoError(t, err)
	require.Equal(t, "multipart/form-data", mediaType)

	r := multipart.NewReader(bytes.NewReader(raw), params["boundary"])
	var names []string
	var file []byte
	for {
		p, err := r.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, p.FormName())
		if p.FormName() == "file" {
			require.Equal(t, `po"ster.png`, p.FileName())
			require.Equal(t, "image/png", p.Header.Get("Content-Type"))
			file, err = io.ReadAll(p)
			require.NoError(t, err)
		}
	}
	// fields sorted, file last
	require.Equal(t, []string{"key", "policy", "file"}, names)
	require.Equal(t, data, file)
}

func TestMultipartBodyDefaultContentType(t *testing.T) {
	body, err := newMultipartBody(nil, "file", "blob", "", []byte{1, 2, 3})
	require.NoError(t, err)
	raw, err := io.ReadAll(body.reader)
	require.NoError(t, err)
	require.Contains(t, string(raw), "Content-Type: application/octet-stream")
}

func TestImageOptimizer(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 400, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 400; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 90, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	opt := &ImageOptimizer{MaxDimension: 100, Quality: 80}

	out, ct, err := opt.Optimize(buf.Bytes(), "image/png")
	require.NoError(t, err)
	require.Equal(t, "image/png", ct)
	cfg, err := png.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	require.Equal(t, 100, cfg.Width)
	require.Equal(t, 50, cfg.Height)

	out, ct, err = opt.Optimize(buf.Bytes(), "image/jpeg")
	require.NoError(t, err)
	require.Equal(t, "image/jpeg", ct)
	require.Equal(t, "image/jpeg", DetectContentType("x", out))

	_, _, err = opt.Optimize([]byte("not an image"), "image/png")
	require.Error(t, err)
}
