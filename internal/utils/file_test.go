package utils

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/menta2k/webar-studio/pkg/types"
)

func TestIsImageFile(t *testing.T) {
	for name, want := range map[string]bool{
		"target.PNG":  true,
		"photo.jpeg":  true,
		"anim.gif":    true,
		"poster.webp": true,
		"scan.tiff":   false,
		"model.glb":   false,
		"noext":       false,
		"t.mind.json": false,
	} {
		if got := IsImageFile(name); got != want {
			t.Errorf("IsImageFile(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestArtifactPath(t *testing.T) {
	require.Equal(t, filepath.Join("in", "poster.mind.json"), ArtifactPath(filepath.Join("in", "poster.png"), "", types.FormatJSON))
	require.Equal(t, filepath.Join("out", "poster.mind"), ArtifactPath("poster.jpg", "out", types.FormatMind))
}

func TestHasArtifact(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "poster.png")
	require.False(t, HasArtifact(src, ""))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "poster.mind"), []byte("x"), 0644))
	require.True(t, HasArtifact(src, ""))
	require.False(t, HasArtifact(src, filepath.Join(dir, "out")))
}

func TestListImageFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EnsureDir(filepath.Join(dir, "sub")))
	for _, name := range []string{"a.png", "b.txt", "sub/c.jpg", "sub/c.mind.json"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}

	files, err := ListImageFiles(dir)
	require.NoError(t, err)
	sort.Strings(files)
	require.Equal(t, []string{filepath.Join(dir, "a.png"), filepath.Join(dir, "sub", "c.jpg")}, files)
	require.True(t, FileExists(files[0]))
	require.False(t, FileExists(dir))
}

func TestSanitizeFilename(t *testing.T) {
	require.Equal(t, "a_b_c.png", SanitizeFilename("a/b\\c.png"))
	require.Equal(t, "_.._etc_passwd", SanitizeFilename("../../etc/passwd"))
	require.Equal(t, "file", SanitizeFilename(".."))
	require.Equal(t, "file", SanitizeFilename(""))
}

func TestFormatFileSize(t *testing.T) {
	require.Equal(t, "512 B", FormatFileSize(512))
	require.Equal(t, "1.5 KiB", FormatFileSize(1536))
	require.Equal(t, "150 MiB", FormatFileSize(150<<20))
	require.Equal(t, "0 B", FormatFileSize(-1))
}
