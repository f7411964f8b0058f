package utils

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/menta2k/webar-studio/pkg/types"
)

// imageExts lists the formats the raster decoder understands
var imageExts = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
}

// EnsureDir creates dir and its parents
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}

// IsImageFile checks if a file has a decodable image extension
func IsImageFile(filename string) bool {
	_, ok := imageExts[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// ArtifactPath returns the path of the compiled artifact for inputFile. An
// empty outputDir places it next to the input.
func ArtifactPath(inputFile, outputDir string, format types.ArtifactFormat) string {
	stem := strings.TrimSuffix(filepath.Base(inputFile), filepath.Ext(inputFile))
	if outputDir == "" {
		outputDir = filepath.Dir(inputFile)
	}
	return filepath.Join(outputDir, stem+format.Extension())
}

// HasArtifact reports whether an artifact of any format already exists for
// inputFile
func HasArtifact(inputFile, outputDir string) bool {
	for _, format := range []types.ArtifactFormat{types.FormatJSON, types.FormatMind} {
		if FileExists(ArtifactPath(inputFile, outputDir, format)) {
			return true
		}
	}
	return false
}

// ListImageFiles recursively lists all image files in a directory
func ListImageFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsImageFile(path) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// FileExists reports whether filename is an existing regular file
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	return err == nil && info.Mode().IsRegular()
}

// SanitizeFilename makes filename safe to use as a single path segment of an
// object key
func SanitizeFilename(filename string) string {
	result := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		}
		return r
	}, filename)

	// leading dots would hide the file or escape with ".."
	result = strings.Trim(result, " .")
	if result == "" {
		return "file"
	}
	return result
}

// FormatFileSize formats file size in human-readable format
func FormatFileSize(size int64) string {
	if size < 0 {
		size = 0
	}
	return humanize.IBytes(uint64(size))
}
