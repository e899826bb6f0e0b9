package utils

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

var imageExts = []string{"jpg", "jpeg", "png", "gif", "bmp", "tif", "tiff", "webp"}

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// GetFileExtension returns the lower-case file extension without the dot
func GetFileExtension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

// IsImageFile checks if a file has an image extension
func IsImageFile(filename string) bool {
	return slices.Contains(imageExts, GetFileExtension(filename))
}

// GenerateOutputFilename joins outputDir with name, suffix and the format extension
func GenerateOutputFilename(name, outputDir, suffix, format string) string {
	if format == "" {
		format = "png"
	}
	return filepath.Join(outputDir, fmt.Sprintf("%s%s.%s", name, suffix, strings.ToLower(format)))
}

// ListImageFiles recursively lists all image files in a directory, sorted
func ListImageFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsImageFile(path) {
			files = append(files, path)
		}
		return nil
	})
	slices.Sort(files)
	return files, err
}

// DirExists checks if a directory exists
func DirExists(dirname string) bool {
	info, err := os.Stat(dirname)
	return err == nil && info.IsDir()
}

// SanitizeFilename removes or replaces invalid characters in filenames
func SanitizeFilename(filename string) string {
	result := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`/\:*?"<>|`, r) {
			return '_'
		}
		return r
	}, filename)
	return strings.Trim(result, " .")
}
