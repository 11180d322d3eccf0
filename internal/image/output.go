package image

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// SaveImage writes image data into outputDir and returns the saved path.
// The file name is derived from hint and the current time; the extension
// comes from mimeType.
func SaveImage(data []byte, mimeType, outputDir, hint string) (string, error) {
	dir := ExpandPath(outputDir)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(dir, generateFilename(hint, time.Now())+extForMimeType(mimeType))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}

	return path, nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-z0-9]+`)

func generateFilename(hint string, now time.Time) string {
	slug := unsafeFilenameChars.ReplaceAllString(strings.ToLower(hint), "_")
	slug = strings.Trim(slug, "_")
	if len(slug) > 30 {
		slug = strings.TrimRight(slug[:30], "_")
	}
	if slug == "" {
		slug = "image"
	}
	return fmt.Sprintf("%s_%s", now.Format("20060102-150405.000"), slug)
}

// ExpandPath expands ~ to home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
