// File: internal/evidence/io.go
package evidence

import (
	"encoding/base64"
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"
)

// LoadImage reads a previously saved evidence frame from disk.
func LoadImage(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", path, err)
	}
	return img, nil
}

// EncodeFileBase64 returns an on-disk PNG as a base64 string without
// re-encoding the pixels.
func EncodeFileBase64(path string) (string, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image %s: %w", path, err)
	}
	return base64.StdEncoding.EncodeToString(payload), nil
}
