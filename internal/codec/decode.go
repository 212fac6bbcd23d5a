// Package codec decodes uploads into images and encodes rendered buffers
// into the output formats (PNG, JPEG, PDF trace sheet, data URI).
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrUnsupportedImage is returned for unreadable, corrupt or unknown input.
var ErrUnsupportedImage = errors.New("unsupported or corrupt image")

// DefaultMaxPixels bounds decoded images (width*height).
const DefaultMaxPixels = 64 << 20

// SupportedImageExtensions lists file extensions accepted for loading.
var SupportedImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".tif", ".tiff", ".webp", ".gif"}

// IsSupportedImage reports whether the path has a supported image extension.
func IsSupportedImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range SupportedImageExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// Error records which step of loading failed.
type Error struct {
	Operation string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Metadata describes a decoded image.
type Metadata struct {
	Path      string `json:"path,omitempty"`
	Format    string `json:"format"`
	SizeBytes int64  `json:"size_bytes"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Decode reads a complete image from r. JPEG EXIF orientation is applied so
// the result is upright.
func Decode(r io.Reader) (image.Image, Metadata, error) {
	return DecodeWithLimit(r, DefaultMaxPixels)
}

// DecodeWithLimit is Decode with an explicit pixel bound; maxPixels <= 0
// disables the check.
func DecodeWithLimit(r io.Reader, maxPixels int) (image.Image, Metadata, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, Metadata{}, &Error{Operation: "read", Err: err}
	}
	if len(data) == 0 {
		return nil, Metadata{}, &Error{Operation: "decode", Err: fmt.Errorf("%w: empty input", ErrUnsupportedImage)}
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, Metadata{}, &Error{Operation: "decode", Err: fmt.Errorf("%w: %v", ErrUnsupportedImage, err)}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, Metadata{}, &Error{Operation: "decode", Err: fmt.Errorf("%w: zero size", ErrUnsupportedImage)}
	}
	if maxPixels > 0 && cfg.Width*cfg.Height > maxPixels {
		return nil, Metadata{}, &Error{
			Operation: "decode",
			Err:       fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrUnsupportedImage, cfg.Width, cfg.Height, maxPixels),
		}
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, Metadata{}, &Error{Operation: "decode", Err: fmt.Errorf("%w: %v", ErrUnsupportedImage, err)}
	}

	b := img.Bounds()
	meta := Metadata{
		Format:    format,
		SizeBytes: int64(len(data)),
		Width:     b.Dx(),
		Height:    b.Dy(),
	}
	return img, meta, nil
}

// LoadImage opens and decodes an image file.
func LoadImage(path string) (image.Image, Metadata, error) {
	if path == "" {
		return nil, Metadata{}, &Error{Operation: "load", Err: errors.New("empty path")}
	}
	if !IsSupportedImage(path) {
		return nil, Metadata{}, &Error{
			Operation: "load",
			Err:       fmt.Errorf("%w: extension %s", ErrUnsupportedImage, filepath.Ext(path)),
		}
	}

	f, err := os.Open(path) //nolint:gosec // G304: reading a user-provided image path is expected
	if err != nil {
		return nil, Metadata{}, &Error{Operation: "load", Err: err}
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("Error closing image file", "path", path, "error", err)
		}
	}()

	img, meta, err := Decode(f)
	if err != nil {
		return nil, Metadata{}, err
	}
	meta.Path = path
	return img, meta, nil
}
