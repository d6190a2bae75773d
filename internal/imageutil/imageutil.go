// Package imageutil inspects and prepares user photos: content-type and size
// checks, pixel dimensions, downscaling for upstream services and EXIF hints
// for caption prompts.
package imageutil

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// MaxImageBytes is the largest photo accepted for a post.
const MaxImageBytes = 20 << 20

// allowedTypes maps accepted content types to the extension used for the
// stored object.
var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/heic": ".heic",
	"image/heif": ".heif",
}

var (
	// ErrUnsupportedType is returned for content types outside the allowlist.
	ErrUnsupportedType = errors.New("unsupported image type")
	// ErrTooLarge is returned for images above MaxImageBytes.
	ErrTooLarge = errors.New("image too large")
	// ErrEmpty is returned for zero-length images.
	ErrEmpty = errors.New("image is empty")
)

// Validate checks the content type against the allowlist and the size
// against MaxImageBytes.
func Validate(contentType string, size int) error {
	if size == 0 {
		return ErrEmpty
	}
	if size > MaxImageBytes {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, size, MaxImageBytes)
	}
	if _, ok := allowedTypes[normalize(contentType)]; !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedType, contentType)
	}
	return nil
}

// Extension returns the file extension for an accepted content type, or an
// empty string.
func Extension(contentType string) string {
	return allowedTypes[normalize(contentType)]
}

// DetectContentType sniffs the content type of an image. HEIC and HEIF are
// recognised from their ISO-BMFF brand since net/http does not know them.
func DetectContentType(data []byte) string {
	if len(data) >= 12 && string(data[4:8]) == "ftyp" {
		switch string(data[8:12]) {
		case "heic", "heix", "hevc", "hevx":
			return "image/heic"
		case "mif1", "msf1", "heif":
			return "image/heif"
		}
	}
	return normalize(http.DetectContentType(data))
}

func normalize(contentType string) string {
	ct, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(ct))
}

// Dimensions decodes only the image header and returns its pixel size.
// HEIC/HEIF cannot be decoded in pure Go and yield an error.
func Dimensions(data []byte) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// Downscale returns a JPEG whose longest side is at most maxDimension.
// JPEGs already within bounds are returned unchanged.
func Downscale(data []byte, maxDimension int) ([]byte, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	origWidth, origHeight := bounds.Dx(), bounds.Dy()
	if format == "jpeg" && origWidth <= maxDimension && origHeight <= maxDimension {
		return data, "image/jpeg", nil
	}

	newWidth, newHeight := ScaledDimensions(origWidth, origHeight, maxDimension)
	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
		return nil, "", fmt.Errorf("failed to encode image: %w", err)
	}

	log.Debug().
		Str("format", format).
		Int("orig_width", origWidth).
		Int("orig_height", origHeight).
		Int("new_width", newWidth).
		Int("new_height", newHeight).
		Int("output_size", buf.Len()).
		Msg("Image downscaled")

	return buf.Bytes(), "image/jpeg", nil
}

// ScaledDimensions fits width x height into a maxDimension square keeping
// the aspect ratio. Dimensions already within bounds are returned as-is.
func ScaledDimensions(width, height, maxDimension int) (int, int) {
	if width <= maxDimension && height <= maxDimension {
		return width, height
	}
	if width > height {
		return maxDimension, max(1, int(float64(height)*float64(maxDimension)/float64(width)))
	}
	return max(1, int(float64(width)*float64(maxDimension)/float64(height))), maxDimension
}
