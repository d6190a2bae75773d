package imageutil

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/evanoberholster/imagemeta"
)

// Hints are the EXIF details worth mentioning in a caption prompt.
type Hints struct {
	Taken       time.Time
	CameraMake  string
	CameraModel string
	Latitude    float64
	Longitude   float64
	HasGPS      bool
}

// ExtractHints reads EXIF metadata from an in-memory image.
// Formats without EXIF return an error; callers treat hints as optional.
func ExtractHints(data []byte) (*Hints, error) {
	exifData, err := imagemeta.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode EXIF metadata: %w", err)
	}

	h := &Hints{
		CameraMake:  strings.TrimSpace(exifData.Make),
		CameraModel: strings.TrimSpace(exifData.Model),
	}

	// DateTimeOriginal > CreateDate > ModifyDate
	switch {
	case !exifData.DateTimeOriginal().IsZero():
		h.Taken = exifData.DateTimeOriginal()
	case !exifData.CreateDate().IsZero():
		h.Taken = exifData.CreateDate()
	case !exifData.ModifyDate().IsZero():
		h.Taken = exifData.ModifyDate()
	}

	if lat, lon := exifData.GPS.Latitude(), exifData.GPS.Longitude(); lat != 0 || lon != 0 {
		h.Latitude, h.Longitude, h.HasGPS = lat, lon, true
	}
	return h, nil
}

// Context formats the hints as prompt lines. Returns "" when nothing useful
// is known.
func (h *Hints) Context() string {
	if h == nil {
		return ""
	}
	var lines []string
	if !h.Taken.IsZero() {
		lines = append(lines, fmt.Sprintf("- Taken: %s, %s at %s",
			h.Taken.Weekday(), h.Taken.Format("January 2, 2006"), h.Taken.Format("3:04 PM")))
		lines = append(lines, "- Time of day: "+timeOfDay(h.Taken))
	}
	if h.HasGPS {
		lines = append(lines, fmt.Sprintf("- Location: %.4f, %.4f", h.Latitude, h.Longitude))
	}
	if camera := strings.TrimSpace(h.CameraMake + " " + h.CameraModel); camera != "" {
		lines = append(lines, "- Camera: "+camera)
	}
	return strings.Join(lines, "\n")
}

func timeOfDay(t time.Time) string {
	switch h := t.Hour(); {
	case h < 5:
		return "night"
	case h < 12:
		return "morning"
	case h < 17:
		return "afternoon"
	case h < 21:
		return "evening"
	default:
		return "night"
	}
}
