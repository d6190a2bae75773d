// Package picker supplies photos to a workflow session.
//
// DialogPicker serves the terminal client: the library source opens a native
// file dialog and the camera source reads the newest photo from a watched
// import folder. Staged serves the HTTP API, where the client has already
// chosen a photo and sent its bytes.
package picker

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fpang/moodmatch/internal/imageutil"
	"github.com/fpang/moodmatch/internal/workflow"
	"github.com/spf13/afero"
)

const op = "pick"

// Patterns lists the file dialog filter for supported photos.
var Patterns = []string{"*.jpg", "*.jpeg", "*.png", "*.gif", "*.webp", "*.heic", "*.heif"}

// Load reads an image file into a SourceImage. The content type is sniffed
// from the bytes and dimensions are filled in when the format decodes.
func Load(fsys afero.Fs, path string) (*workflow.SourceImage, error) {
	info, err := fsys.Stat(path)
	if err != nil {
		return nil, statError(path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > imageutil.MaxImageBytes {
		return nil, fmt.Errorf("%s: %w", path, imageutil.ErrTooLarge)
	}

	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, statError(path, err)
	}
	contentType := imageutil.DetectContentType(data)
	if err := imageutil.Validate(contentType, len(data)); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	img := &workflow.SourceImage{
		URI:         "file://" + filepath.ToSlash(path),
		ContentType: contentType,
		Data:        data,
	}
	if width, height, err := imageutil.Dimensions(data); err == nil {
		img.Width, img.Height = width, height
	}
	return img, nil
}

func statError(path string, err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return workflow.PermissionDenied(op, "photo access was refused for "+path)
	}
	return fmt.Errorf("failed to read %s: %w", path, err)
}

// isImageName reports whether name matches one of Patterns.
func isImageName(name string) bool {
	name = strings.ToLower(name)
	for _, p := range Patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}

// newestImage returns the most recently modified photo directly inside dir.
func newestImage(fsys afero.Fs, dir string) (string, error) {
	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return "", workflow.PermissionDenied(op, "camera folder access was refused")
		}
		return "", fmt.Errorf("failed to list camera folder: %w", err)
	}

	var photos []fs.FileInfo
	for _, e := range entries {
		if !e.IsDir() && isImageName(e.Name()) {
			photos = append(photos, e)
		}
	}
	if len(photos) == 0 {
		return "", workflow.ErrPickCanceled
	}
	sort.Slice(photos, func(i, j int) bool {
		if photos[i].ModTime().Equal(photos[j].ModTime()) {
			return photos[i].Name() > photos[j].Name()
		}
		return photos[i].ModTime().After(photos[j].ModTime())
	})
	return filepath.Join(dir, photos[0].Name()), nil
}
