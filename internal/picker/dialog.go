package picker

import (
	"context"
	"errors"

	"github.com/fpang/moodmatch/internal/workflow"
	"github.com/ncruces/zenity"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// SelectFunc asks the user for one file path.
type SelectFunc func(ctx context.Context) (string, error)

// DialogPicker picks photos on a desktop.
type DialogPicker struct {
	Fs afero.Fs
	// Select opens the library dialog. Defaults to a zenity file dialog.
	Select SelectFunc
	// CameraDir is the folder a tethered camera or phone sync writes into.
	// An empty CameraDir means the device has no camera.
	CameraDir string
}

// NewDialogPicker returns a picker reading from the OS filesystem.
func NewDialogPicker(cameraDir string) *DialogPicker {
	return &DialogPicker{Fs: afero.NewOsFs(), Select: ZenitySelect, CameraDir: cameraDir}
}

// ZenitySelect opens a native file dialog filtered to photos.
func ZenitySelect(ctx context.Context) (string, error) {
	path, err := zenity.SelectFile(
		zenity.Context(ctx),
		zenity.Title("Select a photo"),
		zenity.FileFilters{
			{Name: "Photos", Patterns: Patterns},
		},
	)
	if errors.Is(err, zenity.ErrCanceled) {
		return "", workflow.ErrPickCanceled
	}
	return path, err
}

// Pick implements workflow.Picker.
func (p *DialogPicker) Pick(ctx context.Context, source workflow.Source) (*workflow.SourceImage, error) {
	var (
		path string
		err  error
	)
	switch source {
	case workflow.SourceCamera:
		if p.CameraDir == "" {
			return nil, workflow.PermissionDenied(op, "camera access is not available on this device")
		}
		path, err = newestImage(p.Fs, p.CameraDir)
	case workflow.SourceLibrary:
		if p.Select == nil {
			return nil, workflow.PermissionDenied(op, "photo library access is not available on this device")
		}
		path, err = p.Select(ctx)
	default:
		return nil, errors.New("unknown image source " + string(source))
	}
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, workflow.ErrPickCanceled
	}

	log.Debug().Str("source", string(source)).Str("path", path).Msg("Photo picked")
	return Load(p.Fs, path)
}
