package objstore

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/fpang/moodmatch/internal/workflow"
	"github.com/spf13/afero"
)

// chunkSize is how much FSStore writes between progress events.
const chunkSize = 64 << 10

// FSStore writes photos to a filesystem. URLs are BaseURL/path, or file://
// paths when BaseURL is empty.
type FSStore struct {
	Fs      afero.Fs
	Root    string
	BaseURL string
}

var _ workflow.ObjectStore = (*FSStore)(nil)

// NewFSStore creates an FSStore rooted at root.
func NewFSStore(fs afero.Fs, root, baseURL string) *FSStore {
	return &FSStore{Fs: fs, Root: root, BaseURL: strings.TrimRight(baseURL, "/")}
}

func (s *FSStore) Upload(ctx context.Context, req workflow.UploadRequest) <-chan workflow.UploadEvent {
	ev := newEvents(ctx)
	go func() {
		url, err := s.write(ctx, req, ev.progress)
		ev.finish(url, err)
	}()
	return ev.ch
}

func (s *FSStore) write(ctx context.Context, req workflow.UploadRequest, progress func(int)) (string, error) {
	clean := path.Clean("/" + req.Path)[1:]
	if clean == "" {
		return "", fmt.Errorf("invalid object path %q", req.Path)
	}
	full := filepath.Join(s.Root, filepath.FromSlash(clean))
	if err := s.Fs.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}

	f, err := s.Fs.Create(full)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", clean, err)
	}

	total := len(req.Data)
	for off := 0; off < total; off += chunkSize {
		if err := ctx.Err(); err != nil {
			f.Close()
			s.Fs.Remove(full)
			return "", err
		}
		end := min(off+chunkSize, total)
		if _, err := f.Write(req.Data[off:end]); err != nil {
			f.Close()
			s.Fs.Remove(full)
			return "", fmt.Errorf("write %s: %w", clean, err)
		}
		progress(end * 100 / total)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", clean, err)
	}

	if s.BaseURL != "" {
		return s.BaseURL + "/" + clean, nil
	}
	abs, err := filepath.Abs(full)
	if err != nil {
		abs = full
	}
	return "file://" + filepath.ToSlash(abs), nil
}
