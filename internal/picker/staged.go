package picker

import (
	"context"
	"sync"

	"github.com/fpang/moodmatch/internal/workflow"
)

// Staged hands out a photo the client already chose. Each staged photo or
// refusal is consumed by the next Pick.
type Staged struct {
	mu     sync.Mutex
	img    *workflow.SourceImage
	denied string
}

// Put stages img for the next Pick.
func (s *Staged) Put(img *workflow.SourceImage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.img, s.denied = img, ""
}

// Deny makes the next Pick fail with PermissionDenied, for clients that
// report a refused camera or library permission.
func (s *Staged) Deny(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if message == "" {
		message = "photo access was refused"
	}
	s.img, s.denied = nil, message
}

// Pick implements workflow.Picker. With nothing staged it reports a
// cancelled pick.
func (s *Staged) Pick(ctx context.Context, source workflow.Source) (*workflow.SourceImage, error) {
	s.mu.Lock()
	img, denied := s.img, s.denied
	s.img, s.denied = nil, ""
	s.mu.Unlock()

	if denied != "" {
		return nil, workflow.PermissionDenied(op, denied)
	}
	if img == nil {
		return nil, workflow.ErrPickCanceled
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return img, nil
}
