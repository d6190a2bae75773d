// Package preview streams song preview audio and guards the single audio
// handle a workflow session may own at a time.
package preview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Handle is an open preview stream. Close releases it.
type Handle interface {
	io.ReadCloser
	ContentType() string
	URL() string
}

// Player opens preview streams.
type Player interface {
	Open(ctx context.Context, url string) (Handle, error)
}

// ErrNoPreview is returned when a track has no preview URL.
var ErrNoPreview = errors.New("track has no preview")

// HTTPPlayer opens previews as HTTP GET response bodies.
type HTTPPlayer struct {
	client *http.Client
}

// NewHTTPPlayer returns a player using client, or a client with a 30s
// timeout when nil.
func NewHTTPPlayer(client *http.Client) *HTTPPlayer {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPPlayer{client: client}
}

func (p *HTTPPlayer) Open(ctx context.Context, url string) (Handle, error) {
	if url == "" {
		return nil, ErrNoPreview
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build preview request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open preview: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("open preview: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "audio/mpeg"
	}
	log.Debug().Str("url", url).Str("contentType", ct).Msg("Preview stream opened")
	return &httpHandle{ReadCloser: resp.Body, contentType: ct, url: url}, nil
}

type httpHandle struct {
	io.ReadCloser
	contentType string
	url         string
}

func (h *httpHandle) ContentType() string { return h.contentType }
func (h *httpHandle) URL() string         { return h.url }

// Slot owns at most one Handle. Acquiring a new handle closes the previous
// one; Release closes the current one. The zero value is ready to use.
type Slot struct {
	mu     sync.Mutex
	handle Handle
}

// Acquire stores h as the current handle, closing any previous handle.
func (s *Slot) Acquire(h Handle) {
	s.mu.Lock()
	prev := s.handle
	s.handle = h
	s.mu.Unlock()
	closeHandle(prev)
}

// Release closes and forgets the current handle. It is safe to call when the
// slot is empty.
func (s *Slot) Release() {
	s.mu.Lock()
	prev := s.handle
	s.handle = nil
	s.mu.Unlock()
	closeHandle(prev)
}

// Current returns the open handle, if any.
func (s *Slot) Current() (Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle, s.handle != nil
}

func closeHandle(h Handle) {
	if h == nil {
		return
	}
	if err := h.Close(); err != nil {
		log.Warn().Err(err).Str("url", h.URL()).Msg("Failed to close preview stream")
	}
}
