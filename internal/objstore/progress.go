// Package objstore stores uploaded photos and reports transfer progress as a
// stream of events: S3 for deployed environments and an afero filesystem for
// local runs and tests.
package objstore

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/fpang/moodmatch/internal/workflow"
)

// events delivers UploadEvents without blocking past cancellation and
// without sending after the producer has finished.
type events struct {
	ctx    context.Context
	ch     chan workflow.UploadEvent
	mu     sync.Mutex
	closed bool
	last   int
}

func newEvents(ctx context.Context) *events {
	return &events{ctx: ctx, ch: make(chan workflow.UploadEvent), last: -1}
}

// progress sends a progress event when the percentage changes.
func (e *events) progress(percent int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || percent == e.last {
		return
	}
	e.last = percent
	select {
	case e.ch <- workflow.UploadEvent{Percent: percent}:
	case <-e.ctx.Done():
	}
}

// finish sends the terminal event and closes the channel. Later progress
// calls are ignored.
func (e *events) finish(url string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	select {
	case e.ch <- workflow.UploadEvent{Done: true, URL: url, Err: err}:
	case <-e.ctx.Done():
	}
	close(e.ch)
}

// progressReader reports how much of an in-memory body has been read. It
// implements io.Seeker so SDK retries can rewind it.
type progressReader struct {
	r      *bytes.Reader
	total  int64
	report func(percent int)
}

func newProgressReader(data []byte, report func(int)) *progressReader {
	return &progressReader{r: bytes.NewReader(data), total: int64(len(data)), report: report}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.total > 0 {
		read := p.total - int64(p.r.Len())
		p.report(int(read * 100 / p.total))
	}
	return n, err
}

func (p *progressReader) Seek(offset int64, whence int) (int64, error) {
	return p.r.Seek(offset, whence)
}

var _ io.ReadSeeker = (*progressReader)(nil)
