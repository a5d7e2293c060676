package source

import (
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/okian/presence/internal/domain/model"
)

const maxSnapshotBytes = 32 << 20

// HTTP polls an IP camera snapshot endpoint, one request per frame.
type HTTP struct {
	url    string
	client *http.Client
	seq    atomic.Uint64
	closed atomic.Bool
	s      settings
}

// OpenHTTP fetches url once; a camera that cannot deliver a frame is an error.
func OpenHTTP(ctx context.Context, url string, client *http.Client, opts ...Option) (*HTTP, error) {
	if client == nil {
		client = http.DefaultClient
	}
	h := &HTTP{url: url, client: client, s: newSettings(opts)}
	if _, err := h.fetch(ctx); err != nil {
		return nil, fmt.Errorf("check camera %s: %w", url, err)
	}
	return h, nil
}

// HTTPOpener adapts OpenHTTP to an Opener.
func HTTPOpener(url string, client *http.Client, opts ...Option) Opener {
	return func(ctx context.Context) (Source, error) {
		return OpenHTTP(ctx, url, client, opts...)
	}
}

// Next implements Source.
func (h *HTTP) Next(ctx context.Context) (model.Frame, error) {
	if h.closed.Load() {
		return model.Frame{}, ErrSourceClosed
	}
	img, err := h.fetch(ctx)
	if err != nil {
		return model.Frame{}, err
	}
	return model.Frame{Seq: h.seq.Add(1), CapturedAt: h.s.clock(), Image: img}, nil
}

// Close implements Source.
func (h *HTTP) Close() error {
	h.closed.Store(true)
	h.client.CloseIdleConnections()
	return nil
}

func (h *HTTP) fetch(ctx context.Context) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoFrame, err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoFrame, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxSnapshotBytes))
		return nil, fmt.Errorf("%w: camera returned %d", ErrNoFrame, resp.StatusCode)
	}
	img, err := Decode(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: decode snapshot: %v", ErrNoFrame, err)
	}
	return img, nil
}
