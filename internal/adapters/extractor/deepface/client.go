// Package deepface implements detect.Extractor over a DeepFace REST service.
package deepface

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/okian/presence/internal/detect"
	"github.com/okian/presence/internal/domain/model"
)

const (
	representPath  = "/represent"
	skipDetector   = "skip"
	jpegQuality    = 90
	maxBackoff     = 30 * time.Second
	maxBackoffExp  = 6
	maxReplyBytes  = 16 << 20
	defaultBackoff = time.Second
)

// DeepFace detector backends.
const (
	BackendOpenCV     = "opencv"
	BackendRetinaFace = "retinaface"
)

// DefaultModel is the recognition model used when none is configured. Its
// 128-d space is the one a 0.6 euclidean tolerance was tuned for.
const DefaultModel = "Dlib"

// Client talks to DeepFace. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	model      string
	detector   string
	retryCount int
	backoff    time.Duration
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		model:      DefaultModel,
		detector:   BackendOpenCV,
		retryCount: 1,
		backoff:    defaultBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DetectFaces implements detect.Extractor. The embeddings computed in the
// same call travel with each region so Extract needs no second request.
func (c *Client) DetectFaces(ctx context.Context, img image.Image) ([]detect.Region, error) {
	results, err := c.represent(ctx, img, c.detector)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	regions := make([]detect.Region, 0, len(results))
	for _, r := range results {
		box := image.Rect(r.FacialArea.X, r.FacialArea.Y, r.FacialArea.X+r.FacialArea.W, r.FacialArea.Y+r.FacialArea.H).
			Add(b.Min).Intersect(b)
		// With enforce_detection off DeepFace reports "no face" as the whole image.
		if box.Empty() || box == b {
			continue
		}
		regions = append(regions, detect.Region{
			Box:   box,
			Image: detect.Crop(img, box),
			Hint:  toEmbedding(r.Embedding),
		})
	}
	return regions, nil
}

// Extract implements detect.Extractor.
func (c *Client) Extract(ctx context.Context, region detect.Region) ([]model.Embedding, error) {
	if len(region.Hint) > 0 {
		return []model.Embedding{region.Hint}, nil
	}
	if region.Image == nil {
		return nil, nil
	}
	results, err := c.represent(ctx, region.Image, skipDetector)
	if err != nil {
		return nil, err
	}
	out := make([]model.Embedding, 0, len(results))
	for _, r := range results {
		if len(r.Embedding) > 0 {
			out = append(out, toEmbedding(r.Embedding))
		}
	}
	return out, nil
}

func (c *Client) represent(ctx context.Context, img image.Image, backend string) ([]representResult, error) {
	uri, err := dataURI(img)
	if err != nil {
		return nil, err
	}
	req := representRequest{
		Img:              uri,
		ModelName:        c.model,
		DetectorBackend:  backend,
		EnforceDetection: false,
		Align:            true,
	}
	var resp representResponse
	if err := c.doRequestWithRetry(ctx, http.MethodPost, representPath, req, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func backoffFor(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt && i < maxBackoffExp; i++ {
		d *= 2
	}
	return min(d, maxBackoff)
}

// doRequestWithRetry retries transport errors and 5xx replies with
// exponential backoff. 4xx replies and undecodable bodies are not retried.
func (c *Client) doRequestWithRetry(ctx context.Context, method, path string, body, result any) error {
	var lastErr error
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoffFor(c.backoff, attempt)):
			}
		}

		lastErr = c.doRequest(ctx, method, path, body, result)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var se *statusError
		if errors.As(lastErr, &se) && se.clientError() {
			return lastErr
		}
		if errors.Is(lastErr, ErrInvalidResponse) {
			return lastErr
		}
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return &statusError{code: resp.StatusCode, body: string(raw)}
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

func dataURI(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", fmt.Errorf("encode jpeg: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// toEmbedding scales v to unit length. Raw DeepFace vectors differ in
// magnitude between models, so distances are only comparable after this.
func toEmbedding(v []float64) model.Embedding {
	if len(v) == 0 {
		return nil
	}
	var norm float64
	for _, f := range v {
		norm += f * f
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		norm = 1
	}
	out := make(model.Embedding, len(v))
	for i, f := range v {
		out[i] = float32(f / norm)
	}
	return out
}
