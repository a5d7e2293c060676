package deepface

import (
	"net/http"
	"time"
)

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithModel sets the DeepFace recognition model, e.g. "Dlib" or "Facenet".
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithDetectorBackend sets the DeepFace detector used by DetectFaces.
func WithDetectorBackend(backend string) Option {
	return func(c *Client) {
		if backend != "" {
			c.detector = backend
		}
	}
}

// WithRetryCount sets how many times 5xx and transport errors are retried.
func WithRetryCount(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retryCount = n
		}
	}
}

// WithBackoff sets the first retry delay; later retries double it.
func WithBackoff(base time.Duration) Option {
	return func(c *Client) {
		if base > 0 {
			c.backoff = base
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}
