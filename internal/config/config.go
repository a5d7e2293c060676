// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - New returns defaults; Load layers a YAML file and env vars on top.
//   - The Config value is built once at startup and handed to constructors.
//   - Validation errors wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"time"
)

// Detector model names.
const (
	DetectorFast     = "fast"
	DetectorAccurate = "accurate"
)

// Matcher index kinds.
const (
	IndexLinear = "linear"
	IndexHNSW   = "hnsw"
)

// Ledger backends.
const (
	LedgerMemory   = "memory"
	LedgerPostgres = "postgres"
	LedgerRedis    = "redis"
)

// Gallery stores.
const (
	GalleryFile     = "file"
	GalleryPostgres = "postgres"
)

// Camera kinds.
const (
	CameraDir  = "dir"
	CameraHTTP = "http"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is "text" or "json".
	LogFormat string `koanf:"log_format"`
	// LogDir, when set, also writes a daily log file there.
	LogDir string `koanf:"log_dir"`

	// Addr configures the operational HTTP listen address. Empty disables it.
	Addr string `koanf:"addr"`

	Recognition Recognition `koanf:"recognition"`
	Camera      Camera      `koanf:"camera"`
	Extractor   Extractor   `koanf:"extractor"`
	Ledger      Ledger      `koanf:"ledger"`
	Gallery     Gallery     `koanf:"gallery"`
	Database    Database    `koanf:"database"`
	Redis       Redis       `koanf:"redis"`
	Pipeline    Pipeline    `koanf:"pipeline"`
}

// Recognition holds the matching and dedup knobs.
type Recognition struct {
	// Tolerance is the maximum accepted embedding distance.
	Tolerance float64 `koanf:"tolerance"`
	// FrameReduction downsamples frames by this factor before detection.
	FrameReduction float64 `koanf:"frame_reduction"`
	// CooldownWindow is the minimum gap between two attendance writes per identity.
	CooldownWindow time.Duration `koanf:"cooldown_window"`
	// DetectorModel is "fast" or "accurate".
	DetectorModel string `koanf:"detector_model"`
	// EmbeddingDim is the fixed embedding length produced by the extractor.
	EmbeddingDim int `koanf:"embedding_dim"`
	// Index is "linear" (exact scan) or "hnsw".
	Index string `koanf:"index"`
	// HNSWCandidates is how many neighbours the hnsw index hands to the exact re-rank.
	HNSWCandidates int `koanf:"hnsw_candidates"`
}

// Camera selects and tunes the frame source.
type Camera struct {
	Kind         string        `koanf:"kind"`
	Path         string        `koanf:"path"`
	URL          string        `koanf:"url"`
	Loop         bool          `koanf:"loop"`
	FrameTimeout time.Duration `koanf:"frame_timeout"`
	RetryDelay   time.Duration `koanf:"retry_delay"`
}

// Extractor configures the remote embedding service. Model is the DeepFace
// model; embeddings are scaled to unit length and the default tolerance is
// tuned for "Dlib".
type Extractor struct {
	URL        string        `koanf:"url"`
	Timeout    time.Duration `koanf:"timeout"`
	RetryCount int           `koanf:"retry_count"`
	Model      string        `koanf:"model"`
}

// Ledger selects the attendance store.
type Ledger struct {
	Backend string `koanf:"backend"`
}

// Gallery selects where enrolled embeddings are persisted.
type Gallery struct {
	Store      string `koanf:"store"`
	Path       string `koanf:"path"`
	ArchiveDir string `koanf:"archive_dir"`
}

// Database configures postgres.
type Database struct {
	URL      string `koanf:"url"`
	MaxConns int    `koanf:"max_conns"`
}

// Redis configures the redis ledger.
type Redis struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
}

// Pipeline tunes the capture loop and its output queue.
type Pipeline struct {
	OutputBuffer int           `koanf:"output_buffer"`
	StopTimeout  time.Duration `koanf:"stop_timeout"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		Recognition: Recognition{
			Tolerance:      0.6,
			FrameReduction: 4,
			CooldownWindow: 5 * time.Second,
			DetectorModel:  DetectorFast,
			EmbeddingDim:   128,
			Index:          IndexLinear,
			HNSWCandidates: 8,
		},
		Camera: Camera{
			Kind:         CameraDir,
			Path:         "data/frames",
			FrameTimeout: 2 * time.Second,
			RetryDelay:   100 * time.Millisecond,
		},
		Extractor: Extractor{
			URL:        "http://localhost:5005",
			Timeout:    10 * time.Second,
			RetryCount: 1,
			Model:      "Dlib",
		},
		Ledger: Ledger{Backend: LedgerMemory},
		Gallery: Gallery{
			Store: GalleryFile,
			Path:  "data/gallery.yaml",
		},
		Database: Database{MaxConns: 10},
		Redis:    Redis{Prefix: "presence"},
		Pipeline: Pipeline{
			OutputBuffer: 8,
			StopTimeout:  time.Second,
		},
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	r := c.Recognition
	switch {
	case r.Tolerance <= 0:
		return invalid("recognition.tolerance must be > 0")
	case r.FrameReduction < 1:
		return invalid("recognition.frame_reduction must be >= 1")
	case r.CooldownWindow < 0:
		return invalid("recognition.cooldown_window must not be negative")
	case r.DetectorModel != DetectorFast && r.DetectorModel != DetectorAccurate:
		return invalid("recognition.detector_model must be fast or accurate, got %q", r.DetectorModel)
	case r.EmbeddingDim < 1:
		return invalid("recognition.embedding_dim must be >= 1")
	case r.Index != IndexLinear && r.Index != IndexHNSW:
		return invalid("recognition.index must be linear or hnsw, got %q", r.Index)
	case r.Index == IndexHNSW && r.HNSWCandidates < 1:
		return invalid("recognition.hnsw_candidates must be >= 1")
	}

	switch c.Camera.Kind {
	case CameraDir:
		if c.Camera.Path == "" {
			return invalid("camera.path is required for the dir camera")
		}
	case CameraHTTP:
		if c.Camera.URL == "" {
			return invalid("camera.url is required for the http camera")
		}
	default:
		return invalid("unknown camera.kind %q", c.Camera.Kind)
	}

	switch c.Ledger.Backend {
	case LedgerMemory:
	case LedgerPostgres:
		if c.Database.URL == "" {
			return invalid("database.url is required for the postgres ledger")
		}
	case LedgerRedis:
		if c.Redis.Addr == "" {
			return invalid("redis.addr is required for the redis ledger")
		}
	default:
		return invalid("unknown ledger.backend %q", c.Ledger.Backend)
	}

	switch c.Gallery.Store {
	case GalleryFile:
		if c.Gallery.Path == "" {
			return invalid("gallery.path is required for the file gallery store")
		}
	case GalleryPostgres:
		if c.Database.URL == "" {
			return invalid("database.url is required for the postgres gallery store")
		}
	default:
		return invalid("unknown gallery.store %q", c.Gallery.Store)
	}

	if c.Pipeline.OutputBuffer < 1 {
		return invalid("pipeline.output_buffer must be >= 1")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
