// Package detect turns frames into faces with embeddings by driving an Extractor.
package detect

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/okian/presence/internal/domain/model"
	"github.com/okian/presence/pkg/logger"
	"github.com/okian/presence/pkg/metrics"
)

// Region is a face area located by an Extractor, in the coordinates of the
// image it was found on. Image holds the cropped pixels. Hint carries an
// embedding the extractor already computed while locating the face.
type Region struct {
	Box   image.Rectangle
	Image image.Image
	Hint  model.Embedding
}

// Extractor is the external face detection and embedding service.
// Calls may be slow and are made synchronously.
type Extractor interface {
	DetectFaces(ctx context.Context, img image.Image) ([]Region, error)
	Extract(ctx context.Context, region Region) ([]model.Embedding, error)
}

// Detector downsamples frames, calls the Extractor and maps boxes back to
// original frame coordinates.
type Detector struct {
	ex        Extractor
	reduction float64
	log       logger.Logger
}

// New creates a Detector over ex.
func New(ex Extractor, opts ...Option) *Detector {
	d := &Detector{ex: ex, reduction: 1}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = logger.Get().Named("detector")
	}
	return d
}

// Detect returns every face in frame with its box in original coordinates.
// Zero faces is an empty result, not an error.
func (d *Detector) Detect(ctx context.Context, frame model.Frame) ([]model.Face, error) {
	if frame.Image == nil {
		return nil, ErrNoImage
	}
	start := time.Now()
	defer func() {
		metrics.RecordDetectLatency(float64(time.Since(start).Milliseconds()))
	}()

	small := Downscale(frame.Image, d.reduction)
	regions, err := d.ex.DetectFaces(ctx, small)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	faces := make([]model.Face, 0, len(regions))
	for i := range regions {
		embs, err := d.ex.Extract(ctx, regions[i])
		if err != nil {
			return nil, fmt.Errorf("extract region %d: %w", i, err)
		}
		if len(embs) == 0 {
			d.log.Debug(ctx, "region produced no embedding", logger.Uint64("seq", frame.Seq), logger.Int("region", i))
			continue
		}
		box := Rescale(regions[i].Box, small.Bounds(), frame.Image.Bounds())
		if box.Empty() {
			continue
		}
		faces = append(faces, model.Face{Box: box, Embedding: embs[0]})
	}

	if len(faces) > 1 {
		d.log.Info(ctx, "multiple faces detected", logger.Uint64("seq", frame.Seq), logger.Int("faces", len(faces)))
	}
	metrics.RecordFacesDetected(len(faces))
	return faces, nil
}

// DetectSingle returns the one face to enroll from img. When several faces
// are present the largest box wins.
func (d *Detector) DetectSingle(ctx context.Context, img image.Image) (model.Face, error) {
	faces, err := d.Detect(ctx, model.Frame{CapturedAt: time.Now(), Image: img})
	if err != nil {
		return model.Face{}, err
	}
	if len(faces) == 0 {
		return model.Face{}, ErrNoFaceDetected
	}
	best := 0
	for i := 1; i < len(faces); i++ {
		if area(faces[i].Box) > area(faces[best].Box) {
			best = i
		}
	}
	if len(faces) > 1 {
		d.log.Info(ctx, "enrollment image has several faces, using the largest", logger.Int("faces", len(faces)))
	}
	return faces[best], nil
}

func area(r image.Rectangle) int {
	return r.Dx() * r.Dy()
}
