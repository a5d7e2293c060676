package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/okian/presence/internal/adapters/ledger"
	"github.com/okian/presence/internal/adapters/source"
	"github.com/okian/presence/internal/detect"
	"github.com/okian/presence/internal/domain/gallery"
	"github.com/okian/presence/internal/domain/model"
	"github.com/okian/presence/pkg/logger"
	"github.com/okian/presence/pkg/metrics"
)

// Enrollment results recorded in metrics.
const (
	enrollOK      = "ok"
	enrollNoFace  = "no_face"
	enrollInvalid = "invalid"
	enrollFailed  = "error"
)

const (
	archiveStamp = "20060102_150405"
	nameFile     = "name.txt"
	jpegQuality  = 90
)

// Enroll adds one embedding for identity taken from the single face in img.
// Re-enrolling a known identity appends another embedding. It is safe to call
// while capture runs; the next frame is matched against the new entry.
//
// Enrollments are serialized. When the store cannot be written the entry
// stays in the live gallery and ErrNotPersisted is returned; the next
// successful save writes it out, since every save exports the whole gallery.
func (s *Service) Enroll(ctx context.Context, identity model.Identity, img image.Image) error {
	identity.ID = strings.TrimSpace(identity.ID)
	identity.DisplayName = strings.TrimSpace(identity.DisplayName)
	if !identity.Valid() {
		metrics.RecordEnrollment(enrollInvalid)
		return gallery.ErrInvalidIdentity
	}

	face, err := s.detector.DetectSingle(ctx, img)
	if err != nil {
		if errors.Is(err, detect.ErrNoFaceDetected) {
			metrics.RecordEnrollment(enrollNoFace)
		} else {
			metrics.RecordEnrollment(enrollFailed)
		}
		return fmt.Errorf("enroll %s: %w", identity.ID, err)
	}

	s.enrollMu.Lock()
	defer s.enrollMu.Unlock()

	if err := s.gallery.Add(identity, face.Embedding); err != nil {
		metrics.RecordEnrollment(enrollInvalid)
		return fmt.Errorf("enroll %s: %w", identity.ID, err)
	}

	if reg, ok := s.ledger.(ledger.IdentityRegistrar); ok {
		if err := reg.RegisterIdentity(ctx, identity); err != nil {
			s.logger.Warn(ctx, "identity not registered with ledger", logger.String("identity", identity.ID), logger.Error(err))
		}
	}

	if path, err := s.archive(identity.ID, img); err != nil {
		s.logger.Warn(ctx, "enrollment image not archived", logger.String("identity", identity.ID), logger.Error(err))
	} else if path != "" {
		s.logger.Debug(ctx, "enrollment image archived", logger.String("path", path))
	}

	if err := s.store.Save(ctx, s.gallery.Export()); err != nil {
		metrics.RecordEnrollment(enrollFailed)
		s.logger.Error(ctx, "gallery not persisted, entry kept in memory",
			logger.String("identity", identity.ID), logger.Error(err))
		return fmt.Errorf("enroll %s: %w: %w", identity.ID, ErrNotPersisted, err)
	}

	metrics.RecordEnrollment(enrollOK)
	s.logger.Info(ctx, "identity enrolled",
		logger.String("identity", identity.ID),
		logger.String("name", identity.Name()),
		logger.Int("gallery_size", s.gallery.Len()))
	return nil
}

// EnrollCaptured enrolls identity from the last frame of the running capture.
func (s *Service) EnrollCaptured(ctx context.Context, identity model.Identity) error {
	frame, ok := s.CapturedFrame()
	if !ok {
		return ErrNoCapturedFrame
	}
	return s.Enroll(ctx, identity, frame.Image)
}

// archive writes img as <archive_dir>/<id>/<YYYYMMDD_HHMMSS>.jpg.
func (s *Service) archive(id string, img image.Image) (string, error) {
	root := s.cfg.Gallery.ArchiveDir
	if root == "" {
		return "", nil
	}
	dir := filepath.Join(root, safeName(id))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}
	path := filepath.Join(dir, s.clock().Format(archiveStamp)+".jpg")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		_ = f.Close()
		return "", err
	}
	return path, f.Close()
}

func safeName(id string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	return r.Replace(id)
}

// EnrollDirectory enrolls every image under dir/<identity_id>/. The
// display name comes from an optional name.txt in the identity folder.
// Files that fail are logged and skipped. It returns how many were enrolled.
func (s *Service) EnrollDirectory(ctx context.Context, dir string) (int, error) {
	dirs, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read enrollment dir: %w", err)
	}

	enrolled := 0
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return enrolled, err
		}

		idDir := filepath.Join(dir, d.Name())
		identity := model.Identity{ID: d.Name(), DisplayName: d.Name()}
		if b, err := os.ReadFile(filepath.Join(idDir, nameFile)); err == nil {
			if name := strings.TrimSpace(string(b)); name != "" {
				identity.DisplayName = name
			}
		}

		files, err := os.ReadDir(idDir)
		if err != nil {
			s.logger.Warn(ctx, "skipping identity folder", logger.String("dir", idDir), logger.Error(err))
			continue
		}
		names := make([]string, 0, len(files))
		for _, f := range files {
			if !f.IsDir() && source.IsImageFile(f.Name()) {
				names = append(names, f.Name())
			}
		}
		sort.Strings(names)

		for _, name := range names {
			path := filepath.Join(idDir, name)
			img, err := source.ReadImage(path)
			if err != nil {
				s.logger.Warn(ctx, "skipping unreadable image", logger.String("path", path), logger.Error(err))
				continue
			}
			if err := s.Enroll(ctx, identity, img); err != nil {
				s.logger.Warn(ctx, "skipping image", logger.String("path", path), logger.Error(err))
				continue
			}
			enrolled++
		}
	}

	s.logger.Info(ctx, "directory enrollment finished", logger.String("dir", dir), logger.Int("enrolled", enrolled))
	return enrolled, nil
}
