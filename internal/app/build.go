package service

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/okian/presence/internal/adapters/extractor/deepface"
	"github.com/okian/presence/internal/adapters/gallerystore"
	"github.com/okian/presence/internal/adapters/ledger"
	"github.com/okian/presence/internal/adapters/postgres"
	"github.com/okian/presence/internal/adapters/source"
	"github.com/okian/presence/internal/config"
	"github.com/okian/presence/internal/domain/matching"
	"github.com/okian/presence/pkg/logger"
)

// Resources holds the connections opened by Build.
type Resources struct {
	pool  *pgxpool.Pool
	redis redis.UniversalClient
}

// Close releases every connection.
func (r *Resources) Close() error {
	if r == nil {
		return nil
	}
	if r.pool != nil {
		r.pool.Close()
	}
	if r.redis != nil {
		return r.redis.Close()
	}
	return nil
}

// Build wires cfg to concrete adapters and returns the Service together with
// the connections the caller must close.
func Build(ctx context.Context, cfg config.Config, opts ...Option) (*Service, *Resources, error) {
	log := logger.Get().Named("build")
	res := &Resources{}

	needPool := cfg.Ledger.Backend == config.LedgerPostgres || cfg.Gallery.Store == config.GalleryPostgres
	if needPool {
		pool, err := postgres.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			return nil, nil, err
		}
		res.pool = pool
		log.Info(ctx, "connected to postgres", logger.Int("max_conns", cfg.Database.MaxConns))
	}

	var led ledger.Ledger
	switch cfg.Ledger.Backend {
	case config.LedgerPostgres:
		led = ledger.NewPostgres(res.pool)
	case config.LedgerRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			_ = res.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		res.redis = client
		led = ledger.NewRedis(client, cfg.Redis.Prefix)
	default:
		led = ledger.NewMemory()
	}

	var store gallerystore.Store
	switch cfg.Gallery.Store {
	case config.GalleryPostgres:
		store = gallerystore.NewPostgres(res.pool)
	default:
		store = gallerystore.NewFile(cfg.Gallery.Path)
	}

	ex := deepface.NewClient(cfg.Extractor.URL, cfg.Extractor.Timeout,
		deepface.WithModel(cfg.Extractor.Model),
		deepface.WithDetectorBackend(DetectorBackend(cfg.Recognition.DetectorModel)),
		deepface.WithRetryCount(cfg.Extractor.RetryCount),
	)

	if cfg.Recognition.Index == config.IndexHNSW {
		opts = append([]Option{WithIndex(matching.NewHNSWIndex(cfg.Recognition.HNSWCandidates))}, opts...)
	}

	svc, err := New(ctx, cfg, Deps{
		Opener:    Opener(cfg.Camera),
		Extractor: ex,
		Ledger:    led,
		Store:     store,
	}, opts...)
	if err != nil {
		_ = res.Close()
		return nil, nil, err
	}
	log.Info(ctx, "service ready",
		logger.String("ledger", cfg.Ledger.Backend),
		logger.String("gallery_store", cfg.Gallery.Store),
		logger.String("index", cfg.Recognition.Index),
		logger.String("detector", cfg.Recognition.DetectorModel))
	return svc, res, nil
}

// DetectorBackend maps a configured detector model to a DeepFace backend.
func DetectorBackend(detectorModel string) string {
	if detectorModel == config.DetectorAccurate {
		return deepface.BackendRetinaFace
	}
	return deepface.BackendOpenCV
}

// Opener returns the frame source opener for the configured camera.
func Opener(cam config.Camera) source.Opener {
	switch cam.Kind {
	case config.CameraHTTP:
		return source.HTTPOpener(cam.URL, &http.Client{Timeout: cam.FrameTimeout})
	default:
		return source.DirOpener(cam.Path, source.WithLoop(cam.Loop))
	}
}
