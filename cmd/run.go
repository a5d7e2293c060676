package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/presence/internal/adapters/http/api"
	"github.com/okian/presence/internal/adapters/http/swagger"
	service "github.com/okian/presence/internal/app"
	"github.com/okian/presence/internal/pipeline"
	"github.com/okian/presence/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func newRunCmd(c *cli) *cobra.Command {
	var snapshot string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Capture frames and mark attendance until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd.Context(), cmd.OutOrStdout(), snapshot)
		},
	}
	cmd.Flags().StringVar(&snapshot, "snapshot", "", "write the latest annotated frame to this JPEG file")
	return cmd
}

func (c *cli) run(parent context.Context, out io.Writer, snapshot string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logger.Get().Named("run")

	svc, res, err := service.Build(ctx, *c.cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Close(); err != nil {
			log.Warn(ctx, "closing connections failed", logger.Error(err))
		}
	}()

	if err := svc.Start(ctx); err != nil {
		return err
	}

	go startSystemMetricsUpdater(ctx)

	var srv *http.Server
	if c.cfg.Addr != "" {
		srv = serveHTTP(ctx, c.cfg.Addr, svc)
	}

	consume(ctx, svc.Messages(), out, snapshot)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(ctx, "server shutdown failed", logger.Error(err))
		}
	}
	if err := svc.Close(shutdownCtx); err != nil {
		return fmt.Errorf("stop capture: %w", err)
	}
	log.Info(ctx, "stopped")
	return nil
}

// consume plays the UI role: it is the only reader of pipeline messages.
// It returns when ctx is done or capture ends on its own.
func consume(ctx context.Context, msgs <-chan pipeline.Message, out io.Writer, snapshot string) {
	log := logger.Get().Named("ui")
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-msgs:
			if !ok {
				return
			}
			switch m := m.(type) {
			case pipeline.FrameReady:
				if len(m.Recognized) > 0 {
					log.Debug(ctx, "recognized", logger.Uint64("seq", m.Seq), logger.String("names", strings.Join(m.Recognized, ", ")))
				}
				if snapshot != "" && m.Annotated != nil {
					if err := writeSnapshot(snapshot, m.Annotated); err != nil {
						log.Warn(ctx, "snapshot not written", logger.Error(err))
					}
				}
			case pipeline.AttendanceMarked:
				fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", m.At.Format(time.DateTime), m.IdentityID, m.DisplayName, m.Outcome)
			case pipeline.FrameError:
				log.Debug(ctx, "frame error", logger.String("reason", m.Reason), logger.Error(m.Err))
			case pipeline.CaptureStopped:
				log.Info(ctx, "capture ended", logger.String("reason", m.Reason))
				if m.Reason != pipeline.ReasonStopped {
					return
				}
			case pipeline.DisplayCleared:
				if snapshot != "" {
					if err := os.Remove(snapshot); err != nil && !errors.Is(err, os.ErrNotExist) {
						log.Warn(ctx, "snapshot not cleared", logger.Error(err))
					}
				}
			}
		}
	}
}

// writeSnapshot replaces path with img encoded as JPEG.
func writeSnapshot(path string, img image.Image) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*.jpg")
	if err != nil {
		return err
	}
	if err := jpeg.Encode(tmp, img, &jpeg.Options{Quality: 85}); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func serveHTTP(ctx context.Context, addr string, svc *service.Service) *http.Server {
	log := logger.Get().Named("http")

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc).Register(ctx, mux)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
		}
	}()
	return srv
}
