package source_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/image/bmp"

	"github.com/okian/presence/internal/adapters/source"
	. "github.com/smartystreets/goconvey/convey"
)

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: uint8(x), B: uint8(y), A: 255})
		}
	}
	return img
}

func writeImages(t *testing.T, dir string) {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(8, 6), nil); err != nil {
		t.Fatal(err)
	}
	must(t, os.WriteFile(filepath.Join(dir, "001.jpg"), buf.Bytes(), 0o600))

	buf.Reset()
	must(t, png.Encode(&buf, testImage(10, 4)))
	must(t, os.WriteFile(filepath.Join(dir, "002.png"), buf.Bytes(), 0o600))

	must(t, os.WriteFile(filepath.Join(dir, "003.jpg"), []byte("not an image"), 0o600))

	buf.Reset()
	must(t, bmp.Encode(&buf, testImage(3, 3)))
	must(t, os.WriteFile(filepath.Join(dir, "004.BMP"), buf.Bytes(), 0o600))

	must(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0o600))
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func TestDirSource(t *testing.T) {
	Convey("Given a directory of frames", t, func() {
		dir := t.TempDir()
		writeImages(t, dir)
		ctx := context.Background()
		fixed := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

		Convey("When read without looping", func() {
			src, err := source.OpenDir(dir, source.WithClock(func() time.Time { return fixed }))
			So(err, ShouldBeNil)
			So(src.Len(), ShouldEqual, 4)

			f1, err1 := src.Next(ctx)
			f2, err2 := src.Next(ctx)
			_, err3 := src.Next(ctx)
			f4, err4 := src.Next(ctx)
			_, err5 := src.Next(ctx)

			Convey("Then images come in name order and the corrupt one is transient", func() {
				So(err1, ShouldBeNil)
				So(f1.Image.Bounds().Dx(), ShouldEqual, 8)
				So(f1.Seq, ShouldEqual, 1)
				So(f1.CapturedAt, ShouldEqual, fixed)
				So(err2, ShouldBeNil)
				So(f2.Image.Bounds().Dx(), ShouldEqual, 10)
				So(errors.Is(err3, source.ErrNoFrame), ShouldBeTrue)
				So(err4, ShouldBeNil)
				So(f4.Image.Bounds().Dx(), ShouldEqual, 3)
				So(f4.Seq, ShouldEqual, 3)
				So(errors.Is(err5, source.ErrSourceClosed), ShouldBeTrue)
			})
		})

		Convey("When read with looping", func() {
			src, err := source.OpenDir(dir, source.WithLoop(true))
			So(err, ShouldBeNil)
			for i := 0; i < 4; i++ {
				_, _ = src.Next(ctx)
			}
			f, err := src.Next(ctx)

			Convey("Then it starts over", func() {
				So(err, ShouldBeNil)
				So(f.Image.Bounds().Dx(), ShouldEqual, 8)
			})
		})

		Convey("When the source is closed", func() {
			src, _ := source.OpenDir(dir)
			So(src.Close(), ShouldBeNil)
			_, err := src.Next(ctx)
			So(errors.Is(err, source.ErrSourceClosed), ShouldBeTrue)
		})
	})

	Convey("Given a missing directory", t, func() {
		_, err := source.DirOpener(filepath.Join(t.TempDir(), "nope"))(context.Background())
		So(err, ShouldNotBeNil)
	})

	Convey("Given a directory without image files", t, func() {
		dir := t.TempDir()
		So(os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600), ShouldBeNil)
		_, err := source.DirOpener(dir, source.WithLoop(true))(context.Background())

		Convey("Then opening fails instead of yielding a source that ends at once", func() {
			So(errors.Is(err, source.ErrNoImages), ShouldBeTrue)
		})
	})
}

func TestReadImage(t *testing.T) {
	Convey("Given image files on disk", t, func() {
		dir := t.TempDir()
		writeImages(t, dir)

		Convey("When a bmp is read", func() {
			img, err := source.ReadImage(filepath.Join(dir, "004.BMP"))

			Convey("Then it decodes", func() {
				So(err, ShouldBeNil)
				So(img.Bounds().Dx(), ShouldEqual, 3)
			})
		})

		Convey("When a corrupt file is read", func() {
			_, err := source.ReadImage(filepath.Join(dir, "003.jpg"))
			So(err, ShouldNotBeNil)
		})

		Convey("When the file is missing", func() {
			_, err := source.ReadImage(filepath.Join(dir, "missing.png"))
			So(errors.Is(err, os.ErrNotExist), ShouldBeTrue)
		})
	})
}

func TestHTTPSource(t *testing.T) {
	Convey("Given a snapshot camera", t, func() {
		var buf bytes.Buffer
		So(jpeg.Encode(&buf, testImage(16, 12), nil), ShouldBeNil)
		snapshot := buf.Bytes()

		var mode atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			switch mode.Load() {
			case 1:
				http.Error(w, "busy", http.StatusServiceUnavailable)
			case 2:
				_, _ = w.Write([]byte("garbage"))
			default:
				w.Header().Set("Content-Type", "image/jpeg")
				_, _ = w.Write(snapshot)
			}
		}))
		defer srv.Close()
		ctx := context.Background()

		Convey("When it serves frames", func() {
			src, err := source.OpenHTTP(ctx, srv.URL, srv.Client())
			So(err, ShouldBeNil)
			f, err := src.Next(ctx)

			Convey("Then each Next fetches a decoded snapshot", func() {
				So(err, ShouldBeNil)
				So(f.Seq, ShouldEqual, 1)
				So(f.Image.Bounds().Dx(), ShouldEqual, 16)
			})

			Convey("And errors and bad bodies are transient", func() {
				mode.Store(1)
				_, err := src.Next(ctx)
				So(errors.Is(err, source.ErrNoFrame), ShouldBeTrue)

				mode.Store(2)
				_, err = src.Next(ctx)
				So(errors.Is(err, source.ErrNoFrame), ShouldBeTrue)
			})

			Convey("And after Close it is closed for good", func() {
				So(src.Close(), ShouldBeNil)
				_, err := src.Next(ctx)
				So(errors.Is(err, source.ErrSourceClosed), ShouldBeTrue)
			})
		})

		Convey("When the camera is down at open", func() {
			mode.Store(1)
			_, err := source.HTTPOpener(srv.URL, srv.Client())(ctx)

			Convey("Then opening fails", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}
