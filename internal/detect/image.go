package detect

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// Downscale shrinks img by factor with bilinear sampling. The result has its
// origin at (0,0). A factor <= 1 returns img unchanged.
func Downscale(img image.Image, factor float64) image.Image {
	if factor <= 1 {
		return img
	}
	b := img.Bounds()
	w := max(1, int(math.Round(float64(b.Dx())/factor)))
	h := max(1, int(math.Round(float64(b.Dy())/factor)))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Rescale maps a box found on scaled back onto original, using the exact
// per-axis size ratio, and clamps it to original's bounds.
func Rescale(box image.Rectangle, scaled, original image.Rectangle) image.Rectangle {
	if scaled.Dx() == 0 || scaled.Dy() == 0 {
		return image.Rectangle{}
	}
	sx := float64(original.Dx()) / float64(scaled.Dx())
	sy := float64(original.Dy()) / float64(scaled.Dy())
	r := image.Rect(
		original.Min.X+int(math.Floor(float64(box.Min.X-scaled.Min.X)*sx)),
		original.Min.Y+int(math.Floor(float64(box.Min.Y-scaled.Min.Y)*sy)),
		original.Min.X+int(math.Ceil(float64(box.Max.X-scaled.Min.X)*sx)),
		original.Min.Y+int(math.Ceil(float64(box.Max.Y-scaled.Min.Y)*sy)),
	)
	return r.Intersect(original)
}

// Crop returns the part of img inside r. The result may share pixels with img.
func Crop(img image.Image, r image.Rectangle) image.Image {
	r = r.Intersect(img.Bounds())
	if s, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return s.SubImage(r)
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}
