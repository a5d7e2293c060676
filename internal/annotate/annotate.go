// Package annotate renders detections onto a copy of a frame.
package annotate

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/okian/presence/internal/domain/model"
)

// Colors used for boxes and labels.
var (
	KnownColor   = color.RGBA{G: 255, A: 255}
	UnknownColor = color.RGBA{R: 255, A: 255}
	TextColor    = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// UnknownLabel is drawn under faces that matched no identity.
const UnknownLabel = "Unknown"

const (
	thickness = 2
	barHeight = 18
	padding   = 4
)

// Render draws every detection onto a copy of src and returns it.
// Known faces are boxed in KnownColor with their display name; unknown
// faces in UnknownColor. A face count is written in the top-left corner.
func Render(src image.Image, dets []model.Detection) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, src, b.Min, draw.Src)

	for i := range dets {
		c, label := UnknownColor, UnknownLabel
		if dets[i].Known() {
			c, label = KnownColor, dets[i].Identity.Name()
		}
		box := dets[i].Box.Intersect(b)
		if box.Empty() {
			continue
		}
		outline(dst, box, c)
		labelBar(dst, box, c, label)
	}

	text(dst, image.Pt(b.Min.X+padding, b.Min.Y+padding+basicfont.Face7x13.Ascent), fmt.Sprintf("Faces Detected: %d", len(dets)), KnownColor)
	return dst
}

func outline(dst *image.RGBA, r image.Rectangle, c color.Color) {
	u := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+thickness),
		image.Rect(r.Min.X, r.Max.Y-thickness, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+thickness, r.Max.Y),
		image.Rect(r.Max.X-thickness, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(r), u, image.Point{}, draw.Src)
	}
}

// labelBar fills a strip along the bottom of the box and writes label in it.
func labelBar(dst *image.RGBA, box image.Rectangle, c color.Color, label string) {
	bar := image.Rect(box.Min.X, box.Max.Y-barHeight, box.Max.X, box.Max.Y)
	if bar.Min.Y < box.Min.Y {
		bar.Min.Y = box.Min.Y
	}
	draw.Draw(dst, bar, image.NewUniform(c), image.Point{}, draw.Src)
	text(dst, image.Pt(bar.Min.X+padding, bar.Max.Y-padding), label, TextColor)
}

func text(dst *image.RGBA, at image.Point, s string, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(at.X, at.Y),
	}
	d.DrawString(s)
}
