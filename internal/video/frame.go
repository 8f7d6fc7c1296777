// Package video composes the export frame and encodes it with the story
// narration into a shareable video.
package video

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Frame dimensions.
const (
	FrameWidth  = 1280
	FrameHeight = 720
)

const (
	paneMargin  = 16
	paneBorder  = 4
	panePadding = 12
)

var (
	backgroundColor  = color.RGBA{0xf4, 0xf1, 0xea, 0xff}
	paneColor        = color.RGBA{0xff, 0xff, 0xff, 0xff}
	borderColor      = color.RGBA{0x33, 0x33, 0x33, 0xff}
	placeholderColor = color.RGBA{0x80, 0x80, 0x80, 0xff}
)

// Pane labels drawn when an image is missing.
const (
	StoryPlaceholder     = "No story image"
	SketchPlaceholder    = "No sketch"
	GeneratedPlaceholder = "No coloring"
)

// ComposeFrame lays out the story, sketch, and colored outline left to right
// in three equal bordered panes. Each image is scaled to fit its pane
// keeping its aspect ratio and centered. A nil image gets a placeholder label.
func ComposeFrame(story, sketch, generated image.Image) *image.RGBA {
	frame := image.NewRGBA(image.Rect(0, 0, FrameWidth, FrameHeight))
	xdraw.Draw(frame, frame.Bounds(), image.NewUniform(backgroundColor), image.Point{}, xdraw.Src)

	panes := []struct {
		img   image.Image
		label string
	}{
		{story, StoryPlaceholder},
		{sketch, SketchPlaceholder},
		{generated, GeneratedPlaceholder},
	}
	for i, p := range panes {
		drawPane(frame, paneRect(i, len(panes)), p.img, p.label)
	}
	return frame
}

// paneRect returns the outer rectangle of pane i of n, including its border.
func paneRect(i, n int) image.Rectangle {
	x0 := FrameWidth * i / n
	x1 := FrameWidth * (i + 1) / n
	return image.Rect(x0+paneMargin, paneMargin, x1-paneMargin, FrameHeight-paneMargin)
}

func drawPane(dst *image.RGBA, outer image.Rectangle, img image.Image, label string) {
	xdraw.Draw(dst, outer, image.NewUniform(borderColor), image.Point{}, xdraw.Src)
	inner := outer.Inset(paneBorder)
	xdraw.Draw(dst, inner, image.NewUniform(paneColor), image.Point{}, xdraw.Src)

	content := inner.Inset(panePadding)
	if img == nil || img.Bounds().Empty() {
		drawLabel(dst, content, label)
		return
	}
	target := fitRect(img.Bounds().Size(), content)
	xdraw.CatmullRom.Scale(dst, target, img, img.Bounds(), xdraw.Over, nil)
}

// fitRect returns the largest rectangle with the aspect ratio of size that
// fits in box, centered.
func fitRect(size image.Point, box image.Rectangle) image.Rectangle {
	bw, bh := box.Dx(), box.Dy()
	if size.X <= 0 || size.Y <= 0 || bw <= 0 || bh <= 0 {
		return image.Rectangle{}
	}
	w, h := bw, size.Y*bw/size.X
	if h > bh {
		w, h = size.X*bh/size.Y, bh
	}
	x0 := box.Min.X + (bw-w)/2
	y0 := box.Min.Y + (bh-h)/2
	return image.Rect(x0, y0, x0+w, y0+h)
}

func drawLabel(dst *image.RGBA, box image.Rectangle, label string) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(placeholderColor),
		Face: basicfont.Face7x13,
	}
	width := d.MeasureString(label).Ceil()
	metrics := basicfont.Face7x13.Metrics()
	height := (metrics.Ascent + metrics.Descent).Ceil()

	x := box.Min.X + (box.Dx()-width)/2
	y := box.Min.Y + (box.Dy()-height)/2 + metrics.Ascent.Ceil()
	d.Dot = fixed.P(x, y)
	d.DrawString(label)
}
