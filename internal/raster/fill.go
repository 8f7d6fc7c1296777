package raster

import "image"

// FloodFill recolors the 4-connected region of pixels that exactly match the
// color at (x, y), and returns how many pixels changed.
//
// The walk uses an explicit stack so large regions cannot exhaust the call
// stack. A seed outside the buffer, or a seed already at fill, is a no-op.
func FloodFill(buf *PixelBuffer, x, y int, fill Color) int {
	if !buf.In(x, y) {
		return 0
	}
	target := buf.At(x, y)
	if target == fill {
		return 0
	}

	// Never reached by a correct fill; guards against malformed buffers.
	limit := buf.Width * buf.Height * 4

	changed := 0
	stack := []image.Point{{X: x, Y: y}}
	for len(stack) > 0 && changed < limit {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !buf.In(p.X, p.Y) || buf.At(p.X, p.Y) != target {
			continue
		}
		buf.Set(p.X, p.Y, fill)
		changed++

		stack = append(stack,
			image.Point{X: p.X + 1, Y: p.Y},
			image.Point{X: p.X - 1, Y: p.Y},
			image.Point{X: p.X, Y: p.Y + 1},
			image.Point{X: p.X, Y: p.Y - 1},
		)
	}
	return changed
}
