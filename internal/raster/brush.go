package raster

import "math"

// Point is a sub-pixel position on a surface.
type Point struct {
	X, Y float64
}

// StrokeSegment paints a round-capped segment from a to b. Coverage falls
// off linearly from fully opaque c on the centerline to transparent at
// radius, and is composited source-over onto buf.
func StrokeSegment(buf *PixelBuffer, a, b Point, c Color, radius float64) {
	if radius <= 0 || c.A == 0 {
		return
	}

	minX := int(math.Floor(math.Min(a.X, b.X) - radius))
	maxX := int(math.Ceil(math.Max(a.X, b.X) + radius))
	minY := int(math.Floor(math.Min(a.Y, b.Y) - radius))
	maxY := int(math.Ceil(math.Max(a.Y, b.Y) + radius))
	minX = max(minX, 0)
	minY = max(minY, 0)
	maxX = min(maxX, buf.Width-1)
	maxY = min(maxY, buf.Height-1)

	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			d := distToSegment(Point{X: float64(x) + 0.5, Y: float64(y) + 0.5}, a, b)
			if d >= radius {
				continue
			}
			blendOver(buf, x, y, c, 1-d/radius)
		}
	}
}

// StampDot paints the brush gradient as a disc, so a tap without a drag
// still leaves a mark.
func StampDot(buf *PixelBuffer, at Point, c Color, radius float64) {
	StrokeSegment(buf, at, at, c, radius)
}

// Stroke tracks one pointer-drag gesture.
type Stroke struct {
	Color  Color
	Radius float64

	last    Point
	started bool
}

// Begin stamps the touch-down point.
func (s *Stroke) Begin(buf *PixelBuffer, at Point) {
	StampDot(buf, at, s.Color, s.Radius)
	s.last = at
	s.started = true
}

// MoveTo extends the stroke to p. Calling MoveTo before Begin begins at p.
func (s *Stroke) MoveTo(buf *PixelBuffer, p Point) {
	if !s.started {
		s.Begin(buf, p)
		return
	}
	StrokeSegment(buf, s.last, p, s.Color, s.Radius)
	s.last = p
}

// distToSegment returns the distance from p to the segment ab.
func distToSegment(p, a, b Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / lenSq
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(p.X-(a.X+t*dx), p.Y-(a.Y+t*dy))
}

// blendOver composites c at the given coverage over the pixel at (x, y).
func blendOver(buf *PixelBuffer, x, y int, c Color, coverage float64) {
	i := buf.offset(x, y)
	sa := float64(c.A) / 255 * coverage
	da := float64(buf.Pix[i+3]) / 255
	oa := sa + da*(1-sa)
	if oa <= 0 {
		return
	}
	mix := func(s uint8, d byte) byte {
		v := (float64(s)*sa + float64(d)*da*(1-sa)) / oa
		return byte(math.Round(math.Min(255, math.Max(0, v))))
	}
	buf.Pix[i+0] = mix(c.R, buf.Pix[i+0])
	buf.Pix[i+1] = mix(c.G, buf.Pix[i+1])
	buf.Pix[i+2] = mix(c.B, buf.Pix[i+2])
	buf.Pix[i+3] = byte(math.Round(oa * 255))
}
