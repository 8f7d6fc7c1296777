package ops

import (
	"context"
	"fmt"

	"github.com/hpungsan/colorbook/internal/errors"
	"github.com/hpungsan/colorbook/internal/history"
	"github.com/hpungsan/colorbook/internal/raster"
)

// FillInput contains parameters for the Fill operation.
type FillInput struct {
	X      int
	Y      int
	Color  string
	Target string // default: coloring
}

// FillOutput contains the result of the Fill operation.
type FillOutput struct {
	Filled    int  `json:"filled"`
	Committed bool `json:"committed"`
}

// Fill flood-fills the region containing (X, Y) on the target canvas.
// Coloring changes are committed to the selected history entry.
func Fill(ctx context.Context, s *Studio, input FillInput) (*FillOutput, error) {
	c, err := raster.ParseColor(input.Color)
	if err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}
	canvas, err := s.canvas(input.Target)
	if err != nil {
		return nil, err
	}
	w, h := canvas.Size()
	if input.X < 0 || input.Y < 0 || input.X >= w || input.Y >= h {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("point (%d,%d) is outside the %dx%d canvas", input.X, input.Y, w, h))
	}

	s.coloringMu.Lock()
	defer s.coloringMu.Unlock()

	ref, hasRef := selectedRef(s)
	var filled int
	buf := canvas.Apply(func(buf *raster.PixelBuffer) {
		filled = raster.FloodFill(buf, input.X, input.Y, c)
	})

	out := &FillOutput{Filled: filled}
	if filled == 0 || canvas != s.Coloring || !hasRef {
		return out, nil
	}
	if err := commitBuffer(ctx, s, ref, buf); err != nil {
		return nil, err
	}
	out.Committed = true
	return out, nil
}

// BrushInput contains parameters for the Brush operation.
type BrushInput struct {
	// Points is one drag gesture; a single point stamps a dot.
	Points []raster.Point
	Color  string
	Radius float64 // default: config brush_radius
	Target string  // default: coloring
}

// BrushOutput contains the result of the Brush operation.
type BrushOutput struct {
	Segments  int  `json:"segments"`
	Committed bool `json:"committed"`
}

// Brush paints a glossy stroke through Points.
func Brush(ctx context.Context, s *Studio, input BrushInput) (*BrushOutput, error) {
	if len(input.Points) == 0 {
		return nil, errors.NewInvalidRequest("at least one point is required")
	}
	c, err := raster.ParseColor(input.Color)
	if err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}
	radius := input.Radius
	if radius == 0 {
		radius = s.Cfg.BrushRadius
	}
	if radius <= 0 {
		return nil, errors.NewInvalidRequest("radius must be positive")
	}
	canvas, err := s.canvas(input.Target)
	if err != nil {
		return nil, err
	}

	s.coloringMu.Lock()
	defer s.coloringMu.Unlock()

	ref, hasRef := selectedRef(s)
	buf := canvas.Apply(func(buf *raster.PixelBuffer) {
		stroke := raster.Stroke{Color: c, Radius: radius}
		stroke.Begin(buf, input.Points[0])
		for _, p := range input.Points[1:] {
			stroke.MoveTo(buf, p)
		}
	})

	out := &BrushOutput{Segments: len(input.Points) - 1}
	if canvas != s.Coloring || !hasRef {
		return out, nil
	}
	if err := commitBuffer(ctx, s, ref, buf); err != nil {
		return nil, err
	}
	out.Committed = true
	return out, nil
}

// LoadCanvasInput contains parameters for the LoadCanvas operation.
type LoadCanvasInput struct {
	Target string // default: coloring
	// Image is painted onto the canvas; nil clears it.
	Image []byte
}

// LoadCanvas replaces a canvas with an image, or clears it.
func LoadCanvas(_ context.Context, s *Studio, input LoadCanvasInput) error {
	canvas, err := s.canvas(input.Target)
	if err != nil {
		return err
	}
	s.coloringMu.Lock()
	defer s.coloringMu.Unlock()

	if len(input.Image) == 0 {
		canvas.Clear()
		return nil
	}
	if err := canvas.LoadImage(input.Image); err != nil {
		return errors.NewDecodeFailed("canvas image", err)
	}
	return nil
}

// CommitInput contains parameters for the Commit operation.
type CommitInput struct {
	Index *int // default: selected
}

// Commit writes the coloring canvas into a history entry's generated image.
func Commit(ctx context.Context, s *Studio, input CommitInput) error {
	s.coloringMu.Lock()
	defer s.coloringMu.Unlock()

	_, ref, err := resolve(s, input.Index, "commit")
	if err != nil {
		return err
	}
	return commitBuffer(ctx, s, ref, s.Coloring.Read())
}

// CanvasImage returns the target canvas as PNG.
func CanvasImage(s *Studio, target string) ([]byte, error) {
	canvas, err := s.canvas(target)
	if err != nil {
		return nil, err
	}
	data, err := canvas.PNG()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return data, nil
}

func selectedRef(s *Studio) (history.Ref, bool) {
	_, ref, ok := s.History.Selected()
	return ref, ok
}

func commitBuffer(ctx context.Context, s *Studio, ref history.Ref, buf *raster.PixelBuffer) error {
	data, err := raster.EncodePNG(buf)
	if err != nil {
		return errors.NewInternal(err)
	}
	return writeRef(ctx, s, ref, history.Patch{GeneratedImage: data})
}
