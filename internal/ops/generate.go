package ops

import (
	"context"

	"github.com/hpungsan/colorbook/internal/camera"
	"github.com/hpungsan/colorbook/internal/errors"
	"github.com/hpungsan/colorbook/internal/history"
	"github.com/hpungsan/colorbook/internal/raster"
	"github.com/hpungsan/colorbook/internal/services"
)

// GenerateInput contains parameters for the Generate operation.
type GenerateInput struct {
	// Sketch replaces the sketch canvas when set (PNG, JPEG, or WebP).
	Sketch []byte
}

// GenerateOutput contains the result of Generate and GenerateFromPhoto.
type GenerateOutput struct {
	Index       int    `json:"index"`
	ID          string `json:"id"`
	Description string `json:"description"`
	Prompt      string `json:"prompt"`
}

// Generate turns the sketch into a coloring outline and adds it to history
// as the new selection.
func Generate(ctx context.Context, s *Studio, input GenerateInput) (*GenerateOutput, error) {
	if len(input.Sketch) > 0 {
		if err := s.Sketch.LoadImage(input.Sketch); err != nil {
			return nil, errors.NewDecodeFailed("sketch", err)
		}
	}
	if raster.IsBlank(s.Sketch) {
		return nil, errors.NewEmptyCanvas()
	}

	sketch, err := s.Sketch.PNG()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	desc, err := s.Describer.RecognizeSketch(ctx, sketch)
	if err != nil {
		return nil, err
	}
	return createFromDescription(ctx, s, sketch, desc)
}

// PhotoInput contains parameters for the GenerateFromPhoto operation.
type PhotoInput struct {
	// Photo is used instead of the camera when set.
	Photo []byte
}

// GenerateFromPhoto captures a camera frame, describes it, and builds an
// outline from the description.
func GenerateFromPhoto(ctx context.Context, s *Studio, input PhotoInput) (*GenerateOutput, error) {
	photo := input.Photo
	if len(photo) == 0 {
		if s.Camera == nil {
			return nil, errors.NewResourceUnavailable("camera", nil)
		}
		var err error
		photo, err = camera.Capture(ctx, s.Camera)
		if err != nil {
			return nil, err
		}
	}

	w, h := s.Sketch.Size()
	buf, err := raster.DecodeToSize(photo, w, h)
	if err != nil {
		return nil, errors.NewDecodeFailed("photo", err)
	}
	sketch, err := raster.EncodePNG(buf)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	desc, err := s.Describer.RecognizePhoto(ctx, photo)
	if err != nil {
		return nil, err
	}
	if err := s.Sketch.Write(buf); err != nil {
		return nil, errors.NewInternal(err)
	}
	return createFromDescription(ctx, s, sketch, desc)
}

// createFromDescription generates the outline for desc, appends the new
// record, selects it, and loads the outline for coloring. Nothing is
// recorded if the image service fails.
func createFromDescription(ctx context.Context, s *Studio, sketch []byte, desc string) (*GenerateOutput, error) {
	prompt := services.OutlinePrompt(desc)
	w, h := s.Coloring.Size()
	img, err := s.Generator.GenerateOutline(ctx, prompt, w, h)
	if err != nil {
		return nil, err
	}
	outline, err := raster.DecodeToSize(img, w, h)
	if err != nil {
		return nil, errors.NewDecodeFailed("generated image", err)
	}
	generated, err := raster.EncodePNG(outline)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	s.coloringMu.Lock()
	defer s.coloringMu.Unlock()

	index, err := s.History.Append(ctx, history.Record{
		SketchImage:           sketch,
		GeneratedImage:        generated,
		RecognizedDescription: desc,
		OriginalPrompt:        prompt,
	})
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if _, err := s.History.Select(ctx, &index); err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := s.Coloring.Write(outline); err != nil {
		return nil, errors.NewInternal(err)
	}

	rec, _ := s.History.Get(index)
	s.Logger.Info("outline generated", "index", index, "id", rec.ID, "description", desc)
	return &GenerateOutput{
		Index:       index,
		ID:          rec.ID,
		Description: desc,
		Prompt:      prompt,
	}, nil
}

// RegenerateInput contains parameters for the Regenerate operation.
type RegenerateInput struct {
	Index *int // default: selected
}

// RegenerateOutput contains the result of the Regenerate operation.
type RegenerateOutput struct {
	Index int    `json:"index"`
	ID    string `json:"id"`
}

// Regenerate asks for a fresh outline for an existing record, discarding
// any coloring on it.
func Regenerate(ctx context.Context, s *Studio, input RegenerateInput) (*RegenerateOutput, error) {
	rec, ref, err := resolve(s, input.Index, "regenerate")
	if err != nil {
		return nil, err
	}
	prompt := rec.OriginalPrompt
	if prompt == "" {
		prompt = services.OutlinePrompt(rec.RecognizedDescription)
	}

	w, h := s.Coloring.Size()
	img, err := s.Generator.GenerateOutline(ctx, prompt, w, h)
	if err != nil {
		return nil, err
	}
	outline, err := raster.DecodeToSize(img, w, h)
	if err != nil {
		return nil, errors.NewDecodeFailed("generated image", err)
	}
	generated, err := raster.EncodePNG(outline)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	s.coloringMu.Lock()
	defer s.coloringMu.Unlock()

	if err := writeRef(ctx, s, ref, history.Patch{GeneratedImage: generated}); err != nil {
		return nil, err
	}
	if isSelected(s, ref) {
		if err := s.Coloring.Write(outline); err != nil {
			return nil, errors.NewInternal(err)
		}
	}
	return &RegenerateOutput{Index: ref.Index, ID: ref.ID}, nil
}
