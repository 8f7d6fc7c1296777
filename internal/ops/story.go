package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/colorbook/internal/errors"
	"github.com/hpungsan/colorbook/internal/history"
	"github.com/hpungsan/colorbook/internal/raster"
	"github.com/hpungsan/colorbook/internal/services"
)

// StoryInput contains parameters for the CreateStory operation.
type StoryInput struct {
	Index *int // default: selected
}

// StoryOutput contains the result of the CreateStory operation.
type StoryOutput struct {
	Index int    `json:"index"`
	ID    string `json:"id"`
	Story string `json:"story"`
}

// CreateStory writes a short story about a history entry and illustrates
// it. Both land in one write, and only if both services succeed.
func CreateStory(ctx context.Context, s *Studio, input StoryInput) (*StoryOutput, error) {
	rec, ref, err := resolve(s, input.Index, "story")
	if err != nil {
		return nil, err
	}
	desc := strings.TrimSpace(rec.RecognizedDescription)
	if desc == "" {
		return nil, errors.NewInvalidRequest("this entry has no description to write a story about")
	}

	story, err := s.Describer.WriteStory(ctx, desc)
	if err != nil {
		return nil, err
	}

	w, h := s.Coloring.Size()
	img, err := s.Generator.GenerateOutline(ctx, services.StoryImagePrompt(desc), w, h)
	if err != nil {
		return nil, err
	}
	illustration, err := raster.DecodeToSize(img, w, h)
	if err != nil {
		return nil, errors.NewDecodeFailed("story image", err)
	}
	storyImage, err := raster.EncodePNG(illustration)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	if err := writeRef(ctx, s, ref, history.Patch{StoryText: &story, StoryImage: storyImage}); err != nil {
		return nil, err
	}
	s.Logger.Info("story created", "index", ref.Index, "id", ref.ID)
	return &StoryOutput{Index: ref.Index, ID: ref.ID, Story: story}, nil
}
