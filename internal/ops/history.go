package ops

import (
	"context"
	"fmt"

	"github.com/hpungsan/colorbook/internal/errors"
	"github.com/hpungsan/colorbook/internal/history"
	"github.com/hpungsan/colorbook/internal/raster"
)

// HistorySummary is a history entry without its images.
type HistorySummary struct {
	Index       int    `json:"index"`
	ID          string `json:"id"`
	Description string `json:"description"`
	HasStory    bool   `json:"has_story"`
	HasImage    bool   `json:"has_story_image"`
	Selected    bool   `json:"selected"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

// ListHistoryOutput contains the result of the ListHistory operation.
type ListHistoryOutput struct {
	Items    []HistorySummary `json:"items"`
	Selected *int             `json:"selected"`
	Capacity int              `json:"capacity"`
}

// ListHistory summarizes the ring, oldest first.
func ListHistory(s *Studio) *ListHistoryOutput {
	records := s.History.Records()
	sel := s.History.SelectedIndex()
	items := make([]HistorySummary, len(records))
	for i, rec := range records {
		items[i] = HistorySummary{
			Index:       i,
			ID:          rec.ID,
			Description: rec.RecognizedDescription,
			HasStory:    rec.StoryText != "",
			HasImage:    len(rec.StoryImage) > 0,
			Selected:    sel != nil && *sel == i,
			CreatedAt:   rec.CreatedAt,
			UpdatedAt:   rec.UpdatedAt,
		}
	}
	return &ListHistoryOutput{Items: items, Selected: sel, Capacity: history.Capacity}
}

// ShowHistory returns one entry in full. A nil index means the selection.
func ShowHistory(s *Studio, index *int) (*history.Record, error) {
	rec, _, err := resolve(s, index, "show")
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Image kinds stored on a history entry.
const (
	ImageSketch    = "sketch"
	ImageGenerated = "generated"
	ImageStory     = "story"
)

// RecordImage returns one of an entry's images.
func RecordImage(s *Studio, index *int, kind string) ([]byte, error) {
	rec, _, err := resolve(s, index, "image")
	if err != nil {
		return nil, err
	}
	var data []byte
	switch kind {
	case ImageSketch:
		data = rec.SketchImage
	case ImageGenerated, "":
		data = rec.GeneratedImage
	case ImageStory:
		data = rec.StoryImage
	default:
		return nil, errors.NewInvalidRequest(fmt.Sprintf("image must be one of: %s, %s, %s", ImageSketch, ImageGenerated, ImageStory))
	}
	if len(data) == 0 {
		return nil, errors.NewNotFound(kind + " image")
	}
	return data, nil
}

// SelectHistory selects an entry and loads its images onto the canvases.
// A nil index clears the selection and leaves the canvases alone. The
// images are decoded before the selection moves, so a bad image changes
// nothing.
func SelectHistory(ctx context.Context, s *Studio, index *int) error {
	s.coloringMu.Lock()
	defer s.coloringMu.Unlock()
	return selectLocked(ctx, s, index)
}

// selectLocked is SelectHistory with s.coloringMu held.
func selectLocked(ctx context.Context, s *Studio, index *int) error {
	if index == nil {
		if _, err := s.History.Select(ctx, nil); err != nil {
			return errors.NewInternal(err)
		}
		return nil
	}

	rec, ok := s.History.Get(*index)
	if !ok {
		return errors.NewNotFound(fmt.Sprintf("history entry %d", *index))
	}
	images, err := decodeRecord(s, rec)
	if err != nil {
		return err
	}

	ok, selErr := s.History.Select(ctx, index)
	if !ok {
		return errors.NewNotFound(fmt.Sprintf("history entry %d", *index))
	}
	// A failed persist still moved the in-memory selection.
	if err := images.paint(s); err != nil {
		return err
	}
	if selErr != nil {
		return errors.NewInternal(selErr)
	}
	return nil
}

// recordImages are a record's images decoded to canvas size.
type recordImages struct {
	coloring *raster.PixelBuffer
	sketch   *raster.PixelBuffer
}

func decodeRecord(s *Studio, rec history.Record) (*recordImages, error) {
	w, h := s.Coloring.Size()
	coloring, err := raster.DecodeToSize(rec.GeneratedImage, w, h)
	if err != nil {
		return nil, errors.NewDecodeFailed("generated image", err)
	}
	sw, sh := s.Sketch.Size()
	sketch := raster.NewPixelBuffer(sw, sh)
	if len(rec.SketchImage) > 0 {
		if sketch, err = raster.DecodeToSize(rec.SketchImage, sw, sh); err != nil {
			return nil, errors.NewDecodeFailed("sketch", err)
		}
	}
	return &recordImages{coloring: coloring, sketch: sketch}, nil
}

func (im *recordImages) paint(s *Studio) error {
	if err := s.Coloring.Write(im.coloring); err != nil {
		return errors.NewInternal(err)
	}
	if err := s.Sketch.Write(im.sketch); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// RemoveHistory deletes an entry. The selection follows its record.
func RemoveHistory(ctx context.Context, s *Studio, index int) error {
	s.coloringMu.Lock()
	defer s.coloringMu.Unlock()

	ok, err := s.History.Remove(ctx, index)
	if err != nil {
		return errors.NewInternal(err)
	}
	if !ok {
		return errors.NewNotFound(fmt.Sprintf("history entry %d", index))
	}
	return nil
}

// ClearHistory empties the ring and removes its durable copy.
func ClearHistory(ctx context.Context, s *Studio) error {
	s.coloringMu.Lock()
	defer s.coloringMu.Unlock()

	if err := s.History.Clear(ctx); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// RestoreCanvases loads the persisted selection, if any, onto the canvases.
// Called once at startup.
func RestoreCanvases(ctx context.Context, s *Studio) error {
	sel := s.History.SelectedIndex()
	if sel == nil {
		return nil
	}
	return SelectHistory(ctx, s, sel)
}
