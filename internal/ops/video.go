package ops

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/hpungsan/colorbook/internal/errors"
	"github.com/hpungsan/colorbook/internal/raster"
	"github.com/hpungsan/colorbook/internal/video"
)

// VideoFileExt is the extension of exported videos.
const VideoFileExt = ".mp4"

// ExportVideoInput contains parameters for the ExportVideo operation.
type ExportVideoInput struct {
	Index *int   // default: selected
	Path  string // optional, default: <base>/exports/colorbook-<description>-<timestamp>.mp4
}

// ExportVideoOutput contains the result of the ExportVideo operation.
type ExportVideoOutput struct {
	Path        string  `json:"path"`
	DurationSec float64 `json:"duration_sec"`
}

// ExportVideo renders a history entry's story image, sketch, and outline
// side by side, narrated by the last reading with the ambient track
// underneath.
func ExportVideo(ctx context.Context, s *Studio, input ExportVideoInput) (*ExportVideoOutput, error) {
	rec, _, err := resolve(s, input.Index, "export")
	if err != nil {
		return nil, err
	}
	if len(rec.SketchImage) == 0 {
		return nil, errors.NewInvalidRequest("the entry has no sketch")
	}
	if len(rec.GeneratedImage) == 0 {
		return nil, errors.NewInvalidRequest("the entry has no generated image")
	}
	art, err := LastNarration(ctx, s)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.NewInvalidRequest("no narration yet; read a story before exporting")
		}
		return nil, err
	}
	if _, err := os.Stat(art.Path); err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("narration audio is gone (%s); read the story again", art.Path))
	}
	if s.Encoder == nil {
		return nil, errors.NewResourceUnavailable("video encoder", nil)
	}

	outPath := input.Path
	if outPath == "" {
		outPath = filepath.Join(ExportsDir(s.BaseDir),
			fmt.Sprintf("colorbook-%s-%s%s", FileSlug(rec.RecognizedDescription), time.Now().Format("2006-01-02T150405"), VideoFileExt))
	}
	dirs, err := ExportDirs(s.BaseDir, s.Cfg)
	if err != nil {
		return nil, err
	}
	if outPath, err = ResolvePath(outPath, VideoFileExt, false, dirs); err != nil {
		return nil, err
	}

	sketch, err := raster.DecodeImage(rec.SketchImage)
	if err != nil {
		return nil, errors.NewDecodeFailed("sketch", err)
	}
	generated, err := raster.DecodeImage(rec.GeneratedImage)
	if err != nil {
		return nil, errors.NewDecodeFailed("generated image", err)
	}
	var story image.Image
	if len(rec.StoryImage) > 0 {
		if story, err = raster.DecodeImage(rec.StoryImage); err != nil {
			s.Logger.Warn("story image unreadable, using placeholder", "id", rec.ID, "error", err)
			story = nil
		}
	}

	duration := narrationDuration(ctx, s, art.Path, art.DurationSec, art.Text)
	err = s.Encoder.Encode(ctx, video.EncodeInput{
		Frame:         video.ComposeFrame(story, sketch, generated),
		NarrationPath: art.Path,
		AmbientPath:   s.Cfg.AmbientTrack,
		DurationSec:   duration,
		OutPath:       outPath,
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("video exported", "path", outPath, "duration_sec", duration)
	return &ExportVideoOutput{Path: outPath, DurationSec: duration}, nil
}

// narrationDuration prefers a measured duration, then the one recorded with
// the artifact, then a reading-pace estimate.
func narrationDuration(ctx context.Context, s *Studio, path string, recorded float64, text string) float64 {
	if s.ProbeDuration != nil {
		d, err := s.ProbeDuration(ctx, path)
		if err == nil && d > 0 {
			return d
		}
		s.Logger.Debug("could not measure narration", "path", path, "error", err)
	}
	if recorded > 0 {
		return recorded
	}
	return video.EstimateDuration(text)
}
