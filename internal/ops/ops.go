package ops

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hpungsan/colorbook/internal/camera"
	"github.com/hpungsan/colorbook/internal/config"
	"github.com/hpungsan/colorbook/internal/errors"
	"github.com/hpungsan/colorbook/internal/history"
	"github.com/hpungsan/colorbook/internal/narration"
	"github.com/hpungsan/colorbook/internal/raster"
	"github.com/hpungsan/colorbook/internal/services"
	"github.com/hpungsan/colorbook/internal/video"
)

// LastNarrationKey is the durable key holding the most recent narration artifact.
const LastNarrationKey = "narration.last"

// Canvas targets.
const (
	TargetColoring = "coloring"
	TargetSketch   = "sketch"
)

// Narrator reads stories aloud.
type Narrator interface {
	Read(ctx context.Context, text string) (string, error)
	Cancel()
	Snapshot() narration.Snapshot
	Wait(ctx context.Context) error
}

// Studio bundles the state and collaborators every operation runs against.
type Studio struct {
	Cfg     *config.Config
	BaseDir string
	Logger  *slog.Logger

	KV       history.KV
	History  *history.Ring
	Sketch   *raster.Canvas
	Coloring *raster.Canvas

	Describer services.Describer
	Generator services.ImageGenerator
	Narrator  Narrator
	Encoder   video.Encoder
	Camera    camera.Device

	// ProbeDuration measures an audio file; nil falls back to the artifact's own duration.
	ProbeDuration func(ctx context.Context, path string) (float64, error)

	// coloringMu keeps the coloring canvas and the selected record in step:
	// held across a paint and its commit, and across anything that moves
	// the selection and reloads the canvases.
	coloringMu sync.Mutex
}

// NewStudio creates a Studio with blank canvases sized from cfg.
func NewStudio(cfg *config.Config, baseDir string, kv history.KV, ring *history.Ring, logger *slog.Logger) *Studio {
	if logger == nil {
		logger = slog.Default()
	}
	return &Studio{
		Cfg:      cfg,
		BaseDir:  baseDir,
		Logger:   logger,
		KV:       kv,
		History:  ring,
		Sketch:   raster.NewCanvas(cfg.CanvasWidth, cfg.CanvasHeight),
		Coloring: raster.NewCanvas(cfg.CanvasWidth, cfg.CanvasHeight),
	}
}

// canvas returns the canvas named by target, defaulting to coloring.
func (s *Studio) canvas(target string) (*raster.Canvas, error) {
	switch strings.ToLower(strings.TrimSpace(target)) {
	case "", TargetColoring:
		return s.Coloring, nil
	case TargetSketch:
		return s.Sketch, nil
	default:
		return nil, errors.NewInvalidRequest(fmt.Sprintf("target must be one of: %s, %s", TargetColoring, TargetSketch))
	}
}

// resolve finds the record an operation acts on: index when given,
// otherwise the current selection. The returned Ref pins the record for
// writes that land after slow service calls.
func resolve(s *Studio, index *int, op string) (history.Record, history.Ref, error) {
	if index == nil {
		rec, ref, ok := s.History.Selected()
		if !ok {
			return history.Record{}, history.Ref{}, errors.NewNoSelection(op)
		}
		return rec, ref, nil
	}
	rec, ok := s.History.Get(*index)
	if !ok {
		return history.Record{}, history.Ref{}, errors.NewNotFound(fmt.Sprintf("history entry %d", *index))
	}
	return rec, history.Ref{Index: *index, ID: rec.ID}, nil
}

// writeRef applies patch through ref and reports a conflict when the record
// moved or was evicted while the request was in flight.
func writeRef(ctx context.Context, s *Studio, ref history.Ref, patch history.Patch) error {
	ok, err := s.History.UpdateRef(ctx, ref, patch)
	if err != nil {
		return errors.NewInternal(err)
	}
	if !ok {
		return errors.NewConflict("the history entry changed while the request was running; try again")
	}
	return nil
}

// isSelected reports whether ref is the current selection.
func isSelected(s *Studio, ref history.Ref) bool {
	_, sel, ok := s.History.Selected()
	return ok && sel == ref
}

// RecordNarration saves art as the last narration so it can be exported later.
func RecordNarration(ctx context.Context, s *Studio, art narration.Artifact) error {
	data, err := json.Marshal(art)
	if err != nil {
		return errors.NewInternal(err)
	}
	if err := s.KV.Put(ctx, LastNarrationKey, data); err != nil {
		s.Logger.Error("failed to save narration", "path", art.Path, "error", err)
		return err
	}
	pruneNarrations(s, art.Path)
	return nil
}

// PruneNarrations deletes narration audio left by earlier readings,
// keeping only the file the last narration points at.
func PruneNarrations(ctx context.Context, s *Studio) (int, error) {
	keep := ""
	art, err := LastNarration(ctx, s)
	switch {
	case err == nil:
		keep = art.Path
	case !errors.Is(err, errors.ErrNotFound):
		return 0, err
	}
	return pruneNarrations(s, keep), nil
}

func pruneNarrations(s *Studio, keep string) int {
	matches, err := filepath.Glob(filepath.Join(AudioDir(s.BaseDir), services.NarrationGlob))
	if err != nil {
		return 0
	}
	removed := 0
	for _, path := range matches {
		if keep != "" && filepath.Clean(path) == filepath.Clean(keep) {
			continue
		}
		if err := os.Remove(path); err != nil {
			if !stderrors.Is(err, fs.ErrNotExist) {
				s.Logger.Warn("failed to remove old narration", "path", path, "error", err)
			}
			continue
		}
		removed++
	}
	if removed > 0 {
		s.Logger.Debug("removed old narration audio", "count", removed)
	}
	return removed
}

// LastNarration returns the most recently saved narration artifact.
func LastNarration(ctx context.Context, s *Studio) (*narration.Artifact, error) {
	data, ok, err := s.KV.Get(ctx, LastNarrationKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.NewNotFound("narration")
	}
	var art narration.Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("decode saved narration: %w", err))
	}
	return &art, nil
}
