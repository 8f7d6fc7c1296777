package ops

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/colorbook/internal/errors"
	"github.com/hpungsan/colorbook/internal/narration"
	"github.com/hpungsan/colorbook/internal/video"
)

func recordAudio(t *testing.T, h *harness, dur float64) narration.Artifact {
	t.Helper()
	path := filepath.Join(t.TempDir(), "narration.mp3")
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0600))
	art := narration.Artifact{Path: path, Provider: "edge-tts", Text: strings.Repeat("word ", 65), DurationSec: dur}
	require.NoError(t, RecordNarration(context.Background(), h.s, art))
	return art
}

func TestExportVideo_Preconditions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := ExportVideo(ctx, h.s, ExportVideoInput{})
	require.True(t, errors.Is(err, errors.ErrNoSelection))

	h.generate(t)
	_, err = ExportVideo(ctx, h.s, ExportVideoInput{})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest), "no narration yet")

	art := recordAudio(t, h, 3)
	require.NoError(t, os.Remove(art.Path))
	_, err = ExportVideo(ctx, h.s, ExportVideoInput{})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest), "narration file deleted")

	recordAudio(t, h, 3)
	h.s.Encoder = nil
	_, err = ExportVideo(ctx, h.s, ExportVideoInput{})
	require.True(t, errors.Is(err, errors.ErrResourceUnavailable))
	require.Nil(t, h.enc.got)
}

func TestExportVideo_Encodes(t *testing.T) {
	h := newHarness(t)
	h.generate(t)
	art := recordAudio(t, h, 12.5)
	h.s.Cfg.AmbientTrack = "/music/loop.mp3"

	out, err := ExportVideo(context.Background(), h.s, ExportVideoInput{})
	require.NoError(t, err)
	require.Equal(t, ExportsDir(h.s.BaseDir), filepath.Dir(out.Path))
	require.True(t, strings.HasPrefix(filepath.Base(out.Path), "colorbook-a-cat-"))
	require.Equal(t, 12.5, out.DurationSec)

	got := h.enc.got
	require.NotNil(t, got)
	require.Equal(t, art.Path, got.NarrationPath)
	require.Equal(t, "/music/loop.mp3", got.AmbientPath)
	require.Equal(t, out.Path, got.OutPath)
	require.Equal(t, video.FrameWidth, got.Frame.Bounds().Dx())
	require.Equal(t, video.FrameHeight, got.Frame.Bounds().Dy())
}

func TestExportVideo_Duration(t *testing.T) {
	h := newHarness(t)
	h.generate(t)
	ctx := context.Background()

	recordAudio(t, h, 0)
	out, err := ExportVideo(ctx, h.s, ExportVideoInput{})
	require.NoError(t, err)
	require.InDelta(t, 30.0, out.DurationSec, 0.001, "65 words at the estimated pace")

	h.s.ProbeDuration = func(context.Context, string) (float64, error) { return 7.25, nil }
	out, err = ExportVideo(ctx, h.s, ExportVideoInput{})
	require.NoError(t, err)
	require.Equal(t, 7.25, out.DurationSec)

	h.s.ProbeDuration = func(context.Context, string) (float64, error) { return 0, stderrors.New("no ffprobe") }
	recordAudio(t, h, 9)
	out, err = ExportVideo(ctx, h.s, ExportVideoInput{})
	require.NoError(t, err)
	require.Equal(t, 9.0, out.DurationSec)
}

func TestExportVideo_EncoderFailure(t *testing.T) {
	h := newHarness(t)
	h.generate(t)
	recordAudio(t, h, 3)
	h.enc.err = errors.NewServiceUnavailable("video encoder", stderrors.New("exit status 1"))

	_, err := ExportVideo(context.Background(), h.s, ExportVideoInput{})
	require.True(t, errors.Is(err, errors.ErrServiceUnavailable))
}

func TestExportVideo_RejectsPath(t *testing.T) {
	h := newHarness(t)
	h.generate(t)
	recordAudio(t, h, 3)

	_, err := ExportVideo(context.Background(), h.s, ExportVideoInput{Path: filepath.Join(ExportsDir(h.s.BaseDir), "story.gif")})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
	require.Nil(t, h.enc.got)
}
