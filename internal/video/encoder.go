package video

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/hpungsan/colorbook/internal/errors"
)

// WordsPerMinute is the narration pace assumed when audio can't be measured.
const WordsPerMinute = 130

// EncodeInput is everything needed to render one export.
type EncodeInput struct {
	Frame         image.Image
	NarrationPath string
	// AmbientPath is optional; without it only narration is heard.
	AmbientPath string
	DurationSec float64
	OutPath     string
}

// Encoder renders a still frame and audio into a video file.
type Encoder interface {
	Encode(ctx context.Context, in EncodeInput) error
}

// FFmpegEncoder encodes with the ffmpeg binary.
type FFmpegEncoder struct {
	Path string
	// AmbientVolume is the ambient track's volume relative to narration.
	AmbientVolume float64
	Logger        *slog.Logger
}

func (e FFmpegEncoder) bin() string {
	if e.Path == "" {
		return "ffmpeg"
	}
	return e.Path
}

// Ready reports whether ffmpeg can be found.
func (e FFmpegEncoder) Ready() error {
	if _, err := exec.LookPath(e.bin()); err != nil {
		return errors.NewResourceUnavailable("video encoder", err)
	}
	return nil
}

// Encode renders in.Frame held for in.DurationSec with narration at full
// volume and the ambient track mixed in underneath.
func (e FFmpegEncoder) Encode(ctx context.Context, in EncodeInput) error {
	if err := validate(in); err != nil {
		return err
	}
	if err := e.Ready(); err != nil {
		return err
	}

	framePath, err := writeFrame(in.Frame)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer os.Remove(framePath)

	args := buildArgs(framePath, in, e.AmbientVolume)
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("running ffmpeg", "args", strings.Join(args, " "))

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.bin(), args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return errors.NewServiceUnavailable("video encoder", fmt.Errorf("ffmpeg: %w: %s", err, lastLine(stderr.String())))
	}
	logger.Info("video exported", "path", in.OutPath, "duration_sec", in.DurationSec)
	return nil
}

func validate(in EncodeInput) error {
	switch {
	case in.Frame == nil:
		return errors.NewInvalidRequest("export frame is required")
	case in.NarrationPath == "":
		return errors.NewInvalidRequest("narration audio is required")
	case in.DurationSec <= 0:
		return errors.NewInvalidRequest("duration must be positive")
	case in.OutPath == "":
		return errors.NewInvalidRequest("output path is required")
	}
	return nil
}

// buildArgs builds the ffmpeg command line: input 0 is the looped still
// frame, input 1 the narration, input 2 the optional ambient track.
func buildArgs(framePath string, in EncodeInput, ambientVolume float64) []string {
	dur := strconv.FormatFloat(in.DurationSec, 'f', 2, 64)
	args := []string{"-y",
		"-loop", "1", "-framerate", "2", "-t", dur, "-i", framePath,
		"-i", in.NarrationPath,
	}

	var filter string
	if in.AmbientPath != "" {
		args = append(args, "-i", in.AmbientPath)
		filter = fmt.Sprintf("[1:a]volume=1.0[narr];[2:a]volume=%.2f[amb];[narr][amb]amix=inputs=2:duration=shortest:normalize=0[aout]", ambientVolume)
	} else {
		filter = "[1:a]volume=1.0[aout]"
	}

	return append(args,
		"-filter_complex", filter,
		"-map", "0:v", "-map", "[aout]",
		"-c:v", "libx264", "-tune", "stillimage", "-pix_fmt", "yuv420p",
		"-c:a", "aac", "-b:a", "192k",
		"-t", dur,
		"-movflags", "+faststart",
		in.OutPath,
	)
}

func writeFrame(frame image.Image) (string, error) {
	f, err := os.CreateTemp("", "colorbook-frame-*.png")
	if err != nil {
		return "", err
	}
	if err := png.Encode(f, frame); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// ProbeDuration measures an audio file's length in seconds with ffprobe.
func ProbeDuration(ctx context.Context, ffprobePath, path string) (float64, error) {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	out, err := exec.CommandContext(ctx, ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0, err
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe duration: %w", err)
	}
	return dur, nil
}

// EstimateDuration estimates how long text takes to read aloud.
func EstimateDuration(text string) float64 {
	words := len(strings.Fields(text))
	if words == 0 {
		return 1
	}
	return max(1, float64(words)/WordsPerMinute*60)
}
