package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hpungsan/colorbook/internal/config"
	"github.com/hpungsan/colorbook/internal/errors"
	"github.com/hpungsan/colorbook/internal/narration"
	"github.com/hpungsan/colorbook/internal/video"
)

const narrationService = "narration service"

// Provider names accepted in config.
const (
	ProviderEdgeTTS = "edge-tts"
	ProviderCommand = "command"
)

// EdgeTTS synthesizes narration with the edge-tts command.
type EdgeTTS struct {
	Path        string
	Voice       string
	OutDir      string
	FFprobePath string
	Logger      *slog.Logger
}

// Name returns the provider name.
func (e *EdgeTTS) Name() string { return ProviderEdgeTTS }

// Synthesize writes an mp3 of text into OutDir.
func (e *EdgeTTS) Synthesize(ctx context.Context, text string) (narration.Artifact, error) {
	bin := e.Path
	if bin == "" {
		bin = "edge-tts"
	}
	out := artifactPath(e.OutDir)
	args := []string{"--text", text, "--write-media", out}
	if e.Voice != "" {
		args = append([]string{"--voice", e.Voice}, args...)
	}
	return synthesize(ctx, e.Name(), bin, args, text, out, e.FFprobePath, e.Logger)
}

// CommandTTS runs a user-supplied TTS command that accepts
// --text and --output arguments. Commands ending in .py run under python3.
type CommandTTS struct {
	Command     string
	OutDir      string
	FFprobePath string
	Logger      *slog.Logger
}

// Name returns the provider name.
func (c *CommandTTS) Name() string { return ProviderCommand }

// Synthesize writes an mp3 of text into OutDir.
func (c *CommandTTS) Synthesize(ctx context.Context, text string) (narration.Artifact, error) {
	command := strings.TrimSpace(c.Command)
	if command == "" {
		return narration.Artifact{}, errors.NewMissingCredential(narrationService, "TTS_COMMAND")
	}
	out := artifactPath(c.OutDir)
	bin, args := command, []string{"--text", text, "--output", out}
	if strings.HasSuffix(command, ".py") {
		bin, args = "python3", append([]string{command}, args...)
	}
	return synthesize(ctx, c.Name(), bin, args, text, out, c.FFprobePath, c.Logger)
}

// NewSynthesizer picks the provider named in cfg.
func NewSynthesizer(cfg *config.Config, outDir string, logger *slog.Logger) (narration.Synthesizer, error) {
	switch cfg.NarrationProvider {
	case ProviderEdgeTTS, "":
		return &EdgeTTS{Path: cfg.EdgeTTSPath, Voice: cfg.Voice, OutDir: outDir, FFprobePath: cfg.FFprobePath, Logger: logger}, nil
	case ProviderCommand:
		return &CommandTTS{Command: os.Getenv("TTS_COMMAND"), OutDir: outDir, FFprobePath: cfg.FFprobePath, Logger: logger}, nil
	default:
		return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown narration provider %q", cfg.NarrationProvider))
	}
}

// NarrationGlob matches the audio files synthesizers write.
const NarrationGlob = "narration-*.mp3"

func artifactPath(dir string) string {
	return filepath.Join(dir, "narration-"+uuid.NewString()+".mp3")
}

func synthesize(ctx context.Context, provider, bin string, args []string, text, out, ffprobe string, logger *slog.Logger) (narration.Artifact, error) {
	if strings.TrimSpace(text) == "" {
		return narration.Artifact{}, errors.NewInvalidRequest("narration text is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := exec.LookPath(bin); err != nil {
		return narration.Artifact{}, errors.NewResourceUnavailable(provider, err)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0700); err != nil {
		return narration.Artifact{}, errors.NewInternal(err)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.Remove(out)
		return narration.Artifact{}, errors.NewServiceUnavailable(narrationService,
			fmt.Errorf("%s: %w: %s", provider, err, strings.TrimSpace(stderr.String())))
	}
	if info, err := os.Stat(out); err != nil || info.Size() == 0 {
		return narration.Artifact{}, errors.NewDecodeFailed("narration audio", err)
	}

	dur, err := video.ProbeDuration(ctx, ffprobe, out)
	if err != nil {
		logger.Warn("could not measure narration, using estimate", "path", out, "error", err)
		dur = video.EstimateDuration(text)
	}

	logger.Info("narration synthesized", "provider", provider, "path", out, "duration_sec", dur)
	return narration.Artifact{
		Path:        out,
		Provider:    provider,
		Text:        text,
		DurationSec: dur,
		CreatedAt:   time.Now().UTC(),
	}, nil
}
