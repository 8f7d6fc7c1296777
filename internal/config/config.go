package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	// CanvasWidth and CanvasHeight size the sketch and coloring surfaces.
	CanvasWidth  int `json:"canvas_width"`
	CanvasHeight int `json:"canvas_height"`

	// BrushRadius is the default glossy brush radius in pixels.
	BrushRadius float64 `json:"brush_radius"`

	// NarrationProvider selects the text-to-speech provider: "edge-tts" or "command".
	// The "command" provider runs $TTS_COMMAND with --text and --output arguments.
	NarrationProvider string `json:"narration_provider"`

	// Voice is passed to providers that support voice selection.
	Voice string `json:"voice,omitempty"`

	// AmbientTrack is the path of the looping background track played under narration.
	// Empty disables ambient audio.
	AmbientTrack string `json:"ambient_track,omitempty"`

	// AmbientVolume is the ambient track's volume relative to narration (0..1).
	AmbientVolume float64 `json:"ambient_volume"`

	// ImageDelayMS is the delay before the story image first appears during narration.
	ImageDelayMS int `json:"image_delay_ms"`

	// ImageToggleMS is the period of the story image visibility toggle.
	ImageToggleMS int `json:"image_toggle_ms"`

	// AnthropicModel is the model used by the description service.
	AnthropicModel string `json:"anthropic_model"`

	// ImageServiceURL is the base URL of the outline image service.
	ImageServiceURL string `json:"image_service_url"`

	// CameraDevice is the V4L2 device used for photo capture.
	CameraDevice string `json:"camera_device"`

	// External binaries. Bare names are resolved through PATH.
	FFmpegPath  string `json:"ffmpeg_path"`
	FFprobePath string `json:"ffprobe_path"`
	FFplayPath  string `json:"ffplay_path"`
	EdgeTTSPath string `json:"edge_tts_path"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// AllowedPaths lists extra absolute directories that history and video
	// files may be written to or read from, besides <base>/exports.
	AllowedPaths []string `json:"allowed_paths,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		CanvasWidth:       768,
		CanvasHeight:      768,
		BrushRadius:       12,
		NarrationProvider: "edge-tts",
		Voice:             "en-US-AnaNeural",
		AmbientVolume:     0.3,
		ImageDelayMS:      1500,
		ImageToggleMS:     4000,
		AnthropicModel:    "claude-sonnet-4-5",
		ImageServiceURL:   "https://image.pollinations.ai",
		CameraDevice:      "/dev/video0",
		FFmpegPath:        "ffmpeg",
		FFprobePath:       "ffprobe",
		FFplayPath:        "ffplay",
		EdgeTTSPath:       "edge-tts",
		LogLevel:          "info",
	}
}

// ImageDelay returns ImageDelayMS as a duration.
func (c *Config) ImageDelay() time.Duration {
	return time.Duration(c.ImageDelayMS) * time.Millisecond
}

// ImageToggle returns ImageToggleMS as a duration.
func (c *Config) ImageToggle() time.Duration {
	return time.Duration(c.ImageToggleMS) * time.Millisecond
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.colorbook.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.colorbook) and repo (.colorbook) directories.
// Repo config is found by walking upward from startDir to find the nearest .colorbook/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// LoadEnv loads service credentials from baseDir/.env and ./.env.
// Variables already present in the environment are never overwritten.
// Missing files are ignored.
func LoadEnv(baseDir string) error {
	for _, path := range []string{filepath.Join(baseDir, ".env"), ".env"} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return err
		}
	}
	return nil
}

// FindRepoConfig walks upward from startDir to find the nearest .colorbook/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".colorbook", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	return &Config{
		CanvasWidth:       pickInt(overlay.CanvasWidth, base.CanvasWidth),
		CanvasHeight:      pickInt(overlay.CanvasHeight, base.CanvasHeight),
		BrushRadius:       pickFloat(overlay.BrushRadius, base.BrushRadius),
		NarrationProvider: pickString(overlay.NarrationProvider, base.NarrationProvider),
		Voice:             pickString(overlay.Voice, base.Voice),
		AmbientTrack:      pickString(overlay.AmbientTrack, base.AmbientTrack),
		AmbientVolume:     pickFloat(overlay.AmbientVolume, base.AmbientVolume),
		ImageDelayMS:      pickInt(overlay.ImageDelayMS, base.ImageDelayMS),
		ImageToggleMS:     pickInt(overlay.ImageToggleMS, base.ImageToggleMS),
		AnthropicModel:    pickString(overlay.AnthropicModel, base.AnthropicModel),
		ImageServiceURL:   pickString(overlay.ImageServiceURL, base.ImageServiceURL),
		CameraDevice:      pickString(overlay.CameraDevice, base.CameraDevice),
		FFmpegPath:        pickString(overlay.FFmpegPath, base.FFmpegPath),
		FFprobePath:       pickString(overlay.FFprobePath, base.FFprobePath),
		FFplayPath:        pickString(overlay.FFplayPath, base.FFplayPath),
		EdgeTTSPath:       pickString(overlay.EdgeTTSPath, base.EdgeTTSPath),
		LogLevel:          pickString(overlay.LogLevel, base.LogLevel),
		DBMaxOpenConns:    pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns),
		DBMaxIdleConns:    pickInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns),
		DisabledTools:     mergeStringSlice(base.DisabledTools, overlay.DisabledTools),
		AllowedPaths:      mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths),
	}
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

func pickFloat(overlay, base float64) float64 {
	if overlay != 0 {
		return overlay
	}
	return base
}

func pickString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, list := range [][]string{a, b} {
		for _, s := range list {
			s = strings.TrimSpace(s)
			if s != "" && !seen[s] {
				seen[s] = true
				result = append(result, s)
			}
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
