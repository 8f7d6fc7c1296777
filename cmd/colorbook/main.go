package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/colorbook/internal/camera"
	"github.com/hpungsan/colorbook/internal/config"
	"github.com/hpungsan/colorbook/internal/db"
	"github.com/hpungsan/colorbook/internal/history"
	"github.com/hpungsan/colorbook/internal/mcp"
	"github.com/hpungsan/colorbook/internal/narration"
	"github.com/hpungsan/colorbook/internal/ops"
	"github.com/hpungsan/colorbook/internal/services"
	"github.com/hpungsan/colorbook/internal/video"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"generate": true, "photo": true, "regenerate": true,
	"fill": true, "brush": true, "story": true, "read": true,
	"export": true, "video": true, "suggest": true, "history": true, "serve": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v"
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
    ___  ___  _    ___  ___ ___  ___  ___  _  __
   / __|/ _ \| |  / _ \| _ \ _ )/ _ \/ _ \| |/ /
  | (__| (_) | |_| (_) |   / _ \ (_) \(_) | ' <
   \___|\___/|____\___/|_|_\___/\___/\___/|_|\_\

  Sketch, color, and narrate picture stories

  Usage: colorbook <command> [options]
         colorbook serve
         colorbook --help

  MCP server mode requires piped input.`)
}

// newLogger writes structured logs to stderr; stdout carries JSON output
// and the MCP protocol.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// newStudio wires the studio's services, narration, video, and camera from cfg.
// The returned close function stops any narration in progress.
func newStudio(ctx context.Context, baseDir string, database *sql.DB, cfg *config.Config, logger *slog.Logger) (*ops.Studio, func(), error) {
	kv := db.NewKV(database)
	ring, err := history.Open(ctx, kv, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open history: %w", err)
	}

	studio := ops.NewStudio(cfg, baseDir, kv, ring, logger)
	studio.Describer = services.NewAnthropicDescriber(os.Getenv("ANTHROPIC_API_KEY"), cfg.AnthropicModel, logger)
	studio.Generator = services.NewPollinationsGenerator(cfg.ImageServiceURL, logger)
	studio.Encoder = video.FFmpegEncoder{Path: cfg.FFmpegPath, AmbientVolume: cfg.AmbientVolume, Logger: logger}
	studio.Camera = camera.V4L2{Device: cfg.CameraDevice, FFmpegPath: cfg.FFmpegPath}
	studio.ProbeDuration = func(ctx context.Context, path string) (float64, error) {
		return video.ProbeDuration(ctx, cfg.FFprobePath, path)
	}

	closeFn := func() {}
	synth, err := services.NewSynthesizer(cfg, ops.AudioDir(baseDir), logger)
	if err != nil {
		// Narration is optional; everything else still works.
		logger.Warn("narration disabled", "error", err)
	} else {
		narrator, err := narration.New(narration.Options{
			Synthesizer:   synth,
			Player:        narration.FFplayPlayer{Path: cfg.FFplayPath},
			Clock:         narration.SystemClock(),
			Images:        ring,
			Logger:        logger,
			AmbientPath:   cfg.AmbientTrack,
			AmbientVolume: cfg.AmbientVolume,
			ImageDelay:    cfg.ImageDelay(),
			ImageToggle:   cfg.ImageToggle(),
			OnArtifact: func(art narration.Artifact) {
				_ = ops.RecordNarration(context.Background(), studio, art)
			},
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to start narration: %w", err)
		}
		studio.Narrator = narrator
		closeFn = narrator.Close
	}

	if err := ops.RestoreCanvases(ctx, studio); err != nil {
		logger.Warn("could not restore canvases", "error", err)
	}
	if _, err := ops.PruneNarrations(ctx, studio); err != nil {
		logger.Warn("could not prune narration audio", "error", err)
	}
	return studio, closeFn, nil
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion() {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine home directory: %v\n", err)
		os.Exit(1)
	}
	baseDir := filepath.Join(homeDir, ".colorbook")

	if err := config.LoadEnv(baseDir); err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load .env: %v\n", err)
		os.Exit(1)
	}

	cwd, _ := os.Getwd()
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		logger.Warn("unknown tools in disabled_tools", "tools", unknown)
	}

	database, err := db.Init(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()
	db.ConfigurePool(database, cfg)

	studio, closeStudio, err := newStudio(context.Background(), baseDir, database, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer closeStudio()

	// CLI mode: known subcommand
	if isCLIMode() {
		app := newCLIApp(studio)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			closeStudio()
			database.Close()
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'colorbook --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default)
	if err := mcp.Run(studio, Version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
