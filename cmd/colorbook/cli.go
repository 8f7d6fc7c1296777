package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/colorbook/internal/errors"
	"github.com/hpungsan/colorbook/internal/ops"
	"github.com/hpungsan/colorbook/internal/raster"
	"github.com/hpungsan/colorbook/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(s *ops.Studio) *cli.App {
	app := &cli.App{
		Name:    "colorbook",
		Usage:   "Sketch, color, and narrate picture stories",
		Version: Version,
		Commands: []*cli.Command{
			generateCmd(s),
			photoCmd(s),
			regenerateCmd(s),
			fillCmd(s),
			brushCmd(s),
			storyCmd(s),
			readCmd(s),
			videoCmd(s),
			suggestCmd(s),
			historyCmd(s),
			serveCmd(s),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func indexFlag() cli.Flag {
	return &cli.IntFlag{Name: "index", Aliases: []string{"i"}, Usage: "History index (default: selected entry)"}
}

func targetFlag() cli.Flag {
	return &cli.StringFlag{Name: "target", Aliases: []string{"t"}, Value: ops.TargetColoring, Usage: "Canvas: coloring|sketch"}
}

// generateCmd creates the generate command.
func generateCmd(s *ops.Studio) *cli.Command {
	return &cli.Command{
		Name:  "generate",
		Usage: "Turn a sketch into a coloring outline",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "sketch", Aliases: []string{"s"}, Usage: "Sketch image file (default: current sketch canvas)"},
		},
		Action: func(c *cli.Context) error {
			input := ops.GenerateInput{}
			if path := c.String("sketch"); path != "" {
				data, err := os.ReadFile(path)
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				input.Sketch = data
			}

			output, err := ops.Generate(c.Context, s, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// photoCmd creates the photo command.
func photoCmd(s *ops.Studio) *cli.Command {
	return &cli.Command{
		Name:  "photo",
		Usage: "Capture a camera photo and turn it into a coloring outline",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Use this photo instead of the camera"},
		},
		Action: func(c *cli.Context) error {
			input := ops.PhotoInput{}
			if path := c.String("file"); path != "" {
				data, err := os.ReadFile(path)
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				input.Photo = data
			}

			output, err := ops.GenerateFromPhoto(c.Context, s, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// regenerateCmd creates the regenerate command.
func regenerateCmd(s *ops.Studio) *cli.Command {
	return &cli.Command{
		Name:  "regenerate",
		Usage: "Generate a fresh outline for a history entry",
		Flags: []cli.Flag{indexFlag()},
		Action: func(c *cli.Context) error {
			output, err := ops.Regenerate(c.Context, s, ops.RegenerateInput{Index: optionalIndex(c)})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// fillCmd creates the fill command.
func fillCmd(s *ops.Studio) *cli.Command {
	return &cli.Command{
		Name:  "fill",
		Usage: "Flood-fill the region containing a point",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "x", Required: true},
			&cli.IntFlag{Name: "y", Required: true},
			&cli.StringFlag{Name: "color", Aliases: []string{"c"}, Required: true, Usage: "#rgb, #rrggbb, #rrggbbaa, or r,g,b[,a]"},
			targetFlag(),
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Fill(c.Context, s, ops.FillInput{
				X:      c.Int("x"),
				Y:      c.Int("y"),
				Color:  c.String("color"),
				Target: c.String("target"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// brushCmd creates the brush command.
func brushCmd(s *ops.Studio) *cli.Command {
	return &cli.Command{
		Name:  "brush",
		Usage: "Paint a glossy stroke through a list of points",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "points", Aliases: []string{"p"}, Required: true, Usage: `Space-separated x,y pairs, e.g. "10,10 40,25"`},
			&cli.StringFlag{Name: "color", Aliases: []string{"c"}, Required: true},
			&cli.Float64Flag{Name: "radius", Aliases: []string{"r"}, Usage: "Brush radius in pixels (default: config brush_radius)"},
			targetFlag(),
		},
		Action: func(c *cli.Context) error {
			points, err := parsePoints(c.String("points"))
			if err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}

			output, err := ops.Brush(c.Context, s, ops.BrushInput{
				Points: points,
				Color:  c.String("color"),
				Radius: c.Float64("radius"),
				Target: c.String("target"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// storyCmd creates the story command.
func storyCmd(s *ops.Studio) *cli.Command {
	return &cli.Command{
		Name:  "story",
		Usage: "Write and illustrate a short story about a history entry",
		Flags: []cli.Flag{indexFlag()},
		Action: func(c *cli.Context) error {
			output, err := ops.CreateStory(c.Context, s, ops.StoryInput{Index: optionalIndex(c)})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// readCmd creates the read command. It waits for playback to finish since
// the process owns the audio.
func readCmd(s *ops.Studio) *cli.Command {
	return &cli.Command{
		Name:  "read",
		Usage: "Read the selected entry's story aloud",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "text", Usage: "Read this text instead of the stored story"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.ReadStory(c.Context, s, ops.ReadStoryInput{
				Text: c.String("text"),
				Wait: true,
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// videoCmd creates the video command.
func videoCmd(s *ops.Studio) *cli.Command {
	return &cli.Command{
		Name:    "export",
		Aliases: []string{"video"},
		Usage:   "Export a history entry with the last narration as an MP4",
		Flags: []cli.Flag{
			indexFlag(),
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Output path (default: ~/.colorbook/exports/colorbook-<description>-<timestamp>.mp4)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.ExportVideo(c.Context, s, ops.ExportVideoInput{
				Index: optionalIndex(c),
				Path:  c.String("path"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// suggestCmd creates the suggest command.
func suggestCmd(s *ops.Studio) *cli.Command {
	return &cli.Command{
		Name:  "suggest",
		Usage: "Suggest something to draw",
		Action: func(c *cli.Context) error {
			output, err := ops.Suggest(c.Context, s)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// historyCmd creates the history command and its subcommands.
func historyCmd(s *ops.Studio) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Inspect and manage the last five creations",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List history entries, oldest first",
				Action: func(c *cli.Context) error {
					return outputJSON(ops.ListHistory(s))
				},
			},
			{
				Name:      "show",
				Usage:     "Show one entry without its images",
				ArgsUsage: "[index]",
				Action: func(c *cli.Context) error {
					index, err := argIndex(c, false)
					if err != nil {
						return outputError(err)
					}
					rec, err := ops.ShowHistory(s, index)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]any{
						"id":                     rec.ID,
						"recognized_description": rec.RecognizedDescription,
						"original_prompt":        rec.OriginalPrompt,
						"story_text":             rec.StoryText,
						"has_story_image":        len(rec.StoryImage) > 0,
						"created_at":             rec.CreatedAt,
						"updated_at":             rec.UpdatedAt,
					})
				},
			},
			{
				Name:      "image",
				Usage:     "Write one of an entry's images to a PNG file",
				ArgsUsage: "[index]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Value: ops.ImageGenerated, Usage: "sketch|generated|story"},
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Required: true, Usage: "Output file"},
				},
				Action: func(c *cli.Context) error {
					index, err := argIndex(c, false)
					if err != nil {
						return outputError(err)
					}
					data, err := ops.RecordImage(s, index, c.String("kind"))
					if err != nil {
						return outputError(err)
					}
					if err := os.WriteFile(c.String("out"), data, 0600); err != nil {
						return outputError(errors.NewInternal(err))
					}
					return outputJSON(map[string]any{"path": c.String("out"), "bytes": len(data)})
				},
			},
			{
				Name:      "select",
				Usage:     "Select an entry and load it onto the canvases",
				ArgsUsage: "<index>",
				Action: func(c *cli.Context) error {
					index, err := argIndex(c, true)
					if err != nil {
						return outputError(err)
					}
					if err := ops.SelectHistory(c.Context, s, index); err != nil {
						return outputError(err)
					}
					return outputJSON(ops.ListHistory(s))
				},
			},
			{
				Name:  "deselect",
				Usage: "Clear the selection",
				Action: func(c *cli.Context) error {
					if err := ops.SelectHistory(c.Context, s, nil); err != nil {
						return outputError(err)
					}
					return outputJSON(ops.ListHistory(s))
				},
			},
			{
				Name:      "remove",
				Usage:     "Remove an entry",
				ArgsUsage: "<index>",
				Action: func(c *cli.Context) error {
					index, err := argIndex(c, true)
					if err != nil {
						return outputError(err)
					}
					if err := ops.RemoveHistory(c.Context, s, *index); err != nil {
						return outputError(err)
					}
					return outputJSON(ops.ListHistory(s))
				},
			},
			{
				Name:  "clear",
				Usage: "Remove every entry",
				Action: func(c *cli.Context) error {
					if err := ops.ClearHistory(c.Context, s); err != nil {
						return outputError(err)
					}
					return outputJSON(ops.ListHistory(s))
				},
			},
			{
				Name:  "save",
				Usage: "Save history to a JSONL file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Export file path (default: ~/.colorbook/exports/history-<timestamp>.jsonl)"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.ExportHistory(c.Context, s, ops.ExportHistoryInput{Path: c.String("path")})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:  "load",
				Usage: "Load history from a JSONL file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Import file path"},
					&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "error", Usage: "Mode: error|replace|append"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.ImportHistory(c.Context, s, ops.ImportHistoryInput{
						Path: c.String("path"),
						Mode: ops.ImportMode(c.String("mode")),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(s *ops.Studio) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the web UI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Value: 7411, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			srv := web.NewServer(s, Version, c.String("bind"), c.Int("port"))
			if err := web.Run(srv, s.Logger); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if se := errors.As(err); se != nil {
		return cli.Exit(fmt.Sprintf("[%s] %s", se.Code, se.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// optionalIndex returns the --index flag, or nil when it was not given.
func optionalIndex(c *cli.Context) *int {
	if !c.IsSet("index") {
		return nil
	}
	i := c.Int("index")
	return &i
}

// argIndex parses the first positional argument as a history index.
func argIndex(c *cli.Context, required bool) (*int, error) {
	if c.NArg() == 0 {
		if required {
			return nil, errors.NewInvalidRequest("index is required")
		}
		return nil, nil
	}
	i, err := strconv.Atoi(c.Args().First())
	if err != nil || i < 0 {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid index %q", c.Args().First()))
	}
	return &i, nil
}

// parsePoints parses "x,y x,y" into stroke points. Semicolons also separate pairs.
func parsePoints(s string) ([]raster.Point, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ';' || r == '\t' || r == '\n'
	})
	if len(fields) == 0 {
		return nil, fmt.Errorf("at least one point is required")
	}
	points := make([]raster.Point, 0, len(fields))
	for _, f := range fields {
		xs, ys, ok := strings.Cut(f, ",")
		if !ok {
			return nil, fmt.Errorf("invalid point %q: want x,y", f)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid point %q: %w", f, err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(ys), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid point %q: %w", f, err)
		}
		points = append(points, raster.Point{X: x, Y: y})
	}
	return points, nil
}
