package mcp

import "github.com/mark3labs/mcp-go/mcp"

const indexDesc = "History index (0 = oldest). Defaults to the selected entry."

var outlineGenerateToolDef = mcp.NewTool("outline_generate",
	mcp.WithDescription("Recognize the current sketch and generate a coloring-book outline from it. "+
		"The new entry is added to history (oldest evicted past 5) and selected."),
)

var outlineRegenerateToolDef = mcp.NewTool("outline_regenerate",
	mcp.WithDescription("Generate a fresh outline for an existing entry from its original prompt. Discards its coloring."),
	mcp.WithNumber("index", mcp.Description(indexDesc), mcp.Min(0)),
)

var canvasFillToolDef = mcp.NewTool("canvas_fill",
	mcp.WithDescription("Flood-fill the region containing (x, y) with a color. "+
		"Changes to the coloring canvas are saved to the selected entry."),
	mcp.WithNumber("x", mcp.Required(), mcp.Min(0)),
	mcp.WithNumber("y", mcp.Required(), mcp.Min(0)),
	mcp.WithString("color", mcp.Required(), mcp.Description("#rgb, #rrggbb, #rrggbbaa, or r,g,b[,a]")),
	mcp.WithString("target", mcp.Enum("coloring", "sketch"), mcp.Description("Canvas to paint (default coloring)")),
)

var canvasBrushToolDef = mcp.NewTool("canvas_brush",
	mcp.WithDescription("Paint a glossy brush stroke through a list of points."),
	mcp.WithArray("points", mcp.Required(),
		mcp.Description("Stroke points as [x, y] pairs"),
		mcp.Items(map[string]any{
			"type":     "array",
			"items":    map[string]any{"type": "number"},
			"minItems": 2,
			"maxItems": 2,
		}),
	),
	mcp.WithString("color", mcp.Required()),
	mcp.WithNumber("radius", mcp.Description("Brush radius in pixels (default from config)")),
	mcp.WithString("target", mcp.Enum("coloring", "sketch")),
)

var storyCreateToolDef = mcp.NewTool("story_create",
	mcp.WithDescription("Write a short story about an entry and illustrate it."),
	mcp.WithNumber("index", mcp.Description(indexDesc), mcp.Min(0)),
)

var storyReadToolDef = mcp.NewTool("story_read",
	mcp.WithDescription("Read the selected entry's story aloud, replacing any reading in progress. "+
		"Returns immediately; poll story_status."),
	mcp.WithString("text", mcp.Description("Text to read instead of the stored story")),
)

var storyStopToolDef = mcp.NewTool("story_stop",
	mcp.WithDescription("Stop the current reading."),
)

var storyStatusToolDef = mcp.NewTool("story_status",
	mcp.WithDescription("Report the narration state: idle, preparing, playing, completed, or failed."),
)

var videoExportToolDef = mcp.NewTool("video_export",
	mcp.WithDescription("Render an entry's story image, sketch, and outline with the last narration into an MP4."),
	mcp.WithNumber("index", mcp.Description(indexDesc), mcp.Min(0)),
	mcp.WithString("path", mcp.Description("Output .mp4 path, directly inside an allowed directory")),
)

var ideaSuggestToolDef = mcp.NewTool("idea_suggest",
	mcp.WithDescription("Suggest something to draw."),
)

var historyListToolDef = mcp.NewTool("history_list",
	mcp.WithDescription("List history entries without images, oldest first."),
)

var historySelectToolDef = mcp.NewTool("history_select",
	mcp.WithDescription("Select an entry and load it onto the canvases. Omit index to clear the selection."),
	mcp.WithNumber("index", mcp.Min(0)),
)

var historyRemoveToolDef = mcp.NewTool("history_remove",
	mcp.WithDescription("Remove an entry from history."),
	mcp.WithNumber("index", mcp.Required(), mcp.Min(0)),
)

var historyExportToolDef = mcp.NewTool("history_export",
	mcp.WithDescription("Save history to a .jsonl file."),
	mcp.WithString("path", mcp.Description("Output path (default <base>/exports/history-<timestamp>.jsonl)")),
)

var historyImportToolDef = mcp.NewTool("history_import",
	mcp.WithDescription("Load history from a .jsonl file written by history_export."),
	mcp.WithString("path", mcp.Required()),
	mcp.WithString("mode", mcp.Enum("error", "replace", "append"),
		mcp.Description("error: replace, abort on bad lines (default); replace: skip bad lines; append: add to current history")),
)
