package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/colorbook/internal/ops"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"outline_generate": {
		def:     outlineGenerateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGenerate },
	},
	"outline_regenerate": {
		def:     outlineRegenerateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRegenerate },
	},
	"canvas_fill": {
		def:     canvasFillToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFill },
	},
	"canvas_brush": {
		def:     canvasBrushToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBrush },
	},
	"story_create": {
		def:     storyCreateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCreateStory },
	},
	"story_read": {
		def:     storyReadToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleReadStory },
	},
	"story_stop": {
		def:     storyStopToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleStopStory },
	},
	"story_status": {
		def:     storyStatusToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleStoryStatus },
	},
	"video_export": {
		def:     videoExportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleExportVideo },
	},
	"idea_suggest": {
		def:     ideaSuggestToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSuggest },
	},
	"history_list": {
		def:     historyListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleListHistory },
	},
	"history_select": {
		def:     historySelectToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSelectHistory },
	},
	"history_remove": {
		def:     historyRemoveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRemoveHistory },
	},
	"history_export": {
		def:     historyExportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleExportHistory },
	},
	"history_import": {
		def:     historyImportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleImportHistory },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates an MCP server with the colorbook tools registered,
// skipping those listed in the studio config's DisabledTools.
func NewServer(studio *ops.Studio, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"colorbook",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(studio)

	disabled := make(map[string]bool)
	for _, name := range studio.Cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run serves the colorbook tools over stdio.
func Run(studio *ops.Studio, version string) error {
	return server.ServeStdio(NewServer(studio, version))
}
