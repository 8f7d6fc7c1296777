package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/colorbook/internal/errors"
	"github.com/hpungsan/colorbook/internal/ops"
	"github.com/hpungsan/colorbook/internal/raster"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	studio *ops.Studio
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(studio *ops.Studio) *Handlers {
	return &Handlers{studio: studio}
}

// Request types for each tool

// IndexRequest is the argument shape of tools that act on one history entry.
type IndexRequest struct {
	Index *int `json:"index,omitempty"`
}

// FillRequest represents the arguments for canvas_fill.
type FillRequest struct {
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Color  string `json:"color"`
	Target string `json:"target,omitempty"`
}

// BrushRequest represents the arguments for canvas_brush.
type BrushRequest struct {
	Points [][]float64 `json:"points"`
	Color  string       `json:"color"`
	Radius float64      `json:"radius,omitempty"`
	Target string       `json:"target,omitempty"`
}

// ReadRequest represents the arguments for story_read.
type ReadRequest struct {
	Text string `json:"text,omitempty"`
}

// VideoRequest represents the arguments for video_export.
type VideoRequest struct {
	Index *int   `json:"index,omitempty"`
	Path  string `json:"path,omitempty"`
}

// RemoveRequest represents the arguments for history_remove.
type RemoveRequest struct {
	Index *int `json:"index"`
}

// ExportRequest represents the arguments for history_export.
type ExportRequest struct {
	Path string `json:"path,omitempty"`
}

// ImportRequest represents the arguments for history_import.
type ImportRequest struct {
	Path string `json:"path"`
	Mode string `json:"mode,omitempty"`
}

// HandleGenerate handles the outline_generate tool.
func (h *Handlers) HandleGenerate(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.Generate(ctx, h.studio, ops.GenerateInput{})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleRegenerate handles the outline_regenerate tool.
func (h *Handlers) HandleRegenerate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[IndexRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.Regenerate(ctx, h.studio, ops.RegenerateInput{Index: r.Index})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleFill handles the canvas_fill tool.
func (h *Handlers) HandleFill(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[FillRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.Fill(ctx, h.studio, ops.FillInput{
		X:      r.X,
		Y:      r.Y,
		Color:  r.Color,
		Target: r.Target,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleBrush handles the canvas_brush tool.
func (h *Handlers) HandleBrush(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[BrushRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	points := make([]raster.Point, len(r.Points))
	for i, p := range r.Points {
		if len(p) != 2 {
			return errorResult(errors.NewInvalidRequest(fmt.Sprintf("point %d must be [x, y]", i))), nil
		}
		points[i] = raster.Point{X: p[0], Y: p[1]}
	}
	result, err := ops.Brush(ctx, h.studio, ops.BrushInput{
		Points: points,
		Color:  r.Color,
		Radius: r.Radius,
		Target: r.Target,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleCreateStory handles the story_create tool.
func (h *Handlers) HandleCreateStory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[IndexRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.CreateStory(ctx, h.studio, ops.StoryInput{Index: r.Index})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleReadStory handles the story_read tool. It never waits for the
// reading to finish; clients poll story_status.
func (h *Handlers) HandleReadStory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[ReadRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.ReadStory(ctx, h.studio, ops.ReadStoryInput{Text: r.Text})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleStopStory handles the story_stop tool.
func (h *Handlers) HandleStopStory(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, err := ops.StopStory(h.studio)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(snap)
}

// HandleStoryStatus handles the story_status tool.
func (h *Handlers) HandleStoryStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, err := ops.NarrationStatus(h.studio)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(snap)
}

// HandleExportVideo handles the video_export tool.
func (h *Handlers) HandleExportVideo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[VideoRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.ExportVideo(ctx, h.studio, ops.ExportVideoInput{Index: r.Index, Path: r.Path})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSuggest handles the idea_suggest tool.
func (h *Handlers) HandleSuggest(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.Suggest(ctx, h.studio)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleListHistory handles the history_list tool.
func (h *Handlers) HandleListHistory(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return successResult(ops.ListHistory(h.studio))
}

// HandleSelectHistory handles the history_select tool.
func (h *Handlers) HandleSelectHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[IndexRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if err := ops.SelectHistory(ctx, h.studio, r.Index); err != nil {
		return errorResult(err), nil
	}
	return successResult(ops.ListHistory(h.studio))
}

// HandleRemoveHistory handles the history_remove tool.
func (h *Handlers) HandleRemoveHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[RemoveRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if r.Index == nil {
		return errorResult(errors.NewInvalidRequest("index is required")), nil
	}
	if err := ops.RemoveHistory(ctx, h.studio, *r.Index); err != nil {
		return errorResult(err), nil
	}
	return successResult(ops.ListHistory(h.studio))
}

// HandleExportHistory handles the history_export tool.
func (h *Handlers) HandleExportHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.ExportHistory(ctx, h.studio, ops.ExportHistoryInput{Path: r.Path})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleImportHistory handles the history_import tool.
func (h *Handlers) HandleImportHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[ImportRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.ImportHistory(ctx, h.studio, ops.ImportHistoryInput{
		Path: r.Path,
		Mode: ops.ImportMode(r.Mode),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// errorResult converts an error to an MCP error result.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if se := errors.As(err); se != nil {
		errorObj := map[string]any{
			"code":    se.Code,
			"message": se.Message,
			"status":  se.Status,
		}
		// Internal details can carry file paths or driver output.
		if se.Code != errors.ErrInternal && se.Details != nil {
			errorObj["details"] = se.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult wraps data as a JSON tool result.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
