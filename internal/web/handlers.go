package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hpungsan/colorbook/internal/errors"
	"github.com/hpungsan/colorbook/internal/ops"
	"github.com/hpungsan/colorbook/internal/raster"
)

// maxBodyBytes bounds request bodies; uploads are single images.
const maxBodyBytes = 20 << 20

// Handlers contains HTTP route handlers for the web UI and API.
type Handlers struct {
	studio   *ops.Studio
	renderer *Renderer
}

// --- pages ---

// HandleHistoryPage handles GET /history.
func (h *Handlers) HandleHistoryPage(w http.ResponseWriter, r *http.Request) {
	list := ops.ListHistory(h.studio)
	status := ""
	if snap, err := ops.NarrationStatus(h.studio); err == nil {
		status = snap.State.String()
	}
	h.renderer.renderPage(w, "history", HistoryPageData{
		PageData: PageData{Title: "History", Version: h.renderer.version, Nav: "history"},
		Items:    list.Items,
		Capacity: list.Capacity,
		Status:   status,
	})
}

// HandleStoryPage handles GET /history/{index} and renders the entry's story.
func (h *Handlers) HandleStoryPage(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	rec, err := ops.ShowHistory(h.studio, &index)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	sel := h.studio.History.SelectedIndex()
	h.renderer.renderPage(w, "story", StoryPageData{
		PageData:    PageData{Title: "Story", Version: h.renderer.version, Nav: "story"},
		Index:       index,
		ID:          rec.ID,
		Description: rec.RecognizedDescription,
		Story:       h.renderer.renderMarkdown(rec.StoryText),
		HasStory:    rec.StoryText != "",
		HasImage:    len(rec.StoryImage) > 0,
		Selected:    sel != nil && *sel == index,
	})
}

// --- generation ---

// HandleSuggest handles GET /api/idea.
func (h *Handlers) HandleSuggest(w http.ResponseWriter, r *http.Request) {
	out, err := ops.Suggest(r.Context(), h.studio)
	h.respond(w, r, out, err)
}

// HandleGenerate handles POST /api/generate. An image body replaces the
// sketch first.
func (h *Handlers) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	body, err := readImageBody(w, r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	out, err := ops.Generate(r.Context(), h.studio, ops.GenerateInput{Sketch: body})
	h.respondStatus(w, r, http.StatusCreated, out, err)
}

// HandlePhoto handles POST /api/photo. An image body is used instead of the camera.
func (h *Handlers) HandlePhoto(w http.ResponseWriter, r *http.Request) {
	body, err := readImageBody(w, r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	out, err := ops.GenerateFromPhoto(r.Context(), h.studio, ops.PhotoInput{Photo: body})
	h.respondStatus(w, r, http.StatusCreated, out, err)
}

type indexRequest struct {
	Index *int `json:"index"`
}

// HandleRegenerate handles POST /api/regenerate.
func (h *Handlers) HandleRegenerate(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := ops.Regenerate(r.Context(), h.studio, ops.RegenerateInput{Index: req.Index})
	h.respond(w, r, out, err)
}

// --- canvas ---

type fillRequest struct {
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Color  string `json:"color"`
	Target string `json:"target"`
}

// HandleFill handles POST /api/canvas/fill.
func (h *Handlers) HandleFill(w http.ResponseWriter, r *http.Request) {
	var req fillRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := ops.Fill(r.Context(), h.studio, ops.FillInput{X: req.X, Y: req.Y, Color: req.Color, Target: req.Target})
	h.respond(w, r, out, err)
}

type brushRequest struct {
	Points [][]float64 `json:"points"`
	Color  string      `json:"color"`
	Radius float64     `json:"radius"`
	Target string      `json:"target"`
}

// HandleBrush handles POST /api/canvas/brush. Points are [x, y] pairs.
func (h *Handlers) HandleBrush(w http.ResponseWriter, r *http.Request) {
	var req brushRequest
	if !h.decode(w, r, &req) {
		return
	}
	points := make([]raster.Point, len(req.Points))
	for i, p := range req.Points {
		if len(p) != 2 {
			h.renderer.renderError(w, r, errors.NewInvalidRequest(fmt.Sprintf("point %d must be [x, y]", i)))
			return
		}
		points[i] = raster.Point{X: p[0], Y: p[1]}
	}
	out, err := ops.Brush(r.Context(), h.studio, ops.BrushInput{
		Points: points,
		Color:  req.Color,
		Radius: req.Radius,
		Target: req.Target,
	})
	h.respond(w, r, out, err)
}

// HandleCommit handles POST /api/canvas/commit.
func (h *Handlers) HandleCommit(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if !h.decode(w, r, &req) {
		return
	}
	err := ops.Commit(r.Context(), h.studio, ops.CommitInput{Index: req.Index})
	h.respond(w, r, map[string]bool{"committed": err == nil}, err)
}

// HandleCanvasImage handles GET /api/canvas/{target}.
func (h *Handlers) HandleCanvasImage(w http.ResponseWriter, r *http.Request) {
	data, err := ops.CanvasImage(h.studio, chi.URLParam(r, "target"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	writePNG(w, data)
}

// HandleLoadCanvas handles PUT /api/canvas/{target} (image body) and
// DELETE /api/canvas/{target} (clear).
func (h *Handlers) HandleLoadCanvas(w http.ResponseWriter, r *http.Request) {
	var body []byte
	if r.Method == http.MethodPut {
		var err error
		if body, err = readImageBody(w, r); err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
		if len(body) == 0 {
			h.renderer.renderError(w, r, errors.NewInvalidRequest("image body is required"))
			return
		}
	}
	err := ops.LoadCanvas(r.Context(), h.studio, ops.LoadCanvasInput{Target: chi.URLParam(r, "target"), Image: body})
	h.respond(w, r, map[string]bool{"ok": err == nil}, err)
}

// --- story ---

// HandleCreateStory handles POST /api/story.
func (h *Handlers) HandleCreateStory(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := ops.CreateStory(r.Context(), h.studio, ops.StoryInput{Index: req.Index})
	h.respond(w, r, out, err)
}

type readRequest struct {
	Text string `json:"text"`
}

// HandleReadStory handles POST /api/story/read. Reading continues after
// the response; poll /api/story/status.
func (h *Handlers) HandleReadStory(w http.ResponseWriter, r *http.Request) {
	var req readRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := ops.ReadStory(r.Context(), h.studio, ops.ReadStoryInput{Text: req.Text})
	h.respondStatus(w, r, http.StatusAccepted, out, err)
}

// HandleStopStory handles POST /api/story/stop.
func (h *Handlers) HandleStopStory(w http.ResponseWriter, r *http.Request) {
	snap, err := ops.StopStory(h.studio)
	h.respond(w, r, snap, err)
}

// HandleNarrationStatus handles GET /api/story/status.
func (h *Handlers) HandleNarrationStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := ops.NarrationStatus(h.studio)
	h.respond(w, r, snap, err)
}

// --- video ---

type videoRequest struct {
	Index *int   `json:"index"`
	Path  string `json:"path"`
}

// HandleExportVideo handles POST /api/video.
func (h *Handlers) HandleExportVideo(w http.ResponseWriter, r *http.Request) {
	var req videoRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := ops.ExportVideo(r.Context(), h.studio, ops.ExportVideoInput{Index: req.Index, Path: req.Path})
	h.respondStatus(w, r, http.StatusCreated, out, err)
}

// --- history ---

// HandleListHistory handles GET /api/history.
func (h *Handlers) HandleListHistory(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, ops.ListHistory(h.studio))
}

// HandleShowHistory handles GET /api/history/{index}.
func (h *Handlers) HandleShowHistory(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	rec, err := ops.ShowHistory(h.studio, &index)
	h.respond(w, r, rec, err)
}

// HandleRecordImage handles GET /api/history/{index}/image/{kind}.
func (h *Handlers) HandleRecordImage(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	data, err := ops.RecordImage(h.studio, &index, chi.URLParam(r, "kind"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	writePNG(w, data)
}

// HandleSelectHistory handles POST /api/history/{index}/select.
func (h *Handlers) HandleSelectHistory(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	err = ops.SelectHistory(r.Context(), h.studio, &index)
	h.respond(w, r, map[string]any{"selected": index}, err)
}

// HandleDeselect handles POST /api/history/deselect.
func (h *Handlers) HandleDeselect(w http.ResponseWriter, r *http.Request) {
	err := ops.SelectHistory(r.Context(), h.studio, nil)
	h.respond(w, r, map[string]any{"selected": nil}, err)
}

// HandleRemoveHistory handles DELETE /api/history/{index}.
func (h *Handlers) HandleRemoveHistory(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	err = ops.RemoveHistory(r.Context(), h.studio, index)
	h.respond(w, r, map[string]any{"removed": index}, err)
}

// HandleClearHistory handles DELETE /api/history.
func (h *Handlers) HandleClearHistory(w http.ResponseWriter, r *http.Request) {
	err := ops.ClearHistory(r.Context(), h.studio)
	h.respond(w, r, map[string]bool{"cleared": err == nil}, err)
}

type exportRequest struct {
	Path string `json:"path"`
}

// HandleExportHistory handles POST /api/history/export.
func (h *Handlers) HandleExportHistory(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := ops.ExportHistory(r.Context(), h.studio, ops.ExportHistoryInput{Path: req.Path})
	h.respondStatus(w, r, http.StatusCreated, out, err)
}

type importRequest struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
}

// HandleImportHistory handles POST /api/history/import.
func (h *Handlers) HandleImportHistory(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := ops.ImportHistory(r.Context(), h.studio, ops.ImportHistoryInput{Path: req.Path, Mode: ops.ImportMode(req.Mode)})
	h.respond(w, r, out, err)
}

// --- helpers ---

func (h *Handlers) respond(w http.ResponseWriter, r *http.Request, out any, err error) {
	h.respondStatus(w, r, http.StatusOK, out, err)
}

func (h *Handlers) respondStatus(w http.ResponseWriter, r *http.Request, status int, out any, err error) {
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, status, out)
}

// decode reads an optional JSON body into v. An empty body leaves v zero.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && err != io.EOF {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid JSON body: "+err.Error()))
		return false
	}
	return true
}

// readImageBody returns the request body when it is an image, nil when it
// is empty.
func readImageBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.NewInvalidRequest("request body too large or unreadable")
	}
	if len(data) == 0 {
		return nil, nil
	}
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") && ct != "application/octet-stream" {
		return nil, errors.NewInvalidRequest("body must be an image")
	}
	return data, nil
}

// pathIndex parses the {index} URL parameter.
func pathIndex(r *http.Request) (int, error) {
	s := chi.URLParam(r, "index")
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, errors.NewInvalidRequest("index must be a non-negative integer")
	}
	return v, nil
}

func writePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
