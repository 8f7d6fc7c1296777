package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hpungsan/colorbook/internal/errors"
)

const (
	anthropicService  = "description service"
	anthropicKeyEnv   = "ANTHROPIC_API_KEY"
	anthropicVersion  = "2023-06-01"
	defaultAnthropic  = "https://api.anthropic.com"
	descriptionTokens = 300
	storyTokens       = 1200
)

const (
	sketchSystem = "You look at children's line drawings. Reply with one short phrase naming what is drawn " +
		"(for example \"a cat sitting under a tree\"). No preamble."
	photoSystem = "You look at photos. Reply with one short phrase naming the main subject in a way a child " +
		"could draw it. No preamble."
	ideaSystem = "You suggest drawing ideas for children. Reply with one short, playful subject to draw. No preamble."
	storySystem = "You write gentle bedtime stories for young children. Write a short story of three or four " +
		"paragraphs in markdown about the given subject. Use a title as a level one heading."
)

// AnthropicDescriber implements Describer with the Anthropic Messages API.
type AnthropicDescriber struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewAnthropicDescriber creates a describer for model.
func NewAnthropicDescriber(apiKey, model string, logger *slog.Logger) *AnthropicDescriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnthropicDescriber{
		APIKey:     apiKey,
		Model:      model,
		BaseURL:    defaultAnthropic,
		HTTPClient: &http.Client{Timeout: 120 * time.Second},
		Logger:     logger,
	}
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// RecognizeSketch describes a line drawing.
func (a *AnthropicDescriber) RecognizeSketch(ctx context.Context, png []byte) (string, error) {
	if len(png) == 0 {
		return "", errors.NewEmptyCanvas()
	}
	return a.complete(ctx, sketchSystem, descriptionTokens, imageBlock(png), textBlock("What is drawn here?"))
}

// RecognizePhoto describes the subject of a camera photo.
func (a *AnthropicDescriber) RecognizePhoto(ctx context.Context, img []byte) (string, error) {
	if len(img) == 0 {
		return "", errors.NewInvalidRequest("photo is empty")
	}
	return a.complete(ctx, photoSystem, descriptionTokens, imageBlock(img), textBlock("What is the main subject?"))
}

// SuggestIdea proposes something to draw.
func (a *AnthropicDescriber) SuggestIdea(ctx context.Context) (string, error) {
	return a.complete(ctx, ideaSystem, descriptionTokens, textBlock("Suggest something to draw."))
}

// WriteStory writes a markdown story about description.
func (a *AnthropicDescriber) WriteStory(ctx context.Context, description string) (string, error) {
	if strings.TrimSpace(description) == "" {
		return "", errors.NewInvalidRequest("story subject is required")
	}
	return a.complete(ctx, storySystem, storyTokens, textBlock("Subject: "+description))
}

func (a *AnthropicDescriber) complete(ctx context.Context, system string, maxTokens int, blocks ...anthropicBlock) (string, error) {
	if a.APIKey == "" {
		return "", errors.NewMissingCredential(anthropicService, anthropicKeyEnv)
	}

	body, err := json.Marshal(anthropicRequest{
		Model:     a.Model,
		MaxTokens: maxTokens,
		System:    system,
		Messages:  []anthropicMessage{{Role: "user", Content: blocks}},
	})
	if err != nil {
		return "", errors.NewInternal(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(a.BaseURL, "/")+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", errors.NewInternal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return "", errors.NewServiceUnavailable(anthropicService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusError(anthropicService, anthropicKeyEnv, resp)
	}

	var result anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", errors.NewDecodeFailed("description response", err)
	}

	var sb strings.Builder
	for _, c := range result.Content {
		if c.Type == "text" || c.Type == "" {
			sb.WriteString(c.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", errors.NewDecodeFailed("description response", nil)
	}

	a.Logger.Debug("description received", "chars", len(text))
	return text, nil
}

func textBlock(s string) anthropicBlock {
	return anthropicBlock{Type: "text", Text: s}
}

func imageBlock(data []byte) anthropicBlock {
	mediaType := http.DetectContentType(data)
	switch mediaType {
	case "image/png", "image/jpeg", "image/gif", "image/webp":
	default:
		mediaType = "image/png"
	}
	return anthropicBlock{
		Type: "image",
		Source: &anthropicSource{
			Type:      "base64",
			MediaType: mediaType,
			Data:      base64.StdEncoding.EncodeToString(data),
		},
	}
}
