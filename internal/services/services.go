// Package services holds the clients for the external description, image
// generation, and text-to-speech services.
package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hpungsan/colorbook/internal/errors"
)

// Describer turns images into descriptions and descriptions into stories.
type Describer interface {
	RecognizeSketch(ctx context.Context, png []byte) (string, error)
	RecognizePhoto(ctx context.Context, img []byte) (string, error)
	SuggestIdea(ctx context.Context) (string, error)
	WriteStory(ctx context.Context, description string) (string, error)
}

// ImageGenerator produces images from text prompts.
type ImageGenerator interface {
	GenerateOutline(ctx context.Context, prompt string, width, height int) ([]byte, error)
}

// OutlinePrompt builds the coloring-book prompt for a description.
func OutlinePrompt(description string) string {
	return fmt.Sprintf("Coloring book page of %s. Thick clean black outlines on a pure white background, "+
		"no shading, no color, no gray fill, simple large shapes suitable for children to color, "+
		"no text, no border.", strings.TrimSpace(description))
}

// StoryImagePrompt builds the illustration prompt shown during narration.
func StoryImagePrompt(description string) string {
	return fmt.Sprintf("Warm storybook illustration of %s, soft watercolor, gentle light, "+
		"friendly and whimsical, no text.", strings.TrimSpace(description))
}

// statusError maps a failed HTTP response to an error category.
func statusError(service, envVar string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	cause := fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		if envVar != "" {
			return errors.NewMissingCredential(service, envVar)
		}
		return errors.NewServiceUnavailable(service, cause)
	case http.StatusTooManyRequests, http.StatusPaymentRequired:
		return errors.NewQuotaExceeded(service)
	default:
		return errors.NewServiceUnavailable(service, cause)
	}
}

// retryable reports whether a failed call is worth repeating.
func retryable(err error) bool {
	return errors.Is(err, errors.ErrServiceUnavailable)
}
