package services

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "golang.org/x/image/webp"

	"github.com/hpungsan/colorbook/internal/errors"
)

const (
	pollinationsService = "image service"
	defaultPollinations = "https://image.pollinations.ai"
)

// PollinationsGenerator implements ImageGenerator with the Pollinations
// image API, which needs no key.
type PollinationsGenerator struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
	// Attempts is the number of tries for network and 5xx failures.
	Attempts int
	// Backoff is multiplied by the attempt number between tries.
	Backoff time.Duration
}

// NewPollinationsGenerator creates a generator against baseURL.
func NewPollinationsGenerator(baseURL string, logger *slog.Logger) *PollinationsGenerator {
	if baseURL == "" {
		baseURL = defaultPollinations
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PollinationsGenerator{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 90 * time.Second},
		Logger:     logger,
		Attempts:   3,
		Backoff:    3 * time.Second,
	}
}

// GenerateOutline fetches an image for prompt at the given size. The bytes
// are checked to be a decodable image before they are returned.
func (p *PollinationsGenerator) GenerateOutline(ctx context.Context, prompt string, width, height int) ([]byte, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, errors.NewInvalidRequest("image prompt is required")
	}
	if width <= 0 || height <= 0 {
		return nil, errors.NewInvalidRequest("image size must be positive")
	}

	q := url.Values{}
	q.Set("width", strconv.Itoa(width))
	q.Set("height", strconv.Itoa(height))
	q.Set("nologo", "true")
	q.Set("model", "flux")
	imageURL := fmt.Sprintf("%s/prompt/%s?%s", strings.TrimRight(p.BaseURL, "/"), url.PathEscape(prompt), q.Encode())

	attempts := max(1, p.Attempts)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		var data []byte
		data, err = p.download(ctx, imageURL)
		if err == nil {
			p.Logger.Debug("image generated", "bytes", len(data), "attempt", attempt)
			return data, nil
		}
		if !retryable(err) || attempt == attempts {
			break
		}
		p.Logger.Warn("image generation failed, retrying", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return nil, errors.NewServiceUnavailable(pollinationsService, ctx.Err())
		case <-time.After(time.Duration(attempt) * p.Backoff):
		}
	}
	return nil, err
}

func (p *PollinationsGenerator) download(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	req.Header.Set("User-Agent", "colorbook/1.0")

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, errors.NewServiceUnavailable(pollinationsService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(pollinationsService, "", resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewServiceUnavailable(pollinationsService, err)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, errors.NewDecodeFailed("generated image", err)
	}
	return data, nil
}
