package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/colorbook/internal/errors"
	"github.com/hpungsan/colorbook/internal/narration"
)

// ReadStoryInput contains parameters for the ReadStory operation.
type ReadStoryInput struct {
	// Text is read instead of the selected entry's story when set.
	Text string
	// Wait blocks until the reading finishes, fails, or is cancelled.
	Wait bool
}

// ReadStoryOutput contains the result of the ReadStory operation.
type ReadStoryOutput struct {
	SessionID string             `json:"session_id"`
	Status    narration.Snapshot `json:"status"`
}

// ReadStory starts reading a story aloud, superseding any reading already
// in progress. The story image shown during playback is the selected
// entry's.
func ReadStory(ctx context.Context, s *Studio, input ReadStoryInput) (*ReadStoryOutput, error) {
	if s.Narrator == nil {
		return nil, errors.NewResourceUnavailable("narration", nil)
	}
	text := strings.TrimSpace(input.Text)
	if text == "" {
		rec, _, ok := s.History.Selected()
		if !ok {
			return nil, errors.NewNoSelection("read")
		}
		text = strings.TrimSpace(rec.StoryText)
		if text == "" {
			return nil, errors.NewInvalidRequest("the selected entry has no story yet")
		}
	}

	id, err := s.Narrator.Read(ctx, text)
	if err != nil {
		return nil, err
	}
	if input.Wait {
		if err := s.Narrator.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return &ReadStoryOutput{SessionID: id, Status: s.Narrator.Snapshot()}, nil
}

// StopStory cancels the current reading, if any.
func StopStory(s *Studio) (narration.Snapshot, error) {
	if s.Narrator == nil {
		return narration.Snapshot{}, errors.NewResourceUnavailable("narration", nil)
	}
	s.Narrator.Cancel()
	return s.Narrator.Snapshot(), nil
}

// NarrationStatus reports the narration state.
func NarrationStatus(s *Studio) (narration.Snapshot, error) {
	if s.Narrator == nil {
		return narration.Snapshot{}, errors.NewResourceUnavailable("narration", nil)
	}
	return s.Narrator.Snapshot(), nil
}
