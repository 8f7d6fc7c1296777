package ops

import "context"

// SuggestOutput contains the result of the Suggest operation.
type SuggestOutput struct {
	Idea string `json:"idea"`
}

// Suggest asks for something to draw.
func Suggest(ctx context.Context, s *Studio) (*SuggestOutput, error) {
	idea, err := s.Describer.SuggestIdea(ctx)
	if err != nil {
		return nil, err
	}
	return &SuggestOutput{Idea: idea}, nil
}
