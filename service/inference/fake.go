package inference

import (
	"context"
	"image"
)

type fakeScorer struct {
	scores []float32
	err    error
	calls  int
}

// NewFakeScorer returns a Scorer that answers every image with scores, or
// with err when it is set.
func NewFakeScorer(scores []float32, err error) Scorer {
	return &fakeScorer{
		scores: scores,
		err:    err,
	}
}

func (s *fakeScorer) Score(_ context.Context, _ image.Image) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]float32, len(s.scores))
	copy(out, s.scores)
	return out, nil
}

func (s *fakeScorer) Library() string {
	return "fake-1.0"
}

func (s *fakeScorer) Close() {}
