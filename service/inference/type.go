package inference

import (
	"context"
	"errors"
	"image"

	"github.com/khaledhikmat/taskworker-imageclassifier/model"
)

var (
	ErrInvalidTopK     = errors.New("invalid number of predictions")
	ErrNonFiniteScores = errors.New("model produced non-finite scores")
)

// IService classifies image files. Classify never fails: problems are
// reported through Result.Error.
type IService interface {
	Classify(ctx context.Context, filePath, language string, topK int) model.Result
	Library() string
	Close()
}

// Scorer runs the pretrained model on one decoded image and returns one
// score per class, in model output order.
type Scorer interface {
	Score(ctx context.Context, img image.Image) ([]float32, error)
	Library() string
	Close()
}
