package inference

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/khaledhikmat/taskworker-imageclassifier/model"
	"github.com/khaledhikmat/taskworker-imageclassifier/service/labels"
	"github.com/khaledhikmat/taskworker-imageclassifier/service/lgr"
)

type classifierService struct {
	scorer Scorer
	labels *labels.Set
}

// New owns scorer: Close on the returned service closes it.
func New(scorer Scorer, labelSet *labels.Set) IService {
	return &classifierService{
		scorer: scorer,
		labels: labelSet,
	}
}

func (svc *classifierService) Library() string {
	return svc.scorer.Library()
}

func (svc *classifierService) Close() {
	svc.scorer.Close()
}

func (svc *classifierService) Classify(ctx context.Context, filePath, language string, topK int) (result model.Result) {
	defer func() {
		if r := recover(); r != nil {
			lgr.Logger.ErrorContext(ctx, "classifier recovered from panic",
				slog.String("file", filePath),
				slog.Any("panic", r),
			)
			result = model.ErrorResult(fmt.Errorf("classification panicked: %v", r))
		}
	}()

	predictions, err := svc.classify(ctx, filePath, language, topK)
	if err != nil {
		return model.ErrorResult(err)
	}

	return model.Result{Predictions: predictions}
}

func (svc *classifierService) classify(ctx context.Context, filePath, language string, topK int) ([]model.Prediction, error) {
	if topK < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTopK, topK)
	}

	if !svc.labels.Supports(language) {
		return nil, fmt.Errorf("%w: %q", labels.ErrUnsupportedLanguage, language)
	}

	img, err := LoadImage(filePath)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scores, err := svc.scorer.Score(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	if len(scores) != svc.labels.NumClasses() {
		return nil, fmt.Errorf("model produced %d scores for %d classes", len(scores), svc.labels.NumClasses())
	}

	if !finite(scores) {
		return nil, ErrNonFiniteScores
	}

	probabilities := toProbabilities(scores)
	predictions := make([]model.Prediction, 0, topK)
	for _, idx := range TopK(probabilities, topK) {
		id, err := svc.labels.ClassID(idx)
		if err != nil {
			return nil, err
		}

		name, err := svc.labels.Label(language, id)
		if err != nil {
			return nil, err
		}

		predictions = append(predictions, model.Prediction{
			Class:       id,
			Name:        name,
			Probability: probabilities[idx],
		})
	}

	return predictions, nil
}

// TopK returns the indexes of the k highest scores, highest first. Ties keep
// index order. k larger than len(scores) is clamped.
func TopK(scores []float64, k int) []int {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}

	sort.SliceStable(idx, func(a, b int) bool {
		return scores[idx[a]] > scores[idx[b]]
	})

	if k > len(idx) {
		k = len(idx)
	}
	if k < 0 {
		k = 0
	}
	return idx[:k]
}

func finite(scores []float32) bool {
	for _, s := range scores {
		v := float64(s)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// toProbabilities expects finite scores. It passes softmax outputs through and applies softmax to
// anything that is not already a distribution.
func toProbabilities(scores []float32) []float64 {
	out := make([]float64, len(scores))
	sum := 0.0
	isDistribution := true
	for i, s := range scores {
		v := float64(s)
		if math.IsNaN(v) || v < 0 || v > 1 {
			isDistribution = false
		}
		out[i] = v
		sum += v
	}

	if isDistribution && sum <= 1.01 {
		return out
	}

	maxScore := math.Inf(-1)
	for _, v := range out {
		if v > maxScore {
			maxScore = v
		}
	}

	total := 0.0
	for i, v := range out {
		out[i] = math.Exp(v - maxScore)
		total += out[i]
	}
	for i := range out {
		out[i] /= total
	}

	return out
}
