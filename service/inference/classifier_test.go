package inference

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khaledhikmat/taskworker-imageclassifier/model"
	"github.com/khaledhikmat/taskworker-imageclassifier/service/labels"
)

func testLabels(t *testing.T) *labels.Set {
	t.Helper()

	en, err := labels.Parse("en", strings.NewReader(
		"n01440764 tench\nn01443537 goldfish\nn01484850 great white shark\nn01491361 tiger shark\n"))
	require.NoError(t, err)

	// tiger shark is missing in german
	de, err := labels.Parse("de", strings.NewReader(
		"n01440764 Schleie\nn01443537 Goldfisch\nn01484850 Weißer Hai\n"))
	require.NoError(t, err)

	set, err := labels.NewSet("en", en, de)
	require.NoError(t, err)
	return set
}

func writeJPEG(t *testing.T, w, h int) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}

	path := filepath.Join(t.TempDir(), "image.jpg")
	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()

	require.NoError(t, jpeg.Encode(file, img, &jpeg.Options{Quality: 90}))
	return path
}

func TestClassify(t *testing.T) {
	svc := New(NewFakeScorer([]float32{0.1, 0.6, 0.05, 0.25}, nil), testLabels(t))
	path := writeJPEG(t, 64, 48)

	result := svc.Classify(context.Background(), path, "en", 3)
	require.Empty(t, result.Error)
	require.Len(t, result.Predictions, 3)

	assert.Equal(t, "n01443537", result.Predictions[0].Class)
	assert.Equal(t, "goldfish", result.Predictions[0].Name)
	assert.InDelta(t, 0.6, result.Predictions[0].Probability, 1e-6)
	assert.Equal(t, "tiger shark", result.Predictions[1].Name)
	assert.Equal(t, "tench", result.Predictions[2].Name)

	for i := 1; i < len(result.Predictions); i++ {
		assert.GreaterOrEqual(t, result.Predictions[i-1].Probability, result.Predictions[i].Probability)
	}
}

func TestClassifyLocalizes(t *testing.T) {
	svc := New(NewFakeScorer([]float32{0.1, 0.6, 0.25, 0.05}, nil), testLabels(t))
	path := writeJPEG(t, 32, 32)

	result := svc.Classify(context.Background(), path, "de", 2)
	require.Empty(t, result.Error)
	assert.Equal(t, "Goldfisch", result.Predictions[0].Name)
	assert.Equal(t, "Weißer Hai", result.Predictions[1].Name)
}

func TestClassifyUnknownClass(t *testing.T) {
	svc := New(NewFakeScorer([]float32{0.1, 0.2, 0.05, 0.65}, nil), testLabels(t))
	path := writeJPEG(t, 32, 32)

	result := svc.Classify(context.Background(), path, "de", 1)
	assert.Nil(t, result.Predictions)
	assert.Contains(t, result.Error, labels.ErrUnknownClass.Error())
}

func TestClassifyClampsTopK(t *testing.T) {
	svc := New(NewFakeScorer([]float32{0.1, 0.6, 0.05, 0.25}, nil), testLabels(t))
	path := writeJPEG(t, 32, 32)

	result := svc.Classify(context.Background(), path, "en", 10)
	require.Empty(t, result.Error)
	assert.Len(t, result.Predictions, 4)
}

func TestClassifyErrors(t *testing.T) {
	set := testLabels(t)
	good := writeJPEG(t, 32, 32)

	corrupt := filepath.Join(t.TempDir(), "corrupt")
	require.NoError(t, os.WriteFile(corrupt, []byte("\xff\xd8\xff\xe0 definitely not a jpeg"), 0644))

	tests := []struct {
		name     string
		scorer   Scorer
		path     string
		language string
		topK     int
		contains string
	}{
		{"zero topK", NewFakeScorer([]float32{1, 0, 0, 0}, nil), good, "en", 0, ErrInvalidTopK.Error()},
		{"negative topK", NewFakeScorer([]float32{1, 0, 0, 0}, nil), good, "en", -2, ErrInvalidTopK.Error()},
		{"unsupported language", NewFakeScorer([]float32{1, 0, 0, 0}, nil), good, "fr", 1, labels.ErrUnsupportedLanguage.Error()},
		{"missing file", NewFakeScorer([]float32{1, 0, 0, 0}, nil), filepath.Join(t.TempDir(), "nope"), "en", 1, "reading image"},
		{"corrupt image", NewFakeScorer([]float32{1, 0, 0, 0}, nil), corrupt, "en", 1, "decoding image"},
		{"backend failure", NewFakeScorer(nil, errors.New("session closed")), good, "en", 1, "session closed"},
		{"score count mismatch", NewFakeScorer([]float32{1, 0}, nil), good, "en", 1, "2 scores for 4 classes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := New(tt.scorer, set).Classify(context.Background(), tt.path, tt.language, tt.topK)
			assert.Nil(t, result.Predictions)
			assert.Contains(t, result.Error, tt.contains)
		})
	}
}

type panickingScorer struct{}

func (panickingScorer) Score(context.Context, image.Image) ([]float32, error) {
	panic("tensor shape mismatch")
}
func (panickingScorer) Library() string { return "panic" }
func (panickingScorer) Close()          {}

func TestClassifyRecoversPanic(t *testing.T) {
	svc := New(panickingScorer{}, testLabels(t))

	result := svc.Classify(context.Background(), writeJPEG(t, 16, 16), "en", 1)
	assert.Contains(t, result.Error, "tensor shape mismatch")
}

func TestClassifyCancelled(t *testing.T) {
	svc := New(NewFakeScorer([]float32{1, 0, 0, 0}, nil), testLabels(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := svc.Classify(ctx, writeJPEG(t, 16, 16), "en", 1)
	assert.Contains(t, result.Error, context.Canceled.Error())
}

func TestClassifyNonFiniteScores(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))

	for _, scores := range [][]float32{
		{nan, 0.3, 0.1, 0.05},
		{inf, 1, 0, 0},
		{inf, inf, 0, 0},
		{float32(math.Inf(-1)), 1, 2, 3},
	} {
		svc := New(NewFakeScorer(scores, nil), testLabels(t))

		result := svc.Classify(context.Background(), writeJPEG(t, 16, 16), "en", 2)
		assert.Equal(t, ErrNonFiniteScores.Error(), result.Error)
		assert.Nil(t, result.Predictions)

		_, err := json.Marshal(model.Report{Result: result})
		assert.NoError(t, err)
	}
}

func TestToProbabilitiesLargeLogits(t *testing.T) {
	probs := toProbabilities([]float32{math.MaxFloat32, -math.MaxFloat32, 0})
	for _, p := range probs {
		assert.False(t, math.IsNaN(p))
	}
	assert.InDelta(t, 1.0, probs[0], 1e-9)
}

func TestTopK(t *testing.T) {
	scores := []float64{0.2, 0.5, 0.2, 0.1}

	assert.Equal(t, []int{1, 0, 2}, TopK(scores, 3))
	assert.Equal(t, []int{1, 0, 2, 3}, TopK(scores, 9))
	assert.Empty(t, TopK(scores, 0))
}

func TestToProbabilities(t *testing.T) {
	probs := toProbabilities([]float32{0.7, 0.2, 0.1})
	assert.InDelta(t, 0.7, probs[0], 1e-6)

	logits := toProbabilities([]float32{2, 1, -1})
	sum := 0.0
	for _, p := range logits {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Greater(t, logits[0], logits[1])
}
