package opencv

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"strings"

	"gocv.io/x/gocv"

	"github.com/khaledhikmat/taskworker-imageclassifier/service/config"
	"github.com/khaledhikmat/taskworker-imageclassifier/service/inference"
	"github.com/khaledhikmat/taskworker-imageclassifier/service/lgr"
)

// scorer is not safe for concurrent use: gocv.Net is not thread-safe.
type scorer struct {
	net    gocv.Net
	size   int
	layout inference.Layout
}

func New(params config.ModelParameters) (inference.Scorer, error) {
	layout := inference.Layout(strings.ToLower(params.InputLayout))
	if layout != inference.NHWC && layout != inference.NCHW {
		return nil, fmt.Errorf("unsupported input layout %q", params.InputLayout)
	}

	if _, err := os.Stat(params.Path); err != nil {
		return nil, fmt.Errorf("no model at %s: %w", params.Path, err)
	}

	net := gocv.ReadNet(params.Path, "")
	if net.Empty() {
		return nil, fmt.Errorf("error reading model %s", params.Path)
	}

	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, fmt.Errorf("error setting backend: %w", err)
	}

	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, fmt.Errorf("error setting target: %w", err)
	}

	lgr.Logger.Info("opencv classifier loaded",
		slog.String("model", params.Path),
		slog.String("layout", string(layout)),
		slog.String("openCV", gocv.OpenCVVersion()),
		slog.String("gocv", gocv.Version()),
	)

	return &scorer{
		net:    net,
		size:   params.InputSize,
		layout: layout,
	}, nil
}

func (s *scorer) Score(_ context.Context, img image.Image) ([]float32, error) {
	blob, err := inputBlob(inference.Resize(img, s.size), s.layout)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	s.net.SetInput(blob, "")

	output := s.net.Forward("")
	defer output.Close()

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("reading output: %w", err)
	}

	scores := make([]float32, len(data))
	copy(scores, data)
	return scores, nil
}

// inputBlob builds a 1x3xHxW blob for NCHW models and a 1xHxWx3 one for NHWC
// models such as Keras exports. img is already resized in Go so sampling
// matches the Keras loader.
func inputBlob(img *image.RGBA, layout inference.Layout) (gocv.Mat, error) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()

	if layout == inference.NCHW {
		mat, err := gocv.ImageToMatRGB(img)
		if err != nil {
			return gocv.Mat{}, fmt.Errorf("converting image: %w", err)
		}
		defer mat.Close()

		if mat.Empty() {
			return gocv.Mat{}, fmt.Errorf("empty image")
		}

		return gocv.BlobFromImage(mat, 1.0, image.Pt(w, h), gocv.NewScalar(0, 0, 0, 0), true, false), nil
	}

	blob := gocv.NewMatWithSizes([]int{1, h, w, 3}, gocv.MatTypeCV32F)
	data, err := blob.DataPtrFloat32()
	if err != nil {
		blob.Close()
		return gocv.Mat{}, fmt.Errorf("allocating input: %w", err)
	}

	if err := inference.Tensor(img, inference.NHWC, data); err != nil {
		blob.Close()
		return gocv.Mat{}, err
	}

	return blob, nil
}

func (s *scorer) Library() string {
	return "opencv-" + gocv.OpenCVVersion()
}

func (s *scorer) Close() {
	s.net.Close()
}
