package onnx

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"runtime/debug"
	"strings"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/khaledhikmat/taskworker-imageclassifier/service/config"
	"github.com/khaledhikmat/taskworker-imageclassifier/service/inference"
	"github.com/khaledhikmat/taskworker-imageclassifier/service/lgr"
)

const modulePath = "github.com/yalue/onnxruntime_go"

// scorer reuses one pair of tensors for every run, so it serves a single
// caller at a time.
type scorer struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	size         int
	layout       inference.Layout
}

func New(params config.ModelParameters, numClasses int) (inference.Scorer, error) {
	if params.ONNXLibraryPath != "" {
		ort.SetSharedLibraryPath(params.ONNXLibraryPath)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	size := int64(params.InputSize)
	layout := inference.Layout(strings.ToLower(params.InputLayout))
	inputShape := ort.NewShape(1, size, size, 3)
	if layout == inference.NCHW {
		inputShape = ort.NewShape(1, 3, size, size)
	}
	outputShape := ort.NewShape(1, int64(numClasses))

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(params.Path,
		[]string{params.InputName}, []string{params.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	lgr.Logger.Info("onnx classifier loaded",
		slog.String("model", params.Path),
		slog.String("layout", string(layout)),
		slog.Int("classes", numClasses),
	)

	return &scorer{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		size:         params.InputSize,
		layout:       layout,
	}, nil
}

func (s *scorer) Score(_ context.Context, img image.Image) ([]float32, error) {
	resized := inference.Resize(img, s.size)
	if err := inference.Tensor(resized, s.layout, s.inputTensor.GetData()); err != nil {
		return nil, err
	}

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	outputData := s.outputTensor.GetData()
	scores := make([]float32, len(outputData))
	copy(scores, outputData)
	return scores, nil
}

func (s *scorer) Library() string {
	return "onnxruntime_go-" + moduleVersion()
}

func moduleVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, dep := range info.Deps {
		if dep.Path == modulePath {
			return dep.Version
		}
	}
	return "unknown"
}

func (s *scorer) Close() {
	if s.inputTensor != nil {
		s.inputTensor.Destroy()
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
	}
	if s.session != nil {
		s.session.Destroy()
	}
	ort.DestroyEnvironment()
}
