package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/natefinch/lumberjack"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/taskworker-imageclassifier/mode"
	"github.com/khaledhikmat/taskworker-imageclassifier/model"
	"github.com/khaledhikmat/taskworker-imageclassifier/pipeline"
	"github.com/khaledhikmat/taskworker-imageclassifier/service/config"
	"github.com/khaledhikmat/taskworker-imageclassifier/service/data"
	"github.com/khaledhikmat/taskworker-imageclassifier/service/inference"
	"github.com/khaledhikmat/taskworker-imageclassifier/service/inference/onnx"
	"github.com/khaledhikmat/taskworker-imageclassifier/service/inference/opencv"
	"github.com/khaledhikmat/taskworker-imageclassifier/service/labels"
	"github.com/khaledhikmat/taskworker-imageclassifier/service/lgr"
	"github.com/khaledhikmat/taskworker-imageclassifier/service/metrics"
	"github.com/khaledhikmat/taskworker-imageclassifier/service/storage"
	"github.com/khaledhikmat/taskworker-imageclassifier/service/taskbridge"
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCtx := context.Background()
	canxCtx, canxFn := context.WithCancel(rootCtx)
	defer canxFn()

	// Hook up a signal handler to cancel the context
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		lgr.Logger.Info(
			"received kill signal",
			slog.Any("signal", sig),
		)
		canxFn()
	}()

	// Load env vars if we are in DEV mode
	if os.Getenv("RUN_TIME_ENV") == "dev" || os.Getenv("RUN_TIME_ENV") == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			lgr.Logger.Error("error loading .env file", slog.Any("error", xerrors.New(err.Error())))
			return 1
		}
	}

	settings, err := config.Load(os.Args[1:], os.Stderr)
	if errors.Is(err, config.ErrVersionRequested) {
		fmt.Println(model.Version)
		return 0
	}
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	logCloser, err := lgr.Configure(lgr.Options{
		Level:  settings.Log.Level,
		Format: settings.Log.Format,
		File:   settings.Log.File,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	defer logCloser.Close()

	cfgSvc := config.New(settings)
	lgr.Logger.Info("image classifier starting",
		slog.String("version", model.Version),
		slog.String("worker", cfgSvc.GetWorkerName()),
		slog.String("apiURL", cfgSvc.GetAPIURL()),
		slog.String("backend", cfgSvc.GetModelParameters().Backend),
	)

	svcs, closeFn, err := buildServices(canxCtx, cfgSvc)
	if err != nil {
		lgr.Logger.Error("startup failed", slog.Any("error", xerrors.New(err.Error())))
		return 1
	}
	defer closeFn()

	if addr := cfgSvc.GetMetricsAddr(); addr != "" {
		go func() {
			err := metrics.Serve(canxCtx, addr, metrics.Status{
				Worker:  cfgSvc.GetWorkerName(),
				Version: model.Version,
				Library: svcs.InferenceSvc.Library(),
			})
			if err != nil {
				lgr.Logger.Error("status server failed", slog.Any("error", xerrors.New(err.Error())))
			}
		}()
	}

	var modeProc mode.Processor = mode.Worker
	if settings.Once {
		modeProc = mode.Once
	}

	// Create mode processor result
	modeProcResult := make(chan error, 1)

	// Start the mode processor
	go func() {
		modeProcResult <- modeProc(canxCtx, svcs)
	}()

	// Wait for cancellation or the mode proc
	select {
	case <-canxCtx.Done():
		lgr.Logger.Info(
			"worker context cancelled",
		)

	case err := <-modeProcResult:
		if err != nil {
			lgr.Logger.Info(
				"worker mode processor exited",
				slog.Any("error", xerrors.New(err.Error())),
			)
			return 1
		}
		return 0
	}

	lgr.Logger.Info(
		"worker is waiting for the current cycle to finish",
	)

	// A cycle in flight may still be reporting; give it a bounded amount of time
	timer := time.NewTimer(cfgSvc.GetModeMaxShutdownTime())
	defer timer.Stop()

	select {
	case <-timer.C:
		lgr.Logger.Info(
			"worker shutdown waiting period expired. Exiting now",
			slog.Duration("period", cfgSvc.GetModeMaxShutdownTime()),
		)
	case err := <-modeProcResult:
		if err != nil {
			lgr.Logger.Info(
				"worker mode processor exited",
				slog.Any("error", xerrors.New(err.Error())),
			)
		}
	}

	return 0
}

// buildServices performs every startup step whose failure is fatal: the
// scratch folder, the label tables and the model.
func buildServices(ctx context.Context, cfgSvc config.IService) (pipeline.ServicesFactory, func(), error) {
	if err := os.MkdirAll(cfgSvc.GetScratchFolder(), 0755); err != nil {
		return pipeline.ServicesFactory{}, nil, fmt.Errorf("creating scratch folder: %w", err)
	}

	client := &http.Client{Timeout: cfgSvc.GetHTTPTimeout()}

	dataSvc := data.NewFilesDB(cfgSvc)

	lgr.Logger.Info("loading labels")
	labelSet, err := dataSvc.RetrieveLabels()
	if err != nil {
		return pipeline.ServicesFactory{}, nil, fmt.Errorf("loading labels: %w", err)
	}

	storageSvc := storage.NewModelCache(cfgSvc, &http.Client{})
	modelPath, err := storageSvc.EnsureModel(ctx)
	if err != nil {
		return pipeline.ServicesFactory{}, nil, fmt.Errorf("preparing model: %w", err)
	}

	lgr.Logger.Info("loading model", slog.String("path", modelPath))
	scorer, err := newScorer(cfgSvc.GetModelParameters(), modelPath, labelSet)
	if err != nil {
		return pipeline.ServicesFactory{}, nil, fmt.Errorf("loading model: %w", err)
	}
	inferenceSvc := inference.New(scorer, labelSet)

	var journal io.Writer
	var journalCloser io.Closer
	if file := cfgSvc.GetLogParameters().ReportsJournal; file != "" {
		jl := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10, // MB
			MaxBackups: 5,
			MaxAge:     7,    // days
			Compress:   true, // compress old logs
		}
		journal = jl
		journalCloser = jl
	}

	svcs := pipeline.ServicesFactory{
		CfgSvc:        cfgSvc,
		DataSvc:       dataSvc,
		InferenceSvc:  inferenceSvc,
		TaskBridgeSvc: taskbridge.NewHTTP(cfgSvc, client),
		Journal:       journal,
	}

	closeFn := func() {
		inferenceSvc.Close()
		dataSvc.Close()
		if journalCloser != nil {
			journalCloser.Close()
		}
	}

	return svcs, closeFn, nil
}

func newScorer(params config.ModelParameters, modelPath string, labelSet *labels.Set) (inference.Scorer, error) {
	params.Path = modelPath

	switch params.Backend {
	case config.ONNXBackend:
		return onnx.New(params, labelSet.NumClasses())
	default:
		return opencv.New(params)
	}
}
