package mode

import (
	"context"
	"log/slog"

	"github.com/khaledhikmat/taskworker-imageclassifier/model"
	"github.com/khaledhikmat/taskworker-imageclassifier/pipeline"
	"github.com/khaledhikmat/taskworker-imageclassifier/service/data"
	"github.com/khaledhikmat/taskworker-imageclassifier/service/lgr"
)

type Processor func(canxCtx context.Context, svcs pipeline.ServicesFactory) error

func procStats(datasvc data.IService, stats model.WorkerStats) {
	err := datasvc.NewWorkerStats(stats)
	if err != nil {
		lgr.Logger.Error(
			"failed to store worker stats",
			slog.Any("stats", stats),
			slog.Any("error", err),
		)
	}
}

func procError(datasvc data.IService, err interface{}) {
	errTemp := datasvc.NewError(err)
	if errTemp != nil {
		lgr.Logger.Error(
			"failed to store error",
			slog.Any("error", errTemp),
		)
	}
}
