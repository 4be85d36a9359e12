package mode

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mdobak/go-xerrors"

	"github.com/khaledhikmat/taskworker-imageclassifier/model"
	"github.com/khaledhikmat/taskworker-imageclassifier/pipeline"
	"github.com/khaledhikmat/taskworker-imageclassifier/service/lgr"
)

// Worker keeps taking and processing tasks one at a time until the context
// is cancelled. When there is nothing to do, or a cycle fails, it idles for
// the configured interval before asking again.
func Worker(canxCtx context.Context, svcs pipeline.ServicesFactory) error {
	stats := model.WorkerStats{
		RunID:  uuid.NewString(),
		Worker: svcs.CfgSvc.GetWorkerName(),
	}
	beginTime := time.Now()
	var totalProcTime float64

	defer func() {
		stats.Uptime = int64(time.Since(beginTime).Seconds())
		if stats.Tasks > 0 {
			stats.AvgProcTime = totalProcTime / float64(stats.Tasks)
		}
		procStats(svcs.DataSvc, stats)
	}()

	idle := svcs.CfgSvc.GetIdleInterval()
	lgr.Logger.Info("ready and waiting for action",
		slog.String("worker", stats.Worker),
		slog.String("runId", stats.RunID),
		slog.Duration("idle", idle),
	)

	for {
		if canxCtx.Err() != nil {
			lgr.Logger.Info("worker context cancelled")
			return nil
		}

		outcome, err := pipeline.CheckAndProcess(canxCtx, svcs)
		if err != nil {
			if canxCtx.Err() != nil {
				lgr.Logger.Info("worker context cancelled during a cycle")
				return nil
			}

			stats.Errors++
			lgr.Logger.Error("error processing task",
				slog.Any("error", xerrors.New(err.Error())),
			)
			procError(svcs.DataSvc, err)
		}

		if outcome != nil {
			stats.Tasks++
			if outcome.Failed {
				stats.Failures++
			}
			totalProcTime += outcome.Duration
			continue
		}

		if err == nil {
			stats.Idles++
		}

		select {
		case <-canxCtx.Done():
			lgr.Logger.Info("worker context cancelled")
			return nil
		case <-time.After(idle):
		}
	}
}

// Once runs a single cycle. It is meant for cron style invocations.
func Once(canxCtx context.Context, svcs pipeline.ServicesFactory) error {
	outcome, err := pipeline.CheckAndProcess(canxCtx, svcs)
	if err != nil {
		procError(svcs.DataSvc, err)
		return err
	}

	if outcome == nil {
		lgr.Logger.Info("no task available")
		return nil
	}

	lgr.Logger.Info("task processed",
		slog.String("task", outcome.TaskID),
		slog.Bool("failed", outcome.Failed),
		slog.Float64("duration", outcome.Duration),
	)
	return nil
}
