package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/khaledhikmat/taskworker-imageclassifier/model"
	"github.com/khaledhikmat/taskworker-imageclassifier/service/lgr"
	"github.com/khaledhikmat/taskworker-imageclassifier/service/metrics"
)

const processor = "task_cycle"

// CheckAndProcess takes one task, classifies its file and reports the result.
// It returns a nil outcome when no task was processed. Errors are
// model.CustomError values tagged with the failing step; the task is left
// as the task bridge sees it.
func CheckAndProcess(ctx context.Context, svcs ServicesFactory) (*Outcome, error) {
	startTime := time.Now()
	worker := svcs.CfgSvc.GetWorkerName()

	cycleID := uuid.New()
	ctx = trace.ContextWithSpanContext(ctx, cycleSpan(cycleID))

	task, err := svcs.TaskBridgeSvc.Take(ctx, worker)
	if err != nil {
		metrics.CycleErrorsTotal.WithLabelValues(metrics.StepTake).Inc()
		return nil, model.GenError(processor, err, map[string]interface{}{"worker": worker}, "error taking task")
	}

	if task == nil {
		metrics.TakeEmptyTotal.Inc()
		return nil, nil
	}

	metrics.LastTaskSeconds.SetToCurrentTime()

	logger := lgr.Logger.With(
		slog.String("cycle", cycleID.String()),
		slog.String("task", task.ID),
	)
	logger.InfoContext(ctx, "task taken",
		slog.String("targetLanguage", task.Data.TargetLanguage),
		slog.Int("numberOfPredictions", int(task.Data.NumberOfPredictions)),
	)

	misc := map[string]interface{}{"task": task.ID, "worker": worker}

	filePath, err := svcs.TaskBridgeSvc.FetchFile(ctx, task.ID)
	if err != nil {
		metrics.CycleErrorsTotal.WithLabelValues(metrics.StepFetch).Inc()
		return nil, model.GenError(processor, err, misc, "error fetching file")
	}

	// The scratch file goes away whatever happens from here on
	defer func() {
		if err := os.Remove(filePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.WarnContext(ctx, "error removing scratch file",
				slog.String("file", filePath),
				slog.Any("error", err),
			)
		}
	}()

	result := svcs.InferenceSvc.Classify(ctx, filePath, task.Data.TargetLanguage, int(task.Data.NumberOfPredictions))
	result.Duration = time.Since(startTime).Seconds()
	result.Repository = model.Repository
	result.Version = model.Version
	result.Library = svcs.InferenceSvc.Library()
	result.Model = model.ModelName

	if result.Failed() {
		logger.WarnContext(ctx, "classification failed", slog.String("reason", result.Error))
	} else {
		top := result.Predictions[0]
		logger.InfoContext(ctx, "classified",
			slog.String("class", top.Class),
			slog.String("name", top.Name),
			slog.Float64("probability", top.Probability),
			slog.Float64("duration", result.Duration),
		)
	}

	report := model.Report{Result: result}
	journalReport(ctx, svcs, task.ID, report)

	logger.InfoContext(ctx, "reporting result")
	if err := svcs.TaskBridgeSvc.Complete(ctx, task.ID, report); err != nil {
		metrics.CycleErrorsTotal.WithLabelValues(metrics.StepComplete).Inc()
		return nil, model.GenError(processor, err, misc, "error reporting result")
	}

	outcome := metrics.ResultSuccess
	if result.Failed() {
		outcome = metrics.ResultClassificationError
	}
	metrics.TasksProcessed.WithLabelValues(outcome).Inc()
	metrics.TaskDurationSeconds.Observe(result.Duration)

	logger.InfoContext(ctx, "done")
	return &Outcome{
		TaskID:   task.ID,
		Failed:   result.Failed(),
		Duration: result.Duration,
	}, nil
}

// cycleSpan derives the trace id from the cycle id so log records of one
// cycle can be joined on either.
func cycleSpan(cycleID uuid.UUID) trace.SpanContext {
	var spanID trace.SpanID
	random := uuid.New()
	copy(spanID[:], random[:len(spanID)])

	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID(cycleID),
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
}

func journalReport(ctx context.Context, svcs ServicesFactory, taskID string, report model.Report) {
	if svcs.Journal == nil {
		return
	}

	entry := map[string]interface{}{
		"time":   time.Now().Format(time.RFC3339),
		"worker": svcs.CfgSvc.GetWorkerName(),
		"task":   taskID,
		"report": report,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		lgr.Logger.WarnContext(ctx, "error marshaling report journal entry", slog.Any("error", err))
		return
	}

	if _, err := svcs.Journal.Write(append(data, '\n')); err != nil {
		lgr.Logger.WarnContext(ctx, "error writing report journal", slog.Any("error", fmt.Errorf("journal: %w", err)))
	}
}
