package taskbridge

import (
	"context"

	"github.com/khaledhikmat/taskworker-imageclassifier/model"
)

type IService interface {
	// Take asks for one pending task. A nil task with a nil error means
	// the queue is empty.
	Take(ctx context.Context, worker string) (*model.Task, error)
	// FetchFile downloads the task's file into the scratch folder and
	// returns its path. The caller removes it.
	FetchFile(ctx context.Context, taskID string) (string, error)
	Complete(ctx context.Context, taskID string, report model.Report) error
}
