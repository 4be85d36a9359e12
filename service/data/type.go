package data

import (
	"github.com/khaledhikmat/taskworker-imageclassifier/model"
	"github.com/khaledhikmat/taskworker-imageclassifier/service/labels"
)

type IService interface {
	RetrieveLabels() (*labels.Set, error)

	NewError(err interface{}) error
	NewWorkerStats(stats model.WorkerStats) error
	RetrieveErrors() ([]ErrorRecord, error)
	RetrieveWorkerStats() ([]model.WorkerStats, error)

	Close() error
}
