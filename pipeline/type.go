package pipeline

import (
	"io"

	"github.com/khaledhikmat/taskworker-imageclassifier/service/config"
	"github.com/khaledhikmat/taskworker-imageclassifier/service/data"
	"github.com/khaledhikmat/taskworker-imageclassifier/service/inference"
	"github.com/khaledhikmat/taskworker-imageclassifier/service/taskbridge"
)

type ServicesFactory struct {
	CfgSvc        config.IService
	DataSvc       data.IService
	InferenceSvc  inference.IService
	TaskBridgeSvc taskbridge.IService
	// Journal receives one JSON line per report. Nil disables journaling.
	Journal io.Writer
}

// Outcome describes a cycle that got as far as classifying a task.
type Outcome struct {
	TaskID   string
	Failed   bool
	Duration float64
}
