package config

import "time"

const (
	GoCVBackend = "gocv"
	ONNXBackend = "onnx"
)

type ModelParameters struct {
	Backend         string
	Path            string
	URL             string
	ONNXLibraryPath string
	InputName       string
	OutputName      string
	InputLayout     string
	InputSize       int
}

type LogParameters struct {
	Level          string
	Format         string
	File           string
	ReportsJournal string
}

type IService interface {
	GetWorkerName() string
	GetTaskBridgeURL() string
	GetAPIURL() string
	GetIdleInterval() time.Duration
	GetHTTPTimeout() time.Duration
	GetModeMaxShutdownTime() time.Duration
	GetScratchFolder() string
	GetStateFolder() string
	GetReferenceLanguage() string
	GetLabelFiles() map[string]string
	GetModelParameters() ModelParameters
	GetMetricsAddr() string
	GetLogParameters() LogParameters
}
