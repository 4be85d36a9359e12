package config

import (
	"time"
)

type staticService struct {
	settings Settings
}

func New(settings Settings) IService {
	return &staticService{
		settings: settings,
	}
}

func (svc *staticService) GetWorkerName() string {
	return svc.settings.Worker
}

func (svc *staticService) GetTaskBridgeURL() string {
	return svc.settings.TaskBridgeURL
}

func (svc *staticService) GetAPIURL() string {
	return svc.settings.TaskBridgeURL + "api/"
}

func (svc *staticService) GetIdleInterval() time.Duration {
	return svc.settings.IdleInterval
}

func (svc *staticService) GetHTTPTimeout() time.Duration {
	return svc.settings.HTTPTimeout
}

func (svc *staticService) GetModeMaxShutdownTime() time.Duration {
	return svc.settings.ShutdownTime
}

func (svc *staticService) GetScratchFolder() string {
	return svc.settings.ScratchFolder
}

func (svc *staticService) GetStateFolder() string {
	return svc.settings.StateFolder
}

func (svc *staticService) GetReferenceLanguage() string {
	return svc.settings.ReferenceLanguage
}

func (svc *staticService) GetLabelFiles() map[string]string {
	files := make(map[string]string, len(svc.settings.LabelFiles))
	for lang, path := range svc.settings.LabelFiles {
		files[lang] = path
	}
	return files
}

func (svc *staticService) GetModelParameters() ModelParameters {
	return svc.settings.Model
}

func (svc *staticService) GetMetricsAddr() string {
	return svc.settings.MetricsAddr
}

func (svc *staticService) GetLogParameters() LogParameters {
	return svc.settings.Log
}
