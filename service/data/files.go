package data

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/natefinch/lumberjack"

	"github.com/khaledhikmat/taskworker-imageclassifier/model"
	"github.com/khaledhikmat/taskworker-imageclassifier/service/config"
	"github.com/khaledhikmat/taskworker-imageclassifier/service/labels"
)

const (
	errorsEntity      = "errors"
	workerStatsEntity = "worker-stats"

	// errorsMaxSize is in MB. The journal rotates past it and keeps
	// errorsMaxBackups older files.
	errorsMaxSize    = 1
	errorsMaxBackups = 3
	maxWorkerStats   = 100
)

type ErrorRecord struct {
	Timestamp  int64                  `json:"timestamp"`
	Processor  string                 `json:"processor"`
	Inner      string                 `json:"innerError"`
	Message    string                 `json:"message"`
	StackTrace string                 `json:"stackTrace"`
	Misc       map[string]interface{} `json:"misc"`
}

type filesDBService struct {
	CfgSvc config.IService

	errorsOnce sync.Once
	errorsLog  *lumberjack.Logger
}

func NewFilesDB(cfgsvc config.IService) IService {
	return &filesDBService{
		CfgSvc: cfgsvc,
	}
}

// errorsJournal opens lazily so a worker that never fails never touches
// the state folder.
func (svc *filesDBService) errorsJournal() *lumberjack.Logger {
	svc.errorsOnce.Do(func() {
		svc.errorsLog = &lumberjack.Logger{
			Filename:   errorsFile(svc.CfgSvc),
			MaxSize:    errorsMaxSize,
			MaxBackups: errorsMaxBackups,
		}
	})
	return svc.errorsLog
}

func (svc *filesDBService) Close() error {
	return svc.errorsJournal().Close()
}

// RetrieveLabels loads every configured language. Any missing or malformed
// resource fails the whole load.
func (svc *filesDBService) RetrieveLabels() (*labels.Set, error) {
	files := svc.CfgSvc.GetLabelFiles()

	langs := make([]string, 0, len(files))
	for lang := range files {
		langs = append(langs, lang)
	}
	sort.Strings(langs)

	tables := make([]labels.Table, 0, len(langs))
	for _, lang := range langs {
		table, err := retrieveLabelTable(lang, files[lang])
		if err != nil {
			return nil, err
		}
		tables = append(tables, table)
	}

	return labels.NewSet(svc.CfgSvc.GetReferenceLanguage(), tables...)
}

func retrieveLabelTable(lang, path string) (labels.Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return labels.Table{}, fmt.Errorf("opening %s labels: %w", lang, err)
	}
	defer file.Close()

	return labels.Parse(lang, file)
}

func (svc *filesDBService) NewError(err interface{}) error {
	// Determine if the error is custom
	var customErr model.CustomError
	switch e := err.(type) {
	case model.CustomError:
		customErr = e
	case error:
		if !errors.As(e, &customErr) {
			customErr = model.CustomError{
				Processor:  "N/A",
				Inner:      e,
				Message:    e.Error(),
				StackTrace: "N/A",
			}
		}
	default:
		customErr = model.CustomError{
			Processor:  "N/A",
			Message:    fmt.Sprintf("%v", err),
			StackTrace: "N/A",
		}
	}

	inner := ""
	if customErr.Inner != nil {
		inner = customErr.Inner.Error()
	}

	errorData := ErrorRecord{
		Timestamp:  time.Now().Unix(),
		Processor:  customErr.Processor,
		Inner:      inner,
		Message:    customErr.Message,
		StackTrace: customErr.StackTrace,
		Misc:       customErr.Misc,
	}

	data, marshalErr := json.Marshal(errorData)
	if marshalErr != nil {
		return marshalErr
	}

	_, writeErr := svc.errorsJournal().Write(append(data, '\n'))
	return writeErr
}

func (svc *filesDBService) NewWorkerStats(stats model.WorkerStats) error {
	stats.Timestamp = time.Now().Unix()
	return newEntity(stats, workerStatsEntity, maxWorkerStats, svc.CfgSvc)
}

// RetrieveErrors reads the current journal file only, oldest first.
func (svc *filesDBService) RetrieveErrors() ([]ErrorRecord, error) {
	records := []ErrorRecord{}

	file, err := os.Open(errorsFile(svc.CfgSvc))
	if errors.Is(err, os.ErrNotExist) {
		return records, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), errorsMaxSize*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var record ErrorRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, scanner.Err()
}

func (svc *filesDBService) RetrieveWorkerStats() ([]model.WorkerStats, error) {
	return retrieveEntites[model.WorkerStats](workerStatsEntity, svc.CfgSvc)
}

func entityFile(filename string, cfgsvc config.IService) string {
	return filepath.Join(cfgsvc.GetStateFolder(), fmt.Sprintf("%s.json", filename))
}

func errorsFile(cfgsvc config.IService) string {
	return filepath.Join(cfgsvc.GetStateFolder(), fmt.Sprintf("%s.log", errorsEntity))
}

// newEntity appends entity and keeps only the newest limit entries.
func newEntity[T any](entity T, filename string, limit int, cfgsvc config.IService) error {
	entities, err := retrieveEntites[T](filename, cfgsvc)
	if err != nil {
		return err
	}

	entities = append(entities, entity)
	if len(entities) > limit {
		entities = entities[len(entities)-limit:]
	}

	data, err := json.MarshalIndent(entities, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfgsvc.GetStateFolder(), 0755); err != nil {
		return err
	}

	// Write the JSON data to the file (with truncation)
	return os.WriteFile(entityFile(filename, cfgsvc), data, 0644)
}

func retrieveEntites[T any](filename string, cfgsvc config.IService) ([]T, error) {
	entities := []T{}

	data, err := os.ReadFile(entityFile(filename, cfgsvc))
	if errors.Is(err, os.ErrNotExist) {
		return entities, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, &entities); err != nil {
		return nil, err
	}

	return entities, nil
}
