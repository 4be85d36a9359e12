package model

import (
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
)

const (
	TaskType   = "classifyimage"
	ModelName  = "MobileNetV3Large"
	Repository = "https://github.com/khaledhikmat/taskworker-imageclassifier"
	Version    = "1.0.0"
)

type CustomError struct {
	Processor  string                 `json:"processor"`
	Inner      error                  `json:"innerError"`
	Message    string                 `json:"message"`
	StackTrace string                 `json:"stackTrace"`
	Misc       map[string]interface{} `json:"misc"`
}

func (e CustomError) Error() string {
	if e.Inner == nil {
		return fmt.Sprintf("%s: %s", e.Processor, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Processor, e.Message, e.Inner)
}

func (e CustomError) Unwrap() error {
	return e.Inner
}

func GenError(proc string, err error, misc map[string]interface{}, messagef string, args ...interface{}) CustomError {
	return CustomError{
		Processor:  proc,
		Inner:      err,
		Message:    fmt.Sprintf(messagef, args...),
		StackTrace: string(debug.Stack()),
		Misc:       misc,
	}
}

// Count accepts both JSON numbers and numeric strings. The task bridge
// forwards whatever the task creator submitted.
type Count int

func (c *Count) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*c = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	if s == "" {
		*c = 0
		return nil
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return fmt.Errorf("invalid count %q: %w", s, err)
		}
		n = int(f)
	}

	*c = Count(n)
	return nil
}

type TaskData struct {
	TargetLanguage      string `json:"targetlanguage"`
	NumberOfPredictions Count  `json:"numberofpredictions"`
}

type Task struct {
	ID   string   `json:"id"`
	Data TaskData `json:"data"`
}

type TakeRequest struct {
	Type   string `json:"type"`
	Worker string `json:"worker"`
}

type Prediction struct {
	Class       string  `json:"class"`
	Name        string  `json:"name"`
	Probability float64 `json:"probability"`
}

// Result carries either Predictions or Error, never both.
type Result struct {
	Predictions []Prediction `json:"predictions,omitempty"`
	Error       string       `json:"error,omitempty"`
	Duration    float64      `json:"duration"`
	Repository  string       `json:"repository"`
	Version     string       `json:"version"`
	Library     string       `json:"library"`
	Model       string       `json:"model"`
}

func ErrorResult(err error) Result {
	return Result{Error: err.Error()}
}

func (r Result) Failed() bool {
	return r.Error != ""
}

type Report struct {
	Result Result `json:"result"`
}

type WorkerStats struct {
	RunID       string  `json:"runId"`
	Worker      string  `json:"worker"`
	Tasks       int     `json:"tasks"`
	Failures    int     `json:"failures"`
	Errors      int     `json:"errors"`
	Idles       int     `json:"idles"`
	Uptime      int64   `json:"uptime"`
	AvgProcTime float64 `json:"avgProcTime"`
	Timestamp   int64   `json:"timestamp"`
}
