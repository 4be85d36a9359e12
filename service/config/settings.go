package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// minIdleInterval keeps a misconfigured worker from hammering the task bridge.
const minIdleInterval = 100 * time.Millisecond

// ErrVersionRequested is returned by Load when --version or -v was given.
var ErrVersionRequested = errors.New("version requested")

// Settings is read once at process entry and handed to the services through New.
type Settings struct {
	Worker            string
	TaskBridgeURL     string
	Once              bool
	IdleInterval      time.Duration
	HTTPTimeout       time.Duration
	ShutdownTime      time.Duration
	ScratchFolder     string
	StateFolder       string
	DataFolder        string
	ReferenceLanguage string
	LabelFiles        map[string]string
	Model             ModelParameters
	MetricsAddr       string
	Log               LogParameters
}

// Load parses the command line and fills the rest from the environment.
func Load(args []string, output io.Writer) (Settings, error) {
	fs := flag.NewFlagSet("taskworker-imageclassifier", flag.ContinueOnError)
	fs.SetOutput(output)

	s := Settings{}
	var showVersion bool
	fs.StringVar(&s.TaskBridgeURL, "taskbridgeurl", "", "Root URL of the API of the task bridge to use, e.g. https://taskbridge.ai/")
	fs.StringVar(&s.Worker, "worker", "", "Unique name of this worker")
	fs.BoolVar(&showVersion, "version", false, "Print the version and exit")
	fs.BoolVar(&showVersion, "v", false, "Print the version and exit")
	fs.BoolVar(&s.Once, "once", false, "Try to process a single task and exit")

	if err := fs.Parse(args); err != nil {
		return Settings{}, err
	}

	if showVersion {
		return Settings{}, ErrVersionRequested
	}

	var missing []string
	if s.TaskBridgeURL == "" {
		missing = append(missing, "--taskbridgeurl")
	}
	if s.Worker == "" {
		missing = append(missing, "--worker")
	}
	if len(missing) > 0 {
		return Settings{}, fmt.Errorf("the following arguments are required: %s", strings.Join(missing, ", "))
	}

	if !strings.HasSuffix(s.TaskBridgeURL, "/") {
		s.TaskBridgeURL += "/"
	}

	s.IdleInterval = getDurationEnv("IDLE_INTERVAL", 3*time.Second)
	if s.IdleInterval < minIdleInterval {
		return Settings{}, fmt.Errorf("IDLE_INTERVAL must be at least %s, got %s", minIdleInterval, s.IdleInterval)
	}
	s.HTTPTimeout = getDurationEnv("HTTP_TIMEOUT", 120*time.Second)
	s.ShutdownTime = getDurationEnv("SHUTDOWN_TIME", 5*time.Second)
	s.ScratchFolder = getEnv("SCRATCH_FOLDER", "./temp")
	s.StateFolder = getEnv("STATE_FOLDER", "./state")
	s.DataFolder = getEnv("DATA_FOLDER", "./data")
	s.ReferenceLanguage = getEnv("REFERENCE_LANGUAGE", "en")
	s.LabelFiles = map[string]string{
		"en": filepath.Join(s.DataFolder, "imagenet.en.names"),
		"de": filepath.Join(s.DataFolder, "imagenet.de.names"),
	}

	s.Model = ModelParameters{
		Backend:         getEnv("INFERENCE_BACKEND", GoCVBackend),
		Path:            getEnv("MODEL_PATH", "./models/mobilenetv3large.onnx"),
		URL:             getEnv("MODEL_URL", ""),
		ONNXLibraryPath: getEnv("ONNX_LIBRARY_PATH", ""),
		InputName:       getEnv("ONNX_INPUT_NAME", "input_1"),
		OutputName:      getEnv("ONNX_OUTPUT_NAME", "predictions"),
		InputLayout:     strings.ToLower(getEnv("MODEL_INPUT_LAYOUT", getEnv("ONNX_INPUT_LAYOUT", "nhwc"))),
		InputSize:       getIntEnv("MODEL_INPUT_SIZE", 224),
	}
	if s.Model.Backend != GoCVBackend && s.Model.Backend != ONNXBackend {
		return Settings{}, fmt.Errorf("unknown inference backend %q", s.Model.Backend)
	}
	if s.Model.InputLayout != "nhwc" && s.Model.InputLayout != "nchw" {
		return Settings{}, fmt.Errorf("unknown model input layout %q", s.Model.InputLayout)
	}

	s.MetricsAddr = getEnv("METRICS_ADDR", "")
	s.Log = LogParameters{
		Level:          getEnv("LOG_LEVEL", "info"),
		Format:         getEnv("LOG_FORMAT", "pretty"),
		File:           getEnv("LOG_FILE", ""),
		ReportsJournal: getEnv("REPORTS_JOURNAL", "reports.log"),
	}

	return s, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
