package data

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khaledhikmat/taskworker-imageclassifier/model"
	"github.com/khaledhikmat/taskworker-imageclassifier/service/config"
	"github.com/khaledhikmat/taskworker-imageclassifier/service/labels"
)

func newTestService(t *testing.T) (IService, string) {
	t.Helper()

	dir := t.TempDir()
	settings := config.Settings{
		StateFolder:       filepath.Join(dir, "state"),
		ReferenceLanguage: "en",
		LabelFiles: map[string]string{
			"en": filepath.Join(dir, "imagenet.en.names"),
			"de": filepath.Join(dir, "imagenet.de.names"),
		},
	}
	svc := NewFilesDB(config.New(settings))
	t.Cleanup(func() { _ = svc.Close() })
	return svc, dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestRetrieveLabels(t *testing.T) {
	svc, dir := newTestService(t)
	writeFile(t, filepath.Join(dir, "imagenet.en.names"), "n01440764 tench\nn01443537 goldfish\n")
	writeFile(t, filepath.Join(dir, "imagenet.de.names"), "n01440764 Schleie\nn01443537 Goldfisch\n")

	set, err := svc.RetrieveLabels()
	require.NoError(t, err)

	assert.Equal(t, []string{"de", "en"}, set.Languages())
	name, err := set.Label("de", "n01443537")
	require.NoError(t, err)
	assert.Equal(t, "Goldfisch", name)
}

func TestRetrieveLabelsMissingFile(t *testing.T) {
	svc, dir := newTestService(t)
	writeFile(t, filepath.Join(dir, "imagenet.en.names"), "n01440764 tench\n")

	_, err := svc.RetrieveLabels()
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestRetrieveLabelsMalformed(t *testing.T) {
	svc, dir := newTestService(t)
	writeFile(t, filepath.Join(dir, "imagenet.en.names"), "n01440764 tench\n")
	writeFile(t, filepath.Join(dir, "imagenet.de.names"), "bad\n")

	_, err := svc.RetrieveLabels()
	assert.True(t, errors.Is(err, labels.ErrMalformed))
}

func TestNewError(t *testing.T) {
	svc, _ := newTestService(t)

	require.NoError(t, svc.NewError(model.GenError("worker", errors.New("connection refused"), map[string]interface{}{"task": "abc"}, "take failed")))
	require.NoError(t, svc.NewError(errors.New("plain")))
	require.NoError(t, svc.NewError("not an error"))

	records, err := svc.RetrieveErrors()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "worker", records[0].Processor)
	assert.Equal(t, "connection refused", records[0].Inner)
	assert.Equal(t, "take failed", records[0].Message)
	assert.Equal(t, "abc", records[0].Misc["task"])

	assert.Equal(t, "N/A", records[1].Processor)
	assert.Equal(t, "plain", records[1].Message)

	assert.Equal(t, "not an error", records[2].Message)
}

func TestNewWorkerStats(t *testing.T) {
	svc, _ := newTestService(t)

	stats, err := svc.RetrieveWorkerStats()
	require.NoError(t, err)
	assert.Empty(t, stats)

	require.NoError(t, svc.NewWorkerStats(model.WorkerStats{Worker: "w1", Tasks: 2}))

	stats, err = svc.RetrieveWorkerStats()
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 2, stats[0].Tasks)
	assert.NotZero(t, stats[0].Timestamp)
}

func TestNewErrorStaysBounded(t *testing.T) {
	svc, dir := newTestService(t)

	const faults = 1500
	stack := strings.Repeat("x", 1024)
	for i := 0; i < faults; i++ {
		require.NoError(t, svc.NewError(model.CustomError{
			Processor:  "task_cycle",
			Inner:      errors.New("connection refused"),
			Message:    fmt.Sprintf("fault %d", i),
			StackTrace: stack,
		}))
	}

	info, err := os.Stat(filepath.Join(dir, "state", "errors.log"))
	require.NoError(t, err)
	assert.LessOrEqual(t, info.Size(), int64(errorsMaxSize*1024*1024))

	records, err := svc.RetrieveErrors()
	require.NoError(t, err)
	assert.NotEmpty(t, records)
	assert.Less(t, len(records), faults)
	assert.Equal(t, fmt.Sprintf("fault %d", faults-1), records[len(records)-1].Message)
}

func TestNewWorkerStatsKeepsNewest(t *testing.T) {
	svc, _ := newTestService(t)

	for i := 0; i < maxWorkerStats+5; i++ {
		require.NoError(t, svc.NewWorkerStats(model.WorkerStats{Worker: "w1", Tasks: i}))
	}

	stats, err := svc.RetrieveWorkerStats()
	require.NoError(t, err)
	require.Len(t, stats, maxWorkerStats)
	assert.Equal(t, 5, stats[0].Tasks)
	assert.Equal(t, maxWorkerStats+4, stats[len(stats)-1].Tasks)
}
