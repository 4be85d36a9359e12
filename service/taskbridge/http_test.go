package taskbridge

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khaledhikmat/taskworker-imageclassifier/model"
	"github.com/khaledhikmat/taskworker-imageclassifier/service/config"
)

func newTestService(t *testing.T, handler http.Handler) (IService, string) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	scratch := filepath.Join(t.TempDir(), "temp")
	settings := config.Settings{
		TaskBridgeURL: srv.URL + "/",
		ScratchFolder: scratch,
	}
	return NewHTTP(config.New(settings), srv.Client()), scratch
}

func TestTake(t *testing.T) {
	var got model.TakeRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tasks/take/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"id":"abc","type":"classifyimage","data":{"targetlanguage":"en","numberofpredictions":"3"}}`)
	})
	svc, _ := newTestService(t, mux)

	task, err := svc.Take(context.Background(), "w1")
	require.NoError(t, err)
	require.NotNil(t, task)

	assert.Equal(t, model.TakeRequest{Type: "classifyimage", Worker: "w1"}, got)
	assert.Equal(t, "abc", task.ID)
	assert.Equal(t, "en", task.Data.TargetLanguage)
	assert.Equal(t, model.Count(3), task.Data.NumberOfPredictions)
}

func TestTakeNoTask(t *testing.T) {
	for _, status := range []int{http.StatusNoContent, http.StatusNotFound, http.StatusInternalServerError} {
		svc, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		task, err := svc.Take(context.Background(), "w1")
		assert.NoError(t, err, "status %d", status)
		assert.Nil(t, task, "status %d", status)
	}
}

func TestTakeMalformed(t *testing.T) {
	svc, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":`)
	}))

	_, err := svc.Take(context.Background(), "w1")
	assert.Error(t, err)
}

func TestTakeUnreachable(t *testing.T) {
	settings := config.Settings{TaskBridgeURL: "http://127.0.0.1:1/"}
	svc := NewHTTP(config.New(settings), http.DefaultClient)

	task, err := svc.Take(context.Background(), "w1")
	assert.Error(t, err)
	assert.Nil(t, task)
}

func TestFetchFile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tasks/file/abc", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte{0xff, 0xd8, 0xff})
	})
	svc, scratch := newTestService(t, mux)

	path, err := svc.FetchFile(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(scratch, "abc"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, data)
}

func TestFetchFileErrors(t *testing.T) {
	svc, scratch := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))

	_, err := svc.FetchFile(context.Background(), "abc")
	assert.Error(t, err)
	_, statErr := os.Stat(filepath.Join(scratch, "abc"))
	assert.True(t, os.IsNotExist(statErr))

	for _, id := range []string{"", "..", "../etc/passwd", `a\b`} {
		_, err := svc.FetchFile(context.Background(), id)
		assert.Error(t, err, "id %q", id)
	}
}

func TestComplete(t *testing.T) {
	var got model.Report
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tasks/complete/abc/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	})
	svc, _ := newTestService(t, mux)

	report := model.Report{Result: model.Result{
		Predictions: []model.Prediction{{Class: "n01443537", Name: "goldfish", Probability: 0.9}},
		Duration:    1.5,
		Model:       model.ModelName,
	}}
	require.NoError(t, svc.Complete(context.Background(), "abc", report))
	assert.Equal(t, report, got)
}

func TestCompleteFailure(t *testing.T) {
	svc, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	err := svc.Complete(context.Background(), "abc", model.Report{})
	assert.Error(t, err)
}
