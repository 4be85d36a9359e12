package taskbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/xerrors"

	"github.com/khaledhikmat/taskworker-imageclassifier/model"
	"github.com/khaledhikmat/taskworker-imageclassifier/service/config"
)

type httpService struct {
	CfgSvc config.IService
	Client *http.Client
}

func NewHTTP(cfgsvc config.IService, client *http.Client) IService {
	return &httpService{
		CfgSvc: cfgsvc,
		Client: client,
	}
}

func (svc *httpService) Take(ctx context.Context, worker string) (*model.Task, error) {
	body, err := json.Marshal(model.TakeRequest{
		Type:   model.TaskType,
		Worker: worker,
	})
	if err != nil {
		return nil, err
	}

	resp, err := svc.post(ctx, "tasks/take/", body)
	if err != nil {
		return nil, xerrors.Errorf("taking task: %w", err)
	}
	defer resp.Body.Close()

	// Anything but 200 means there is nothing to do right now
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, nil
	}

	var task model.Task
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return nil, xerrors.Errorf("decoding task: %w", err)
	}

	if task.ID == "" {
		return nil, xerrors.New("task bridge returned a task without id")
	}

	return &task, nil
}

func (svc *httpService) FetchFile(ctx context.Context, taskID string) (string, error) {
	if err := validateID(taskID); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, svc.endpoint("tasks/file/"+url.PathEscape(taskID)), nil)
	if err != nil {
		return "", err
	}

	resp, err := svc.Client.Do(req)
	if err != nil {
		return "", xerrors.Errorf("fetching file of task %s: %w", taskID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching file of task %s: unexpected status %s", taskID, resp.Status)
	}

	folder := svc.CfgSvc.GetScratchFolder()
	if err := os.MkdirAll(folder, 0755); err != nil {
		return "", xerrors.Errorf("creating scratch folder: %w", err)
	}

	path := filepath.Join(folder, taskID)
	file, err := os.Create(path)
	if err != nil {
		return "", xerrors.Errorf("creating scratch file: %w", err)
	}

	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		os.Remove(path)
		return "", xerrors.Errorf("writing scratch file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(path)
		return "", xerrors.Errorf("closing scratch file: %w", err)
	}

	return path, nil
}

func (svc *httpService) Complete(ctx context.Context, taskID string, report model.Report) error {
	if err := validateID(taskID); err != nil {
		return err
	}

	body, err := json.Marshal(report)
	if err != nil {
		return err
	}

	resp, err := svc.post(ctx, "tasks/complete/"+url.PathEscape(taskID)+"/", body)
	if err != nil {
		return xerrors.Errorf("completing task %s: %w", taskID, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("completing task %s: unexpected status %s", taskID, resp.Status)
	}

	return nil
}

func (svc *httpService) endpoint(path string) string {
	return svc.CfgSvc.GetAPIURL() + path
}

func (svc *httpService) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, svc.endpoint(path), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return svc.Client.Do(req)
}

// validateID keeps task ids usable as a single file name in the scratch folder.
func validateID(taskID string) error {
	if taskID == "" || taskID == "." || taskID == ".." || strings.ContainsAny(taskID, `/\`) {
		return fmt.Errorf("invalid task id %q", taskID)
	}
	return nil
}
