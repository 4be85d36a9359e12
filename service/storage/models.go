package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/xerrors"

	"github.com/khaledhikmat/taskworker-imageclassifier/service/config"
	"github.com/khaledhikmat/taskworker-imageclassifier/service/lgr"
)

type modelCacheService struct {
	CfgSvc config.IService
	Client *http.Client
}

func NewModelCache(cfgsvc config.IService, client *http.Client) IService {
	return &modelCacheService{
		CfgSvc: cfgsvc,
		Client: client,
	}
}

func (svc *modelCacheService) EnsureModel(ctx context.Context) (string, error) {
	params := svc.CfgSvc.GetModelParameters()
	path := params.Path

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", xerrors.Errorf("creating model cache: %w", err)
	}

	_, err := os.Stat(path)
	if err == nil {
		return path, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", xerrors.Errorf("checking model %s: %w", path, err)
	}

	if params.URL == "" {
		return "", xerrors.Errorf("model %s is missing and no download URL is configured", path)
	}

	lgr.Logger.Info("downloading model",
		slog.String("url", params.URL),
		slog.String("path", path),
	)

	if err := svc.download(ctx, params.URL, path); err != nil {
		return "", err
	}

	return path, nil
}

// download writes into a temp file next to path and renames it, so an
// interrupted download never leaves a truncated model behind.
func (svc *modelCacheService) download(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return xerrors.Errorf("creating model request: %w", err)
	}

	resp, err := svc.Client.Do(req)
	if err != nil {
		return xerrors.Errorf("downloading model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading model: unexpected status %s", resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.part")
	if err != nil {
		return xerrors.Errorf("creating model file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if err != nil {
		tmp.Close()
		return xerrors.Errorf("writing model file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return xerrors.Errorf("closing model file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return xerrors.Errorf("moving model into place: %w", err)
	}

	lgr.Logger.Info("model downloaded",
		slog.String("path", path),
		slog.Int64("bytes", n),
	)
	return nil
}
