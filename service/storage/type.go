package storage

import "context"

type IService interface {
	// EnsureModel returns the local path of the model, downloading it first
	// when the model cache does not have it.
	EnsureModel(ctx context.Context) (string, error)
}
