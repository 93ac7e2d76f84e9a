package resultrepository

import (
	"context"
	"errors"

	"github.com/ebakken/memoflight/internal/domain"
)

var ErrResultNotFound = errors.New("result not found")

type ResultRepository interface {
	StoreResult(ctx context.Context, result *domain.Result) error
	GetLatestResult(ctx context.Context, key string) (*domain.Result, error)
}
