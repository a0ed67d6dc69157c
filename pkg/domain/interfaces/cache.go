package interfaces

import (
	"context"

	"github.com/m-mizutani/relwatch/pkg/domain/model"
)

// ResultCache is the keyed store of last-known repository results.
// Implementations must be safe for concurrent use by multiple goroutines.
type ResultCache interface {
	Get(ctx context.Context, repo model.RepositoryRef) (*model.RepositoryResult, bool)
	Put(ctx context.Context, result *model.RepositoryResult)
}

// ResultStore persists cache entries across restarts
type ResultStore interface {
	Save(ctx context.Context, result *model.RepositoryResult) error
	LoadAll(ctx context.Context) ([]*model.RepositoryResult, error)
}
