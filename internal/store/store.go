package store

import (
	"context"

	"github.com/openquality/odq/internal/models"
)

// Store defines the persistence interface for validation runs.
type Store interface {
	SaveRun(ctx context.Context, run *models.Run) error
	// GetRun resolves an exact id first, then a unique id prefix.
	GetRun(ctx context.Context, id string) (*models.Run, error)
	ListRuns(ctx context.Context, limit int) ([]*models.Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
