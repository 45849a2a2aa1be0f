package database

import (
	"context"

	"github.com/inkwell/inkwell-api/internal/models"
)

// RatelimitConfigStore is the read side the flood guard reloader needs.
type RatelimitConfigStore interface {
	Get(ctx context.Context) (*models.RatelimitConfig, error)
	Set(ctx context.Context, c *models.RatelimitConfig) error
}

// PostSearcher is the read side the search handler needs.
type PostSearcher interface {
	SearchPublished(ctx context.Context, q string, limit int) ([]*models.PostSummary, error)
}

// Ensure concrete types implement the interfaces
var (
	_ RatelimitConfigStore = (*RatelimitConfigRepository)(nil)
	_ PostSearcher         = (*PostRepository)(nil)
)
