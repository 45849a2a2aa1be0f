package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/inkwell/inkwell-api/internal/models"
	"go.uber.org/zap"
)

// PostRepository handles read-only post queries.
type PostRepository struct {
	db  *DB
	log *zap.Logger
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *DB, log *zap.Logger) *PostRepository {
	if log == nil {
		log = zap.NewNop()
	}
	return &PostRepository{db: db, log: log}
}

// SearchPublished finds published posts whose title matches q (case-insensitive substring).
// Databases that predate the status column are queried through the legacy published flag.
func (r *PostRepository) SearchPublished(ctx context.Context, q string, limit int) ([]*models.PostSummary, error) {
	pattern := "%" + escapeLike(q) + "%"
	posts, strategy, err := FirstSuccessful(ctx,
		Strategy[[]*models.PostSummary]{
			Name: "status_column",
			Run: func(ctx context.Context) ([]*models.PostSummary, error) {
				return r.queryPosts(ctx, `
					SELECT id, title, slug, author_id, created_at
					FROM posts
					WHERE status = 'published' AND title ILIKE $1
					ORDER BY created_at DESC
					LIMIT $2
				`, pattern, limit)
			},
		},
		Strategy[[]*models.PostSummary]{
			Name: "legacy_published_flag",
			Run: func(ctx context.Context) ([]*models.PostSummary, error) {
				return r.queryPosts(ctx, `
					SELECT id, title, NULL::text AS slug, author_id, created_at
					FROM posts
					WHERE published = true AND title ILIKE $1
					ORDER BY created_at DESC
					LIMIT $2
				`, pattern, limit)
			},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search posts: %w", err)
	}
	if strategy != "status_column" {
		r.log.Debug("post_search_used_fallback_strategy", zap.String("strategy", strategy))
	}
	return posts, nil
}

func (r *PostRepository) queryPosts(ctx context.Context, query string, args ...any) ([]*models.PostSummary, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []*models.PostSummary
	for rows.Next() {
		p := &models.PostSummary{}
		if err := rows.Scan(&p.ID, &p.Title, &p.Slug, &p.AuthorID, &p.CreatedAt); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// escapeLike escapes LIKE/ILIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
