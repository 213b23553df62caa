package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"content_aggregator/internal/domain"
)

type CommentStore struct {
	db *sqlx.DB
}

func NewCommentStore(db *sqlx.DB) *CommentStore {
	return &CommentStore{db: db}
}

func (s *CommentStore) Create(ctx context.Context, comment *domain.Comment) (int64, error) {
	exec := GetExecutor(ctx, s.db)

	query := `
		INSERT INTO comments (unique_id, content_id, text, posted, raw_payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (unique_id) DO NOTHING
		RETURNING id`

	var id int64
	err := exec.QueryRowxContext(ctx, query,
		comment.UniqueID,
		comment.ContentID,
		comment.Text,
		comment.Posted,
		comment.RawPayload,
	).Scan(&id)

	if errors.Is(err, sql.ErrNoRows) {
		err = exec.QueryRowxContext(ctx,
			"SELECT id FROM comments WHERE unique_id = $1",
			comment.UniqueID,
		).Scan(&id)
	}

	if err != nil {
		return 0, err
	}

	return id, nil
}
