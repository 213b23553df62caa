package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"content_aggregator/internal/domain"
)

type AuthorStore struct {
	db *sqlx.DB
}

func NewAuthorStore(db *sqlx.DB) *AuthorStore {
	return &AuthorStore{db: db}
}

// GetOrCreate inserts author unless one with the same unique_id exists. An
// existing row is never modified.
func (s *AuthorStore) GetOrCreate(ctx context.Context, author *domain.Author) (int64, bool, error) {
	exec := GetExecutor(ctx, s.db)

	query := `
		INSERT INTO authors (unique_id, name, username, url, title, big_metadata, secret_value)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (unique_id) DO NOTHING
		RETURNING id`

	var id int64
	err := exec.QueryRowxContext(ctx, query,
		author.UniqueID,
		author.Name,
		author.Username,
		author.URL,
		author.Title,
		author.BigMetadata,
		author.SecretValue,
	).Scan(&id)

	if errors.Is(err, sql.ErrNoRows) {
		err = exec.QueryRowxContext(ctx,
			"SELECT id FROM authors WHERE unique_id = $1",
			author.UniqueID,
		).Scan(&id)
		if err != nil {
			return 0, false, err
		}
		return id, false, nil
	}

	if err != nil {
		return 0, false, err
	}

	return id, true, nil
}

func (s *AuthorStore) GetByUniqueID(ctx context.Context, uniqueID string) (*domain.Author, error) {
	var author domain.Author
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &author,
		"SELECT * FROM authors WHERE unique_id = $1", uniqueID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &author, nil
}
