package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"content_aggregator/internal/domain"
)

type ContentStore struct {
	db *sqlx.DB
}

func NewContentStore(db *sqlx.DB) *ContentStore {
	return &ContentStore{db: db}
}

// GetPayloadsByUniqueIDs returns the stored raw payload of every content whose
// unique_id is in ids. A present key with a nil value means the row exists
// without a payload.
func (s *ContentStore) GetPayloadsByUniqueIDs(ctx context.Context, ids []string) (map[string]json.RawMessage, error) {
	if len(ids) == 0 {
		return make(map[string]json.RawMessage), nil
	}

	query := `SELECT unique_id, raw_payload FROM contents WHERE unique_id = ANY($1)`

	rows, err := GetExecutor(ctx, s.db).QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]json.RawMessage)
	for rows.Next() {
		var uniqueID string
		var payload []byte
		if err := rows.Scan(&uniqueID, &payload); err != nil {
			return nil, err
		}
		result[uniqueID] = payload
	}

	return result, rows.Err()
}

// UpsertSynced writes a content seen by the sync worker. A new unique_id is
// inserted; an existing row is only touched when its raw payload differs.
// Counts are left alone when nil.
func (s *ContentStore) UpsertSynced(ctx context.Context, content *domain.Content, counts *domain.EngagementCounts) (int64, domain.UpsertResult, error) {
	query := `
		INSERT INTO contents (
			author_id, unique_id, url, title, like_count, comment_count, share_count, view_count,
			thumbnail_url, timestamp, big_metadata, secret_value, raw_payload
		) VALUES (
			$1, $2, $3, $4, COALESCE($5::BIGINT, 0), COALESCE($6::BIGINT, 0), COALESCE($7::BIGINT, 0), COALESCE($8::BIGINT, 0),
			$9, $10, $11, $12, $13
		)
		ON CONFLICT (unique_id) DO UPDATE SET
			author_id = COALESCE(contents.author_id, EXCLUDED.author_id),
			url = EXCLUDED.url,
			title = EXCLUDED.title,
			like_count = COALESCE($5::BIGINT, contents.like_count),
			comment_count = COALESCE($6::BIGINT, contents.comment_count),
			share_count = COALESCE($7::BIGINT, contents.share_count),
			view_count = COALESCE($8::BIGINT, contents.view_count),
			thumbnail_url = EXCLUDED.thumbnail_url,
			timestamp = COALESCE(EXCLUDED.timestamp, contents.timestamp),
			big_metadata = COALESCE(EXCLUDED.big_metadata, contents.big_metadata),
			secret_value = COALESCE(EXCLUDED.secret_value, contents.secret_value),
			raw_payload = EXCLUDED.raw_payload,
			updated_at = NOW()
		WHERE contents.raw_payload IS DISTINCT FROM EXCLUDED.raw_payload
		RETURNING id, (xmax = 0) AS inserted`

	var likes, comments, shares, views *int64
	if counts != nil {
		likes, comments, shares, views = &counts.Likes, &counts.Comments, &counts.Shares, &counts.Views
	}

	exec := GetExecutor(ctx, s.db)

	var id int64
	var inserted bool
	err := exec.QueryRowxContext(ctx, query,
		content.AuthorID,
		content.UniqueID,
		content.URL,
		content.Title,
		likes,
		comments,
		shares,
		views,
		content.ThumbnailURL,
		content.Timestamp,
		content.BigMetadata,
		content.SecretValue,
		content.RawPayload,
	).Scan(&id, &inserted)

	if errors.Is(err, sql.ErrNoRows) {
		err = exec.QueryRowxContext(ctx,
			"SELECT id FROM contents WHERE unique_id = $1",
			content.UniqueID,
		).Scan(&id)
		if err != nil {
			return 0, "", err
		}
		return id, domain.UpsertUnchanged, nil
	}

	if err != nil {
		return 0, "", err
	}

	if inserted {
		return id, domain.UpsertCreated, nil
	}
	return id, domain.UpsertUpdated, nil
}

// Upsert writes a content received on the write API. Unlike UpsertSynced the
// stats and descriptive fields of an existing row are always refreshed.
func (s *ContentStore) Upsert(ctx context.Context, content *domain.Content) (int64, bool, error) {
	query := `
		INSERT INTO contents (
			author_id, unique_id, url, title, like_count, comment_count, share_count, view_count,
			thumbnail_url, timestamp, big_metadata, secret_value
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
		ON CONFLICT (unique_id) DO UPDATE SET
			author_id = EXCLUDED.author_id,
			url = EXCLUDED.url,
			title = EXCLUDED.title,
			like_count = EXCLUDED.like_count,
			comment_count = EXCLUDED.comment_count,
			share_count = EXCLUDED.share_count,
			view_count = EXCLUDED.view_count,
			thumbnail_url = EXCLUDED.thumbnail_url,
			timestamp = COALESCE(EXCLUDED.timestamp, contents.timestamp),
			big_metadata = EXCLUDED.big_metadata,
			secret_value = EXCLUDED.secret_value,
			updated_at = NOW()
		RETURNING id, (xmax = 0) AS inserted`

	var id int64
	var inserted bool
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		content.AuthorID,
		content.UniqueID,
		content.URL,
		content.Title,
		content.LikeCount,
		content.CommentCount,
		content.ShareCount,
		content.ViewCount,
		content.ThumbnailURL,
		content.Timestamp,
		content.BigMetadata,
		content.SecretValue,
	).Scan(&id, &inserted)
	if err != nil {
		return 0, false, err
	}

	return id, inserted, nil
}

func (s *ContentStore) GetByID(ctx context.Context, id int64) (*domain.Content, error) {
	query := `
		SELECT c.*, COALESCE(a.username, '') AS author_username
		FROM contents c
		LEFT JOIN authors a ON a.id = c.author_id
		WHERE c.id = $1`

	var content domain.Content
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &content, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &content, nil
}

// ClaimNextUnpushed locks the oldest content that has not been pushed yet.
// It must run inside a transaction: the row stays locked until commit, and
// concurrent callers skip it instead of waiting. Returns nil when there is
// nothing to push.
func (s *ContentStore) ClaimNextUnpushed(ctx context.Context) (*domain.Content, error) {
	query := `
		SELECT c.*, COALESCE(a.username, '') AS author_username
		FROM contents c
		LEFT JOIN authors a ON a.id = c.author_id
		WHERE c.pushed = FALSE
		ORDER BY c.id ASC
		LIMIT 1
		FOR UPDATE OF c SKIP LOCKED`

	var content domain.Content
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &content, query)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &content, nil
}

// MarkPushed flags a content as done for the comment pipeline. skipped
// records that it was rejected rather than commented.
func (s *ContentStore) MarkPushed(ctx context.Context, id int64, skipped bool) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		"UPDATE contents SET pushed = TRUE, push_skipped = $2, updated_at = NOW() WHERE id = $1",
		id, skipped,
	)
	return err
}
