package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"content_aggregator/internal/domain"
)

// QueryStore serves the read side of the API. Listing never selects
// big_metadata, secret_value or raw_payload.
type QueryStore struct {
	db *sqlx.DB
}

func NewQueryStore(db *sqlx.DB) *QueryStore {
	return &QueryStore{db: db}
}

type contentRow struct {
	ID           int64      `db:"id"`
	AuthorID     *int64     `db:"author_id"`
	UniqueID     string     `db:"unique_id"`
	URL          string     `db:"url"`
	Title        string     `db:"title"`
	LikeCount    int64      `db:"like_count"`
	CommentCount int64      `db:"comment_count"`
	ShareCount   int64      `db:"share_count"`
	ViewCount    int64      `db:"view_count"`
	ThumbnailURL *string    `db:"thumbnail_url"`
	Timestamp    *time.Time `db:"timestamp"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`

	AuthorUniqueID  *string    `db:"a_unique_id"`
	AuthorName      *string    `db:"a_name"`
	AuthorUsername  *string    `db:"a_username"`
	AuthorURL       *string    `db:"a_url"`
	AuthorTitle     *string    `db:"a_title"`
	AuthorFollowers *int64     `db:"a_followers"`
	AuthorCreatedAt *time.Time `db:"a_created_at"`
	AuthorUpdatedAt *time.Time `db:"a_updated_at"`
}

func (r contentRow) toDomain() domain.ContentWithAuthor {
	result := domain.ContentWithAuthor{
		Content: domain.Content{
			ID:           r.ID,
			AuthorID:     r.AuthorID,
			UniqueID:     r.UniqueID,
			URL:          r.URL,
			Title:        r.Title,
			LikeCount:    r.LikeCount,
			CommentCount: r.CommentCount,
			ShareCount:   r.ShareCount,
			ViewCount:    r.ViewCount,
			ThumbnailURL: r.ThumbnailURL,
			Timestamp:    r.Timestamp,
			CreatedAt:    r.CreatedAt,
			UpdatedAt:    r.UpdatedAt,
		},
		Tags: []string{},
	}

	if r.AuthorID == nil || r.AuthorUniqueID == nil {
		return result
	}

	author := &domain.Author{
		ID:          *r.AuthorID,
		UniqueID:    *r.AuthorUniqueID,
		Name:        deref(r.AuthorName),
		Username:    deref(r.AuthorUsername),
		URL:         deref(r.AuthorURL),
		Title:       deref(r.AuthorTitle),
		BigMetadata: types.NullJSONText{},
		SecretValue: types.NullJSONText{},
	}
	if r.AuthorFollowers != nil {
		author.Followers = *r.AuthorFollowers
	}
	if r.AuthorCreatedAt != nil {
		author.CreatedAt = *r.AuthorCreatedAt
	}
	if r.AuthorUpdatedAt != nil {
		author.UpdatedAt = *r.AuthorUpdatedAt
	}
	result.Content.AuthorUsername = author.Username
	result.Author = author
	return result
}

// List returns one page of contents, newest first, with their author and tag
// names attached.
func (s *QueryStore) List(ctx context.Context, filter domain.ContentFilter, page domain.Pagination, now time.Time) ([]domain.ContentWithAuthor, error) {
	where, args := buildContentFilter(filter, now)

	args = append(args, page.ItemsPerPage, page.Offset())
	query := fmt.Sprintf(`
		SELECT
			c.id, c.author_id, c.unique_id, c.url, c.title,
			c.like_count, c.comment_count, c.share_count, c.view_count,
			c.thumbnail_url, c.timestamp, c.created_at, c.updated_at,
			a.unique_id AS a_unique_id, a.name AS a_name, a.username AS a_username,
			a.url AS a_url, a.title AS a_title, a.followers AS a_followers,
			a.created_at AS a_created_at, a.updated_at AS a_updated_at
		FROM contents c
		LEFT JOIN authors a ON a.id = c.author_id
		%s
		ORDER BY c.id DESC
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	exec := GetExecutor(ctx, s.db)

	var rows []contentRow
	if err := sqlx.SelectContext(ctx, exec, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select contents: %w", err)
	}

	result := make([]domain.ContentWithAuthor, 0, len(rows))
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
		ids = append(ids, row.ID)
	}

	tags, err := tagNamesByContentIDs(ctx, exec, ids)
	if err != nil {
		return nil, fmt.Errorf("select tags: %w", err)
	}
	for i := range result {
		if names, ok := tags[result[i].Content.ID]; ok {
			result[i].Tags = names
		}
	}

	return result, nil
}

// Stats aggregates engagement over every content matching filter.
func (s *QueryStore) Stats(ctx context.Context, filter domain.ContentFilter, now time.Time) (*domain.ContentStats, error) {
	where, args := buildContentFilter(filter, now)

	query := fmt.Sprintf(`
		SELECT
			COALESCE(SUM(c.like_count), 0) AS total_likes,
			COALESCE(SUM(c.share_count), 0) AS total_shares,
			COALESCE(SUM(c.view_count), 0) AS total_views,
			COALESCE(SUM(c.comment_count), 0) AS total_comments,
			COUNT(c.id) AS total_contents,
			COALESCE(SUM(a.followers), 0) AS total_followers
		FROM contents c
		LEFT JOIN authors a ON a.id = c.author_id
		%s`, where)

	var stats domain.ContentStats
	if err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &stats, query, args...); err != nil {
		return nil, fmt.Errorf("aggregate contents: %w", err)
	}
	return &stats, nil
}

func buildContentFilter(filter domain.ContentFilter, now time.Time) (string, []any) {
	var conditions []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.AuthorID > 0 {
		conditions = append(conditions, "c.author_id = "+arg(filter.AuthorID))
	}
	if filter.AuthorUsername != "" {
		conditions = append(conditions, "LOWER(a.username) = LOWER("+arg(filter.AuthorUsername)+")")
	}
	if since, ok := filter.Since(now); ok {
		conditions = append(conditions, "c.timestamp >= "+arg(since))
	}
	if filter.Tag != "" {
		conditions = append(conditions, `EXISTS (
			SELECT 1 FROM content_tags ct
			INNER JOIN tags t ON t.id = ct.tag_id
			WHERE ct.content_id = c.id AND LOWER(t.name) = LOWER(`+arg(filter.Tag)+`))`)
	}
	if filter.Title != "" {
		conditions = append(conditions, "c.title ILIKE "+arg("%"+escapeLike(filter.Title)+"%"))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
