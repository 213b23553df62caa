package domain

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

type Author struct {
	ID          int64              `db:"id"`
	UniqueID    string             `db:"unique_id"`
	Name        string             `db:"name"`
	Username    string             `db:"username"`
	URL         string             `db:"url"`
	Title       string             `db:"title"`
	BigMetadata types.NullJSONText `db:"big_metadata"`
	SecretValue types.NullJSONText `db:"secret_value"`
	Followers   int64              `db:"followers"`
	CreatedAt   time.Time          `db:"created_at"`
	UpdatedAt   time.Time          `db:"updated_at"`
}

type Content struct {
	ID           int64              `db:"id"`
	AuthorID     *int64             `db:"author_id"`
	UniqueID     string             `db:"unique_id"`
	URL          string             `db:"url"`
	Title        string             `db:"title"`
	LikeCount    int64              `db:"like_count"`
	CommentCount int64              `db:"comment_count"`
	ShareCount   int64              `db:"share_count"`
	ViewCount    int64              `db:"view_count"`
	ThumbnailURL *string            `db:"thumbnail_url"`
	Timestamp    *time.Time         `db:"timestamp"`
	BigMetadata  types.NullJSONText `db:"big_metadata"`
	SecretValue  types.NullJSONText `db:"secret_value"`
	RawPayload   types.NullJSONText `db:"raw_payload"`
	Pushed       bool               `db:"pushed"`
	PushSkipped  bool               `db:"push_skipped"`
	CreatedAt    time.Time          `db:"created_at"`
	UpdatedAt    time.Time          `db:"updated_at"`

	// Only populated by queries that join authors.
	AuthorUsername string `db:"author_username"`
}

// TotalEngagement is likes + comments + shares.
func (c *Content) TotalEngagement() int64 {
	return c.LikeCount + c.CommentCount + c.ShareCount
}

// EngagementRate is TotalEngagement / views, or 0 when there are no views.
func (c *Content) EngagementRate() float64 {
	return EngagementRate(c.TotalEngagement(), c.ViewCount)
}

func EngagementRate(engagement, views int64) float64 {
	if views <= 0 {
		return 0
	}
	return float64(engagement) / float64(views)
}

type Tag struct {
	ID          int64   `db:"id"`
	Name        string  `db:"name"`
	Description *string `db:"description"`
}

type ContentTag struct {
	ContentID int64 `db:"content_id"`
	TagID     int64 `db:"tag_id"`
}

// UpsertResult reports what an upsert did to the stored row.
type UpsertResult string

const (
	UpsertCreated   UpsertResult = "created"
	UpsertUpdated   UpsertResult = "updated"
	UpsertUnchanged UpsertResult = "unchanged"
)
