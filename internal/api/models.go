package api

import (
	"math"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx/types"

	"content_aggregator/internal/domain"
)

// ContentRequest is one element of a POST /api/v1/contents body.
type ContentRequest struct {
	UniqueID         string          `json:"unq_external_id" validate:"required,max=1024"`
	Title            string          `json:"title" validate:"max=10000"`
	ThumbnailViewURL *string         `json:"thumbnail_view_url" validate:"omitempty,max=1024"`
	Timestamp        *time.Time      `json:"timestamp"`
	BigMetadata      json.RawMessage `json:"big_metadata"`
	SecretValue      json.RawMessage `json:"secret_value"`
	Stats            StatsRequest    `json:"stats"`
	Author           AuthorRequest   `json:"author"`
	Hashtags         []string        `json:"hashtags" validate:"omitempty,dive,required,max=100"`
}

type StatsRequest struct {
	Likes    int64 `json:"likes" validate:"gte=0"`
	Comments int64 `json:"comments" validate:"gte=0"`
	Shares   int64 `json:"shares" validate:"gte=0"`
	Views    int64 `json:"views" validate:"gte=0"`
}

type AuthorRequest struct {
	UniqueID    string          `json:"unique_external_id" validate:"required,max=1024"`
	UniqueName  string          `json:"unique_name" validate:"required,max=100"`
	FullName    string          `json:"full_name" validate:"max=100"`
	URL         string          `json:"url" validate:"max=1024"`
	Title       string          `json:"title" validate:"max=1024"`
	BigMetadata json.RawMessage `json:"big_metadata"`
	SecretValue json.RawMessage `json:"secret_value"`
}

func (r ContentRequest) toDomain() domain.ContentInput {
	url := ""
	if r.ThumbnailViewURL != nil {
		url = *r.ThumbnailViewURL
	}

	return domain.ContentInput{
		Author: domain.Author{
			UniqueID:    r.Author.UniqueID,
			Name:        r.Author.FullName,
			Username:    r.Author.UniqueName,
			URL:         r.Author.URL,
			Title:       r.Author.Title,
			BigMetadata: nullJSON(r.Author.BigMetadata),
			SecretValue: nullJSON(r.Author.SecretValue),
		},
		Content: domain.Content{
			UniqueID:     r.UniqueID,
			URL:          url,
			Title:        r.Title,
			LikeCount:    r.Stats.Likes,
			CommentCount: r.Stats.Comments,
			ShareCount:   r.Stats.Shares,
			ViewCount:    r.Stats.Views,
			ThumbnailURL: r.ThumbnailViewURL,
			Timestamp:    r.Timestamp,
			BigMetadata:  nullJSON(r.BigMetadata),
			SecretValue:  nullJSON(r.SecretValue),
		},
		Hashtags: r.Hashtags,
	}
}

func nullJSON(raw json.RawMessage) types.NullJSONText {
	if len(raw) == 0 || string(raw) == "null" {
		return types.NullJSONText{}
	}
	return types.NullJSONText{JSONText: types.JSONText(raw), Valid: true}
}

// ContentItem is one element of the list response. Metadata and secret
// values are never exposed.
type ContentItem struct {
	Content ContentResponse `json:"content"`
	Author  *AuthorResponse `json:"author"`
}

type ContentResponse struct {
	ID              int64      `json:"id"`
	UniqueID        string     `json:"unique_id"`
	URL             string     `json:"url"`
	Title           string     `json:"title"`
	LikeCount       int64      `json:"like_count"`
	CommentCount    int64      `json:"comment_count"`
	ShareCount      int64      `json:"share_count"`
	ViewCount       int64      `json:"view_count"`
	ThumbnailURL    *string    `json:"thumbnail_url"`
	Timestamp       *time.Time `json:"timestamp"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	TotalEngagement int64      `json:"total_engagement"`
	EngagementRate  float64    `json:"engagement_rate"`
	Tags            []string   `json:"tags"`
}

type AuthorResponse struct {
	ID        int64     `json:"id"`
	UniqueID  string    `json:"unique_id"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Followers int64     `json:"followers"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toContentItem(item domain.ContentWithAuthor) ContentItem {
	c := item.Content
	tags := item.Tags
	if tags == nil {
		tags = []string{}
	}

	result := ContentItem{
		Content: ContentResponse{
			ID:              c.ID,
			UniqueID:        c.UniqueID,
			URL:             c.URL,
			Title:           c.Title,
			LikeCount:       c.LikeCount,
			CommentCount:    c.CommentCount,
			ShareCount:      c.ShareCount,
			ViewCount:       c.ViewCount,
			ThumbnailURL:    c.ThumbnailURL,
			Timestamp:       c.Timestamp,
			CreatedAt:       c.CreatedAt,
			UpdatedAt:       c.UpdatedAt,
			TotalEngagement: c.TotalEngagement(),
			EngagementRate:  c.EngagementRate(),
			Tags:            tags,
		},
	}

	if a := item.Author; a != nil {
		result.Author = &AuthorResponse{
			ID:        a.ID,
			UniqueID:  a.UniqueID,
			Name:      a.Name,
			Username:  a.Username,
			URL:       a.URL,
			Title:     a.Title,
			Followers: a.Followers,
			CreatedAt: a.CreatedAt,
			UpdatedAt: a.UpdatedAt,
		}
	}

	return result
}

type StatsResponse struct {
	TotalLikes          int64   `json:"total_likes"`
	TotalShares         int64   `json:"total_shares"`
	TotalViews          int64   `json:"total_views"`
	TotalComments       int64   `json:"total_comments"`
	TotalEngagement     int64   `json:"total_engagement"`
	TotalEngagementRate float64 `json:"total_engagement_rate"`
	TotalContents       int64   `json:"total_contents"`
	TotalFollowers      int64   `json:"total_followers"`
}

func toStatsResponse(s *domain.ContentStats) StatsResponse {
	return StatsResponse{
		TotalLikes:          s.TotalLikes,
		TotalShares:         s.TotalShares,
		TotalViews:          s.TotalViews,
		TotalComments:       s.TotalComments,
		TotalEngagement:     s.TotalEngagement(),
		TotalEngagementRate: math.Round(s.EngagementRate()*100) / 100,
		TotalContents:       s.TotalContents,
		TotalFollowers:      s.TotalFollowers,
	}
}

type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}
