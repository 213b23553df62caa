package domain

import "time"

// ContentFilter narrows the read path. Zero values mean "no filter".
type ContentFilter struct {
	AuthorID       int64
	AuthorUsername string
	TimeframeDays  int
	Tag            string
	Title          string
}

// Since returns the lower bound on Content.Timestamp implied by TimeframeDays.
func (f ContentFilter) Since(now time.Time) (time.Time, bool) {
	if f.TimeframeDays <= 0 {
		return time.Time{}, false
	}
	return now.AddDate(0, 0, -f.TimeframeDays), true
}

type Pagination struct {
	Page         int
	ItemsPerPage int
}

func (p Pagination) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.ItemsPerPage
}

// ContentWithAuthor is one row of the read path.
type ContentWithAuthor struct {
	Content Content
	Author  *Author
	Tags    []string
}

// ContentStats aggregates engagement over a filtered set of contents.
type ContentStats struct {
	TotalLikes     int64 `db:"total_likes"`
	TotalShares    int64 `db:"total_shares"`
	TotalViews     int64 `db:"total_views"`
	TotalComments  int64 `db:"total_comments"`
	TotalContents  int64 `db:"total_contents"`
	TotalFollowers int64 `db:"total_followers"`
}

func (s ContentStats) TotalEngagement() int64 {
	return s.TotalLikes + s.TotalComments + s.TotalShares
}

func (s ContentStats) EngagementRate() float64 {
	return EngagementRate(s.TotalEngagement(), s.TotalViews)
}

// ContentInput is a write-path payload: one content with its author and hashtags.
type ContentInput struct {
	Author   Author
	Content  Content
	Hashtags []string
}
