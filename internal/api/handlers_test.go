package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/suite"

	"content_aggregator/internal/domain"
	"content_aggregator/testdata/utils"
)

type fakeCatalog struct {
	listFilter domain.ContentFilter
	listPage   domain.Pagination
	items      []domain.ContentWithAuthor
	stats      *domain.ContentStats
	saved      []domain.ContentInput
	err        error
}

func (f *fakeCatalog) List(_ context.Context, filter domain.ContentFilter, page domain.Pagination) ([]domain.ContentWithAuthor, error) {
	f.listFilter = filter
	f.listPage = page
	return f.items, f.err
}

func (f *fakeCatalog) Stats(_ context.Context, filter domain.ContentFilter) (*domain.ContentStats, error) {
	f.listFilter = filter
	return f.stats, f.err
}

func (f *fakeCatalog) Save(_ context.Context, inputs []domain.ContentInput) ([]domain.ContentWithAuthor, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.saved = inputs
	result := make([]domain.ContentWithAuthor, 0, len(inputs))
	for i, in := range inputs {
		c := in.Content
		c.ID = int64(i + 1)
		a := in.Author
		result = append(result, domain.ContentWithAuthor{Content: c, Author: &a, Tags: in.Hashtags})
	}
	return result, nil
}

type fakePinger struct{ err error }

func (f fakePinger) PingContext(context.Context) error { return f.err }

type HandlerTestSuite struct {
	suite.Suite
	catalog *fakeCatalog
	pinger  fakePinger
	router  http.Handler
}

func (s *HandlerTestSuite) SetupTest() {
	s.catalog = &fakeCatalog{}
	s.pinger = fakePinger{}
	s.router = s.newRouter()
}

func (s *HandlerTestSuite) newRouter() http.Handler {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	h := NewHandler(s.catalog, s.pinger, logger, 100, 500)
	return NewRouter(h, RouterConfig{})
}

func TestHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(HandlerTestSuite))
}

func (s *HandlerTestSuite) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerTestSuite) TestListContents_FiltersAndPagination() {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.catalog.items = []domain.ContentWithAuthor{
		{
			Content: domain.Content{
				ID: 1, UniqueID: "c-1", Title: "Hello",
				LikeCount: 10, CommentCount: 5, ShareCount: 2, ViewCount: 100,
				Timestamp: &ts,
			},
			Author: &domain.Author{ID: 3, Username: "jane", Followers: 9},
			Tags:   []string{"go"},
		},
		{
			Content: domain.Content{ID: 2, UniqueID: "c-2", LikeCount: 4},
		},
	}

	rec := s.do(http.MethodGet, "/api/v1/contents?author_id=3&author_username=Jane&timeframe=7&tag=go&title=hel&items_per_page=10&page=2", "")

	s.Equal(http.StatusOK, rec.Code)
	s.Equal(domain.ContentFilter{AuthorID: 3, AuthorUsername: "Jane", TimeframeDays: 7, Tag: "go", Title: "hel"}, s.catalog.listFilter)
	s.Equal(domain.Pagination{Page: 2, ItemsPerPage: 10}, s.catalog.listPage)

	var body []ContentItem
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Require().Len(body, 2)
	s.Equal(int64(17), body[0].Content.TotalEngagement)
	s.InDelta(0.17, body[0].Content.EngagementRate, 1e-9)
	s.Equal([]string{"go"}, body[0].Content.Tags)
	s.Equal("jane", body[0].Author.Username)
	s.Equal(float64(0), body[1].Content.EngagementRate)
	s.Equal([]string{}, body[1].Content.Tags)
	s.Nil(body[1].Author)

	s.NotContains(rec.Body.String(), "big_metadata")
	s.NotContains(rec.Body.String(), "secret_value")
}

func (s *HandlerTestSuite) TestListContents_Defaults() {
	rec := s.do(http.MethodGet, "/api/v1/contents", "")

	s.Equal(http.StatusOK, rec.Code)
	s.Equal(domain.Pagination{Page: 1, ItemsPerPage: 100}, s.catalog.listPage)
	s.JSONEq(`[]`, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/v1/contents?items_per_page=100000", "")
	s.Equal(http.StatusOK, rec.Code)
	s.Equal(500, s.catalog.listPage.ItemsPerPage)
}

func (s *HandlerTestSuite) TestListContents_BadParams() {
	for _, target := range []string{
		"/api/v1/contents?author_id=abc",
		"/api/v1/contents?timeframe=-1",
		"/api/v1/contents?page=0",
		"/api/v1/contents?items_per_page=x",
	} {
		rec := s.do(http.MethodGet, target, "")
		s.Equal(http.StatusBadRequest, rec.Code, target)
	}
}

func (s *HandlerTestSuite) TestListContents_StoreError() {
	s.catalog.err = errors.New("db down")

	rec := s.do(http.MethodGet, "/api/v1/contents", "")

	s.Equal(http.StatusInternalServerError, rec.Code)
	s.NotContains(rec.Body.String(), "db down")
}

func (s *HandlerTestSuite) TestContentStats() {
	s.catalog.stats = &domain.ContentStats{
		TotalLikes: 10, TotalComments: 5, TotalShares: 2, TotalViews: 300,
		TotalContents: 4, TotalFollowers: 50,
	}

	rec := s.do(http.MethodGet, "/api/v1/contents/stats?author_username=jane", "")

	s.Equal(http.StatusOK, rec.Code)
	s.Equal("jane", s.catalog.listFilter.AuthorUsername)
	s.JSONEq(`{
		"total_likes": 10,
		"total_shares": 2,
		"total_views": 300,
		"total_comments": 5,
		"total_engagement": 17,
		"total_engagement_rate": 0.06,
		"total_contents": 4,
		"total_followers": 50
	}`, rec.Body.String())
}

func (s *HandlerTestSuite) TestContentStats_NoViews() {
	s.catalog.stats = &domain.ContentStats{TotalLikes: 3}

	rec := s.do(http.MethodGet, "/api/v1/contents/stats", "")

	s.Equal(http.StatusOK, rec.Code)
	var body StatsResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal(float64(0), body.TotalEngagementRate)
	s.Equal(int64(3), body.TotalEngagement)
}

const validContent = `{
	"unq_external_id": "c-1",
	"title": "Hello",
	"thumbnail_view_url": "https://cdn.example.com/c-1.jpg",
	"big_metadata": {"k": "v"},
	"stats": {"likes": 1, "comments": 2, "shares": 3, "views": 4},
	"author": {"unique_external_id": "a-1", "unique_name": "jane", "full_name": "Jane"},
	"hashtags": ["go", "db"]
}`

func (s *HandlerTestSuite) TestCreateContents_SingleObject() {
	rec := s.do(http.MethodPost, "/api/v1/contents", validContent)

	s.Equal(http.StatusOK, rec.Code)
	s.Require().Len(s.catalog.saved, 1)

	input := s.catalog.saved[0]
	s.Equal("c-1", input.Content.UniqueID)
	s.Equal(int64(3), input.Content.ShareCount)
	s.Equal(utils.Ptr("https://cdn.example.com/c-1.jpg"), input.Content.ThumbnailURL)
	s.True(input.Content.BigMetadata.Valid)
	s.False(input.Content.SecretValue.Valid)
	s.Equal("jane", input.Author.Username)
	s.Equal([]string{"go", "db"}, input.Hashtags)

	var body []ContentItem
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Require().Len(body, 1)
	s.Equal(int64(6), body[0].Content.TotalEngagement)
}

func (s *HandlerTestSuite) TestCreateContents_Array() {
	rec := s.do(http.MethodPost, "/api/v1/contents", "["+validContent+","+strings.Replace(validContent, `"c-1"`, `"c-2"`, 1)+"]")

	s.Equal(http.StatusOK, rec.Code)
	s.Len(s.catalog.saved, 2)
}

func (s *HandlerTestSuite) TestCreateContents_Invalid() {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty", body: ""},
		{name: "empty array", body: "[]"},
		{name: "malformed", body: `{"unq_external_id":`},
		{name: "missing id", body: strings.Replace(validContent, `"unq_external_id": "c-1",`, "", 1)},
		{name: "missing author name", body: strings.Replace(validContent, `"unique_name": "jane", `, "", 1)},
		{name: "negative stats", body: strings.Replace(validContent, `"likes": 1`, `"likes": -1`, 1)},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.catalog.saved = nil
			rec := s.do(http.MethodPost, "/api/v1/contents", tt.body)
			s.Equal(http.StatusBadRequest, rec.Code)
			s.Nil(s.catalog.saved)
		})
	}
}

func (s *HandlerTestSuite) TestCreateContents_SaveError() {
	s.catalog.err = errors.New("tx aborted")

	rec := s.do(http.MethodPost, "/api/v1/contents", validContent)

	s.Equal(http.StatusInternalServerError, rec.Code)
}

func (s *HandlerTestSuite) TestHealth() {
	rec := s.do(http.MethodGet, "/healthz", "")
	s.Equal(http.StatusOK, rec.Code)

	s.pinger = fakePinger{err: errors.New("down")}
	s.router = s.newRouter()

	rec = s.do(http.MethodGet, "/healthz", "")
	s.Equal(http.StatusServiceUnavailable, rec.Code)
}

func (s *HandlerTestSuite) TestMetricsEndpoint() {
	rec := s.do(http.MethodGet, "/metrics", "")

	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "go_goroutines")
}

func (s *HandlerTestSuite) TestRateLimit() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	router := NewRouter(NewHandler(s.catalog, s.pinger, logger, 100, 500), RouterConfig{RequestsPerMinute: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/contents", nil))
		codes = append(codes, rec.Code)
	}

	s.Equal([]int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
