package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"content_aggregator/internal/domain"
	"content_aggregator/internal/service/mocks"
)

type CatalogServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	authors   *mocks.MockAuthorStore
	contents  *mocks.MockContentWriter
	reader    *mocks.MockContentReader
	tags      *mocks.MockTagStore
	txManager *mocks.MockTransactionManager
	publisher *mocks.MockPublisher

	service *CatalogService
	now     time.Time
}

func (s *CatalogServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.authors = mocks.NewMockAuthorStore(s.ctrl)
	s.contents = mocks.NewMockContentWriter(s.ctrl)
	s.reader = mocks.NewMockContentReader(s.ctrl)
	s.tags = mocks.NewMockTagStore(s.ctrl)
	s.txManager = mocks.NewMockTransactionManager(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)

	s.txManager.EXPECT().WithTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	).AnyTimes()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s.service = NewCatalogService(s.authors, s.contents, s.reader, s.tags, s.txManager, s.publisher, logger)

	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.service.now = func() time.Time { return s.now }
}

func (s *CatalogServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestCatalogServiceTestSuite(t *testing.T) {
	suite.Run(t, new(CatalogServiceTestSuite))
}

func (s *CatalogServiceTestSuite) TestListAndStats_PassClock() {
	ctx := context.Background()
	filter := domain.ContentFilter{TimeframeDays: 7}
	page := domain.Pagination{Page: 2, ItemsPerPage: 10}

	s.reader.EXPECT().List(ctx, filter, page, s.now).Return([]domain.ContentWithAuthor{{}}, nil)
	s.reader.EXPECT().Stats(ctx, filter, s.now).Return(&domain.ContentStats{TotalContents: 3}, nil)

	items, err := s.service.List(ctx, filter, page)
	s.NoError(err)
	s.Len(items, 1)

	stats, err := s.service.Stats(ctx, filter)
	s.NoError(err)
	s.Equal(int64(3), stats.TotalContents)
}

func (s *CatalogServiceTestSuite) TestSave_UpsertsAndReplacesTags() {
	ctx := context.Background()

	inputs := []domain.ContentInput{
		{
			Author:   domain.Author{UniqueID: "a-1", Username: "jane"},
			Content:  domain.Content{UniqueID: "c-1", Title: "First", LikeCount: 10},
			Hashtags: []string{"go", "db"},
		},
		{
			Author:  domain.Author{UniqueID: "a-1", Username: "jane"},
			Content: domain.Content{UniqueID: "c-2", Title: "Second"},
		},
	}

	s.authors.EXPECT().GetOrCreate(ctx, gomock.Any()).Return(int64(5), true, nil)
	s.authors.EXPECT().GetOrCreate(ctx, gomock.Any()).Return(int64(5), false, nil)
	s.authors.EXPECT().GetByUniqueID(ctx, "a-1").Return(&domain.Author{ID: 5, UniqueID: "a-1", Username: "jane"}, nil).Times(2)

	s.contents.EXPECT().Upsert(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, content *domain.Content) (int64, bool, error) {
			s.Require().NotNil(content.AuthorID)
			s.Equal(int64(5), *content.AuthorID)
			if content.UniqueID == "c-1" {
				return 11, true, nil
			}
			return 12, false, nil
		},
	).Times(2)
	s.contents.EXPECT().GetByID(ctx, int64(11)).Return(&domain.Content{ID: 11, UniqueID: "c-1", LikeCount: 10}, nil)
	s.contents.EXPECT().GetByID(ctx, int64(12)).Return(&domain.Content{ID: 12, UniqueID: "c-2"}, nil)

	s.tags.EXPECT().ReplaceForContent(ctx, int64(11), []string{"go", "db"}).Return(nil)
	s.tags.EXPECT().ReplaceForContent(ctx, int64(12), nil).Return(nil)
	s.tags.EXPECT().NamesByContentIDs(ctx, []int64{11}).Return(map[int64][]string{11: {"db", "go"}}, nil)
	s.tags.EXPECT().NamesByContentIDs(ctx, []int64{12}).Return(map[int64][]string{}, nil)

	s.publisher.EXPECT().PublishContent(ctx, gomock.Any(), domain.UpsertCreated).Return(nil)
	s.publisher.EXPECT().PublishContent(ctx, gomock.Any(), domain.UpsertUpdated).Return(errors.New("broker down"))

	saved, err := s.service.Save(ctx, inputs)

	s.NoError(err)
	s.Require().Len(saved, 2)
	s.Equal([]string{"db", "go"}, saved[0].Tags)
	s.Equal([]string{}, saved[1].Tags)
	s.Equal("jane", saved[1].Author.Username)
	s.Nil(inputs[0].Content.AuthorID)
}

func (s *CatalogServiceTestSuite) TestSave_ErrorAbortsBatch() {
	ctx := context.Background()

	inputs := []domain.ContentInput{{
		Author:  domain.Author{UniqueID: "a-1"},
		Content: domain.Content{UniqueID: "c-1"},
	}}

	s.authors.EXPECT().GetOrCreate(ctx, gomock.Any()).Return(int64(5), true, nil)
	s.contents.EXPECT().Upsert(ctx, gomock.Any()).Return(int64(0), false, errors.New("check constraint"))

	_, err := s.service.Save(ctx, inputs)

	s.ErrorContains(err, "save content c-1")
	s.ErrorContains(err, "upsert content")
}
