package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"content_aggregator/internal/domain"
)

// CatalogService backs the content API: filtered reads and batch writes.
type CatalogService struct {
	authors   AuthorStore
	contents  ContentWriter
	reader    ContentReader
	tags      TagStore
	txManager TransactionManager
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewCatalogService(
	authors AuthorStore,
	contents ContentWriter,
	reader ContentReader,
	tags TagStore,
	txManager TransactionManager,
	publisher Publisher,
	logger *slog.Logger,
) *CatalogService {
	return &CatalogService{
		authors:   authors,
		contents:  contents,
		reader:    reader,
		tags:      tags,
		txManager: txManager,
		publisher: publisher,
		logger:    logger.With("component", "catalog"),
		now:       time.Now,
	}
}

func (s *CatalogService) List(ctx context.Context, filter domain.ContentFilter, page domain.Pagination) ([]domain.ContentWithAuthor, error) {
	return s.reader.List(ctx, filter, page, s.now())
}

func (s *CatalogService) Stats(ctx context.Context, filter domain.ContentFilter) (*domain.ContentStats, error) {
	return s.reader.Stats(ctx, filter, s.now())
}

// Save upserts every input in a single transaction. Authors are created on
// first sight and never modified; contents have their fields refreshed; the
// hashtags replace the content's tags.
func (s *CatalogService) Save(ctx context.Context, inputs []domain.ContentInput) ([]domain.ContentWithAuthor, error) {
	saved := make([]domain.ContentWithAuthor, 0, len(inputs))
	created := make([]bool, 0, len(inputs))

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		for i := range inputs {
			item, isNew, err := s.saveOne(txCtx, &inputs[i])
			if err != nil {
				return fmt.Errorf("save content %s: %w", inputs[i].Content.UniqueID, err)
			}
			saved = append(saved, *item)
			created = append(created, isNew)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.publisher != nil {
		for i := range saved {
			result := domain.UpsertUpdated
			if created[i] {
				result = domain.UpsertCreated
			}
			if err := s.publisher.PublishContent(ctx, &saved[i].Content, result); err != nil {
				s.logger.Warn("failed to publish content event",
					"unique_id", saved[i].Content.UniqueID,
					"error", err,
				)
			}
		}
	}

	return saved, nil
}

func (s *CatalogService) saveOne(ctx context.Context, input *domain.ContentInput) (*domain.ContentWithAuthor, bool, error) {
	authorID, _, err := s.authors.GetOrCreate(ctx, &input.Author)
	if err != nil {
		return nil, false, fmt.Errorf("get or create author: %w", err)
	}

	content := input.Content
	content.AuthorID = &authorID

	contentID, inserted, err := s.contents.Upsert(ctx, &content)
	if err != nil {
		return nil, false, fmt.Errorf("upsert content: %w", err)
	}

	if err := s.tags.ReplaceForContent(ctx, contentID, input.Hashtags); err != nil {
		return nil, false, fmt.Errorf("replace tags: %w", err)
	}

	stored, err := s.contents.GetByID(ctx, contentID)
	if err != nil {
		return nil, false, fmt.Errorf("reload content: %w", err)
	}
	if stored == nil {
		return nil, false, fmt.Errorf("reload content: id %d not found", contentID)
	}

	author, err := s.authors.GetByUniqueID(ctx, input.Author.UniqueID)
	if err != nil {
		return nil, false, fmt.Errorf("reload author: %w", err)
	}

	tags, err := s.tags.NamesByContentIDs(ctx, []int64{contentID})
	if err != nil {
		return nil, false, fmt.Errorf("load tags: %w", err)
	}

	names := tags[contentID]
	if names == nil {
		names = []string{}
	}

	return &domain.ContentWithAuthor{Content: *stored, Author: author, Tags: names}, inserted, nil
}
