package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx/types"

	"content_aggregator/internal/config"
	"content_aggregator/internal/domain"
	"content_aggregator/internal/metrics"
)

type SyncService struct {
	source    Source
	authors   AuthorStore
	contents  ContentStore
	syncState SyncStateStore
	txManager TransactionManager
	publisher Publisher
	logger    *slog.Logger
	config    config.SyncConfig
	now       func() time.Time
}

func NewSyncService(
	source Source,
	authors AuthorStore,
	contents ContentStore,
	syncState SyncStateStore,
	txManager TransactionManager,
	publisher Publisher,
	logger *slog.Logger,
	cfg config.SyncConfig,
) *SyncService {
	return &SyncService{
		source:    source,
		authors:   authors,
		contents:  contents,
		syncState: syncState,
		txManager: txManager,
		publisher: publisher,
		logger:    logger.With("worker", "sync", "source", source.ID()),
		config:    cfg,
		now:       time.Now,
	}
}

// Sync walks the upstream listing from page 1 until there is no next page or
// a page fails definitively, either at fetch or at the stored payload lookup.
// A failed page ends the walk but not the run: everything stored so far stays,
// and the next run starts over.
func (s *SyncService) Sync(ctx context.Context) (*domain.SyncStats, error) {
	startTime := s.now()
	s.logger.Info("starting sync",
		"source_name", s.source.Name(),
		"max_pages", s.config.MaxPagesPerSync,
	)

	stats := &domain.SyncStats{SourceID: s.source.ID()}
	visited := make(map[int]struct{})
	lastPage := 0
	status := "success"

	for page := 1; ; {
		if s.config.MaxPagesPerSync > 0 && stats.Pages >= s.config.MaxPagesPerSync {
			s.logger.Info("page limit reached", "pages", stats.Pages)
			break
		}
		visited[page] = struct{}{}

		result, err := s.source.FetchPage(ctx, page)
		if err != nil {
			if ctx.Err() != nil {
				s.finish(stats, startTime, "canceled")
				return stats, fmt.Errorf("fetch page %d: %w", page, err)
			}
			s.logger.Error("page fetch failed, stopping pagination", "page", page, "error", err)
			stats.Errors++
			status = "partial"
			break
		}

		if err := s.processPage(ctx, result, stats); err != nil {
			if ctx.Err() != nil {
				s.finish(stats, startTime, "canceled")
				return stats, fmt.Errorf("process page %d: %w", page, err)
			}
			s.logger.Error("page processing failed, stopping pagination", "page", page, "error", err)
			stats.Errors++
			status = "partial"
			break
		}
		stats.Pages++
		lastPage = page

		s.logger.Debug("processed page", "page", page, "items", len(result.Items))

		if !result.HasNext {
			break
		}
		if _, seen := visited[result.Next]; seen {
			s.logger.Warn("next page already visited, stopping pagination",
				"page", page,
				"next", result.Next,
			)
			break
		}
		page = result.Next
	}

	if err := s.updateSyncState(ctx, stats, lastPage); err != nil {
		s.finish(stats, startTime, "failed")
		return stats, fmt.Errorf("update sync state: %w", err)
	}

	s.finish(stats, startTime, status)

	s.logger.Info("sync completed",
		"pages", stats.Pages,
		"fetched", stats.Fetched,
		"new", stats.New,
		"updated", stats.Updated,
		"unchanged", stats.Unchanged,
		"invalid", stats.Invalid,
		"errors", stats.Errors,
		"published", stats.Published,
		"duration", stats.Duration,
	)

	return stats, nil
}

func (s *SyncService) finish(stats *domain.SyncStats, startTime time.Time, status string) {
	stats.Duration = s.now().Sub(startTime)
	metrics.SyncRunsTotal.WithLabelValues(status).Inc()
	metrics.SyncRunDuration.Observe(stats.Duration.Seconds())
}

func (s *SyncService) processPage(ctx context.Context, page *domain.ContentPage, stats *domain.SyncStats) error {
	stats.Fetched += len(page.Items)

	uniqueIDs := make([]string, 0, len(page.Items))
	for _, item := range page.Items {
		if item.Err == nil {
			uniqueIDs = append(uniqueIDs, item.Content.UniqueID)
		}
	}

	stored, err := s.contents.GetPayloadsByUniqueIDs(ctx, uniqueIDs)
	if err != nil {
		return fmt.Errorf("load stored payloads: %w", err)
	}

	for _, item := range page.Items {
		if item.Err != nil {
			s.logger.Warn("skipping invalid item",
				"page", page.Number,
				"index", item.Index,
				"error", item.Err,
			)
			s.countItem(stats, "invalid")
			continue
		}

		fetched := item.Content
		payload, err := canonicalJSON(fetched.Raw)
		if err != nil {
			s.logger.Warn("skipping item with undecodable payload",
				"page", page.Number,
				"unique_id", fetched.UniqueID,
				"error", err,
			)
			s.countItem(stats, "invalid")
			continue
		}

		if previous, exists := stored[fetched.UniqueID]; exists && samePayload(previous, payload) {
			s.countItem(stats, string(domain.UpsertUnchanged))
			continue
		}

		content, result, err := s.saveItem(ctx, fetched, payload)
		if err != nil {
			s.logger.Error("failed to save content",
				"unique_id", fetched.UniqueID,
				"error", err,
			)
			s.countItem(stats, "error")
			continue
		}
		s.countItem(stats, string(result))

		if result == domain.UpsertUnchanged || s.publisher == nil {
			continue
		}
		if err := s.publisher.PublishContent(ctx, content, result); err != nil {
			s.logger.Warn("failed to publish content event",
				"unique_id", fetched.UniqueID,
				"error", err,
			)
			stats.Errors++
		} else {
			stats.Published++
		}
	}

	return nil
}

func (s *SyncService) countItem(stats *domain.SyncStats, result string) {
	switch result {
	case string(domain.UpsertCreated):
		stats.New++
	case string(domain.UpsertUpdated):
		stats.Updated++
	case string(domain.UpsertUnchanged):
		stats.Unchanged++
	case "invalid":
		stats.Invalid++
	default:
		stats.Errors++
	}
	metrics.SyncItemsTotal.WithLabelValues(result).Inc()
}

// saveItem stores the author (create only) and the content in one
// transaction.
func (s *SyncService) saveItem(ctx context.Context, fetched *domain.FetchedContent, payload []byte) (*domain.Content, domain.UpsertResult, error) {
	content := &domain.Content{
		UniqueID:     fetched.UniqueID,
		URL:          fetched.ThumbnailURL,
		Title:        fetched.Title,
		ThumbnailURL: &fetched.ThumbnailURL,
		Timestamp:    fetched.Timestamp,
		BigMetadata:  nullJSON(fetched.BigMetadata),
		SecretValue:  nullJSON(fetched.SecretValue),
		RawPayload:   nullJSON(payload),
	}

	var result domain.UpsertResult
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if fetched.Author != nil {
			authorID, created, err := s.authors.GetOrCreate(txCtx, toAuthor(fetched.Author))
			if err != nil {
				return fmt.Errorf("get or create author: %w", err)
			}
			if created {
				s.logger.Debug("author created", "author_unique_id", fetched.Author.UniqueID)
			}
			content.AuthorID = &authorID
		}

		id, upserted, err := s.contents.UpsertSynced(txCtx, content, fetched.Counts)
		if err != nil {
			return fmt.Errorf("upsert content: %w", err)
		}
		content.ID = id
		result = upserted
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	return content, result, nil
}

func (s *SyncService) updateSyncState(ctx context.Context, stats *domain.SyncStats, lastPage int) error {
	state, err := s.syncState.Get(ctx, s.source.ID())
	if err != nil {
		return err
	}

	state.SourceID = s.source.ID()
	state.LastSyncedAt = s.now()
	state.LastPage = lastPage
	state.TotalSynced += int64(stats.New + stats.Updated)

	return s.syncState.Update(ctx, state)
}

func toAuthor(fetched *domain.FetchedAuthor) *domain.Author {
	return &domain.Author{
		UniqueID:    fetched.UniqueID,
		Name:        fetched.Name,
		Username:    fetched.UniqueID,
		URL:         fetched.URL,
		BigMetadata: nullJSON(fetched.BigMetadata),
		SecretValue: nullJSON(fetched.SecretValue),
	}
}

var errEmptyPayload = errors.New("empty payload")

// canonicalJSON re-encodes raw so that structurally equal documents compare
// equal byte for byte: object keys sorted, insignificant whitespace dropped,
// numbers kept verbatim.
func canonicalJSON(raw []byte) ([]byte, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errEmptyPayload
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func samePayload(stored json.RawMessage, canonical []byte) bool {
	if stored == nil {
		return false
	}
	normalized, err := canonicalJSON(stored)
	if err != nil {
		return false
	}
	return bytes.Equal(normalized, canonical)
}

func nullJSON(raw []byte) types.NullJSONText {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return types.NullJSONText{}
	}
	return types.NullJSONText{JSONText: types.JSONText(trimmed), Valid: true}
}
