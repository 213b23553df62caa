package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"encoding/json"
	"time"

	"content_aggregator/internal/domain"
)

type Source interface {
	ID() string
	Name() string
	FetchPage(ctx context.Context, page int) (*domain.ContentPage, error)
}

type AuthorStore interface {
	GetOrCreate(ctx context.Context, author *domain.Author) (int64, bool, error)
	GetByUniqueID(ctx context.Context, uniqueID string) (*domain.Author, error)
}

type ContentStore interface {
	GetPayloadsByUniqueIDs(ctx context.Context, ids []string) (map[string]json.RawMessage, error)
	UpsertSynced(ctx context.Context, content *domain.Content, counts *domain.EngagementCounts) (int64, domain.UpsertResult, error)
	ClaimNextUnpushed(ctx context.Context) (*domain.Content, error)
	MarkPushed(ctx context.Context, id int64, skipped bool) error
}

type ContentWriter interface {
	Upsert(ctx context.Context, content *domain.Content) (int64, bool, error)
	GetByID(ctx context.Context, id int64) (*domain.Content, error)
}

type ContentReader interface {
	List(ctx context.Context, filter domain.ContentFilter, page domain.Pagination, now time.Time) ([]domain.ContentWithAuthor, error)
	Stats(ctx context.Context, filter domain.ContentFilter, now time.Time) (*domain.ContentStats, error)
}

type TagStore interface {
	ReplaceForContent(ctx context.Context, contentID int64, names []string) error
	NamesByContentIDs(ctx context.Context, contentIDs []int64) (map[int64][]string, error)
}

type CommentStore interface {
	Create(ctx context.Context, comment *domain.Comment) (int64, error)
}

type SyncStateStore interface {
	Get(ctx context.Context, sourceID string) (*domain.SyncState, error)
	Update(ctx context.Context, state *domain.SyncState) error
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	PublishContent(ctx context.Context, content *domain.Content, result domain.UpsertResult) error
	PublishComment(ctx context.Context, comment *domain.Comment) error
	Close() error
}

type CommentClient interface {
	Generate(ctx context.Context, content *domain.Content) (*domain.GeneratedComment, error)
	Post(ctx context.Context, content *domain.Content, generated *domain.GeneratedComment) (*domain.PostedComment, error)
}
