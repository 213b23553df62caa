//go:build integration

package postgres

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"content_aggregator/internal/domain"
	"content_aggregator/testdata/utils"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	applied, err := Migrate(s.ctx, s.db, logger)
	s.Require().NoError(err)
	s.Require().Equal(4, applied)
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM comments")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM content_tags")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM tags")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM contents")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM authors")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM sync_state")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) createAuthor(uniqueID, username string, followers int64) int64 {
	id, created, err := NewAuthorStore(s.db).GetOrCreate(s.ctx, &domain.Author{
		UniqueID: uniqueID,
		Name:     "Name " + uniqueID,
		Username: username,
	})
	s.Require().NoError(err)
	s.Require().True(created)

	if followers > 0 {
		_, err = s.db.ExecContext(s.ctx, "UPDATE authors SET followers = $1 WHERE id = $2", followers, id)
		s.Require().NoError(err)
	}
	return id
}

func (s *PostgresIntegrationSuite) syncedContent(uniqueID string, authorID *int64, payload string) *domain.Content {
	return &domain.Content{
		AuthorID:     authorID,
		UniqueID:     uniqueID,
		URL:          "https://example.com/" + uniqueID + ".jpg",
		Title:        "Title " + uniqueID,
		ThumbnailURL: utils.Ptr("https://example.com/" + uniqueID + ".jpg"),
		RawPayload:   types.NullJSONText{JSONText: types.JSONText(payload), Valid: true},
	}
}

func (s *PostgresIntegrationSuite) TestMigrate_Idempotent() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	applied, err := Migrate(s.ctx, s.db, logger)
	s.NoError(err)
	s.Equal(0, applied)
}

func (s *PostgresIntegrationSuite) TestAuthorStore_GetOrCreate_NeverUpdates() {
	store := NewAuthorStore(s.db)

	id1, created, err := store.GetOrCreate(s.ctx, &domain.Author{UniqueID: "jane", Name: "Jane", URL: "https://a"})
	s.NoError(err)
	s.True(created)

	id2, created, err := store.GetOrCreate(s.ctx, &domain.Author{UniqueID: "jane", Name: "Someone Else", URL: "https://b"})
	s.NoError(err)
	s.False(created)
	s.Equal(id1, id2)

	author, err := store.GetByUniqueID(s.ctx, "jane")
	s.NoError(err)
	s.Equal("Jane", author.Name)
	s.Equal("https://a", author.URL)
}

func (s *PostgresIntegrationSuite) TestContentStore_UpsertSynced_Lifecycle() {
	store := NewContentStore(s.db)
	counts := &domain.EngagementCounts{Likes: 1, Comments: 2, Shares: 3, Views: 4}

	id, result, err := store.UpsertSynced(s.ctx, s.syncedContent("c1", nil, `{"a": 1}`), counts)
	s.NoError(err)
	s.Equal(domain.UpsertCreated, result)

	sameID, result, err := store.UpsertSynced(s.ctx, s.syncedContent("c1", nil, `{"a":1}`), counts)
	s.NoError(err)
	s.Equal(domain.UpsertUnchanged, result)
	s.Equal(id, sameID)

	changed := s.syncedContent("c1", nil, `{"a": 2}`)
	changed.Title = "Changed"
	sameID, result, err = store.UpsertSynced(s.ctx, changed, nil)
	s.NoError(err)
	s.Equal(domain.UpsertUpdated, result)
	s.Equal(id, sameID)

	var count int
	s.NoError(s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM contents WHERE unique_id = 'c1'"))
	s.Equal(1, count)

	stored, err := store.GetByID(s.ctx, id)
	s.NoError(err)
	s.Equal("Changed", stored.Title)
	s.Equal(int64(1), stored.LikeCount)
	s.Equal(int64(4), stored.ViewCount)
	s.False(stored.Pushed)
}

func (s *PostgresIntegrationSuite) TestContentStore_GetPayloadsByUniqueIDs() {
	store := NewContentStore(s.db)

	_, _, err := store.UpsertSynced(s.ctx, s.syncedContent("c1", nil, `{"x": 1}`), nil)
	s.NoError(err)

	payloads, err := store.GetPayloadsByUniqueIDs(s.ctx, []string{"c1", "missing"})
	s.NoError(err)
	s.Len(payloads, 1)
	s.JSONEq(`{"x": 1}`, string(payloads["c1"]))
}

func (s *PostgresIntegrationSuite) TestContentStore_ClaimNextUnpushed_SkipsLockedRows() {
	store := NewContentStore(s.db)
	tm := NewTransactionManager(s.db)

	first, _, err := store.UpsertSynced(s.ctx, s.syncedContent("c1", nil, `{}`), nil)
	s.NoError(err)
	second, _, err := store.UpsertSynced(s.ctx, s.syncedContent("c2", nil, `{}`), nil)
	s.NoError(err)

	err = tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		claimed, err := store.ClaimNextUnpushed(ctx)
		s.Require().NoError(err)
		s.Require().NotNil(claimed)
		s.Equal(first, claimed.ID)

		other, err := s.db.BeginTxx(s.ctx, nil)
		s.Require().NoError(err)
		defer other.Rollback()

		otherCtx := context.WithValue(s.ctx, txKey, other)
		concurrent, err := store.ClaimNextUnpushed(otherCtx)
		s.Require().NoError(err)
		s.Require().NotNil(concurrent)
		s.Equal(second, concurrent.ID)

		return store.MarkPushed(ctx, claimed.ID, false)
	})
	s.NoError(err)

	next, err := store.ClaimNextUnpushed(s.ctx)
	s.NoError(err)
	s.Require().NotNil(next)
	s.Equal(second, next.ID)

	s.NoError(store.MarkPushed(s.ctx, second, true))
	none, err := store.ClaimNextUnpushed(s.ctx)
	s.NoError(err)
	s.Nil(none)

	skipped, err := store.GetByID(s.ctx, second)
	s.NoError(err)
	s.True(skipped.Pushed)
	s.True(skipped.PushSkipped)
}

func (s *PostgresIntegrationSuite) TestTagStore_ReplaceForContent_UniqueNames() {
	contents := NewContentStore(s.db)
	tags := NewTagStore(s.db)

	c1, _, err := contents.UpsertSynced(s.ctx, s.syncedContent("c1", nil, `{}`), nil)
	s.NoError(err)
	c2, _, err := contents.UpsertSynced(s.ctx, s.syncedContent("c2", nil, `{}`), nil)
	s.NoError(err)

	s.NoError(tags.ReplaceForContent(s.ctx, c1, []string{"go", "db", "go"}))
	s.NoError(tags.ReplaceForContent(s.ctx, c2, []string{"go"}))
	s.NoError(tags.ReplaceForContent(s.ctx, c1, []string{"db", " "}))

	var count int
	s.NoError(s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM tags"))
	s.Equal(2, count)

	names, err := tags.NamesByContentIDs(s.ctx, []int64{c1, c2})
	s.NoError(err)
	s.Equal([]string{"db"}, names[c1])
	s.Equal([]string{"go"}, names[c2])
}

func (s *PostgresIntegrationSuite) TestCommentStore_Create_Idempotent() {
	contents := NewContentStore(s.db)
	comments := NewCommentStore(s.db)

	contentID, _, err := contents.UpsertSynced(s.ctx, s.syncedContent("c1", nil, `{}`), nil)
	s.NoError(err)

	comment := &domain.Comment{
		UniqueID:   "cm-1",
		ContentID:  contentID,
		Text:       "nice",
		Posted:     true,
		RawPayload: types.NullJSONText{JSONText: types.JSONText(`{"id":"cm-1"}`), Valid: true},
	}
	id1, err := comments.Create(s.ctx, comment)
	s.NoError(err)
	id2, err := comments.Create(s.ctx, comment)
	s.NoError(err)
	s.Equal(id1, id2)

	stored, err := comments.listByContentID(s.ctx, contentID)
	s.NoError(err)
	s.Require().Len(stored, 1)
	s.Equal("nice", stored[0].Text)
	s.True(stored[0].Posted)
}

func (s *PostgresIntegrationSuite) TestQueryStore_ListAndStats() {
	contents := NewContentStore(s.db)
	tags := NewTagStore(s.db)
	query := NewQueryStore(s.db)
	now := time.Now().UTC()

	janeID := s.createAuthor("jane-id", "Jane", 100)
	bobID := s.createAuthor("bob-id", "bob", 50)

	old := s.syncedContent("old", &janeID, `{}`)
	old.Title = "Ancient history"
	old.Timestamp = utils.Ptr(now.AddDate(0, 0, -30))
	oldID, _, err := contents.UpsertSynced(s.ctx, old, &domain.EngagementCounts{Likes: 1, Views: 10})
	s.NoError(err)

	fresh := s.syncedContent("fresh", &janeID, `{}`)
	fresh.Title = "Go 100% fresh"
	fresh.Timestamp = utils.Ptr(now.AddDate(0, 0, -1))
	freshID, _, err := contents.UpsertSynced(s.ctx, fresh, &domain.EngagementCounts{Likes: 10, Comments: 5, Shares: 2, Views: 100})
	s.NoError(err)

	bobs := s.syncedContent("bobs", &bobID, `{}`)
	bobsID, _, err := contents.UpsertSynced(s.ctx, bobs, &domain.EngagementCounts{Views: 5})
	s.NoError(err)

	s.NoError(tags.ReplaceForContent(s.ctx, freshID, []string{"Golang"}))

	all, err := query.List(s.ctx, domain.ContentFilter{}, domain.Pagination{Page: 1, ItemsPerPage: 10}, now)
	s.NoError(err)
	s.Require().Len(all, 3)
	s.Equal(bobsID, all[0].Content.ID)
	s.Equal(oldID, all[2].Content.ID)
	s.Equal([]string{}, all[2].Tags)
	s.Require().NotNil(all[1].Author)
	s.Equal("Jane", all[1].Author.Username)
	s.False(all[1].Author.BigMetadata.Valid)

	paged, err := query.List(s.ctx, domain.ContentFilter{}, domain.Pagination{Page: 2, ItemsPerPage: 2}, now)
	s.NoError(err)
	s.Require().Len(paged, 1)
	s.Equal(oldID, paged[0].Content.ID)

	byUser, err := query.List(s.ctx, domain.ContentFilter{AuthorUsername: "jane"}, domain.Pagination{Page: 1, ItemsPerPage: 10}, now)
	s.NoError(err)
	s.Len(byUser, 2)

	recent, err := query.List(s.ctx, domain.ContentFilter{AuthorID: janeID, TimeframeDays: 7}, domain.Pagination{Page: 1, ItemsPerPage: 10}, now)
	s.NoError(err)
	s.Require().Len(recent, 1)
	s.Equal(freshID, recent[0].Content.ID)

	tagged, err := query.List(s.ctx, domain.ContentFilter{Tag: "golang"}, domain.Pagination{Page: 1, ItemsPerPage: 10}, now)
	s.NoError(err)
	s.Require().Len(tagged, 1)
	s.Equal([]string{"Golang"}, tagged[0].Tags)

	titled, err := query.List(s.ctx, domain.ContentFilter{Title: "100%"}, domain.Pagination{Page: 1, ItemsPerPage: 10}, now)
	s.NoError(err)
	s.Require().Len(titled, 1)
	s.Equal(freshID, titled[0].Content.ID)

	stats, err := query.Stats(s.ctx, domain.ContentFilter{AuthorID: janeID}, now)
	s.NoError(err)
	s.Equal(int64(11), stats.TotalLikes)
	s.Equal(int64(110), stats.TotalViews)
	s.Equal(int64(2), stats.TotalContents)
	s.Equal(int64(200), stats.TotalFollowers)

	empty, err := query.Stats(s.ctx, domain.ContentFilter{Title: "nothing matches"}, now)
	s.NoError(err)
	s.Equal(int64(0), empty.TotalContents)
	s.Equal(float64(0), empty.EngagementRate())
}

func (s *PostgresIntegrationSuite) TestSyncStateStore_GetNew() {
	store := NewSyncStateStore(s.db)

	state, err := store.Get(s.ctx, "new-source")
	s.NoError(err)
	s.NotNil(state)
	s.Equal("new-source", state.SourceID)
	s.True(state.LastSyncedAt.IsZero())
	s.Equal(int64(0), state.TotalSynced)
}

func (s *PostgresIntegrationSuite) TestSyncStateStore_UpdateExisting() {
	store := NewSyncStateStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	state := &domain.SyncState{SourceID: "contents", LastSyncedAt: now, LastPage: 3, TotalSynced: 10}
	s.NoError(store.Update(s.ctx, state))

	state.LastPage = 7
	state.TotalSynced = 20
	s.NoError(store.Update(s.ctx, state))

	retrieved, err := store.Get(s.ctx, "contents")
	s.NoError(err)
	s.Equal(7, retrieved.LastPage)
	s.Equal(int64(20), retrieved.TotalSynced)
	s.WithinDuration(now, retrieved.LastSyncedAt, time.Second)
}

func (s *PostgresIntegrationSuite) TestTransaction_Rollback() {
	tm := NewTransactionManager(s.db)
	store := NewContentStore(s.db)

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		if _, _, err := store.UpsertSynced(ctx, s.syncedContent("rolled-back", nil, `{}`), nil); err != nil {
			return err
		}
		return context.Canceled
	})
	s.Error(err)

	var count int
	s.NoError(s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM contents WHERE unique_id = 'rolled-back'"))
	s.Equal(0, count)
}

func (s *CommentStore) listByContentID(ctx context.Context, contentID int64) ([]domain.Comment, error) {
	var comments []domain.Comment
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &comments,
		"SELECT * FROM comments WHERE content_id = $1 ORDER BY id", contentID)
	return comments, err
}
