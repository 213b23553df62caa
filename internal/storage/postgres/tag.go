package postgres

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type TagStore struct {
	db *sqlx.DB
}

func NewTagStore(db *sqlx.DB) *TagStore {
	return &TagStore{db: db}
}

// ReplaceForContent makes names the complete tag set of a content. Tags are
// unique by name and created on first use.
func (s *TagStore) ReplaceForContent(ctx context.Context, contentID int64, names []string) error {
	exec := GetExecutor(ctx, s.db)

	_, err := exec.ExecContext(ctx,
		"DELETE FROM content_tags WHERE content_id = $1",
		contentID,
	)
	if err != nil {
		return err
	}

	names = normalizeTagNames(names)
	if len(names) == 0 {
		return nil
	}

	_, err = exec.ExecContext(ctx, `
		INSERT INTO tags (name)
		SELECT DISTINCT unnest($1::text[])
		ON CONFLICT (name) DO NOTHING`,
		pq.Array(names),
	)
	if err != nil {
		return err
	}

	_, err = exec.ExecContext(ctx, `
		INSERT INTO content_tags (content_id, tag_id)
		SELECT $1, id FROM tags WHERE name = ANY($2)
		ON CONFLICT DO NOTHING`,
		contentID, pq.Array(names),
	)
	return err
}

// NamesByContentIDs returns tag names keyed by content id.
func (s *TagStore) NamesByContentIDs(ctx context.Context, contentIDs []int64) (map[int64][]string, error) {
	return tagNamesByContentIDs(ctx, GetExecutor(ctx, s.db), contentIDs)
}

func tagNamesByContentIDs(ctx context.Context, exec sqlx.QueryerContext, contentIDs []int64) (map[int64][]string, error) {
	result := make(map[int64][]string)
	if len(contentIDs) == 0 {
		return result, nil
	}

	query := `
		SELECT ct.content_id, t.name
		FROM content_tags ct
		INNER JOIN tags t ON t.id = ct.tag_id
		WHERE ct.content_id = ANY($1)
		ORDER BY ct.content_id, t.name`

	rows, err := exec.QueryContext(ctx, query, pq.Array(contentIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var contentID int64
		var name string
		if err := rows.Scan(&contentID, &name); err != nil {
			return nil, err
		}
		result[contentID] = append(result[contentID], name)
	}

	return result, rows.Err()
}

func normalizeTagNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
