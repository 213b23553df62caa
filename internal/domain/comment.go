package domain

import (
	"errors"
	"time"

	"github.com/jmoiron/sqlx/types"
)

type Comment struct {
	ID         int64              `db:"id"`
	UniqueID   string             `db:"unique_id"`
	ContentID  int64              `db:"content_id"`
	Text       string             `db:"text"`
	Posted     bool               `db:"posted"`
	RawPayload types.NullJSONText `db:"raw_payload"`
	CreatedAt  time.Time          `db:"created_at"`
}

// GeneratedComment is what the AI comment endpoint hands back. Raw keeps the
// full response body so it can be stored alongside the comment.
type GeneratedComment struct {
	ID          string
	CommentText string
	Raw         []byte
}

// ErrNotCommentable is the posting endpoint's terminal rejection of a
// content. It is never retried.
var ErrNotCommentable = errors.New("content is not available for commenting")

// PushOutcome describes how a single push cycle ended.
type PushOutcome string

const (
	PushIdle           PushOutcome = "idle"
	PushPosted         PushOutcome = "posted"
	PushSkipped        PushOutcome = "skipped"
	PushGenerateFailed PushOutcome = "generate_failed"
	PushPostFailed     PushOutcome = "post_failed"
	PushPersistFailed  PushOutcome = "persist_failed"
)

// PostedComment is the upstream acknowledgement of a posted comment.
type PostedComment struct {
	ID  string
	Raw []byte
}
