package domain

import "time"

// SyncStats holds statistics about a sync operation.
type SyncStats struct {
	SourceID  string
	Pages     int
	Fetched   int
	New       int
	Updated   int
	Unchanged int
	Invalid   int
	Errors    int
	Published int
	Duration  time.Duration
}

type SyncState struct {
	ID           int64     `db:"id"`
	SourceID     string    `db:"source_id"`
	LastSyncedAt time.Time `db:"last_synced_at"`
	LastPage     int       `db:"last_page"`
	TotalSynced  int64     `db:"total_synced"`
}

// PushResult is the record of one select -> generate -> post -> finalize cycle.
type PushResult struct {
	Outcome   PushOutcome
	ContentID int64
	UniqueID  string
	CommentID string
}
