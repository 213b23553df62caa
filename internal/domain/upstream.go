package domain

import (
	"encoding/json"
	"time"
)

// ContentPage is one page of the upstream contents listing.
type ContentPage struct {
	Number  int
	Items   []FetchedItem
	Next    int
	HasNext bool
}

// FetchedItem is a single entry of a page. Err is set when the entry could
// not be decoded or is missing a required field; Content is nil then.
type FetchedItem struct {
	Index   int
	Raw     json.RawMessage
	Content *FetchedContent
	Err     error
}

type FetchedContent struct {
	UniqueID     string
	Title        string
	ThumbnailURL string
	Timestamp    *time.Time
	Counts       *EngagementCounts
	BigMetadata  json.RawMessage
	SecretValue  json.RawMessage
	Author       *FetchedAuthor
	Raw          json.RawMessage
}

type FetchedAuthor struct {
	UniqueID    string
	Name        string
	URL         string
	BigMetadata json.RawMessage
	SecretValue json.RawMessage
}

type EngagementCounts struct {
	Likes    int64
	Comments int64
	Shares   int64
	Views    int64
}
