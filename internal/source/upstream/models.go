package upstream

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// APIResponse is the body of a successful contents listing.
type APIResponse struct {
	Data []json.RawMessage `json:"data"`
	Next NextPage          `json:"next"`
}

// APIError is the body of a failed contents listing.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NextPage accepts a number, a numeric string or null.
type NextPage struct {
	Page  int
	Valid bool
}

func (n *NextPage) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		*n = NextPage{}
		return nil
	}

	page, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("next page %q: %w", s, err)
	}
	*n = NextPage{Page: page, Valid: page > 0}
	return nil
}

// FlexString accepts either a JSON string or a JSON number.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number: %w", err)
	}
	*f = FlexString(n.String())
	return nil
}

// Content holds one listing item. Only the id, thumbnail and title are
// required; the optional fields stay raw and are decoded one by one so a
// malformed value drops that value and not the item.
type Content struct {
	UniqueID         *FlexString     `json:"unq_external_id" validate:"required"`
	ThumbnailViewURL *string         `json:"thumbnail_view_url" validate:"required"`
	Title            *string         `json:"title" validate:"required"`
	Timestamp        json.RawMessage `json:"timestamp"`
	Stats            json.RawMessage `json:"stats"`
	BigMetadata      json.RawMessage `json:"big_metadata"`
	SecretValue      json.RawMessage `json:"secret_value"`
	Author           json.RawMessage `json:"author"`
}

type Stats struct {
	Likes    int64 `json:"likes" validate:"gte=0"`
	Comments int64 `json:"comments" validate:"gte=0"`
	Shares   int64 `json:"shares" validate:"gte=0"`
	Views    int64 `json:"views" validate:"gte=0"`
}

// Author is keyed by unique_name, which is required whenever an author
// object is present.
type Author struct {
	UniqueName  *FlexString     `json:"unique_name" validate:"required"`
	FullName    json.RawMessage `json:"full_name"`
	URL         json.RawMessage `json:"url"`
	BigMetadata json.RawMessage `json:"big_metadata"`
	SecretValue json.RawMessage `json:"secret_value"`
}

func isNull(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}

// optionalString decodes a JSON string. ok is false when raw holds anything
// other than a string or null.
func optionalString(raw json.RawMessage) (value string, ok bool) {
	if isNull(raw) {
		return "", true
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", false
	}
	return value, true
}
