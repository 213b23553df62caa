package commenter

import (
	"encoding/json"
	"strings"
)

type generateRequest struct {
	ContentID      string `json:"content_id"`
	Title          string `json:"title"`
	URL            string `json:"url"`
	AuthorUsername string `json:"author_username"`
}

type generateResponse struct {
	ID          json.RawMessage `json:"id"`
	CommentText string          `json:"comment_text"`
}

type postRequest struct {
	ContentID   string `json:"content_id"`
	CommentText string `json:"comment_text"`
}

type postResponse struct {
	ID json.RawMessage `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// rawID renders a JSON id that may be a string or a number.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
