package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContent_Engagement(t *testing.T) {
	tests := []struct {
		name      string
		content   Content
		wantTotal int64
		wantRate  float64
	}{
		{
			name:      "with views",
			content:   Content{LikeCount: 10, CommentCount: 5, ShareCount: 2, ViewCount: 100},
			wantTotal: 17,
			wantRate:  0.17,
		},
		{
			name:      "zero views",
			content:   Content{LikeCount: 10, CommentCount: 5, ShareCount: 2},
			wantTotal: 17,
			wantRate:  0,
		},
		{
			name:    "empty",
			content: Content{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantTotal, tt.content.TotalEngagement())
			assert.InDelta(t, tt.wantRate, tt.content.EngagementRate(), 1e-9)
		})
	}
}
