package model

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestStatusCanTransition(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusFailed, false},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusPending, true},
		{StatusCompleted, StatusPending, false},
		{StatusCompleted, StatusProcessing, false},
		{StatusFailed, StatusProcessing, false},
		{StatusFailed, StatusCompleted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			got := tt.from.CanTransition(tt.to)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("CanTransition() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTargetSiteFeedURL(t *testing.T) {
	tests := []struct {
		name string
		site TargetSite
		want string
	}{
		{
			name: "explicit rss url",
			site: TargetSite{URL: "https://blog.example.com", RSSURL: "https://blog.example.com/feed"},
			want: "https://blog.example.com/feed",
		},
		{
			name: "falls back to site url",
			site: TargetSite{URL: "https://blog.example.com/rss.xml"},
			want: "https://blog.example.com/rss.xml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.site.FeedURL()); diff != "" {
				t.Errorf("FeedURL() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
