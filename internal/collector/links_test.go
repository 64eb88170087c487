package collector

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"lettercast/internal/filter"
)

func TestExtractURLs(t *testing.T) {
	rules := filter.DefaultRules()

	tests := []struct {
		name string
		html string
		want []string
	}{
		{
			name: "empty body",
			html: "",
			want: nil,
		},
		{
			name: "anchors then text urls, deduped",
			html: `<html><head><link href="https://fonts.googleapis.com/css?family=Inter" rel="stylesheet"></head>
<body>
  <a href="https://blog.example.com/posts/1">Read post one</a>
  <a href=" https://blog.example.com/posts/2 ">Post two</a>
  <a href="https://blog.example.com/posts/1">Duplicate</a>
  <p>Also worth reading: https://other.example.org/deep-dive. And (https://third.example.net/x)!</p>
  <a href="https://list.example.com/unsubscribe?id=9">Unsubscribe</a>
  <a href="mailto:editor@example.com">Write to us</a>
  <a href="/relative/path">Relative</a>
  <img src="https://fonts.gstatic.com/pixel.png">
</body></html>`,
			want: []string{
				"https://blog.example.com/posts/1",
				"https://blog.example.com/posts/2",
				"https://other.example.org/deep-dive",
				"https://third.example.net/x",
			},
		},
		{
			name: "plain text body",
			html: "New issue is out: https://letters.example.com/issue/12, enjoy.\nManage prefs: https://letters.example.com/preferences",
			want: []string{"https://letters.example.com/issue/12"},
		},
		{
			name: "articles about management and preferences",
			html: `<a href="https://hbr.org/2024/01/time-management-tips">Time management</a>
<a href="https://example.com/posts/user-preferences-in-ux">Preferences in UX</a>
<a href="https://list.example.com/unsubscribe?id=9">Unsubscribe</a>
<a href="https://list.example.com/email-preferences">Email preferences</a>`,
			want: []string{
				"https://hbr.org/2024/01/time-management-tips",
				"https://example.com/posts/user-preferences-in-ux",
			},
		},
		{
			name: "denylisted anchor domain",
			html: `<a href="https://aka.ms/redirect">MS</a><a href="http://www.w3.org/TR/html5">spec</a>`,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractURLs(tt.html, rules)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ExtractURLs() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtractFirstLink(t *testing.T) {
	page := `<html><body>
<ul class="posts">
  <li><a class="title" href="/posts/newest">  Newest   post </a></li>
  <li><a class="title" href="/posts/older">Older post</a></li>
</ul>
<div class="card"><h2>Card title</h2>
  <a href="https://cdn.example.com/card">open</a></div>
<a class="absolute" href="https://elsewhere.example.org/a">Absolute</a>
<a class="relative" href="next/page">Relative to dir</a>
<span class="nolink">No link here</span>
</body></html>`

	tests := []struct {
		name      string
		selector  string
		base      string
		wantLink  string
		wantTitle string
		wantErr   bool
	}{
		{
			name:      "root relative link",
			selector:  "ul.posts a.title",
			base:      "https://board.example.com/list",
			wantLink:  "https://board.example.com/posts/newest",
			wantTitle: "Newest post",
		},
		{
			name:      "absolute link kept",
			selector:  "a.absolute",
			base:      "https://board.example.com/",
			wantLink:  "https://elsewhere.example.org/a",
			wantTitle: "Absolute",
		},
		{
			name:      "path relative link",
			selector:  "a.relative",
			base:      "https://board.example.com/blog/index.html",
			wantLink:  "https://board.example.com/blog/next/page",
			wantTitle: "Relative to dir",
		},
		{
			name:      "descendant anchor",
			selector:  "div.card",
			base:      "https://board.example.com/",
			wantLink:  "https://cdn.example.com/card",
			wantTitle: "Card title open",
		},
		{
			name:     "no match",
			selector: "article",
			base:     "https://board.example.com/",
			wantErr:  true,
		},
		{
			name:     "no href",
			selector: "span.nolink",
			base:     "https://board.example.com/",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link, title, err := ExtractFirstLink(page, tt.selector, tt.base)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.wantLink, link); diff != "" {
				t.Errorf("link mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantTitle, title); diff != "" {
				t.Errorf("title mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
