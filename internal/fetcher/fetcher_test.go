package fetcher

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/h2non/gock"
	"github.com/mmcdole/gofeed"
)

type mockTransport struct {
	body       string
	statusCode int
	err        error
	gotUA      string
}

func (m *mockTransport) Do(req *http.Request) (*http.Response, error) {
	m.gotUA = req.Header.Get("User-Agent")
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: m.statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

func loadFixture(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path) //nolint:gosec // test-only fixture loading
	if err != nil {
		t.Fatalf("read fixture %s: %v", path, err)
	}
	return string(data)
}

func TestFetch(t *testing.T) {
	xml := loadFixture(t, "../../testdata/sample.xml")
	malformed := loadFixture(t, "../../testdata/malformed.xml")

	tests := []struct {
		name      string
		transport *mockTransport
		wantTitle string
		wantItems int
		wantErr   bool
	}{
		{
			name:      "successful fetch",
			transport: &mockTransport{body: xml, statusCode: 200},
			wantTitle: "Engineering Notes",
			wantItems: 3,
		},
		{
			name:      "http error status",
			transport: &mockTransport{body: "not found", statusCode: 404},
			wantErr:   true,
		},
		{
			name:      "network error",
			transport: &mockTransport{err: io.ErrUnexpectedEOF},
			wantErr:   true,
		},
		{
			name:      "invalid xml",
			transport: &mockTransport{body: "not xml at all", statusCode: 200},
			wantErr:   true,
		},
		{
			name:      "html page instead of feed",
			transport: &mockTransport{body: malformed, statusCode: 200},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.transport)
			feed, err := f.Fetch(context.Background(), "https://example.com/rss")

			if diff := cmp.Diff("LetterCast/1.0", tt.transport.gotUA); diff != "" {
				t.Errorf("user agent mismatch (-want +got):\n%s", diff)
			}
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if diff := cmp.Diff(tt.wantTitle, feed.Title); diff != "" {
				t.Errorf("title mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantItems, len(feed.Items)); diff != "" {
				t.Errorf("item count mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFetchDefaultClient(t *testing.T) {
	defer gock.Off()

	gock.New("https://notes.example.com").
		Get("/feed.xml").
		MatchHeader("User-Agent", "LetterCast/1.0").
		Reply(200).
		BodyString(loadFixture(t, "../../testdata/sample.xml"))

	feed, err := New(http.DefaultClient).Fetch(context.Background(), "https://notes.example.com/feed.xml")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	latest := Latest(feed.Items)
	if latest == nil {
		t.Fatal("expected a latest item")
	}
	if diff := cmp.Diff("https://notes.example.com/posts/idempotent-pipelines", latest.Link); diff != "" {
		t.Errorf("latest link mismatch (-want +got):\n%s", diff)
	}
	if !gock.IsDone() {
		t.Error("feed endpoint was not requested")
	}
}

func TestLatest(t *testing.T) {
	day := func(d int) *time.Time {
		v := time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC)
		return &v
	}

	tests := []struct {
		name  string
		items []*gofeed.Item
		want  string
	}{
		{
			name:  "empty feed",
			items: nil,
			want:  "",
		},
		{
			name: "newest first",
			items: []*gofeed.Item{
				{Link: "https://x.com/3", PublishedParsed: day(3)},
				{Link: "https://x.com/2", PublishedParsed: day(2)},
			},
			want: "https://x.com/3",
		},
		{
			name: "oldest first",
			items: []*gofeed.Item{
				{Link: "https://x.com/1", PublishedParsed: day(1)},
				{Link: "https://x.com/5", PublishedParsed: day(5)},
			},
			want: "https://x.com/5",
		},
		{
			name: "updated date used when published missing",
			items: []*gofeed.Item{
				{Link: "https://x.com/a", PublishedParsed: day(2)},
				{Link: "https://x.com/b", UpdatedParsed: day(4)},
			},
			want: "https://x.com/b",
		},
		{
			name: "no dates keeps document order",
			items: []*gofeed.Item{
				{Link: "https://x.com/first"},
				{Link: "https://x.com/second"},
			},
			want: "https://x.com/first",
		},
		{
			name: "items without link skipped",
			items: []*gofeed.Item{
				{Title: "no link", PublishedParsed: day(9)},
				{Link: "https://x.com/linked", PublishedParsed: day(1)},
			},
			want: "https://x.com/linked",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			if item := Latest(tt.items); item != nil {
				got = item.Link
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Latest() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
