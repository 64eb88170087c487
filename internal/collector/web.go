package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"lettercast/internal/fetcher"
	"lettercast/internal/model"
)

const untitled = "(untitled)"

// FeedFetcher downloads and parses a feed.
type FeedFetcher interface {
	Fetch(ctx context.Context, url string) (*gofeed.Feed, error)
}

// PageLoader renders a page and returns its HTML once selector is present.
type PageLoader interface {
	LoadHTML(ctx context.Context, url, selector string) (string, error)
}

// Web collects the latest article URL from each configured site.
type Web struct {
	sites []model.TargetSite
	feeds FeedFetcher
	pages PageLoader
	log   *slog.Logger
	now   func() time.Time
}

// NewWeb creates a Web collector. pages may be nil when no html sites are configured.
func NewWeb(sites []model.TargetSite, feeds FeedFetcher, pages PageLoader, log *slog.Logger) *Web {
	return &Web{
		sites: sites,
		feeds: feeds,
		pages: pages,
		log:   log,
		now:   time.Now,
	}
}

// Name identifies the collector in logs.
func (w *Web) Name() string { return "web" }

// Collect returns at most one item per site. Per-site failures, including
// malformed feeds, are logged as warnings and never returned.
func (w *Web) Collect(ctx context.Context) ([]model.CollectedItem, error) {
	var items []model.CollectedItem
	for _, site := range w.sites {
		if ctx.Err() != nil {
			return items, ctx.Err()
		}
		var (
			item *model.CollectedItem
			err  error
		)
		switch site.Type {
		case model.SiteHTML:
			item, err = w.fromHTML(ctx, site)
		default:
			item, err = w.fromRSS(ctx, site)
		}
		if err != nil {
			w.log.Warn("collect site", "site", site.Name, "type", site.Type, "error", err)
			continue
		}
		if item == nil {
			w.log.Info("collected site", "site", site.Name, "count", 0)
			continue
		}
		w.log.Info("collected site", "site", site.Name, "count", 1, "url", item.URL)
		items = append(items, *item)
	}
	w.log.Info("web collection done", "count", len(items))
	return items, nil
}

func (w *Web) fromRSS(ctx context.Context, site model.TargetSite) (*model.CollectedItem, error) {
	feed, err := w.feeds.Fetch(ctx, site.FeedURL())
	if err != nil {
		return nil, err
	}
	latest := fetcher.Latest(feed.Items)
	if latest == nil {
		return nil, nil
	}
	title := strings.TrimSpace(latest.Title)
	if title == "" {
		title = untitled
	}
	return w.newItem(site, latest.Link, title), nil
}

func (w *Web) fromHTML(ctx context.Context, site model.TargetSite) (*model.CollectedItem, error) {
	if site.Selector == "" {
		return nil, errors.New("css selector is not configured")
	}
	if w.pages == nil {
		return nil, errors.New("no page loader for html sites")
	}
	html, err := w.pages.LoadHTML(ctx, site.URL, site.Selector)
	if err != nil {
		return nil, fmt.Errorf("load page: %w", err)
	}
	link, title, err := ExtractFirstLink(html, site.Selector, site.URL)
	if err != nil {
		return nil, err
	}
	if title == "" {
		title = untitled
	}
	return w.newItem(site, link, title), nil
}

func (w *Web) newItem(site model.TargetSite, link, title string) *model.CollectedItem {
	return &model.CollectedItem{
		URL:         link,
		Title:       title,
		Source:      model.SourceWeb,
		SourceName:  site.Name,
		CollectedAt: w.now(),
	}
}
