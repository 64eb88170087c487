// Package model defines the domain types used across the application.
package model

import "time"

// Status is the processing state of a collected URL.
type Status string

// Processing states. An item only moves pending -> processing -> completed|failed.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// CanTransition reports whether an item in state s may move to next.
// Processing may fall back to pending when generation is interrupted.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed || next == StatusPending
	default:
		return false
	}
}

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// SourceType identifies where an item was collected from.
type SourceType string

// Supported source types.
const (
	SourceGmail SourceType = "gmail"
	SourceWeb   SourceType = "web"
)

// CollectedItem is one discovered URL plus its processing state.
type CollectedItem struct {
	ID          int64
	URL         string
	Title       string
	Source      SourceType
	SourceName  string
	CollectedAt time.Time
	Status      Status
	ErrorMsg    *string
	AudioPath   *string
	CompletedAt *time.Time
	DeliveredAt *time.Time

	// MessageID is the Gmail message the URL was found in. Not persisted.
	MessageID string
}

// SiteType selects how a web source is collected.
type SiteType string

// Supported site types.
const (
	SiteRSS  SiteType = "rss"
	SiteHTML SiteType = "html"
)

// TargetSite describes one web source to collect the latest article from.
type TargetSite struct {
	Name     string
	URL      string
	Type     SiteType
	RSSURL   string
	Selector string
}

// FeedURL returns the URL to fetch for an RSS site.
func (t TargetSite) FeedURL() string {
	if t.RSSURL != "" {
		return t.RSSURL
	}
	return t.URL
}
