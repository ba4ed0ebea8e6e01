// Package model defines shared data structures.
package model

import "time"

// DefaultCategory is the category every entry starts in. It always exists
// and cannot be renamed or removed.
const DefaultCategory = "Uncategorized"

// Epoch is the watermark given to newly added feeds so the first refresh
// ingests everything the feed currently publishes.
var Epoch = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)

// Category is a user-defined label for entries.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Feed represents an RSS/Atom feed subscription.
type Feed struct {
	ID      int64  `json:"id"`
	URL     string `json:"url"`
	Title   string `json:"title"`
	Enabled bool   `json:"enabled"`
	// LastUpdated is the watermark: only entries published strictly after it
	// are ingested on refresh.
	LastUpdated time.Time `json:"last_updated"`
}

// Entry represents a single article from a feed.
type Entry struct {
	ID          int64      `json:"id"`
	FeedID      int64      `json:"feed_id"`
	Link        string     `json:"link"` // globally unique
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Content     string     `json:"content"`
	Published   string     `json:"published"` // raw published text as received from the feed
	PublishedAt *time.Time `json:"published_at,omitempty"`
	IsRead      bool       `json:"is_read"`
	Category    string     `json:"category"`

	// FeedTitle is filled in by aggregate views for display.
	FeedTitle string `json:"feed_title,omitempty"`
}

// DigestEntry is the projection of an entry used by digests.
type DigestEntry struct {
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	PublishedAt time.Time `json:"published_at"`
}
