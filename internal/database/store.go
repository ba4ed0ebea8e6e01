// Package database provides storage backends for the RSS reader.
package database

import (
	"errors"
	"time"

	"github.com/bryan-buckman/readless/internal/model"
)

// Expected failures. Callers branch on these with errors.Is; anything else
// returned by a Store is an unexpected storage failure.
var (
	ErrDuplicate       = errors.New("already exists")
	ErrNotFound        = errors.New("not found")
	ErrDefaultCategory = errors.New("the default category cannot be changed")
	ErrInvalidName     = errors.New("invalid name")
)

// UpdateOutcome tells a sparse feed update's caller what actually happened.
type UpdateOutcome int

const (
	UpdateApplied UpdateOutcome = iota
	// UpdateNoFields means the update carried no fields; nothing was written.
	UpdateNoFields
	// UpdateUnknownFeed means no feed has the URL. It is not an error.
	UpdateUnknownFeed
)

func (o UpdateOutcome) String() string {
	switch o {
	case UpdateApplied:
		return "applied"
	case UpdateNoFields:
		return "no fields"
	case UpdateUnknownFeed:
		return "unknown feed"
	}
	return "unknown"
}

// FeedUpdate lists the feed fields to change. Nil fields are left alone.
type FeedUpdate struct {
	Title       *string
	Enabled     *bool
	LastUpdated *time.Time
}

func (u FeedUpdate) empty() bool {
	return u.Title == nil && u.Enabled == nil && u.LastUpdated == nil
}

// InsertResult reports a batch entry insert.
type InsertResult struct {
	Inserted int
	// Duplicates holds links that were skipped because an entry with the
	// same link already exists (in any feed).
	Duplicates []string
}

// Store defines the interface for database operations.
// Both SQLite and PostgreSQL backends satisfy this interface.
type Store interface {
	Close() error

	// DatabaseType returns the name of the database backend ("SQLite" or "PostgreSQL").
	DatabaseType() string

	// Feed operations
	AddFeed(feed model.Feed, entries []model.Entry) (int, error)
	GetFeeds() ([]model.Feed, error)
	GetFeed(url string) (*model.Feed, error)
	UpdateFeed(url string, update FeedUpdate) (UpdateOutcome, error)
	RemoveFeed(url string) error
	BackdateFeed(url string, cutoff time.Time) (int64, error)

	// Category operations
	GetCategories() ([]model.Category, error)
	AddCategory(name string) error
	RemoveCategory(name string) error
	RenameCategory(oldName, newName string) error

	// Entry operations
	InsertEntries(feedURL string, entries []model.Entry, watermark time.Time) (InsertResult, error)
	GetFeedEntries(feedURL string) ([]model.Entry, error)
	SetEntryCategory(link, category string) error
	GetEntryCategory(link string) (string, error)
	SetEntryReadStatus(isRead bool, links ...string) error
	GetEntriesByDateRange(start, end time.Time) ([]model.DigestEntry, error)
	RemoveEntriesAfterDate(feedURL string, cutoff time.Time) (int64, error)
}
